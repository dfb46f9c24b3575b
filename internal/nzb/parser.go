package nzb

import (
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/datallboy/newsflow/internal/domain"
)

var (
	reYenc     = regexp.MustCompile(`(?i)\s+yenc.*$`)
	reLead     = regexp.MustCompile(`^\[\d+/\d+\]\s+`)
	reBadChars = regexp.MustCompile(`[\\/:*?"<>|]`)
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(r io.Reader) (*Model, error) {
	var m Model
	if err := xml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("invalid nzb: %w", err)
	}
	return &m, nil
}

// Inputs turns the files of m into engine inputs. Segments need a positive
// number and size; files left without segments, or with a segment missing
// its message id, are skipped.
func (p *Parser) Inputs(m *Model) ([]domain.Input, error) {
	inputs := make([]domain.Input, 0, len(m.Files))
	for i, f := range m.Files {
		in, ok := input(f)
		if !ok {
			continue
		}
		if in.Name == "" {
			in.Name = fmt.Sprintf("file%03d", i+1)
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return nil, ErrNoSegments
	}
	return inputs, nil
}

// ParseInputs reads an NZB document straight into engine inputs.
func ParseInputs(r io.Reader) ([]domain.Input, error) {
	p := NewParser()
	m, err := p.Parse(r)
	if err != nil {
		return nil, err
	}
	return p.Inputs(m)
}

func ParseFile(path string) ([]domain.Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseInputs(f)
}

func input(f File) (domain.Input, bool) {
	in := domain.Input{Name: SanitizeFileName(f.Subject)}

	seen := make(map[int]bool, len(f.Segments))
	for _, s := range f.Segments {
		id := strings.TrimSpace(s.MessageID)
		if id == "" {
			return in, false
		}
		if s.Number <= 0 || s.Bytes <= 0 || seen[s.Number] {
			continue
		}
		seen[s.Number] = true
		in.Segments = append(in.Segments, domain.Segment{
			Number:    s.Number,
			Bytes:     s.Bytes,
			MessageID: id,
		})
	}

	sort.Slice(in.Segments, func(i, j int) bool {
		return in.Segments[i].Number < in.Segments[j].Number
	})
	return in, len(in.Segments) > 0
}

// SanitizeFileName removes Usenet metadata and OS-illegal characters
func SanitizeFileName(subject string) string {
	res := html.UnescapeString(subject)

	// the quoted part of a subject is the file name
	firstQuote := strings.Index(res, "\"")
	lastQuote := strings.LastIndex(res, "\"")
	if firstQuote != -1 && lastQuote != -1 && firstQuote < lastQuote {
		res = res[firstQuote+1 : lastQuote]
	} else {
		res = reYenc.ReplaceAllString(res, "")
		res = reLead.ReplaceAllString(res, "")
	}

	res = reBadChars.ReplaceAllString(res, "_")
	return strings.TrimSpace(res)
}
