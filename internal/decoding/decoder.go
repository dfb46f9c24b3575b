package decoding

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
)

var (
	ErrChecksum   = errors.New("checksum mismatch")
	ErrNoResponse = errors.New("response has no status line")
)

// Article is the decoded payload of one segment. Begin and End are the
// 1-based byte range inside the target file when the encoding declares one.
type Article struct {
	Data  []byte
	Name  string
	Size  int64
	Begin int64
	End   int64
}

// ArticleDecoder removes the transfer framing from a raw article response.
type ArticleDecoder interface {
	Decode(raw []byte, expected int64) (*Article, error)
}

// Detect picks the decoder for a raw response.
func Detect(raw []byte) ArticleDecoder {
	if bytes.HasPrefix(raw, []byte("=ybegin ")) || bytes.Contains(raw, []byte("\n=ybegin ")) {
		return Yenc{}
	}
	return Plain{}
}

// maxSizeHint caps the buffer reserved from a declared segment size.
const maxSizeHint = 4 << 20

func sizeHint(expected int64) int {
	if expected <= 0 {
		return 0
	}
	return int(min(expected, maxSizeHint))
}

// Decode runs the decoder chosen by Detect.
func Decode(raw []byte, expected int64) (*Article, error) {
	return Detect(raw).Decode(raw, expected)
}

// Plain undoes dot-stuffing and nothing else.
type Plain struct{}

func (Plain) Decode(raw []byte, expected int64) (*Article, error) {
	body, err := articleBody(raw)
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, sizeHint(expected)))
	if _, err := io.Copy(buf, body); err != nil {
		return nil, fmt.Errorf("reading plain body: %w", err)
	}
	return &Article{Data: buf.Bytes(), Size: int64(buf.Len())}, nil
}

// Yenc decodes single and multi-part yEnc posts and checks their CRC.
type Yenc struct{}

func (Yenc) Decode(raw []byte, expected int64) (*Article, error) {
	body, err := articleBody(raw)
	if err != nil {
		return nil, err
	}

	dec := NewYencDecoder(body)
	if err := dec.ReadHeader(); err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, sizeHint(expected)))
	if _, err := io.Copy(buf, dec); err != nil {
		return nil, fmt.Errorf("decode read failed: %w", err)
	}
	if err := dec.Verify(); err != nil {
		return nil, err
	}

	art := &Article{
		Data:  buf.Bytes(),
		Name:  dec.Name,
		Size:  dec.FileSize,
		Begin: dec.PartBegin,
		End:   dec.PartEnd,
	}
	return art, nil
}

// articleBody strips the status line (and headers of a full article) and
// returns a reader that removes the dot framing.
func articleBody(raw []byte) (io.Reader, error) {
	r := bufio.NewReader(bytes.NewReader(raw))

	status, err := r.ReadString('\n')
	if err != nil {
		return nil, ErrNoResponse
	}

	tp := textproto.NewReader(r)
	if len(status) >= 3 && status[:3] == "220" {
		if _, err := tp.ReadMIMEHeader(); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reading article headers: %w", err)
		}
	}
	return tp.DotReader(), nil
}
