package decoding

import (
	"bufio"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"strconv"
	"strings"
)

var ErrHeaderNotFound = errors.New("yenc header not found")

// YencDecoder streams decoded bytes out of a yEnc encoded body.
type YencDecoder struct {
	scanner     *bufio.Reader
	reachedEnd  bool
	escaped     bool // State: was the previous byte '='?
	hash        hash.Hash32
	expectedCRC uint32
	hasCRC      bool

	// Filled by ReadHeader
	Name      string
	FileSize  int64
	PartBegin int64
	PartEnd   int64
}

func NewYencDecoder(r io.Reader) *YencDecoder {
	return &YencDecoder{
		scanner: bufio.NewReader(r),
		hash:    crc32.NewIEEE(), // yEnc uses the standard IEEE polynomial
	}
}

// ReadHeader skips to the =ybegin line and reads it, plus the =ypart line
// of multi-part posts.
func (d *YencDecoder) ReadHeader() error {
	for {
		line, err := d.scanner.ReadString('\n')
		if strings.HasPrefix(line, "=ybegin ") {
			d.parseBegin(line)
			return d.readPartHeader()
		}
		if err != nil {
			if err == io.EOF {
				return ErrHeaderNotFound
			}
			return fmt.Errorf("searching for yenc header: %w", err)
		}
	}
}

func (d *YencDecoder) Read(p []byte) (n int, err error) {
	if d.reachedEnd {
		return 0, io.EOF
	}

	for n < len(p) {
		b, err := d.scanner.ReadByte()
		if err != nil {
			return n, err
		}

		// Handle yEnc Escape character
		if b == '=' && !d.escaped {
			// Peek ahead to see if this is actually the end of the file
			peek, _ := d.scanner.Peek(4)
			if len(peek) >= 4 && string(peek) == "yend" {
				d.reachedEnd = true
				d.parseFooter()
				return n, io.EOF
			}

			d.escaped = true
			continue
		}

		if b == '\r' || b == '\n' {
			d.escaped = false
			continue
		}

		var decoded byte
		if d.escaped {
			decoded = b - 64 - 42
			d.escaped = false
		} else {
			decoded = b - 42
		}

		p[n] = decoded
		d.hash.Write(p[n : n+1])
		n++
	}

	return n, nil
}

// Verify compares the decoded bytes with the footer checksum. Posts without
// a checksum pass.
func (d *YencDecoder) Verify() error {
	if !d.hasCRC {
		return nil
	}
	actual := d.hash.Sum32()
	if actual != d.expectedCRC {
		return fmt.Errorf("%w: expected %08X, got %08X", ErrChecksum, d.expectedCRC, actual)
	}
	return nil
}

func (d *YencDecoder) parseBegin(line string) {
	line = strings.TrimRight(line, "\r\n")

	// name runs to the end of the line and may contain spaces
	if i := strings.Index(line, " name="); i >= 0 {
		d.Name = strings.TrimSpace(line[i+len(" name="):])
		line = line[:i]
	}
	for _, f := range strings.Fields(line) {
		if v, ok := strings.CutPrefix(f, "size="); ok {
			d.FileSize, _ = strconv.ParseInt(v, 10, 64)
		}
	}
}

func (d *YencDecoder) readPartHeader() error {
	peek, _ := d.scanner.Peek(6)
	if string(peek) != "=ypart" {
		return nil
	}

	line, err := d.scanner.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading part header: %w", err)
	}
	for _, f := range strings.Fields(line) {
		if v, ok := strings.CutPrefix(f, "begin="); ok {
			d.PartBegin, _ = strconv.ParseInt(v, 10, 64)
		}
		if v, ok := strings.CutPrefix(f, "end="); ok {
			d.PartEnd, _ = strconv.ParseInt(v, 10, 64)
		}
	}
	return nil
}

func (d *YencDecoder) parseFooter() {
	line, _ := d.scanner.ReadString('\n')
	// Typical footer: =yend size=12345 part=1 pcrc32=ABC12345
	var fallback string
	for _, part := range strings.Fields(line) {
		if v, ok := strings.CutPrefix(part, "pcrc32="); ok {
			d.setCRC(v)
			return
		}
		if v, ok := strings.CutPrefix(part, "crc32="); ok {
			fallback = v
		}
	}
	if fallback != "" {
		d.setCRC(fallback)
	}
}

func (d *YencDecoder) setCRC(v string) {
	crc, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return
	}
	d.expectedCRC = uint32(crc)
	d.hasCRC = true
}
