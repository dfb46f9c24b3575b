package job

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/datallboy/newsflow/internal/queue"
)

var (
	ErrDuplicate = errors.New("segment already stored")
	ErrCorrupt   = errors.New("segment overlaps written data")
)

// maxGap bounds the zero padding written for a single missing range.
const maxGap = 64 << 20

// Output writes command results of one File in index order. Results that
// arrive early wait in pending until every earlier index has been stored.
type Output struct {
	mu       sync.Mutex
	total    int64
	next     int64
	offset   int64
	buf      bytes.Buffer
	pending  *queue.Queue[*Command]
	finished bool
	released bool
	written  int
}

// NewOutput expects total results. The buffer grows as results are
// written, the declared file size is never reserved up front.
func NewOutput(total int) *Output {
	return &Output{
		total:    int64(total),
		next:     1,
		pending:  queue.New[*Command](),
		finished: total == 0,
	}
}

// Store hands over the result for index. Failed commands still count so
// the File can finish; they only contribute no bytes. A corrupt write is
// reported but does not stop later results from being written.
func (o *Output) Store(index int64, c *Command) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if index < 1 || index > o.total {
		return fmt.Errorf("segment index %d out of range 1..%d", index, o.total)
	}
	if o.finished || index < o.next {
		return fmt.Errorf("%w: index %d", ErrDuplicate, index)
	}
	if index > o.next {
		if !o.pending.Put(index, c) {
			return fmt.Errorf("%w: index %d", ErrDuplicate, index)
		}
		return nil
	}

	err := o.write(c)
	o.next++
	for {
		p, ok := o.pending.Remove(o.next)
		if !ok {
			break
		}
		if werr := o.write(p); werr != nil && err == nil {
			err = werr
		}
		o.next++
	}

	if o.next > o.total {
		o.finished = true
	}
	return err
}

func (o *Output) write(c *Command) error {
	if c == nil || c.Data == nil || c.Status() != CommandCompleted {
		return nil
	}

	if c.Begin > 0 {
		start := c.Begin - 1
		if start < o.offset {
			return fmt.Errorf("%w: segment %d begins at %d, output is at %d", ErrCorrupt, c.Index, start, o.offset)
		}
		gap := start - o.offset
		if gap > maxGap {
			return fmt.Errorf("%w: segment %d leaves a gap of %d bytes", ErrCorrupt, c.Index, gap)
		}
		if gap > 0 {
			o.buf.Write(make([]byte, gap))
			o.offset += gap
		}
	}

	n, _ := o.buf.Write(c.Data)
	o.offset += int64(n)
	o.written++
	return nil
}

func (o *Output) Finished() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.finished
}

// Pending is the number of results waiting for an earlier index.
func (o *Output) Pending() int {
	return o.pending.Len()
}

// HasData reports whether any command contributed bytes.
func (o *Output) HasData() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.written > 0
}

func (o *Output) Len() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.offset
}

// Bytes returns the assembled output. The slice must not be modified.
func (o *Output) Bytes() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Bytes()
}

// Release drops the assembled bytes once they live somewhere else. Len and
// HasData keep reporting what was written.
func (o *Output) Release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf = bytes.Buffer{}
	o.released = true
}

// Released reports whether Release was called.
func (o *Output) Released() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.released
}
