package job

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/datallboy/newsflow/internal/domain"
	"github.com/datallboy/newsflow/internal/queue"
)

const maxFileLog = 500

// File is one named artifact of a Slot.
type File struct {
	ID     int64
	SlotID int64
	Name   string
	Size   int64

	commands *queue.Queue[*Command]
	output   *Output
	stats    *Stats
	total    int

	mu      sync.Mutex
	log     []string
	reasons []string

	decoded atomic.Bool
}

// NewFile builds the command queue for in. Commands keep the order of the
// segments, starting at index 1.
func NewFile(in domain.Input, decode bool) (*File, error) {
	if len(in.Segments) == 0 {
		return nil, fmt.Errorf("%s: %w", in.Name, domain.ErrNoSegments)
	}

	f := &File{
		Name:     in.Name,
		Size:     in.TotalSize(),
		commands: queue.New[*Command](),
		stats:    NewStats(),
		total:    len(in.Segments),
	}
	for i, seg := range in.Segments {
		c := NewCommand(seg.Requests(), seg.Bytes)
		c.Index = int64(i + 1)
		c.Decode = decode
		f.commands.Put(c.Index, c)
	}
	f.commands.Seal()
	f.output = NewOutput(f.total)
	return f, nil
}

func (f *File) bind(slotID, fileID int64) {
	f.SlotID = slotID
	f.ID = fileID
	for _, c := range f.commands.Items() {
		c.SlotID = slotID
		c.FileID = fileID
	}
}

// Take removes the next queued command.
func (f *File) Take() (*Command, bool) {
	c, _, ok := f.commands.Take()
	return c, ok
}

// Requeue puts a command back under its own index.
func (f *File) Requeue(c *Command) bool {
	c.Requeue()
	return f.commands.Put(c.Index, c)
}

func (f *File) Queued() int { return f.commands.Len() }

func (f *File) Output() *Output { return f.output }

func (f *File) Stats() *Stats { return f.stats }

// LogError records the failure of c.
func (f *File) LogError(c *Command) {
	msg := "Unknown"
	if c.Err != nil {
		msg = c.Err.Error()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, msg)
	f.log = append(f.log, fmt.Sprintf("#%d: %s", c.Index, msg))
	if len(f.log) > maxFileLog {
		f.log = f.log[len(f.log)-maxFileLog:]
	}
}

func (f *File) Log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

// Reason is the most frequent error of the File's commands.
func (f *File) Reason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return MostFrequent(f.reasons)
}

func (f *File) Decoded() bool { return f.decoded.Load() }

// MarkDecoded flips the file to decoded and reports whether this call did it.
func (f *File) MarkDecoded() bool { return f.decoded.CompareAndSwap(false, true) }

func (f *File) Info() Info {
	info := f.stats.Snapshot()
	info.Total = f.total
	info.Size = f.Size
	info.Speed = f.stats.Speed()
	return info
}
