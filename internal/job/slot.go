package job

import (
	"errors"
	"sync"
	"time"

	"github.com/datallboy/newsflow/internal/domain"
	"github.com/datallboy/newsflow/internal/queue"
	"github.com/segmentio/ksuid"
)

var ErrNoInputs = errors.New("slot has no inputs")

// Options tune how a Slot's results are handled.
type Options struct {
	// Decode runs article decoding on every result.
	Decode bool
	// OutDir receives finished files. Empty keeps results in memory only.
	OutDir string
}

// Slot is one download job.
type Slot struct {
	ID      int64
	SID     string
	Name    string
	Options Options
	Created time.Time

	files *queue.Queue[*File]
	stats *Stats

	mu         sync.Mutex
	status     SlotStatus
	statusLine string
	finished   time.Time
	signal     chan struct{}
}

func NewSlot(name string, inputs []domain.Input, opts Options) (*Slot, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}

	s := &Slot{
		SID:     ksuid.New().String(),
		Name:    name,
		Options: opts,
		Created: time.Now(),
		files:   queue.New[*File](),
		stats:   NewStats(),
		signal:  make(chan struct{}),
	}
	for _, in := range inputs {
		f, err := NewFile(in, opts.Decode)
		if err != nil {
			return nil, err
		}
		s.files.Add(f)
	}
	s.files.Seal()
	return s, nil
}

// Bind assigns the registry id and pushes it down to files and commands.
func (s *Slot) Bind(id int64) {
	s.ID = id
	for _, fid := range s.files.IDs() {
		if f, ok := s.files.Get(fid); ok {
			f.bind(id, fid)
		}
	}
}

func (s *Slot) Status() SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Slot) History() bool {
	return s.Status().History()
}

// SetStatus changes the status unless the slot is already history.
func (s *Slot) SetStatus(st SlotStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStatus(st)
}

func (s *Slot) setStatus(st SlotStatus) bool {
	if s.status.History() {
		return false
	}
	prev := s.status
	s.status = st

	switch st {
	case SlotCompleted, SlotFailed, SlotPaused:
		if st.History() {
			s.finished = time.Now()
		}
		select {
		case <-s.signal:
		default:
			close(s.signal)
		}
	default:
		if prev == SlotPaused {
			s.signal = make(chan struct{})
		}
	}
	return true
}

// Done is closed once the slot is completed, failed or paused.
func (s *Slot) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signal
}

func (s *Slot) StatusLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLine
}

func (s *Slot) Finished() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Fail moves the slot to Failed with line as the reason.
func (s *Slot) Fail(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.History() {
		return false
	}
	s.statusLine = line
	return s.setStatus(SlotFailed)
}

func (s *Slot) Files() []*File { return s.files.Items() }

func (s *Slot) File(id int64) (*File, bool) { return s.files.Get(id) }

func (s *Slot) Stats() *Stats { return s.stats }

// Take returns the next queued command of the first File that has one.
func (s *Slot) Take() (*Command, bool) {
	for _, f := range s.files.Items() {
		if c, ok := f.Take(); ok {
			return c, true
		}
	}
	return nil, false
}

// Decoded reports whether every File has been fully written.
func (s *Slot) Decoded() bool {
	for _, f := range s.files.Items() {
		if !f.Decoded() {
			return false
		}
	}
	return true
}

// Finish moves a fully decoded slot into history. It is Completed when any
// File produced data, Failed with the most frequent File reason otherwise.
func (s *Slot) Finish() bool {
	if !s.Decoded() {
		return false
	}

	files := s.files.Items()
	reasons := make([]string, 0, len(files))
	for _, f := range files {
		if f.Output().HasData() {
			return s.SetStatus(SlotCompleted)
		}
		reasons = append(reasons, f.Reason())
	}
	return s.Fail(MostFrequent(reasons))
}

func (s *Slot) Info() Info {
	info := s.stats.Snapshot()
	for _, f := range s.files.Items() {
		info.Total += f.total
		info.Size += f.Size
	}
	info.Speed = s.stats.Speed()
	return info
}
