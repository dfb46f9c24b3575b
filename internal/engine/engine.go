package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/datallboy/newsflow/internal/domain"
	"github.com/datallboy/newsflow/internal/infra/logger"
	"github.com/datallboy/newsflow/internal/job"
)

var (
	ErrClosed   = errors.New("engine is closed")
	ErrNotFound = errors.New("not found")
	ErrPaused   = errors.New("slot paused")

	// ErrLineBreak rejects request lines that would put more than one
	// command on the wire.
	ErrLineBreak = errors.New("request line contains CR or LF")

	ErrNoServers = domain.ErrNoServers
)

// Engine runs the scheduler and its connection workers.
type Engine struct {
	opts   Options
	sched  *Scheduler
	writer *FileWriter
	log    *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates an engine whose workers live until ctx is cancelled or Close
// is called.
func New(ctx context.Context, opts Options) *Engine {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)

	e := &Engine{
		opts:   opts,
		writer: NewFileWriter(),
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	e.sched = NewScheduler(ctx, opts)
	e.sched.spawn = e.spawn
	return e
}

func (e *Engine) spawn(c *Connection) {
	e.wg.Add(1)
	go e.run(c)
}

func (e *Engine) Scheduler() *Scheduler { return e.sched }

func (e *Engine) AddServer(cfg domain.ServerConfig) (int64, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	srv, err := e.sched.AddServer(cfg)
	if err != nil {
		return 0, err
	}
	return srv.ID, nil
}

// RemoveServer drops one server, or all of them with AllServers.
func (e *Engine) RemoveServer(id int64) error {
	if !e.sched.RemoveServer(id) {
		return fmt.Errorf("server %d: %w", id, ErrNotFound)
	}
	return nil
}

// Add queues a new slot built from inputs and returns it without waiting.
func (e *Engine) Add(name string, inputs []domain.Input, opts job.Options) (*job.Slot, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	slot, err := job.NewSlot(name, inputs, opts)
	if err != nil {
		return nil, err
	}
	e.AddSlot(slot)
	return slot, nil
}

func (e *Engine) AddSlot(slot *job.Slot) int64 {
	id := e.sched.AddSlot(slot)
	e.log.Info("Slot #%d %s queued (%d files)", id, slot.Name, len(slot.Files()))
	return id
}

// Send runs lines against the servers, after selecting group when one is
// given, and returns the raw response of the last line.
func (e *Engine) Send(ctx context.Context, group string, lines []string) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if e.sched.pool.CountEnabled(AllServers) == 0 {
		return nil, ErrNoServers
	}
	if group == "" && len(lines) == 0 {
		return nil, errors.New("nothing to send")
	}
	for _, l := range append([]string{group}, lines...) {
		if strings.ContainsAny(l, "\r\n") {
			return nil, fmt.Errorf("%w: %q", ErrLineBreak, l)
		}
	}

	req := make([]string, 0, len(lines)+1)
	if group != "" {
		req = append(req, "GROUP "+group)
	}
	req = append(req, lines...)

	in := domain.Input{Name: "send", Segments: []domain.Segment{{Number: 1, Lines: req}}}
	slot, err := job.NewSlot("send", []domain.Input{in}, job.Options{})
	if err != nil {
		return nil, err
	}
	id := e.AddSlot(slot)
	defer e.sched.RemoveSlot(id)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.ctx.Done():
		return nil, ErrClosed
	case <-slot.Done():
	}

	switch slot.Status() {
	case job.SlotCompleted:
		files := slot.Files()
		return files[len(files)-1].Output().Bytes(), nil
	case job.SlotPaused:
		return nil, ErrPaused
	}
	if line := slot.StatusLine(); line != "" {
		return nil, errors.New(line)
	}
	return nil, errors.New("Unknown")
}

func (e *Engine) Slot(id int64) (*job.Slot, bool) { return e.sched.Slot(id) }

// SlotBySID looks a slot up by its external id.
func (e *Engine) SlotBySID(sid string) (*job.Slot, bool) {
	for _, s := range e.sched.Slots() {
		if s.SID == sid {
			return s, true
		}
	}
	return nil, false
}

func (e *Engine) Pause(id int64) error {
	slot, ok := e.sched.Slot(id)
	if !ok {
		return fmt.Errorf("slot %d: %w", id, ErrNotFound)
	}
	if !slot.SetStatus(job.SlotPaused) {
		return fmt.Errorf("slot %d is %s", id, slot.Status())
	}
	return nil
}

func (e *Engine) Resume(id int64) error {
	slot, ok := e.sched.Slot(id)
	if !ok {
		return fmt.Errorf("slot %d: %w", id, ErrNotFound)
	}
	if !slot.SetStatus(job.SlotDownloading) {
		return fmt.Errorf("slot %d is %s", id, slot.Status())
	}
	e.Notify()
	return nil
}

func (e *Engine) Remove(id int64) error {
	if _, ok := e.sched.RemoveSlot(id); !ok {
		return fmt.Errorf("slot %d: %w", id, ErrNotFound)
	}
	return nil
}

// Notify wakes idle connections so they look for work right away.
func (e *Engine) Notify() { e.sched.pool.Wake() }

func (e *Engine) Status() QueueSnapshot { return e.sched.Snapshot() }

func (e *Engine) SlotStatus(id int64) (SlotSnapshot, bool) {
	slot, ok := e.sched.Slot(id)
	if !ok {
		return SlotSnapshot{}, false
	}
	return snapshotSlot(slot), true
}

func (e *Engine) ServerStatus(id int64) (ServerSnapshot, bool) {
	srv, ok := e.sched.Server(id)
	if !ok {
		return ServerSnapshot{}, false
	}
	return e.sched.snapshotServer(srv, true), true
}

// Close stops every connection and waits for the workers. It is safe to
// call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.sched.RemoveServer(AllServers)
		e.cancel()
		e.wg.Wait()
		e.writer.CloseAll()
		e.log.Info("Engine stopped")
	})
	return nil
}
