package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/datallboy/newsflow/internal/domain"
	"github.com/datallboy/newsflow/internal/infra/logger"
	"github.com/datallboy/newsflow/internal/job"
	"github.com/datallboy/newsflow/internal/nntp"
	"github.com/datallboy/newsflow/internal/queue"
)

// Stack holds commands that must be retried against one server for one
// slot.
type Stack struct {
	ServerID int64
	SlotID   int64
	commands *queue.Queue[*job.Command]
}

func newStack(serverID, slotID int64) *Stack {
	return &Stack{ServerID: serverID, SlotID: slotID, commands: queue.New[*job.Command]()}
}

func (s *Stack) Add(c *job.Command) { s.commands.Add(c) }

func (s *Stack) Take() (*job.Command, bool) {
	c, _, ok := s.commands.Take()
	return c, ok
}

func (s *Stack) Len() int { return s.commands.Len() }

type stackKey struct {
	server int64
	slot   int64
}

// Scheduler owns the server, slot and stack registries and decides which
// connection runs which command.
type Scheduler struct {
	opts Options
	ctx  context.Context
	log  *logger.Logger

	mu      sync.RWMutex
	servers *queue.Queue[*Server]
	slots   *queue.Queue[*job.Slot]
	stacks  map[stackKey]*Stack
	pool    *Pool

	rngMu sync.Mutex
	rng   *rand.Rand

	// spawn starts the worker of a new connection. Nil leaves connections
	// registered but idle.
	spawn func(*Connection)
}

func NewScheduler(ctx context.Context, opts Options) *Scheduler {
	opts = opts.withDefaults()
	return &Scheduler{
		opts:    opts,
		ctx:     ctx,
		log:     opts.Logger,
		servers: queue.New[*Server](),
		slots:   queue.New[*job.Slot](),
		stacks:  make(map[stackKey]*Stack),
		pool:    NewPool(),
		rng:     opts.Rand,
	}
}

func (s *Scheduler) Pool() *Pool { return s.pool }

// AddServer registers cfg and starts one connection per allowed slot.
func (s *Scheduler) AddServer(cfg domain.ServerConfig) (*Server, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("server has no host")
	}
	if cfg.Connections <= 0 {
		return nil, fmt.Errorf("server %s: connections must be positive", cfg.Host)
	}

	s.mu.Lock()
	srv := newServer(cfg)
	srv.ID = s.servers.Add(srv)

	conns := make([]*Connection, 0, cfg.Connections)
	for i := 0; i < cfg.Connections; i++ {
		c := newConnection(s.ctx, srv, s.opts.Transport(), s.opts.CommandTimeout, s.opts.SwitchInterval)
		s.pool.Add(c)
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.log.Info("Server #%d %s added with %d connections (%s priority)", srv.ID, cfg.Address(), cfg.Connections, cfg.Priority)
	if s.spawn != nil {
		for _, c := range conns {
			s.spawn(c)
		}
	}
	return srv, nil
}

// RemoveServer cancels the connections of id, or of every server with
// AllServers, and drops their stacks. Stacked commands go back to their
// files so other servers can still take them.
func (s *Scheduler) RemoveServer(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != AllServers && !s.servers.Contains(id) {
		return false
	}

	s.pool.Cancel(id)
	for key, st := range s.stacks {
		if id != AllServers && key.server != id {
			continue
		}
		delete(s.stacks, key)
		s.requeueStack(st)
	}

	if id == AllServers {
		s.servers.Clear()
	} else {
		s.servers.Remove(id)
	}
	return true
}

func (s *Scheduler) requeueStack(st *Stack) {
	slot, ok := s.slots.Get(st.SlotID)
	if !ok {
		return
	}
	for {
		c, ok := st.Take()
		if !ok {
			return
		}
		if f, ok := slot.File(c.FileID); ok {
			f.Requeue(c)
		}
	}
}

func (s *Scheduler) Server(id int64) (*Server, bool) { return s.servers.Get(id) }

func (s *Scheduler) Servers() []*Server { return s.servers.Items() }

func (s *Scheduler) ServerCount() int { return s.servers.Len() }

// AddSlot registers slot and starts downloading it.
func (s *Scheduler) AddSlot(slot *job.Slot) int64 {
	s.mu.Lock()
	id := s.slots.Add(slot)
	slot.Bind(id)
	slot.SetStatus(job.SlotDownloading)
	s.mu.Unlock()

	s.pool.Wake()
	return id
}

// RemoveSlot forgets the slot and its stacks. Commands still running for it
// are discarded when they finish.
func (s *Scheduler) RemoveSlot(id int64) (*job.Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots.Remove(id)
	if !ok {
		return nil, false
	}
	for key := range s.stacks {
		if key.slot == id {
			delete(s.stacks, key)
		}
	}
	return slot, true
}

func (s *Scheduler) Slot(id int64) (*job.Slot, bool) { return s.slots.Get(id) }

func (s *Scheduler) Slots() []*job.Slot { return s.slots.Items() }

// StackSize is the number of commands waiting for server in slot.
func (s *Scheduler) StackSize(server, slot int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st := s.stacks[stackKey{server, slot}]; st != nil {
		return st.Len()
	}
	return 0
}

// FindWork returns the next command for c: first work redirected to its
// server, then, unless the server has low priority, fresh work from any
// downloading slot.
func (s *Scheduler) FindWork(c *Connection) *job.Command {
	if c == nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	srv, ok := s.servers.Get(c.ServerID)
	if !ok {
		return nil
	}

	slots := s.shuffled(s.downloading())

	if s.active(srv.ID) {
		for _, slot := range slots {
			st := s.stacks[stackKey{srv.ID, slot.ID}]
			if st == nil {
				continue
			}
			if cmd, ok := st.Take(); ok {
				return cmd
			}
		}
	}

	if srv.Config.Priority == domain.PriorityLow {
		return nil
	}

	for _, slot := range slots {
		if cmd, ok := slot.Take(); ok {
			return cmd
		}
	}
	return nil
}

// SwitchStack finds the stack a failed command of slotID should be retried
// from. It retries until a candidate accepts, and returns nil once the slot
// is gone, c is cancelled or no server can take the command.
func (s *Scheduler) SwitchStack(c *Connection, slotID int64) *Stack {
	for {
		if c.Cancelled() || !s.slots.Contains(slotID) {
			return nil
		}

		candidates := s.SmartStack(c)
		if len(candidates) == 0 {
			return nil
		}
		for _, id := range candidates {
			if st := s.stack(id, slotID); st != nil {
				return st
			}
		}

		if err := c.limiter.Wait(c.ctx); err != nil {
			return nil
		}
	}
}

// SmartStack returns the active servers, other than c's own, carrying the
// least redirected work across downloading slots, in registration order.
// When none is active it falls back to c's server if that is still active.
func (s *Scheduler) SmartStack(c *Connection) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slots := s.downloading()
	var (
		candidates []int64
		best       int
	)
	for _, srv := range s.servers.Items() {
		if srv.ID == c.ServerID || !s.active(srv.ID) {
			continue
		}
		load := s.load(srv.ID, slots)
		switch {
		case len(candidates) == 0 || load < best:
			candidates = append(candidates[:0], srv.ID)
			best = load
		case load == best:
			candidates = append(candidates, srv.ID)
		}
	}

	if len(candidates) == 0 && s.servers.Contains(c.ServerID) && s.active(c.ServerID) {
		candidates = append(candidates, c.ServerID)
	}
	return candidates
}

func (s *Scheduler) load(serverID int64, slots []*job.Slot) int {
	n := 0
	for _, slot := range slots {
		if st := s.stacks[stackKey{serverID, slot.ID}]; st != nil {
			n += st.Len()
		}
	}
	return n
}

// stack returns the stack of (serverID, slotID), creating it when both
// still exist.
func (s *Scheduler) stack(serverID, slotID int64) *Stack {
	key := stackKey{serverID, slotID}

	s.mu.RLock()
	st := s.stacks[key]
	s.mu.RUnlock()
	if st != nil {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.stacks[key]; st != nil {
		return st
	}
	if !s.servers.Contains(serverID) || !s.slots.Contains(slotID) {
		return nil
	}
	st = newStack(serverID, slotID)
	s.stacks[key] = st
	return st
}

// active reports whether serverID has an enabled connection.
func (s *Scheduler) active(serverID int64) bool {
	return s.pool.CountEnabled(serverID) > 0
}

func (s *Scheduler) downloading() []*job.Slot {
	all := s.slots.Items()
	out := all[:0]
	for _, slot := range all {
		if slot.Status() == job.SlotDownloading {
			out = append(out, slot)
		}
	}
	return out
}

func (s *Scheduler) shuffled(slots []*job.Slot) []*job.Slot {
	if len(slots) < 2 {
		return slots
	}
	s.rngMu.Lock()
	s.rng.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })
	s.rngMu.Unlock()
	return slots
}

// pauseDownloading parks every downloading slot. Used when no connection is
// left to serve them.
func (s *Scheduler) pauseDownloading() int {
	n := 0
	for _, slot := range s.slots.Items() {
		if slot.Status() == job.SlotDownloading && slot.SetStatus(job.SlotPaused) {
			n++
		}
	}
	return n
}

// Options configure an Engine and its Scheduler.
type Options struct {
	// PollInterval bounds the idle wait of a connection with no work.
	PollInterval time.Duration
	// CommandTimeout is the session watchdog.
	CommandTimeout time.Duration
	// SwitchInterval paces the SwitchStack retries of each connection.
	SwitchInterval time.Duration

	Transport func() nntp.Transport
	Rand      *rand.Rand
	Logger    *logger.Logger

	// OnHistory is called once for every slot that completes or fails.
	OnHistory func(*job.Slot)
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 5 * time.Second
	}
	if o.SwitchInterval <= 0 {
		o.SwitchInterval = 10 * time.Millisecond
	}
	if o.Transport == nil {
		o.Transport = func() nntp.Transport { return nntp.NewTCPTransport() }
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6e6e7470))
	}
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
	return o
}
