package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/datallboy/newsflow/internal/nntp"
	"golang.org/x/time/rate"
)

// Connection is one worker slot of a Server. It refers to its Server by id
// only; the scheduler resolves it when needed.
type Connection struct {
	ID       int64
	ServerID int64

	ctx     context.Context
	cancel  context.CancelFunc
	idle    chan struct{}
	enabled atomic.Bool

	transport nntp.Transport
	session   *nntp.Session

	// limiter paces this connection's SwitchStack retries.
	limiter *rate.Limiter
}

func newConnection(parent context.Context, srv *Server, t nntp.Transport, timeout, switchEvery time.Duration) *Connection {
	ctx, cancel := context.WithCancel(parent)
	c := &Connection{
		ServerID:  srv.ID,
		ctx:       ctx,
		cancel:    cancel,
		idle:      make(chan struct{}, 1),
		transport: t,
		session:   nntp.NewSession(srv.Config, t),
		limiter:   rate.NewLimiter(rate.Every(switchEvery), 1),
	}
	if timeout > 0 {
		c.session.Timeout = timeout
	}
	c.session.Logf = srv.Debugf
	c.enabled.Store(true)
	return c
}

func (c *Connection) Enabled() bool { return c.enabled.Load() }

func (c *Connection) Disable() { c.enabled.Store(false) }

// Cancel stops the worker. The flag is cleared first so nothing new is
// dispatched to it.
func (c *Connection) Cancel() {
	c.enabled.Store(false)
	c.cancel()
}

func (c *Connection) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Wake interrupts an idle wait.
func (c *Connection) Wake() {
	select {
	case c.idle <- struct{}{}:
	default:
	}
}

// wait blocks until woken, cancelled or d has passed.
func (c *Connection) wait(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-c.idle:
	case <-c.ctx.Done():
	case <-t.C:
	}
}

// close says goodbye to the server and releases the transport.
func (c *Connection) close() {
	c.session.Quit()
	if s, ok := c.transport.(interface{ Shutdown() }); ok {
		s.Shutdown()
	}
}
