package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/datallboy/newsflow/internal/domain"
	"github.com/datallboy/newsflow/internal/job"
	"github.com/datallboy/newsflow/internal/nntp"
)

const maxServerLog = 500

// Server is a registered upstream. Only its logs and counters change after
// registration.
type Server struct {
	ID     int64
	Config domain.ServerConfig

	stats  *job.Stats
	debug  *ring
	status *ring
}

func newServer(cfg domain.ServerConfig) *Server {
	return &Server{
		Config: cfg,
		stats:  job.NewStats(),
		debug:  newRing(maxServerLog),
		status: newRing(maxServerLog),
	}
}

func (s *Server) Name() string {
	if s.Config.Name != "" {
		return s.Config.Name
	}
	return s.Config.Host
}

func (s *Server) Stats() *job.Stats { return s.stats }

// Debugf records a protocol line.
func (s *Server) Debugf(format string, v ...any) {
	s.debug.add(fmt.Sprintf(format, v...))
}

// Statusf records an event worth showing to users.
func (s *Server) Statusf(format string, v ...any) {
	s.status.add(fmt.Sprintf(format, v...))
}

// LogError records a command failure against this server.
func (s *Server) LogError(c *job.Command, err *nntp.Error) {
	msg := "Unknown"
	if err != nil {
		msg = err.Error()
	}
	s.Statusf("Command #%d - Error %s", c.Index, msg)
}

func (s *Server) DebugLog() []string  { return s.debug.lines() }
func (s *Server) StatusLog() []string { return s.status.lines() }

type ring struct {
	mu    sync.Mutex
	max   int
	buf   []string
	start int
}

func newRing(max int) *ring {
	return &ring{max: max}
}

func (r *ring) add(line string) {
	line = time.Now().Format("2006-01-02 15:04:05") + " " + line

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) < r.max {
		r.buf = append(r.buf, line)
		return
	}
	r.buf[r.start] = line
	r.start = (r.start + 1) % r.max
}

// lines returns the entries oldest first.
func (r *ring) lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.buf))
	out = append(out, r.buf[r.start:]...)
	return append(out, r.buf[:r.start]...)
}
