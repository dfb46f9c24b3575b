package engine

import (
	"github.com/datallboy/newsflow/internal/queue"
)

// AllServers selects every server in pool and scheduler operations.
const AllServers int64 = -1

// Pool is the registry of live connections.
type Pool struct {
	conns *queue.Queue[*Connection]
}

func NewPool() *Pool {
	return &Pool{conns: queue.New[*Connection]()}
}

func (p *Pool) Add(c *Connection) int64 {
	c.ID = p.conns.Add(c)
	return c.ID
}

func (p *Pool) Remove(id int64) (*Connection, bool) {
	return p.conns.Remove(id)
}

func (p *Pool) Get(id int64) (*Connection, bool) {
	return p.conns.Get(id)
}

func (p *Pool) Count() int { return p.conns.Len() }

// List returns the connections of serverID, or all with AllServers.
func (p *Pool) List(serverID int64) []*Connection {
	all := p.conns.Items()
	if serverID == AllServers {
		return all
	}
	out := all[:0]
	for _, c := range all {
		if c.ServerID == serverID {
			out = append(out, c)
		}
	}
	return out
}

// CountEnabled counts enabled connections of serverID, or of the whole pool
// with AllServers.
func (p *Pool) CountEnabled(serverID int64) int {
	n := 0
	for _, c := range p.List(serverID) {
		if c.Enabled() {
			n++
		}
	}
	return n
}

// Wake interrupts the idle wait of every enabled connection.
func (p *Pool) Wake() {
	for _, c := range p.conns.Items() {
		if c.Enabled() {
			c.Wake()
		}
	}
}

// Cancel stops and deregisters the connections of serverID.
func (p *Pool) Cancel(serverID int64) int {
	n := 0
	for _, c := range p.List(serverID) {
		c.Cancel()
		if _, ok := p.conns.Remove(c.ID); ok {
			n++
		}
	}
	return n
}
