package engine

import (
	"time"

	"github.com/datallboy/newsflow/internal/job"
)

// SlotSnapshot is a read-only view of a slot for status reporting.
type SlotSnapshot struct {
	ID          int64     `json:"id"`
	SID         string    `json:"sid"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	StatusLine  string    `json:"status_line,omitempty"`
	Files       int       `json:"files"`
	Segments    int       `json:"segments"`
	Processed   int       `json:"processed"`
	Size        int64     `json:"size"`
	Downloaded  int64     `json:"downloaded"`
	Percent     float64   `json:"percent"`
	BytesLeft   int64     `json:"bytes_left"`
	Speed       float64   `json:"speed"`
	SecondsLeft int64     `json:"seconds_left"`
	Created     time.Time `json:"created"`
	Finished    time.Time `json:"finished,omitzero"`
}

// ServerSnapshot is a read-only view of a server and its connections.
type ServerSnapshot struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	TLS         bool     `json:"tls"`
	Priority    string   `json:"priority"`
	Allowed     int      `json:"allowed"`
	Connections int      `json:"connections"`
	Enabled     int      `json:"enabled"`
	Load        int      `json:"load"`
	Downloaded  int64    `json:"downloaded"`
	Speed       float64  `json:"speed"`
	Log         []string `json:"log,omitempty"`
}

// QueueSnapshot sums up every slot and server.
type QueueSnapshot struct {
	Slots       []SlotSnapshot   `json:"slots"`
	Servers     []ServerSnapshot `json:"servers"`
	Downloading int              `json:"downloading"`
	BytesLeft   int64            `json:"bytes_left"`
	Speed       float64          `json:"speed"`
	SecondsLeft int64            `json:"seconds_left"`
}

func snapshotSlot(s *job.Slot) SlotSnapshot {
	info := s.Info()
	return SlotSnapshot{
		ID:          s.ID,
		SID:         s.SID,
		Name:        s.Name,
		Status:      s.Status().String(),
		StatusLine:  s.StatusLine(),
		Files:       len(s.Files()),
		Segments:    info.Total,
		Processed:   info.Processed,
		Size:        info.Size,
		Downloaded:  info.Downloaded,
		Percent:     info.Percentage(),
		BytesLeft:   info.BytesLeft(),
		Speed:       info.Speed,
		SecondsLeft: info.SecondsLeft(),
		Created:     s.Created,
		Finished:    s.Finished(),
	}
}

func (s *Scheduler) snapshotServer(srv *Server, withLog bool) ServerSnapshot {
	s.mu.RLock()
	load := s.load(srv.ID, s.downloading())
	s.mu.RUnlock()

	info := srv.Stats().Snapshot()
	snap := ServerSnapshot{
		ID:          srv.ID,
		Name:        srv.Name(),
		Host:        srv.Config.Host,
		Port:        srv.Config.Port,
		TLS:         srv.Config.TLS,
		Priority:    srv.Config.Priority.String(),
		Allowed:     srv.Config.Connections,
		Connections: len(s.pool.List(srv.ID)),
		Enabled:     s.pool.CountEnabled(srv.ID),
		Load:        load,
		Downloaded:  info.Downloaded,
		Speed:       srv.Stats().Speed(),
	}
	if withLog {
		snap.Log = append(srv.StatusLog(), srv.DebugLog()...)
	}
	return snap
}

// Snapshot reports every slot and server.
func (s *Scheduler) Snapshot() QueueSnapshot {
	var q QueueSnapshot
	for _, slot := range s.Slots() {
		snap := snapshotSlot(slot)
		q.Slots = append(q.Slots, snap)
		if slot.Status() == job.SlotDownloading {
			q.Downloading++
			q.BytesLeft += snap.BytesLeft
			q.Speed += snap.Speed
		}
	}
	for _, srv := range s.Servers() {
		q.Servers = append(q.Servers, s.snapshotServer(srv, false))
	}

	switch {
	case q.BytesLeft == 0:
		q.SecondsLeft = 0
	case q.Speed > 0:
		q.SecondsLeft = int64(float64(q.BytesLeft) / q.Speed)
	default:
		q.SecondsLeft = -1
	}
	return q
}
