package store

import (
	"time"

	"github.com/datallboy/newsflow/internal/job"
)

// Record is one slot that reached History.
type Record struct {
	SID        string    `json:"sid"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	StatusLine string    `json:"status_line"`
	Files      int       `json:"files"`
	Segments   int       `json:"segments"`
	Size       int64     `json:"size"`
	Downloaded int64     `json:"downloaded"`
	OutDir     string    `json:"out_dir,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// FromSlot captures the final state of a slot.
func FromSlot(s *job.Slot) Record {
	info := s.Info()
	finished := s.Finished()
	if finished.IsZero() {
		finished = time.Now()
	}
	return Record{
		SID:        s.SID,
		Name:       s.Name,
		Status:     s.Status().String(),
		StatusLine: s.StatusLine(),
		Files:      len(s.Files()),
		Segments:   info.Total,
		Size:       info.Size,
		Downloaded: info.Downloaded,
		OutDir:     s.Options.OutDir,
		CreatedAt:  s.Created,
		FinishedAt: finished,
	}
}

// historyDBO maps to the history table
type historyDBO struct {
	SID        string `db:"sid"`
	Name       string `db:"name"`
	Status     string `db:"status"`
	StatusLine string `db:"status_line"`
	Files      int    `db:"files"`
	Segments   int    `db:"segments"`
	Size       int64  `db:"size"`
	Downloaded int64  `db:"downloaded"`
	OutDir     string `db:"out_dir"`
	CreatedAt  int64  `db:"created_at"`
	FinishedAt int64  `db:"finished_at"`
}

// Mapper: DBO to Record
func (h *historyDBO) ToRecord() Record {
	return Record{
		SID:        h.SID,
		Name:       h.Name,
		Status:     h.Status,
		StatusLine: h.StatusLine,
		Files:      h.Files,
		Segments:   h.Segments,
		Size:       h.Size,
		Downloaded: h.Downloaded,
		OutDir:     h.OutDir,
		CreatedAt:  time.UnixMilli(h.CreatedAt),
		FinishedAt: time.UnixMilli(h.FinishedAt),
	}
}

// Mapper: Record to DBO
func (h *historyDBO) FromRecord(r Record) {
	h.SID = r.SID
	h.Name = r.Name
	h.Status = r.Status
	h.StatusLine = r.StatusLine
	h.Files = r.Files
	h.Segments = r.Segments
	h.Size = r.Size
	h.Downloaded = r.Downloaded
	h.OutDir = r.OutDir
	h.CreatedAt = r.CreatedAt.UnixMilli()
	h.FinishedAt = r.FinishedAt.UnixMilli()
}

func (h *historyDBO) fields() []any {
	return []any{
		&h.SID, &h.Name, &h.Status, &h.StatusLine, &h.Files, &h.Segments,
		&h.Size, &h.Downloaded, &h.OutDir, &h.CreatedAt, &h.FinishedAt,
	}
}
