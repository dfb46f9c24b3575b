package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const historyColumns = `sid, name, status, status_line, files, segments, size, downloaded, out_dir, created_at, finished_at`

// SaveRecord inserts or replaces a history entry keyed by SID.
func (s *PersistentStore) SaveRecord(ctx context.Context, r Record) error {
	if r.SID == "" {
		return errors.New("history record requires a sid")
	}

	var dbo historyDBO
	dbo.FromRecord(r)

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sid) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			status_line = excluded.status_line,
			files = excluded.files,
			segments = excluded.segments,
			size = excluded.size,
			downloaded = excluded.downloaded,
			out_dir = excluded.out_dir,
			finished_at = excluded.finished_at`),
		dbo.SID, dbo.Name, dbo.Status, dbo.StatusLine, dbo.Files, dbo.Segments,
		dbo.Size, dbo.Downloaded, dbo.OutDir, dbo.CreatedAt, dbo.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save history %s: %w", r.SID, err)
	}
	return nil
}

// GetRecord fetches a single history entry
func (s *PersistentStore) GetRecord(ctx context.Context, sid string) (Record, error) {
	var dbo historyDBO
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+historyColumns+` FROM history WHERE sid = ? LIMIT 1`), sid).
		Scan(dbo.fields()...)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return dbo.ToRecord(), nil
}

// ListRecords returns the most recently finished entries first. A limit of
// zero or less returns everything.
func (s *PersistentStore) ListRecords(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + historyColumns + ` FROM history ORDER BY finished_at DESC, sid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var dbo historyDBO
		if err := rows.Scan(dbo.fields()...); err != nil {
			return nil, err
		}
		out = append(out, dbo.ToRecord())
	}
	return out, rows.Err()
}

func (s *PersistentStore) DeleteRecord(ctx context.Context, sid string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM history WHERE sid = ?`), sid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
