package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/datallboy/newsflow/internal/domain"
	"github.com/datallboy/newsflow/internal/job"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*PersistentStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "history.db")
	s, err := NewPersistentStore(DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestNewPersistentStore_Migrations(t *testing.T) {
	s, path := newTestStore(t)

	v, err := s.SchemaVersion()
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.NoError(t, s.Close())

	// reopening must not re-apply anything
	s2, err := NewPersistentStore(DriverSQLite, path)
	require.NoError(t, err)
	defer s2.Close()
	v, err = s2.SchemaVersion()
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestNewPersistentStore_MigrationsRollBack(t *testing.T) {
	s, _ := newTestStore(t)

	m, err := s.migrator()
	require.NoError(t, err)
	require.NoError(t, m.Down())

	v, err := s.SchemaVersion()
	require.NoError(t, err)
	require.Zero(t, v)

	require.NoError(t, s.RunMigrations())
	v, err = s.SchemaVersion()
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestNewPersistentStore_UnknownDriver(t *testing.T) {
	_, err := NewPersistentStore("mysql", "x")
	require.ErrorContains(t, err, "unknown store driver")
}

func TestHistory_SaveGetList(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	for i, sid := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveRecord(ctx, Record{
			SID:        sid,
			Name:       "job " + sid,
			Status:     "Completed",
			Files:      1,
			Segments:   3,
			Size:       300,
			Downloaded: 300,
			CreatedAt:  base,
			FinishedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := s.GetRecord(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "job b", got.Name)
	require.Equal(t, int64(300), got.Size)
	require.True(t, got.FinishedAt.Equal(base.Add(time.Second)))

	list, err := s.ListRecords(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "c", list[0].SID)
	require.Equal(t, "a", list[2].SID)

	list, err = s.ListRecords(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// upsert replaces by sid
	require.NoError(t, s.SaveRecord(ctx, Record{
		SID:        "a",
		Name:       "job a",
		Status:     "Failed",
		StatusLine: "no such article (430)",
		CreatedAt:  base,
		FinishedAt: base.Add(time.Minute),
	}))
	got, err = s.GetRecord(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "Failed", got.Status)
	require.Equal(t, "no such article (430)", got.StatusLine)

	list, err = s.ListRecords(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "a", list[0].SID)

	require.NoError(t, s.DeleteRecord(ctx, "a"))
	_, err = s.GetRecord(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.DeleteRecord(ctx, "a"), ErrNotFound)
}

func TestHistory_SaveRequiresSID(t *testing.T) {
	s, _ := newTestStore(t)
	require.Error(t, s.SaveRecord(context.Background(), Record{Name: "x"}))
}

func TestFromSlot(t *testing.T) {
	slot, err := job.NewSlot("release", []domain.Input{{
		Name: "a.bin",
		Segments: []domain.Segment{
			{Number: 1, Bytes: 100, MessageID: "1@test"},
			{Number: 2, Bytes: 50, MessageID: "2@test"},
		},
	}}, job.Options{OutDir: "/tmp/out"})
	require.NoError(t, err)
	require.True(t, slot.Fail("no such article (430)"))

	r := FromSlot(slot)
	require.Equal(t, slot.SID, r.SID)
	require.Equal(t, "release", r.Name)
	require.Equal(t, "Failed", r.Status)
	require.Equal(t, "no such article (430)", r.StatusLine)
	require.Equal(t, 1, r.Files)
	require.Equal(t, 2, r.Segments)
	require.Equal(t, int64(150), r.Size)
	require.Equal(t, "/tmp/out", r.OutDir)
	require.False(t, r.FinishedAt.IsZero())

	s, _ := newTestStore(t)
	require.NoError(t, s.SaveRecord(context.Background(), r))
	got, err := s.GetRecord(context.Background(), slot.SID)
	require.NoError(t, err)
	require.Equal(t, r.Name, got.Name)
}

func TestRebindDollar(t *testing.T) {
	require.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", rebindDollar("SELECT * FROM t WHERE a = ? AND b = ?"))
	require.Equal(t, "SELECT '?' WHERE a = $1", rebindDollar("SELECT '?' WHERE a = ?"))
}
