package engine

import (
	"bytes"
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/datallboy/newsflow/internal/domain"
	"github.com/datallboy/newsflow/internal/job"
	"github.com/datallboy/newsflow/internal/nntptest"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

func newTestEngine(t *testing.T, onHistory func(*job.Slot)) *Engine {
	t.Helper()
	e := New(context.Background(), Options{
		PollInterval:   10 * time.Millisecond,
		CommandTimeout: 2 * time.Second,
		SwitchInterval: time.Millisecond,
		Rand:           rand.New(rand.NewPCG(3, 4)),
		OnHistory:      onHistory,
	})
	t.Cleanup(func() { e.Close() })
	return e
}

func serverFor(ts *nntptest.Server, conns int, prio domain.Priority) domain.ServerConfig {
	return domain.ServerConfig{Host: ts.Host(), Port: ts.Port(), Connections: conns, Priority: prio}
}

func waitHistory(t *testing.T, slot *job.Slot) {
	t.Helper()
	require.Eventually(t, slot.History, waitFor, 10*time.Millisecond, "slot stayed %s", slot.Status())
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

func TestEngine_DownloadsMultipartFile(t *testing.T) {
	ts := nntptest.NewServer(t)
	data := payload(300)
	in := domain.Input{Name: "file.bin"}
	for i := 0; i < 3; i++ {
		id := []string{"p1@test", "p2@test", "p3@test"}[i]
		part := data[i*100 : (i+1)*100]
		ts.AddArticle(id, nntptest.Yenc("file.bin", part, i+1, 3, int64(i*100+1), 300))
		in.Segments = append(in.Segments, domain.Segment{Number: i + 1, Bytes: 100, MessageID: id})
	}

	var finished atomic.Int32
	e := newTestEngine(t, func(*job.Slot) { finished.Add(1) })
	_, err := e.AddServer(serverFor(ts, 3, domain.PriorityDefault))
	require.NoError(t, err)

	out := t.TempDir()
	slot, err := e.Add("job", []domain.Input{in}, job.Options{Decode: true, OutDir: out})
	require.NoError(t, err)
	waitHistory(t, slot)

	require.Equal(t, job.SlotCompleted, slot.Status())
	file := slot.Files()[0]
	require.Equal(t, 0, file.Output().Pending())
	require.Equal(t, int64(300), file.Output().Len())

	written, err := os.ReadFile(filepath.Join(out, "file.bin"))
	require.NoError(t, err)
	require.Equal(t, data, written)

	// the bytes live on disk now, memory is given back
	require.True(t, file.Output().Released())
	require.Empty(t, file.Output().Bytes())
	require.True(t, file.Output().HasData())
	_, err = os.Stat(filepath.Join(out, "file.bin.part"))
	require.True(t, os.IsNotExist(err))

	require.Eventually(t, func() bool { return finished.Load() == 1 }, waitFor, 10*time.Millisecond)
	info := slot.Info()
	require.Equal(t, 3, info.Processed)
	require.InDelta(t, 100.0, info.Percentage(), 0.001)
	require.Equal(t, 3, ts.Count("BODY"))
}

func TestEngine_FailsOverToBackupServer(t *testing.T) {
	primary := nntptest.NewServer(t)
	backup := nntptest.NewServer(t)
	data := payload(50)
	primary.FailArticle("seg@test", "430 no such article")
	backup.AddArticle("seg@test", nntptest.Yenc("a.bin", data, 1, 1, 1, 50))

	e := newTestEngine(t, nil)
	_, err := e.AddServer(serverFor(primary, 1, domain.PriorityDefault))
	require.NoError(t, err)
	_, err = e.AddServer(serverFor(backup, 1, domain.PriorityLow))
	require.NoError(t, err)

	slot, err := e.Add("job", []domain.Input{{
		Name:     "a.bin",
		Segments: []domain.Segment{{Number: 1, Bytes: 50, MessageID: "seg@test"}},
	}}, job.Options{Decode: true})
	require.NoError(t, err)
	waitHistory(t, slot)

	require.Equal(t, job.SlotCompleted, slot.Status())
	require.Equal(t, data, slot.Files()[0].Output().Bytes())
	require.Equal(t, 1, primary.Count("BODY"))
	require.Equal(t, 1, backup.Count("BODY"))
}

func TestEngine_MissingEverywhereFailsSlot(t *testing.T) {
	a := nntptest.NewServer(t)
	b := nntptest.NewServer(t)

	e := newTestEngine(t, nil)
	_, err := e.AddServer(serverFor(a, 1, domain.PriorityDefault))
	require.NoError(t, err)
	_, err = e.AddServer(serverFor(b, 1, domain.PriorityDefault))
	require.NoError(t, err)

	slot, err := e.Add("job", []domain.Input{{
		Name:     "gone.bin",
		Segments: []domain.Segment{{Number: 1, Bytes: 10, MessageID: "gone@test"}},
	}}, job.Options{Decode: true})
	require.NoError(t, err)
	waitHistory(t, slot)

	require.Equal(t, job.SlotFailed, slot.Status())
	require.Equal(t, "no such article (430)", slot.StatusLine())
	// one attempt per server plus one
	require.Equal(t, 3, a.Count("BODY")+b.Count("BODY"))
	require.Len(t, slot.Files()[0].Log(), 1)
}

func TestEngine_LastConnectionIsNeverDisabled(t *testing.T) {
	ts := nntptest.NewServer(t)
	ts.FailArticle("busy@test", "400 too many connections")

	e := newTestEngine(t, nil)
	_, err := e.AddServer(serverFor(ts, 1, domain.PriorityDefault))
	require.NoError(t, err)

	slot, err := e.Add("job", []domain.Input{{
		Name:     "busy.bin",
		Segments: []domain.Segment{{Number: 1, Bytes: 10, MessageID: "busy@test"}},
	}}, job.Options{})
	require.NoError(t, err)
	waitHistory(t, slot)

	require.Equal(t, job.SlotFailed, slot.Status())
	require.Equal(t, "too many connections (400)", slot.StatusLine())
	require.Equal(t, 2, ts.Count("BODY"))
	require.Equal(t, 1, e.Scheduler().Pool().CountEnabled(AllServers))
	require.Equal(t, 1, e.Scheduler().Pool().Count())
}

func TestEngine_FatalErrorDisablesConnection(t *testing.T) {
	ts := nntptest.NewServer(t)
	ts.FailArticle("busy@test", "400 too many connections")

	e := newTestEngine(t, nil)
	id, err := e.AddServer(serverFor(ts, 2, domain.PriorityDefault))
	require.NoError(t, err)

	slot, err := e.Add("job", []domain.Input{{
		Name:     "busy.bin",
		Segments: []domain.Segment{{Number: 1, Bytes: 10, MessageID: "busy@test"}},
	}}, job.Options{})
	require.NoError(t, err)
	waitHistory(t, slot)

	require.Equal(t, job.SlotFailed, slot.Status())
	require.Eventually(t, func() bool { return e.Scheduler().Pool().Count() == 1 }, waitFor, 10*time.Millisecond)
	require.Equal(t, 1, e.Scheduler().Pool().CountEnabled(AllServers))

	snap, ok := e.ServerStatus(id)
	require.True(t, ok)
	require.Equal(t, 1, snap.Enabled)
	found := false
	for _, l := range snap.Log {
		if bytes.Contains([]byte(l), []byte("Error: too many connections (400)")) {
			found = true
		}
	}
	require.True(t, found, "status log: %v", snap.Log)
}

func TestEngine_Send(t *testing.T) {
	ts := nntptest.NewServer(t)
	ts.AddGroup("alt.test", "1\tfirst subject\n2\tsecond subject")

	e := newTestEngine(t, nil)
	_, err := e.AddServer(serverFor(ts, 1, domain.PriorityDefault))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	out, err := e.Send(ctx, "alt.test", []string{"XOVER 1-2"})
	require.NoError(t, err)
	require.Equal(t, "224 overview follows\r\n1\tfirst subject\r\n2\tsecond subject\r\n.\r\n", string(out))

	// the group stays selected on the connection
	_, err = e.Send(ctx, "alt.test", []string{"XOVER 1-2"})
	require.NoError(t, err)
	require.Equal(t, 1, ts.Count("GROUP"))
	require.Equal(t, 2, ts.Count("XOVER"))
	require.Empty(t, e.Scheduler().Slots())

	_, err = e.Send(ctx, "alt.nowhere", []string{"XOVER 1-2"})
	require.EqualError(t, err, "no such group (411)")
}

func TestEngine_SendRejectsLineBreaks(t *testing.T) {
	ts := nntptest.NewServer(t)
	ts.AddGroup("alt.test", "1\tsubject")

	e := newTestEngine(t, nil)
	_, err := e.AddServer(serverFor(ts, 1, domain.PriorityDefault))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	_, err = e.Send(ctx, "alt.test", []string{"XOVER 1-1\r\nQUIT"})
	require.ErrorIs(t, err, ErrLineBreak)
	_, err = e.Send(ctx, "alt.test\nDATE", []string{"XOVER 1-1"})
	require.ErrorIs(t, err, ErrLineBreak)
	require.Zero(t, ts.Count("XOVER"))
	require.Empty(t, e.Scheduler().Slots())

	_, err = e.Send(ctx, "alt.test", []string{"XOVER 1-1"})
	require.NoError(t, err)
}

func TestEngine_SendWithoutServers(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.Send(context.Background(), "alt.test", []string{"XOVER 1-2"})
	require.ErrorIs(t, err, ErrNoServers)
}

func TestEngine_EmptyPoolPausesSlots(t *testing.T) {
	ts := nntptest.NewServer(t)

	e := newTestEngine(t, nil)
	// a low priority server never picks fresh work, so the slot waits
	id, err := e.AddServer(serverFor(ts, 1, domain.PriorityLow))
	require.NoError(t, err)

	slot, err := e.Add("job", testInputs(1, 2), job.Options{})
	require.NoError(t, err)
	require.Equal(t, job.SlotDownloading, slot.Status())

	require.NoError(t, e.RemoveServer(id))
	require.Eventually(t, func() bool { return slot.Status() == job.SlotPaused }, waitFor, 10*time.Millisecond)
	require.ErrorIs(t, e.RemoveServer(id), ErrNotFound)
}

func TestEngine_CancelledCommandReturnsToItsFile(t *testing.T) {
	stalling := nntptest.NewServer(t)
	stalling.StallArticle("seg@test")

	e := newTestEngine(t, nil)
	id, err := e.AddServer(serverFor(stalling, 1, domain.PriorityDefault))
	require.NoError(t, err)

	data := payload(80)
	slot, err := e.Add("job", []domain.Input{{
		Name:     "a.bin",
		Segments: []domain.Segment{{Number: 1, Bytes: 80, MessageID: "seg@test"}},
	}}, job.Options{Decode: true})
	require.NoError(t, err)

	file := slot.Files()[0]
	require.Eventually(t, func() bool { return stalling.Count("BODY") == 1 }, waitFor, 5*time.Millisecond)
	require.Zero(t, file.Queued())

	// pull the server while BODY is still unanswered
	require.NoError(t, e.RemoveServer(id))
	require.Eventually(t, func() bool { return slot.Status() == job.SlotPaused }, waitFor, 10*time.Millisecond)
	require.Equal(t, 1, file.Queued())

	working := nntptest.NewServer(t)
	working.AddArticle("seg@test", nntptest.Yenc("a.bin", data, 1, 1, 1, 80))
	_, err = e.AddServer(serverFor(working, 1, domain.PriorityDefault))
	require.NoError(t, err)
	require.NoError(t, e.Resume(slot.ID))

	waitHistory(t, slot)
	require.Equal(t, job.SlotCompleted, slot.Status())
	require.Equal(t, data, file.Output().Bytes())
	require.Equal(t, 1, working.Count("BODY"))
}

func TestEngine_PauseResumeRemove(t *testing.T) {
	e := newTestEngine(t, nil)
	slot, err := e.Add("job", testInputs(1, 1), job.Options{})
	require.NoError(t, err)

	require.NoError(t, e.Pause(slot.ID))
	require.Equal(t, job.SlotPaused, slot.Status())
	require.NoError(t, e.Resume(slot.ID))
	require.Equal(t, job.SlotDownloading, slot.Status())

	snap, ok := e.SlotStatus(slot.ID)
	require.True(t, ok)
	require.Equal(t, "Downloading", snap.Status)
	require.Equal(t, slot.SID, snap.SID)
	got, ok := e.SlotBySID(slot.SID)
	require.True(t, ok)
	require.Same(t, slot, got)

	require.NoError(t, e.Remove(slot.ID))
	require.ErrorIs(t, e.Remove(slot.ID), ErrNotFound)
	require.ErrorIs(t, e.Pause(slot.ID), ErrNotFound)
}

func TestEngine_CloseIsIdempotent(t *testing.T) {
	ts := nntptest.NewServer(t)
	e := newTestEngine(t, nil)
	_, err := e.AddServer(serverFor(ts, 2, domain.PriorityDefault))
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	require.Zero(t, e.Scheduler().Pool().Count())

	_, err = e.AddServer(serverFor(ts, 1, domain.PriorityDefault))
	require.ErrorIs(t, err, ErrClosed)
	_, err = e.Add("job", testInputs(1, 1), job.Options{})
	require.ErrorIs(t, err, ErrClosed)
}

func TestEngine_StatusSnapshot(t *testing.T) {
	ts := nntptest.NewServer(t)
	e := newTestEngine(t, nil)
	_, err := e.AddServer(domain.ServerConfig{Name: "news", Host: ts.Host(), Port: ts.Port(), Connections: 2, Priority: domain.PriorityLow})
	require.NoError(t, err)

	_, err = e.Add("job", testInputs(2, 2), job.Options{})
	require.NoError(t, err)

	q := e.Status()
	require.Len(t, q.Slots, 1)
	require.Len(t, q.Servers, 1)
	require.Equal(t, 1, q.Downloading)
	require.Equal(t, int64(400), q.BytesLeft)
	require.Equal(t, "news", q.Servers[0].Name)
	require.Equal(t, "low", q.Servers[0].Priority)
	require.Equal(t, 2, q.Servers[0].Allowed)
	require.Equal(t, 4, q.Slots[0].Segments)
}
