package job

import (
	"errors"
	"testing"
	"time"

	"github.com/datallboy/newsflow/internal/domain"
	"github.com/datallboy/newsflow/internal/nntp"
	"github.com/stretchr/testify/require"
)

func input(name string, sizes ...int64) domain.Input {
	in := domain.Input{Name: name}
	for i, sz := range sizes {
		in.Segments = append(in.Segments, domain.Segment{
			Number:    i + 1,
			Bytes:     sz,
			MessageID: name + "-" + string(rune('a'+i)) + "@test",
		})
	}
	return in
}

func TestNewSlot_BuildsOrderedCommands(t *testing.T) {
	s, err := NewSlot("job", []domain.Input{input("f1", 10, 20), input("f2", 30)}, Options{Decode: true})
	require.NoError(t, err)
	require.NotEmpty(t, s.SID)
	s.Bind(7)

	files := s.Files()
	require.Len(t, files, 2)
	require.Equal(t, int64(30), files[0].Size)
	require.Equal(t, int64(7), files[1].SlotID)

	c, ok := s.Take()
	require.True(t, ok)
	require.Equal(t, int64(1), c.Index)
	require.Equal(t, files[0].ID, c.FileID)
	require.Equal(t, int64(7), c.SlotID)
	require.True(t, c.Decode)
	require.Equal(t, []string{"BODY <f1-a@test>"}, c.Lines())

	c, _ = s.Take()
	require.Equal(t, int64(2), c.Index)

	c, _ = s.Take()
	require.Equal(t, files[1].ID, c.FileID)

	_, ok = s.Take()
	require.False(t, ok)

	info := s.Info()
	require.Equal(t, 3, info.Total)
	require.Equal(t, int64(60), info.Size)
}

func TestNewSlot_RejectsEmpty(t *testing.T) {
	_, err := NewSlot("empty", nil, Options{})
	require.ErrorIs(t, err, ErrNoInputs)

	_, err = NewSlot("nosegs", []domain.Input{{Name: "x"}}, Options{})
	require.ErrorIs(t, err, domain.ErrNoSegments)
}

func TestSlot_HistoryIsFrozen(t *testing.T) {
	s, err := NewSlot("job", []domain.Input{input("f", 1)}, Options{})
	require.NoError(t, err)

	require.True(t, s.SetStatus(SlotDownloading))
	require.True(t, s.SetStatus(SlotCompleted))

	for _, st := range []SlotStatus{SlotQueued, SlotDownloading, SlotPaused, SlotFailed} {
		require.False(t, s.SetStatus(st))
		require.Equal(t, SlotCompleted, s.Status())
	}
	require.False(t, s.Fail("late"))
	require.Empty(t, s.StatusLine())
	require.False(t, s.Finished().IsZero())
}

func TestSlot_DoneSignal(t *testing.T) {
	s, err := NewSlot("job", []domain.Input{input("f", 1)}, Options{})
	require.NoError(t, err)
	s.SetStatus(SlotDownloading)

	select {
	case <-s.Done():
		t.Fatal("signalled while downloading")
	default:
	}

	s.SetStatus(SlotPaused)
	<-s.Done()

	// resuming arms a fresh signal
	s.SetStatus(SlotDownloading)
	done := s.Done()
	select {
	case <-done:
		t.Fatal("signalled after resume")
	default:
	}

	s.SetStatus(SlotFailed)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("no signal on failure")
	}
}

func TestSlot_FinishFailsWithMostFrequentReason(t *testing.T) {
	s, err := NewSlot("job", []domain.Input{input("f1", 5, 5), input("f2", 5)}, Options{})
	require.NoError(t, err)
	s.Bind(1)
	s.SetStatus(SlotDownloading)

	missing := &nntp.Error{Code: nntp.CodeNoSuchArticle, Message: "no such article"}
	for {
		c, ok := s.Take()
		if !ok {
			break
		}
		c.Fail(missing)
		f, _ := s.File(c.FileID)
		f.LogError(c)
		require.NoError(t, f.Output().Store(c.Index, c))
		require.False(t, s.Finish())
		if f.Output().Finished() {
			f.MarkDecoded()
		}
	}

	require.True(t, s.Finish())
	require.Equal(t, SlotFailed, s.Status())
	require.Equal(t, "no such article (430)", s.StatusLine())
}

func TestSlot_FinishCompletesWithAnyData(t *testing.T) {
	s, err := NewSlot("job", []domain.Input{input("f1", 5), input("f2", 5)}, Options{})
	require.NoError(t, err)
	s.Bind(1)

	files := s.Files()

	c, _ := files[0].Take()
	c.Fail(errors.New("boom"))
	files[0].LogError(c)
	require.NoError(t, files[0].Output().Store(c.Index, c))
	files[0].MarkDecoded()
	require.False(t, s.Finish())

	c, _ = files[1].Take()
	c.Complete([]byte("hello"))
	require.NoError(t, files[1].Output().Store(c.Index, c))
	files[1].MarkDecoded()

	require.True(t, s.Finish())
	require.Equal(t, SlotCompleted, s.Status())
	require.Equal(t, NoData, files[1].Reason())
	require.Len(t, files[0].Log(), 1)
}

func TestMostFrequent(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want string
	}{
		{"empty", nil, NoData},
		{"single", []string{"a"}, "a"},
		{"majority", []string{"a", "b", "b"}, "b"},
		{"tie goes to first seen", []string{"a", "b", "b", "a"}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, MostFrequent(tt.in))
		})
	}
}

func TestCommand_Cursor(t *testing.T) {
	c := NewCommand([]string{"GROUP a", "XOVER 1-2"}, 0)

	require.Equal(t, "", c.Current())
	require.False(t, c.Finished())
	require.Equal(t, "GROUP a", c.Next())
	require.Equal(t, "GROUP a", c.Current())
	require.Equal(t, "XOVER 1-2", c.Next())
	require.True(t, c.Finished())
	require.Equal(t, "", c.Next())

	c.Reset()
	require.Equal(t, "GROUP a", c.Next())
}

func TestCommand_FailClassifies(t *testing.T) {
	c := NewCommand(nil, 0)

	c.Fail(&nntp.Error{Code: nntp.CodeNoSuchNumber, Message: "no such number"})
	require.Equal(t, CommandMissing, c.Status())

	c.Fail(&nntp.Error{Code: nntp.CodeDoNotTryAgain, Message: "go away"})
	require.Equal(t, CommandFailed, c.Status())
	require.Equal(t, nntp.CodeDoNotTryAgain, c.Err.Code)

	c.Fail(errors.New("weird"))
	require.Equal(t, nntp.CodeSocketUnknown, c.Err.Code)
}

func TestNewSlot_HugeDeclaredSize(t *testing.T) {
	// declared sizes are trusted for progress only, nothing is reserved
	s, err := NewSlot("big", []domain.Input{input("huge", 1<<62, 1<<40)}, Options{Decode: true})
	require.NoError(t, err)
	require.Equal(t, int64(1<<62+1<<40), s.Info().Size)
	require.Zero(t, s.Files()[0].Output().Len())
}
