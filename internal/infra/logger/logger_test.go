package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug": LevelDebug,
		"DEBUG": LevelDebug,
		"warn":  LevelWarn,
		"error": LevelError,
		"info":  LevelInfo,
		"":      LevelInfo,
		"bogus": LevelInfo,
	}
	for in, want := range tests {
		require.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLogger_FiltersAndPrefixes(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, LevelInfo)

	l.Debug("hidden")
	l.Info("hello %d", 1)
	l.With("[news]").With("#2").Warn("slow")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "[INFO] hello 1")
	require.Contains(t, out, "[WARN] [news] #2 slow")
	require.Equal(t, 2, strings.Count(out, "\n"))
}

func TestLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newsflow.log")
	l, err := New(path, LevelDebug, false)
	require.NoError(t, err)

	_, err = l.Write([]byte("from echo\n"))
	require.NoError(t, err)
	l.Debug("debug line")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "[INFO] from echo")
	require.Contains(t, string(data), "[DEBUG] debug line")
}

func TestDiscard(t *testing.T) {
	l := Discard()
	require.False(t, l.Enabled(LevelError))
	l.Error("nothing happens")
}
