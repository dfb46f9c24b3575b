package nntp

import (
	"context"
	"testing"
	"time"

	"github.com/datallboy/newsflow/internal/domain"
	"github.com/datallboy/newsflow/internal/nntptest"
	"github.com/stretchr/testify/require"
)

func TestTCPTransport_SessionAgainstServer(t *testing.T) {
	srv := nntptest.NewServer(t)
	srv.SetAuth("bob", "pw")
	srv.AddArticle("part1@test", []byte("line one\r\n.hidden\r\n"))

	tr := NewTCPTransport()
	defer tr.Shutdown()

	s := NewSession(domain.ServerConfig{Host: srv.Host(), Port: srv.Port(), Username: "bob", Password: "pw"}, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := s.Execute(ctx, newLines("BODY <part1@test>"))
	require.NoError(t, err)
	require.Equal(t, "222 0 <part1@test> body follows\r\nline one\r\n..hidden\r\n.\r\n", string(data))

	_, err = s.Execute(ctx, newLines("BODY <missing@test>"))
	require.True(t, IsMissing(err))

	s.Quit()
	require.False(t, tr.Connected())
	require.Eventually(t, func() bool { return len(srv.Requests()) == 6 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{
		"MODE READER",
		"AUTHINFO USER bob",
		"AUTHINFO PASS pw",
		"BODY <part1@test>",
		"BODY <missing@test>",
		"QUIT",
	}, srv.Requests())
}

func TestTCPTransport_ConnectRefused(t *testing.T) {
	srv := nntptest.NewServer(t)
	host, port := srv.Host(), srv.Port()
	srv.Close()

	tr := NewTCPTransport()
	defer tr.Shutdown()
	s := NewSession(domain.ServerConfig{Host: host, Port: port}, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.Execute(ctx, newLines("DATE"))
	require.Error(t, err)
	require.Equal(t, CodeConnRefused, Code(err))
}
