package nntp

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/datallboy/newsflow/internal/domain"
)

var errNotConnected = errors.New("not connected")

// TCPTransport is a Transport over a plain or TLS socket.
type TCPTransport struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int

	mu     sync.Mutex
	conn   net.Conn
	gen    uint64
	events chan Event
	quit   chan struct{}
	once   sync.Once
}

func NewTCPTransport() *TCPTransport {
	return &TCPTransport{
		DialTimeout:  10 * time.Second,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 30 * time.Second,
		BufferSize:   64 * 1024,
		events:       make(chan Event, 16),
		quit:         make(chan struct{}),
	}
}

func (t *TCPTransport) Events() <-chan Event { return t.events }

func (t *TCPTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Connect dials in the background and reports through Events.
func (t *TCPTransport) Connect(ctx context.Context, server domain.ServerConfig) error {
	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	go func() {
		conn, err := t.dial(ctx, server)

		t.mu.Lock()
		if gen != t.gen {
			t.mu.Unlock()
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			t.mu.Unlock()
			t.emit(gen, Event{Kind: EventDisconnected, Err: TranslateError(err)})
			return
		}
		t.conn = conn
		t.mu.Unlock()

		t.emit(gen, Event{Kind: EventConnected})
	}()
	return nil
}

func (t *TCPTransport) dial(ctx context.Context, server domain.ServerConfig) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: t.DialTimeout}
	addr := server.Address()

	if !server.TLS {
		return dialer.DialContext(ctx, "tcp", addr)
	}

	tlsDialer := &tls.Dialer{
		NetDialer: dialer,
		Config: &tls.Config{
			ServerName: server.Host,
			MinVersion: tls.VersionTLS12,
		},
	}
	return tlsDialer.DialContext(ctx, "tcp", addr)
}

func (t *TCPTransport) Send(p []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	if t.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.WriteTimeout))
	}
	_, err := conn.Write(p)
	return err
}

// Receive arms a single read. The bytes, or the failure, arrive on Events.
func (t *TCPTransport) Receive() error {
	t.mu.Lock()
	conn, gen := t.conn, t.gen
	t.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	go func() {
		buf := make([]byte, t.BufferSize)
		if t.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(t.ReadTimeout))
		}
		n, err := conn.Read(buf)
		if n > 0 {
			t.emit(gen, Event{Kind: EventReceived, Data: buf[:n]})
			return
		}
		if err == nil {
			err = errNotConnected
		}
		t.emit(gen, Event{Kind: EventDisconnected, Err: TranslateError(err)})
	}()
	return nil
}

// Close drops the socket. Reads still in flight are discarded.
func (t *TCPTransport) Close(code int, reason string) {
	t.mu.Lock()
	t.gen++
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.mu.Unlock()
}

// Shutdown closes the transport for good.
func (t *TCPTransport) Shutdown() {
	t.Close(CodeCancelled, "Shutdown")
	t.once.Do(func() { close(t.quit) })
}

func (t *TCPTransport) emit(gen uint64, ev Event) {
	t.mu.Lock()
	stale := gen != t.gen
	t.mu.Unlock()
	if stale {
		return
	}

	if ev.Kind == EventDisconnected {
		t.mu.Lock()
		if gen == t.gen && t.conn != nil {
			t.conn.Close()
			t.conn = nil
		}
		t.mu.Unlock()
	}

	select {
	case t.events <- ev:
	case <-t.quit:
	}
}
