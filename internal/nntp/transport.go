package nntp

import (
	"context"

	"github.com/datallboy/newsflow/internal/domain"
)

type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventReceived
	EventDisconnected
)

// Event is one notification from a Transport.
type Event struct {
	Kind EventKind
	Data []byte // EventReceived
	Err  *Error // EventDisconnected
}

// Transport is the byte stream under a Session. Connect and Receive return
// immediately; their outcome arrives on Events. A Transport must not emit
// events for a connection after Close has been called on it.
type Transport interface {
	Connect(ctx context.Context, server domain.ServerConfig) error
	Send(p []byte) error
	Receive() error
	Close(code int, reason string)
	Connected() bool
	Events() <-chan Event
}
