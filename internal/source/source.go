// Package source abstracts the producers of raw ECG payloads: a serial
// attached front end, a synthetic generator, a recording replay and an idle
// preview source. Every source pushes payloads to a Sink and reports its
// connection lifecycle through the same Sink.
package source

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Open when no matching device exists.
	ErrNotFound = errors.New("device not found")
	// ErrConnect is returned by Open when a device exists but cannot be opened.
	ErrConnect = errors.New("connect failed")
	// ErrClosed is returned by Open after Close.
	ErrClosed = errors.New("source closed")
)

// Sink receives everything a source produces. Implementations must not block:
// Payload is called from the source's delivery goroutine.
type Sink interface {
	// Payload delivers one raw payload in arrival order.
	Payload(p []byte)
	// Status reports a connection state change with an optional detail.
	Status(s Status, detail string)
}

// Source is a live or synthetic producer of payloads.
type Source interface {
	// Name identifies the source in logs and status details.
	Name() string
	// Open performs discovery and connection, reporting Discovering and
	// Connected through sink. On success delivery continues in the
	// background until Close is called or the device disconnects. Failures
	// wrap ErrNotFound or ErrConnect and are not fatal to the caller.
	Open(ctx context.Context, sink Sink) error
	// Done is closed once delivery has ended for any reason.
	Done() <-chan struct{}
	// Close stops delivery and disconnects. It is idempotent.
	Close() error
}
