// Package transport defines the duplex frame connection the chat session
// runs on.
package transport

import "context"

// Conn is an open frame-oriented connection to the chat server.
// WriteFrame and Close may be called concurrently with ReadFrame; ReadFrame
// must only be called from one goroutine.
type Conn interface {
	// ReadFrame blocks until the next text frame arrives.
	ReadFrame(ctx context.Context) ([]byte, error)
	// WriteFrame sends one text frame.
	WriteFrame(ctx context.Context, data []byte) error
	// Close performs the closing handshake and blocks until it completes.
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	// Dial blocks until the connection is open or fails.
	Dial(ctx context.Context, addr string) (Conn, error)
}
