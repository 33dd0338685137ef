// Package ws implements the chat transport over WebSocket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/coder/websocket"

	"github.com/vovakirdan/channelchat/internal/transport"
)

// DefaultReadLimit caps the size of a single inbound frame. History replays
// can be large, so this is well above the library default.
const DefaultReadLimit = 1 << 20

// Dialer opens WebSocket connections.
type Dialer struct {
	// ReadLimit overrides DefaultReadLimit when positive.
	ReadLimit int64
}

// Dial opens a connection to addr (ws:// or wss://).
func (d Dialer) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	c, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	c.SetReadLimit(limit)

	return &Conn{conn: c}, nil
}

// Conn adapts a websocket.Conn to transport.Conn.
type Conn struct {
	conn *websocket.Conn
}

// ReadFrame returns the payload of the next data frame.
func (c *Conn) ReadFrame(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteFrame sends data as a text frame.
func (c *Conn) WriteFrame(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Close runs the closing handshake. Closing an already closed connection is
// not an error.
func (c *Conn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "bye")
	if err == nil || IsNormalClosure(err) {
		return nil
	}
	return err
}

// IsNormalClosure reports whether err describes an orderly end of the
// connection rather than a failure.
func IsNormalClosure(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
