// Package chattest runs a scripted chat server for tests. Each accepted
// connection becomes a Peer the test drives by hand: it reads what the client
// sent and pushes whatever frames the scenario needs.
package chattest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/channelchat/internal/proto"
)

// Timeout bounds every wait in this package.
const Timeout = 2 * time.Second

// Server accepts WebSocket clients on /ws.
type Server struct {
	http  *httptest.Server
	peers chan *Peer

	mu     sync.Mutex
	all    []*Peer
	closed bool
}

// NewServer starts a server that is shut down when the test ends.
func NewServer(tb testing.TB) *Server {
	tb.Helper()

	gin.SetMode(gin.TestMode)
	s := &Server{peers: make(chan *Peer, 16)}

	// gin wraps the ResponseWriter and refuses to hijack it after the 101 is
	// written, so the upgrade route stays on the plain mux.
	router := gin.New()
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/", router)

	s.http = httptest.NewServer(mux)
	tb.Cleanup(s.Close)
	return s
}

// URL returns the WebSocket address clients dial.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws"
}

// Accept waits for the next client connection.
func (s *Server) Accept(tb testing.TB) *Peer {
	tb.Helper()
	select {
	case p := <-s.peers:
		return p
	case <-time.After(Timeout):
		tb.Fatalf("chattest: no client connected within %s", Timeout)
		return nil
	}
}

// Close drops every peer and stops the server.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	peers := s.all
	s.mu.Unlock()

	for _, p := range peers {
		_ = p.conn.CloseNow()
	}
	s.http.Close()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}

	p := &Peer{
		conn:   conn,
		frames: make(chan []byte, 256),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.CloseNow()
		return
	}
	s.all = append(s.all, p)
	s.mu.Unlock()

	s.peers <- p
	p.readLoop()
}

// Peer is the server side of one client connection.
type Peer struct {
	conn   *websocket.Conn
	frames chan []byte
	done   chan struct{}
	err    error
}

func (p *Peer) readLoop() {
	defer close(p.done)
	defer close(p.frames)

	for {
		_, data, err := p.conn.Read(context.Background())
		if err != nil {
			p.err = err
			return
		}
		p.frames <- data
	}
}

// Send pushes a frame to the client.
func (p *Peer) Send(tb testing.TB, msg proto.Message) {
	tb.Helper()
	data, err := proto.Serialize(msg)
	require.NoError(tb, err)
	p.SendRaw(tb, string(data))
}

// SendRaw pushes arbitrary text to the client.
func (p *Peer) SendRaw(tb testing.TB, text string) {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	require.NoError(tb, p.conn.Write(ctx, websocket.MessageText, []byte(text)))
}

// Next returns the next frame the client sent.
func (p *Peer) Next(tb testing.TB) proto.Message {
	tb.Helper()
	select {
	case data, ok := <-p.frames:
		if !ok {
			tb.Fatalf("chattest: connection closed while waiting for a frame: %v", p.err)
		}
		msg, err := proto.Parse(data)
		require.NoError(tb, err, "client sent %s", data)
		return msg
	case <-time.After(Timeout):
		tb.Fatalf("chattest: no frame within %s", Timeout)
		return proto.Message{}
	}
}

// NextOf skips frames until one of type typ arrives.
func (p *Peer) NextOf(tb testing.TB, typ proto.Type) proto.Message {
	tb.Helper()
	deadline := time.Now().Add(Timeout)
	for time.Now().Before(deadline) {
		if msg := p.Next(tb); msg.Type() == typ {
			return msg
		}
	}
	tb.Fatalf("chattest: no %s frame within %s", typ, Timeout)
	return proto.Message{}
}

// Handshake waits for the client's USER_JOIN and acknowledges it with id.
func (p *Peer) Handshake(tb testing.TB, id int64) proto.Message {
	tb.Helper()
	join := p.NextOf(tb, proto.TypeUserJoin)
	p.Send(tb, proto.NewUserJoinAck(id))
	return join
}

// AssertSilent fails if the client sends anything within d.
func (p *Peer) AssertSilent(tb testing.TB, d time.Duration) {
	tb.Helper()
	select {
	case data, ok := <-p.frames:
		if ok {
			tb.Fatalf("chattest: unexpected frame %s", data)
		}
	case <-time.After(d):
	}
}

// Close starts a server-side closing handshake.
func (p *Peer) Close(tb testing.TB) {
	tb.Helper()
	_ = p.conn.Close(websocket.StatusNormalClosure, "server closing")
}

// WaitClosed blocks until the connection is gone and returns the close
// status the client sent, or -1 if it vanished without one.
func (p *Peer) WaitClosed(tb testing.TB) websocket.StatusCode {
	tb.Helper()
	select {
	case <-p.done:
		return websocket.CloseStatus(p.err)
	case <-time.After(Timeout):
		tb.Fatalf("chattest: connection still open after %s", Timeout)
		return -1
	}
}
