package app

import (
	"bytes"
	"context"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/channelchat/internal/chattest"
	"github.com/vovakirdan/channelchat/internal/client"
	"github.com/vovakirdan/channelchat/internal/config"
	"github.com/vovakirdan/channelchat/internal/log"
	"github.com/vovakirdan/channelchat/internal/proto"
)

const waitFor = 2 * time.Second

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	app  *App
	in   *io.PipeWriter
	out  *syncBuffer
	done chan struct{}
	err  error
}

func startApp(t *testing.T, serverURL, channel string) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.ServerURL = serverURL
	cfg.UserName = "alice"
	cfg.Channel = channel
	cfg.DialTimeout = waitFor

	in, inW := io.Pipe()
	out := &syncBuffer{}
	a, err := New(&cfg, log.Nop(),
		WithInput(in),
		WithOutput(out),
		WithSessionOptions(client.WithClock(clock.NewMock())),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{app: a, in: inW, out: out, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.err = a.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		_ = inW.Close()
		select {
		case <-h.done:
		case <-time.After(waitFor):
		}
	})
	return h
}

func (h *harness) typeLine(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(h.in, line+"\n")
	require.NoError(t, err)
}

func (h *harness) waitOutput(t *testing.T, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(h.out.String(), want)
	}, waitFor, 5*time.Millisecond, "output never contained %q:\n%s", want, h.out.String())
}

func (h *harness) waitExit(t *testing.T) error {
	t.Helper()
	select {
	case <-h.done:
		return h.err
	case <-time.After(waitFor):
		t.Fatalf("app did not exit")
		return nil
	}
}

func TestAppChatsInConfiguredChannel(t *testing.T) {
	srv := chattest.NewServer(t)
	h := startApp(t, srv.URL(), "general")

	peer := srv.Accept(t)
	join := peer.Handshake(t, 7)
	assert.Equal(t, "alice", join.UserName())

	req := peer.NextOf(t, proto.TypeChannelChange)
	assert.Equal(t, "general", req.ChannelName())

	peer.Send(t, proto.NewChannelJoinAck("general"))
	peer.Send(t, proto.NewDirectoryUpdate([]string{"random", "general"}))
	peer.Send(t, proto.NewRosterUpdate("general", []string{"bob", "alice"}))
	peer.Send(t, proto.NewChannelHistory("general", proto.NewChannelMessage("bob", "general", "earlier")))
	peer.Send(t, proto.NewChannelMessage("bob", "general", "hi"))

	h.waitOutput(t, "bob: hi")
	assert.Contains(t, h.out.String(), "* channels: general, random")
	assert.Contains(t, h.out.String(), "* users: alice, bob")
	assert.Equal(t, []string{"bob: earlier", "bob: hi"}, h.app.Console().Lines())

	h.typeLine(t, "hello there")
	chat := peer.NextOf(t, proto.TypeChannelMessage)
	assert.Equal(t, "hello there", chat.Text())
	assert.Equal(t, int64(7), chat.UserID())

	h.typeLine(t, "/join random")
	req = peer.NextOf(t, proto.TypeChannelChange)
	assert.Equal(t, "random", req.ChannelName())
	assert.Empty(t, h.app.Console().Lines(), "joining clears the chat log")

	h.typeLine(t, "/quit")
	require.NoError(t, h.waitExit(t))
	assert.Equal(t, websocket.StatusNormalClosure, peer.WaitClosed(t))
}

func TestAppRequiresChannelBeforeChatting(t *testing.T) {
	srv := chattest.NewServer(t)
	h := startApp(t, srv.URL(), "")

	peer := srv.Accept(t)
	peer.Handshake(t, 7)
	h.waitOutput(t, "* connected to")

	h.typeLine(t, "hello")
	h.waitOutput(t, "not in a channel")
	peer.AssertSilent(t, 100*time.Millisecond)

	h.typeLine(t, "/status")
	h.waitOutput(t, "* registered (user id 7")
}

func TestAppReportsConnectFailure(t *testing.T) {
	stopped := httptest.NewServer(stdhttp.NotFoundHandler())
	addr := "ws" + strings.TrimPrefix(stopped.URL, "http")
	stopped.Close()

	h := startApp(t, addr, "general")
	h.waitOutput(t, "could not connect")

	h.typeLine(t, "/status")
	h.waitOutput(t, "* disconnected")

	h.typeLine(t, "/quit")
	require.NoError(t, h.waitExit(t))
}

func TestAppReconnectKeepsPresentation(t *testing.T) {
	srv := chattest.NewServer(t)
	h := startApp(t, srv.URL(), "general")

	first := srv.Accept(t)
	first.Handshake(t, 7)
	first.NextOf(t, proto.TypeChannelChange)

	h.typeLine(t, "/reconnect")
	assert.Equal(t, websocket.StatusNormalClosure, first.WaitClosed(t))

	second := srv.Accept(t)
	second.Handshake(t, 8)
	req := second.NextOf(t, proto.TypeChannelChange)
	assert.Equal(t, "general", req.ChannelName())
	assert.Equal(t, int64(8), req.UserID())

	second.Send(t, proto.NewChannelMessage("bob", "general", "welcome back"))
	h.waitOutput(t, "bob: welcome back")
}

func TestAppStopsAtEndOfInput(t *testing.T) {
	srv := chattest.NewServer(t)
	h := startApp(t, srv.URL(), "")

	peer := srv.Accept(t)
	peer.Handshake(t, 7)
	h.waitOutput(t, "* connected to")

	require.NoError(t, h.in.Close())
	require.NoError(t, h.waitExit(t))
	assert.Equal(t, websocket.StatusNormalClosure, peer.WaitClosed(t))
}

func TestAppUnknownCommand(t *testing.T) {
	srv := chattest.NewServer(t)
	h := startApp(t, srv.URL(), "")
	srv.Accept(t).Handshake(t, 7)

	h.typeLine(t, "/dance")
	h.waitOutput(t, "unknown command /dance")

	h.typeLine(t, "/join")
	h.waitOutput(t, "usage: /join <channel>")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	_, err := New(&cfg, log.Nop())
	require.Error(t, err, "user name is required")
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	cfg := config.Default()
	cfg.UserName = "alice"
	a, err := New(&cfg, log.Nop())
	require.NoError(t, err)

	a.metrics.FrameSent(proto.TypeHeartbeat.String())

	srv := httptest.NewServer(a.MetricsHandler())
	defer srv.Close()

	resp, err := stdhttp.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `channelchat_client_frames_sent_total{type="HEARTBEAT"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
