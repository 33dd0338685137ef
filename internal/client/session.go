// Package client implements the client side of the channel chat protocol:
// one Session owns a connection, the state the server pushes over it, and the
// heartbeat that keeps it alive.
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/channelchat/internal/core"
	"github.com/vovakirdan/channelchat/internal/metrics"
	"github.com/vovakirdan/channelchat/internal/proto"
	"github.com/vovakirdan/channelchat/internal/transport"
	"github.com/vovakirdan/channelchat/internal/transport/ws"
	"github.com/vovakirdan/channelchat/internal/utils"
)

// Session is a chat client bound to one server address.
//
// Inbound frames, heartbeats and the operations below may run on different
// goroutines. State mutations and hook calls are serialized by mu; hooks
// therefore see frames one at a time, in arrival order.
type Session struct {
	id      string
	addr    string
	dialer  transport.Dialer
	clock   clock.Clock
	metrics *metrics.Metrics
	baseLog *zerolog.Logger
	log     zerolog.Logger

	heartbeatDelay  time.Duration
	heartbeatPeriod time.Duration
	writeTimeout    time.Duration

	// hooks are written by the presentation before Connect and only read
	// afterwards.
	hooks core.Hooks

	// lifecycle serializes Connect and Disconnect. Never taken under mu.
	lifecycle  sync.Mutex
	connecting atomic.Bool

	// mu serializes dispatch, user operations and hook calls.
	mu sync.Mutex

	// stateMu guards state so hooks and readers can snapshot it while mu is held.
	stateMu sync.RWMutex
	state   *core.State
	// userID mirrors state.UserID for the heartbeat, which must not wait on mu.
	userID atomic.Int64

	connMu     sync.RWMutex
	conn       transport.Conn
	readDone   chan struct{}
	registered chan struct{}
	closing    bool

	hbMu sync.Mutex
	hb   *heartbeat
}

// New creates a disconnected session for addr.
func New(addr string, opts ...Option) *Session {
	s := &Session{
		id:              utils.NewID(),
		addr:            addr,
		dialer:          defaultDialer(),
		clock:           clock.New(),
		heartbeatDelay:  DefaultHeartbeatDelay,
		heartbeatPeriod: DefaultHeartbeatPeriod,
		writeTimeout:    DefaultWriteTimeout,
		state:           core.NewState(),
	}
	nop := zerolog.Nop()
	s.baseLog = &nop

	for _, opt := range opts {
		opt(s)
	}

	s.log = s.baseLog.With().Str("session_id", s.id).Logger()
	s.userID.Store(core.NoUserID)

	s.log.Info().Str("addr", addr).Msg("created chat session")
	return s
}

// NewFrom creates a disconnected session that keeps the hooks registered on
// prev. The caller is responsible for closing prev.
func NewFrom(prev *Session, addr string, opts ...Option) *Session {
	s := New(addr, opts...)
	if prev != nil {
		s.hooks = prev.hooks
		s.log.Debug().Str("previous_session_id", prev.id).Msg("carried hooks over from previous session")
	}
	return s
}

// ID returns the session correlation id used in logs.
func (s *Session) ID() string { return s.id }

// Addr returns the server address.
func (s *Session) Addr() string { return s.addr }

// SetMessageHandler registers the message-arrived hook.
func (s *Session) SetMessageHandler(fn func(proto.Message)) { s.hooks.OnMessage = fn }

// SetDirectoryHandler registers the directory-changed hook.
func (s *Session) SetDirectoryHandler(fn func(channels []string)) { s.hooks.OnDirectoryChange = fn }

// SetRosterHandler registers the roster-changed hook.
func (s *Session) SetRosterHandler(fn func(users []string)) { s.hooks.OnRosterChange = fn }

// SetChannelJoinHandler registers the channel-joined/left hook.
func (s *Session) SetChannelJoinHandler(fn func()) { s.hooks.OnChannelJoin = fn }

// SetHooks replaces all four hooks at once.
func (s *Session) SetHooks(h core.Hooks) { s.hooks = h }

// Connect dials the server, sends the registration request and starts the
// heartbeat. It blocks until the connection is open or has failed. On failure
// the session stays disconnected; cancellation of ctx is reported through the
// returned error.
func (s *Session) Connect(ctx context.Context, userName string) error {
	if userName == "" {
		return core.ErrEmptyUserName
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.connMu.RLock()
	conn, prevDone, closing := s.conn, s.readDone, s.closing
	s.connMu.RUnlock()
	if conn != nil && !closing {
		return core.ErrAlreadyConnected
	}
	// An interrupted Disconnect or a remote close may still be tearing the
	// previous connection down.
	if prevDone != nil {
		select {
		case <-prevDone:
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", core.ErrConnectionFailure, ctx.Err())
		}
	}

	s.connecting.Store(true)
	defer s.connecting.Store(false)

	s.log.Debug().Str("addr", s.addr).Msg("connecting")
	conn, err := s.dialer.Dial(ctx, s.addr)
	if err != nil {
		s.metrics.Connected(false)
		s.log.Warn().Err(err).Str("addr", s.addr).Msg("could not connect")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", core.ErrConnectionFailure, ctxErr)
		}
		return fmt.Errorf("%w: %w", core.ErrConnectionFailure, err)
	}

	done := make(chan struct{})
	s.connMu.Lock()
	s.conn = conn
	s.readDone = done
	s.registered = make(chan struct{})
	s.closing = false
	s.connMu.Unlock()

	s.metrics.Connected(true)
	s.log.Info().Str("addr", s.addr).Msg("connected")

	go s.readLoop(conn, done)

	s.send(ctx, proto.NewUserJoin(userName))
	s.log.Debug().Str("user", userName).Msg("requested registration")

	s.ensureHeartbeat()
	return nil
}

// Disconnect signals leaving to the presentation, closes the connection and
// blocks until the session is back to its initial state. It is a no-op when
// not connected. If ctx ends first the close and teardown still complete in
// the background, ctx.Err() is returned, and a later Connect or Disconnect
// waits for them.
func (s *Session) Disconnect(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.connMu.Lock()
	conn, done, closing := s.conn, s.readDone, s.closing
	if conn == nil {
		s.connMu.Unlock()
		return nil
	}
	if closing {
		// A previous Disconnect gave up waiting; wait for its teardown.
		s.connMu.Unlock()
		return s.waitTeardown(ctx, done)
	}
	s.closing = true
	s.connMu.Unlock()

	s.mu.Lock()
	s.hooks.ChannelJoinedOrLeft()
	s.mu.Unlock()

	closed := make(chan error, 1)
	go func() {
		err := conn.Close()
		if err != nil {
			s.log.Warn().Err(err).Msg("close handshake failed")
		}
		closed <- err
	}()

	var closeErr error
	select {
	case closeErr = <-closed:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", core.ErrConnectionFailure, ctx.Err())
	}
	if err := s.waitTeardown(ctx, done); err != nil {
		return err
	}

	s.log.Info().Msg("disconnected")
	if closeErr != nil {
		return fmt.Errorf("%w: %w", core.ErrConnectionFailure, closeErr)
	}
	return nil
}

func (s *Session) waitTeardown(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", core.ErrConnectionFailure, ctx.Err())
	}
}

// StopHeartbeat stops the heartbeat timer. No heartbeat is sent after it
// returns. Connect starts a new one.
func (s *Session) StopHeartbeat() {
	s.hbMu.Lock()
	hb := s.hb
	s.hb = nil
	s.hbMu.Unlock()

	if hb != nil {
		hb.Stop()
		s.log.Debug().Msg("stopped heartbeat")
	}
}

// Close disconnects and stops the heartbeat.
func (s *Session) Close(ctx context.Context) error {
	err := s.Disconnect(ctx)
	s.StopHeartbeat()
	return err
}

// ChangeChannel asks the server to move the client into channel. The
// channel-join hook fires right away; the confirmed channel arrives later.
func (s *Session) ChangeChannel(ctx context.Context, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID := s.userID.Load()
	if userID == core.NoUserID {
		s.log.Debug().
			Err(core.Dropped(core.CodeNotRegistered, core.ErrNotRegistered)).
			Str("channel", channel).
			Msg("change channel ignored")
		return core.ErrNotRegistered
	}

	s.send(ctx, proto.NewChannelJoin(channel, userID))
	s.hooks.ChannelJoinedOrLeft()
	s.log.Debug().Str("channel", channel).Msg("requested channel change")
	return nil
}

// SendChat sends text to the current channel.
func (s *Session) SendChat(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Connected() || !s.InChannel() {
		s.log.Debug().Err(core.Dropped(core.CodeNotInChannel, core.ErrNotInChannel)).Msg("chat ignored")
		return core.ErrNotInChannel
	}

	s.send(ctx, proto.NewChatSend(text, s.userID.Load()))
	return nil
}

// WaitRegistered blocks until the server has assigned an id on the current
// connection.
func (s *Session) WaitRegistered(ctx context.Context) error {
	s.connMu.RLock()
	registered := s.registered
	connected := s.conn != nil
	s.connMu.RUnlock()

	if !connected || registered == nil {
		return core.ErrNotRegistered
	}
	select {
	case <-registered:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current position in the connection state machine.
func (s *Session) Status() core.Status {
	if s.connecting.Load() {
		return core.StatusConnecting
	}
	if !s.Connected() {
		return core.StatusDisconnected
	}

	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	switch {
	case !s.state.Registered():
		return core.StatusConnectedUnregistered
	case !s.state.InChannel():
		return core.StatusRegistered
	default:
		return core.StatusInChannel
	}
}

// Connected reports whether the transport is open.
func (s *Session) Connected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conn != nil
}

// Registered reports whether the server assigned an id.
func (s *Session) Registered() bool {
	return s.userID.Load() != core.NoUserID
}

// InChannel reports whether a channel is confirmed.
func (s *Session) InChannel() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state.InChannel()
}

// UserID returns the assigned id or core.NoUserID.
func (s *Session) UserID() int64 {
	return s.userID.Load()
}

// Channel returns the confirmed channel or "".
func (s *Session) Channel() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state.Channel()
}

// Directory returns the advertised channels, sorted.
func (s *Session) Directory() []string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state.Directory()
}

// Roster returns the users of the current channel, sorted.
func (s *Session) Roster() []string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state.Roster()
}

func (s *Session) ensureHeartbeat() {
	s.hbMu.Lock()
	defer s.hbMu.Unlock()
	if s.hb != nil {
		return
	}
	s.hb = startHeartbeat(s.clock, s.heartbeatDelay, s.heartbeatPeriod, s.beat)
	s.log.Debug().
		Dur("delay", s.heartbeatDelay).
		Dur("period", s.heartbeatPeriod).
		Msg("started heartbeat")
}

func (s *Session) beat() {
	s.log.Trace().Msg("running heartbeat")
	s.send(context.Background(), proto.NewHeartbeat(s.userID.Load()))
}

// send writes msg if the transport is open. Failures are logged and counted,
// never returned: a closed transport silently drops the frame.
func (s *Session) send(ctx context.Context, msg proto.Message) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		s.metrics.FrameDropped(core.CodeTransportClosed)
		s.log.Trace().
			Err(core.Dropped(core.CodeTransportClosed, core.ErrTransportClosed)).
			Str("type", msg.RawType()).
			Msg("dropped frame")
		return
	}

	data, err := proto.Serialize(msg)
	if err != nil {
		s.metrics.FrameDropped(core.CodeEncodeFailed)
		s.log.Error().Err(err).Str("type", msg.RawType()).Msg("encode frame")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := conn.WriteFrame(ctx, data); err != nil {
		s.metrics.FrameDropped(core.CodeTransportClosed)
		s.log.Debug().Err(core.Dropped(core.CodeTransportClosed, err)).Str("type", msg.RawType()).Msg("dropped frame")
		return
	}

	s.metrics.FrameSent(msg.RawType())
	s.log.Trace().Str("frame", string(data)).Msg("sent frame")
}

// readLoop feeds frames into dispatch until the connection ends, then
// tears the session state down.
func (s *Session) readLoop(conn transport.Conn, done chan struct{}) {
	defer close(done)

	var err error
	for {
		var data []byte
		data, err = conn.ReadFrame(context.Background())
		if err != nil {
			break
		}
		s.dispatch(data)
	}

	s.teardown(conn, err)
}

func (s *Session) teardown(conn transport.Conn, readErr error) {
	s.connMu.Lock()
	local := s.closing
	if s.conn == conn {
		s.conn = nil
	}
	s.closing = false
	s.connMu.Unlock()

	if !local {
		// Remote close: release the socket on our side too.
		if err := conn.Close(); err != nil {
			s.log.Debug().Err(err).Msg("close after remote end")
		}
	}

	evt := s.log.Info()
	if !local && !ws.IsNormalClosure(readErr) {
		evt = s.log.Warn().Err(readErr)
	}
	evt.Bool("local", local).Msg("connection closed")
	s.metrics.Disconnected(local)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stateMu.Lock()
	s.state.Reset()
	directory, roster := s.state.Directory(), s.state.Roster()
	s.stateMu.Unlock()
	s.userID.Store(core.NoUserID)

	s.hooks.DirectoryChanged(directory)
	s.hooks.RosterChanged(roster)
}
