package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/channelchat/internal/client"
	"github.com/vovakirdan/channelchat/internal/config"
	"github.com/vovakirdan/channelchat/internal/core"
	"github.com/vovakirdan/channelchat/internal/metrics"
)

const helpText = `commands:
  /join <channel>  switch channel (clears the chat log)
  /channels        list channels
  /users           list users in the current channel
  /status          show connection status
  /reconnect       drop the connection and connect again
  /quit            leave
anything else is sent to the current channel`

// App wires the chat session to a terminal.
type App struct {
	cfg     config.Config
	log     *zerolog.Logger
	in      io.Reader
	console *Console

	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	server      *stdhttp.Server
	sessionOpts []client.Option

	mu      sync.Mutex
	session *client.Session
}

// Option configures an App.
type Option func(*App)

// WithInput sets where commands are read from (default: stdin).
func WithInput(r io.Reader) Option {
	return func(a *App) { a.in = r }
}

// WithOutput sets where the chat is printed (default: stdout).
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.console = NewConsole(w) }
}

// WithSessionOptions appends options to every session the app creates.
func WithSessionOptions(opts ...client.Option) Option {
	return func(a *App) { a.sessionOpts = append(a.sessionOpts, opts...) }
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	a := &App{
		cfg:      *cfg,
		log:      logger,
		in:       os.Stdin,
		console:  NewConsole(os.Stdout),
		registry: registry,
		metrics:  metrics.New(metrics.WithRegistry(registry)),
	}
	for _, opt := range opts {
		opt(a)
	}

	if cfg.MetricsAddr != "" {
		mux := stdhttp.NewServeMux()
		mux.Handle("/metrics", a.MetricsHandler())
		a.server = &stdhttp.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

// MetricsHandler serves the app's Prometheus registry.
func (a *App) MetricsHandler() stdhttp.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// Console returns the terminal presentation.
func (a *App) Console() *Console { return a.console }

// Session returns the current chat session, nil before Run.
func (a *App) Session() *client.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Run connects, then executes commands until /quit, end of input, context
// cancellation or a fatal metrics server error.
func (a *App) Run(ctx context.Context) error {
	var serverErr chan error
	if a.server != nil {
		serverErr = make(chan error, 1)
		go func() {
			a.log.Info().Str("addr", a.server.Addr).Msg("serving metrics")
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	a.setSession(a.newSession(nil))
	a.connect(ctx)

	lines := a.readLines()
	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			a.log.Info().Msg("interrupted")
			break loop
		case err := <-serverErr:
			runErr = fmt.Errorf("metrics server: %w", err)
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if quit := a.handle(ctx, line); quit {
				break loop
			}
		}
	}

	a.shutdown()
	return runErr
}

func (a *App) newSession(prev *client.Session) *client.Session {
	opts := []client.Option{
		client.WithLogger(a.log),
		client.WithMetrics(a.metrics),
		client.WithHeartbeat(a.cfg.HeartbeatDelay, a.cfg.HeartbeatPeriod),
		client.WithWriteTimeout(a.cfg.WriteTimeout),
	}
	opts = append(opts, a.sessionOpts...)

	if prev != nil {
		return client.NewFrom(prev, a.cfg.ServerURL, opts...)
	}
	s := client.New(a.cfg.ServerURL, opts...)
	s.SetHooks(a.console.Hooks())
	return s
}

func (a *App) setSession(s *client.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = s
}

// connect dials, waits for registration and joins the configured channel.
// Failures are reported on the console; the user can /reconnect.
func (a *App) connect(ctx context.Context) {
	s := a.Session()

	dialCtx, cancel := context.WithTimeout(ctx, a.cfg.DialTimeout)
	defer cancel()

	if err := s.Connect(dialCtx, a.cfg.UserName); err != nil {
		a.console.Printf("could not connect to %s: %v", s.Addr(), err)
		return
	}
	a.console.Printf("* connected to %s as %s", s.Addr(), a.cfg.UserName)

	if err := s.WaitRegistered(dialCtx); err != nil {
		a.console.Printf("server did not register %s: %v", a.cfg.UserName, err)
		return
	}
	if a.cfg.Channel != "" {
		a.join(ctx, a.cfg.Channel)
	}
}

func (a *App) join(ctx context.Context, channel string) {
	a.console.Clear()
	if err := a.Session().ChangeChannel(ctx, channel); err != nil {
		a.console.Printf("cannot join %s: %v", channel, err)
	}
}

// handle runs one input line and reports whether the app should stop.
func (a *App) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		a.say(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/join":
		if arg == "" {
			a.console.Printf("usage: /join <channel>")
			return false
		}
		a.join(ctx, arg)
	case "/channels":
		a.console.Printf("* channels: %s", joinOrNone(a.Session().Directory()))
	case "/users":
		a.console.Printf("* users: %s", joinOrNone(a.Session().Roster()))
	case "/status":
		s := a.Session()
		a.console.Printf("* %s (user id %d, channel %q)", s.Status(), s.UserID(), s.Channel())
	case "/reconnect":
		a.reconnect(ctx)
	case "/quit", "/exit":
		return true
	case "/help":
		a.console.Printf("%s", helpText)
	default:
		a.console.Printf("unknown command %s, try /help", cmd)
	}
	return false
}

func (a *App) say(ctx context.Context, text string) {
	err := a.Session().SendChat(ctx, text)
	if errors.Is(err, core.ErrNotInChannel) {
		a.console.Printf("not in a channel, use /join <channel>")
	}
}

func (a *App) reconnect(ctx context.Context) {
	prev := a.Session()
	a.closeSession(prev)
	a.setSession(a.newSession(prev))
	a.connect(ctx)
}

func (a *App) closeSession(s *client.Session) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		a.log.Warn().Err(err).Msg("failed to close session")
	}
}

func (a *App) shutdown() {
	a.closeSession(a.Session())

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		a.log.Info().Msg("shutting down metrics server")
		if err := a.server.Shutdown(ctx); err != nil {
			a.log.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
}

// readLines feeds input lines into a channel that is closed at end of input.
func (a *App) readLines() <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			a.log.Warn().Err(err).Msg("read input")
		}
	}()
	return lines
}
