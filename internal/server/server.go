package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/leqctl/internal/observability"
)

var (
	ErrAccept            = errors.New("server: accept failed")
	ErrInvalidPolicy     = errors.New("server: invalid connection error policy")
	ErrInvalidBufferSize = errors.New("server: invalid buffer size")
)

// DefaultBacklog bounds the queue of clients waiting behind the one being
// served.
const DefaultBacklog = 20

// ConnErrorPolicy decides what a failed connection does to the server.
type ConnErrorPolicy string

const (
	// ConnErrorExit ends the server on any receive error.
	ConnErrorExit ConnErrorPolicy = "exit"
	// ConnErrorContinue closes the failed connection and keeps accepting.
	ConnErrorContinue ConnErrorPolicy = "continue"
)

func ParseConnErrorPolicy(raw string) (ConnErrorPolicy, error) {
	switch p := ConnErrorPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return ConnErrorExit, nil
	case ConnErrorExit, ConnErrorContinue:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, raw)
	}
}

// State is the acceptor's position in its cycle.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateAccepted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateAccepted:
		return "accepted"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// Config configures the accept/receive loop.
type Config struct {
	Addr        string
	Backlog     int
	BufferSize  int
	OnConnError ConnErrorPolicy
	// ReceiveRateLimit caps relayed bytes per second; zero disables it.
	ReceiveRateLimit int
}

func DefaultConfig() Config {
	return Config{
		Backlog:     DefaultBacklog,
		BufferSize:  DefaultBufferSize,
		OnConnError: ConnErrorExit,
	}
}

func (c Config) withDefaults() Config {
	if c.Backlog <= 0 {
		c.Backlog = DefaultBacklog
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.OnConnError == "" {
		c.OnConnError = ConnErrorExit
	}
	return c
}

// Server accepts one connection at a time and relays its bytes to a sink.
// There is no goroutine per connection: a second client waits in the listen
// backlog until the current one has closed.
type Server struct {
	cfg   Config
	sink  Sink
	state atomic.Int32
}

func New(cfg Config, out io.Writer) (*Server, error) {
	cfg = cfg.withDefaults()
	if cfg.BufferSize < 1 {
		return nil, ErrInvalidBufferSize
	}
	if _, err := ParseConnErrorPolicy(string(cfg.OnConnError)); err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, sink: NewSink(out)}, nil
}

func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(st State) {
	s.state.Store(int32(st))
}

// Listen binds the configured address with the configured backlog.
func (s *Server) Listen(ctx context.Context) (net.Listener, error) {
	ln, err := listenTCP(ctx, s.cfg.Addr, s.cfg.Backlog)
	if err != nil {
		return nil, fmt.Errorf("server: listen %q: %w", s.cfg.Addr, err)
	}
	return ln, nil
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen(ctx)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs LISTENING -> ACCEPTED -> receive -> LISTENING until ctx is done
// or a fatal error occurs. It takes ownership of ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.setState(StateClosed)
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	log.Info().
		Str("addr", ln.Addr().String()).
		Int("backlog", s.cfg.Backlog).
		Str("on_conn_error", string(s.cfg.OnConnError)).
		Msg("server.Server.Serve listening")

	for {
		s.setState(StateListening)
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrAccept, err)
		}
		s.setState(StateAccepted)
		if err := s.handle(ctx, conn); err != nil {
			return err
		}
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) error {
	id := uuid.NewString()
	remote := conn.RemoteAddr().String()
	start := time.Now()
	log.Info().Str("conn_id", id).Str("remote", remote).Msg("server.Server connection accepted")

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	n, err := s.Receive(ctx, conn)
	stop()
	_ = conn.Close()

	elapsed := time.Since(start)
	observability.RecordConnection(elapsed, n)

	switch {
	case err == nil:
		log.Info().Str("conn_id", id).Int64("bytes", n).Dur("elapsed", elapsed).Msg("server.Server connection closed")
		return nil
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, ErrSink):
		return err
	case s.cfg.OnConnError == ConnErrorContinue:
		event := log.Warn()
		if isPeerTeardown(err) {
			event = log.Info()
		}
		event.Str("conn_id", id).Str("remote", remote).Int64("bytes", n).Err(err).Msg("server.Server connection failed, continuing")
		return nil
	default:
		log.Error().Str("conn_id", id).Str("remote", remote).Err(err).Msg("server.Server connection failed")
		return err
	}
}
