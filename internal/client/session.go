package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Config describes the server a session connects to.
type Config struct {
	Host string
	Port uint16
	// DialTimeout bounds connection setup; zero blocks until the platform
	// gives up.
	DialTimeout time.Duration
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// Session is one outbound connection driven by Stream.
type Session struct {
	cfg    Config
	dialer net.Dialer
}

func NewSession(cfg Config) *Session {
	return &Session{cfg: cfg, dialer: net.Dialer{Timeout: cfg.DialTimeout}}
}

// Run connects, streams in until the session ends, and closes the connection.
// Cancelling ctx closes the connection and returns ctx.Err() at once; a read
// still blocked on in is abandoned and fails on its next send.
func (s *Session) Run(ctx context.Context, in io.Reader) (Stats, error) {
	conn, err := s.dialer.DialContext(ctx, "tcp4", s.cfg.Address())
	if err != nil {
		return Stats{}, fmt.Errorf("client: connect %s: %w", s.cfg.Address(), err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client.Session.Run connected")

	type result struct {
		st  Stats
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := Stream(in, conn)
		done <- result{st: st, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.st, r.err
		}
		log.Info().Int("lines", r.st.Lines).Int64("bytes", r.st.Bytes).Str("end", string(r.st.End)).Msg("client.Session.Run finished")
		return r.st, nil
	case <-ctx.Done():
		log.Info().Msg("client.Session.Run interrupted")
		return Stats{}, ctx.Err()
	}
}
