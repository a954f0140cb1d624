package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"golang.org/x/time/rate"
)

// DefaultBufferSize is the largest chunk relayed per read.
const DefaultBufferSize = 255

var (
	ErrReceive = errors.New("server: receive failed")
	ErrSink    = errors.New("server: output sink failed")
)

// Sink is the relay destination. Flush is called after every chunk so that
// redirected output sees data promptly even though the server never exits
// cleanly.
type Sink interface {
	io.Writer
	Flush() error
}

// NewSink adapts w into a Sink, buffering it if it cannot flush itself.
func NewSink(w io.Writer) Sink {
	if s, ok := w.(Sink); ok {
		return s
	}
	return bufio.NewWriterSize(w, DefaultBufferSize+1)
}

// Receive relays conn to the server's sink until the peer closes. A clean
// close returns nil; read errors wrap ErrReceive and sink errors wrap ErrSink.
func (s *Server) Receive(ctx context.Context, conn io.Reader) (int64, error) {
	src := conn
	if s.cfg.ReceiveRateLimit > 0 {
		src = newRateLimitedReader(ctx, conn, s.cfg.ReceiveRateLimit, s.cfg.BufferSize)
	}
	return relay(src, s.sink, s.cfg.BufferSize)
}

func relay(src io.Reader, sink Sink, size int) (int64, error) {
	buf := make([]byte, size)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, werr := sink.Write(chunk); werr != nil {
				return total, fmt.Errorf("%w: %w", ErrSink, werr)
			}
			if ferr := sink.Flush(); ferr != nil {
				return total, fmt.Errorf("%w: %w", ErrSink, ferr)
			}
			total += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, fmt.Errorf("%w: %w", ErrReceive, err)
		}
	}
}

// peerTeardown lists the receive failures that mean the client went away
// rather than that the server misbehaved.
var peerTeardown = []error{
	io.ErrUnexpectedEOF,
	net.ErrClosed,
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
	syscall.EPIPE,
}

// isPeerTeardown reports whether a Receive error, including one wrapped in
// ErrReceive, was caused by the remote side dropping the connection.
func isPeerTeardown(err error) bool {
	if !errors.Is(err, ErrReceive) {
		return false
	}
	for _, target := range peerTeardown {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type rateLimitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

// newRateLimitedReader paces reads to bytesPerSec. The burst always covers one
// full chunk so WaitN never rejects a read outright.
func newRateLimitedReader(ctx context.Context, r io.Reader, bytesPerSec, chunk int) io.Reader {
	burst := bytesPerSec
	if burst < chunk {
		burst = chunk
	}
	return &rateLimitedReader{
		ctx:     ctx,
		r:       r,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
	}
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(r.ctx, n); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}
