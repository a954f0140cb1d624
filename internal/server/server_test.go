package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/danmuck/leqctl/internal/testutil/testlog"
)

// recordingSink is a goroutine-safe Sink that remembers chunk boundaries.
type recordingSink struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	writes  []int
	flushes int
	failAt  int
}

func (s *recordingSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.writes)+1 >= s.failAt {
		return 0, errors.New("disk full")
	}
	s.writes = append(s.writes, len(p))
	return s.buf.Write(p)
}

func (s *recordingSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *recordingSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// chunkReader returns one scripted chunk per Read, then a final error.
type chunkReader struct {
	chunks []string
	final  error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, r.final
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func newTestServer(t *testing.T, cfg Config, sink Sink) *Server {
	t.Helper()
	s, err := New(cfg, sink)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s
}

func TestReceiveRelaysUntilPeerClose(t *testing.T) {
	testlog.Start(t)

	sink := &recordingSink{}
	s := newTestServer(t, DefaultConfig(), sink)
	n, err := s.Receive(context.Background(), &chunkReader{chunks: []string{"hel", "lo\n"}, final: io.EOF})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if n != 6 || sink.String() != "hello\n" {
		t.Fatalf("unexpected relay: n=%d out=%q", n, sink.String())
	}
	if sink.flushes != 2 {
		t.Fatalf("expected a flush per chunk, got %d", sink.flushes)
	}
}

func TestReceiveCapsChunkSize(t *testing.T) {
	testlog.Start(t)

	sink := &recordingSink{}
	s := newTestServer(t, DefaultConfig(), sink)
	payload := strings.Repeat("x", 1000)
	if _, err := s.Receive(context.Background(), strings.NewReader(payload)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if sink.String() != payload {
		t.Fatalf("payload mismatch")
	}
	for i, w := range sink.writes {
		if w > DefaultBufferSize {
			t.Fatalf("write %d exceeded buffer: %d", i, w)
		}
	}
}

func TestReceiveReadErrorIsReported(t *testing.T) {
	testlog.Start(t)

	sink := &recordingSink{}
	s := newTestServer(t, DefaultConfig(), sink)
	_, err := s.Receive(context.Background(), &chunkReader{chunks: []string{"ab"}, final: syscall.ECONNRESET})
	if !errors.Is(err, ErrReceive) || !errors.Is(err, syscall.ECONNRESET) {
		t.Fatalf("expected wrapped receive error, got %v", err)
	}
	if sink.String() != "ab" {
		t.Fatalf("bytes before the error must still be relayed, got %q", sink.String())
	}
	if !isPeerTeardown(err) {
		t.Fatalf("connection reset should classify as peer teardown")
	}
}

func TestIsPeerTeardown(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"reset", fmt.Errorf("%w: %w", ErrReceive, syscall.ECONNRESET), true},
		{"aborted", fmt.Errorf("%w: %w", ErrReceive, syscall.ECONNABORTED), true},
		{"closed", fmt.Errorf("%w: %w", ErrReceive, net.ErrClosed), true},
		{"unexpected eof", fmt.Errorf("%w: %w", ErrReceive, io.ErrUnexpectedEOF), true},
		{"timeout", fmt.Errorf("%w: %w", ErrReceive, os.ErrDeadlineExceeded), false},
		{"sink", fmt.Errorf("%w: %w", ErrSink, syscall.EPIPE), false},
		{"bare reset", syscall.ECONNRESET, false},
	}
	for _, tc := range cases {
		if got := isPeerTeardown(tc.err); got != tc.want {
			t.Fatalf("%s: isPeerTeardown=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestReceiveSinkFailure(t *testing.T) {
	testlog.Start(t)

	sink := &recordingSink{failAt: 1}
	s := newTestServer(t, DefaultConfig(), sink)
	_, err := s.Receive(context.Background(), strings.NewReader("data"))
	if !errors.Is(err, ErrSink) {
		t.Fatalf("expected ErrSink, got %v", err)
	}
}

func TestReceiveRateLimited(t *testing.T) {
	testlog.Start(t)

	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.BufferSize = 10
	cfg.ReceiveRateLimit = 100
	s := newTestServer(t, cfg, sink)

	start := time.Now()
	payload := strings.Repeat("y", 150)
	if _, err := s.Receive(context.Background(), strings.NewReader(payload)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if sink.String() != payload {
		t.Fatalf("payload mismatch")
	}
	// 100 bytes of burst, the remaining 50 at 100 B/s.
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Fatalf("rate limit not applied, elapsed=%v", elapsed)
	}
}

// scriptedListener hands out queued conns, then fails with errDone.
type scriptedListener struct {
	conns chan net.Conn
	done  error
}

func (l *scriptedListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	default:
		return nil, l.done
	}
}

func (l *scriptedListener) Close() error   { return nil }
func (l *scriptedListener) Addr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000} }

type scriptedConn struct {
	net.Conn
	r *chunkReader
}

func (c *scriptedConn) Read(p []byte) (int, error) { return c.r.Read(p) }
func (c *scriptedConn) Close() error               { return nil }
func (c *scriptedConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 40000}
}

func scriptedConns(readers ...*chunkReader) chan net.Conn {
	ch := make(chan net.Conn, len(readers))
	for _, r := range readers {
		ch <- &scriptedConn{r: r}
	}
	return ch
}

func TestServeExitPolicyStopsOnConnectionError(t *testing.T) {
	testlog.Start(t)

	errDone := errors.New("no more conns")
	ln := &scriptedListener{
		conns: scriptedConns(
			&chunkReader{chunks: []string{"bad"}, final: syscall.ECONNRESET},
			&chunkReader{chunks: []string{"never"}, final: io.EOF},
		),
		done: errDone,
	}
	sink := &recordingSink{}
	s := newTestServer(t, DefaultConfig(), sink)
	err := s.Serve(context.Background(), ln)
	if !errors.Is(err, ErrReceive) {
		t.Fatalf("expected receive error to end the server, got %v", err)
	}
	if sink.String() != "bad" {
		t.Fatalf("second connection must not be served, out=%q", sink.String())
	}
	if s.State() != StateClosed {
		t.Fatalf("unexpected state: %s", s.State())
	}
}

// Hardened mode deliberately deviates from the exit-on-error behaviour.
func TestServeContinuePolicyIsolatesConnectionError(t *testing.T) {
	testlog.Start(t)

	errDone := errors.New("no more conns")
	ln := &scriptedListener{
		conns: scriptedConns(
			&chunkReader{chunks: []string{"bad|"}, final: syscall.ECONNRESET},
			&chunkReader{chunks: []string{"good\n"}, final: io.EOF},
		),
		done: errDone,
	}
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.OnConnError = ConnErrorContinue
	s := newTestServer(t, cfg, sink)
	err := s.Serve(context.Background(), ln)
	if !errors.Is(err, ErrAccept) || !errors.Is(err, errDone) {
		t.Fatalf("expected accept failure after both conns, got %v", err)
	}
	if sink.String() != "bad|good\n" {
		t.Fatalf("unexpected output: %q", sink.String())
	}
}

func TestServeSinkFailureIsFatalUnderContinue(t *testing.T) {
	testlog.Start(t)

	ln := &scriptedListener{
		conns: scriptedConns(&chunkReader{chunks: []string{"x"}, final: io.EOF}),
		done:  errors.New("unreachable"),
	}
	cfg := DefaultConfig()
	cfg.OnConnError = ConnErrorContinue
	s := newTestServer(t, cfg, &recordingSink{failAt: 1})
	if err := s.Serve(context.Background(), ln); !errors.Is(err, ErrSink) {
		t.Fatalf("expected ErrSink, got %v", err)
	}
}

func waitForOutput(t *testing.T, sink *recordingSink, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sink.String() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output mismatch: got=%q want=%q", sink.String(), want)
}

func TestServeHandlesQueuedClientsSequentially(t *testing.T) {
	testlog.Start(t)

	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	s := newTestServer(t, cfg, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ln, err := s.Listen(ctx)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	first, err := net.Dial("tcp4", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	if _, err := first.Write([]byte("one\n")); err != nil {
		t.Fatalf("write first: %v", err)
	}
	waitForOutput(t, sink, "one\n")

	second, err := net.Dial("tcp4", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	if _, err := second.Write([]byte("two\n")); err != nil {
		t.Fatalf("write second: %v", err)
	}
	if _, err := first.Write([]byte("more\n")); err != nil {
		t.Fatalf("write first again: %v", err)
	}
	waitForOutput(t, sink, "one\nmore\n")

	// The queued client is only drained once the first one closes.
	time.Sleep(50 * time.Millisecond)
	if got := sink.String(); got != "one\nmore\n" {
		t.Fatalf("second client served concurrently: %q", got)
	}
	_ = first.Close()
	waitForOutput(t, sink, "one\nmore\ntwo\n")
	_ = second.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop on cancel")
	}
}

func TestParseConnErrorPolicy(t *testing.T) {
	for raw, want := range map[string]ConnErrorPolicy{"": ConnErrorExit, "EXIT": ConnErrorExit, " continue ": ConnErrorContinue} {
		got, err := ParseConnErrorPolicy(raw)
		if err != nil || got != want {
			t.Fatalf("ParseConnErrorPolicy(%q) = %q,%v", raw, got, err)
		}
	}
	if _, err := ParseConnErrorPolicy("retry"); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
	if _, err := New(Config{OnConnError: "retry"}, io.Discard); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected constructor to reject policy, got %v", err)
	}
}

func TestNewSinkWrapsPlainWriter(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf)
	if _, err := sink.Write([]byte("abc")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected buffering before flush")
	}
	if err := sink.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if buf.String() != "abc" {
		t.Fatalf("unexpected flushed content: %q", buf.String())
	}
}
