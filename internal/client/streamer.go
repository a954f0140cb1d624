package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/leqctl/internal/observability"
)

var (
	ErrRead  = errors.New("client: read input failed")
	ErrWrite = errors.New("client: send failed")
)

// maxZeroWrites bounds consecutive writes that make no progress.
const maxZeroWrites = 100

// EndReason records why a session stopped.
type EndReason string

const (
	EndOfInput EndReason = "eof"
	EndMarker  EndReason = "marker"
)

// Stats summarizes one streamed session.
type Stats struct {
	Lines  int
	Bytes  int64
	Writes int
	End    EndReason
}

// Stream copies in to out line by line. armed is set after any line that
// ends in a newline; an empty line read while armed terminates the session.
func Stream(in io.Reader, out io.Writer) (Stats, error) {
	r := bufio.NewReader(in)
	var st Stats
	armed := false
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			if armed && line == "\n" {
				st.End = EndMarker
				break
			}
			n, writes, werr := WriteFull(out, []byte(line))
			st.Bytes += int64(n)
			st.Writes += writes
			if werr != nil {
				return st, fmt.Errorf("%w: %w", ErrWrite, werr)
			}
			st.Lines++
			armed = strings.HasSuffix(line, "\n")
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				st.End = EndOfInput
				break
			}
			return st, fmt.Errorf("%w: %w", ErrRead, err)
		}
	}
	observability.RecordLines(string(st.End), st.Lines)
	log.Debug().Int("lines", st.Lines).Int64("bytes", st.Bytes).Str("end", string(st.End)).Msg("client.Stream done")
	return st, nil
}

// WriteFull writes all of b, resubmitting the unsent tail after partial
// writes. It returns the bytes written and the number of Write calls made.
func WriteFull(w io.Writer, b []byte) (int, int, error) {
	total, calls, stalled := 0, 0, 0
	for total < len(b) {
		n, err := w.Write(b[total:])
		calls++
		if n < 0 || n > len(b)-total {
			return total, calls, io.ErrShortWrite
		}
		total += n
		if err != nil {
			return total, calls, err
		}
		if n == 0 {
			stalled++
			if stalled >= maxZeroWrites {
				return total, calls, io.ErrNoProgress
			}
			continue
		}
		stalled = 0
	}
	return total, calls, nil
}
