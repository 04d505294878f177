package client

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/abelbrown/callsight/internal/events"
	"github.com/abelbrown/callsight/internal/protocol"
)

// Compile-time interface satisfaction check
var _ Stream = (*httpStream)(nil)

// Stream is a pull-based iterator over analysis updates. Next returns
// updates in the exact order they appear on the wire and io.EOF when the
// underlying transport ends. Close releases the transport; it is safe to
// call more than once and after Next has returned io.EOF, but a Stream
// belongs to one consuming goroutine and is not restartable.
type Stream interface {
	Next() (protocol.Update, error)
	Close() error
}

// httpStream reads newline-delimited event frames from an HTTP response
// body. The scanner buffers partial lines across chunk boundaries, so a
// frame (or a multi-byte character) split across reads still yields
// exactly one update.
type httpStream struct {
	body      io.ReadCloser
	sc        *bufio.Scanner
	events    *events.Logger
	done      bool
	closeOnce sync.Once
	closeErr  error
}

func newHTTPStream(body io.ReadCloser, ev *events.Logger) *httpStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &httpStream{
		body:   body,
		sc:     sc,
		events: ev,
	}
}

// Next returns the next decoded update. Non-event lines (blanks, comments,
// heartbeats) are skipped silently. Malformed event payloads are reported
// to the observability log and skipped; they never abort the stream. At
// natural end of stream the transport is released and io.EOF is returned.
func (s *httpStream) Next() (protocol.Update, error) {
	if s.done {
		return protocol.Update{}, io.EOF
	}

	for s.sc.Scan() {
		u, ok, err := protocol.ParseLine(s.sc.Text())
		if err != nil {
			s.emit(events.Event{
				Level: events.LevelWarn,
				Kind:  events.KindParseMalformed,
				Comp:  "client",
				Err:   err.Error(),
			})
			continue
		}
		if !ok {
			continue
		}
		return u, nil
	}

	s.done = true
	err := s.sc.Err()
	s.release()
	if err != nil {
		return protocol.Update{}, fmt.Errorf("read stream: %w", err)
	}
	return protocol.Update{}, io.EOF
}

// Close releases the underlying transport. Idempotent: the response body
// is closed exactly once regardless of how many times Close is called or
// whether Next already reached end of stream.
func (s *httpStream) Close() error {
	s.done = true
	s.release()
	return s.closeErr
}

func (s *httpStream) release() {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
		s.emit(events.Event{
			Level: events.LevelDebug,
			Kind:  events.KindStreamClose,
			Comp:  "client",
		})
	})
}

func (s *httpStream) emit(e events.Event) {
	if s.events != nil {
		s.events.Emit(e)
	}
}
