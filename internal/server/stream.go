package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/abelbrown/callsight/internal/protocol"
	"github.com/abelbrown/callsight/internal/transcript"
)

// streamWriter emits server-sent event frames, flushing after each so
// clients see stages as they happen rather than one buffered blob.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newStreamWriter(w http.ResponseWriter) (*streamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	return &streamWriter{w: w, flusher: flusher}, nil
}

func (sw *streamWriter) send(u protocol.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

func (sw *streamWriter) comment(text string) {
	fmt.Fprintf(sw.w, ": %s\n\n", text)
	sw.flusher.Flush()
}

// streamAnalysis plays out one staged analysis over an open stream.
// Transcript-level validation failures become error events on the
// stream itself; the HTTP status is already 200 by this point.
func (s *Server) streamAnalysis(ctx context.Context, w http.ResponseWriter, text string) {
	sw, err := newStreamWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sw.comment("analysis stream")

	if err := transcript.ValidateText(text); err != nil {
		sw.send(protocol.Update{Stage: protocol.StageError, Err: err.Error(), Complete: true})
		return
	}

	steps := []protocol.Update{
		{Stage: protocol.StageEvidence, Status: protocol.StatusStarted},
		{Stage: protocol.StageEvidence, Status: protocol.StatusComplete, Data: mustMarshal(cannedEvidence())},
		{Stage: protocol.StageAnalysis, Status: protocol.StatusStarted},
		{Stage: protocol.StageAnalysis, Status: protocol.StatusComplete, Data: mustMarshal(cannedAnalysis()), Complete: true},
	}

	for i, u := range steps {
		if i > 0 && !s.pause(ctx) {
			return
		}
		if err := sw.send(u); err != nil {
			return
		}
	}
}

// pause sleeps the configured stage delay, reporting false if the
// client went away first.
func (s *Server) pause(ctx context.Context) bool {
	if s.delay <= 0 {
		return true
	}
	select {
	case <-time.After(s.delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
