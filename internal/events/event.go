// Package events provides structured observability for Callsight.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer provides live in-memory inspection for the debug overlay.
package events

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Kind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type Kind string

const (
	// Analysis run lifecycle
	KindRunStart    Kind = "run.start"
	KindRunStage    Kind = "run.stage"
	KindRunComplete Kind = "run.complete"
	KindRunError    Kind = "run.error"

	// Stream consumption
	KindParseMalformed Kind = "parse.malformed"
	KindStreamClose    Kind = "stream.close"

	// Deal review (the follow-up, non-streamed request)
	KindReviewStart    Kind = "review.start"
	KindReviewComplete Kind = "review.complete"
	KindReviewError    Kind = "review.error"

	// HTTP client
	KindHTTPRequest Kind = "http.request"

	// History store
	KindHistoryWrite Kind = "history.write"
	KindStoreError   Kind = "store.error"

	// Stub backend
	KindServeStart   Kind = "serve.start"
	KindServeRequest Kind = "serve.request"

	// System events
	KindStartup  Kind = "sys.startup"
	KindShutdown Kind = "sys.shutdown"
	KindError    Kind = "sys.error"

	// Trace events (UI message flow, gated on CALLSIGHT_TRACE)
	KindMsgReceived Kind = "trace.msg_received"
	KindMsgHandled  Kind = "trace.msg_handled"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      Kind           `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "session", "client", "ui", "serve"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for entire app run
	RunID     string         `json:"run_id,omitempty"`     // analysis run correlation ID
	Dur       time.Duration  `json:"-"`                    // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"`     // computed from Dur at marshal time
	Source    string         `json:"source,omitempty"`     // "file", "text", "sample"
	Stage     string         `json:"stage,omitempty"`      // stream stage when relevant
	Endpoint  string         `json:"endpoint,omitempty"`   // request path for http events
	Status    int            `json:"status,omitempty"`     // HTTP status for http events
	Count     int            `json:"count,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`   // free text
	Extra     map[string]any `json:"extra,omitempty"` // escape hatch for unusual fields
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
