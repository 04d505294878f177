// Package protocol defines the analysis stream wire format.
//
// The backend reports progress as newline-delimited text frames. Frames that
// carry data begin with the literal prefix "data: " followed by a JSON object
// describing one Update. Everything else on the wire (blank lines, ":"
// comment keep-alives, unknown prefixes) is padding and is skipped by the
// parser without error.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Stage identifies which phase of the analysis an Update belongs to.
type Stage string

const (
	StageEvidence Stage = "evidence"
	StageAnalysis Stage = "analysis"
	StageError    Stage = "error"
)

// Status is the sub-state within a stage.
type Status string

const (
	StatusStarted  Status = "started"
	StatusComplete Status = "complete"
)

// Update is one event in an analysis stream.
//
// Data is present only when Status is "complete" and is left opaque here;
// the aggregation layer decides what to do with it. Err is present only on
// error-stage updates. Complete is true exactly on the final event of a
// stream; once observed, no further events follow.
type Update struct {
	Stage    Stage           `json:"stage"`
	Status   Status          `json:"status,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Err      string          `json:"error,omitempty"`
	Complete bool            `json:"complete"`
}

// IsTerminal reports whether no further updates should be read after this one.
func (u Update) IsTerminal() bool {
	return u.Complete || u.Stage == StageError
}

// MalformedEventError describes a data-bearing line whose payload could not
// be decoded. It is non-fatal: consumers log it and keep reading.
type MalformedEventError struct {
	Line string
	Err  error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("protocol: malformed event line %q: %v", e.Line, e.Err)
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}
