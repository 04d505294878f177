// Package ui provides the Bubble Tea TUI for callsight.
package ui

import (
	"github.com/abelbrown/callsight/internal/analysis"
	"github.com/abelbrown/callsight/internal/session"
	"github.com/abelbrown/callsight/internal/store"
)

// SessionUpdated carries a controller state snapshot, pushed through
// tea.Program.Send by the coordinator.
type SessionUpdated struct {
	State session.State
}

// RunStarted carries the error from an analysis command. ErrRunActive
// means the controller refused to start a second run; other failures
// also arrive as state snapshots, which is where the UI shows them.
type RunStarted struct {
	Err error
}

// ReviewRequested reports the launch of a deal-review request.
type ReviewRequested struct {
	Err error
}

// HistoryLoaded is sent when stored runs have been fetched.
type HistoryLoaded struct {
	Runs []store.Run
	Err  error
}

// RunOpened is sent when a stored run's result has been rehydrated.
type RunOpened struct {
	Result *analysis.Result
	Err    error
}
