// Package session owns the state of the current analysis run: result,
// loading flag, progress line, and error message. A single Controller
// mutates that state under one mutex and enforces one run at a time, so
// callers (TUI commands, CLI) never coordinate among themselves.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/callsight/internal/analysis"
	"github.com/abelbrown/callsight/internal/client"
	"github.com/abelbrown/callsight/internal/events"
	"github.com/abelbrown/callsight/internal/protocol"
	"github.com/abelbrown/callsight/internal/store"
	"github.com/abelbrown/callsight/internal/transcript"
)

// ErrRunActive rejects a second run while one is still in flight.
var ErrRunActive = errors.New("an analysis run is already in flight")

// ErrStreamEnded reports a stream that closed before the completion signal.
var ErrStreamEnded = errors.New("stream ended before analysis completed")

// ErrNoResult rejects a deal-review request when no completed analysis exists.
var ErrNoResult = errors.New("no completed analysis to review")

// Backend is the slice of the API client the controller needs.
type Backend interface {
	AnalyzeFile(ctx context.Context, filename string, content []byte) (client.Stream, error)
	AnalyzeText(ctx context.Context, text string) (client.Stream, error)
	AnalyzeSample(ctx context.Context) (client.Stream, error)
	DealReview(ctx context.Context, evidenceRegistry, analysisData json.RawMessage) (json.RawMessage, error)
}

// Compile-time check that the real client satisfies Backend.
var _ Backend = (*client.Client)(nil)

// State is a snapshot of the session, safe to hand to the UI. Result is
// shared by pointer and must be treated as read-only by consumers.
type State struct {
	RunID     string
	Result    *analysis.Result
	Loading   bool
	Reviewing bool
	Progress  string
	Err       string
}

// Controller runs analyses and owns session state. All exported methods
// are safe for concurrent use; runs themselves are serialized by an
// explicit guard rather than caller discipline.
type Controller struct {
	backend Backend
	history *store.Store // nil disables persistence
	events  *events.Logger

	mu      sync.Mutex
	state   State
	running bool

	updates chan State
}

// NewController creates a controller. history and ev may be nil.
func NewController(backend Backend, history *store.Store, ev *events.Logger) *Controller {
	return &Controller{
		backend: backend,
		history: history,
		events:  ev,
		updates: make(chan State, 16),
	}
}

// State returns the current session snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Updates returns the channel of state snapshots published after every
// mutation. The channel is buffered and never closed; slow consumers
// miss intermediate snapshots rather than blocking a run.
func (c *Controller) Updates() <-chan State {
	return c.updates
}

// ClearError dismisses the current error message.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Err = ""
	c.publishLocked()
}

// AnalyzeFile validates a transcript file locally, then streams it
// through the backend. The original file bytes are uploaded; extraction
// here exists only to fail fast and to size the history row.
func (c *Controller) AnalyzeFile(ctx context.Context, path string) error {
	content, text, err := loadFile(path)
	if err != nil {
		c.failImmediate(err)
		return err
	}

	name := filepath.Base(path)
	return c.run(ctx, analysis.SourceFile, len(text), func(ctx context.Context) (client.Stream, error) {
		return c.backend.AnalyzeFile(ctx, name, content)
	})
}

// AnalyzeText streams pasted transcript text through the backend.
func (c *Controller) AnalyzeText(ctx context.Context, text string) error {
	if err := transcript.ValidateText(text); err != nil {
		c.failImmediate(err)
		return err
	}

	return c.run(ctx, analysis.SourceText, len(text), func(ctx context.Context) (client.Stream, error) {
		return c.backend.AnalyzeText(ctx, text)
	})
}

// AnalyzeSample streams the backend's canned sample transcript.
func (c *Controller) AnalyzeSample(ctx context.Context) error {
	return c.run(ctx, analysis.SourceSample, 0, func(ctx context.Context) (client.Stream, error) {
		return c.backend.AnalyzeSample(ctx)
	})
}

func loadFile(path string) (content []byte, text string, err error) {
	content, text, err = transcript.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	if err := transcript.ValidateText(text); err != nil {
		return nil, "", err
	}
	return content, text, nil
}

// Consume drains a stream through an aggregator and returns the merged
// result. onUpdate, if non-nil, observes every event before it is
// applied. The caller owns the stream's lifecycle.
func Consume(ctx context.Context, stream client.Stream, source analysis.Source, onUpdate func(protocol.Update)) (*analysis.Result, error) {
	agg := analysis.NewAggregator(source)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		u, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if onUpdate != nil {
			onUpdate(u)
		}
		if done, aerr := agg.Apply(u); done {
			if aerr != nil {
				return nil, aerr
			}
			break
		}
	}

	res, err := agg.Result()
	if err != nil {
		if errors.Is(err, analysis.ErrIncomplete) {
			return nil, ErrStreamEnded
		}
		return nil, err
	}
	return res, nil
}

// run executes one streamed analysis end to end: guard, open, consume,
// merge, persist. Progress and loading state are cleared on every exit
// path; the error slot is set on failure and left alone on success.
func (c *Controller) run(ctx context.Context, source analysis.Source, transcriptChars int, open func(context.Context) (client.Stream, error)) error {
	runID, err := c.begin()
	if err != nil {
		return err
	}

	start := time.Now()
	c.emit(events.Event{
		Level: events.LevelInfo, Kind: events.KindRunStart, Comp: "session",
		RunID: runID, Source: string(source), Count: transcriptChars,
	})

	var runErr error
	defer func() {
		c.finish(runErr)
		if runErr != nil {
			c.emit(events.Event{
				Level: events.LevelError, Kind: events.KindRunError, Comp: "session",
				RunID: runID, Source: string(source), Err: runErr.Error(), Dur: time.Since(start),
			})
		}
	}()

	stream, err := open(ctx)
	if err != nil {
		runErr = err
		return runErr
	}
	defer stream.Close()

	res, err := Consume(ctx, stream, source, func(u protocol.Update) {
		if msg := analysis.ProgressMessage(u.Stage, u.Status, source); msg != "" {
			c.setProgress(msg)
		}
		c.emit(events.Event{
			Level: events.LevelDebug, Kind: events.KindRunStage, Comp: "session",
			RunID: runID, Stage: string(u.Stage), Msg: string(u.Status),
		})
	})
	if err != nil {
		runErr = err
		return runErr
	}

	c.setResult(runID, res)
	c.emit(events.Event{
		Level: events.LevelInfo, Kind: events.KindRunComplete, Comp: "session",
		RunID: runID, Source: string(source), Dur: time.Since(start),
		Count: len(res.EvidenceRegistry),
	})

	c.persist(runID, source, res, transcriptChars, time.Since(start))
	return nil
}

// RequestReview fetches a deal review for the current result and
// attaches it, updating the stored history row to match.
func (c *Controller) RequestReview(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrRunActive
	}
	res := c.state.Result
	runID := c.state.RunID
	if res == nil {
		c.mu.Unlock()
		return ErrNoResult
	}
	c.running = true
	c.state.Reviewing = true
	c.state.Err = ""
	c.publishLocked()
	c.mu.Unlock()

	c.emit(events.Event{Level: events.LevelInfo, Kind: events.KindReviewStart, Comp: "session", RunID: runID})

	evReg, anData := res.ReviewPayloads()
	raw, err := c.backend.DealReview(ctx, evReg, anData)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.state.Reviewing = false

	if err == nil {
		err = res.AttachReview(raw)
	}
	if err != nil {
		c.state.Err = userMessage(err)
		c.publishLocked()
		c.emit(events.Event{Level: events.LevelError, Kind: events.KindReviewError, Comp: "session", RunID: runID, Err: err.Error()})
		return err
	}

	c.publishLocked()
	c.emit(events.Event{Level: events.LevelInfo, Kind: events.KindReviewComplete, Comp: "session", RunID: runID})

	if c.history != nil && runID != "" {
		if err := c.history.AttachReview(runID, res.DealReview.StageReadiness, string(res.Merged)); err != nil {
			c.emit(events.Event{Level: events.LevelWarn, Kind: events.KindStoreError, Comp: "session", RunID: runID, Err: err.Error()})
		}
	}
	return nil
}

// begin claims the single-flight slot and resets per-run state.
func (c *Controller) begin() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return "", ErrRunActive
	}
	c.running = true

	runID := uuid.NewString()
	c.state.RunID = runID
	c.state.Loading = true
	c.state.Err = ""
	c.state.Progress = "Contacting analysis service..."
	c.publishLocked()
	return runID, nil
}

// finish releases the single-flight slot. Progress is ephemeral and is
// cleared whether the run succeeded or failed; the previous result stays
// visible on failure.
func (c *Controller) finish(runErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running = false
	c.state.Loading = false
	c.state.Progress = ""
	if runErr != nil {
		c.state.Err = userMessage(runErr)
	}
	c.publishLocked()
}

// failImmediate surfaces a pre-flight validation failure through the
// same state slots a failed run would use.
func (c *Controller) failImmediate(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Err = userMessage(err)
	c.publishLocked()
}

func (c *Controller) setProgress(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Progress = msg
	c.publishLocked()
}

func (c *Controller) setResult(runID string, res *analysis.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.RunID = runID
	c.state.Result = res
	c.publishLocked()
}

// publishLocked pushes a snapshot without blocking. When the buffer is
// full the oldest snapshot is dropped, so a slow consumer always ends up
// with the latest state. Caller holds c.mu.
func (c *Controller) publishLocked() {
	select {
	case c.updates <- c.state:
		return
	default:
	}
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- c.state:
	default:
	}
}

func (c *Controller) persist(runID string, source analysis.Source, res *analysis.Result, transcriptChars int, dur time.Duration) {
	if c.history == nil {
		return
	}

	run := store.Run{
		ID:              runID,
		Created:         time.Now(),
		Source:          string(source),
		IsSample:        res.IsSample,
		Duration:        dur,
		TranscriptChars: transcriptChars,
		EvidenceCount:   len(res.EvidenceRegistry),
		WhysComplete:    res.ThreeWhys.Completeness(),
		MEDDICComplete:  res.MEDDIC.Completeness(),
		ResultJSON:      string(res.Merged),
	}
	if err := c.history.SaveRun(run); err != nil {
		c.emit(events.Event{Level: events.LevelWarn, Kind: events.KindStoreError, Comp: "session", RunID: runID, Err: err.Error()})
		return
	}
	c.emit(events.Event{Level: events.LevelDebug, Kind: events.KindHistoryWrite, Comp: "session", RunID: runID})
}

func (c *Controller) emit(e events.Event) {
	if c.events != nil {
		c.events.Emit(e)
	}
}

// userMessage converts run failures to the single line shown in the UI.
// Server error events pass through verbatim.
func userMessage(err error) string {
	var logicErr *analysis.StreamLogicError
	if errors.As(err, &logicErr) {
		return logicErr.Message
	}
	var validationErr *transcript.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Reason
	}
	if errors.Is(err, context.Canceled) {
		return "Analysis canceled"
	}
	var transportErr *client.TransportError
	if errors.As(err, &transportErr) {
		return fmt.Sprintf("Analysis failed: %s", transportErr.Error())
	}
	return err.Error()
}
