package analysis

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/abelbrown/callsight/internal/protocol"
)

// Source identifies how a run's transcript was supplied. It determines
// the provenance flag stamped on the merged result and the wording of
// progress messages.
type Source string

const (
	SourceFile   Source = "file"
	SourceText   Source = "text"
	SourceSample Source = "sample"
)

// State is the aggregator's position in its lifecycle.
type State int

const (
	StateCollecting State = iota
	StateMerged             // terminal: result available
	StateFailed             // terminal: error available
)

// StreamLogicError carries an explicit error event from the server. The
// message is surfaced to the user exactly as sent.
type StreamLogicError struct {
	Message string
}

func (e *StreamLogicError) Error() string { return e.Message }

// ErrPrematureCompletion reports a completion signal that arrived before
// both phase payloads were populated. No result is produced.
var ErrPrematureCompletion = errors.New("stream completed before both analysis phases arrived")

// ErrIncomplete is returned by Result while the aggregator is still collecting.
var ErrIncomplete = errors.New("analysis still collecting")

// Aggregator folds stream updates into a merged Result. It holds two
// phase slots, evidence and analysis, and merges them exactly once when
// the completion flag arrives with both populated. Not safe for
// concurrent use; one aggregator serves one run.
type Aggregator struct {
	source   Source
	state    State
	evidence json.RawMessage
	analysis json.RawMessage
	result   *Result
	err      error
}

// NewAggregator creates an aggregator for a run with the given source.
func NewAggregator(source Source) *Aggregator {
	return &Aggregator{source: source}
}

// State returns the aggregator's current state.
func (a *Aggregator) State() State { return a.state }

// Apply folds one update into the aggregator. It returns done=true when
// the run is terminal: merged, failed on a server error event, or failed
// on premature completion. Updates after a terminal state are ignored.
// Status updates with no data (the "started" markers) change no state.
func (a *Aggregator) Apply(u protocol.Update) (done bool, err error) {
	if a.state != StateCollecting {
		return true, a.err
	}

	if u.Stage == protocol.StageError {
		a.fail(&StreamLogicError{Message: u.Err})
		return true, a.err
	}

	if u.Status == protocol.StatusComplete && len(u.Data) > 0 {
		switch u.Stage {
		case protocol.StageEvidence:
			a.evidence = u.Data
		case protocol.StageAnalysis:
			a.analysis = u.Data
		}
	}

	if u.Complete {
		return true, a.finish()
	}
	return false, nil
}

// Result returns the merged result once the aggregator is terminal.
// A partial aggregate is never exposed.
func (a *Aggregator) Result() (*Result, error) {
	switch a.state {
	case StateMerged:
		return a.result, nil
	case StateFailed:
		return nil, a.err
	default:
		return nil, ErrIncomplete
	}
}

func (a *Aggregator) fail(err error) {
	a.err = err
	a.state = StateFailed
}

// finish runs the merge on the completion signal. Both phases must have
// arrived; otherwise the run fails with ErrPrematureCompletion.
func (a *Aggregator) finish() error {
	if len(a.evidence) == 0 || len(a.analysis) == 0 {
		a.fail(ErrPrematureCompletion)
		return a.err
	}

	res, err := merge(a.evidence, a.analysis, a.source)
	if err != nil {
		a.fail(err)
		return a.err
	}

	a.result = res
	a.state = StateMerged
	return nil
}

// merge builds the shallow union of the two phase payloads. Analysis
// fields are applied after evidence fields, so analysis wins on key
// collision. The provenance flag is stamped last.
func merge(evidence, analysis json.RawMessage, source Source) (*Result, error) {
	union := make(map[string]json.RawMessage)
	if err := json.Unmarshal(evidence, &union); err != nil {
		return nil, fmt.Errorf("merge evidence payload: %w", err)
	}

	var analysisFields map[string]json.RawMessage
	if err := json.Unmarshal(analysis, &analysisFields); err != nil {
		return nil, fmt.Errorf("merge analysis payload: %w", err)
	}
	for k, v := range analysisFields {
		union[k] = v
	}

	isSample := source == SourceSample
	union["is_sample"], _ = json.Marshal(isSample)

	merged, err := json.Marshal(union)
	if err != nil {
		return nil, fmt.Errorf("encode merged result: %w", err)
	}

	res := &Result{
		IsSample:    isSample,
		EvidenceRaw: evidence,
		AnalysisRaw: analysis,
		Merged:      merged,
	}

	// Typed projections are best effort; the wire union in Merged stays
	// authoritative for anything that does not decode.
	if raw, ok := union["evidence_registry"]; ok {
		json.Unmarshal(raw, &res.EvidenceRegistry)
	}
	if raw, ok := union["three_whys"]; ok {
		json.Unmarshal(raw, &res.ThreeWhys)
	}
	if raw, ok := union["meddic"]; ok {
		json.Unmarshal(raw, &res.MEDDIC)
	}

	return res, nil
}
