package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/callsight/internal/analysis"
	"github.com/abelbrown/callsight/internal/client"
	"github.com/abelbrown/callsight/internal/protocol"
	"github.com/abelbrown/callsight/internal/store"
)

// scriptedStream replays a fixed update sequence, then returns err or
// io.EOF. If gate is set, every Next blocks until the gate is closed.
type scriptedStream struct {
	updates []protocol.Update
	err     error
	gate    chan struct{}
	pos     int
	closed  int
}

func (s *scriptedStream) Next() (protocol.Update, error) {
	if s.gate != nil {
		<-s.gate
	}
	if s.pos >= len(s.updates) {
		if s.err != nil {
			return protocol.Update{}, s.err
		}
		return protocol.Update{}, io.EOF
	}
	u := s.updates[s.pos]
	s.pos++
	return u, nil
}

func (s *scriptedStream) Close() error {
	s.closed++
	return nil
}

type fakeBackend struct {
	mu        sync.Mutex
	stream    *scriptedStream
	openErr   error
	review    json.RawMessage
	reviewErr error

	opened       int
	lastFilename string
	lastContent  []byte
	lastText     string
	lastEvidence json.RawMessage
	lastAnalysis json.RawMessage
}

func (f *fakeBackend) open() (client.Stream, error) {
	f.opened++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.stream, nil
}

func (f *fakeBackend) AnalyzeFile(_ context.Context, filename string, content []byte) (client.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilename = filename
	f.lastContent = append([]byte(nil), content...)
	return f.open()
}

func (f *fakeBackend) AnalyzeText(_ context.Context, text string) (client.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastText = text
	return f.open()
}

func (f *fakeBackend) AnalyzeSample(context.Context) (client.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open()
}

func (f *fakeBackend) DealReview(_ context.Context, evidenceRegistry, analysisData json.RawMessage) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastEvidence = evidenceRegistry
	f.lastAnalysis = analysisData
	return f.review, f.reviewErr
}

func canonicalUpdates() []protocol.Update {
	return []protocol.Update{
		{Stage: protocol.StageEvidence, Status: protocol.StatusStarted},
		{Stage: protocol.StageEvidence, Status: protocol.StatusComplete,
			Data: json.RawMessage(`{"evidence_registry":{"E001":{"quote":"We need to reduce our pricing cycle from 3 weeks to 3 days","type":"quantitative_data"}}}`)},
		{Stage: protocol.StageAnalysis, Status: protocol.StatusStarted},
		{Stage: protocol.StageAnalysis, Status: protocol.StatusComplete, Complete: true,
			Data: json.RawMessage(`{"three_whys":{"corporate_objectives":{"summary":"Cut pricing cycle to 3 days","evidence_ids":["E001"]}},"meddic":{"metrics":{"summary":"3 weeks to 3 days","evidence_ids":["E001"]}}}`)},
	}
}

func validText() string {
	return strings.Repeat("We walked through the pricing workflow in detail. ", 4)
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// drainUpdates collects every buffered snapshot.
func drainUpdates(c *Controller) []State {
	var out []State
	for {
		select {
		case s := <-c.Updates():
			out = append(out, s)
		default:
			return out
		}
	}
}

func TestAnalyzeTextHappyPath(t *testing.T) {
	backend := &fakeBackend{stream: &scriptedStream{updates: canonicalUpdates()}}
	st := openTestStore(t)
	c := NewController(backend, st, nil)

	if err := c.AnalyzeText(context.Background(), validText()); err != nil {
		t.Fatalf("AnalyzeText: %v", err)
	}

	s := c.State()
	if s.Loading {
		t.Error("loading flag still set after run")
	}
	if s.Progress != "" {
		t.Errorf("progress not cleared: %q", s.Progress)
	}
	if s.Err != "" {
		t.Errorf("unexpected error state: %q", s.Err)
	}
	if s.Result == nil {
		t.Fatal("no result after successful run")
	}
	if _, ok := s.Result.EvidenceRegistry["E001"]; !ok {
		t.Errorf("evidence registry missing E001: %v", s.Result.EvidenceRegistry)
	}
	if backend.stream.closed != 1 {
		t.Errorf("stream closed %d times, want 1", backend.stream.closed)
	}

	runs, err := st.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d history rows, want 1", len(runs))
	}
	run := runs[0]
	if run.ID != s.RunID {
		t.Errorf("history row ID %q != state RunID %q", run.ID, s.RunID)
	}
	if run.Source != "text" {
		t.Errorf("source = %q, want text", run.Source)
	}
	if run.EvidenceCount != 1 {
		t.Errorf("evidence count = %d, want 1", run.EvidenceCount)
	}
	if run.TranscriptChars != len(validText()) {
		t.Errorf("transcript chars = %d, want %d", run.TranscriptChars, len(validText()))
	}
	if run.WhysComplete != 1 || run.MEDDICComplete != 1 {
		t.Errorf("completeness = %d/%d, want 1/1", run.WhysComplete, run.MEDDICComplete)
	}
}

func TestRunPublishesProgressSnapshots(t *testing.T) {
	backend := &fakeBackend{stream: &scriptedStream{updates: canonicalUpdates()}}
	c := NewController(backend, nil, nil)

	if err := c.AnalyzeText(context.Background(), validText()); err != nil {
		t.Fatalf("AnalyzeText: %v", err)
	}

	snaps := drainUpdates(c)
	if len(snaps) == 0 {
		t.Fatal("no snapshots published")
	}

	first := snaps[0]
	if !first.Loading || first.Progress != "Contacting analysis service..." {
		t.Errorf("first snapshot = %+v, want loading with initial progress", first)
	}

	var sawExtracting bool
	for _, s := range snaps {
		if s.Progress == "Extracting evidence from the pasted transcript..." {
			sawExtracting = true
		}
	}
	if !sawExtracting {
		t.Error("never published evidence-stage progress")
	}

	last := snaps[len(snaps)-1]
	if last.Loading || last.Progress != "" || last.Result == nil {
		t.Errorf("final snapshot = %+v, want settled state with result", last)
	}
}

func TestSecondRunRejectedWhileActive(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{stream: &scriptedStream{updates: canonicalUpdates(), gate: gate}}
	c := NewController(backend, nil, nil)

	done := make(chan error, 1)
	go func() { done <- c.AnalyzeSample(context.Background()) }()

	waitFor(t, func() bool { return c.State().Loading })

	if err := c.AnalyzeText(context.Background(), validText()); !errors.Is(err, ErrRunActive) {
		t.Errorf("concurrent run error = %v, want ErrRunActive", err)
	}
	if err := c.RequestReview(context.Background()); !errors.Is(err, ErrRunActive) {
		t.Errorf("concurrent review error = %v, want ErrRunActive", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// Slot released; a new run is accepted.
	backend.stream = &scriptedStream{updates: canonicalUpdates()}
	if err := c.AnalyzeText(context.Background(), validText()); err != nil {
		t.Fatalf("run after release: %v", err)
	}
}

func TestServerErrorEventSurfacesVerbatim(t *testing.T) {
	backend := &fakeBackend{stream: &scriptedStream{updates: []protocol.Update{
		{Stage: protocol.StageError, Err: "Transcript too short", Complete: true},
	}}}
	st := openTestStore(t)
	c := NewController(backend, st, nil)

	err := c.AnalyzeSample(context.Background())
	var logicErr *analysis.StreamLogicError
	if !errors.As(err, &logicErr) {
		t.Fatalf("error = %v, want StreamLogicError", err)
	}

	s := c.State()
	if s.Err != "Transcript too short" {
		t.Errorf("state error = %q, want backend message verbatim", s.Err)
	}
	if s.Loading || s.Progress != "" {
		t.Errorf("run state not settled: %+v", s)
	}

	runs, err := st.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("failed run persisted %d rows", len(runs))
	}
}

func TestFailedRunKeepsPreviousResult(t *testing.T) {
	backend := &fakeBackend{stream: &scriptedStream{updates: canonicalUpdates()}}
	c := NewController(backend, nil, nil)

	if err := c.AnalyzeText(context.Background(), validText()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstResult := c.State().Result

	backend.stream = &scriptedStream{updates: []protocol.Update{
		{Stage: protocol.StageError, Err: "Analysis failed: model overloaded", Complete: true},
	}}
	if err := c.AnalyzeSample(context.Background()); err == nil {
		t.Fatal("expected second run to fail")
	}

	s := c.State()
	if s.Result != firstResult {
		t.Error("failed run replaced the previous result")
	}
	if s.Err != "Analysis failed: model overloaded" {
		t.Errorf("state error = %q", s.Err)
	}
}

func TestNewRunClearsError(t *testing.T) {
	backend := &fakeBackend{stream: &scriptedStream{updates: []protocol.Update{
		{Stage: protocol.StageError, Err: "Transcript too long", Complete: true},
	}}}
	c := NewController(backend, nil, nil)

	if err := c.AnalyzeSample(context.Background()); err == nil {
		t.Fatal("expected failure")
	}
	if c.State().Err == "" {
		t.Fatal("error state not set")
	}

	backend.stream = &scriptedStream{updates: canonicalUpdates()}
	if err := c.AnalyzeSample(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := c.State().Err; got != "" {
		t.Errorf("error not cleared by new run: %q", got)
	}
}

func TestClearErrorDismisses(t *testing.T) {
	backend := &fakeBackend{stream: &scriptedStream{updates: []protocol.Update{
		{Stage: protocol.StageError, Err: "Transcript too short", Complete: true},
	}}}
	c := NewController(backend, nil, nil)

	_ = c.AnalyzeSample(context.Background())
	c.ClearError()
	if got := c.State().Err; got != "" {
		t.Errorf("error survived ClearError: %q", got)
	}
}

func TestStreamEndWithoutCompletion(t *testing.T) {
	backend := &fakeBackend{stream: &scriptedStream{updates: canonicalUpdates()[:2]}}
	c := NewController(backend, nil, nil)

	err := c.AnalyzeSample(context.Background())
	if !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("error = %v, want ErrStreamEnded", err)
	}
	if got := c.State().Err; got != ErrStreamEnded.Error() {
		t.Errorf("state error = %q", got)
	}
}

func TestReadErrorMidStream(t *testing.T) {
	backend := &fakeBackend{stream: &scriptedStream{
		updates: canonicalUpdates()[:2],
		err:     fmt.Errorf("read stream: %w", errors.New("connection reset")),
	}}
	c := NewController(backend, nil, nil)

	err := c.AnalyzeSample(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("error = %v, want wrapped read failure", err)
	}
	if s := c.State(); s.Loading || s.Progress != "" {
		t.Errorf("run state not settled after read error: %+v", s)
	}
}

func TestCanceledRunReportsCancellation(t *testing.T) {
	backend := &fakeBackend{stream: &scriptedStream{
		updates: canonicalUpdates()[:1],
		err:     fmt.Errorf("read stream: %w", context.Canceled),
	}}
	c := NewController(backend, nil, nil)

	err := c.AnalyzeSample(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if got := c.State().Err; got != "Analysis canceled" {
		t.Errorf("state error = %q, want friendly cancellation message", got)
	}
}

func TestInvalidTextFailsBeforeRequest(t *testing.T) {
	backend := &fakeBackend{}
	c := NewController(backend, nil, nil)

	err := c.AnalyzeText(context.Background(), "too short")
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if backend.opened != 0 {
		t.Errorf("backend called %d times for invalid input", backend.opened)
	}
	if got := c.State().Err; got != "Transcript too short" {
		t.Errorf("state error = %q", got)
	}
}

func TestAnalyzeFileUploadsOriginalBytes(t *testing.T) {
	raw := []byte(validText())
	path := filepath.Join(t.TempDir(), "discovery call.txt")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	backend := &fakeBackend{stream: &scriptedStream{updates: canonicalUpdates()}}
	st := openTestStore(t)
	c := NewController(backend, st, nil)

	if err := c.AnalyzeFile(context.Background(), path); err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}

	if backend.lastFilename != "discovery call.txt" {
		t.Errorf("uploaded filename = %q", backend.lastFilename)
	}
	if string(backend.lastContent) != string(raw) {
		t.Error("uploaded bytes differ from file contents")
	}

	runs, _ := st.ListRuns(1)
	if len(runs) != 1 || runs[0].Source != "file" {
		t.Fatalf("history rows = %+v, want one file-source run", runs)
	}
	if runs[0].TranscriptChars != len(raw) {
		t.Errorf("transcript chars = %d, want %d", runs[0].TranscriptChars, len(raw))
	}
}

func TestAnalyzeFileRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	if err := os.WriteFile(path, []byte(validText()), 0o600); err != nil {
		t.Fatal(err)
	}

	backend := &fakeBackend{}
	c := NewController(backend, nil, nil)

	if err := c.AnalyzeFile(context.Background(), path); err == nil {
		t.Fatal("expected rejection")
	}
	if backend.opened != 0 {
		t.Errorf("backend called for invalid file")
	}
	if got := c.State().Err; !strings.Contains(got, ".pdf not allowed") {
		t.Errorf("state error = %q", got)
	}
}

func TestRequestReviewAttachesAndPersists(t *testing.T) {
	backend := &fakeBackend{
		stream: &scriptedStream{updates: canonicalUpdates()},
		review: json.RawMessage(`{"stage_readiness":"More Discovery Needed","confidence_note":"Missing decision process.","critical_gaps":["No timeline"],"next_call_objectives":["Confirm decision date"]}`),
	}
	st := openTestStore(t)
	c := NewController(backend, st, nil)

	if err := c.AnalyzeText(context.Background(), validText()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := c.RequestReview(context.Background()); err != nil {
		t.Fatalf("RequestReview: %v", err)
	}

	s := c.State()
	if s.Result.DealReview == nil || s.Result.DealReview.StageReadiness != "More Discovery Needed" {
		t.Fatalf("review not attached: %+v", s.Result.DealReview)
	}
	if s.Reviewing {
		t.Error("reviewing flag still set")
	}

	// The review request carries the unwrapped registry, not the phase wrapper.
	var reg map[string]json.RawMessage
	if err := json.Unmarshal(backend.lastEvidence, &reg); err != nil {
		t.Fatalf("unmarshal sent registry: %v", err)
	}
	if _, ok := reg["E001"]; !ok {
		t.Errorf("sent registry = %s, want bare evidence map", backend.lastEvidence)
	}
	if _, ok := reg["evidence_registry"]; ok {
		t.Error("sent registry still wrapped")
	}

	run, err := st.GetRun(s.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !run.HasDealReview || run.StageReadiness != "More Discovery Needed" {
		t.Errorf("history row not updated: %+v", run)
	}
	if !strings.Contains(run.ResultJSON, `"deal_review"`) {
		t.Error("persisted result missing deal_review key")
	}
}

func TestRequestReviewWithoutResult(t *testing.T) {
	c := NewController(&fakeBackend{}, nil, nil)
	if err := c.RequestReview(context.Background()); !errors.Is(err, ErrNoResult) {
		t.Errorf("error = %v, want ErrNoResult", err)
	}
}

func TestRequestReviewFailureSetsError(t *testing.T) {
	backend := &fakeBackend{
		stream:    &scriptedStream{updates: canonicalUpdates()},
		reviewErr: errors.New("deal review response missing payload"),
	}
	c := NewController(backend, nil, nil)

	if err := c.AnalyzeText(context.Background(), validText()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := c.RequestReview(context.Background()); err == nil {
		t.Fatal("expected review failure")
	}

	s := c.State()
	if s.Err == "" {
		t.Error("review failure left no error state")
	}
	if s.Reviewing {
		t.Error("reviewing flag still set after failure")
	}
	if s.Result == nil || s.Result.DealReview != nil {
		t.Error("failed review should not attach anything")
	}
}

func TestNilStoreSkipsPersistence(t *testing.T) {
	backend := &fakeBackend{stream: &scriptedStream{updates: canonicalUpdates()}}
	c := NewController(backend, nil, nil)

	if err := c.AnalyzeText(context.Background(), validText()); err != nil {
		t.Fatalf("AnalyzeText: %v", err)
	}
	if c.State().Result == nil {
		t.Fatal("no result")
	}
}

func TestConsumeStandalone(t *testing.T) {
	stream := &scriptedStream{updates: canonicalUpdates()}

	var stages []protocol.Stage
	res, err := Consume(context.Background(), stream, analysis.SourceFile, func(u protocol.Update) {
		stages = append(stages, u.Stage)
	})
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if res == nil || len(res.EvidenceRegistry) == 0 {
		t.Fatal("no evidence in result")
	}
	if len(stages) != 4 {
		t.Fatalf("observed %d updates, want 4", len(stages))
	}
	if stages[0] != protocol.StageEvidence || stages[3] != protocol.StageAnalysis {
		t.Fatalf("unexpected stage order: %v", stages)
	}
}

func TestConsumeNilObserver(t *testing.T) {
	stream := &scriptedStream{updates: canonicalUpdates()}
	if _, err := Consume(context.Background(), stream, analysis.SourceText, nil); err != nil {
		t.Fatalf("Consume: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestUpdatesKeepLatestWhenFull(t *testing.T) {
	c := NewController(&fakeBackend{}, nil, nil)

	// Publish far more snapshots than the channel buffers, with nobody
	// draining. The oldest must give way, never the newest.
	for i := 0; i < 40; i++ {
		c.setProgress(fmt.Sprintf("step %d", i))
	}

	var last State
	for len(c.Updates()) > 0 {
		last = <-c.Updates()
	}

	if last.Progress != "step 39" {
		t.Errorf("latest snapshot should survive a full buffer, got %q", last.Progress)
	}
}
