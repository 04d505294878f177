package e2e

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abelbrown/callsight/internal/config"
	"github.com/abelbrown/callsight/internal/events"
	"github.com/abelbrown/callsight/internal/server"
	"github.com/abelbrown/callsight/internal/store"
)

// fixtureResult is a stored merged result with two filled sections per
// framework, enough to list and reopen the run.
const fixtureResult = `{"is_sample":false,` +
	`"evidence_registry":{"E001":{"quote":"We lose six hours a week to manual exports.","type":"process_detail","context":"Operations lead on reporting overhead","relevance":"Quantifies the cost of the status quo"}},` +
	`"three_whys":{"corporate_objectives":{"summary":"Cut reporting overhead this fiscal year","evidence_ids":["E001"]},"domain_initiatives":{"summary":"No evidence found","evidence_ids":[]},"domain_challenges":{"summary":"Analysts rebuild the same reports by hand","evidence_ids":["E001"]}},` +
	`"meddic":{"metrics":{"summary":"Six hours a week across the team","evidence_ids":["E001"]},"economic_buyer":{"summary":"No evidence found","evidence_ids":[]},"decision_process":{"summary":"No evidence found","evidence_ids":[]},"decision_criteria":{"summary":"No evidence found","evidence_ids":[]},"implicated_pain":{"summary":"Reporting backlog delays the quarterly close","evidence_ids":["E001"]},"champion":{"summary":"No evidence found","evidence_ids":[]}}}`

func seedFixtureDB(homeDir string) error {
	dataDir := filepath.Join(homeDir, ".callsight")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	st, err := store.Open(config.HistoryDBPath(dataDir))
	if err != nil {
		return err
	}
	defer st.Close()

	return st.SaveRun(store.Run{
		ID:              "e2efeed1-0000-4000-8000-000000000001",
		Created:         time.Now().UTC().Add(-10 * time.Minute),
		Source:          "file",
		Duration:        2 * time.Second,
		TranscriptChars: 1840,
		EvidenceCount:   1,
		WhysComplete:    2,
		MEDDICComplete:  2,
		ResultJSON:      fixtureResult,
	})
}

// startStubBackend serves the canned analysis over a real listener so
// the built binary can reach it with CALLSIGHT_BASE_URL.
func startStubBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := server.New("", 10*time.Millisecond, events.NewNullLogger())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}
