package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abelbrown/callsight/internal/protocol"
)

func newTestClient(baseURL string) *Client {
	return New(baseURL, 5*time.Second, nil)
}

// writeStream emits the canonical four-event happy path, flushing
// between frames so the client sees a genuinely incremental body.
func writeStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	fl, _ := w.(http.Flusher)
	frames := []string{
		`data: {"stage":"evidence","status":"started"}`,
		`data: {"stage":"evidence","status":"complete","data":{"E001":{"quote":"q"}}}`,
		`data: {"stage":"analysis","status":"started"}`,
		`data: {"stage":"analysis","status":"complete","data":{"three_whys":{}},"complete":true}`,
	}
	for _, f := range frames {
		fmt.Fprintf(w, "%s\n\n", f)
		if fl != nil {
			fl.Flush()
		}
	}
}

func TestAnalyzeTextStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analysis/analyze-text-stream" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Text != "hello transcript" {
			t.Errorf("text = %q", body.Text)
		}
		writeStream(w)
	}))
	defer srv.Close()

	s, err := newTestClient(srv.URL).AnalyzeText(context.Background(), "hello transcript")
	if err != nil {
		t.Fatalf("AnalyzeText: %v", err)
	}
	defer s.Close()

	got := drainStream(t, s)
	if len(got) != 4 {
		t.Fatalf("expected 4 updates, got %d", len(got))
	}
	if got[0].Stage != protocol.StageEvidence || got[0].Status != protocol.StatusStarted {
		t.Errorf("first update = %+v", got[0])
	}
	if !got[3].Complete {
		t.Error("final update should be terminal")
	}
}

func TestAnalyzeFileMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analysis/analyze-stream" {
			t.Errorf("path = %q", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "call.txt" {
			t.Errorf("filename = %q", header.Filename)
		}
		content, _ := io.ReadAll(file)
		if string(content) != "transcript body" {
			t.Errorf("content = %q", content)
		}
		writeStream(w)
	}))
	defer srv.Close()

	s, err := newTestClient(srv.URL).AnalyzeFile(context.Background(), "call.txt", []byte("transcript body"))
	if err != nil {
		t.Fatalf("AnalyzeFile: %v", err)
	}
	defer s.Close()

	if got := drainStream(t, s); len(got) != 4 {
		t.Fatalf("expected 4 updates, got %d", len(got))
	}
}

func TestAnalyzeSampleEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analysis/analyze-sample-stream" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if len(body) != 0 {
			t.Errorf("expected empty body, got %q", body)
		}
		writeStream(w)
	}))
	defer srv.Close()

	s, err := newTestClient(srv.URL).AnalyzeSample(context.Background())
	if err != nil {
		t.Fatalf("AnalyzeSample: %v", err)
	}
	defer s.Close()

	if got := drainStream(t, s); len(got) != 4 {
		t.Fatalf("expected 4 updates, got %d", len(got))
	}
}

func TestStreamTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "analysis backend unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).AnalyzeSample(context.Background())
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T: %v", err, err)
	}
	if te.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d", te.StatusCode)
	}
	if te.Body != "analysis backend unavailable" {
		t.Errorf("body = %q", te.Body)
	}
}

func TestDealReview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analysis/deal-review" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body struct {
			EvidenceRegistry json.RawMessage `json:"evidence_registry"`
			AnalysisData     json.RawMessage `json:"analysis_data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if string(body.EvidenceRegistry) != `{"E001":{}}` {
			t.Errorf("evidence_registry = %s", body.EvidenceRegistry)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"deal_review":{"stage_readiness":"More Discovery Needed"}}`)
	}))
	defer srv.Close()

	review, err := newTestClient(srv.URL).DealReview(context.Background(),
		json.RawMessage(`{"E001":{}}`), json.RawMessage(`{"three_whys":{}}`))
	if err != nil {
		t.Fatalf("DealReview: %v", err)
	}

	var parsed struct {
		StageReadiness string `json:"stage_readiness"`
	}
	if err := json.Unmarshal(review, &parsed); err != nil {
		t.Fatalf("unmarshal review: %v", err)
	}
	if parsed.StageReadiness != "More Discovery Needed" {
		t.Errorf("stage_readiness = %q", parsed.StageReadiness)
	}
}

func TestDealReviewMissingPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).DealReview(context.Background(),
		json.RawMessage(`{}`), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error when deal_review is absent")
	}
}

func TestLegacyAnalyzeSample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analysis/analyze-sample" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"three_whys":{},"is_sample":true}`)
	}))
	defer srv.Close()

	raw, err := newTestClient(srv.URL).AnalyzeSampleOnce(context.Background())
	if err != nil {
		t.Fatalf("AnalyzeSampleOnce: %v", err)
	}

	var parsed struct {
		IsSample bool `json:"is_sample"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !parsed.IsSample {
		t.Error("is_sample should be true")
	}
}

func TestLegacyAnalyzeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"No file provided"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Analyze(context.Background(), "call.txt", []byte("x"))
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if te.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", te.StatusCode)
	}
}
