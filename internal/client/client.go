// Package client talks to the Callsight analysis backend. Streaming
// endpoints return a Stream of protocol updates; the deal-review and
// legacy endpoints are plain request/response.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/callsight/internal/events"
)

const (
	analyzeStreamPath = "/api/analysis/analyze-stream"
	sampleStreamPath  = "/api/analysis/analyze-sample-stream"
	textStreamPath    = "/api/analysis/analyze-text-stream"
	dealReviewPath    = "/api/analysis/deal-review"
	analyzePath       = "/api/analysis/analyze"
	sampleLegacyPath  = "/api/analysis/analyze-sample"
)

// maxErrorBody caps how much of a failed response we keep for the error message.
const maxErrorBody = 8 << 10

// TransportError reports a non-2xx response from the backend, raised
// before any stream consumption begins.
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Body)
}

// Client is an analysis backend client. Safe for concurrent use, though
// each returned Stream belongs to a single consumer.
type Client struct {
	baseURL string
	httpc   *http.Client
	limiter *rate.Limiter
	events  *events.Logger
}

// New creates a Client for the backend at baseURL. The timeout covers an
// entire exchange including stream consumption, so it should be generous
// (analysis runs take tens of seconds). A nil events logger disables
// observability output.
func New(baseURL string, timeout time.Duration, ev *events.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		events:  ev,
	}
}

// AnalyzeFile streams analysis of an uploaded transcript file.
func (c *Client) AnalyzeFile(ctx context.Context, filename string, content []byte) (Stream, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}

	return c.openStream(ctx, analyzeStreamPath, w.FormDataContentType(), &buf)
}

// AnalyzeText streams analysis of pasted transcript text.
func (c *Client) AnalyzeText(ctx context.Context, text string) (Stream, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.openStream(ctx, textStreamPath, "application/json", bytes.NewReader(body))
}

// AnalyzeSample streams analysis of the backend's canned sample transcript.
func (c *Client) AnalyzeSample(ctx context.Context) (Stream, error) {
	return c.openStream(ctx, sampleStreamPath, "", nil)
}

// openStream issues a streaming POST and wraps the response body. The
// body is handed to the returned Stream, which owns its release; on any
// error path here the body is closed before returning.
func (c *Client) openStream(ctx context.Context, path, contentType string, body io.Reader) (Stream, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	c.emit(events.Event{
		Level:    events.LevelDebug,
		Kind:     events.KindHTTPRequest,
		Comp:     "client",
		Endpoint: path,
		Status:   resp.StatusCode,
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(errBody))}
	}

	return newHTTPStream(resp.Body, c.events), nil
}

// DealReview requests a generated deal review for a completed analysis.
// Both arguments are the raw payloads from the corresponding stream
// phases. Returns the review payload.
func (c *Client) DealReview(ctx context.Context, evidenceRegistry, analysisData json.RawMessage) (json.RawMessage, error) {
	reqBody, err := json.Marshal(map[string]json.RawMessage{
		"evidence_registry": evidenceRegistry,
		"analysis_data":     analysisData,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.postJSON(ctx, dealReviewPath, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		DealReview json.RawMessage `json:"deal_review"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse deal review response: %w", err)
	}
	if len(parsed.DealReview) == 0 {
		return nil, fmt.Errorf("deal review response missing payload")
	}
	return parsed.DealReview, nil
}

// Analyze calls the non-streaming legacy endpoint for a transcript file.
// Returns the merged result payload as produced by the backend.
func (c *Client) Analyze(ctx context.Context, filename string, content []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}

	return c.postJSON(ctx, analyzePath, w.FormDataContentType(), &buf)
}

// AnalyzeSampleOnce calls the non-streaming legacy sample endpoint.
func (c *Client) AnalyzeSampleOnce(ctx context.Context) (json.RawMessage, error) {
	return c.postJSON(ctx, sampleLegacyPath, "", nil)
}

// postJSON issues a POST and returns the response body for 2xx statuses.
func (c *Client) postJSON(ctx context.Context, path, contentType string, body io.Reader) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.emit(events.Event{
		Level:    events.LevelDebug,
		Kind:     events.KindHTTPRequest,
		Comp:     "client",
		Endpoint: path,
		Status:   resp.StatusCode,
	})

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
	}
	return respBody, nil
}

func (c *Client) emit(e events.Event) {
	if c.events != nil {
		c.events.Emit(e)
	}
}
