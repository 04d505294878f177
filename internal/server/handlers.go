package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/abelbrown/callsight/internal/transcript"
)

// maxBodyBytes caps JSON request bodies. Oversized transcripts still get
// a proper "Transcript too long" from the pipeline; this only guards
// against unbounded reads.
const maxBodyBytes = 10 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// readUpload pulls the transcript file out of a multipart request and
// extracts its text. Any returned error carries the user-facing message
// for a 400 response.
func readUpload(r *http.Request) (string, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", errors.New("No file provided")
	}
	defer file.Close()

	if err := transcript.ValidateFilename(header.Filename); err != nil {
		return "", err
	}
	if err := transcript.ValidateSize(header.Size); err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(file, transcript.MaxUploadBytes))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}

	return transcript.Extract(header.Filename, data)
}

func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	text, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.streamAnalysis(r.Context(), w, text)
}

func (s *Server) handleAnalyzeTextStream(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}
	s.streamAnalysis(r.Context(), w, req.Text)
}

func (s *Server) handleAnalyzeSampleStream(w http.ResponseWriter, r *http.Request) {
	s.streamAnalysis(r.Context(), w, transcript.Sample())
}

func (s *Server) handleDealReview(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}

	var req struct {
		EvidenceRegistry json.RawMessage `json:"evidence_registry"`
		AnalysisData     json.RawMessage `json:"analysis_data"`
	}
	if err := json.Unmarshal(body, &req); err != nil || emptyJSON(body) {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}
	if emptyJSON(req.EvidenceRegistry) || emptyJSON(req.AnalysisData) {
		writeError(w, http.StatusBadRequest, "Missing analysis data for deal review")
		return
	}

	writeJSON(w, http.StatusOK, cannedReview())
}

// mergedResult is the non-streamed response shape: both phase payloads
// flattened into one object plus the sample marker.
type mergedResult struct {
	evidencePayload
	analysisPayload
	IsSample bool `json:"is_sample"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	text, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondMerged(w, text, false)
}

func (s *Server) handleAnalyzeSample(w http.ResponseWriter, r *http.Request) {
	s.respondMerged(w, transcript.Sample(), true)
}

func (s *Server) respondMerged(w http.ResponseWriter, text string, isSample bool) {
	if err := transcript.ValidateText(text); err != nil {
		prefix := "Analysis failed"
		if isSample {
			prefix = "Sample analysis failed"
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("%s: %s", prefix, err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, mergedResult{
		evidencePayload: cannedEvidence(),
		analysisPayload: cannedAnalysis(),
		IsSample:        isSample,
	})
}

// emptyJSON reports whether a raw value is absent or an empty object,
// both of which the review endpoint treats as missing.
func emptyJSON(raw json.RawMessage) bool {
	t := strings.TrimSpace(string(raw))
	return t == "" || t == "null" || t == "{}"
}
