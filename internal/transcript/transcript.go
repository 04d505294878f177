// Package transcript validates and loads sales-call transcripts from
// files, pasted text, and the embedded sample.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	_ "embed"
)

// Upload and analysis limits. The char bounds mirror the backend's own
// validation so obviously bad input fails before a network round trip.
const (
	MaxUploadBytes = 5 * 1024 * 1024
	MaxChars       = 50000
	MinChars       = 50

	// minContentChars is the floor for extracted file content; anything
	// shorter is treated as an unreadable file rather than a transcript.
	minContentChars = 10
)

//go:embed sample_transcript.txt
var sampleTranscript string

// Sample returns the embedded sample transcript.
func Sample() string {
	return sampleTranscript
}

// ValidationError is a user-facing rejection of an upload or pasted text.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ValidateFilename checks the upload name and extension.
func ValidateFilename(name string) error {
	if name == "" {
		return &ValidationError{Reason: "No file selected"}
	}
	if !strings.Contains(name, ".") {
		return &ValidationError{Reason: "File must have an extension"}
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext != "txt" && ext != "docx" {
		return &ValidationError{Reason: fmt.Sprintf("File type .%s not allowed. Only .txt and .docx files are supported", ext)}
	}
	return nil
}

// ValidateSize checks the upload byte size.
func ValidateSize(size int64) error {
	if size > MaxUploadBytes {
		return &ValidationError{Reason: fmt.Sprintf("File too large. Maximum size is %dMB", MaxUploadBytes/(1024*1024))}
	}
	if size == 0 {
		return &ValidationError{Reason: "File is empty"}
	}
	return nil
}

// ValidateText checks transcript length bounds for analysis.
func ValidateText(text string) error {
	if len(text) > MaxChars {
		return &ValidationError{Reason: "Transcript too long"}
	}
	if len(strings.TrimSpace(text)) < MinChars {
		return &ValidationError{Reason: "Transcript too short"}
	}
	return nil
}

// errUnreadable is the user-facing message for any extraction failure:
// wrong encoding, corrupt docx, or content too short to be a transcript.
const errUnreadable = "Could not read file content. Please ensure it's a valid .txt or .docx file"

// FromFile loads transcript text from a .txt or .docx file, applying
// the same validation an upload would receive.
func FromFile(path string) (string, error) {
	_, text, err := LoadFile(path)
	return text, err
}

// LoadFile validates and reads a transcript file, returning both the
// raw bytes (what an upload would carry) and the extracted text.
func LoadFile(path string) (raw []byte, text string, err error) {
	name := filepath.Base(path)
	if err := ValidateFilename(name); err != nil {
		return nil, "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("stat %s: %w", name, err)
	}
	if err := ValidateSize(info.Size()); err != nil {
		return nil, "", err
	}

	raw, err = os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", name, err)
	}

	text, err = Extract(name, raw)
	if err != nil {
		return nil, "", err
	}
	return raw, text, nil
}

// Extract converts raw upload bytes to transcript text based on the
// file extension. The filename must already be validated.
func Extract(name string, data []byte) (string, error) {
	var content string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		if !utf8.Valid(data) {
			return "", &ValidationError{Reason: errUnreadable}
		}
		content = string(data)
	case ".docx":
		text, err := extractDocx(data)
		if err != nil {
			return "", &ValidationError{Reason: errUnreadable}
		}
		content = text
	default:
		return "", &ValidationError{Reason: errUnreadable}
	}

	if len(strings.TrimSpace(content)) < minContentChars {
		return "", &ValidationError{Reason: errUnreadable}
	}
	return content, nil
}
