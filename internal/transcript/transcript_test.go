package transcript

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name    string
		wantErr string
	}{
		{"call.txt", ""},
		{"call.docx", ""},
		{"CALL.TXT", ""},
		{"", "No file selected"},
		{"transcript", "File must have an extension"},
		{"call.pdf", "File type .pdf not allowed. Only .txt and .docx files are supported"},
		{"call.exe", "File type .exe not allowed. Only .txt and .docx files are supported"},
	}
	for _, tt := range tests {
		err := ValidateFilename(tt.name)
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("ValidateFilename(%q) = %v, want nil", tt.name, err)
			}
			continue
		}
		if err == nil || err.Error() != tt.wantErr {
			t.Errorf("ValidateFilename(%q) = %v, want %q", tt.name, err, tt.wantErr)
		}
	}
}

func TestValidateSize(t *testing.T) {
	if err := ValidateSize(1024); err != nil {
		t.Errorf("1KB should be valid: %v", err)
	}
	if err := ValidateSize(MaxUploadBytes); err != nil {
		t.Errorf("exactly 5MB should be valid: %v", err)
	}

	err := ValidateSize(MaxUploadBytes + 1)
	if err == nil || err.Error() != "File too large. Maximum size is 5MB" {
		t.Errorf("oversize error = %v", err)
	}

	err = ValidateSize(0)
	if err == nil || err.Error() != "File is empty" {
		t.Errorf("empty error = %v", err)
	}
}

func TestValidateText(t *testing.T) {
	if err := ValidateText(strings.Repeat("a", MinChars)); err != nil {
		t.Errorf("minimum length should pass: %v", err)
	}

	err := ValidateText(strings.Repeat("a", MaxChars+1))
	if err == nil || err.Error() != "Transcript too long" {
		t.Errorf("too-long error = %v", err)
	}

	err = ValidateText("short")
	if err == nil || err.Error() != "Transcript too short" {
		t.Errorf("too-short error = %v", err)
	}

	// Whitespace padding does not rescue a short transcript.
	err = ValidateText("short" + strings.Repeat(" ", 100))
	if err == nil || err.Error() != "Transcript too short" {
		t.Errorf("padded too-short error = %v", err)
	}
}

func TestValidationErrorType(t *testing.T) {
	err := ValidateText("x")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestFromFileTxt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "call.txt")
	content := "Rep: Thanks for joining. Prospect: Happy to be here, we have a pricing problem."
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if got != content {
		t.Errorf("content = %q", got)
	}
}

func TestFromFileRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "call.pdf")
	os.WriteFile(path, []byte("data"), 0644)

	_, err := FromFile(path)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestFromFileRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "call.txt")
	os.WriteFile(path, nil, 0644)

	_, err := FromFile(path)
	if err == nil || err.Error() != "File is empty" {
		t.Errorf("err = %v", err)
	}
}

func TestExtractRejectsInvalidUTF8(t *testing.T) {
	_, err := Extract("call.txt", []byte{0xff, 0xfe, 0x00, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48})
	if err == nil {
		t.Fatal("expected error for invalid UTF-8")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected *ValidationError, got %T", err)
	}
}

func TestExtractRejectsTooShortContent(t *testing.T) {
	_, err := Extract("call.txt", []byte("hi"))
	if err == nil {
		t.Fatal("expected error for near-empty content")
	}
}

// buildDocx assembles a minimal docx archive with the given paragraphs.
func buildDocx(t *testing.T, paragraphs []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	var doc strings.Builder
	doc.WriteString(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		doc.WriteString(`<w:p><w:r><w:t>`)
		xmlEscape(&doc, p)
		doc.WriteString(`</w:t></w:r></w:p>`)
	}
	doc.WriteString(`</w:body></w:document>`)
	if _, err := w.Write([]byte(doc.String())); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func xmlEscape(b *strings.Builder, s string) {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	b.WriteString(r.Replace(s))
}

func TestExtractDocx(t *testing.T) {
	data := buildDocx(t, []string{
		"Rep: Walk me through the pricing process.",
		"Prospect: It takes three weeks & twelve people.",
	})

	got, err := Extract("call.docx", data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := "Rep: Walk me through the pricing process.\nProspect: It takes three weeks & twelve people."
	if got != want {
		t.Errorf("extracted = %q, want %q", got, want)
	}
}

func TestExtractDocxCorrupt(t *testing.T) {
	_, err := Extract("call.docx", []byte("this is not a zip archive at all"))
	if err == nil {
		t.Fatal("expected error for corrupt docx")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected *ValidationError, got %T", err)
	}
}

func TestSampleTranscript(t *testing.T) {
	s := Sample()
	if err := ValidateText(s); err != nil {
		t.Fatalf("embedded sample must pass validation: %v", err)
	}
	// The sample must contain the quotes the canned analysis cites.
	for _, quote := range []string{
		"We need to reduce our pricing cycle from 3 weeks to 3 days",
		"Current manual pricing process involves 12 different people",
		"CFO approved $500K budget for pricing transformation",
	} {
		if !strings.Contains(s, quote) {
			t.Errorf("sample transcript missing quote %q", quote)
		}
	}
}
