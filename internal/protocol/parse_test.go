package protocol

import (
	"errors"
	"testing"
)

func TestParseLineDataEvent(t *testing.T) {
	u, ok, err := ParseLine(`data: {"stage": "evidence", "status": "started", "complete": false}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected an event")
	}
	if u.Stage != StageEvidence {
		t.Errorf("stage = %q, want %q", u.Stage, StageEvidence)
	}
	if u.Status != StatusStarted {
		t.Errorf("status = %q, want %q", u.Status, StatusStarted)
	}
	if u.Complete {
		t.Error("complete should be false")
	}
}

func TestParseLineCompleteWithData(t *testing.T) {
	u, ok, err := ParseLine(`data: {"stage": "analysis", "status": "complete", "data": {"meddic": {}}, "complete": true}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected an event")
	}
	if !u.Complete {
		t.Error("complete should be true")
	}
	if len(u.Data) == 0 {
		t.Error("data payload should be preserved")
	}
	if !u.IsTerminal() {
		t.Error("complete update should be terminal")
	}
}

func TestParseLineErrorStage(t *testing.T) {
	u, ok, err := ParseLine(`data: {"stage": "error", "error": "Transcript too short", "complete": true}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected an event")
	}
	if u.Stage != StageError {
		t.Errorf("stage = %q, want %q", u.Stage, StageError)
	}
	if u.Err != "Transcript too short" {
		t.Errorf("error message = %q, want it preserved verbatim", u.Err)
	}
	if !u.IsTerminal() {
		t.Error("error update should be terminal")
	}
}

func TestParseLineIgnoresNonEventLines(t *testing.T) {
	lines := []string{
		"",
		"\r",
		": keep-alive",
		"event: progress",
		"id: 42",
		"random noise",
		"data:",      // missing the space that is part of the prefix
		"data: ",     // empty payload
		"data:  \t ", // whitespace payload
	}
	for _, line := range lines {
		u, ok, err := ParseLine(line)
		if err != nil {
			t.Errorf("ParseLine(%q) returned error: %v", line, err)
		}
		if ok {
			t.Errorf("ParseLine(%q) produced event %+v, want none", line, u)
		}
	}
}

func TestParseLineMalformedPayload(t *testing.T) {
	cases := []string{
		`data: {not json}`,
		`data: [1, 2, 3]`,
		`data: "just a string"`,
		`data: {"status": "started"}`, // no stage
	}
	for _, line := range cases {
		_, ok, err := ParseLine(line)
		if ok {
			t.Errorf("ParseLine(%q) produced an event, want malformed error", line)
		}
		var malformed *MalformedEventError
		if !errors.As(err, &malformed) {
			t.Errorf("ParseLine(%q) error = %v, want *MalformedEventError", line, err)
		}
	}
}

func TestParseLineCRLF(t *testing.T) {
	u, ok, err := ParseLine("data: {\"stage\": \"evidence\", \"complete\": false}\r")
	if err != nil || !ok {
		t.Fatalf("CRLF line should parse, got ok=%v err=%v", ok, err)
	}
	if u.Stage != StageEvidence {
		t.Errorf("stage = %q, want %q", u.Stage, StageEvidence)
	}
}

func TestParseLineMultibytePayload(t *testing.T) {
	u, ok, err := ParseLine(`data: {"stage": "error", "error": "transcripción demasiado corta — 呼び出し", "complete": true}`)
	if err != nil || !ok {
		t.Fatalf("unexpected parse failure: ok=%v err=%v", ok, err)
	}
	if u.Err != "transcripción demasiado corta — 呼び出し" {
		t.Errorf("multibyte message mangled: %q", u.Err)
	}
}
