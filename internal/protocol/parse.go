package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

// dataPrefix marks a data-bearing frame. The space is part of the contract.
const dataPrefix = "data: "

// ParseLine decodes one line of the stream.
//
// The second return value is false for lines that carry no event: blank
// lines, comment keep-alives, lines with an unrecognized prefix, and data
// lines whose payload is empty after trimming. None of those are errors.
//
// A data line whose payload fails to decode returns a *MalformedEventError;
// callers are expected to report it and continue reading.
func ParseLine(line string) (Update, bool, error) {
	// Tolerate CRLF framing; the reader splits on '\n' only.
	line = strings.TrimSuffix(line, "\r")

	if !strings.HasPrefix(line, dataPrefix) {
		return Update{}, false, nil
	}

	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == "" {
		return Update{}, false, nil
	}

	var u Update
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		return Update{}, false, &MalformedEventError{Line: line, Err: err}
	}
	if u.Stage == "" {
		return Update{}, false, &MalformedEventError{Line: line, Err: errors.New("missing stage")}
	}

	return u, true, nil
}
