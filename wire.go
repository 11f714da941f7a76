package genesisdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Protocol media types.
const (
	contentTypeJSON   = "application/json"
	contentTypeNDJSON = "application/x-ndjson"
)

// maxErrorBody bounds how much of an error response body is read.
const maxErrorBody = 64 * 1024

// streamRequest is the body for stream-events and observe-events.
type streamRequest struct {
	Subject string         `json:"subject"`
	Options *StreamOptions `json:"options,omitempty"`
}

// commitRequest is the body for commit.
type commitRequest struct {
	Events        []CommitEvent  `json:"events"`
	Preconditions []Precondition `json:"preconditions,omitempty"`
}

// eraseRequest is the body for erase.
type eraseRequest struct {
	Subject string `json:"subject"`
}

// queryRequest is the body for query.
type queryRequest struct {
	Query string `json:"query"`
}

// preconditionFailure is the 412 response body.
type preconditionFailure struct {
	FailedPrecondition string `json:"failedPrecondition"`
	Detail             string `json:"detail"`
}

// encodeBody marshals a request body.
func encodeBody(v any) (*bytes.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}
	return bytes.NewReader(data), nil
}

// decodeEventRecord decodes one wire record into an Event.
// Records may carry an SSE-style "data: " prefix, and single-field
// {"payload":""} heartbeat records are skipped (skip=true).
func decodeEventRecord(line []byte) (*Event, bool, error) {
	line = bytes.TrimPrefix(line, []byte("data: "))

	if isHeartbeat(line) {
		return nil, true, nil
	}

	var event Event
	if err := json.Unmarshal(line, &event); err != nil {
		return nil, false, &DecodeError{Err: err}
	}
	return &event, false, nil
}

// isHeartbeat reports whether the record is a keep-alive of the form
// {"payload": ""} with no other fields.
func isHeartbeat(line []byte) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return false
	}
	if len(fields) != 1 {
		return false
	}
	payload, ok := fields["payload"]
	return ok && bytes.Equal(payload, []byte(`""`))
}

// decodeErrorResponse maps a non-success response to a typed error,
// reading at most maxErrorBody bytes from the body. A 412 becomes a
// *PreconditionError carrying which precondition failed; everything
// else becomes an *APIError.
func decodeErrorResponse(op, path string, statusCode int, body io.Reader) error {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))

	if statusCode == 412 {
		var failure preconditionFailure
		if err := json.Unmarshal(data, &failure); err == nil && failure.FailedPrecondition != "" {
			return &PreconditionError{
				Failed: failure.FailedPrecondition,
				Detail: failure.Detail,
			}
		}
		return &PreconditionError{Detail: string(bytes.TrimSpace(data))}
	}

	return newAPIError(op, path, statusCode)
}
