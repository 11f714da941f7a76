package genesisdb

import (
	"context"
	"io"
	"net/http"
)

// CommitEvents commits a batch of events atomically: either all become
// durable, ordered, immutable events, or none do. If any precondition
// evaluates false the whole batch is rejected with *PreconditionError
// and no partial commit occurs.
//
// An empty batch is a contract violation and returns ErrEmptyCommit
// without issuing a network call.
//
// The store does not return the assigned event ids; callers that need
// them should re-stream the subject.
//
// Example:
//
//	err := client.CommitEvents(ctx, []genesisdb.CommitEvent{{
//	    Source:  "io.genesisdb.app",
//	    Subject: "/customer/123",
//	    Type:    "io.genesisdb.app.customer-added",
//	    Data:    map[string]any{"name": "Ada"},
//	}}, []genesisdb.Precondition{
//	    genesisdb.IsSubjectNew("/customer/123"),
//	})
func (c *Client) CommitEvents(ctx context.Context, events []CommitEvent, preconditions []Precondition) error {
	if len(events) == 0 {
		return ErrEmptyCommit
	}

	body, err := encodeBody(commitRequest{
		Events:        events,
		Preconditions: preconditions,
	})
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "commit", body)
	if err != nil {
		return &TransportError{Op: "commit", Err: err}
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Op: "commit", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeErrorResponse("commit", req.URL.Path, resp.StatusCode, resp.Body)
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}
