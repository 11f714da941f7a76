package genesisdb

import (
	"context"
	"io"
	"net/http"
)

// EraseData erases all payload data stored for a subject (GDPR
// compliance). Events committed with StoreDataAsReference lose their
// referenced payloads; the log itself is untouched.
func (c *Client) EraseData(ctx context.Context, subject string) error {
	body, err := encodeBody(eraseRequest{Subject: subject})
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodDelete, "erase", body)
	if err != nil {
		return &TransportError{Op: "erase", Err: err}
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Op: "erase", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeErrorResponse("erase", req.URL.Path, resp.StatusCode, resp.Body)
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}
