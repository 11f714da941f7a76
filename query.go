package genesisdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Q executes a GDBQL query and returns the result rows in order.
// The query string is passed through opaquely; a malformed query
// surfaces as an *APIError from the server. Rows are returned as raw
// JSON values for the caller to interpret.
//
// Example:
//
//	rows, err := client.Q(ctx, "FROM e IN events WHERE e.type == 'user-created' TOP 10")
func (c *Client) Q(ctx context.Context, query string) ([]json.RawMessage, error) {
	body, err := encodeBody(queryRequest{Query: query})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "query", body)
	if err != nil {
		return nil, &TransportError{Op: "query", Err: err}
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Op: "query", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeErrorResponse("query", req.URL.Path, resp.StatusCode, resp.Body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "query", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("query result: %w", err)}
	}
	return rows, nil
}

// QueryEvents executes a GDBQL query. It is an alias for Q.
func (c *Client) QueryEvents(ctx context.Context, query string) ([]json.RawMessage, error) {
	return c.Q(ctx, query)
}
