package genesisdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/genesisdb-io/client-go/internal/ndjson"
)

// Endpoints serving event record streams.
const (
	endpointStream  = "stream-events"
	endpointObserve = "observe-events"
)

// readBufferSize is the size of the transport read buffer.
const readBufferSize = 16 * 1024

// EventIterator iterates over events from one stream response.
// Call Next() in a loop until it returns Done.
//
// The iterator is bounded: it ends when the server closes the response.
// A transport failure before the clean end is surfaced as the final
// element; the iterator performs no retry itself.
//
// Next must not be called concurrently with itself; Close may be called
// from any goroutine and unblocks a pending Next.
//
// Always call Close() when done to release the underlying connection.
type EventIterator struct {
	client   *Client
	subject  string
	opts     *StreamOptions
	endpoint string
	ctx      context.Context
	cancel   context.CancelFunc

	// mu guards closed/done/termErr and the resp handoff; it is never
	// held across blocking reads so Close stays responsive.
	mu      sync.Mutex
	closed  bool
	done    bool
	termErr error
	resp    *http.Response

	scan *ndjson.Scanner
	buf  []byte
}

// StreamEvents returns an iterator over the stored events for a subject,
// bounded by the given options. No network request is made until the
// first call to Next.
//
// Example:
//
//	it := client.StreamEvents(ctx, "/customer/123", nil)
//	defer it.Close()
//
//	for {
//	    event, err := it.Next()
//	    if errors.Is(err, genesisdb.Done) {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    // Process event
//	}
func (c *Client) StreamEvents(ctx context.Context, subject string, opts *StreamOptions) *EventIterator {
	return c.newEventIterator(ctx, subject, opts, endpointStream)
}

// newEventIterator creates an iterator for one of the record-stream
// endpoints. The options are passed through unmodified; validation of
// option combinations is server-defined.
func (c *Client) newEventIterator(ctx context.Context, subject string, opts *StreamOptions, endpoint string) *EventIterator {
	iterCtx, cancel := context.WithCancel(ctx)
	return &EventIterator{
		client:   c,
		subject:  subject,
		opts:     opts.clone(),
		endpoint: endpoint,
		ctx:      iterCtx,
		cancel:   cancel,
	}
}

// Next returns the next event from the stream.
// Returns Done when the server closed the response cleanly.
// A transport failure or malformed record is returned once as the
// terminal element; subsequent calls repeat it.
func (it *EventIterator) Next() (*Event, error) {
	it.mu.Lock()
	if it.closed {
		it.mu.Unlock()
		return nil, ErrIteratorClosed
	}
	if it.termErr != nil {
		err := it.termErr
		it.mu.Unlock()
		return nil, err
	}
	if it.done {
		it.mu.Unlock()
		return nil, Done
	}
	resp := it.resp
	it.mu.Unlock()

	if resp == nil {
		var err error
		resp, err = it.open()
		if err != nil {
			return nil, it.terminate(err)
		}
	}

	for {
		// Drain complete records before reading more bytes.
		if line, ok := it.scan.Next(); ok {
			event, skip, err := decodeEventRecord(line)
			if err != nil {
				return nil, it.terminate(err)
			}
			if skip {
				continue
			}
			return event, nil
		}

		n, err := resp.Body.Read(it.buf)
		if n > 0 {
			it.scan.Append(it.buf[:n])
		}
		if err == nil {
			continue
		}
		if err == io.EOF {
			return it.finish()
		}
		if it.ctx.Err() != nil {
			return nil, it.terminate(it.ctx.Err())
		}
		return nil, it.terminate(&TransportError{Op: it.endpoint, Err: err})
	}
}

// open issues the request and prepares the record scanner.
func (it *EventIterator) open() (*http.Response, error) {
	body, err := encodeBody(streamRequest{Subject: it.subject, Options: it.opts})
	if err != nil {
		return nil, err
	}

	req, err := it.client.newRequest(it.ctx, http.MethodPost, it.endpoint, body)
	if err != nil {
		return nil, &TransportError{Op: it.endpoint, Err: err}
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeNDJSON)

	resp, err := it.client.httpClient.Do(req)
	if err != nil {
		if it.ctx.Err() != nil {
			return nil, it.ctx.Err()
		}
		return nil, &TransportError{Op: it.endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeErrorResponse(it.endpoint, req.URL.Path, resp.StatusCode, resp.Body)
	}

	it.scan = &ndjson.Scanner{}
	it.buf = make([]byte, readBufferSize)

	it.mu.Lock()
	if it.closed {
		it.mu.Unlock()
		resp.Body.Close()
		return nil, ErrIteratorClosed
	}
	it.resp = resp
	it.mu.Unlock()
	return resp, nil
}

// finish handles the clean end of the response. A final record without
// a trailing newline is still delivered; a truncated record is a decode
// error.
func (it *EventIterator) finish() (*Event, error) {
	if line, ok := it.scan.Flush(); ok {
		event, skip, err := decodeEventRecord(line)
		if err != nil {
			return nil, it.terminate(err)
		}
		if !skip {
			it.markDone()
			return event, nil
		}
	}
	it.markDone()
	return nil, Done
}

// markDone records normal exhaustion and releases the connection.
func (it *EventIterator) markDone() {
	it.mu.Lock()
	it.done = true
	it.releaseLocked()
	it.mu.Unlock()
}

// terminate records a terminal error and releases the connection.
func (it *EventIterator) terminate(err error) error {
	it.mu.Lock()
	it.termErr = err
	it.releaseLocked()
	it.mu.Unlock()
	return err
}

// releaseLocked closes the response body. Caller must hold it.mu.
func (it *EventIterator) releaseLocked() {
	if it.resp != nil {
		it.resp.Body.Close()
		it.resp = nil
	}
}

// Close cancels the iterator and releases the underlying connection,
// unblocking a pending Next. Safe to call multiple times.
// Implements io.Closer.
func (it *EventIterator) Close() error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return nil
	}
	it.closed = true
	it.cancel()
	it.releaseLocked()
	return nil
}

// FetchEvents drains a bounded stream into a slice.
// A transport failure at any point fails the whole fetch.
//
// Example:
//
//	events, err := client.FetchEvents(ctx, "/customer/123", nil)
func (c *Client) FetchEvents(ctx context.Context, subject string, opts *StreamOptions) ([]Event, error) {
	it := c.StreamEvents(ctx, subject, opts)
	defer it.Close()

	var events []Event
	for {
		event, err := it.Next()
		if errors.Is(err, Done) {
			return events, nil
		}
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
}

// Ensure EventIterator implements io.Closer
var _ io.Closer = (*EventIterator)(nil)
