//go:build go1.23

package genesisdb

import (
	"context"
	"errors"
	"iter"
)

// Events returns a range-over-func iterator over a bounded stream.
// Use with Go 1.23+ for range syntax:
//
//	for event, err := range client.Events(ctx, "/customer/123", nil) {
//	    if err != nil {
//	        return err
//	    }
//	    process(event)
//	}
//
// The underlying connection is released when the loop exits, whether by
// exhaustion, error, or break.
func (c *Client) Events(ctx context.Context, subject string, opts *StreamOptions) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		it := c.StreamEvents(ctx, subject, opts)
		defer it.Close()

		for {
			event, err := it.Next()
			if errors.Is(err, Done) {
				return
			}
			if !yield(event, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// ObservedEvents returns a range-over-func iterator over a live
// subscription. The loop runs until the subscription fails terminally
// or the caller breaks out; breaking releases the connection.
//
//	for event, err := range client.ObservedEvents(ctx, "/customer/123", nil) {
//	    if err != nil {
//	        return err
//	    }
//	    process(event)
//	}
func (c *Client) ObservedEvents(ctx context.Context, subject string, opts *StreamOptions) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		obs := c.ObserveEvents(ctx, subject, opts)
		defer obs.Close()

		for {
			event, err := obs.Next()
			if !yield(event, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}
