package genesisdb

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ObserverState is the externally observable state of an Observer.
type ObserverState int

const (
	// StateConnecting means the observer is opening a stream.
	StateConnecting ObserverState = iota

	// StateStreaming means events are being delivered.
	StateStreaming

	// StateBackoff means the observer is waiting before reconnecting.
	StateBackoff

	// StateCancelled is terminal: the observer was closed.
	StateCancelled
)

// String returns the state name.
func (s ObserverState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Observer presents an effectively-infinite, order-preserving event
// sequence for a long-running subscription. On a transport failure or
// an unexpected close it waits out an exponential backoff and resumes
// from the last observed event id, so no event is skipped and none is
// delivered twice by the observer itself. Delivery is at-least-once
// across process restarts: a caller that crashes after receiving an
// event but before persisting its own offset will see it again.
//
// A malformed record is terminal: retrying cannot fix a protocol
// mismatch, so decode failures are surfaced instead of retried.
//
// The cursor, backoff state, and connection are owned exclusively by
// this instance; concurrent observers are fully independent. Next is
// the sole blocking point and must not be called concurrently with
// itself.
type Observer struct {
	client  *Client
	subject string
	opts    *StreamOptions
	ctx     context.Context
	cancel  context.CancelFunc
	log     zerolog.Logger
	bo      *backoff.ExponentialBackOff

	mu     sync.Mutex
	state  ObserverState
	closed bool

	cur             *EventIterator
	lastSeenID      ID
	hasSeen         bool
	deliveredOnConn bool
	attempts        int
}

// ObserveEvents returns an observer that live-tails the subject.
// No network request is made until the first call to Next. The
// subscription lives until Close is called or ctx is cancelled.
//
// Example:
//
//	obs := client.ObserveEvents(ctx, "/customer/123", nil)
//	defer obs.Close()
//
//	for {
//	    event, err := obs.Next()
//	    if err != nil {
//	        return err
//	    }
//	    // Process event
//	}
func (c *Client) ObserveEvents(ctx context.Context, subject string, opts *StreamOptions) *Observer {
	obsCtx, cancel := context.WithCancel(ctx)
	return &Observer{
		client:  c,
		subject: subject,
		opts:    opts.clone(),
		ctx:     obsCtx,
		cancel:  cancel,
		log:     c.log.With().Str("subject", subject).Logger(),
		bo:      c.backoff.newBackOff(),
		state:   StateConnecting,
	}
}

// State returns the observer's current state.
func (o *Observer) State() ObserverState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastSeenID returns the id of the last delivered event, or the zero ID
// if nothing has been delivered yet.
func (o *Observer) LastSeenID() ID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSeenID
}

// setState transitions the observer unless it is already cancelled.
func (o *Observer) setState(s ObserverState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateCancelled {
		o.state = s
	}
}

// Next returns the next observed event.
// It blocks across reconnects; a non-nil error is terminal for the
// subscription (cancellation, decode failure, or a non-retryable
// server rejection).
func (o *Observer) Next() (*Event, error) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return nil, ErrIteratorClosed
		}
		if err := o.ctx.Err(); err != nil {
			o.mu.Unlock()
			return nil, err
		}
		cur := o.cur
		o.mu.Unlock()

		if cur == nil {
			cur = o.connect()
			if cur == nil {
				// Closed while connecting
				return nil, ErrIteratorClosed
			}
		}

		event, err := cur.Next()
		if err == nil {
			o.delivered(event)
			return event, nil
		}

		o.dropConnection()

		switch {
		case errors.Is(err, Done), errors.Is(err, ErrTransport), isRetryableAPIError(err):
			// Unexpected close or transport failure: back off, resume.
			if werr := o.waitBackoff(err); werr != nil {
				return nil, werr
			}
		case errors.Is(err, ErrIteratorClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			o.mu.Lock()
			closed := o.closed
			o.mu.Unlock()
			if closed {
				return nil, ErrIteratorClosed
			}
			if o.ctx.Err() != nil {
				return nil, o.ctx.Err()
			}
			return nil, err
		default:
			// Decode failures and server rejections are terminal.
			o.log.Error().Err(err).Msg("observation failed")
			return nil, err
		}
	}
}

// connect opens a new stream using options derived from the cursor.
// Returns nil if the observer was closed concurrently.
func (o *Observer) connect() *EventIterator {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.state = StateConnecting
	o.attempts++
	opts := o.resumeOptionsLocked()
	it := o.client.newEventIterator(o.ctx, o.subject, opts, endpointObserve)
	o.cur = it
	o.deliveredOnConn = false
	o.mu.Unlock()

	o.log.Debug().Int("attempt", o.attempts).Msg("opening observation stream")
	return it
}

// resumeOptionsLocked derives the stream options for the next
// connection attempt. After at least one delivery the cursor replaces
// any caller-supplied bounds, so the resumed stream continues exactly
// where the previous one left off. LatestByEventType has no linear
// cursor semantics, so in that mode the original options are re-sent
// verbatim on every attempt. Caller must hold o.mu.
func (o *Observer) resumeOptionsLocked() *StreamOptions {
	if o.opts != nil && o.opts.LatestByEventType != "" {
		return o.opts.clone()
	}
	if !o.hasSeen {
		return o.opts.clone()
	}
	return &StreamOptions{
		LowerBound:             o.lastSeenID,
		IncludeLowerBoundEvent: boolPtr(false),
	}
}

// delivered advances the cursor after an event is handed to the caller
// and resets the backoff after the first delivery on a connection,
// distinguishing a flaky-but-recovering link from a persistently
// unreachable one.
func (o *Observer) delivered(event *Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastSeenID = event.ID
	o.hasSeen = true
	if o.state != StateCancelled {
		o.state = StateStreaming
	}
	if !o.deliveredOnConn {
		o.deliveredOnConn = true
		o.bo.Reset()
	}
}

// dropConnection releases the active stream, if any.
func (o *Observer) dropConnection() {
	o.mu.Lock()
	cur := o.cur
	o.cur = nil
	o.mu.Unlock()
	if cur != nil {
		cur.Close()
	}
}

// waitBackoff sleeps out the next backoff delay, honoring cancellation.
func (o *Observer) waitBackoff(cause error) error {
	o.setState(StateBackoff)
	delay := o.bo.NextBackOff()
	o.log.Debug().Err(cause).Dur("delay", delay).Msg("observation stream lost, reconnecting")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-o.ctx.Done():
		return o.ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Close cancels the subscription and releases the active connection
// before returning. Safe to call multiple times. Implements io.Closer.
func (o *Observer) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.state = StateCancelled
	cur := o.cur
	o.cur = nil
	o.mu.Unlock()

	o.cancel()
	if cur != nil {
		cur.Close()
	}
	return nil
}

// isRetryableAPIError reports whether a server rejection is transient.
// Server errors (5xx) and rate limiting (429) are retried; client
// errors are not.
func isRetryableAPIError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == 429 {
		return true
	}
	return apiErr.StatusCode >= 500 && apiErr.StatusCode < 600
}

// Ensure Observer implements io.Closer
var _ io.Closer = (*Observer)(nil)

