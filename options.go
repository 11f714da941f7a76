package genesisdb

import (
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// =============================================================================
// Client Options
// =============================================================================

type clientConfig struct {
	httpClient *http.Client
	backoff    *BackoffPolicy
	logger     *zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithHTTPClient sets a custom HTTP client.
// If not set, a default client with sensible timeouts is used.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cfg *clientConfig) {
		cfg.httpClient = c
	}
}

// WithBackoffPolicy sets the reconnect backoff policy used by observers.
func WithBackoffPolicy(p BackoffPolicy) ClientOption {
	return func(cfg *clientConfig) {
		cfg.backoff = &p
	}
}

// WithLogger sets a structured logger for connection lifecycle events.
// If not set, logging is disabled.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = &l
	}
}

// BackoffPolicy configures the exponential backoff used by an Observer
// between reconnect attempts.
type BackoffPolicy struct {
	// InitialInterval is the delay before the first reconnect.
	// Default is 500ms.
	InitialInterval time.Duration

	// MaxInterval caps the delay between reconnects.
	// Default is 30s.
	MaxInterval time.Duration

	// Multiplier is the exponential growth factor.
	// Default is 2.0.
	Multiplier float64

	// RandomizationFactor controls jitter: each delay is drawn from
	// [delay*(1-f), delay*(1+f)]. Default is 0.5.
	RandomizationFactor float64
}

// DefaultBackoffPolicy returns the default backoff policy.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// newBackOff materializes the policy as a backoff instance.
// Each observer owns its own instance; no cross-subscription sharing.
func (p BackoffPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	b.MaxElapsedTime = 0 // Observers retry until cancelled
	b.Reset()
	return b
}

// boolPtr returns a pointer to b, for optional JSON fields.
func boolPtr(b bool) *bool {
	return &b
}
