package genesisdb

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const userAgent = "genesisdb-go-client"

// Environment variables read by FromEnv.
const (
	EnvAPIURL     = "GENESISDB_API_URL"
	EnvAPIVersion = "GENESISDB_API_VERSION"
	EnvAuthToken  = "GENESISDB_AUTH_TOKEN"
)

// Config holds the connection settings for a Genesis DB server.
type Config struct {
	// APIURL is the base URL, e.g. "http://localhost:8080".
	APIURL string

	// APIVersion is the API version path segment, e.g. "v1".
	APIVersion string

	// AuthToken is the bearer token sent with every request.
	AuthToken string
}

// validate checks that all required fields are set.
func (c Config) validate() error {
	if c.APIURL == "" {
		return &ConfigError{Field: "APIURL"}
	}
	if c.APIVersion == "" {
		return &ConfigError{Field: "APIVersion"}
	}
	if c.AuthToken == "" {
		return &ConfigError{Field: "AuthToken"}
	}
	return nil
}

// Client is a Genesis DB client.
// It is safe for concurrent use; concurrent commits, queries, and
// subscriptions share no mutable state.
//
// The client uses an optimized HTTP transport with:
//   - Connection pooling (100 idle connections, 10 per host)
//   - HTTP/2 support (automatic for HTTPS)
//   - Reasonable timeouts for dial, TLS handshake, and idle connections
//   - No global response timeout, so observation streams can live
//     indefinitely (use contexts for per-request deadlines)
type Client struct {
	httpClient *http.Client
	config     Config
	backoff    BackoffPolicy
	log        zerolog.Logger
}

// NewClient creates a new Genesis DB client.
// It fails with *ConfigError before any network activity if a required
// configuration field is absent.
//
// Example:
//
//	client, err := genesisdb.NewClient(genesisdb.Config{
//	    APIURL:     "http://localhost:8080",
//	    APIVersion: "v1",
//	    AuthToken:  "secret",
//	})
func NewClient(config Config, opts ...ClientOption) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.APIURL = strings.TrimSuffix(config.APIURL, "/")

	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// Default HTTP client with optimized transport settings
	httpClient := cfg.httpClient
	if httpClient == nil {
		transport := &http.Transport{
			// Connection pooling
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     0, // No limit
			IdleConnTimeout:     90 * time.Second,

			// Timeouts
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 0, // No timeout (handled at request level)
			ExpectContinueTimeout: 1 * time.Second,

			DisableCompression: false,

			ForceAttemptHTTP2: true,
		}

		httpClient = &http.Client{
			Timeout:   0, // No global timeout - streams are long-lived
			Transport: transport,
		}
	}

	backoffPolicy := DefaultBackoffPolicy()
	if cfg.backoff != nil {
		backoffPolicy = *cfg.backoff
	}

	logger := zerolog.Nop()
	if cfg.logger != nil {
		logger = *cfg.logger
	}

	return &Client{
		httpClient: httpClient,
		config:     config,
		backoff:    backoffPolicy,
		log:        logger,
	}, nil
}

// FromEnv creates a client from the GENESISDB_API_URL,
// GENESISDB_API_VERSION, and GENESISDB_AUTH_TOKEN environment variables.
func FromEnv(opts ...ClientOption) (*Client, error) {
	config := Config{}
	for _, v := range []struct {
		name string
		dst  *string
	}{
		{EnvAPIURL, &config.APIURL},
		{EnvAPIVersion, &config.APIVersion},
		{EnvAuthToken, &config.AuthToken},
	} {
		val, ok := os.LookupEnv(v.name)
		if !ok || val == "" {
			return nil, &ConfigError{Field: v.name}
		}
		*v.dst = val
	}
	return NewClient(config, opts...)
}

// HTTPClient returns the underlying HTTP client.
// This can be useful for advanced configuration or testing.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// buildURL constructs the full URL for an API path.
func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/api/%s/%s", c.config.APIURL, c.config.APIVersion, path)
}

// newRequest builds a request with the standard auth and agent headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// Ping checks server health. Returns "pong" if the server is healthy.
func (c *Client) Ping(ctx context.Context) (string, error) {
	return c.statusText(ctx, "ping")
}

// Audit returns audit information from the server.
func (c *Client) Audit(ctx context.Context) (string, error) {
	return c.statusText(ctx, "audit")
}

// statusText performs a plain-text status GET.
func (c *Client) statusText(ctx context.Context, path string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", &TransportError{Op: path, Err: err}
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newAPIError(path, req.URL.Path, resp.StatusCode)
	}
	return string(body), nil
}
