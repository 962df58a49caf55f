// Package api is the HTTP client for the workflow backend: the run
// endpoint, the health check and the runtime event stream.
package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	perrors "github.com/Iron-Ham/prflow/internal/errors"
	"github.com/Iron-Ham/prflow/internal/logging"
)

const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:8000"

	runPath    = "/workflow/run"
	healthPath = "/health"
	streamPath = "/workflow/stream/"

	// defaultRetryTime bounds how long idempotent requests retry dial failures.
	defaultRetryTime = 10 * time.Second
	// defaultMaxPayload bounds a single stream line.
	defaultMaxPayload = 1 << 20
)

// Client talks to the workflow backend. It is safe for concurrent use.
type Client struct {
	baseURL        *url.URL
	base           http.RoundTripper
	httpClient     *http.Client // POST, never retried
	retryingClient *http.Client // GET, retried on dial failures
	requestTimeout time.Duration
	retryTime      time.Duration
	maxPayload     int
	logger         *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTransport sets the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.base = rt
	}
}

// WithHTTPClient takes the transport of an existing client, such as the one
// returned by httptest.Server.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil && hc.Transport != nil {
			c.base = hc.Transport
		}
	}
}

// WithRequestTimeout bounds the run request. Zero means no timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// WithRetryBudget bounds how long GET requests retry dial failures.
// Zero disables retries.
func WithRetryBudget(d time.Duration) Option {
	return func(c *Client) {
		c.retryTime = d
	}
}

// WithMaxPayloadBytes bounds a single stream payload.
func WithMaxPayloadBytes(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPayload = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the backend at baseURL. Trailing slashes
// are trimmed; an empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:    u,
		base:       http.DefaultTransport,
		retryTime:  defaultRetryTime,
		maxPayload: defaultMaxPayload,
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("api")

	c.httpClient = &http.Client{Transport: c.base}
	c.retryingClient = &http.Client{Transport: &retryRoundTripper{
		base:   c.base,
		logger: c.logger,
		newBackoff: func() backoff.BackOff {
			if c.retryTime <= 0 {
				return &backoff.StopBackOff{}
			}
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(100*time.Millisecond),
				backoff.WithMaxInterval(time.Second),
				backoff.WithMaxElapsedTime(c.retryTime),
			)
		},
	}}
	return c, nil
}

// ParseBaseURL validates and normalises a backend base URL.
func ParseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultBaseURL
	}
	raw = strings.TrimRight(raw, "/")
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", raw)
	}
	return u, nil
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

// retryRoundTripper retries idempotent requests whose failure classifies
// as retryable, which for a transport error means the connection could
// not be established. Any other failure is returned immediately.
type retryRoundTripper struct {
	base       http.RoundTripper
	newBackoff func() backoff.BackOff
	logger     *logging.Logger
}

func (rt *retryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return rt.base.RoundTrip(req)
	}
	attempt := func() (*http.Response, error) {
		resp, err := rt.base.RoundTrip(req)
		if err != nil {
			if perrors.IsRetryable(transportFailure(req, err)) {
				rt.logger.Debug("retrying request after dial failure", "url", req.URL.String(), "error", err)
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return resp, nil
	}
	return backoff.RetryWithData(attempt, backoff.WithContext(rt.newBackoff(), req.Context()))
}

// transportFailure classifies a dial failure as a network RequestError.
// Other transport errors are returned unchanged and so are not retryable.
func transportFailure(req *http.Request, err error) error {
	if !isDialError(err) {
		return err
	}
	return perrors.NewRequestError(perrors.KindNetwork, req.Method+" "+req.URL.Path, err).
		WithURL(req.URL.String())
}

// isDialError reports whether err happened before a connection existed.
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
