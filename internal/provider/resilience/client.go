package resilience

import (
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig holds configuration for the outbound HTTP client.
type ClientConfig struct {
	// Name identifies this client for circuit breaker naming.
	Name string

	// Timeout is the per-request timeout. Default: 10 seconds.
	Timeout time.Duration

	// RequestInterval is the minimum spacing between outbound requests.
	// The upstream is an unofficial API; one request per second with a
	// small burst is the default courtesy limit.
	RequestInterval time.Duration

	// Burst is the rate limiter burst size. Default: 3.
	Burst int

	// CircuitBreaker configuration. Nil uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig
}

// DefaultClientConfig returns sensible defaults for the outbound client.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		RequestInterval: time.Second,
		Burst:           3,
		CircuitBreaker:  &cbConfig,
	}
}

// Client is an outbound HTTP client with circuit breaker protection and
// outbound rate limiting. It never retries; a failed request surfaces
// immediately so the caller's retry policy stays authoritative.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	limiter        *rate.Limiter
}

// NewClient creates a new outbound HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestInterval == 0 {
		cfg.RequestInterval = time.Second
	}
	if cfg.Burst == 0 {
		cfg.Burst = 3
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuitBreaker: NewCircuitBreaker[*http.Response](cbConfig), //nolint:bodyclose // type param, not response
		limiter:        rate.NewLimiter(rate.Every(cfg.RequestInterval), cfg.Burst),
	}
}

// Do executes one HTTP request through the rate limiter and circuit breaker.
// 5xx responses count as breaker failures but are still returned to the
// caller with a nil error; status handling stays in the calling client.
// Returns ErrCircuitOpen without touching the network when the breaker is
// open.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller is responsible for closing
		r, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 {
			return r, &ServerError{StatusCode: r.StatusCode}
		}
		return r, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		var serverErr *ServerError
		if errors.As(err, &serverErr) && resp != nil {
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}
