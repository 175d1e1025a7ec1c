package resilience

import (
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when a breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// HTTPClientConfig holds configuration for the resilient HTTP client.
type HTTPClientConfig struct {
	// Name identifies the client in the health registry.
	Name string

	// Timeout is the per-attempt timeout.
	// Default: 30 seconds
	Timeout time.Duration

	Retry   RetryConfig
	Breaker *BreakerConfig

	// Registry, when set, receives the client and its call outcomes.
	Registry *Registry
}

// HTTPClient executes requests through a circuit breaker, retrying network
// failures and 5xx responses with exponential backoff.
type HTTPClient struct {
	name     string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	retry    RetryConfig
	registry *Registry
}

// NewHTTPClient creates a resilient HTTP client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	bcfg := DefaultBreakerConfig(cfg.Name)
	if cfg.Breaker != nil {
		bcfg = *cfg.Breaker
	}

	c := &HTTPClient{
		name:     cfg.Name,
		http:     &http.Client{Timeout: timeout},
		breaker:  NewBreaker[*http.Response](bcfg), //nolint:bodyclose // type param, not response
		retry:    cfg.Retry,
		registry: cfg.Registry,
	}
	if c.registry != nil {
		c.registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the client name.
func (c *HTTPClient) Name() string { return c.name }

// Do executes req. A 5xx response that survives every retry is returned
// with a nil error so callers can inspect it.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var last *http.Response

	err := Retry(ctx, c.retry, func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to caller
			r, err := c.http.Do(req.Clone(ctx))
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= http.StatusInternalServerError {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if err != nil {
			if IsOpen(err) {
				return Permanent(ErrCircuitOpen)
			}
			if resp != nil {
				if last != nil {
					last.Body.Close()
				}
				last = resp
			}
			return err
		}
		last = resp
		return nil
	})

	c.record(err)
	if err != nil {
		if last == nil {
			return nil, err
		}
		if errors.Is(err, ErrCircuitOpen) {
			last.Body.Close()
			return nil, err
		}
		return last, nil
	}
	return last, nil
}

func (c *HTTPClient) record(err error) {
	if c.registry == nil {
		return
	}
	if err != nil {
		c.registry.RecordFailure(c.name, err)
		return
	}
	c.registry.RecordSuccess(c.name)
}

// BreakerState returns the breaker state.
func (c *HTTPClient) BreakerState() gobreaker.State { return c.breaker.State() }

// BreakerCounts returns the breaker counters.
func (c *HTTPClient) BreakerCounts() gobreaker.Counts { return c.breaker.Counts() }

// ServerError represents an HTTP 5xx response.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}
