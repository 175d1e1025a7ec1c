package granule

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/skyaware/skyaware/internal/airquality"
	"github.com/skyaware/skyaware/internal/resilience"
)

// FileSource reads a granule export from the local filesystem.
type FileSource struct {
	Path string
}

// Fetch reads and decodes the file.
func (s *FileSource) Fetch(_ context.Context) (*Dataset, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", airquality.ErrUpstreamAcquisition, err)
	}
	return Decode(data)
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSourceConfig holds configuration for an HTTP granule source.
type HTTPSourceConfig struct {
	URL string

	// HTTPClient executes the download. If nil, a resilient client with
	// retries and a circuit breaker is created.
	HTTPClient HTTPDoer

	// Timeout applies to each download attempt (default: 2 minutes).
	Timeout time.Duration

	// MaxBytes caps the body size (default: 512 MiB).
	MaxBytes int64

	// Registry receives the default client's health when HTTPClient is nil.
	Registry *resilience.Registry
}

// SourceName is the upstream's name in the dependency registry.
const SourceName = "granules"

// HTTPSource downloads the latest granule export from a URL.
type HTTPSource struct {
	url      string
	client   HTTPDoer
	maxBytes int64
}

// NewHTTPSource creates a new HTTP granule source.
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 2 * time.Minute
		}
		client = resilience.NewHTTPClient(resilience.HTTPClientConfig{
			Name:    SourceName,
			Timeout: timeout,
			Retry: resilience.RetryConfig{
				MaxRetries:      3,
				InitialInterval: time.Second,
				MaxInterval:     30 * time.Second,
			},
			Registry: cfg.Registry,
		})
	}

	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 512 << 20
	}

	return &HTTPSource{url: cfg.URL, client: client, maxBytes: maxBytes}
}

// Fetch downloads and decodes the granule.
func (s *HTTPSource) Fetch(ctx context.Context) (*Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/zstd")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch granule: %w", airquality.ErrUpstreamAcquisition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d from granule host",
			airquality.ErrUpstreamAcquisition, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read granule: %w", airquality.ErrUpstreamAcquisition, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: granule exceeds %d bytes", airquality.ErrUpstreamAcquisition, s.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty granule", airquality.ErrUpstreamAcquisition)
	}

	return Decode(data)
}
