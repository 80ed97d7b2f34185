package agent

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	DefaultProbeURL     = "https://certification.canonical.com/submissions"
	DefaultProbeTimeout = 2 * time.Second
)

// HealthStatus is the classification of a single probe attempt
type HealthStatus string

const (
	StatusOK      HealthStatus = "ok"
	StatusError   HealthStatus = "error"
	StatusTimeout HealthStatus = "timeout"
)

// Prober performs one health check and classifies it
type Prober interface {
	Check(ctx context.Context) HealthStatus
}

// HealthProbe issues a GET against a fixed status endpoint.
// Failures are never returned as errors, only as a status.
type HealthProbe struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHealthProbe creates a probe for url bounded by timeout
func NewHealthProbe(url string, timeout time.Duration) *HealthProbe {
	if url == "" {
		url = DefaultProbeURL
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HealthProbe{
		url:     url,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// Check performs one request. Any response below 400 is ok, any other
// response is error, and no response within the timeout is timeout.
// Transport failures that are not timeouts count as error.
func (p *HealthProbe) Check(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return StatusError
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return StatusTimeout
		}
		return StatusError
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return StatusError
	}
	return StatusOK
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
