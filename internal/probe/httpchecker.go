package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxBodyBytes caps how much of a response body is read.
const MaxBodyBytes = 1 << 20

const (
	DefaultTimeout = 10 * time.Second

	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

var ErrTimeout = errors.New("probe timed out")

// HTTPChecker issues plain GET requests on a shared client. It keeps no
// per-endpoint state, so one instance serves every probe in a cycle.
type HTTPChecker struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPChecker{
		Client: &http.Client{
			// no client-wide timeout; each Check applies its own deadline
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		Timeout: timeout,
	}
}

func (h *HTTPChecker) Check(ctx context.Context, target string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Outcome{Err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return Outcome{Latency: time.Since(start), Err: classify(ctx, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	out := Outcome{
		StatusCode: resp.StatusCode,
		Body:       body,
		Latency:    time.Since(start),
	}
	if err != nil {
		out.Err = fmt.Errorf("read body: %w", classify(ctx, err))
	}
	return out
}

// CloseIdleConnections releases pooled connections.
func (h *HTTPChecker) CloseIdleConnections() {
	if h == nil || h.Client == nil {
		return
	}
	h.Client.CloseIdleConnections()
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
