// Package httpretry provides the HTTPDoer abstraction used by upstream API
// clients, plus an optional retrying implementation.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jpillora/backoff"

	"github.com/ignite/mailpro-dashboard/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient retries gateway-class failures with jittered exponential backoff.
type RetryClient struct {
	client   HTTPDoer
	retries  int
	minDelay time.Duration
	maxDelay time.Duration
}

// New returns the HTTPDoer an API client should use. With retries == 0 the
// plain *http.Client is returned and each call is attempted exactly once.
func New(timeout time.Duration, retries int) HTTPDoer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := &http.Client{Timeout: timeout}
	if retries <= 0 {
		return base
	}
	return NewRetryClient(base, retries)
}

// NewRetryClient wraps client (a 30s *http.Client when nil) with up to
// retries extra attempts, 3 when retries <= 0.
func NewRetryClient(client HTTPDoer, retries int) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if retries <= 0 {
		retries = 3
	}
	return &RetryClient{
		client:   client,
		retries:  retries,
		minDelay: time.Second,
		maxDelay: 30 * time.Second,
	}
}

// WithDelays overrides the backoff bounds.
func (rc *RetryClient) WithDelays(min, max time.Duration) *RetryClient {
	rc.minDelay = min
	rc.maxDelay = max
	return rc
}

// Do sends req, retrying on 429/5xx gateway statuses and transport errors.
// Client errors and cancellation are never retried. The last retryable
// response is handed back untouched so the caller can read its body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	b := &backoff.Backoff{Min: rc.minDelay, Max: rc.maxDelay, Factor: 2, Jitter: true}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := rewind(req); err != nil {
				return nil, err
			}
			wait := b.Duration()
			logger.Debug("httpretry: retrying request",
				"attempt", attempt, "max", rc.retries,
				"method", req.Method, "path", req.URL.Path, "wait", wait)
			if err := sleep(ctx, wait); err != nil {
				return nil, firstErr(lastErr, err)
			}
		}

		resp, err := rc.client.Do(req)
		final := attempt == rc.retries
		switch {
		case err != nil:
			if ctx.Err() != nil || final {
				return nil, err
			}
			lastErr = err
		case !retryable(resp.StatusCode) || final:
			return resp, nil
		default:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
		}
	}
}

func rewind(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("httpretry: failed to reset request body: %w", err)
	}
	req.Body = body
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
