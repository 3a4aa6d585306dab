// Package httpx holds the retry plumbing shared by the feature-service
// client and the synthesis engine adapter: which failures are worth
// retrying, and how long to wait before the next attempt.
package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusCoder is implemented by errors that carry an HTTP status from an
// upstream service.
type StatusCoder interface {
	HTTPStatusCode() int
}

// StatusRetryable reports whether a status code signals a load or
// availability problem rather than a bad request. 408 and 429 are the
// retryable 4xx exceptions.
func StatusRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 && code <= 599
}

// Retryable reports whether another attempt could plausibly succeed.
// A cancelled context is never retryable: the caller is gone.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return StatusRetryable(sc.HTTPStatusCode())
	}
	// Transport-level failures (connection refused, reset) come through as
	// generic url.Error values without a status; treat them as retryable.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// RetryAfter picks the next backoff delay, honoring an upstream
// Retry-After header (delay-seconds form) when one is present, clamped to
// max.
func RetryAfter(resp *http.Response, fallback, max time.Duration) time.Duration {
	d := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				d = time.Duration(secs) * time.Second
			}
		}
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

// Jitter spreads a backoff delay by +/-20% so that workers retrying the
// same upstream do not thundering-herd it.
func Jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := 0.2 * base.Seconds()
	low := base.Seconds() - delta
	v := low + rand.Float64()*2*delta
	return time.Duration(v * float64(time.Second))
}
