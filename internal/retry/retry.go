// Package retry implements the exponential-backoff retry policy around a
// single tile fetch, including the error classification table that decides
// whether a failure is worth retrying.
package retry

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

// Kind mirrors tiledl.ErrorKind without importing the root package.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindHTTP      Kind = "http"
	KindTimeout   Kind = "timeout"
	KindCORS      Kind = "cors"
	KindParse     Kind = "parse"
	KindCancelled Kind = "cancelled"
	KindUnknown   Kind = "unknown"
)

// Outcome is the classified result of one fetch attempt.
type Outcome struct {
	Kind       Kind
	HTTPStatus int
	Message    string
	Retryable  bool
}

// FetchError is returned by a fetch function to report a classified failure
// directly (e.g. non-2xx status or bad content type). Returning a plain Go
// error from the fetch function classifies it by its type as cors
// (ErrCORS), timeout, network (net.Error), or otherwise unknown, and as
// cancelled whenever the context is done; returning a FetchError gives the
// caller full control.
type FetchError struct {
	Kind       Kind
	HTTPStatus int
	Message    string
}

func (e *FetchError) Error() string { return e.Message }

// ErrCORS should be wrapped or returned to signal a CORS violation; Go's
// net/http never represents this distinctly, but a host-specific fetch
// function can detect it and return this sentinel.
var ErrCORS = errors.New("cors violation")

// Controller runs a fetch function with retry and exponential backoff.
type Controller struct {
	maxAttempts  int
	baseDelay    time.Duration
	sleep        func(context.Context, time.Duration) error
	onRetryStart func()
	onRetryEnd   func()
}

// SetRetryHooks installs callbacks invoked around each backoff sleep, so a
// caller can track tiles currently waiting to retry (e.g. a progress
// tracker's retrying counter). Either may be nil.
func (c *Controller) SetRetryHooks(start, end func()) {
	c.onRetryStart = start
	c.onRetryEnd = end
}

// New builds a Controller. retries is the number of retries after the
// initial attempt (maxAttempts = 1 + retries); baseDelayMs is the base of
// the exponential backoff in milliseconds.
func New(retries int, baseDelayMs int) *Controller {
	return &Controller{
		maxAttempts: 1 + retries,
		baseDelay:   time.Duration(baseDelayMs) * time.Millisecond,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs fn, classifying and retrying failures until a non-retryable
// classification, success, context cancellation, or maxAttempts attempts.
func (c *Controller) Execute(ctx context.Context, fn func(context.Context) ([]byte, int, string, error)) ([]byte, Outcome, int) {
	var last Outcome
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, Outcome{Kind: KindCancelled, Message: ctx.Err().Error(), Retryable: false}, attempt
		}

		body, status, contentType, err := fn(ctx)
		outcome := classify(ctx, body, status, contentType, err)
		if outcome.Kind == "" {
			return body, Outcome{}, attempt + 1
		}
		last = outcome
		if !outcome.Retryable {
			return nil, outcome, attempt + 1
		}
		if attempt == c.maxAttempts-1 {
			break
		}
		delay := c.baseDelay << uint(attempt)
		if c.onRetryStart != nil {
			c.onRetryStart()
		}
		err = c.sleep(ctx, delay)
		if c.onRetryEnd != nil {
			c.onRetryEnd()
		}
		if err != nil {
			return nil, Outcome{Kind: KindCancelled, Message: err.Error(), Retryable: false}, attempt + 1
		}
	}
	return nil, last, c.maxAttempts
}

func classify(ctx context.Context, body []byte, status int, contentType string, err error) Outcome {
	if ctx.Err() != nil {
		return Outcome{Kind: KindCancelled, Message: ctx.Err().Error(), Retryable: false}
	}

	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return Outcome{Kind: fe.Kind, HTTPStatus: fe.HTTPStatus, Message: fe.Message, Retryable: retryableKind(fe.Kind, fe.HTTPStatus)}
		}
		if errors.Is(err, ErrCORS) {
			return Outcome{Kind: KindCORS, Message: err.Error(), Retryable: false}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return Outcome{Kind: KindTimeout, Message: err.Error(), Retryable: true}
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			if netErr.Timeout() {
				return Outcome{Kind: KindTimeout, Message: err.Error(), Retryable: true}
			}
			return Outcome{Kind: KindNetwork, Message: err.Error(), Retryable: true}
		}
		return Outcome{Kind: KindUnknown, Message: err.Error(), Retryable: true}
	}

	if status != 0 && status >= 400 {
		return Outcome{Kind: KindHTTP, HTTPStatus: status, Message: httpStatusMessage(status), Retryable: retryableHTTPStatus(status)}
	}

	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return Outcome{Kind: KindParse, Message: "unexpected content type " + contentType, Retryable: false}
	}

	return Outcome{}
}

func retryableKind(kind Kind, status int) bool {
	switch kind {
	case KindHTTP:
		return retryableHTTPStatus(status)
	case KindNetwork, KindTimeout, KindUnknown:
		return true
	default:
		return false
	}
}

func retryableHTTPStatus(status int) bool {
	switch status {
	case 400, 401, 403, 404, 410:
		return false
	case 429, 500, 502, 503, 504:
		return true
	default:
		return status >= 500
	}
}

func httpStatusMessage(status int) string {
	return "http status " + strconv.Itoa(status)
}
