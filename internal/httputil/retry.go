// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the source and
// destination clients: transient-failure retry with exponential backoff and
// an authenticated, rate-limited transport.
package httputil

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// transient failures. Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

const defaultMaxRetries = 3

// Transient reports whether a request outcome is worth retrying: HTTP 429,
// any 5xx, or a transport error other than cancellation. Timeouts count as
// transient; callers whose own context has expired must stop before asking
// (Do checks ctx.Err first).
func Transient(statusCode int, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError
}

// Backoff returns the wait before retry number attempt (0-based):
// RetryBaseDelay, then doubling.
func Backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
}

// Wait sleeps for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DoWithRetry executes an HTTP request and retries transient failures with
// exponential backoff (see Backoff). Request bodies are replayed through
// req.GetBody.
//
// When maxRetries is 0 the default (3) is used. Before each retry the
// response body is drained and closed. If the context is cancelled during a
// backoff wait the function returns ctx.Err(). After exhausting retries the
// last response (or transport error) is returned so the caller can inspect
// it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	resp, _, err := Do(ctx, client, req, maxRetries)
	return resp, err
}

// Do is DoWithRetry that also reports how many attempts were made.
func Do(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, int, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, attempt, err
			}
			attemptReq.Body = body
		}

		resp, err := client.Do(attemptReq)
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		if ctx.Err() != nil || !Transient(status, err) || attempt >= maxRetries {
			return resp, attempt + 1, err
		}

		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		if err := Wait(ctx, Backoff(attempt)); err != nil {
			return nil, attempt + 1, err
		}
	}
}
