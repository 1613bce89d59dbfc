// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the model and ranking clients.
package httputil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff when a
// policy does not set one. Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

// DefaultMaxAttempts is the total attempt budget when a policy leaves it unset.
const DefaultMaxAttempts = 3

// RetryPolicy configures DoWithRetry.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay seeds the backoff; attempt n (0-based) waits BaseDelay * 2^n.
	BaseDelay time.Duration

	// AttemptTimeout bounds each attempt, including reading the body.
	// Zero means no per-attempt bound.
	AttemptTimeout time.Duration

	// OnRetry is called before each backoff wait. cause is the transport
	// error, or nil when the attempt returned 429.
	OnRetry func(attempt int, wait time.Duration, cause error)
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = RetryBaseDelay
	}
	return p
}

// Backoff returns the wait before retrying after attempt (0-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.withDefaults().BaseDelay << attempt
}

// RetryError reports that every attempt failed with a retryable condition.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ErrRateLimited is the cause recorded when an attempt returned 429.
var ErrRateLimited = errors.New("rate limited (HTTP 429)")

// DoWithRetry executes req and retries on HTTP 429 and transport errors with
// exponential backoff: BaseDelay, 2*BaseDelay, 4*BaseDelay, and so on, with
// no wait after the final attempt.
//
// Every attempt runs under its own AttemptTimeout and the response body is
// read fully inside that window, so the returned response always carries an
// in-memory body. Any status other than 429 is returned to the caller as-is.
// A request with a body must set GetBody (http.NewRequest does this for the
// common reader types). If ctx is done during a wait, ctx.Err() is returned.
// When the budget is exhausted the result is a *RetryError.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	policy = policy.withDefaults()

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		resp, err := doAttempt(ctx, client, req, policy.AttemptTimeout)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
		default:
			return resp, nil
		}

		if attempt == policy.MaxAttempts-1 {
			break
		}

		wait := policy.BaseDelay << attempt
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, &RetryError{Attempts: policy.MaxAttempts, Err: lastErr}
}

func doAttempt(ctx context.Context, client *http.Client, req *http.Request, timeout time.Duration) (*http.Response, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r := req.Clone(attemptCtx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}
		r.Body = body
	}

	resp, err := client.Do(r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}
