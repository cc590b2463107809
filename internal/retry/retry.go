// Package retry provides the bounded retry policy shared by every outbound call.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Defaults for outbound calls
const (
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 500 * time.Millisecond
	DefaultMaxDelay       = 8 * time.Second
	DefaultAttemptTimeout = 30 * time.Second
)

// Policy retries transient failures with exponential backoff.
// The zero value is usable and behaves like DefaultPolicy without a limiter.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	// Retryable decides whether an error is worth another attempt. Defaults to IsTransient.
	Retryable func(error) bool
	// Limiter paces attempts when set; every attempt waits for a token first.
	Limiter *rate.Limiter

	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the policy used when nothing is configured
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// ExhaustedError is returned when every attempt failed with a retryable error
type ExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}

// transientError marks an error as safe to retry
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so IsTransient reports true for it
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// StatusCoder is implemented by errors that carry an HTTP status code
type StatusCoder interface {
	HTTPStatus() int
}

// IsTransient classifies rate-limit and transient-server failures
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *transientError
	if errors.As(err, &te) {
		return true
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return transientStatus(gerr.Code)
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return transientStatus(sc.HTTPStatus())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return transientCode(st.Code())
	}

	// some SDKs flatten the status into the message
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"too many requests", "resource exhausted", "code = resourceexhausted", "code = unavailable", "503 service unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func transientCode(code codes.Code) bool {
	return code == codes.ResourceExhausted || code == codes.Unavailable
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
// Each attempt gets its own timeout derived from ctx. It returns the number
// of attempts made alongside the final error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return attempt - 1, err
			}
		}

		lastErr = p.attempt(ctx, fn)
		if lastErr == nil {
			return attempt, nil
		}
		// The caller's own deadline is never retried
		if err := ctx.Err(); err != nil {
			return attempt, err
		}
		if !retryable(lastErr) {
			return attempt, lastErr
		}
		if attempt == maxAttempts {
			break
		}
		if err := p.wait(ctx, p.backoff(attempt)); err != nil {
			return attempt, err
		}
	}

	return maxAttempts, &ExhaustedError{Attempts: maxAttempts, Cause: lastErr}
}

func (p Policy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	timeout := p.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// backoff returns BaseDelay * 2^(attempt-1), capped at MaxDelay
func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	delay := base * time.Duration(1<<(attempt-1))
	if delay > maxDelay || delay <= 0 {
		return maxDelay
	}
	return delay
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
