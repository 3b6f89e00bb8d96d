package task

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"
)

// ErrorClass is the retry decision for a failed attempt.
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient" // retry with backoff
	ClassTimeout   ErrorClass = "timeout"   // hard time limit hit, retry
	ClassCancelled ErrorClass = "cancelled" // operator cancel, terminal
	ClassFatal     ErrorClass = "fatal"     // bad input or programming error, terminal
)

// FatalError marks an error that must not be retried.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err so Classify treats it as non-retryable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// ErrCancelled is returned by a task body that observed a cancel request.
var ErrCancelled = errors.New("task cancelled")

// Classify maps an attempt error to a retry decision. Anything not
// recognizably fatal is treated as transient: LLM and retrieval calls
// fail mostly from network blips and 429/5xx responses.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassTransient
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return ClassFatal
	}
	if errors.Is(err, ErrCancelled) {
		return ClassCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return ClassTimeout
	}
	return ClassTransient
}

// RetryPolicy decides whether and when a failed attempt is retried.
// Delays grow exponentially from Base with +/- Jitter, capped at Max.
type RetryPolicy struct {
	MaxRetries int           // retries after the first attempt
	Base       time.Duration // delay before the first retry
	Max        time.Duration // backoff ceiling
	Jitter     float64       // fraction of the delay, e.g. 0.25
}

// DefaultRetryPolicy mirrors the worker defaults: 3 retries, 30s base,
// 120s ceiling, 25% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Base:       30 * time.Second,
		Max:        120 * time.Second,
		Jitter:     0.25,
	}
}

// ShouldRetry reports whether another attempt is allowed. attempt is the
// number of attempts already completed (1-based after a failure).
func (p RetryPolicy) ShouldRetry(attempt int, class ErrorClass) bool {
	if class == ClassFatal || class == ClassCancelled {
		return false
	}
	return attempt <= p.MaxRetries
}

// Delay computes the backoff before retry number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.Base) * math.Pow(2, float64(attempt-1))
	if max := float64(p.Max); base > max {
		base = max
	}
	if p.Jitter > 0 {
		j := 1 + (rand.Float64()*2-1)*p.Jitter
		if j < 0.1 {
			j = 0.1
		}
		base *= j
	}
	d := time.Duration(base)
	if d > p.Max {
		d = p.Max
	}
	return d
}
