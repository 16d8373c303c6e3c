package util

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

// RetryConfig controls exponential backoff for RPC calls.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt (-1 = unlimited)
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Multiplier defaults to 2.0 when zero
	Multiplier float64
	// Jitter is a fraction of the delay (0.0 - 1.0)
	Jitter float64
	// RetryIf decides whether err warrants another attempt; nil retries everything
	RetryIf func(error) bool
}

// DefaultRetryConfig returns the backoff used for node reads.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
		RetryIf:    IsTransientRPCError,
	}
}

// ConnectRetryConfig returns the backoff used when dialing an RPC endpoint.
func ConnectRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

// RetryResult describes how a retried call went.
type RetryResult struct {
	Attempts  int
	LastError error
	Duration  time.Duration
}

var (
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrContextCanceled    = errors.New("context canceled during retry")
)

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// retry budget is spent.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) *RetryResult {
	_, result := RetryWithValue(ctx, config, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return result
}

// RetryWithValue is Retry for functions that produce a value.
func RetryWithValue[T any](ctx context.Context, config *RetryConfig, fn func() (T, error)) (T, *RetryResult) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var zero T
	result := &RetryResult{}
	start := time.Now()

	for {
		result.Attempts++

		val, err := fn()
		if err == nil {
			result.LastError = nil
			result.Duration = time.Since(start)
			return val, result
		}
		result.LastError = err

		if IsNonRetryable(err) || (config.RetryIf != nil && !config.RetryIf(err)) {
			result.Duration = time.Since(start)
			return zero, result
		}

		if config.MaxRetries >= 0 && result.Attempts > config.MaxRetries {
			result.LastError = errors.Join(ErrMaxRetriesExceeded, err)
			result.Duration = time.Since(start)
			return zero, result
		}

		timer := time.NewTimer(calculateDelay(config, result.Attempts))
		select {
		case <-ctx.Done():
			timer.Stop()
			result.LastError = errors.Join(ErrContextCanceled, ctx.Err())
			result.Duration = time.Since(start)
			return zero, result
		case <-timer.C:
		}
	}
}

// delay = base * multiplier^(attempt-1), jittered and clamped to MaxDelay
func calculateDelay(config *RetryConfig, attempt int) time.Duration {
	multiplier := config.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := float64(config.BaseDelay) * math.Pow(multiplier, float64(attempt-1))

	if config.Jitter > 0 {
		jitterRange := delay * config.Jitter
		delay = delay - jitterRange + (rand.Float64() * 2 * jitterRange)
	}

	if config.MaxDelay > 0 && time.Duration(delay) > config.MaxDelay {
		delay = float64(config.MaxDelay)
	}

	return time.Duration(delay)
}

// NonRetryableError stops Retry immediately.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return e.Err.Error() }
func (e *NonRetryableError) Unwrap() error { return e.Err }

// MarkNonRetryable wraps err so Retry gives up on it.
func MarkNonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err was marked with MarkNonRetryable.
func IsNonRetryable(err error) bool {
	var nonRetryable *NonRetryableError
	return errors.As(err, &nonRetryable)
}

var transientRPCMarkers = []string{
	"timeout",
	"connection reset",
	"connection refused",
	"eof",
	"too many requests",
	"429",
	"502",
	"503",
	"header not found",
	"try again",
}

// IsTransientRPCError reports whether err looks like a node or network hiccup
// rather than a contract revert or a malformed call.
func IsTransientRPCError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "execution reverted") {
		return false
	}
	for _, marker := range transientRPCMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
