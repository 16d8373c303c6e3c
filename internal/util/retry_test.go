package util

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestRetry_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	result := Retry(context.Background(), fastConfig(5), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
	if result.LastError != nil {
		t.Errorf("expected no error, got %v", result.LastError)
	}
}

func TestRetry_MaxRetriesExceeded(t *testing.T) {
	result := Retry(context.Background(), fastConfig(2), func() error {
		return errors.New("down")
	})

	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
	if !errors.Is(result.LastError, ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", result.LastError)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	sentinel := errors.New("execution reverted: not registered")
	result := Retry(context.Background(), fastConfig(5), func() error {
		return MarkNonRetryable(sentinel)
	})

	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
	if !errors.Is(result.LastError, sentinel) {
		t.Errorf("expected wrapped sentinel, got %v", result.LastError)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(-1)
	cfg.BaseDelay = time.Second

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := Retry(ctx, cfg, func() error { return errors.New("down") })
	if !errors.Is(result.LastError, ErrContextCanceled) {
		t.Errorf("expected ErrContextCanceled, got %v", result.LastError)
	}
}

func TestRetryWithValue(t *testing.T) {
	attempts := 0
	val, result := RetryWithValue(context.Background(), fastConfig(3), func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("503 service unavailable")
		}
		return 42, nil
	})

	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
}

func TestRetryWithValue_DefaultConfigSkipsReverts(t *testing.T) {
	attempts := 0
	_, result := RetryWithValue(context.Background(), nil, func() (string, error) {
		attempts++
		return "", errors.New("execution reverted")
	})

	if attempts != 1 {
		t.Errorf("revert should not be retried, got %d attempts", attempts)
	}
	if result.LastError == nil {
		t.Error("expected error")
	}
}

func TestCalculateDelay_Clamped(t *testing.T) {
	cfg := &RetryConfig{BaseDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 3 * time.Second},
		{10, 3 * time.Second},
	}
	for _, tt := range tests {
		if got := calculateDelay(cfg, tt.attempt); got != tt.want {
			t.Errorf("attempt %d: got %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestIsTransientRPCError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("i/o timeout"), true},
		{errors.New("429 Too Many Requests"), true},
		{fmt.Errorf("call: %w", errors.New("connection reset by peer")), true},
		{errors.New("execution reverted: stake not matured"), false},
		{context.Canceled, false},
		{errors.New("abi: cannot unmarshal"), false},
	}
	for _, tt := range tests {
		if got := IsTransientRPCError(tt.err); got != tt.want {
			t.Errorf("IsTransientRPCError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
