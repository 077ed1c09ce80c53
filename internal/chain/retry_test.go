package chain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond}.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	calls := 0
	want := errors.New("down")
	err := RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}.Do(context.Background(), func(context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryNegativeMeansSingleAttempt(t *testing.T) {
	calls := 0
	_ = RetryPolicy{MaxRetries: -1}.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryCapsBackoff(t *testing.T) {
	calls := 0
	start := time.Now()
	err := RetryPolicy{MaxRetries: 4, Backoff: 5 * time.Millisecond, MaxBackoff: 5 * time.Millisecond}.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	if err == nil || calls != 5 {
		t.Fatalf("expected 5 failed calls, got %d (%v)", calls, err)
	}
	// uncapped doubling would sleep 75ms
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("backoff not capped: %s", elapsed)
	}
}

func TestRetryHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryPolicy{MaxRetries: 5, Backoff: time.Hour}.Do(ctx, func(context.Context) error {
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
