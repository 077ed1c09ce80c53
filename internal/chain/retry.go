package chain

import (
	"context"
	"time"
)

// RetryPolicy bounds how often a failing RPC read is attempted.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	// MaxBackoff caps the doubled delay. Zero means uncapped.
	MaxBackoff time.Duration
}

// Do runs fn until it succeeds or the retries are spent, returning the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	delay := p.Backoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= retries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if p.MaxBackoff > 0 && delay > p.MaxBackoff {
			delay = p.MaxBackoff
		}
	}
}
