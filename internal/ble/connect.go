package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ConnectOptions configures the connect retry loop.
type ConnectOptions struct {
	RetryBackoff    time.Duration // first delay after a transient failure; 0 retries immediately
	RetryBackoffMax time.Duration // cap for the exponential backoff
}

// DefaultConnectOptions returns sensible defaults.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		RetryBackoff:    100 * time.Millisecond,
		RetryBackoffMax: 2 * time.Second,
	}
}

// backoffDelay returns the retry delay for attempt n, doubling from base
// and capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := base << uint(attempt)
	if delay <= 0 || (max > 0 && delay > max) {
		return max
	}
	return delay
}

// Connect connects to p and verifies that it exposes the notify/write
// characteristic, which it returns. ErrNotConnected from an attempt is
// retried until ctx is done; any other error is returned as is.
//
// When the characteristic is missing the connection is left open and
// ErrIncompatibleDevice is returned.
func Connect(ctx context.Context, p Peripheral, opts ConnectOptions) (Characteristic, error) {
	for attempt := 0; !p.IsConnected(); attempt++ {
		err := p.Connect()
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotConnected) {
			return nil, fmt.Errorf("ble: connect to %s: %w", p.Address(), err)
		}
		slog.Debug("[BLE] connect attempt failed, retrying", "addr", p.Address(), "attempt", attempt+1)

		delay := backoffDelay(attempt, opts.RetryBackoff, opts.RetryBackoffMax)
		if delay == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	chars, err := p.DiscoverCharacteristics()
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	for _, c := range chars {
		if IsNotifyChar(c.UUID()) {
			return c, nil
		}
	}
	return nil, ErrIncompatibleDevice
}
