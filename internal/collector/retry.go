package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blockedby/tg-digest/internal/logger"
	"github.com/blockedby/tg-digest/internal/telegram"
)

// ErrRateLimitExhausted is returned when MaxAttempts is set and every attempt hit FLOOD_WAIT.
var ErrRateLimitExhausted = errors.New("rate limit retries exhausted")

// SleepFunc suspends the caller for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoff is the pause before retrying after a FLOOD_WAIT of seconds.
func backoff(seconds int) time.Duration {
	return time.Duration(seconds+1) * time.Second
}

// Caller retries a remote call for as long as the server answers FLOOD_WAIT.
// The server guarantees the call is eventually granted, so the loop is unbounded
// unless maxAttempts is positive. Every other error is returned as is.
type Caller struct {
	sleep       SleepFunc
	maxAttempts int
	log         *logger.Logger
}

// NewCaller creates a Caller. maxAttempts <= 0 means no limit.
func NewCaller(sleep SleepFunc, maxAttempts int, log *logger.Logger) *Caller {
	if sleep == nil {
		sleep = Sleep
	}
	if log == nil {
		log = logger.Get()
	}
	return &Caller{sleep: sleep, maxAttempts: maxAttempts, log: log}
}

// Call runs op through c, repeating it unchanged after each FLOOD_WAIT.
func Call[T any](ctx context.Context, c *Caller, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		res, err := op(ctx)
		seconds, limited := telegram.AsFloodWait(err)
		if !limited {
			return res, err
		}

		if c.maxAttempts > 0 && attempt >= c.maxAttempts {
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrRateLimitExhausted, attempt, err)
		}

		wait := backoff(seconds)
		c.log.Warn().
			Int("wait_seconds", int(wait/time.Second)).
			Int("attempt", attempt).
			Msg("flood wait, retrying the same request")

		if err := c.sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}
