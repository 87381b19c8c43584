package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned by Poll when every attempt ran without the
// condition being met.
var ErrExhausted = errors.New("poll attempts exhausted")

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy bounds a fixed-interval polling loop. It is immutable after construction.
type Policy struct {
	Interval    time.Duration // wait before each attempt
	MaxAttempts int           // attempts before giving up
}

// DefaultPolicy returns the default poll policy (30s interval, 200 attempts).
func DefaultPolicy() Policy {
	return Policy{Interval: 30 * time.Second, MaxAttempts: 200}
}

// NewPolicy builds a policy from raw config fields; zero/invalid values fall back to defaults.
func NewPolicy(interval time.Duration, maxAttempts int) Policy {
	p := DefaultPolicy()
	if interval > 0 {
		p.Interval = interval
	}
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	return p
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.Interval < 0 {
		return fmt.Errorf("interval cannot be negative")
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be >0")
	}
	return nil
}

// Poll runs check up to MaxAttempts times, sleeping Interval before every
// attempt. Attempts are numbered from 1. It returns nil once check reports
// done, the first error check or sleep returns, or ErrExhausted.
func (p Policy) Poll(ctx context.Context, sleep SleepFunc, check func(attempt int) (bool, error)) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if sleep == nil {
		sleep = Sleep
	}
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := sleep(ctx, p.Interval); err != nil {
			return err
		}
		done, err := check(attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return ErrExhausted
}
