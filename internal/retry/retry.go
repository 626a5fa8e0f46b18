// Package retry runs an operation until it succeeds, fails permanently, or
// runs out of attempts, doubling the wait between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMultiplier  = 2
)

var ErrExhausted = errors.New("retries exhausted")

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  int
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
	}
}

// Delay is the wait after the given failed attempt (1-based): base, base*m, base*m^2...
func (p Policy) Delay(attempt int) time.Duration {
	m := p.Multiplier
	if m < 1 {
		m = DefaultMultiplier
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= time.Duration(m)
	}
	return d
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Attempt describes a failed attempt that is about to be retried.
type Attempt struct {
	Number int
	Max    int
	Delay  time.Duration
	Err    error
}

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

type Sleeper func(ctx context.Context, d time.Duration) error

type options struct {
	retryable Classifier
	onRetry   func(Attempt)
	sleep     Sleeper
}

type Option func(*options)

func WithClassifier(c Classifier) Option {
	return func(o *options) { o.retryable = c }
}

// WithOnRetry registers a callback invoked before each backoff wait.
func WithOnRetry(fn func(Attempt)) Option {
	return func(o *options) { o.onRetry = fn }
}

func WithSleep(s Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// Sleep waits for d or until ctx is done.
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

// ExhaustedError carries the last error after every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Err}
}

// Do calls fn until it returns nil or a non-retryable error. Without a
// classifier every error is retryable.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, opts ...Option) error {
	o := options{
		retryable: func(error) bool { return true },
		sleep:     Sleep,
	}
	for _, opt := range opts {
		opt(&o)
	}

	maxAttempts := p.attempts()
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !o.retryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		delay := p.Delay(attempt)
		if o.onRetry != nil {
			o.onRetry(Attempt{Number: attempt, Max: maxAttempts, Delay: delay, Err: err})
		}
		if serr := o.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return &ExhaustedError{Attempts: maxAttempts, Err: err}
}
