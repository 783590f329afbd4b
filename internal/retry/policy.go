package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrAborted is returned by Tracker.Err once an abort threshold is crossed.
var ErrAborted = errors.New("run aborted: failure threshold exceeded")

// Policy is the retry and abort policy shared by the list spider and the
// detail orchestrator.
//
// MaxAttempts, InitialDelay, MaxDelay, Multiplier and Jitter govern retries
// of one operation. FailureThreshold and ConsecutiveFailedBatches govern when
// a whole run gives up.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first one.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration

	// Multiplier grows the delay after each failure. Values <= 1 give a fixed delay.
	Multiplier float64

	// Jitter randomizes each delay by up to this fraction in either direction.
	Jitter float64

	// FailureThreshold aborts a run once failures exceed it. Zero disables it.
	FailureThreshold int

	// ConsecutiveFailedBatches aborts a run after this many batches in a row
	// in which every item failed. Zero disables it.
	ConsecutiveFailedBatches int
}

// NewPolicy returns a policy with three attempts and exponential backoff.
func NewPolicy() Policy {
	return Policy{
		MaxAttempts:              3,
		InitialDelay:             2 * time.Second,
		MaxDelay:                 30 * time.Second,
		Multiplier:               2.0,
		Jitter:                   0.25,
		FailureThreshold:         10,
		ConsecutiveFailedBatches: 3,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.InitialDelay <= 0 {
		return 0
	}

	delay := float64(p.InitialDelay)
	if p.Multiplier > 1 {
		delay *= math.Pow(p.Multiplier, float64(attempt-1))
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		delay += delay * p.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto randomness
		if delay < 0 {
			delay = float64(p.InitialDelay)
		}
	}

	return time.Duration(delay)
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts are
// exhausted, or ctx is done. attempt starts at 1.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, fn func(ctx context.Context, attempt int) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		logger.Debug("retrying after backoff",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", delay,
			"error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// Tracker counts outcomes of a run and decides when the run should abort.
// It is safe for concurrent use.
type Tracker struct {
	policy Policy

	mu                 sync.Mutex
	succeeded          int
	failed             int
	consecutiveBatches int
	reason             string
}

// NewTracker returns a Tracker for p.
func (p Policy) NewTracker() *Tracker {
	return &Tracker{policy: p}
}

// RecordSuccess counts one successful item.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.succeeded++
}

// RecordFailure counts one failed item.
func (t *Tracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
	if t.reason == "" && t.policy.FailureThreshold > 0 && t.failed > t.policy.FailureThreshold {
		t.reason = fmt.Sprintf("%d failures exceed threshold %d", t.failed, t.policy.FailureThreshold)
	}
}

// RecordBatch records the outcome of a finished batch.
func (t *Tracker) RecordBatch(succeeded, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if failed > 0 && succeeded == 0 {
		t.consecutiveBatches++
	} else {
		t.consecutiveBatches = 0
	}
	limit := t.policy.ConsecutiveFailedBatches
	if t.reason == "" && limit > 0 && t.consecutiveBatches >= limit {
		t.reason = fmt.Sprintf("%d consecutive batches failed completely", t.consecutiveBatches)
	}
}

// ShouldAbort reports whether a threshold has been crossed, and why.
func (t *Tracker) ShouldAbort() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason != "", t.reason
}

// Err returns ErrAborted wrapped with the reason, or nil.
func (t *Tracker) Err() error {
	if abort, reason := t.ShouldAbort(); abort {
		return fmt.Errorf("%w: %s", ErrAborted, reason)
	}
	return nil
}

// Counts returns the number of successes and failures recorded so far.
func (t *Tracker) Counts() (succeeded, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.succeeded, t.failed
}
