// Package security implements the login-protection subsystem: the sliding
// window attempt tracker, the heuristic anomaly detector and the security
// event recorder.
package security

import (
	"strings"
	"sync"
	"time"
)

const (
	defaultWindow        = 15 * time.Minute
	defaultMaxAttempts   = 5
	defaultBlockDuration = 30 * time.Minute
)

// Attempt is a single login attempt. Immutable once recorded.
type Attempt struct {
	Time            time.Time
	SourceAddress   string
	ClientSignature string
	Success         bool
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed bool
	// RetryAfter is the remaining block time, rounded up to whole seconds.
	// Zero when Allowed.
	RetryAfter time.Duration
	// Remaining is how many failures are left before a block triggers.
	Remaining int
	// ResetAt is the instant at which the limit window resets: the block
	// expiry while blocked, otherwise the expiry of the oldest windowed
	// failure.
	ResetAt time.Time
}

// TrackerOption configures Tracker behavior.
type TrackerOption func(*Tracker)

// WithTrackerClock overrides the time source (useful for tests).
func WithTrackerClock(fn func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if fn != nil {
			t.now = fn
		}
	}
}

// WithWindow overrides the sliding window duration.
func WithWindow(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.window = d
		}
	}
}

// WithMaxAttempts overrides the failure threshold.
func WithMaxAttempts(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

// WithBlockDuration overrides the block duration.
func WithBlockDuration(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.blockDuration = d
		}
	}
}

// Tracker keeps a sliding window of login attempts per identifier and
// derives block state from the windowed history. It owns the windows
// exclusively; all access is serialized by a single mutex. Operations never
// perform I/O.
type Tracker struct {
	mu      sync.Mutex
	windows map[string][]Attempt

	window        time.Duration
	maxAttempts   int
	blockDuration time.Duration
	now           func() time.Time
}

// NewTracker constructs a Tracker with the default thresholds: 5 failures
// within 15 minutes block the identifier for 30 minutes.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		windows:       make(map[string][]Attempt),
		window:        defaultWindow,
		maxAttempts:   defaultMaxAttempts,
		blockDuration: defaultBlockDuration,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MaxAttempts returns the configured failure threshold.
func (t *Tracker) MaxAttempts() int { return t.maxAttempts }

// Record appends an attempt for the identifier and prunes entries that have
// fallen out of the window.
func (t *Tracker) Record(identifier string, attempt Attempt) {
	key := normalizeIdentifier(identifier)
	if attempt.Time.IsZero() {
		attempt.Time = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.pruneLocked(key)
	t.windows[key] = append(window, attempt)
}

// CheckAllowed evaluates block state for the identifier from its current
// windowed history. A block triggers when the failed-attempt count reached
// the threshold and the most recent failure is still within the block
// duration. Successes never clear earlier failures; only expiry out of the
// window lifts the block.
func (t *Tracker) CheckAllowed(identifier string) Decision {
	key := normalizeIdentifier(identifier)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.pruneLocked(key)
	t.windows[key] = window

	failures := 0
	var lastFailure time.Time
	var oldestFailure time.Time
	for _, a := range window {
		if a.Success {
			continue
		}
		failures++
		if a.Time.After(lastFailure) {
			lastFailure = a.Time
		}
		if oldestFailure.IsZero() || a.Time.Before(oldestFailure) {
			oldestFailure = a.Time
		}
	}

	if failures >= t.maxAttempts && now.Sub(lastFailure) < t.blockDuration {
		remaining := t.blockDuration - now.Sub(lastFailure)
		return Decision{
			Allowed:    false,
			RetryAfter: ceilSeconds(remaining),
			Remaining:  0,
			ResetAt:    lastFailure.Add(t.blockDuration),
		}
	}

	remaining := t.maxAttempts - failures
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{Allowed: true, Remaining: remaining}
	if !oldestFailure.IsZero() {
		d.ResetAt = oldestFailure.Add(t.window)
	} else {
		d.ResetAt = now.Add(t.window)
	}
	return d
}

// FailureCount returns the number of failed attempts currently in the
// identifier's window.
func (t *Tracker) FailureCount(identifier string) int {
	key := normalizeIdentifier(identifier)

	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.pruneLocked(key)
	t.windows[key] = window

	failures := 0
	for _, a := range window {
		if !a.Success {
			failures++
		}
	}
	return failures
}

// Window returns a copy of the identifier's current attempt window for
// anomaly evaluation.
func (t *Tracker) Window(identifier string) []Attempt {
	key := normalizeIdentifier(identifier)

	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.pruneLocked(key)
	t.windows[key] = window

	out := make([]Attempt, len(window))
	copy(out, window)
	return out
}

// Sweep drops identifiers whose windows are fully expired. Runs under the
// same lock as foreground operations.
func (t *Tracker) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.windows {
		if len(t.pruneLocked(key)) == 0 {
			delete(t.windows, key)
		}
	}
}

// pruneLocked returns the identifier's window with expired attempts removed.
// Caller holds t.mu.
func (t *Tracker) pruneLocked(key string) []Attempt {
	window := t.windows[key]
	if len(window) == 0 {
		return window
	}
	cutoff := t.now().Add(-t.window)
	// Attempts are append-only in time order; find the first retained one.
	keep := 0
	for keep < len(window) && !window[keep].Time.After(cutoff) {
		keep++
	}
	if keep == 0 {
		return window
	}
	pruned := make([]Attempt, len(window)-keep)
	copy(pruned, window[keep:])
	return pruned
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func ceilSeconds(d time.Duration) time.Duration {
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}
