package security

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func failure(at time.Time) Attempt {
	return Attempt{Time: at, SourceAddress: "203.0.113.10", ClientSignature: "ua-1"}
}

func TestTrackerBlocksAfterMaxFailures(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(WithTrackerClock(clock.Now))

	for i := 0; i < 5; i++ {
		tracker.Record("A@B.com", failure(clock.Now()))
		clock.Advance(time.Second)
	}

	d := tracker.CheckAllowed("a@b.com")
	require.False(t, d.Allowed)
	require.Greater(t, d.RetryAfter, time.Duration(0))
	require.Equal(t, 0, d.Remaining)
	require.True(t, d.ResetAt.After(clock.Now()))
}

func TestTrackerAllowsBelowThreshold(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(WithTrackerClock(clock.Now))

	for i := 0; i < 4; i++ {
		tracker.Record("a@b.com", failure(clock.Now()))
	}

	d := tracker.CheckAllowed("a@b.com")
	require.True(t, d.Allowed)
	require.Equal(t, 1, d.Remaining)
}

func TestTrackerRetryAfterRoundsUp(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(WithTrackerClock(clock.Now), WithBlockDuration(30*time.Minute))

	for i := 0; i < 5; i++ {
		tracker.Record("a@b.com", failure(clock.Now()))
	}
	clock.Advance(29*time.Minute + 59*time.Second + 500*time.Millisecond)

	d := tracker.CheckAllowed("a@b.com")
	require.False(t, d.Allowed)
	require.Equal(t, time.Second, d.RetryAfter)
}

func TestTrackerSuccessDoesNotClearFailures(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(WithTrackerClock(clock.Now))

	for i := 0; i < 4; i++ {
		tracker.Record("a@b.com", failure(clock.Now()))
		clock.Advance(time.Second)
	}
	tracker.Record("a@b.com", Attempt{Time: clock.Now(), Success: true})
	clock.Advance(time.Second)

	require.Equal(t, 4, tracker.FailureCount("a@b.com"))

	tracker.Record("a@b.com", failure(clock.Now()))
	d := tracker.CheckAllowed("a@b.com")
	require.False(t, d.Allowed)
}

func TestTrackerBlockLiftsAfterBlockDuration(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(WithTrackerClock(clock.Now))

	for i := 0; i < 5; i++ {
		tracker.Record("a@b.com", failure(clock.Now()))
	}
	require.False(t, tracker.CheckAllowed("a@b.com").Allowed)

	clock.Advance(30*time.Minute + time.Second)

	// Failures also fell out of the 15-minute window by now.
	d := tracker.CheckAllowed("a@b.com")
	require.True(t, d.Allowed)
	require.Equal(t, 5, d.Remaining)
}

func TestTrackerWindowExpiryLiftsBlock(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(
		WithTrackerClock(clock.Now),
		WithWindow(15*time.Minute),
		WithBlockDuration(time.Hour),
	)

	for i := 0; i < 5; i++ {
		tracker.Record("a@b.com", failure(clock.Now()))
	}

	// Still inside block duration, but the failures expire out of the
	// window after 15 minutes, which alone lifts the block.
	clock.Advance(16 * time.Minute)
	d := tracker.CheckAllowed("a@b.com")
	require.True(t, d.Allowed)
	require.Equal(t, 0, tracker.FailureCount("a@b.com"))
}

func TestTrackerIdentifiersAreIndependent(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(WithTrackerClock(clock.Now))

	for i := 0; i < 5; i++ {
		tracker.Record("a@b.com", failure(clock.Now()))
	}

	require.False(t, tracker.CheckAllowed("a@b.com").Allowed)
	require.True(t, tracker.CheckAllowed("other@b.com").Allowed)
}

func TestTrackerSweepDropsExpiredWindows(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTracker(WithTrackerClock(clock.Now))

	tracker.Record("a@b.com", failure(clock.Now()))
	tracker.Record("b@b.com", failure(clock.Now()))
	clock.Advance(16 * time.Minute)
	tracker.Record("b@b.com", failure(clock.Now()))

	tracker.Sweep()

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	if _, ok := tracker.windows["a@b.com"]; ok {
		t.Fatalf("expected expired window to be dropped")
	}
	if _, ok := tracker.windows["b@b.com"]; !ok {
		t.Fatalf("expected live window to survive sweep")
	}
}

func TestTrackerConcurrentRecords(t *testing.T) {
	tracker := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d@b.com", n%5)
			tracker.Record(id, Attempt{SourceAddress: "203.0.113.10"})
			tracker.CheckAllowed(id)
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 5; i++ {
		total += tracker.FailureCount(fmt.Sprintf("user-%d@b.com", i))
	}
	require.Equal(t, 50, total)
}
