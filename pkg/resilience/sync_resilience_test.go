package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type transition struct{ from, to CircuitState }

func newTestBreaker(clock *fakeClock) (*CircuitBreaker, *[]transition) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{Name: "test", Now: clock.Now})
	var seen []transition
	cb.OnStateChange(func(_ string, from, to CircuitState) {
		seen = append(seen, transition{from, to})
	})
	return cb, &seen
}

func TestDelay(t *testing.T) {
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30, 30}
	for attempt, w := range want {
		if got := Delay(attempt); got != w*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w*time.Second)
		}
	}
	assert.Equal(t, time.Second, Delay(-3))
	assert.Equal(t, 30*time.Second, Delay(64))
	assert.Equal(t, 5, MaxRetries)
}

func TestCooldown_Doubles(t *testing.T) {
	cb := NewCircuitBreaker(nil)
	want := []time.Duration{30, 60, 120, 240, 300, 300, 300}
	for trips, w := range want {
		if got := cb.Cooldown(trips); got != w*time.Second {
			t.Errorf("Cooldown(%d) = %v, want %v", trips, got, w*time.Second)
		}
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	cb, seen := newTestBreaker(clock)

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
		assert.Equal(t, StateClosed, cb.State(), "failure %d", i+1)
		assert.True(t, cb.ShouldAllowSync())
	}

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.ShouldAllowSync())
	assert.Equal(t, []transition{{StateClosed, StateOpen}}, *seen)

	remaining, ok := cb.RemainingCooldown()
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, remaining)
	assert.Equal(t, 1, cb.Stats().TripCount)
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb, seen := newTestBreaker(newFakeClock())

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	cb.RecordSuccess()
	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 4, cb.Stats().ConsecutiveFailures)
	assert.Empty(t, *seen)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clock := newFakeClock()
	cb, seen := newTestBreaker(clock)
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}

	clock.Advance(29 * time.Second)
	assert.False(t, cb.ShouldAllowSync())
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Second)
	assert.True(t, cb.ShouldAllowSync())
	assert.Equal(t, StateHalfOpen, cb.State())
	_, ok := cb.RemainingCooldown()
	assert.False(t, ok)

	// A half-open breaker stays half-open until the probe reports back.
	assert.True(t, cb.ShouldAllowSync())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	stats := cb.Stats()
	assert.Zero(t, stats.ConsecutiveFailures)
	assert.Zero(t, stats.TripCount)

	assert.Equal(t, []transition{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, *seen)
}

func TestCircuitBreaker_ReTripDoublesCooldown(t *testing.T) {
	clock := newFakeClock()
	cb, _ := newTestBreaker(clock)
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}

	wantCooldowns := []time.Duration{60, 120, 240, 300, 300}
	for _, want := range wantCooldowns {
		clock.Advance(10 * time.Minute)
		require.True(t, cb.ShouldAllowSync())
		cb.RecordFailure()
		require.Equal(t, StateOpen, cb.State())

		remaining, ok := cb.RemainingCooldown()
		require.True(t, ok)
		assert.Equal(t, want*time.Second, remaining)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, seen := newTestBreaker(newFakeClock())
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	stats := cb.Stats()
	assert.Zero(t, stats.ConsecutiveFailures)
	assert.Zero(t, stats.TripCount)
	assert.Len(t, *seen, 2)

	// Resetting a closed breaker is not a transition.
	cb.Reset()
	assert.Len(t, *seen, 2)
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb, _ := newTestBreaker(newFakeClock())
	boom := errors.New("boom")

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	}

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}
