package syncsvc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// SyncQueue
// =============================================================================

func TestSyncQueue_CoalescesBursts(t *testing.T) {
	var cycles atomic.Int32
	release := make(chan struct{})
	q := NewSyncQueue(func(context.Context) {
		if cycles.Add(1) == 1 {
			<-release
		}
	}, zerolog.Nop())

	for range 100 {
		q.RequestSync()
	}
	assert.True(t, q.IsLoopActive())
	close(release)

	require.NoError(t, q.WaitIdle(waitCtx(t)))
	got := cycles.Load()
	assert.Greater(t, got, int32(0))
	assert.LessOrEqual(t, got, int32(2))
	assert.Equal(t, uint64(got), q.RunID())
	assert.False(t, q.IsLoopActive())
}

func TestSyncQueue_RequestDuringCycleRunsOnceMore(t *testing.T) {
	var cycles atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	q := NewSyncQueue(func(context.Context) {
		if cycles.Add(1) == 1 {
			close(started)
			<-release
		}
	}, zerolog.Nop())

	q.RequestSync()
	<-started
	q.RequestSync()
	q.RequestSync()
	close(release)

	require.NoError(t, q.WaitIdle(waitCtx(t)))
	assert.Equal(t, int32(2), cycles.Load())
}

func TestSyncQueue_ShutdownCancelsAndIgnoresLaterRequests(t *testing.T) {
	var cycles atomic.Int32
	started := make(chan struct{})
	q := NewSyncQueue(func(ctx context.Context) {
		cycles.Add(1)
		close(started)
		<-ctx.Done()
	}, zerolog.Nop())

	q.RequestSync()
	<-started
	require.NoError(t, q.Shutdown(waitCtx(t)))
	assert.False(t, q.IsLoopActive())

	q.RequestSync()
	assert.False(t, q.IsLoopActive())
	assert.Equal(t, int32(1), cycles.Load())

	// Second shutdown is a no-op.
	require.NoError(t, q.Shutdown(waitCtx(t)))
}

// =============================================================================
// ChannelLifecycleManager
// =============================================================================

func newChannel(sub *fakeSubscriber, events chan<- domain.ChangeEvent) *ChannelLifecycleManager {
	return NewChannelLifecycleManager(sub, ChannelConfig{
		Tables:      []string{"tasks"},
		Mode:        domain.ModeTest,
		MaxAttempts: 5,
	}, func(ev domain.ChangeEvent) {
		if events != nil {
			events <- ev
		}
	}, zerolog.Nop())
}

func TestChannel_ConnectsAndForwardsEvents(t *testing.T) {
	sub := &fakeSubscriber{}
	events := make(chan domain.ChangeEvent, 1)
	ch := newChannel(sub, events)
	t.Cleanup(func() { _ = ch.Shutdown(context.Background()) })

	require.NoError(t, ch.Start(context.Background()))
	assert.Equal(t, domain.Connected(), ch.State())

	sub.emit(domain.ChangeEvent{Table: "tasks", Type: domain.ChangeUpdate})
	select {
	case ev := <-events:
		assert.Equal(t, "tasks", ev.Table)
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}
}

func TestChannel_DegradesAfterMaxAttempts(t *testing.T) {
	sub := &fakeSubscriber{failN: 100}
	ch := newChannel(sub, nil)
	t.Cleanup(func() { _ = ch.Shutdown(context.Background()) })

	var transitions []domain.ConnectionState
	done := make(chan struct{})
	ch.OnStateChange(func(_, to domain.ConnectionState) {
		transitions = append(transitions, to)
		if to.Status == domain.ConnectionDegraded {
			close(done)
		}
	})

	require.Error(t, ch.Start(context.Background()))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("never degraded")
	}

	assert.Equal(t, domain.Degraded(), ch.State())
	// One initial attempt plus five retries.
	assert.Equal(t, 6, sub.callCount())
	require.Len(t, transitions, 6)
	for i := range 5 {
		assert.Equal(t, domain.Reconnecting(i+1, 5), transitions[i])
	}
}

func TestChannel_RecoversAndResetsAttempt(t *testing.T) {
	sub := &fakeSubscriber{failN: 2}
	ch := newChannel(sub, nil)
	t.Cleanup(func() { _ = ch.Shutdown(context.Background()) })

	_ = ch.Start(context.Background())
	require.Eventually(t, func() bool {
		return ch.State() == domain.Connected() && sub.callCount() == 3
	}, 5*time.Second, 5*time.Millisecond)

	// A dropped subscription starts counting from one again.
	sub.last().errs <- assert.AnError
	require.Eventually(t, func() bool {
		return sub.callCount() == 4 && ch.State() == domain.Connected()
	}, 5*time.Second, 5*time.Millisecond)
}

func TestChannel_ResetAndReconnectLeavesDegraded(t *testing.T) {
	sub := &fakeSubscriber{failN: 6}
	ch := newChannel(sub, nil)
	t.Cleanup(func() { _ = ch.Shutdown(context.Background()) })

	_ = ch.Start(context.Background())
	require.Eventually(t, func() bool {
		return ch.State() == domain.Degraded()
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, ch.ResetAndReconnect(context.Background()))
	assert.Equal(t, domain.Connected(), ch.State())
	assert.Equal(t, 7, sub.callCount())
}

func TestChannel_ShutdownClosesSubscription(t *testing.T) {
	sub := &fakeSubscriber{}
	events := make(chan domain.ChangeEvent, 1)
	ch := newChannel(sub, events)

	require.NoError(t, ch.Start(context.Background()))
	live := sub.last()
	require.NoError(t, ch.Shutdown(waitCtx(t)))

	select {
	case <-live.closed:
	default:
		t.Fatal("subscription left open")
	}
	assert.ErrorIs(t, ch.ResetAndReconnect(context.Background()), ErrChannelClosed)

	// Events arriving after shutdown are dropped.
	sub.emit(domain.ChangeEvent{Table: "tasks"})
	assert.Empty(t, events)
}
