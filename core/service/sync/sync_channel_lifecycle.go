package syncsvc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"
	"github.com/ArchieOS-org/Dispatch-sub000/pkg/resilience"

	"github.com/rs/zerolog"
)

// =============================================================================
// ChannelLifecycleManager - realtime subscription state machine
// =============================================================================
//
//   connected --failure--> reconnecting(1/max) --failure--> ... reconnecting(max/max)
//   reconnecting(max/max) --failure--> degraded (terminal until ResetAndReconnect)
//   any --subscribe ok--> connected
//
// The state is informational. Sync never waits on it.

var (
	ErrChannelClosed      = errors.New("realtime channel closed")
	errSubscriptionClosed = errors.New("subscription closed by remote")
)

type ChannelLifecycleManager struct {
	mu          sync.Mutex
	subscriber  out.Subscriber
	tables      []string
	onEvent     func(domain.ChangeEvent)
	mode        domain.Mode
	maxAttempts int
	delay       func(attempt int) time.Duration

	state     domain.ConnectionState
	attempt   int
	gen       uint64
	sub       out.Subscription
	watch     *taskHandle
	retry     *taskHandle
	listeners []func(from, to domain.ConnectionState)
	closed    bool

	tasks  sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

type ChannelConfig struct {
	Tables      []string
	Mode        domain.Mode
	MaxAttempts int
}

func NewChannelLifecycleManager(sub out.Subscriber, cfg ChannelConfig, onEvent func(domain.ChangeEvent), log zerolog.Logger) *ChannelLifecycleManager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = resilience.MaxRetries
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ChannelLifecycleManager{
		subscriber:  sub,
		tables:      cfg.Tables,
		onEvent:     onEvent,
		mode:        cfg.Mode,
		maxAttempts: cfg.MaxAttempts,
		delay:       resilience.Delay,
		state:       domain.Connected(),
		ctx:         ctx,
		cancel:      cancel,
		log:         log.With().Str("component", "realtime").Logger(),
	}
}

// OnStateChange registers fn to run after every real transition.
func (m *ChannelLifecycleManager) OnStateChange(fn func(from, to domain.ConnectionState)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *ChannelLifecycleManager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start opens the subscription. A failure is returned and also drives the
// reconnect schedule.
func (m *ChannelLifecycleManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrChannelClosed
	}
	gen := m.gen
	m.mu.Unlock()
	return m.subscribe(ctx, gen)
}

// ResetAndReconnect drops any pending retry and the current subscription,
// returns to connected with attempt 0 and subscribes again immediately.
func (m *ChannelLifecycleManager) ResetAndReconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrChannelClosed
	}
	m.gen++
	gen := m.gen
	if m.retry != nil {
		m.retry.Cancel()
		m.retry = nil
	}
	oldSub := m.detachLocked()
	m.attempt = 0
	notify := m.setStateLocked(domain.Connected())
	m.mu.Unlock()

	notify()
	if oldSub != nil {
		_ = oldSub.Close()
	}
	m.log.Info().Msg("realtime reset, reconnecting")
	return m.subscribe(ctx, gen)
}

func (m *ChannelLifecycleManager) subscribe(ctx context.Context, gen uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// The subscription lives as long as the manager, not the caller.
	sub, err := m.subscriber.Subscribe(m.ctx, m.tables, m.deliver)
	if err != nil {
		m.handleFailure(gen, err)
		return err
	}

	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		_ = sub.Close()
		return ErrChannelClosed
	}
	m.sub = sub
	m.attempt = 0
	m.retry = nil
	m.watch = startTask(m.ctx, &m.tasks, func(ctx context.Context) { m.watchErrors(ctx, gen, sub) })
	notify := m.setStateLocked(domain.Connected())
	m.mu.Unlock()

	notify()
	m.log.Info().Strs("tables", m.tables).Msg("realtime subscribed")
	return nil
}

func (m *ChannelLifecycleManager) deliver(ev domain.ChangeEvent) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed || m.onEvent == nil {
		return
	}
	m.onEvent(ev)
}

func (m *ChannelLifecycleManager) watchErrors(ctx context.Context, gen uint64, sub out.Subscription) {
	var err error
	select {
	case <-ctx.Done():
		return
	case e, ok := <-sub.Errors():
		err = e
		if !ok || err == nil {
			err = errSubscriptionClosed
		}
	}

	m.mu.Lock()
	if m.closed || m.gen != gen || m.sub != sub {
		m.mu.Unlock()
		return
	}
	m.sub = nil
	m.watch = nil
	m.mu.Unlock()

	_ = sub.Close()
	m.handleFailure(gen, err)
}

// handleFailure advances the reconnect state machine after a failed
// subscribe or a dropped subscription.
func (m *ChannelLifecycleManager) handleFailure(gen uint64, cause error) {
	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		return
	}

	m.attempt++
	if m.attempt > m.maxAttempts {
		notify := m.setStateLocked(domain.Degraded())
		m.mu.Unlock()
		notify()
		m.log.Warn().Err(cause).Int("attempts", m.maxAttempts).Msg("realtime degraded, giving up")
		return
	}

	attempt := m.attempt
	wait := time.Duration(0)
	if m.mode.IsLive() {
		wait = m.delay(attempt - 1)
	}
	notify := m.setStateLocked(domain.Reconnecting(attempt, m.maxAttempts))
	m.mu.Unlock()
	notify()

	m.log.Warn().
		Err(cause).
		Int("attempt", attempt).
		Int("max_attempts", m.maxAttempts).
		Dur("backoff", wait).
		Msg("realtime subscription failed, retrying")

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.gen != gen {
		return
	}
	m.retry = startTask(m.ctx, &m.tasks, func(ctx context.Context) {
		if wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		m.mu.Lock()
		if m.closed || m.gen != gen || ctx.Err() != nil {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		_ = m.subscribe(ctx, gen)
	})
}

// setStateLocked must be called with mu held. The returned func fires
// listeners and must be called after unlocking.
func (m *ChannelLifecycleManager) setStateLocked(to domain.ConnectionState) func() {
	from := m.state
	if from == to {
		return func() {}
	}
	m.state = to
	listeners := append([]func(from, to domain.ConnectionState){}, m.listeners...)
	return func() {
		for _, fn := range listeners {
			fn(from, to)
		}
	}
}

func (m *ChannelLifecycleManager) detachLocked() out.Subscription {
	sub := m.sub
	m.sub = nil
	if m.watch != nil {
		m.watch.Cancel()
		m.watch = nil
	}
	return sub
}

// Shutdown cancels every task, closes the subscription and waits until no
// goroutine owned by the manager is left running.
func (m *ChannelLifecycleManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.gen++
	if m.retry != nil {
		m.retry.Cancel()
		m.retry = nil
	}
	sub := m.detachLocked()
	m.mu.Unlock()

	m.cancel()
	var closeErr error
	if sub != nil {
		closeErr = sub.Close()
	}
	if err := waitGroup(ctx, &m.tasks); err != nil {
		return err
	}
	m.log.Debug().Msg("realtime stopped")
	return closeErr
}
