package behaviors

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// IdleOption configures an idle manager.
type IdleOption func(*IdleManager)

// WithIdleThreshold sets how long the scene must stay quiet before idle
// drifting starts.
func WithIdleThreshold(d time.Duration) IdleOption {
	return func(m *IdleManager) { m.threshold = d }
}

// WithIdleInterval sets the pause between consecutive idle drifts.
func WithIdleInterval(d time.Duration) IdleOption {
	return func(m *IdleManager) { m.interval = d }
}

// IdleManager fills quiet periods with subtle head drift. Any reported
// activity resets the countdown; drifts run at the lowest priority, so a
// greeting or curiosity gesture always displaces them.
type IdleManager struct {
	executor  *Executor
	threshold time.Duration
	interval  time.Duration

	lastActivity atomic.Int64

	closeCh   chan struct{}
	done      chan struct{}
	started   atomic.Bool
	startOnce sync.Once
	endOnce   sync.Once
}

// NewIdleManager creates an idle manager driving the given executor.
func NewIdleManager(executor *Executor, opts ...IdleOption) *IdleManager {
	m := &IdleManager{
		executor:  executor,
		threshold: 5 * time.Second,
		interval:  3 * time.Second,
		closeCh:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastActivity.Store(time.Now().UnixNano())
	return m
}

// NotifyActivity resets the idle countdown. Call it whenever recognition
// or response activity happens.
func (m *IdleManager) NotifyActivity() {
	if m == nil {
		return
	}
	m.lastActivity.Store(time.Now().UnixNano())
}

// Start launches the idle loop. Starting twice is a no-op.
func (m *IdleManager) Start(ctx context.Context) {
	if m == nil {
		return
	}
	m.startOnce.Do(func() {
		m.started.Store(true)
		go m.loop(ctx)
	})
}

// Close stops the idle loop and waits for it to exit.
func (m *IdleManager) Close() {
	if m == nil {
		return
	}
	m.endOnce.Do(func() { close(m.closeCh) })
	if m.started.Load() {
		<-m.done
	}
}

func (m *IdleManager) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastDrift time.Time
	for {
		select {
		case <-m.closeCh:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			last := time.Unix(0, m.lastActivity.Load())
			if now.Sub(last) < m.threshold {
				continue
			}
			if m.executor.Busy() || now.Sub(lastDrift) < m.interval {
				continue
			}
			if _, outcome := m.executor.Execute(ctx, IdleDrift()); outcome != OutcomeRejected {
				lastDrift = now
			}
		}
	}
}
