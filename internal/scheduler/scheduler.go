package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Loop runs a tick function on a fixed interval. Ticks are single-flight: a
// tick that would start while a previous one (including a manually
// triggered one) is still running is skipped, never queued, so slow batches
// can never overlap and double-process rows.
type Loop struct {
	name        string
	interval    time.Duration
	tickOnStart bool
	tickFn      func(context.Context)

	running  atomic.Bool
	inFlight atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(name string, interval time.Duration, tickOnStart bool, tickFn func(context.Context)) (*Loop, error) {
	if name == "" {
		return nil, errors.New("name must not be empty")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Loop{
		name:        name,
		interval:    interval,
		tickOnStart: tickOnStart,
		tickFn:      tickFn,
		done:        make(chan struct{}),
	}, nil
}

func (l *Loop) Name() string { return l.name }

// Start launches the loop goroutine. Returns false if already running, so a
// second loop instance cannot be registered within the same process.
func (l *Loop) Start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running.Store(true)

	go func() {
		defer close(l.done)

		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		slog.Info("loop started", "loop", l.name, "interval", l.interval.String())

		if l.tickOnStart {
			l.safeTick(ctx)
		}

		for {
			select {
			case <-ctx.Done():
				slog.Info("loop stopping", "loop", l.name)
				return
			case <-ticker.C:
				l.safeTick(ctx)
			}
		}
	}()

	return true
}

// Stop cancels the tick context and waits for the loop goroutine to exit.
// Returns false if not running.
func (l *Loop) Stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running.Load() {
		return false
	}

	l.cancel()
	<-l.done
	l.running.Store(false)

	slog.Info("loop stopped", "loop", l.name)
	return true
}

func (l *Loop) IsRunning() bool {
	return l.running.Load()
}

// TickInFlight reports whether a tick is currently executing.
func (l *Loop) TickInFlight() bool {
	return l.inFlight.Load()
}

// TriggerNow runs one tick immediately on the caller's goroutine. Returns
// false without doing anything when a tick is already in flight.
func (l *Loop) TriggerNow(ctx context.Context) bool {
	return l.safeTick(ctx)
}

func (l *Loop) safeTick(ctx context.Context) bool {
	if !l.inFlight.CompareAndSwap(false, true) {
		slog.Warn("tick skipped, previous tick still running", "loop", l.name)
		return false
	}
	defer l.inFlight.Store(false)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("tick panic recovered", "loop", l.name, "panic", r)
		}
	}()

	start := time.Now()
	l.tickFn(ctx)
	slog.Info("tick completed", "loop", l.name, "duration_ms", time.Since(start).Milliseconds())
	return true
}
