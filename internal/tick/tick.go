// Package tick provides the system time base: a millisecond counter advanced
// by a fixed-rate source that also drives the scheduler's tick handler.
//
// The source goroutine plays the role of a timer interrupt. Everything it
// calls must be short and must never block.
package tick

import (
	"context"
	"sync/atomic"
	"time"
)

// Period is the interval between ticks (1 kHz).
const Period = time.Millisecond

// Counter is the monotonically increasing millisecond count since boot.
// It is 32 bits wide and wraps to zero after 2^32-1 ms (about 49.7 days).
type Counter struct {
	ms atomic.Uint32
}

// Inc advances the counter by exactly one tick.
func (c *Counter) Inc() {
	c.ms.Add(1)
}

// Millis returns the current tick count.
func (c *Counter) Millis() uint32 {
	return c.ms.Load()
}

// Hook is the interrupt-context entry point invoked on every tick.
type Hook interface {
	Tick()
}

// Source fires the counter and hook at a fixed period.
type Source struct {
	counter *Counter
	hook    Hook
	period  time.Duration
}

// NewSource creates a Source. A zero period selects Period.
func NewSource(counter *Counter, hook Hook, period time.Duration) *Source {
	if period <= 0 {
		period = Period
	}
	return &Source{counter: counter, hook: hook, period: period}
}

// Fire performs one tick: increment the counter, then run the hook.
func (s *Source) Fire() {
	s.counter.Inc()
	s.hook.Tick()
}

// Run fires the source every period until ctx is cancelled.
// Ticks missed by the runtime ticker are dropped, not replayed, so a stalled
// process never produces a burst of catch-up ticks.
func (s *Source) Run(ctx context.Context) {
	t := time.NewTicker(s.period)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Fire()
		}
	}
}
