// Package scheduler is a cooperative, fixed-capacity periodic task scheduler.
//
// It has two entry points with separate owners. The TickHandler runs in tick
// context (the tick source goroutine) and only does countdown bookkeeping.
// Scheduler.Dispatch runs in task context (the main loop) and only clears due
// flags and invokes callbacks. Callbacks never run in tick context.
//
// Countdowns are written by the tick handler alone. Due flags are set by the
// tick handler and cleared by Dispatch with an atomic swap, so a tick landing
// between the check and the reset is never lost, and several ticks landing
// between two dispatch passes coalesce into a single run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// MaxTasks is the registry capacity.
const MaxTasks = 8

var (
	// ErrRegistryFull is returned by AddTask when MaxTasks tasks are registered.
	ErrRegistryFull = errors.New("scheduler: task registry full")

	// ErrInvalidTask is returned for a nil callback or zero period.
	ErrInvalidTask = errors.New("scheduler: invalid task")

	// ErrStarted is returned when the registry is modified after the tick
	// handler has been handed out.
	ErrStarted = errors.New("scheduler: already started")
)

// task is one registry entry.
type task struct {
	name   string
	fn     func()
	delay  uint32
	period uint32

	// tick context only
	countdown uint32

	due       atomic.Bool
	runs      atomic.Uint64
	coalesced atomic.Uint64
	lastRun   atomic.Int64 // nanoseconds
}

// TaskStats is a point-in-time view of one task.
type TaskStats struct {
	Name         string
	Delay        uint32
	Period       uint32
	Runs         uint64
	Coalesced    uint64
	LastDuration time.Duration
}

// Scheduler holds the task registry and runs due tasks.
type Scheduler struct {
	tasks   [MaxTasks]task
	n       int
	started bool
	isr     TickHandler
	wake    chan struct{}
}

// New returns an initialised, empty scheduler.
func New() *Scheduler {
	s := &Scheduler{wake: make(chan struct{}, 1)}
	s.isr.s = s
	return s
}

// Init clears the registry. It may be called any number of times before
// ISR, and fails with ErrStarted afterwards.
func (s *Scheduler) Init() error {
	if s.started {
		return ErrStarted
	}
	for i := range s.tasks {
		s.tasks[i].reset()
	}
	s.n = 0
	return nil
}

// AddTask registers fn to run every period ticks, first after initialDelay
// ticks (or after period ticks when initialDelay is zero).
// Registration is startup-only: it fails once ISR has been called.
func (s *Scheduler) AddTask(fn func(), name string, initialDelay, period uint32) error {
	if s.started {
		return ErrStarted
	}
	if fn == nil || period == 0 {
		return fmt.Errorf("%w: %q (period=%d)", ErrInvalidTask, name, period)
	}
	if s.n == MaxTasks {
		return fmt.Errorf("%w: cannot add %q (capacity %d)", ErrRegistryFull, name, MaxTasks)
	}

	t := &s.tasks[s.n]
	t.name = name
	t.fn = fn
	t.delay = initialDelay
	t.period = period
	t.countdown = initialDelay
	if t.countdown == 0 {
		t.countdown = period
	}
	s.n++
	return nil
}

// Len returns the number of registered tasks.
func (s *Scheduler) Len() int {
	return s.n
}

// ISR freezes the registry and returns the tick-context handler.
// Hand it to the tick source before starting it.
func (s *Scheduler) ISR() *TickHandler {
	s.started = true
	return &s.isr
}

// Wake is signalled by the tick handler whenever a task becomes due.
func (s *Scheduler) Wake() <-chan struct{} {
	return s.wake
}

// Dispatch runs every due task once, in registration order, and returns the
// number of callbacks invoked.
func (s *Scheduler) Dispatch() int {
	ran := 0
	for i := 0; i < s.n; i++ {
		t := &s.tasks[i]
		if !t.due.Swap(false) {
			continue
		}
		start := time.Now()
		t.fn()
		t.lastRun.Store(int64(time.Since(start)))
		t.runs.Add(1)
		ran++
	}
	return ran
}

// Run is the main loop: idle until a task is due, dispatch, repeat.
// It returns when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			s.Dispatch()
		}
	}
}

// Stats returns a snapshot of every registered task.
func (s *Scheduler) Stats() []TaskStats {
	out := make([]TaskStats, s.n)
	for i := 0; i < s.n; i++ {
		t := &s.tasks[i]
		out[i] = TaskStats{
			Name:         t.name,
			Delay:        t.delay,
			Period:       t.period,
			Runs:         t.runs.Load(),
			Coalesced:    t.coalesced.Load(),
			LastDuration: time.Duration(t.lastRun.Load()),
		}
	}
	return out
}

func (t *task) reset() {
	t.name = ""
	t.fn = nil
	t.delay = 0
	t.period = 0
	t.countdown = 0
	t.due.Store(false)
	t.runs.Store(0)
	t.coalesced.Store(0)
	t.lastRun.Store(0)
}

// TickHandler is the tick-context side of the scheduler.
type TickHandler struct {
	s *Scheduler
}

// Tick decrements every countdown and marks expired tasks due.
// It is O(registered tasks) and never blocks.
func (h *TickHandler) Tick() {
	s := h.s
	woke := false
	for i := 0; i < s.n; i++ {
		t := &s.tasks[i]
		t.countdown--
		if t.countdown != 0 {
			continue
		}
		t.countdown = t.period
		if t.due.Swap(true) {
			t.coalesced.Add(1)
		}
		woke = true
	}
	if !woke {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
