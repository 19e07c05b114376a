package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// runTicks fires the tick handler n times, dispatching after each tick, and
// returns the 1-based tick numbers at which the task ran.
func runTicks(s *Scheduler, h *TickHandler, fired *[]int, n int) {
	for i := 1; i <= n; i++ {
		h.Tick()
		before := len(*fired)
		s.Dispatch()
		for j := before; j < len(*fired); j++ {
			(*fired)[j] = i
		}
	}
}

func TestNewIsEmpty(t *testing.T) {
	s := New()
	if s.Len() != 0 {
		t.Errorf("expected empty registry, got %d", s.Len())
	}
	if got := s.Dispatch(); got != 0 {
		t.Errorf("expected no tasks run, got %d", got)
	}
}

func TestFirstRunAfterInitialDelayThenEveryPeriod(t *testing.T) {
	tests := []struct {
		delay, period uint32
		want          []int
	}{
		{delay: 5, period: 3, want: []int{5, 8, 11, 14}},
		{delay: 100, period: 100, want: []int{100, 200, 300}},
		{delay: 0, period: 4, want: []int{4, 8, 12}},
		{delay: 1, period: 10, want: []int{1, 11}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("delay=%d,period=%d", tt.delay, tt.period), func(t *testing.T) {
			s := New()
			var fired []int
			if err := s.AddTask(func() { fired = append(fired, 0) }, "T", tt.delay, tt.period); err != nil {
				t.Fatalf("AddTask: %v", err)
			}
			h := s.ISR()

			last := tt.want[len(tt.want)-1]
			runTicks(s, h, &fired, last)

			if len(fired) != len(tt.want) {
				t.Fatalf("expected runs at %v, got %v", tt.want, fired)
			}
			for i := range tt.want {
				if fired[i] != tt.want[i] {
					t.Errorf("run %d: expected tick %d, got %d", i, tt.want[i], fired[i])
				}
			}
		})
	}
}

func TestTickNeverRunsCallbacks(t *testing.T) {
	s := New()
	runs := 0
	s.AddTask(func() { runs++ }, "T", 0, 1)
	h := s.ISR()

	for i := 0; i < 50; i++ {
		h.Tick()
	}
	if runs != 0 {
		t.Errorf("tick handler invoked callback %d times", runs)
	}
}

func TestCoalescesMissedPeriods(t *testing.T) {
	s := New()
	runs := 0
	s.AddTask(func() { runs++ }, "T", 0, 2)
	h := s.ISR()

	// Five periods elapse with no dispatch.
	for i := 0; i < 10; i++ {
		h.Tick()
	}

	if got := s.Dispatch(); got != 1 {
		t.Errorf("expected 1 task run, got %d", got)
	}
	if got := s.Dispatch(); got != 0 {
		t.Errorf("expected nothing due on second pass, got %d", got)
	}
	if runs != 1 {
		t.Errorf("expected callback once, got %d", runs)
	}

	st := s.Stats()[0]
	if st.Coalesced != 4 {
		t.Errorf("expected 4 coalesced periods, got %d", st.Coalesced)
	}
	if st.Runs != 1 {
		t.Errorf("expected Runs=1, got %d", st.Runs)
	}
}

func TestPhaseKeptAcrossSlowDispatch(t *testing.T) {
	s := New()
	var fired []int
	s.AddTask(func() { fired = append(fired, 0) }, "T", 3, 3)
	h := s.ISR()

	tick := 0
	advance := func(n int) {
		for i := 0; i < n; i++ {
			h.Tick()
			tick++
		}
	}

	advance(7) // due at 3 and 6, coalesced
	s.Dispatch()
	advance(2) // due at 9
	s.Dispatch()

	if len(fired) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(fired))
	}
	if tick != 9 {
		t.Fatalf("unexpected tick %d", tick)
	}
}

func TestDispatchInRegistrationOrder(t *testing.T) {
	s := New()
	var order []string
	for _, name := range []string{"A", "B", "C", "D"} {
		name := name
		if err := s.AddTask(func() { order = append(order, name) }, name, 0, 1); err != nil {
			t.Fatalf("AddTask %s: %v", name, err)
		}
	}
	h := s.ISR()

	for pass := 0; pass < 3; pass++ {
		order = order[:0]
		h.Tick()
		h.Tick() // extra tick: still once per pass
		s.Dispatch()
		if fmt.Sprint(order) != "[A B C D]" {
			t.Errorf("pass %d: expected [A B C D], got %v", pass, order)
		}
	}
}

func TestOnlyDueTasksRun(t *testing.T) {
	s := New()
	var fast, slow int
	s.AddTask(func() { fast++ }, "FAST", 0, 1)
	s.AddTask(func() { slow++ }, "SLOW", 0, 5)
	h := s.ISR()

	for i := 0; i < 10; i++ {
		h.Tick()
		s.Dispatch()
	}
	if fast != 10 {
		t.Errorf("FAST: expected 10 runs, got %d", fast)
	}
	if slow != 2 {
		t.Errorf("SLOW: expected 2 runs, got %d", slow)
	}
}

func TestRegistryFull(t *testing.T) {
	s := New()
	var ran [MaxTasks]int
	for i := 0; i < MaxTasks; i++ {
		i := i
		if err := s.AddTask(func() { ran[i]++ }, fmt.Sprintf("T%d", i), 0, uint32(i+1)); err != nil {
			t.Fatalf("AddTask %d: %v", i, err)
		}
	}

	err := s.AddTask(func() {}, "EXTRA", 0, 1)
	if !errors.Is(err, ErrRegistryFull) {
		t.Fatalf("expected ErrRegistryFull, got %v", err)
	}
	// Deterministic: a second attempt fails the same way.
	if err := s.AddTask(func() {}, "EXTRA", 0, 1); !errors.Is(err, ErrRegistryFull) {
		t.Fatalf("expected ErrRegistryFull on retry, got %v", err)
	}
	if s.Len() != MaxTasks {
		t.Errorf("expected %d tasks, got %d", MaxTasks, s.Len())
	}

	// Existing tasks are intact.
	stats := s.Stats()
	for i, st := range stats {
		if st.Name != fmt.Sprintf("T%d", i) || st.Period != uint32(i+1) {
			t.Errorf("task %d corrupted: %+v", i, st)
		}
	}

	h := s.ISR()
	h.Tick()
	s.Dispatch()
	if ran[0] != 1 {
		t.Errorf("T0 should run after 1 tick, got %d", ran[0])
	}
}

func TestAddTaskValidation(t *testing.T) {
	s := New()
	if err := s.AddTask(nil, "NIL", 0, 10); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("nil callback: expected ErrInvalidTask, got %v", err)
	}
	if err := s.AddTask(func() {}, "ZERO", 10, 0); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("zero period: expected ErrInvalidTask, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("invalid tasks must not be registered, got %d", s.Len())
	}
}

func TestRegistrationClosedAfterISR(t *testing.T) {
	s := New()
	s.AddTask(func() {}, "A", 0, 1)
	s.ISR()

	if err := s.AddTask(func() {}, "B", 0, 1); !errors.Is(err, ErrStarted) {
		t.Errorf("expected ErrStarted from AddTask, got %v", err)
	}
	if err := s.Init(); !errors.Is(err, ErrStarted) {
		t.Errorf("expected ErrStarted from Init, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("registry changed after start: %d tasks", s.Len())
	}
}

func TestInitIsIdempotent(t *testing.T) {
	s := New()
	s.AddTask(func() {}, "A", 0, 1)
	s.AddTask(func() {}, "B", 0, 1)

	for i := 0; i < 2; i++ {
		if err := s.Init(); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if s.Len() != 0 {
			t.Errorf("expected empty registry after Init, got %d", s.Len())
		}
	}

	runs := 0
	s.AddTask(func() { runs++ }, "C", 0, 1)
	h := s.ISR()
	h.Tick()
	s.Dispatch()
	if runs != 1 {
		t.Errorf("expected re-registered task to run once, got %d", runs)
	}
	if name := s.Stats()[0].Name; name != "C" {
		t.Errorf("expected task C, got %q", name)
	}
}

func TestWakeSignalledWhenDue(t *testing.T) {
	s := New()
	s.AddTask(func() {}, "T", 2, 2)
	h := s.ISR()

	h.Tick()
	select {
	case <-s.Wake():
		t.Fatal("wake signalled before anything was due")
	default:
	}

	h.Tick()
	select {
	case <-s.Wake():
	default:
		t.Fatal("expected wake after task became due")
	}
}

func TestWakeNeverBlocksTick(t *testing.T) {
	s := New()
	s.AddTask(func() {}, "T", 0, 1)
	h := s.ISR()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Tick()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Tick blocked with nobody draining Wake")
	}
}

func TestRunDispatchesUntilCancelled(t *testing.T) {
	s := New()
	var mu sync.Mutex
	runs := 0
	s.AddTask(func() {
		mu.Lock()
		runs++
		mu.Unlock()
	}, "T", 0, 1)
	h := s.ISR()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		h.Tick()
		time.Sleep(2 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if runs == 0 || runs > 5 {
		t.Errorf("expected between 1 and 5 runs, got %d", runs)
	}
}

func TestConcurrentTickAndDispatchLosesNothing(t *testing.T) {
	s := New()
	var runs int
	s.AddTask(func() { runs++ }, "T", 0, 1)
	h := s.ISR()

	const ticks = 5000
	done := make(chan struct{})
	go func() {
		for i := 0; i < ticks; i++ {
			h.Tick()
		}
		close(done)
	}()

	finished := false
	for !finished {
		select {
		case <-done:
			finished = true
		default:
		}
		s.Dispatch()
	}
	s.Dispatch()

	st := s.Stats()[0]
	if st.Runs+st.Coalesced != ticks {
		t.Errorf("runs(%d)+coalesced(%d) should equal %d due events", st.Runs, st.Coalesced, ticks)
	}
	if uint64(runs) != st.Runs {
		t.Errorf("callback count %d != Runs %d", runs, st.Runs)
	}
}
