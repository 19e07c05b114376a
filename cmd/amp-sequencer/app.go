package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/amp-sequencer/internal/config"
	"github.com/sweeney/amp-sequencer/internal/mqtt"
	"github.com/sweeney/amp-sequencer/internal/scheduler"
	"github.com/sweeney/amp-sequencer/internal/sequencer"
	"github.com/sweeney/amp-sequencer/internal/status"
	"github.com/sweeney/amp-sequencer/internal/tick"
)

// Task names as shown on the status page.
const (
	taskSequencer = "SEQ"
	taskHeartbeat = "HB"
	taskWatchdog  = "WDT"
)

type pinger interface {
	Ping()
}

// app wires the sequencer to the scheduler. Its task methods run on the
// dispatch loop goroutine only.
type app struct {
	seq     *sequencer.Sequencer
	sched   *scheduler.Scheduler
	counter *tick.Counter
	tracker *status.Tracker
	queue   *mqtt.Queue           // nil when MQTT is disabled
	conn    mqtt.ConnectionStatus // nil when MQTT is disabled
	pinger  pinger                // nil when the systemd watchdog is off
	log     zerolog.Logger
	now     func() time.Time
}

// register adds the periodic tasks. The sequencer goes first so it is
// dispatched ahead of the others when they fall due on the same tick.
func (a *app) register(cfg config.Config, watchdog time.Duration) error {
	step := cfg.StepTicks()
	if err := a.sched.AddTask(a.stepTask, taskSequencer, step, step); err != nil {
		return fmt.Errorf("register sequencer: %w", err)
	}
	if hb := cfg.HeartbeatTicks(); hb > 0 {
		if err := a.sched.AddTask(a.heartbeatTask, taskHeartbeat, hb, hb); err != nil {
			return fmt.Errorf("register heartbeat: %w", err)
		}
	}
	if watchdog > 0 && a.pinger != nil {
		wd := uint32(watchdog / tick.Period)
		if wd == 0 {
			wd = 1
		}
		if err := a.sched.AddTask(a.watchdogTask, taskWatchdog, wd, wd); err != nil {
			return fmt.Errorf("register watchdog: %w", err)
		}
	}
	return nil
}

func (a *app) stepTask() {
	ev, changed := a.seq.Step()
	ms := a.counter.Millis()

	if changed {
		now := a.now()
		a.log.Info().
			Str("from", ev.From.String()).
			Str("to", ev.To.String()).
			Bool("button", ev.Pressed).
			Uint32("tick_ms", ms).
			Msg("transition")
		a.tracker.RecordTransition(ev, now, ms)
		if a.queue != nil {
			a.queue.Enqueue(mqtt.NewEvent(ev, now, ms))
		}
	}

	a.tracker.Update(a.seq.Snapshot(), ms)
	a.tracker.SetTasks(a.sched.Stats())
}

func (a *app) heartbeatTask() {
	snap := a.refresh()
	a.log.Info().
		Str("state", snap.Sequencer.State.String()).
		Dur("uptime", snap.Uptime().Truncate(time.Second)).
		Uint64("transitions", snap.Transitions).
		Bool("mqtt", snap.MQTTConnected).
		Msg("heartbeat")
	a.publishSystem(mqtt.EventHeartbeat, "", false)
}

func (a *app) watchdogTask() {
	a.pinger.Ping()
}

// refresh pulls link state into the tracker and returns a fresh snapshot.
func (a *app) refresh() status.Snapshot {
	if a.conn != nil {
		a.tracker.SetMQTTConnected(a.conn.IsConnected())
	}
	if a.queue != nil {
		a.tracker.SetQueueDropped(a.queue.Dropped())
	}
	return a.tracker.Snapshot()
}

// publishSystem queues a system event carrying a full status snapshot.
func (a *app) publishSystem(event, reason string, retained bool) {
	if a.queue == nil {
		return
	}
	snap := a.refresh()
	a.queue.EnqueueSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
}

// runLoop dispatches tasks until a signal arrives or ctx is cancelled and
// returns the shutdown reason.
func (a *app) runLoop(ctx context.Context, sig <-chan os.Signal) string {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reason := make(chan string, 1)
	go func() {
		select {
		case s := <-sig:
			a.log.Info().Str("signal", s.String()).Msg("shutting down")
			reason <- signalName(s)
		case <-ctx.Done():
			reason <- "CONTEXT"
		}
		cancel()
	}()

	a.sched.Run(ctx)
	return <-reason
}

// shutdown de-energizes the amplifier and reports it. The dispatch loop
// must have stopped.
func (a *app) shutdown(reason string) {
	a.seq.Reset()
	a.tracker.Update(a.seq.Snapshot(), a.counter.Millis())
	a.publishSystem(mqtt.EventShutdown, reason, true)
	a.log.Info().Str("reason", reason).Msg("outputs off")
}
