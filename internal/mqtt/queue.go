package mqtt

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Queue hands events from scheduler tasks to a publishing goroutine.
// Enqueue never blocks: when the queue is full the event is dropped and
// counted, so a slow broker cannot stall the dispatch loop.
type Queue struct {
	pub     Publisher
	ch      chan queued
	dropped atomic.Uint64
	log     zerolog.Logger
	limiter *rate.Limiter
}

type queued struct {
	event  *Event
	system *SystemEvent
}

// NewQueue creates a Queue holding up to size pending events.
func NewQueue(pub Publisher, size int, log zerolog.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		pub:     pub,
		ch:      make(chan queued, size),
		log:     log.With().Str("component", "mqtt-queue").Logger(),
		limiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
	}
}

// Enqueue schedules a transition for publishing.
func (q *Queue) Enqueue(ev Event) bool {
	return q.put(queued{event: &ev})
}

// EnqueueSystem schedules a system event for publishing.
func (q *Queue) EnqueueSystem(ev SystemEvent) bool {
	return q.put(queued{system: &ev})
}

func (q *Queue) put(item queued) bool {
	select {
	case q.ch <- item:
		return true
	default:
		n := q.dropped.Add(1)
		if q.limiter.Allow() {
			q.log.Warn().Uint64("dropped_total", n).Msg("publish queue full, event dropped")
		}
		return false
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Run publishes queued events until ctx is cancelled, then publishes
// whatever is still pending and returns.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return
		case item := <-q.ch:
			q.publish(item)
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case item := <-q.ch:
			q.publish(item)
		default:
			return
		}
	}
}

func (q *Queue) publish(item queued) {
	switch {
	case item.event != nil:
		if err := q.pub.Publish(*item.event); err != nil {
			q.log.Error().Err(err).Str("to", item.event.To.String()).Msg("publish error")
		}
	case item.system != nil:
		if err := q.pub.PublishSystem(*item.system); err != nil {
			q.log.Error().Err(err).Str("event", item.system.Event).Msg("system publish error")
		}
	}
}
