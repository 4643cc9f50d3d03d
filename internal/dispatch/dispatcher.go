// Package dispatch implements the notification dispatcher: an
// at-most-once pub/sub hub feeding the gateway's push channel.
//
// Delivery is best-effort. The dispatcher never retries and never
// persists undelivered events; a subscriber that falls behind has
// events dropped and must re-query current state after reconnecting.
// Each event carries a monotonic sequence number so clients can detect
// gaps.
package dispatch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/aide/internal/observability"
)

// Event types published by the core.
const (
	EventBehaviorFired     = "behavior_fired"
	EventMessageProcessed  = "message_processed"
	EventPreferenceUpdated = "preference_updated"
	EventAutonomyChanged   = "autonomy_changed"
)

// Event is one push notification.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"seq"`
	Payload   any       `json:"payload"`
}

const defaultBuffer = 64

// Dispatcher fans events out to subscribers. Safe for concurrent use.
type Dispatcher struct {
	mu      sync.Mutex
	subs    map[int64]chan Event
	nextSub int64
	seq     atomic.Int64
	now     func() time.Time
	metrics *observability.Metrics
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithMetrics wires drop and subscriber metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// New creates a dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		subs: make(map[int64]chan Event),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Subscribe registers a subscriber and returns its event channel plus
// a cancel function. The channel is closed on cancel. buffer <= 0 uses
// the default.
func (d *Dispatcher) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)

	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.Subscribers.Inc()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
			close(ch)
			if d.metrics != nil {
				d.metrics.Subscribers.Dec()
			}
		})
	}
	return ch, cancel
}

// Publish stamps and delivers an event to every subscriber, dropping
// rather than blocking when a subscriber's buffer is full.
func (d *Dispatcher) Publish(eventType string, payload any) Event {
	evt := Event{
		Type:      eventType,
		Timestamp: d.now(),
		Seq:       d.seq.Add(1),
		Payload:   payload,
	}

	d.mu.Lock()
	for _, ch := range d.subs {
		select {
		case ch <- evt:
		default:
			if d.metrics != nil {
				d.metrics.DispatcherDropped.Inc()
			}
		}
	}
	d.mu.Unlock()
	return evt
}

// SubscriberCount returns the current number of subscribers.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}
