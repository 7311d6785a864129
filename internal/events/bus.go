// Package events carries dialog lifecycle notifications between the orchestrator
// and its observers (history log, gateway websocket clients).
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

var ErrBusClosed = errors.New("event bus is closed")

// EventType names what happened.
type EventType string

const (
	EventIntentClassified       EventType = "intent.classified"
	EventClarificationRequested EventType = "clarification.requested"
	EventTaskCreated            EventType = "task.created"
	EventTaskUpdated            EventType = "task.updated"
	EventTaskCompleted          EventType = "task.completed"
	EventTaskFailed             EventType = "task.failed"
	EventTasksSwept             EventType = "tasks.swept"
	EventTurnHandled            EventType = "turn.handled"
)

// EventSource identifies the emitting component.
type EventSource string

const (
	SourceDialog  EventSource = "dialog"
	SourceGateway EventSource = "gateway"
	SourceSweeper EventSource = "sweeper"
	SourceCLI     EventSource = "cli"
)

// Event is a single bus message.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

var eventSeq uint64

func nextEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), atomic.AddUint64(&eventSeq, 1))
}

// Subscriber receives events on its own goroutine.
type Subscriber func(Event)

type subscription struct {
	types   []EventType
	handler Subscriber
}

func (s *subscription) wants(t EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// Bus fans events out to subscribers and keeps a bounded history.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscription
	nextSub int
	queue   chan Event
	history *RingBuffer
	closed  bool
	done    chan struct{}
}

// NewBus starts a bus whose queue and history hold bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	b := &Bus{
		subs:    make(map[int]*subscription),
		queue:   make(chan Event, bufferSize),
		history: NewRingBuffer(bufferSize),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	for {
		select {
		case e := <-b.queue:
			b.history.Add(e)
			b.mu.RLock()
			for _, s := range b.subs {
				if s.wants(e.Type) {
					go s.handler(e)
				}
			}
			b.mu.RUnlock()
		case <-b.done:
			return
		}
	}
}

// Publish enqueues e. Events are dropped when the queue is full or the bus is closed.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- e:
	default:
		slog.Warn("event bus full, dropping event", "type", e.Type)
	}
}

// PublishAsync enqueues e, waiting for queue space until ctx is done.
func (b *Bus) PublishAsync(ctx context.Context, e Event) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrBusClosed
	}

	select {
	case b.queue <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers handler for the given types (all types when none are given)
// and returns the matching unsubscribe function.
func (b *Bus) Subscribe(handler Subscriber, types ...EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	b.subs[id] = &subscription{types: types, handler: handler}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// SubscribeChan delivers matching events on a buffered channel; slow readers miss events.
func (b *Bus) SubscribeChan(size int, types ...EventType) (<-chan Event, func()) {
	ch := make(chan Event, size)
	var once sync.Once
	var mu sync.Mutex
	stopped := false

	unsub := b.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		select {
		case ch <- e:
		default:
		}
	}, types...)

	return ch, func() {
		once.Do(func() {
			unsub()
			mu.Lock()
			stopped = true
			close(ch)
			mu.Unlock()
		})
	}
}

// History returns up to limit of the most recent events, oldest first.
func (b *Bus) History(limit int) []Event {
	return b.history.Get(limit)
}

// Close stops dispatching. It is safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

// RingBuffer keeps the last N events.
type RingBuffer struct {
	mu     sync.RWMutex
	events []Event
	next   int
	count  int
}

func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{events: make([]Event, size)}
}

func (r *RingBuffer) Add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[r.next] = e
	r.next = (r.next + 1) % len(r.events)
	if r.count < len(r.events) {
		r.count++
	}
}

func (r *RingBuffer) Get(n int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	size := len(r.events)
	out := make([]Event, n)
	start := (r.next - n + size) % size
	for i := range n {
		out[i] = r.events[(start+i)%size]
	}
	return out
}
