package events

import (
	"context"
	"sync"
)

// MemoryBus fans events out to in-process subscribers. A subscriber that
// falls behind misses events rather than blocking the publisher.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	buffer int
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus creates a bus whose subscriber channels hold buffer events.
func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = 32
	}
	return &MemoryBus{subs: make(map[int]chan Event), buffer: buffer}
}

func (m *MemoryBus) Publish(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (m *MemoryBus) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	ch := make(chan Event, m.buffer)
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			close(ch)
			m.mu.Unlock()
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel, nil
}

// Subscribers returns the number of live subscriptions.
func (m *MemoryBus) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Recorder is a Publisher that keeps every event, for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ctx context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
