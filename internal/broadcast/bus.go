// Package broadcast carries advisory events between parts of one process and,
// through a websocket hub, between processes sharing a cache.
//
// Delivery is at-least-once and best effort. Receiving an event never causes
// remote writes; subscribers may refresh local views.
package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names an advisory event.
type EventType string

const (
	// EventSyncComplete is published after every sync pass that ran.
	EventSyncComplete EventType = "sync_complete"

	// EventContentCached is published when a resource becomes readable offline.
	EventContentCached EventType = "content_cached"
)

// Event is one advisory message.
type Event struct {
	Type      EventType       `json:"type"`
	Origin    string          `json:"origin"`
	RunID     string          `json:"run_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(ev Event)
}

const defaultBuffer = 32

// Bus is an in-process publish/subscribe fan-out. Slow subscribers miss
// events rather than blocking publishers.
type Bus struct {
	origin string

	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

var _ Publisher = (*Bus)(nil)

// NewBus creates a bus with a fresh origin id.
func NewBus() *Bus {
	return &Bus{
		origin: uuid.NewString(),
		subs:   make(map[int]chan Event),
	}
}

// Origin identifies events published by this process.
func (b *Bus) Origin() string {
	return b.origin
}

// Publish stamps the event with this bus's origin when unset and delivers it
// to every subscriber.
func (b *Bus) Publish(ev Event) {
	if ev.Origin == "" {
		ev.Origin = b.origin
	}
	b.deliver(ev)
}

func (b *Bus) deliver(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
			b.mu.Unlock()
		})
	}
}

// Close closes every subscriber channel. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}
