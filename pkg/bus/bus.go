// Package bus fans task events out to in-process subscribers, which back
// the per-task SSE sessions.
package bus

import (
	"sync"

	"github.com/dustland/agentx/pkg/core"
)

// Bus delivers events published for a task to every subscriber of that
// task. Publish never blocks: a subscriber that cannot keep up drops
// events rather than stalling the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan core.Event
	nextID int
	buffer int
}

// New creates a bus with the given per-subscriber channel buffer.
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]map[int]chan core.Event),
		buffer: buffer,
	}
}

// Subscribe registers for a task's events. The returned cancel function is
// idempotent; after it returns no further events are delivered on the
// channel and the channel is closed.
func (b *Bus) Subscribe(taskID string) (<-chan core.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[taskID] == nil {
		b.subs[taskID] = make(map[int]chan core.Event)
	}
	id := b.nextID
	b.nextID++
	ch := make(chan core.Event, b.buffer)
	b.subs[taskID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if chans, ok := b.subs[taskID]; ok {
				delete(chans, id)
				if len(chans) == 0 {
					delete(b.subs, taskID)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers of the task.
func (b *Bus) Publish(taskID string, evt core.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[taskID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribers reports how many subscriptions a task currently has.
func (b *Bus) Subscribers(taskID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[taskID])
}
