// Package events is a small in-memory fanout bus used to publish scheduler
// lifecycle events to operator/monitoring subscribers.
//
// Publish never blocks: subscribers use buffered channels and slow consumers
// drop events rather than stalling the scheduler.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler lifecycle event types.
const (
	TypeInitialized     = "initialized"
	TypeStarted         = "started"
	TypeStopped         = "stopped"
	TypeScheduleAdded   = "scheduleAdded"
	TypeScheduleRemoved = "scheduleRemoved"
	TypeScheduleUpdated = "scheduleUpdated"
	TypeScheduleToggled = "scheduleToggled"
	TypeBackupStarted   = "scheduledBackupStarted"
	TypeBackupCompleted = "scheduledBackupCompleted"
	TypeBackupFailed    = "scheduledBackupFailed"
	TypeBackupTimeout   = "backupTimeout"
	TypeScheduleError   = "scheduleError"
	TypeShutdown        = "shutdown"
)

// Event is an immutable record of something the scheduler did. Data should
// be small and JSON-serializable.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

// NewBus returns an empty bus. It owns no background goroutines.
func NewBus() *Bus {
	return &Bus{subs: map[uint64]chan Event{}}
}

// Publish delivers e to every subscriber without blocking. Events to full
// subscriber buffers are dropped.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A subscriber may unsubscribe (and close) concurrently.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

// Subscribe registers a buffered listener. The returned function removes the
// subscription and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
