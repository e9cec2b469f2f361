package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the notification engine and the reference host.
const (
	TypeSent      = "localnotify.sent"      // outbound bridge command written
	TypeDelivered = "localnotify.delivered" // unsolicited notification handed to the subscriber
	TypeQueued    = "localnotify.queued"    // unsolicited notification buffered (no subscriber)
	TypeResolved  = "localnotify.resolved"  // list/get waiters resolved by a reply
	TypeFired     = "host.fired"            // host emitted a LocalNotify
)

// Event is a lightweight, in-memory diagnostic signal.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Trace is the Data payload of every event type above.
type Trace struct {
	Name    string `json:"name,omitempty"`    // command/event name
	Target  string `json:"target,omitempty"`  // notification name, if any
	Waiters int    `json:"waiters,omitempty"` // callbacks resolved
	OK      bool   `json:"ok"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
// It does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			// Holding the write lock guarantees no Publish is mid-send.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

// Publish is a nil-safe helper for optional buses.
func Publish(b Bus, typ string, t Trace) {
	if b == nil {
		return
	}
	b.Publish(Event{Type: typ, Data: t})
}
