package localnotify

import "sync"

// Subscriber receives unsolicited notifications, e.g. one that fired while
// the application was running.
type Subscriber func(record Record)

// pendingBuffer holds unsolicited notifications until a subscriber exists.
//
// The queue is only touched from the loop. The subscriber and the flush flag
// change at Subscribe time, on whatever goroutine calls it, hence mu.
type pendingBuffer struct {
	mu  sync.Mutex
	sub Subscriber
	// flushScheduled is set between Subscribe and its deferred flush so that
	// records arriving in that window queue up behind the older ones.
	flushScheduled bool

	queue []Record
}

func (b *pendingBuffer) subscriber() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sub
}

// set replaces the subscriber and reports whether a flush must be scheduled.
// A nil subscriber detaches delivery and leaves the queue alone.
func (b *pendingBuffer) set(fn Subscriber) (scheduleFlush bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sub = fn
	if fn == nil {
		return false
	}
	b.flushScheduled = true
	return true
}

// current returns the subscriber and whether a flush is still due.
func (b *pendingBuffer) current() (Subscriber, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sub, b.flushScheduled
}

// offer delivers rec to the subscriber, or queues it. It reports whether rec
// was delivered.
func (b *pendingBuffer) offer(rec Record) bool {
	sub, scheduled := b.current()
	if sub == nil || scheduled {
		b.queue = append(b.queue, rec)
		return false
	}
	sub(rec)
	return true
}

// flush hands every queued record, in arrival order, to the subscriber that
// is current when the flush runs. Without one, the queue is kept.
func (b *pendingBuffer) flush() int {
	b.mu.Lock()
	b.flushScheduled = false
	sub := b.sub
	b.mu.Unlock()
	if sub == nil {
		return 0
	}
	// Pop one at a time: a panicking subscriber costs only the record it was handed.
	n := 0
	for len(b.queue) > 0 {
		rec := b.queue[0]
		b.queue = b.queue[1:]
		n++
		sub(rec)
	}
	b.queue = nil
	return n
}

func (b *pendingBuffer) len() int { return len(b.queue) }
