// Package loop provides the single logical thread the notification engine runs on.
//
// Tasks are posted from any goroutine and executed one at a time, in post order,
// either by Run (production) or by Drain (tests). A task that posts another task
// never runs it inline: the new task waits for a later turn.
package loop

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	logx "localnotify/pkg/logx"
)

// Loop is an unbounded FIFO task queue drained by a single runner.
//
// Post never blocks, so it is safe to call from bridge callbacks and from
// inside other tasks.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	log logx.Logger
}

func New(log logx.Logger) *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		log:  log,
	}
}

// Post enqueues fn for a later turn.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Len reports the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Run executes tasks until ctx is canceled.
// Only one goroutine may call Run (or Drain) at a time.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.run(fn)
			if ctx.Err() != nil {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

// Drain runs queued tasks, including the ones they post, until the queue is
// empty. It returns the number of tasks executed.
func (l *Loop) Drain() int {
	n := 0
	for {
		fn, ok := l.next()
		if !ok {
			return n
		}
		l.run(fn)
		n++
	}
}

// Step runs exactly one queued task, if any.
func (l *Loop) Step() bool {
	fn, ok := l.next()
	if !ok {
		return false
	}
	l.run(fn)
	return true
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	if len(l.queue) == 0 {
		// Release the backing array once idle.
		l.queue = nil
	}
	return fn, true
}

// run executes one task. A panicking callback must not take the loop down.
func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("loop task panicked", logx.String("panic", fmt.Sprint(r)), logx.Stack(string(debug.Stack())))
		}
	}()
	fn()
}
