package bridge

import (
	"context"
	"sync"

	logx "localnotify/pkg/logx"
)

type message struct {
	name    string
	payload []byte
}

// Endpoint is one side of an in-process Pipe.
//
// Messages sent by the peer queue up in an unbounded inbox and are delivered by
// Run, so Send never blocks and never runs the peer's handler inline.
type Endpoint struct {
	side string
	log  logx.Logger
	peer *Endpoint

	hmu      sync.RWMutex
	handlers map[string]Handler

	mu     sync.Mutex
	inbox  []message
	wake   chan struct{}
	closed bool
}

// NewPipe returns two connected endpoints. Callers run both with Run.
func NewPipe(log logx.Logger) (app *Endpoint, host *Endpoint) {
	app = newEndpoint("app", log)
	host = newEndpoint("host", log)
	app.peer = host
	host.peer = app
	return app, host
}

func newEndpoint(side string, log logx.Logger) *Endpoint {
	return &Endpoint{
		side:     side,
		log:      log.With(logx.String("side", side)),
		handlers: map[string]Handler{},
		wake:     make(chan struct{}, 1),
	}
}

func (e *Endpoint) Send(_, name string, payload []byte) error {
	return e.peer.enqueue(message{name: name, payload: append([]byte(nil), payload...)})
}

func (e *Endpoint) Handle(name string, h Handler) {
	e.hmu.Lock()
	defer e.hmu.Unlock()
	if h == nil {
		delete(e.handlers, name)
		return
	}
	e.handlers[name] = h
}

// Close stops accepting messages. Queued messages are discarded.
func (e *Endpoint) Close() {
	e.mu.Lock()
	e.closed = true
	e.inbox = nil
	e.mu.Unlock()
}

func (e *Endpoint) enqueue(m message) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.inbox = append(e.inbox, m)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run delivers inbound messages in arrival order until ctx is canceled.
func (e *Endpoint) Run(ctx context.Context) error {
	for {
		for {
			m, ok := e.pop()
			if !ok {
				break
			}
			e.dispatch(m)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-e.wake:
		}
	}
}

func (e *Endpoint) pop() (message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.inbox) == 0 {
		return message{}, false
	}
	m := e.inbox[0]
	e.inbox = e.inbox[1:]
	return m, true
}

func (e *Endpoint) dispatch(m message) {
	e.hmu.RLock()
	h := e.handlers[m.name]
	e.hmu.RUnlock()
	if h == nil {
		e.log.Debug("no handler for event", logx.String("event", m.name))
		return
	}
	h(m.payload)
}
