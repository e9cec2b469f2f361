package localnotify

import (
	"encoding/json"
	"sync"
	"time"

	"localnotify/internal/bridge"
	"localnotify/internal/eventbus"
	"localnotify/internal/runtime/loop"
	logx "localnotify/pkg/logx"
)

type Option func(*Client)

func WithLogger(log logx.Logger) Option { return func(c *Client) { c.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(c *Client) { c.bus = bus } }

// WithDiscreteRepeat makes Add send repeat intervals as buckets instead of
// second counts, for hosts that only repeat every minute/hour/day/week/month.
func WithDiscreteRepeat(enabled bool) Option { return func(c *Client) { c.discrete = enabled } }

// WithClock overrides the time source used by Add.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// Client is the application-side end of the notification bridge.
type Client struct {
	bridge   bridge.Bridge
	loop     *loop.Loop
	log      logx.Logger
	bus      eventbus.Bus
	discrete bool
	now      func() time.Time

	startOnce sync.Once

	// Loop-owned.
	lists   listRegistry
	gets    getRegistry
	pending pendingBuffer
}

// New builds a client on top of b. State changes run on l; someone must drive
// it with Run (or Drain in tests). A nil bridge behaves like bridge.Nop.
func New(b bridge.Bridge, l *loop.Loop, opts ...Option) *Client {
	if b == nil {
		b = bridge.Nop{}
	}
	c := &Client{
		bridge: b,
		loop:   l,
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With(logx.String("comp", "localnotify"))
	return c
}

// Start registers the inbound handlers and tells the host it may start
// delivering events. Calling it again has no effect.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		c.bridge.Handle(bridge.EventList, c.onList)
		c.bridge.Handle(bridge.EventGet, c.onGet)
		c.bridge.Handle(bridge.EventNotify, c.onNotify)
		c.loop.Post(func() { c.send(bridge.CmdReady, emptyPayload) })
	})
}

// RequestNotificationPermission asks the host to prompt the user.
func (c *Client) RequestNotificationPermission() {
	c.loop.Post(func() { c.send(bridge.CmdRequestPermission, emptyPayload) })
}

// List asks for every scheduled notification. Calls made while a List is
// already outstanding share its reply instead of sending another command.
func (c *Client) List(cb ListFunc) {
	c.loop.Post(func() {
		if c.lists.add(cb) {
			c.send(bridge.CmdList, emptyPayload)
		}
	})
}

// Get looks up one notification by name. Every call sends a command; all
// callbacks waiting on name are answered by the next reply for it.
func (c *Client) Get(name string, cb GetFunc) {
	payload := mustJSON(NamePayload{Name: name})
	c.loop.Post(func() {
		c.send(bridge.CmdGet, payload)
		c.gets.add(name, cb)
	})
}

// Add schedules a notification. The only error is a user payload that cannot
// be serialized; nothing is sent in that case. Non-finite durations count as 0.
func (c *Client) Add(opts AddOptions) error {
	w, err := buildAdd(opts, c.now(), c.discrete)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(w)
	if err != nil {
		return err
	}
	c.loop.Post(func() { c.send(bridge.CmdAdd, payload) })
	return nil
}

// Remove cancels one notification.
func (c *Client) Remove(name string) {
	payload := mustJSON(NamePayload{Name: name})
	c.loop.Post(func() { c.send(bridge.CmdRemove, payload) })
}

// Clear cancels every notification.
func (c *Client) Clear() {
	c.loop.Post(func() { c.send(bridge.CmdClear, emptyPayload) })
}

// Subscribe installs fn as the receiver of unsolicited notifications,
// replacing any previous one. The replacement is visible to Subscriber at
// once; notifications buffered so far are delivered to it on a later loop
// turn, never from inside Subscribe. A nil fn is the same as Unsubscribe.
func (c *Client) Subscribe(fn Subscriber) {
	if c.pending.set(fn) {
		c.loop.Post(c.flushPending)
	}
}

// Unsubscribe detaches the subscriber. Buffered notifications are kept.
func (c *Client) Unsubscribe() { c.Subscribe(nil) }

// Subscriber returns the current subscriber, or nil.
func (c *Client) Subscriber() Subscriber { return c.pending.subscriber() }

func (c *Client) flushPending() {
	if n := c.pending.flush(); n > 0 {
		c.log.Debug("delivered pending notifications", logx.Int("count", n))
	}
}

// send writes one command. Failures are logged, not retried.
func (c *Client) send(cmd string, payload []byte) {
	err := c.bridge.Send(bridge.PluginName, cmd, payload)
	if err != nil {
		c.log.Warn("bridge send failed", logx.String("cmd", cmd), logx.Err(err))
	}
	eventbus.Publish(c.bus, eventbus.TypeSent, eventbus.Trace{Name: cmd, OK: err == nil})
}

// Inbound handlers run on the transport goroutine: decode there, then hop
// onto the loop for anything that touches state.

func (c *Client) onList(payload []byte) {
	var ev ListEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.log.Warn("malformed list reply; resolving with no records", logx.Err(err))
	}
	records := make([]Record, 0, len(ev.List))
	for _, raw := range ev.List {
		rec, err := DecodeRecord(raw)
		if err != nil {
			c.log.Warn("skipping malformed list entry", logx.Err(err))
			continue
		}
		records = append(records, rec)
	}
	c.loop.Post(func() {
		n := c.lists.resolve(records)
		eventbus.Publish(c.bus, eventbus.TypeResolved, eventbus.Trace{Name: bridge.EventList, Waiters: n, OK: true})
	})
}

func (c *Client) onGet(payload []byte) {
	var ev GetEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.log.Warn("malformed get reply dropped", logx.Err(err))
		return
	}
	rec := FromWire(ev.Info)
	rec.Unpack()
	ok := !ev.Error
	c.loop.Post(func() {
		n := c.gets.resolve(rec.Name, &rec, ok)
		eventbus.Publish(c.bus, eventbus.TypeResolved, eventbus.Trace{Name: bridge.EventGet, Target: rec.Name, Waiters: n, OK: ok})
	})
}

func (c *Client) onNotify(payload []byte) {
	var ev NotifyEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.log.Warn("malformed notification dropped", logx.Err(err))
		return
	}
	rec := FromWire(ev.Info)
	rec.Unpack()
	c.loop.Post(func() {
		if c.pending.offer(rec) {
			c.log.Debug("delivering notification", logx.String("name", rec.Name))
			eventbus.Publish(c.bus, eventbus.TypeDelivered, eventbus.Trace{Name: bridge.EventNotify, Target: rec.Name, OK: true})
			return
		}
		c.log.Debug("pending notification", logx.String("name", rec.Name), logx.Int("queued", c.pending.len()))
		eventbus.Publish(c.bus, eventbus.TypeQueued, eventbus.Trace{Name: bridge.EventNotify, Target: rec.Name, OK: true})
	})
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
