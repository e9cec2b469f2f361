package localnotify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localnotify/internal/bridge"
	"localnotify/internal/eventbus"
	"localnotify/internal/runtime/loop"
	logx "localnotify/pkg/logx"
)

type sentCommand struct {
	plugin  string
	name    string
	payload string
}

// fakeBridge records sends and lets tests inject inbound events.
type fakeBridge struct {
	mu       sync.Mutex
	sent     []sentCommand
	handlers map[string]bridge.Handler
	sendErr  error
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{handlers: map[string]bridge.Handler{}}
}

func (f *fakeBridge) Send(plugin, name string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentCommand{plugin: plugin, name: name, payload: string(payload)})
	return f.sendErr
}

func (f *fakeBridge) Handle(name string, h bridge.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = h
}

func (f *fakeBridge) deliver(t *testing.T, name, payload string) {
	t.Helper()
	f.mu.Lock()
	h := f.handlers[name]
	f.mu.Unlock()
	require.NotNil(t, h, "no handler registered for %s", name)
	h([]byte(payload))
}

func (f *fakeBridge) commands(name string) []sentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentCommand
	for _, c := range f.sent {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeBridge, *loop.Loop) {
	t.Helper()
	fb := newFakeBridge()
	l := loop.New(logx.Nop())
	c := New(fb, l, opts...)
	c.Start()
	l.Drain()
	return c, fb, l
}

func TestClientStartSendsReadyOnce(t *testing.T) {
	c, fb, l := newTestClient(t)
	c.Start()
	l.Drain()

	ready := fb.commands(bridge.CmdReady)
	require.Len(t, ready, 1)
	assert.Equal(t, bridge.PluginName, ready[0].plugin)
	assert.Equal(t, `{}`, ready[0].payload)
}

func TestClientListCoalescesOutstandingRequests(t *testing.T) {
	c, fb, l := newTestClient(t)

	var order []int
	for i := 0; i < 4; i++ {
		i := i
		c.List(func(records []Record) {
			require.Len(t, records, 2)
			order = append(order, i)
		})
	}
	l.Drain()
	assert.Len(t, fb.commands(bridge.CmdList), 1)
	assert.Equal(t, 4, c.lists.pending())

	fb.deliver(t, bridge.EventList, `{"list":[{"name":"a"},{"name":"b","userDefined":"{\"value\":\"x\"}"}]}`)
	l.Drain()

	assert.Equal(t, []int{0, 1, 2, 3}, order)
	assert.Equal(t, 0, c.lists.pending())

	// The next call starts a new round trip.
	c.List(func([]Record) {})
	l.Drain()
	assert.Len(t, fb.commands(bridge.CmdList), 2)
}

func TestClientListRecordsAreUnpacked(t *testing.T) {
	c, fb, l := newTestClient(t)

	var got []Record
	c.List(func(records []Record) { got = records })
	l.Drain()
	fb.deliver(t, bridge.EventList, `{"list":[{"name":"a","utc":60,"userDefined":"{\"value\":\"x\"}"},{"broken":"entry"},"not an object"]}`)
	l.Drain()

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, time.Unix(60, 0), got[0].Date)
	assert.Equal(t, map[string]any{"value": "x"}, got[0].UserDefined)
	assert.Equal(t, "", got[1].Name)
}

func TestClientListMalformedReplyStillResolves(t *testing.T) {
	c, fb, l := newTestClient(t)

	called := false
	c.List(func(records []Record) {
		called = true
		assert.Empty(t, records)
	})
	l.Drain()
	fb.deliver(t, bridge.EventList, `{"list":`)
	l.Drain()

	assert.True(t, called)
}

func TestClientListReplyWithoutWaitersIsIgnored(t *testing.T) {
	_, fb, l := newTestClient(t)
	fb.deliver(t, bridge.EventList, `{"list":[]}`)
	assert.Equal(t, 1, l.Drain())
}

func TestClientGetSendsEveryTimeAndResolvesAllWaiters(t *testing.T) {
	c, fb, l := newTestClient(t)

	var got []string
	c.Get("a", func(rec *Record) {
		require.NotNil(t, rec)
		got = append(got, "cb1:"+rec.Name)
	})
	c.Get("a", func(rec *Record) {
		require.NotNil(t, rec)
		got = append(got, "cb2:"+rec.Name)
	})
	c.Get("b", func(rec *Record) { got = append(got, "b") })
	l.Drain()

	gets := fb.commands(bridge.CmdGet)
	require.Len(t, gets, 3)
	assert.JSONEq(t, `{"name":"a"}`, gets[0].payload)
	assert.JSONEq(t, `{"name":"a"}`, gets[1].payload)
	assert.Equal(t, 2, c.gets.pending("a"))

	fb.deliver(t, bridge.EventGet, `{"info":{"name":"a","userDefined":"{\"k\":2}"}}`)
	l.Drain()

	assert.Equal(t, []string{"cb1:a", "cb2:a"}, got)
	assert.Equal(t, 0, c.gets.pending("a"))
	assert.Equal(t, 1, c.gets.pending("b"))

	// A second reply for "a" has nobody left to answer.
	fb.deliver(t, bridge.EventGet, `{"info":{"name":"a"}}`)
	l.Drain()
	assert.Len(t, got, 2)
}

func TestClientGetFailureResolvesWithNil(t *testing.T) {
	c, fb, l := newTestClient(t)

	calls := 0
	for i := 0; i < 2; i++ {
		c.Get("missing", func(rec *Record) {
			calls++
			assert.Nil(t, rec)
		})
	}
	l.Drain()
	fb.deliver(t, bridge.EventGet, `{"info":{"name":"missing"},"error":true}`)
	l.Drain()

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, c.gets.pending("missing"))
}

func TestClientGetPayloadIsUnpacked(t *testing.T) {
	c, fb, l := newTestClient(t)

	var got *Record
	c.Get("n", func(rec *Record) { got = rec })
	l.Drain()
	fb.deliver(t, bridge.EventGet, `{"info":{"name":"n","utc":5,"userDefined":"{\"a\":[1]}"}}`)
	l.Drain()

	require.NotNil(t, got)
	assert.Equal(t, time.Unix(5, 0), got.Date)
	assert.Equal(t, map[string]any{"a": []any{float64(1)}}, got.UserDefined)
}

func TestClientUnsolicitedEventsQueueUntilSubscribed(t *testing.T) {
	c, fb, l := newTestClient(t)

	fb.deliver(t, bridge.EventNotify, `{"info":{"name":"first"}}`)
	fb.deliver(t, bridge.EventNotify, `{"info":{"name":"second"}}`)
	l.Drain()
	assert.Equal(t, 2, c.pending.len())

	var got []string
	c.Subscribe(func(rec Record) { got = append(got, rec.Name) })

	// The subscriber is installed at once; the flush is a later turn.
	assert.NotNil(t, c.Subscriber())
	assert.Empty(t, got)

	// Anything arriving after Subscribe still comes after the queued ones.
	fb.deliver(t, bridge.EventNotify, `{"info":{"name":"third"}}`)
	l.Drain()
	assert.Equal(t, []string{"first", "second", "third"}, got)
	assert.Equal(t, 0, c.pending.len())

	fb.deliver(t, bridge.EventNotify, `{"info":{"name":"fourth"}}`)
	l.Drain()
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, got)
}

func TestClientSubscribeTakesEffectOnTheLoop(t *testing.T) {
	c, fb, l := newTestClient(t)

	fb.deliver(t, bridge.EventNotify, `{"info":{"name":"queued"}}`)
	l.Drain()

	var got []string
	var seen Subscriber
	l.Post(func() {
		c.Subscribe(func(rec Record) { got = append(got, rec.Name) })
		seen = c.Subscriber()
		assert.Empty(t, got, "flush never runs inside Subscribe")
	})
	l.Drain()

	assert.NotNil(t, seen)
	assert.Equal(t, []string{"queued"}, got)
}

func TestClientEachQueuedEventIsDeliveredOnce(t *testing.T) {
	c, fb, l := newTestClient(t)

	fb.deliver(t, bridge.EventNotify, `{"info":{"name":"only"}}`)
	l.Drain()

	count := 0
	c.Subscribe(func(Record) { count++ })
	c.Subscribe(func(Record) { count += 100 })
	l.Drain()

	assert.Equal(t, 100, count, "only the current subscriber receives the flush")
}

func TestClientUnsubscribeKeepsQueue(t *testing.T) {
	c, fb, l := newTestClient(t)

	var got []string
	c.Subscribe(func(rec Record) { got = append(got, rec.Name) })
	l.Drain()
	c.Unsubscribe()
	l.Drain()
	assert.Nil(t, c.Subscriber())

	fb.deliver(t, bridge.EventNotify, `{"info":{"name":"held"}}`)
	l.Drain()
	assert.Empty(t, got)
	assert.Equal(t, 1, c.pending.len())

	c.Subscribe(func(rec Record) { got = append(got, rec.Name) })
	l.Drain()
	assert.Equal(t, []string{"held"}, got)
}

func TestClientUnsolicitedPayloadIsUnpacked(t *testing.T) {
	c, fb, l := newTestClient(t)

	var got Record
	c.Subscribe(func(rec Record) { got = rec })
	l.Drain()
	fb.deliver(t, bridge.EventNotify, `{"info":{"name":"n","userDefined":"{oops"}}`)
	l.Drain()

	assert.Equal(t, "n", got.Name)
	assert.Equal(t, "{oops", got.UserDefined)
}

func TestClientAddPayload(t *testing.T) {
	now := time.Unix(2000, 0)
	c, fb, l := newTestClient(t, WithClock(func() time.Time { return now }), WithDiscreteRepeat(true))

	require.NoError(t, c.Add(AddOptions{Name: "s", UserDefined: "x", Delay: &Duration{Seconds: 30}, Repeat: &Duration{Minutes: 5}}))
	require.NoError(t, c.Add(AddOptions{Name: "o", UserDefined: map[string]int{"a": 1}}))
	l.Drain()

	adds := fb.commands(bridge.CmdAdd)
	require.Len(t, adds, 2)

	var w WireRecord
	require.NoError(t, json.Unmarshal([]byte(adds[0].payload), &w))
	assert.Equal(t, `{"value":"x"}`, userDefinedText(t, w))
	require.NotNil(t, w.UTC)
	assert.Equal(t, float64(2030), *w.UTC)
	require.NotNil(t, w.Repeat)
	assert.Equal(t, BucketMinute, w.Repeat.Bucket)

	require.NoError(t, json.Unmarshal([]byte(adds[1].payload), &w))
	assert.Equal(t, `{"a":1}`, userDefinedText(t, w))
}

func TestClientAddUnserializablePayloadSendsNothing(t *testing.T) {
	c, fb, l := newTestClient(t)
	require.Error(t, c.Add(AddOptions{Name: "bad", UserDefined: []any{func() {}}}))
	l.Drain()
	assert.Empty(t, fb.commands(bridge.CmdAdd))
}

func TestClientSimpleCommands(t *testing.T) {
	c, fb, l := newTestClient(t)
	c.RequestNotificationPermission()
	c.Remove("gone")
	c.Clear()
	l.Drain()

	require.Len(t, fb.commands(bridge.CmdRequestPermission), 1)
	remove := fb.commands(bridge.CmdRemove)
	require.Len(t, remove, 1)
	assert.JSONEq(t, `{"name":"gone"}`, remove[0].payload)
	require.Len(t, fb.commands(bridge.CmdClear), 1)
}

func TestClientSendErrorsAreSwallowed(t *testing.T) {
	c, fb, l := newTestClient(t)
	fb.sendErr = errors.New("host gone")

	c.List(func([]Record) {})
	c.Clear()
	assert.NotPanics(t, func() { l.Drain() })
	assert.Len(t, fb.commands(bridge.CmdClear), 1)
}

func TestClientAbsentBridgeNeverAnswers(t *testing.T) {
	l := loop.New(logx.Nop())
	c := New(nil, l)
	c.Start()

	called := false
	c.List(func([]Record) { called = true })
	c.Get("x", func(*Record) { called = true })
	l.Drain()

	assert.False(t, called)
	assert.Equal(t, 1, c.lists.pending())
}

func TestClientPublishesTraceEvents(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	c, fb, l := newTestClient(t, WithBus(bus))
	fb.deliver(t, bridge.EventNotify, `{"info":{"name":"q"}}`)
	l.Drain()
	c.Subscribe(func(Record) {})
	l.Drain()

	var types []string
	for len(ch) > 0 {
		types = append(types, (<-ch).Type)
	}
	assert.Contains(t, types, eventbus.TypeSent)
	assert.Contains(t, types, eventbus.TypeQueued)
}

// answer replies to every List and Get the fake bridge has seen, like a host would.
func (f *fakeBridge) answer(ctx context.Context) {
	seen := 0
	for ctx.Err() == nil {
		f.mu.Lock()
		pending := append([]sentCommand(nil), f.sent[seen:]...)
		seen = len(f.sent)
		listH, getH := f.handlers[bridge.EventList], f.handlers[bridge.EventGet]
		f.mu.Unlock()

		for _, cmd := range pending {
			switch cmd.name {
			case bridge.CmdList:
				listH([]byte(`{"list":[{"name":"a"}]}`))
			case bridge.CmdGet:
				var p NamePayload
				_ = json.Unmarshal([]byte(cmd.payload), &p)
				if p.Name == "a" {
					getH([]byte(`{"info":{"name":"a"}}`))
				} else {
					getH([]byte(`{"info":{"name":"` + p.Name + `"},"error":true}`))
				}
			}
		}
		time.Sleep(time.Millisecond)
	}
}

func TestClientWaitHelpers(t *testing.T) {
	fb := newFakeBridge()
	l := loop.New(logx.Nop())
	c := New(fb, l)
	c.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = l.Run(ctx) }()
	go fb.answer(ctx)

	rec, err := c.GetWait(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Name)

	rec, err = c.GetWait(ctx, "zz")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, rec)

	records, err := c.ListWait(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].Name)
}

func TestClientWaitHelpersHonorContext(t *testing.T) {
	l := loop.New(logx.Nop())
	c := New(bridge.Nop{}, l)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	_, err := c.ListWait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, err = c.GetWait(ctx, "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
