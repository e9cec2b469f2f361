package host

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localnotify/internal/bridge"
	"localnotify/internal/eventbus"
	"localnotify/internal/localnotify"
	"localnotify/internal/runtime/loop"
	"localnotify/internal/storage"
	logx "localnotify/pkg/logx"
)

type harness struct {
	ctx    context.Context
	client *localnotify.Client
	host   *Host
	store  storage.Store
	fired  chan localnotify.Record
}

// newHarness wires a client to a host over a pipe and runs everything until
// the test ends. startClient=false leaves the client un-started (no Ready).
func newHarness(t *testing.T, st storage.Store, cfg Config, startClient bool) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	log := logx.Nop()
	appEnd, hostEnd := bridge.NewPipe(log)
	l := loop.New(log)
	c := localnotify.New(appEnd, l)
	h := New(hostEnd, st, log, cfg)
	require.NoError(t, h.Start(ctx))

	go func() { _ = appEnd.Run(ctx) }()
	go func() { _ = hostEnd.Run(ctx) }()
	go func() { _ = l.Run(ctx) }()
	go func() { _ = h.Run(ctx) }()

	fired := make(chan localnotify.Record, 16)
	c.Subscribe(func(r localnotify.Record) { fired <- r })
	if startClient {
		c.Start()
	}
	return &harness{ctx: ctx, client: c, host: h, store: st, fired: fired}
}

func (hs *harness) waitFired(t *testing.T) localnotify.Record {
	t.Helper()
	select {
	case r := <-hs.fired:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("notification did not fire")
		return localnotify.Record{}
	}
}

func (hs *harness) names(t *testing.T) []string {
	t.Helper()
	recs, err := hs.client.ListWait(hs.ctx)
	require.NoError(t, err)
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Name)
	}
	return out
}

func TestHostAddListGetRemoveClear(t *testing.T) {
	hs := newHarness(t, storage.NewMemory(), Config{}, true)
	c := hs.client
	later := &localnotify.Duration{Hours: 1}

	require.NoError(t, c.Add(localnotify.AddOptions{Name: "a", Title: "A", Delay: later, UserDefined: map[string]int{"n": 1}}))
	require.NoError(t, c.Add(localnotify.AddOptions{Name: "b", Delay: later}))
	require.NoError(t, c.Add(localnotify.AddOptions{Name: "c", Delay: later}))
	assert.Equal(t, []string{"a", "b", "c"}, hs.names(t))

	rec, err := c.GetWait(hs.ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", rec.Title)
	assert.Equal(t, map[string]any{"n": float64(1)}, rec.UserDefined)
	require.NotNil(t, rec.UTC)
	assert.WithinDuration(t, time.Now().Add(time.Hour), rec.Date, 5*time.Second)

	_, err = c.GetWait(hs.ctx, "missing")
	assert.ErrorIs(t, err, localnotify.ErrNotFound)

	c.Remove("b")
	assert.Equal(t, []string{"a", "c"}, hs.names(t))
	assert.Equal(t, 2, hs.host.Scheduled())

	c.Clear()
	assert.Empty(t, hs.names(t))
	assert.Equal(t, 0, hs.host.Scheduled())
}

func TestHostFiresDueNotificationOnce(t *testing.T) {
	hs := newHarness(t, storage.NewMemory(), Config{}, true)
	require.NoError(t, hs.client.Add(localnotify.AddOptions{
		Name:        "soon",
		Delay:       &localnotify.Duration{Seconds: 0.05},
		UserDefined: "hello",
	}))

	rec := hs.waitFired(t)
	assert.Equal(t, "soon", rec.Name)
	assert.Equal(t, map[string]any{"value": "hello"}, rec.UserDefined)

	// One-shot notifications are gone after firing.
	assert.Empty(t, hs.names(t))
	assert.Equal(t, 0, hs.host.Scheduled())
}

func TestHostRemovedNotificationDoesNotFire(t *testing.T) {
	hs := newHarness(t, storage.NewMemory(), Config{}, true)
	require.NoError(t, hs.client.Add(localnotify.AddOptions{Name: "x", Delay: &localnotify.Duration{Seconds: 0.3}}))
	hs.client.Remove("x")
	assert.Empty(t, hs.names(t))

	select {
	case r := <-hs.fired:
		t.Fatalf("removed notification fired: %s", r.Name)
	case <-time.After(600 * time.Millisecond):
	}
}

func TestHostRepeatKeepsFiring(t *testing.T) {
	hs := newHarness(t, storage.NewMemory(), Config{}, true)
	require.NoError(t, hs.client.Add(localnotify.AddOptions{
		Name:   "tick",
		Repeat: &localnotify.Duration{Seconds: 1},
	}))

	assert.Equal(t, "tick", hs.waitFired(t).Name)
	assert.Equal(t, "tick", hs.waitFired(t).Name)
	assert.Equal(t, []string{"tick"}, hs.names(t))
	assert.Equal(t, 1, hs.host.Scheduled())
}

func TestHostHoldsFiresUntilReady(t *testing.T) {
	bus := eventbus.New()
	events, unsubscribe := bus.Subscribe(8)
	defer unsubscribe()

	st := storage.NewMemory()
	past := float64(time.Now().Add(-time.Minute).Unix())
	require.NoError(t, st.Put(context.Background(), localnotify.WireRecord{Name: "missed", UTC: &past}))

	hs := newHarness(t, st, Config{Bus: bus}, false)

	select {
	case r := <-hs.fired:
		t.Fatalf("fired before Ready: %s", r.Name)
	case <-time.After(200 * time.Millisecond):
	}

	hs.client.Start()
	assert.Equal(t, "missed", hs.waitFired(t).Name)

	select {
	case ev := <-events:
		assert.Equal(t, eventbus.TypeFired, ev.Type)
		assert.Equal(t, "missed", ev.Data.(eventbus.Trace).Target)
	case <-time.After(time.Second):
		t.Fatal("no fired event")
	}
}

func TestHostPermission(t *testing.T) {
	hs := newHarness(t, storage.NewMemory(), Config{AutoGrantPermission: true}, true)
	assert.False(t, hs.host.Granted())
	hs.client.RequestNotificationPermission()
	assert.Eventually(t, hs.host.Granted, 2*time.Second, 10*time.Millisecond)

	denied := newHarness(t, storage.NewMemory(), Config{}, true)
	denied.client.RequestNotificationPermission()
	denied.names(t) // round trip so the request has been handled
	assert.False(t, denied.host.Granted())
}

func TestHostDiscreteRepeatRoundTrip(t *testing.T) {
	log := logx.Nop()
	appEnd, hostEnd := bridge.NewPipe(log)
	l := loop.New(log)
	c := localnotify.New(appEnd, l, localnotify.WithDiscreteRepeat(true))
	h := New(hostEnd, storage.NewMemory(), log, Config{Location: time.UTC})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Start(ctx))
	go func() { _ = appEnd.Run(ctx) }()
	go func() { _ = hostEnd.Run(ctx) }()
	go func() { _ = l.Run(ctx) }()
	c.Start()

	require.NoError(t, c.Add(localnotify.AddOptions{
		Name:   "daily",
		Delay:  &localnotify.Duration{Days: 1},
		Repeat: &localnotify.Duration{Days: 1},
	}))
	rec, err := c.GetWait(ctx, "daily")
	require.NoError(t, err)
	require.NotNil(t, rec.Repeat)
	// 86400 s lands in the week bucket: week is checked before day.
	assert.Equal(t, localnotify.BucketWeek, rec.Repeat.Bucket)
}

func TestRepeatSchedule(t *testing.T) {
	first := time.Date(2030, time.March, 14, 9, 30, 0, 0, time.UTC) // a Thursday
	cases := []struct {
		name string
		iv   *localnotify.Interval
		want time.Time
	}{
		{"minute", &localnotify.Interval{Bucket: localnotify.BucketMinute}, first.Add(time.Minute)},
		{"hour", &localnotify.Interval{Bucket: localnotify.BucketHour}, first.Add(time.Hour)},
		{"day", &localnotify.Interval{Bucket: localnotify.BucketDay}, first.AddDate(0, 0, 1)},
		{"week", &localnotify.Interval{Bucket: localnotify.BucketWeek}, first.AddDate(0, 0, 7)},
		{"month", &localnotify.Interval{Bucket: localnotify.BucketMonth}, first.AddDate(0, 1, 0)},
		{"seconds", &localnotify.Interval{Seconds: 90}, first.Add(90 * time.Second)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sch, err := repeatSchedule(tc.iv, first, time.UTC)
			require.NoError(t, err)
			require.NotNil(t, sch)
			got := sch.Next(first)
			assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
		})
	}
}

func TestRepeatScheduleNoRepeat(t *testing.T) {
	now := time.Now()
	sch, err := repeatSchedule(nil, now, time.UTC)
	assert.NoError(t, err)
	assert.Nil(t, sch)

	sch, err = repeatSchedule(&localnotify.Interval{Seconds: 0}, now, time.UTC)
	assert.NoError(t, err)
	assert.Nil(t, sch)

	_, err = repeatSchedule(&localnotify.Interval{Bucket: "fortnight"}, now, time.UTC)
	assert.Error(t, err)
}

func TestFireTime(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	date := now.Add(time.Hour)
	utc := float64(now.Add(2*time.Hour).Unix())

	assert.Equal(t, now, fireTime(localnotify.WireRecord{}, now))
	assert.Equal(t, date, fireTime(localnotify.WireRecord{Date: &date}, now))
	assert.True(t, now.Add(2*time.Hour).Equal(fireTime(localnotify.WireRecord{Date: &date, UTC: &utc}, now)))
}
