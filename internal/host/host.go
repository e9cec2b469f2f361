package host

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"localnotify/internal/bridge"
	"localnotify/internal/eventbus"
	"localnotify/internal/localnotify"
	"localnotify/internal/storage"
	logx "localnotify/pkg/logx"
)

const storeTimeout = 5 * time.Second

// Config controls host behavior. Zero values are usable.
type Config struct {
	AutoGrantPermission bool
	// DeliverRatePerSec limits LocalNotify events; <= 0 means unlimited.
	DeliverRatePerSec float64
	DeliverBurst      int
	// Location anchors calendar repeats (hour/day/week/month). nil means local.
	Location *time.Location

	Bus eventbus.Bus
	Now func() time.Time
}

type listReply struct {
	List []localnotify.WireRecord `json:"list"`
}

// Host answers client commands and fires scheduled notifications.
type Host struct {
	br      bridge.Bridge
	st      storage.Store
	log     logx.Logger
	cfg     Config
	limiter *rate.Limiter
	cron    *cron.Cron

	// mu serializes command handling and fires, store access included.
	mu      sync.Mutex
	ready   bool
	granted bool
	held    []localnotify.WireRecord
	sched   map[string]*entry
	ver     uint64

	qmu   sync.Mutex
	queue []localnotify.WireRecord
	wake  chan struct{}
}

// New builds a host speaking over b. Call Start, then Run.
func New(b bridge.Bridge, st storage.Store, log logx.Logger, cfg Config) *Host {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	limit := rate.Inf
	if cfg.DeliverRatePerSec > 0 {
		limit = rate.Limit(cfg.DeliverRatePerSec)
	}
	burst := cfg.DeliverBurst
	if burst <= 0 {
		burst = 1
	}
	return &Host{
		br:      b,
		st:      st,
		log:     log.With(logx.String("comp", "host")),
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		cron:    cron.New(cron.WithLocation(cfg.Location)),
		sched:   map[string]*entry{},
		wake:    make(chan struct{}, 1),
	}
}

// Start registers the command handlers and reschedules everything already in
// the store. Notifications that came due while the host was down fire now.
func (h *Host) Start(ctx context.Context) error {
	h.br.Handle(bridge.CmdReady, h.onReady)
	h.br.Handle(bridge.CmdRequestPermission, h.onPermission)
	h.br.Handle(bridge.CmdList, h.onList)
	h.br.Handle(bridge.CmdGet, h.onGet)
	h.br.Handle(bridge.CmdClear, h.onClear)
	h.br.Handle(bridge.CmdRemove, h.onRemove)
	h.br.Handle(bridge.CmdAdd, h.onAdd)

	recs, err := h.st.List(ctx)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.cfg.Now()
	for _, rec := range recs {
		h.scheduleLocked(rec, fireTime(rec, now))
	}
	if len(recs) > 0 {
		h.log.Info("restored notifications", logx.Int("count", len(recs)))
	}
	return nil
}

// Run delivers fired notifications, throttled, until ctx is done. It also
// drives the repeat scheduler.
func (h *Host) Run(ctx context.Context) error {
	h.cron.Start()
	defer func() {
		<-h.cron.Stop().Done()
		h.mu.Lock()
		for name := range h.sched {
			h.cancelLocked(name)
		}
		h.mu.Unlock()
	}()

	for {
		for {
			rec, ok := h.pop()
			if !ok {
				break
			}
			if err := h.limiter.Wait(ctx); err != nil {
				return nil
			}
			h.deliver(rec)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-h.wake:
		}
	}
}

// Granted reports whether notification permission has been granted.
func (h *Host) Granted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.granted
}

// Scheduled reports how many notifications have a live timer or repeat.
func (h *Host) Scheduled() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sched)
}

func (h *Host) deliver(rec localnotify.WireRecord) {
	payload, err := json.Marshal(localnotify.NotifyEvent{Info: rec})
	if err != nil {
		h.log.Error("encode notification failed", logx.String("name", rec.Name), logx.Err(err))
		return
	}
	err = h.br.Send(bridge.PluginName, bridge.EventNotify, payload)
	if err != nil {
		h.log.Warn("deliver failed", logx.String("name", rec.Name), logx.Err(err))
	} else {
		h.log.Debug("notification fired", logx.String("name", rec.Name))
	}
	eventbus.Publish(h.cfg.Bus, eventbus.TypeFired, eventbus.Trace{Name: bridge.EventNotify, Target: rec.Name, OK: err == nil})
}

// emitLocked hands rec to Run, or holds it until the client is ready.
func (h *Host) emitLocked(rec localnotify.WireRecord) {
	if !h.ready {
		h.held = append(h.held, rec)
		return
	}
	h.push(rec)
}

func (h *Host) push(recs ...localnotify.WireRecord) {
	h.qmu.Lock()
	h.queue = append(h.queue, recs...)
	h.qmu.Unlock()
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Host) pop() (localnotify.WireRecord, bool) {
	h.qmu.Lock()
	defer h.qmu.Unlock()
	if len(h.queue) == 0 {
		return localnotify.WireRecord{}, false
	}
	rec := h.queue[0]
	h.queue = h.queue[1:]
	return rec, true
}

func (h *Host) reply(event string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.log.Error("encode reply failed", logx.String("event", event), logx.Err(err))
		return
	}
	if err := h.br.Send(bridge.PluginName, event, payload); err != nil {
		h.log.Warn("reply failed", logx.String("event", event), logx.Err(err))
	}
}

func storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

// Command handlers. They run on the transport goroutine.

func (h *Host) onReady([]byte) {
	h.mu.Lock()
	h.ready = true
	held := h.held
	h.held = nil
	h.mu.Unlock()

	if len(held) > 0 {
		h.log.Info("replaying notifications fired before ready", logx.Int("count", len(held)))
		h.push(held...)
	}
}

func (h *Host) onPermission([]byte) {
	h.mu.Lock()
	if h.cfg.AutoGrantPermission {
		h.granted = true
	}
	granted := h.granted
	h.mu.Unlock()
	h.log.Info("notification permission requested", logx.Bool("granted", granted))
}

func (h *Host) onList([]byte) {
	ctx, cancel := storeCtx()
	defer cancel()
	h.mu.Lock()
	recs, err := h.st.List(ctx)
	h.mu.Unlock()
	if err != nil {
		h.log.Warn("list failed", logx.Err(err))
	}
	if recs == nil {
		recs = []localnotify.WireRecord{}
	}
	h.reply(bridge.EventList, listReply{List: recs})
}

func (h *Host) onGet(payload []byte) {
	var p localnotify.NamePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.log.Warn("malformed Get dropped", logx.Err(err))
		return
	}
	ctx, cancel := storeCtx()
	defer cancel()
	h.mu.Lock()
	rec, ok, err := h.st.Get(ctx, p.Name)
	h.mu.Unlock()
	if err != nil {
		h.log.Warn("get failed", logx.String("name", p.Name), logx.Err(err))
	}
	if !ok || err != nil {
		h.reply(bridge.EventGet, localnotify.GetEvent{Info: localnotify.WireRecord{Name: p.Name}, Error: true})
		return
	}
	h.reply(bridge.EventGet, localnotify.GetEvent{Info: rec})
}

func (h *Host) onClear([]byte) {
	ctx, cancel := storeCtx()
	defer cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for name := range h.sched {
		h.cancelLocked(name)
	}
	if err := h.st.Clear(ctx); err != nil {
		h.log.Warn("clear failed", logx.Err(err))
	}
}

func (h *Host) onRemove(payload []byte) {
	var p localnotify.NamePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		h.log.Warn("malformed Remove dropped", logx.Err(err))
		return
	}
	ctx, cancel := storeCtx()
	defer cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelLocked(p.Name)
	if _, err := h.st.Delete(ctx, p.Name); err != nil {
		h.log.Warn("remove failed", logx.String("name", p.Name), logx.Err(err))
	}
}

func (h *Host) onAdd(payload []byte) {
	var rec localnotify.WireRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		h.log.Warn("malformed Add dropped", logx.Err(err))
		return
	}
	at := fireTime(rec, h.cfg.Now())
	utc := float64(at.UnixMilli()) / 1000
	rec.UTC = &utc

	ctx, cancel := storeCtx()
	defer cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.st.Put(ctx, rec); err != nil {
		h.log.Warn("add failed", logx.String("name", rec.Name), logx.Err(err))
		return
	}
	h.scheduleLocked(rec, at)
	h.log.Debug("notification scheduled",
		logx.String("name", rec.Name),
		logx.Time("at", at),
		logx.Bool("repeat", rec.Repeat != nil),
	)
}

// fireTime is utc if set, else date, else now.
func fireTime(rec localnotify.WireRecord, now time.Time) time.Time {
	switch {
	case rec.UTC != nil:
		return time.UnixMilli(int64(*rec.UTC * 1000))
	case rec.Date != nil:
		return *rec.Date
	default:
		return now
	}
}
