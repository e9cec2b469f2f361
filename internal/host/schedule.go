package host

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"localnotify/internal/localnotify"
	logx "localnotify/pkg/logx"
)

// entry is the live schedule of one notification. ver invalidates callbacks
// of an entry that has since been replaced or canceled.
type entry struct {
	ver     uint64
	at      time.Time
	timer   *time.Timer
	cronID  cron.EntryID
	hasCron bool
}

// scheduleLocked replaces any schedule for rec.Name with a timer for at.
// A time in the past fires immediately.
func (h *Host) scheduleLocked(rec localnotify.WireRecord, at time.Time) {
	h.cancelLocked(rec.Name)
	h.ver++
	e := &entry{ver: h.ver, at: at}
	name, ver := rec.Name, e.ver
	e.timer = time.AfterFunc(max(at.Sub(h.cfg.Now()), 0), func() { h.onTimer(name, ver) })
	h.sched[name] = e
}

func (h *Host) cancelLocked(name string) {
	e, ok := h.sched[name]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.hasCron {
		h.cron.Remove(e.cronID)
	}
	delete(h.sched, name)
}

// current returns the entry for name if it is still the one ver refers to.
func (h *Host) current(name string, ver uint64) *entry {
	e := h.sched[name]
	if e == nil || e.ver != ver {
		return nil
	}
	return e
}

// onTimer is the first fire. One-shot notifications are then forgotten;
// repeating ones move to the cron scheduler.
func (h *Host) onTimer(name string, ver uint64) {
	ctx, cancel := storeCtx()
	defer cancel()
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.current(name, ver)
	if e == nil {
		return
	}
	rec, ok, err := h.st.Get(ctx, name)
	if err != nil || !ok {
		if err != nil {
			h.log.Warn("load fired notification failed", logx.String("name", name), logx.Err(err))
		}
		delete(h.sched, name)
		return
	}

	sch, err := repeatSchedule(rec.Repeat, e.at, h.cfg.Location)
	switch {
	case err != nil:
		h.log.Warn("bad repeat; firing once", logx.String("name", name), logx.Err(err))
		fallthrough
	case sch == nil:
		delete(h.sched, name)
		if _, err := h.st.Delete(ctx, name); err != nil {
			h.log.Warn("forget fired notification failed", logx.String("name", name), logx.Err(err))
		}
	default:
		e.timer = nil
		e.cronID = h.cron.Schedule(sch, cron.FuncJob(func() { h.onRepeat(name, ver) }))
		e.hasCron = true
	}
	h.emitLocked(rec)
}

func (h *Host) onRepeat(name string, ver uint64) {
	ctx, cancel := storeCtx()
	defer cancel()
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current(name, ver) == nil {
		return
	}
	rec, ok, err := h.st.Get(ctx, name)
	if err != nil || !ok {
		return
	}
	h.emitLocked(rec)
}

// repeatSchedule maps a repeat interval onto a cron schedule. Buckets become
// calendar specs anchored at the first fire (a daily repeat fires at the same
// wall-clock time every day); second counts become a constant delay.
// A nil interval, or one of zero seconds, does not repeat.
func repeatSchedule(iv *localnotify.Interval, first time.Time, loc *time.Location) (cron.Schedule, error) {
	if iv == nil {
		return nil, nil
	}
	if !iv.IsBucket() {
		if iv.Seconds <= 0 {
			return nil, nil
		}
		return cron.Every(time.Duration(iv.Seconds * float64(time.Second))), nil
	}

	t := first.In(loc)
	var spec string
	switch iv.Bucket {
	case localnotify.BucketMinute:
		spec = "* * * * *"
	case localnotify.BucketHour:
		spec = fmt.Sprintf("%d * * * *", t.Minute())
	case localnotify.BucketDay:
		spec = fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour())
	case localnotify.BucketWeek:
		spec = fmt.Sprintf("%d %d * * %d", t.Minute(), t.Hour(), int(t.Weekday()))
	case localnotify.BucketMonth:
		spec = fmt.Sprintf("%d %d %d * *", t.Minute(), t.Hour(), t.Day())
	default:
		return nil, fmt.Errorf("unknown repeat bucket %q", iv.Bucket)
	}
	return cron.ParseStandard(spec)
}
