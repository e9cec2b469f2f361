package localnotify

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// WireRecord is a notification as it crosses the bridge, in both directions.
//
// On the way out (Add) UserDefined holds a JSON string whose content is the
// serialized user payload. Hosts echo it back the same way.
type WireRecord struct {
	Name   string `json:"name"`
	Title  string `json:"title,omitempty"`
	Text   string `json:"text,omitempty"`
	Sound  string `json:"sound,omitempty"`
	Action string `json:"action,omitempty"`
	Icon   string `json:"icon,omitempty"`
	Number int    `json:"number,omitempty"`

	Date   *time.Time `json:"date,omitempty"`
	Delay  *Duration  `json:"delay,omitempty"`
	UTC    *float64   `json:"utc,omitempty"`
	Repeat *Interval  `json:"repeat,omitempty"`

	UserDefined json.RawMessage `json:"userDefined,omitempty"`
}

// Record is an unpacked notification as handed to callbacks.
// Treat it as read-only once delivered.
type Record struct {
	Name   string
	Title  string
	Text   string
	Sound  string
	Action string
	Icon   string
	Number int

	// UTC is the fire time in seconds since the epoch, if the host sent one.
	UTC *float64
	// Date is derived from UTC by Unpack.
	Date   time.Time
	Repeat *Interval

	// UserDefined is the parsed user payload. It stays a string when the
	// payload could not be parsed.
	UserDefined any

	unpacked bool
}

// FromWire copies w into a Record without unpacking it.
func FromWire(w WireRecord) Record {
	r := Record{
		Name:   w.Name,
		Title:  w.Title,
		Text:   w.Text,
		Sound:  w.Sound,
		Action: w.Action,
		Icon:   w.Icon,
		Number: w.Number,
		UTC:    w.UTC,
		Repeat: w.Repeat,
	}
	if len(w.UserDefined) > 0 {
		var s string
		if err := json.Unmarshal(w.UserDefined, &s); err == nil {
			r.UserDefined = s
		} else {
			r.UserDefined = append(json.RawMessage(nil), w.UserDefined...)
		}
	}
	return r
}

// Unpack derives Date from UTC and parses a string-encoded UserDefined.
//
// A payload that fails to parse is left as it was; the rest of the record is
// still usable. Unpack never panics and is a no-op on an unpacked record.
func (r *Record) Unpack() {
	if r == nil || r.unpacked {
		return
	}
	r.unpacked = true

	if r.UTC != nil && !math.IsNaN(*r.UTC) && !math.IsInf(*r.UTC, 0) {
		sec, frac := math.Modf(*r.UTC)
		r.Date = time.Unix(int64(sec), int64(frac*1e9))
	}

	var raw []byte
	switch v := r.UserDefined.(type) {
	case string:
		raw = []byte(v)
	case json.RawMessage:
		raw = v
	default:
		return
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return
	}
	r.UserDefined = parsed
}

// Unpacked reports whether Unpack has run.
func (r Record) Unpacked() bool { return r.unpacked }

// DecodeRecord decodes one wire record and unpacks it.
func DecodeRecord(raw []byte) (Record, error) {
	var w WireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	r := FromWire(w)
	r.Unpack()
	return r, nil
}

// Inbound event payloads.

// ListEvent is the LocalNotifyList payload. Entries stay raw so that one bad
// entry does not cost the others.
type ListEvent struct {
	List []json.RawMessage `json:"list"`
}

// GetEvent is the LocalNotifyGet payload.
type GetEvent struct {
	Info  WireRecord `json:"info"`
	Error bool       `json:"error,omitempty"`
}

// NotifyEvent is the LocalNotify payload.
type NotifyEvent struct {
	Info WireRecord `json:"info"`
}

// Outbound command payloads.

// NamePayload is the Get and Remove payload.
type NamePayload struct {
	Name string `json:"name"`
}

var emptyPayload = []byte("{}")
