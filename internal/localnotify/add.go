package localnotify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// AddOptions describes a notification to schedule.
type AddOptions struct {
	// Name identifies the notification. Uniqueness is the host's business.
	Name   string
	Title  string
	Text   string
	Sound  string
	Action string
	Icon   string
	Number int

	// Date is the reference time for Delay. Zero means now.
	Date time.Time
	// Delay schedules the notification Delay after Date.
	Delay *Duration
	// Repeat makes the notification recur.
	Repeat *Duration

	// UserDefined is returned with the notification when it comes back.
	// Maps, structs, slices and pointers are serialized as-is; anything else
	// is boxed as {"value":"<text>"}.
	UserDefined any
}

// buildAdd turns options into the Add payload. now is only read when
// opts.Date is zero.
func buildAdd(opts AddOptions, now time.Time, discrete bool) (WireRecord, error) {
	w := WireRecord{
		Name:   opts.Name,
		Title:  opts.Title,
		Text:   opts.Text,
		Sound:  opts.Sound,
		Action: opts.Action,
		Icon:   opts.Icon,
		Number: opts.Number,
	}

	date := opts.Date
	if date.IsZero() {
		date = now
	} else {
		d := opts.Date
		w.Date = &d
	}
	base := float64(date.UnixNano()) / 1e9

	if opts.Delay != nil {
		delay := finiteDuration(*opts.Delay)
		w.Delay = &delay
		utc := base + DurationSeconds(delay)
		w.UTC = &utc
	}

	if opts.Repeat != nil {
		seconds := DurationSeconds(finiteDuration(*opts.Repeat))
		iv := Interval{Seconds: seconds}
		if discrete {
			iv = Discretize(seconds)
		}
		w.Repeat = &iv
	}

	ud, err := encodeUserDefined(opts.UserDefined)
	if err != nil {
		return WireRecord{}, err
	}
	// The host expects the payload as a JSON string, not an embedded object.
	quoted, err := json.Marshal(ud)
	if err != nil {
		return WireRecord{}, err
	}
	w.UserDefined = quoted
	return w, nil
}

// encodeUserDefined serializes structured values directly and boxes
// primitives as {"value":"<text>"}. nil encodes as null.
func encodeUserDefined(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return encodeRawUserDefined(raw)
	}
	if isStructured(v) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("userDefined: %w", err)
		}
		return string(b), nil
	}
	b, err := json.Marshal(map[string]string{"value": primitiveText(v)})
	if err != nil {
		return "", fmt.Errorf("userDefined: %w", err)
	}
	return string(b), nil
}

// encodeRawUserDefined passes raw objects and arrays through and boxes raw
// primitives like their Go counterparts.
func encodeRawUserDefined(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return "", fmt.Errorf("userDefined: invalid raw JSON")
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return string(trimmed), nil
	}
	var prim any
	if err := json.Unmarshal(trimmed, &prim); err != nil {
		return "", fmt.Errorf("userDefined: %w", err)
	}
	return encodeUserDefined(prim)
}

// isStructured reports whether v serializes as a JSON object or array.
// Pointers are judged by what they point to; a nil pointer counts as structured
// and encodes as null.
func isStructured(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return true
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Array:
		return true
	}
	return false
}

// primitiveText renders a primitive the way string concatenation would:
// integral floats without an exponent, booleans as true/false.
func primitiveText(v any) string {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		return primitiveText(rv.Elem().Interface())
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	if math.Abs(f) >= 1e21 {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
