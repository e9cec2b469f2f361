package localnotify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Bucket is a coarse repeat granularity for hosts that cannot repeat on an
// arbitrary period.
type Bucket string

const (
	BucketMinute Bucket = "minute"
	BucketHour   Bucket = "hour"
	BucketDay    Bucket = "day"
	BucketWeek   Bucket = "week"
	BucketMonth  Bucket = "month"
)

// Discretize thresholds in seconds, checked in this order.
// weekThreshold is below dayThreshold; the order is part of the host contract.
const (
	monthThreshold = 2592000
	weekThreshold  = 60480
	dayThreshold   = 86400
	hourThreshold  = 3600
)

// Duration is an additive duration spec. Every field is optional.
type Duration struct {
	Seconds float64 `json:"seconds,omitempty"`
	Minutes float64 `json:"minutes,omitempty"`
	Hours   float64 `json:"hours,omitempty"`
	Days    float64 `json:"days,omitempty"`
}

// UnmarshalJSON accepts numbers or numeric strings per field.
// Anything else counts as 0.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		*d = Duration{}
		return nil
	}
	*d = Duration{
		Seconds: lenientNumber(raw["seconds"]),
		Minutes: lenientNumber(raw["minutes"]),
		Hours:   lenientNumber(raw["hours"]),
		Days:    lenientNumber(raw["days"]),
	}
	return nil
}

func lenientNumber(b json.RawMessage) float64 {
	if len(b) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		return finite(f)
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return finite(f)
		}
	}
	return 0
}

// finite maps NaN and the infinities to 0.
func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// finiteDuration zeroes non-finite fields.
func finiteDuration(d Duration) Duration {
	return Duration{
		Seconds: finite(d.Seconds),
		Minutes: finite(d.Minutes),
		Hours:   finite(d.Hours),
		Days:    finite(d.Days),
	}
}

// DurationSeconds returns the total number of seconds described by d.
// A total that is not a finite number counts as 0.
func DurationSeconds(d Duration) float64 {
	return finite(d.Seconds + d.Minutes*60 + d.Hours*60*60 + d.Days*60*60*24)
}

// Interval is a repeat interval in one of the two forms hosts accept:
// a second count, or a Bucket. A non-empty Bucket wins.
type Interval struct {
	Seconds float64
	Bucket  Bucket
}

func (i Interval) IsBucket() bool { return i.Bucket != "" }

func (i Interval) String() string {
	if i.IsBucket() {
		return string(i.Bucket)
	}
	return strconv.FormatFloat(i.Seconds, 'f', -1, 64) + "s"
}

func (i Interval) MarshalJSON() ([]byte, error) {
	if i.IsBucket() {
		return json.Marshal(string(i.Bucket))
	}
	return json.Marshal(i.Seconds)
}

func (i *Interval) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*i = Interval{Bucket: Bucket(s)}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("repeat interval: %w", err)
	}
	*i = Interval{Seconds: f}
	return nil
}

// Discretize maps a second count to a Bucket. First match wins:
//
//	>= 2592000 month, >= 60480 week, >= 86400 day, >= 3600 hour, > 0 minute
//
// Non-positive values are returned unchanged as a second count.
func Discretize(seconds float64) Interval {
	switch {
	case seconds >= monthThreshold:
		return Interval{Bucket: BucketMonth}
	case seconds >= weekThreshold:
		return Interval{Bucket: BucketWeek}
	case seconds >= dayThreshold:
		return Interval{Bucket: BucketDay}
	case seconds >= hourThreshold:
		return Interval{Bucket: BucketHour}
	case seconds > 0:
		return Interval{Bucket: BucketMinute}
	default:
		return Interval{Seconds: seconds}
	}
}
