package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Timestamp is an entity modification time. The zero value means "absent"
// and orders before every real timestamp, including ones before 1970.
type Timestamp struct {
	t time.Time
}

// At wraps t, normalised to UTC.
func At(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{t: t.UTC()}
}

// UnixMilli builds a Timestamp from milliseconds since the epoch.
func UnixMilli(ms int64) Timestamp {
	return At(time.UnixMilli(ms))
}

// ParseTimestamp accepts RFC 3339 (optionally with fractional seconds) or a
// decimal count of Unix milliseconds. Anything else yields the zero value.
func ParseTimestamp(value string) Timestamp {
	value = strings.TrimSpace(value)
	if value == "" {
		return Timestamp{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return At(t)
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return UnixMilli(ms)
	}
	return Timestamp{}
}

func (ts Timestamp) Time() time.Time { return ts.t }

func (ts Timestamp) IsZero() bool { return ts.t.IsZero() }

// After reports whether ts is strictly newer than other.
func (ts Timestamp) After(other Timestamp) bool {
	switch {
	case ts.IsZero():
		return false
	case other.IsZero():
		return true
	}
	return ts.t.After(other.t)
}

// Equal reports whether both are absent or both name the same instant.
func (ts Timestamp) Equal(other Timestamp) bool {
	if ts.IsZero() || other.IsZero() {
		return ts.IsZero() == other.IsZero()
	}
	return ts.t.Equal(other.t)
}

func (ts Timestamp) String() string {
	if ts.t.IsZero() {
		return ""
	}
	return ts.t.Format(time.RFC3339Nano)
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.t.Format(time.RFC3339Nano))
}

// UnmarshalJSON never fails: malformed values decode to the zero Timestamp.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*ts = Timestamp{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		*ts = ParseTimestamp(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return nil
	}
	if ms, err := n.Int64(); err == nil {
		*ts = UnixMilli(ms)
	}
	return nil
}
