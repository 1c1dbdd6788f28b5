package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestampUnmarshalLenient(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{name: "rfc3339", in: `"2024-05-01T10:00:00Z"`, want: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{name: "fractional offset", in: `"2024-05-01T12:00:00.250+02:00"`, want: time.Date(2024, 5, 1, 10, 0, 0, 250e6, time.UTC)},
		{name: "millis number", in: `1714557600000`, want: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{name: "millis string", in: `"1714557600000"`, want: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{name: "garbage", in: `"yesterday"`},
		{name: "null", in: `null`},
		{name: "wrong type", in: `{"a":1}`},
		{name: "bool", in: `true`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tc.in), &ts); err != nil {
				t.Fatalf("unmarshal must not fail: %v", err)
			}
			if tc.want.IsZero() {
				if !ts.IsZero() {
					t.Fatalf("expected zero timestamp, got %v", ts)
				}
				return
			}
			if !ts.Time().Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, ts.Time())
			}
		})
	}
}

func TestAbsentTimestampIsOldest(t *testing.T) {
	var absent Timestamp
	stamped := []Timestamp{
		UnixMilli(1),
		UnixMilli(0),
		UnixMilli(-86_400_000),
		At(time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	for _, ts := range stamped {
		if absent.After(ts) {
			t.Fatalf("absent timestamp must not be newer than %v", ts)
		}
		if !ts.After(absent) {
			t.Fatalf("%v must be newer than an absent timestamp", ts)
		}
		if absent.Equal(ts) || ts.Equal(absent) {
			t.Fatalf("absent timestamp must not equal %v", ts)
		}
	}
	if !absent.Equal(Timestamp{}) || absent.After(Timestamp{}) {
		t.Fatalf("two absent timestamps tie")
	}
	if !UnixMilli(-1).Equal(UnixMilli(-1)) || UnixMilli(-2).After(UnixMilli(-1)) {
		t.Fatalf("pre-1970 timestamps must order by instant")
	}
}

func TestEntityDecodesMalformedTimestamp(t *testing.T) {
	raw := `{"id":"t1","workspaceId":"w1","updatedAt":"not-a-date","payload":{"title":"Call back"}}`
	var e Entity[Task]
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !e.UpdatedAt.IsZero() {
		t.Fatalf("malformed timestamp should decode to zero")
	}
	if e.Payload.Title != "Call back" {
		t.Fatalf("payload not decoded: %+v", e.Payload)
	}
}
