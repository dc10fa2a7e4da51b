package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2026-03-15T08:30:00Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
	got = ParseTimeDefault("not-a-time", def)
	if !got.Equal(def) {
		t.Fatalf("expected default for garbage input")
	}
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2026, 3, 15, 8, 30, 12, 987654321, time.UTC)
	to := time.Date(2026, 3, 15, 9, 0, 45, 123456789, time.UTC)

	af, at := AlignFromTo(from, to, "1s")
	if af.Nanosecond() != 0 || at.Nanosecond() != 0 {
		t.Fatalf("1s alignment left sub-second precision: %v %v", af, at)
	}
	if !af.Equal(from.Truncate(time.Second)) {
		t.Fatalf("from misaligned: %v", af)
	}

	af, at = AlignFromTo(from, to, "5m")
	if af.Minute()%5 != 0 || at.Minute()%5 != 0 {
		t.Fatalf("5m alignment off boundary: %v %v", af, at)
	}

	// unknown buckets fall back to minutes
	af, _ = AlignFromTo(from, to, "2h")
	if af.Second() != 0 {
		t.Fatalf("fallback alignment: %v", af)
	}
}

func TestParseUint64Default(t *testing.T) {
	if got := ParseUint64Default("42", 7); got != 42 {
		t.Fatalf("got %d", got)
	}
	if got := ParseUint64Default("", 7); got != 7 {
		t.Fatalf("got %d", got)
	}
	if got := ParseUint64Default("-1", 7); got != 7 {
		t.Fatalf("got %d", got)
	}
}
