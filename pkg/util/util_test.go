package util

import (
	"testing"
	"time"
)

func TestShift(t *testing.T) {
	cases := []struct {
		hour int
		want string
	}{
		{0, "night"},
		{5, "night"},
		{6, "morning"},
		{13, "morning"},
		{14, "afternoon"},
		{21, "afternoon"},
		{22, "night"},
		{23, "night"},
	}
	for _, c := range cases {
		ts := time.Date(2025, 3, 10, c.hour, 30, 0, 0, time.UTC)
		if got := Shift(ts); got != c.want {
			t.Errorf("Shift(hour=%d) = %q, want %q", c.hour, got, c.want)
		}
	}
}

func TestIsWeekend(t *testing.T) {
	sat := time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)
	mon := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	if !IsWeekend(sat) {
		t.Error("Saturday should be a weekend")
	}
	if IsWeekend(mon) {
		t.Error("Monday should not be a weekend")
	}
}

func TestRandFloatBounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v := RandFloat(10, 20)
		if v < 10 || v >= 20 {
			t.Fatalf("RandFloat(10, 20) = %v out of bounds", v)
		}
	}
	if v := RandFloat(5, 5); v != 5 {
		t.Errorf("degenerate range should return min, got %v", v)
	}
	if v := RandFloat(9, 3); v != 9 {
		t.Errorf("inverted range should return min, got %v", v)
	}
}

func TestRandIntBounds(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		v := RandInt(1, 3)
		if v < 1 || v > 3 {
			t.Fatalf("RandInt(1, 3) = %d out of bounds", v)
		}
		seen[v] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected all of 1..3 to appear, got %v", seen)
	}
}

func TestRandDigits(t *testing.T) {
	s := RandDigits(8)
	if len(s) != 8 {
		t.Fatalf("expected 8 digits, got %q", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit %q in %q", r, s)
		}
	}
}

func TestTimestampAt(t *testing.T) {
	ts := time.Date(2025, 6, 1, 8, 30, 0, 0, time.FixedZone("CET", 3600))
	if got := TimestampAt(ts); got != "2025-06-01T07:30:00Z" {
		t.Errorf("TimestampAt = %q", got)
	}
}
