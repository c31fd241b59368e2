package util

import (
	"math/rand"
	"time"
)

// Timestamp returns the current time formatted for payloads (RFC3339, UTC).
func Timestamp() string {
	return TimestampAt(time.Now())
}

// TimestampAt formats t for payloads.
func TimestampAt(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// RandFloat returns a uniform value in [min, max). min > max is treated as a
// degenerate range and returns min.
func RandFloat(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + rand.Float64()*(max-min)
}

// RandInt returns a uniform value in [min, max].
func RandInt(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.Intn(max-min+1)
}

// RandDigits returns an n-character string of random decimal digits.
func RandDigits(n int) string {
	const digits = "0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = digits[rand.Intn(len(digits))]
	}
	return string(b)
}

// Choice returns a uniformly random element of items. Panics on an empty slice,
// matching rand.Intn semantics.
func Choice[T any](items []T) T {
	return items[rand.Intn(len(items))]
}

// Shift classifies a wall-clock time into the plant's three shifts:
// morning 06:00-14:00, afternoon 14:00-22:00, night 22:00-06:00.
func Shift(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 6 && h < 14:
		return "morning"
	case h >= 14 && h < 22:
		return "afternoon"
	default:
		return "night"
	}
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
