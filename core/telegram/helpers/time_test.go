package helpers

import (
	"testing"
	"time"
)

func TestParseDeadline(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		in string
		ok bool
	}{
		{"05.01.2026", true},
		{"31.12.2026", true},
		{" 05.01.2026 ", true},
		{"5.1.2026", false},   // unpadded
		{"2026-01-05", false}, // wrong delimiter
		{"32.01.2026", false}, // impossible day
		{"00.01.2026", false},
		{"15.13.2026", false}, // impossible month
		{"tomorrow", false},
		{"", false},
		{"05.01.2026x", false},
	}
	for _, tc := range cases {
		if _, ok := ParseDeadline(tc.in, loc); ok != tc.ok {
			t.Errorf("ParseDeadline(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
	}

	got, ok := ParseDeadline("05.01.2026", loc)
	if !ok {
		t.Fatal("parse failed")
	}
	if FormatDeadline(got) != "05.01.2026" {
		t.Errorf("round trip = %q", FormatDeadline(got))
	}
}

func TestParseDeadlineLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	got, ok := ParseDeadline("05.01.2026", loc)
	if !ok {
		t.Fatal("parse failed")
	}
	if got.Location() != loc {
		t.Errorf("location = %v, want %v", got.Location(), loc)
	}
	if got.Hour() != 0 || got.Day() != 5 {
		t.Errorf("parsed = %v", got)
	}
}

func TestDaysLeft(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		deadline time.Time
		want     int
	}{
		{now.Add(48 * time.Hour), 2},
		{now.Add(36 * time.Hour), 2}, // partial day rounds up
		{now.Add(24 * time.Hour), 1},
		{now.Add(time.Hour), 1},
		{now, 0},
		{now.Add(-time.Hour), 0},      // past within the same day rounds toward zero
		{now.Add(-25 * time.Hour), -1},
	}
	for _, tc := range cases {
		if got := DaysLeft(tc.deadline, now); got != tc.want {
			t.Errorf("DaysLeft(%v) = %d, want %d", tc.deadline, got, tc.want)
		}
	}
}
