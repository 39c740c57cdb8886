package main

import (
	"errors"
	"testing"
	"time"

	"campusconnect/internal/domain"
)

func TestParseDate(t *testing.T) {
	cases := map[string]time.Time{
		"2026-11-02T15:00:00Z": time.Date(2026, 11, 2, 15, 0, 0, 0, time.UTC),
		"2026-11-02 15:00":     time.Date(2026, 11, 2, 15, 0, 0, 0, time.Local),
		"2026-11-02T15:00":     time.Date(2026, 11, 2, 15, 0, 0, 0, time.Local),
		" 2026-11-02 ":         time.Date(2026, 11, 2, 0, 0, 0, 0, time.Local),
	}
	for in, want := range cases {
		got, err := parseDate(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%q: expected %v, got %v", in, want, got)
		}
	}

	for _, bad := range []string{"", "tomorrow", "02/11/2026"} {
		if _, err := parseDate(bad); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%q: expected invalid input, got %v", bad, err)
		}
	}
}
