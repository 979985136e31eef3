package main

import (
	"errors"
	"testing"
	"time"
)

func TestParseReading(t *testing.T) {
	cases := []struct {
		name    string
		vals    []any
		want    pedometerReading
		wantErr error
	}{
		{"full", []any{"8000", "6100.5"}, pedometerReading{Steps: 8000, DistanceMeters: 6100.5}, nil},
		{"no distance", []any{"120", nil}, pedometerReading{Steps: 120}, nil},
		{"missing hash", []any{nil, nil}, pedometerReading{}, errNoReading},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseReading(tc.vals)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("reading = %+v, want %+v", got, tc.want)
			}
		})
	}

	if _, err := parseReading([]any{"lots", nil}); err == nil || errors.Is(err, errNoReading) {
		t.Errorf("err = %v, want a decode error", err)
	}
}

func TestPedometerKey(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Kolkata")
	// 20:00 UTC on the 21st is already the 22nd in Kolkata.
	at := time.Date(2026, 10, 21, 20, 0, 0, 0, time.UTC)
	if got := pedometerKey(7, dayKey(at, loc)); got != "getfit:pedometer:7:2026-10-22" {
		t.Errorf("key = %q", got)
	}
}
