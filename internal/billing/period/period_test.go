package period

import (
	"testing"
	"time"
)

func TestCalculateWithNextPaymentDate(t *testing.T) {
	createdAt := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)
	nextPayment := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	start, end := Calculate(&createdAt, &nextPayment, "monthly")

	wantStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
	if start == nil || !start.Equal(wantStart) {
		t.Fatalf("expected start %v, got %v", wantStart, start)
	}
	if end == nil || !end.Equal(wantEnd) {
		t.Fatalf("expected end %v, got %v", wantEnd, end)
	}
}

func TestCalculateFallsBackToInterval(t *testing.T) {
	createdAt := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		interval string
		wantEnd  time.Time
	}{
		{"monthly", time.Date(2024, 4, 14, 23, 59, 59, 0, time.UTC)},
		{"annually", time.Date(2025, 3, 14, 23, 59, 59, 0, time.UTC)},
		{"weekly", time.Date(2024, 3, 21, 23, 59, 59, 0, time.UTC)},
		{"daily", time.Date(2024, 3, 15, 23, 59, 59, 0, time.UTC)},
		{"", time.Date(2024, 4, 14, 23, 59, 59, 0, time.UTC)},
	}

	for _, tc := range tests {
		start, end := Calculate(&createdAt, nil, tc.interval)
		if start == nil || end == nil {
			t.Fatalf("%s: expected bounds, got nil", tc.interval)
		}
		if !end.Equal(tc.wantEnd) {
			t.Fatalf("%s: expected end %v, got %v", tc.interval, tc.wantEnd, end)
		}
	}
}

func TestCalculateNilCreatedAt(t *testing.T) {
	nextPayment := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	start, end := Calculate(nil, &nextPayment, "monthly")
	if start != nil || end != nil {
		t.Fatalf("expected nil bounds without creation time, got %v / %v", start, end)
	}
}

func TestCalculateEndNeverBeforeStart(t *testing.T) {
	createdAt := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	// Stale next-payment date in the past.
	nextPayment := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	start, end := Calculate(&createdAt, &nextPayment, "monthly")
	if end.Before(*start) {
		t.Fatalf("expected end >= start, got start %v end %v", start, end)
	}
	wantEnd := time.Date(2024, 1, 10, 23, 59, 59, 0, time.UTC)
	if !end.Equal(wantEnd) {
		t.Fatalf("expected clamped end %v, got %v", wantEnd, end)
	}
}
