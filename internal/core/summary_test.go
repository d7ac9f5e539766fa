package core

import (
	"errors"
	"testing"
	"time"
)

func TestPeriod_Range(t *testing.T) {
	now := time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		period    Period
		wantStart string
		wantEnd   string
	}{
		{PeriodCurrentMonth, "2024-03-01", "2024-03-31"},
		{PeriodPreviousMonth, "2024-02-01", "2024-02-29"},
		{PeriodSixMonths, "2023-10-01", "2024-03-31"},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			start, end, err := tt.period.Range(now)
			if err != nil {
				t.Fatalf("Range failed: %v", err)
			}
			if start.ISO() != tt.wantStart {
				t.Errorf("expected start %s, got %s", tt.wantStart, start.ISO())
			}
			if end.ISO() != tt.wantEnd {
				t.Errorf("expected end %s, got %s", tt.wantEnd, end.ISO())
			}
		})
	}
}

func TestPeriod_RangeAcrossYearBoundary(t *testing.T) {
	now := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)

	start, end, err := PeriodPreviousMonth.Range(now)
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if start.ISO() != "2023-12-01" || end.ISO() != "2023-12-31" {
		t.Errorf("expected December 2023, got %s..%s", start.ISO(), end.ISO())
	}

	start, end, err = PeriodSixMonths.Range(now)
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if start.ISO() != "2023-08-01" || end.ISO() != "2024-01-31" {
		t.Errorf("expected Aug 2023 through Jan 2024, got %s..%s", start.ISO(), end.ISO())
	}
}

func TestPeriod_RangeInvalid(t *testing.T) {
	if _, _, err := Period("all-time").Range(time.Now()); !errors.Is(err, ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}
