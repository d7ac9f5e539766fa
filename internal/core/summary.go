package core

import (
	"errors"
	"time"
)

// Periods accepted by the analytics read side.
const (
	PeriodCurrentMonth  Period = "current-month"
	PeriodPreviousMonth Period = "previous-month"
	PeriodSixMonths     Period = "six-months"
)

type (
	Period string

	// CategoryBreakdown is an amount aggregated per category with its share
	// of the range total, rounded to whole percent.
	CategoryBreakdown struct {
		Category   string
		Amount     Money
		Percentage int
	}

	// WeeklySpending is an amount bucketed into 7-day weeks counted from the
	// start of the queried range, not calendar weeks.
	WeeklySpending struct {
		Week   int
		Amount Money
	}

	// SummaryStats is a compact overview of a date range.
	SummaryStats struct {
		Total         Money
		Count         int
		AveragePerDay Money
	}
)

var ErrInvalidPeriod = errors.New("invalid analytics period")

// Range resolves a period to an inclusive [start, end] date pair relative to now.
func (p Period) Range(now time.Time) (Date, Date, error) {
	y, m, _ := now.Date()
	switch p {
	case PeriodCurrentMonth:
		return NewDate(y, int(m), 1), lastOfMonth(y, int(m)), nil
	case PeriodPreviousMonth:
		prev := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		return NewDate(prev.Year(), int(prev.Month()), 1), lastOfMonth(prev.Year(), int(prev.Month())), nil
	case PeriodSixMonths:
		start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -5, 0)
		return NewDate(start.Year(), int(start.Month()), 1), lastOfMonth(y, int(m)), nil
	}
	return Date{}, Date{}, ErrInvalidPeriod
}

func lastOfMonth(year, month int) Date {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return Date{Time: first.AddDate(0, 1, -1)}
}
