package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kharcha/internal/backend"
	"kharcha/internal/core"
)

// AnalyticsService computes read-side aggregations over the remote store.
// Soft-deleted rows are filtered out of every aggregation.
type AnalyticsService struct {
	client backend.Client
	nowFn  func() time.Time
}

func NewAnalyticsService(client backend.Client) *AnalyticsService {
	return &AnalyticsService{client: client, nowFn: time.Now}
}

// CategoryBreakdown sums expenses per category over the period and computes
// each category's whole-percent share of the total, largest first.
func (s *AnalyticsService) CategoryBreakdown(ctx context.Context, period core.Period) ([]core.CategoryBreakdown, error) {
	from, to, err := period.Range(s.nowFn())
	if err != nil {
		return nil, err
	}

	categories, err := s.client.SelectCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Description
	}

	expenses, err := s.client.SelectExpenses(ctx, backend.ExpenseQuery{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}

	totals := make(map[int64]int64)
	var grand int64
	for _, e := range expenses {
		totals[e.CategoryID] += e.Amount.Cents
		grand += e.Amount.Cents
	}

	out := make([]core.CategoryBreakdown, 0, len(totals))
	for categoryID, cents := range totals {
		name, ok := names[categoryID]
		if !ok {
			name = "Unknown"
		}
		percentage := 0
		if grand > 0 {
			percentage = int((cents*100 + grand/2) / grand)
		}
		out = append(out, core.CategoryBreakdown{
			Category:   name,
			Amount:     core.Money{Cents: cents},
			Percentage: percentage,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

// WeeklySpending buckets the period's expenses into 7-day weeks counted from
// the range start (week 1 first). These are range weeks, not calendar weeks.
func (s *AnalyticsService) WeeklySpending(ctx context.Context, period core.Period) ([]core.WeeklySpending, error) {
	from, to, err := period.Range(s.nowFn())
	if err != nil {
		return nil, err
	}

	expenses, err := s.client.SelectExpenses(ctx, backend.ExpenseQuery{
		From: from, To: to, OrderByDate: true,
	})
	if err != nil {
		return nil, fmt.Errorf("weekly spending: %w", err)
	}

	weeks := make(map[int]int64)
	for _, e := range expenses {
		days := int(e.Date.Sub(from.Time).Hours() / 24)
		week := days/7 + 1
		if week < 1 {
			week = 1
		}
		weeks[week] += e.Amount.Cents
	}

	out := make([]core.WeeklySpending, 0, len(weeks))
	for week, cents := range weeks {
		out = append(out, core.WeeklySpending{Week: week, Amount: core.Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Week < out[j].Week })
	return out, nil
}

// Summary returns the period total, record count and average spend per day of
// the period.
func (s *AnalyticsService) Summary(ctx context.Context, period core.Period) (core.SummaryStats, error) {
	from, to, err := period.Range(s.nowFn())
	if err != nil {
		return core.SummaryStats{}, err
	}

	expenses, err := s.client.SelectExpenses(ctx, backend.ExpenseQuery{From: from, To: to})
	if err != nil {
		return core.SummaryStats{}, fmt.Errorf("summary stats: %w", err)
	}

	var total int64
	for _, e := range expenses {
		total += e.Amount.Cents
	}

	days := int(to.Sub(from.Time).Hours()/24) + 1
	if days < 1 {
		days = 1
	}

	return core.SummaryStats{
		Total:         core.Money{Cents: total},
		Count:         len(expenses),
		AveragePerDay: core.Money{Cents: total / int64(days)},
	}, nil
}
