package service

import (
	"context"
	"fmt"
	"time"

	"storefront/backend/internal/domain"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// SalesBuckets returns the empty buckets for a sales period ending at now,
// oldest first, and the time the first bucket starts.
//
//	week:  7 daily buckets
//	month: 30 daily buckets
//	year:  12 monthly buckets
func SalesBuckets(period string, now time.Time) ([]domain.SaleStats, time.Time, error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var days int
	switch period {
	case "", "week":
		days = 7
	case "month":
		days = 30
	case "year":
		thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		start := thisMonth.AddDate(0, -11, 0)
		buckets := make([]domain.SaleStats, 0, 12)
		for m := start; !m.After(thisMonth); m = m.AddDate(0, 1, 0) {
			buckets = append(buckets, domain.SaleStats{Period: m.Format(monthLayout)})
		}
		return buckets, start, nil
	default:
		return nil, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}

	start := today.AddDate(0, 0, -(days - 1))
	buckets := make([]domain.SaleStats, 0, days)
	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		buckets = append(buckets, domain.SaleStats{Period: d.Format(dayLayout)})
	}
	return buckets, start, nil
}

// Sales reports order count and total per bucket, excluding cancelled orders.
func (s *Service) Sales(ctx context.Context, period string) ([]domain.SaleStats, error) {
	now := s.now()
	buckets, from, err := SalesBuckets(period, now)
	if err != nil {
		return nil, err
	}

	daily, err := s.repo.DailySales(ctx, from, now)
	if err != nil {
		return nil, err
	}

	layout := dayLayout
	if period == "year" {
		layout = monthLayout
	}
	index := make(map[string]int, len(buckets))
	for i, b := range buckets {
		index[b.Period] = i
	}
	for _, d := range daily {
		i, ok := index[d.Day.UTC().Format(layout)]
		if !ok {
			continue
		}
		buckets[i].Count += d.Count
		buckets[i].Total += d.Total
	}
	return buckets, nil
}

// Progress summarises orders placed in the last 30 days.
func (s *Service) Progress(ctx context.Context) (domain.OrderStats, error) {
	now := s.now()
	byStatus, err := s.repo.CountOrdersByStatus(ctx, now.AddDate(0, 0, -30), now)
	if err != nil {
		return domain.OrderStats{}, err
	}

	stats := domain.OrderStats{ByStatus: byStatus}
	if stats.ByStatus == nil {
		stats.ByStatus = []domain.StatusStats{}
	}
	for _, st := range byStatus {
		stats.Count += st.Count
		if st.Status == domain.OrderStatusDone {
			stats.Done += st.Count
		}
		if st.Status.InProgress() {
			stats.InProgress += st.Count
		}
	}
	return stats, nil
}

// Profit compares approved payments since the start of this month with the
// same span at the start of the previous month.
func (s *Service) Profit(ctx context.Context) (domain.ProfitStats, error) {
	now := s.now()
	current, previous := profitWindows(now)

	cur, err := s.repo.SumApprovedAmount(ctx, current[0], current[1])
	if err != nil {
		return domain.ProfitStats{}, err
	}
	prev, err := s.repo.SumApprovedAmount(ctx, previous[0], previous[1])
	if err != nil {
		return domain.ProfitStats{}, err
	}
	return domain.ProfitStats{Current: cur, Previous: prev}, nil
}

func profitWindows(now time.Time) (current [2]time.Time, previous [2]time.Time) {
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prevStart := monthStart.AddDate(0, -1, 0)
	prevEnd := prevStart.Add(now.Sub(monthStart))
	if !prevEnd.Before(monthStart) {
		prevEnd = monthStart.Add(-time.Nanosecond)
	}
	return [2]time.Time{monthStart, now}, [2]time.Time{prevStart, prevEnd}
}
