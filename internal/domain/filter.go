package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// DateRange is inclusive on whole days: From starts at 00:00:00 and To ends at
// 23:59:59 of the given day.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// ParseDateRange builds a DateRange from YYYY-MM-DD strings. Empty strings
// leave the corresponding bound open.
func ParseDateRange(from string, to string) (DateRange, error) {
	var r DateRange
	if from = strings.TrimSpace(from); from != "" {
		t, err := time.ParseInLocation(dateLayout, from, time.UTC)
		if err != nil {
			return DateRange{}, fmt.Errorf("dateFrom: %w", err)
		}
		r.From = &t
	}
	if to = strings.TrimSpace(to); to != "" {
		t, err := time.ParseInLocation(dateLayout, to, time.UTC)
		if err != nil {
			return DateRange{}, fmt.Errorf("dateTo: %w", err)
		}
		end := t.Add(24*time.Hour - time.Second)
		r.To = &end
	}
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return DateRange{}, errors.New("dateTo is before dateFrom")
	}
	return r, nil
}

func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

type Page struct {
	Offset int
	Size   int
	// Sort is a field name optionally prefixed with "-" for descending order.
	Sort string
}

type OrderFilter struct {
	Page
	Dates    DateRange
	Status   OrderStatus
	Customer string
}

type TransactionFilter struct {
	Page
	Dates  DateRange
	Status TransactionStatus
}

var sortableFields = map[string]struct{}{
	"date":   {},
	"total":  {},
	"amount": {},
}

// SortField splits Sort into its field and direction, falling back to newest
// first for unknown fields.
func (p Page) SortField() (field string, desc bool) {
	sort := strings.TrimSpace(p.Sort)
	if sort == "" {
		return "date", true
	}
	desc = strings.HasPrefix(sort, "-")
	field = strings.TrimPrefix(sort, "-")
	if _, ok := sortableFields[field]; !ok {
		return "date", true
	}
	return field, desc
}
