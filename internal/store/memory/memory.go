package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

type Store struct {
	mu                 sync.RWMutex
	transactionsByID   map[string]*domain.Transaction
	ordersByID         map[string]*domain.Order
	orderByTransaction map[string]string
}

func New() *Store {
	return &Store{
		transactionsByID:   make(map[string]*domain.Transaction),
		ordersByID:         make(map[string]*domain.Order),
		orderByTransaction: make(map[string]string),
	}
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if err := store.ValidateTransaction(tx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactionsByID[tx.ID]; exists {
		return nil, store.ErrConflict
	}
	if tx.Date.IsZero() {
		tx.Date = time.Now().UTC()
	}
	s.transactionsByID[tx.ID] = cloneTransaction(&tx)
	return cloneTransaction(&tx), nil
}

func (s *Store) SaveTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if err := store.ValidateTransaction(tx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.transactionsByID[tx.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	current.ExternalID = tx.ExternalID
	current.Status = tx.Status
	current.Detail = tx.Detail
	current.Amount = tx.Amount
	current.Currency = tx.Currency
	return cloneTransaction(current), nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) TransitionTransaction(_ context.Context, id string, update domain.TransactionUpdate) (*domain.Transaction, error) {
	if _, err := domain.ToTransactionStatus(string(update.Status)); err != nil || update.Amount < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.Status == domain.TxStatusApproved {
		return nil, store.ErrTransitionRejected
	}

	tx.Status = update.Status
	tx.Detail = update.Detail
	tx.Amount = update.Amount
	tx.Currency = update.Currency
	if update.PaymentMethod != "" {
		tx.PaymentMethod = update.PaymentMethod
	}
	if update.PaymentType != "" {
		tx.PaymentType = update.PaymentType
	}
	return cloneTransaction(tx), nil
}

func (s *Store) UpdateTransactionStatus(_ context.Context, id string, status domain.TransactionStatus) (*domain.Transaction, error) {
	if _, err := domain.ToTransactionStatus(string(status)); err != nil {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.Status.IsTerminal() {
		return nil, store.ErrTransitionRejected
	}
	tx.Status = status
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if !filter.Dates.Contains(tx.Date) {
			continue
		}
		matched = append(matched, *cloneTransaction(tx))
	}

	field, desc := filter.SortField()
	slices.SortFunc(matched, func(a, b domain.Transaction) int {
		c := a.Date.Compare(b.Date)
		if field != "date" {
			c = cmp.Compare(a.Amount, b.Amount)
		}
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})
	return paginate(matched, filter.Page), nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if err := store.ValidateOrder(order); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactionsByID[order.TransactionID]; !ok {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.orderByTransaction[order.TransactionID]; exists {
		return nil, store.ErrConflict
	}
	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, store.ErrConflict
	}
	if order.Date.IsZero() {
		order.Date = time.Now().UTC()
	}
	order.Transaction = nil
	s.ordersByID[order.ID] = cloneOrder(&order)
	s.orderByTransaction[order.TransactionID] = order.ID
	return cloneOrder(&order), nil
}

func (s *Store) FindOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) FindOrderByTransaction(_ context.Context, transactionID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.orderByTransaction[transactionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(s.ordersByID[id]), nil
}

func (s *Store) UpdateOrder(_ context.Context, id string, patch domain.OrderPatch) (*domain.Order, error) {
	if err := store.ValidateOrderPatch(patch); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	updated := cloneOrder(order)
	patch.Apply(updated)
	s.ordersByID[id] = updated
	return cloneOrder(updated), nil
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.ordersByID, id)
	delete(s.orderByTransaction, order.TransactionID)
	return nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer := strings.ToLower(strings.TrimSpace(filter.Customer))
	matched := make([]domain.Order, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if !filter.Dates.Contains(order.Date) {
			continue
		}
		if customer != "" && !strings.Contains(strings.ToLower(order.Customer.Email), customer) {
			continue
		}
		matched = append(matched, *cloneOrder(order))
	}

	field, desc := filter.SortField()
	slices.SortFunc(matched, func(a, b domain.Order) int {
		c := a.Date.Compare(b.Date)
		if field != "date" {
			c = cmp.Compare(a.Total, b.Total)
		}
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})
	return paginate(matched, filter.Page), nil
}

func (s *Store) DailySales(_ context.Context, from time.Time, to time.Time) ([]domain.DailySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[time.Time]*domain.DailySales)
	for _, order := range s.ordersByID {
		if order.Status == domain.OrderStatusCancelled || !within(order.Date, from, to) {
			continue
		}
		day := truncateDay(order.Date)
		bucket, ok := byDay[day]
		if !ok {
			bucket = &domain.DailySales{Day: day}
			byDay[day] = bucket
		}
		bucket.Count++
		bucket.Total += order.Total
	}

	sales := lo.MapToSlice(byDay, func(_ time.Time, v *domain.DailySales) domain.DailySales { return *v })
	slices.SortFunc(sales, func(a, b domain.DailySales) int { return a.Day.Compare(b.Day) })
	return sales, nil
}

func (s *Store) CountOrdersByStatus(_ context.Context, from time.Time, to time.Time) ([]domain.StatusStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.OrderStatus]int)
	for _, order := range s.ordersByID {
		if within(order.Date, from, to) {
			counts[order.Status]++
		}
	}

	stats := lo.MapToSlice(counts, func(status domain.OrderStatus, count int) domain.StatusStats {
		return domain.StatusStats{Status: status, Count: count}
	})
	slices.SortFunc(stats, func(a, b domain.StatusStats) int { return strings.Compare(string(a.Status), string(b.Status)) })
	return stats, nil
}

func (s *Store) SumApprovedAmount(_ context.Context, from time.Time, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := int64(0)
	for _, tx := range s.transactionsByID {
		if tx.Status == domain.TxStatusApproved && within(tx.Date, from, to) {
			total += tx.Amount
		}
	}
	return total, nil
}

func paginate[T any](items []T, page domain.Page) []T {
	offset := max(page.Offset, 0)
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if page.Size > 0 && len(items) > page.Size {
		items = items[:page.Size]
	}
	return items
}

func within(t time.Time, from time.Time, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func cloneTransaction(tx *domain.Transaction) *domain.Transaction {
	copyTx := *tx
	return &copyTx
}

func cloneOrder(order *domain.Order) *domain.Order {
	copyOrder := *order
	copyOrder.Items = append([]domain.OrderItem(nil), order.Items...)
	if order.Transaction != nil {
		copyOrder.Transaction = cloneTransaction(order.Transaction)
	}
	return &copyOrder
}
