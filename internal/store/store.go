package store

import (
	"context"
	"errors"
	"time"

	"storefront/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransitionRejected is returned by TransitionTransaction when the
	// transaction is already approved, and by UpdateTransactionStatus when it
	// is approved or rejected.
	ErrTransitionRejected = errors.New("transaction transition rejected")
	// ErrConflict is returned when an order already exists for a transaction.
	ErrConflict = errors.New("conflict")
)

type Repository interface {
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	// SaveTransaction overwrites the checkout-owned fields of an existing
	// transaction (external id, status, detail, amount, currency).
	SaveTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	// TransitionTransaction applies update only if the stored status is not
	// approved. The check and the write are one atomic step.
	TransitionTransaction(ctx context.Context, id string, update domain.TransactionUpdate) (*domain.Transaction, error)
	// UpdateTransactionStatus leaves approved and rejected transactions
	// untouched.
	UpdateTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	FindOrderByID(ctx context.Context, id string) (*domain.Order, error)
	FindOrderByTransaction(ctx context.Context, transactionID string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)

	// DailySales groups non-cancelled orders dated within [from, to] by UTC day.
	DailySales(ctx context.Context, from time.Time, to time.Time) ([]domain.DailySales, error)
	CountOrdersByStatus(ctx context.Context, from time.Time, to time.Time) ([]domain.StatusStats, error)
	SumApprovedAmount(ctx context.Context, from time.Time, to time.Time) (int64, error)
}

// ValidateOrder checks the fields every store requires before persisting.
func ValidateOrder(order domain.Order) error {
	if order.ID == "" || order.TransactionID == "" {
		return ErrInvalidInput
	}
	if order.Total < 0 {
		return ErrInvalidInput
	}
	if _, err := domain.ToOrderStatus(string(order.Status)); err != nil {
		return ErrInvalidInput
	}
	return nil
}

// ValidateOrderPatch rejects an empty patch or an unknown status.
func ValidateOrderPatch(patch domain.OrderPatch) error {
	if patch.IsEmpty() {
		return ErrInvalidInput
	}
	if patch.Status != nil {
		if _, err := domain.ToOrderStatus(string(*patch.Status)); err != nil {
			return ErrInvalidInput
		}
	}
	return nil
}

func ValidateTransaction(tx domain.Transaction) error {
	if tx.ID == "" || tx.Amount < 0 {
		return ErrInvalidInput
	}
	if _, err := domain.ToTransactionStatus(string(tx.Status)); err != nil {
		return ErrInvalidInput
	}
	return nil
}
