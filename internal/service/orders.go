package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
	"storefront/backend/internal/xid"
)

// GetOrder returns the order together with its transaction, when it exists.
func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.FindOrderByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	tx, err := s.repo.FindTransactionByID(ctx, order.TransactionID)
	switch {
	case err == nil:
		order.Transaction = tx
	case !errors.Is(err, store.ErrNotFound):
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	filter.Page = s.page(filter.Page)
	return s.repo.ListOrders(ctx, filter)
}

// ManualOrder is an order an administrator records outside of checkout,
// such as a sale taken over the phone.
type ManualOrder struct {
	Items    []domain.OrderItem `json:"items"`
	Customer domain.Customer    `json:"customer"`
	Shipment domain.Shipment    `json:"shipment"`
	Comment  string             `json:"comment"`
}

const detailManualOrder = "manual order"

// CreateManualOrder stores a pending transaction for the order total and the
// order pointing at it. No notification is sent.
func (s *Service) CreateManualOrder(ctx context.Context, in ManualOrder) (domain.Order, error) {
	in.Customer.Email = strings.TrimSpace(in.Customer.Email)
	if in.Customer.Email == "" {
		return domain.Order{}, fmt.Errorf("%w: customer email is required", ErrInvalidBuyer)
	}
	if len(in.Items) == 0 {
		return domain.Order{}, ErrEmptyCart
	}
	var total int64
	for i, item := range in.Items {
		if item.Quantity <= 0 || item.Price < 0 {
			return domain.Order{}, fmt.Errorf("%w: item %d has an invalid quantity or price", store.ErrInvalidInput, i)
		}
		if item.Currency == "" {
			in.Items[i].Currency = s.cfg.Currency
		}
		total += item.Price * int64(item.Quantity)
	}
	if in.Shipment.Cost < 0 {
		return domain.Order{}, fmt.Errorf("%w: negative shipment cost", store.ErrInvalidInput)
	}
	total += in.Shipment.Cost

	now := s.now()
	tx, err := s.repo.CreateTransaction(ctx, domain.Transaction{
		ID:       xid.New(),
		Status:   domain.TxStatusPending,
		Detail:   detailManualOrder,
		Date:     now,
		Email:    in.Customer.Email,
		Payer:    domain.Payer{Name: in.Customer.Name, Phone: in.Customer.Phone, Identification: in.Customer.Identification, Address: in.Customer.Address},
		Amount:   total,
		Currency: s.cfg.Currency,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("create transaction: %w", err)
	}

	order, err := s.repo.CreateOrder(ctx, domain.Order{
		ID:            xid.New(),
		Number:        xid.OrderNumber(),
		Items:         in.Items,
		Customer:      in.Customer,
		Shipment:      in.Shipment,
		Date:          now,
		TransactionID: tx.ID,
		Total:         total,
		Status:        domain.OrderStatusNew,
		Comment:       in.Comment,
	})
	if err != nil {
		s.logger.WithError(err).WithField("transaction", tx.ID).Error("manual order not stored, transaction left pending")
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	s.metrics.RecordOrderCreated("manual")
	s.logger.WithFields(log.Fields{"order": order.ID, "transaction": tx.ID}).Info("manual order created")

	order.Transaction = tx
	return *order, nil
}

func (s *Service) UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (domain.Order, error) {
	if patch.IsEmpty() {
		return domain.Order{}, fmt.Errorf("%w: nothing to update", store.ErrInvalidInput)
	}
	if patch.Status != nil {
		st, err := domain.ToOrderStatus(string(*patch.Status))
		if err != nil {
			return domain.Order{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
		}
		patch.Status = &st
	}
	if _, err := s.repo.UpdateOrder(ctx, id, patch); err != nil {
		return domain.Order{}, err
	}
	return s.GetOrder(ctx, id)
}

// DeleteOrder removes the order. Its transaction is kept for the records.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("order", id).Info("order deleted")
	return nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.repo.FindTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	filter.Page = s.page(filter.Page)
	return s.repo.ListTransactions(ctx, filter)
}

// UpdateTransaction is the administrative override. Approved and rejected
// are reserved for the payment webhook, and a transaction in either status
// cannot be reopened.
func (s *Service) UpdateTransaction(ctx context.Context, id string, status string) (domain.Transaction, error) {
	st, err := domain.ToTransactionStatus(status)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if st.IsTerminal() {
		return domain.Transaction{}, ErrStatusNotAllowed
	}
	tx, err := s.repo.UpdateTransactionStatus(ctx, id, st)
	if errors.Is(err, store.ErrTransitionRejected) {
		return domain.Transaction{}, fmt.Errorf("%w: transaction %s is settled", ErrStatusNotAllowed, id)
	}
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) page(p domain.Page) domain.Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Size <= 0 {
		p.Size = s.cfg.PageSize
	}
	return p
}
