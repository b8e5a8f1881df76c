package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/metrics"
	"storefront/backend/internal/notify"
	"storefront/backend/internal/payment"
	"storefront/backend/internal/store"
	"storefront/backend/internal/xid"
)

const topicPayment = "payment"

// HandleNotification reconciles one payment webhook delivery. Unknown topics,
// unknown transactions and repeated deliveries are absorbed and return nil.
// Returned errors only mean the processor could not be reached; the processor
// retries the webhook on its own.
func (s *Service) HandleNotification(ctx context.Context, n domain.Notification) error {
	logger := s.logger.WithFields(log.Fields{"topic": n.Topic, "payment": n.ID})
	if n.Topic != topicPayment {
		s.metrics.RecordWebhook(metrics.WebhookIgnored)
		logger.Debug("ignoring notification topic")
		return nil
	}

	started := time.Now()
	pay, err := s.processor.FindPaymentByID(ctx, n.ID)
	s.metrics.ObserveProcessorCall("find_payment", started)
	if err != nil {
		s.metrics.RecordWebhook(metrics.WebhookFailed)
		return fmt.Errorf("lookup payment %s: %w", n.ID, err)
	}
	logger = logger.WithFields(log.Fields{"transaction": pay.ExternalReference, "status": pay.Status})

	var status domain.TransactionStatus
	switch pay.Status {
	case payment.StatusApproved:
		status = domain.TxStatusApproved
	case payment.StatusRejected:
		status = domain.TxStatusRejected
	default:
		s.metrics.RecordWebhook(metrics.WebhookIntermediate)
		logger.Info("payment in intermediate status, nothing to do")
		return nil
	}

	tx, err := s.repo.TransitionTransaction(ctx, pay.ExternalReference, domain.TransactionUpdate{
		Status:        status,
		Detail:        pay.StatusDetail,
		Amount:        pay.PaidAmount(),
		Currency:      pay.CurrencyID,
		PaymentMethod: pay.PaymentMethodID,
		PaymentType:   pay.PaymentTypeID,
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.metrics.RecordWebhook(metrics.WebhookUnknown)
		logger.Warn("notification for unknown transaction")
		return nil
	case errors.Is(err, store.ErrTransitionRejected):
		return s.handleRedelivery(ctx, logger, pay.ExternalReference)
	case err != nil:
		s.metrics.RecordWebhook(metrics.WebhookFailed)
		return fmt.Errorf("transition transaction %s: %w", pay.ExternalReference, err)
	}

	if status == domain.TxStatusRejected {
		s.metrics.RecordWebhook(metrics.WebhookRejected)
		logger.Info("payment rejected")
		return nil
	}

	s.metrics.RecordWebhook(metrics.WebhookApproved)
	logger.Info("payment approved")
	return s.materializeOrder(ctx, logger, *tx)
}

// handleRedelivery runs for a transaction that was already approved. It only
// acts when an earlier delivery approved the transaction but failed before
// the order was stored.
func (s *Service) handleRedelivery(ctx context.Context, logger log.FieldLogger, txID string) error {
	_, err := s.repo.FindOrderByTransaction(ctx, txID)
	if err == nil {
		s.metrics.RecordWebhook(metrics.WebhookDuplicate)
		logger.Debug("transaction already approved, ignoring redelivery")
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("lookup order for %s: %w", txID, err)
	}

	tx, err := s.repo.FindTransactionByID(ctx, txID)
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", txID, err)
	}
	logger.Warn("approved transaction has no order, creating it")
	return s.materializeOrder(ctx, logger, *tx)
}

// materializeOrder builds the order from the preference the buyer paid. The
// store allows one order per transaction, so a concurrent duplicate is dropped.
func (s *Service) materializeOrder(ctx context.Context, logger log.FieldLogger, tx domain.Transaction) error {
	started := time.Now()
	pref, err := s.processor.FindPreferenceByID(ctx, tx.ExternalID)
	s.metrics.ObserveProcessorCall("find_preference", started)
	if err != nil {
		s.metrics.RecordWebhook(metrics.WebhookFailed)
		return fmt.Errorf("lookup preference %s: %w", tx.ExternalID, err)
	}

	order, err := s.repo.CreateOrder(ctx, orderFromPreference(pref, tx, s.now()))
	if errors.Is(err, store.ErrConflict) {
		logger.Info("order already created by another delivery")
		return nil
	}
	if err != nil {
		return fmt.Errorf("create order for %s: %w", tx.ID, err)
	}
	s.metrics.RecordOrderCreated("webhook")
	logger.WithField("order", order.ID).Info("order created")

	s.notifyOrder(*order, notify.TemplateOrderConfirmed)
	return nil
}

func orderFromPreference(pref payment.Preference, tx domain.Transaction, now time.Time) domain.Order {
	info := payment.DecodeAdditionalInfo(pref.AdditionalInfo)

	shipment := domain.Shipment{
		Name:   info.ReceiverName,
		Phone:  info.ReceiverPhone,
		Pickup: pref.Shipments == nil,
	}
	if pref.Shipments != nil {
		addr := pref.Shipments.ReceiverAddress
		shipment.Cost = int64(pref.Shipments.Cost)
		shipment.Address = domain.Address{
			Street:    addr.StreetName,
			Number:    string(addr.StreetNumber),
			Apartment: addr.Apartment,
			Zip:       addr.ZipCode,
			City:      addr.CityName,
			State:     addr.StateName,
		}
	}

	email := pref.Payer.Email
	if email == "" {
		email = tx.Email
	}

	return domain.Order{
		ID:     xid.New(),
		Number: xid.OrderNumber(),
		Items: lo.Map(pref.Items, func(item payment.Item, _ int) domain.OrderItem {
			return domain.OrderItem{
				ID:       item.ID,
				Name:     item.Title,
				Image:    item.PictureURL,
				Quantity: item.Quantity,
				Price:    int64(item.UnitPrice),
				Currency: item.CurrencyID,
			}
		}),
		Customer: domain.Customer{
			Email:          email,
			Name:           pref.Payer.Name,
			Identification: pref.Payer.Identification.Number,
			Address:        tx.Payer.Address,
		},
		Shipment:      shipment,
		Date:          now,
		TransactionID: tx.ID,
		Total:         tx.Amount,
		Status:        domain.OrderStatusNew,
		Comment:       info.Comment,
	}
}
