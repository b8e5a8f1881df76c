package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/notify"
	"storefront/backend/internal/payment"
	"storefront/backend/internal/pricing"
	"storefront/backend/internal/xid"
)

const (
	detailWaitingBankTransfer = "waiting for bank transfer"
	detailWaitingUser         = "waiting for user"
)

// StartCheckout snapshots the session cart into a transaction and returns
// where the buyer must go next: the processor's checkout page, or the
// storefront's pending page for bank transfers.
func (s *Service) StartCheckout(ctx context.Context, sessionID string, buyer domain.BuyerInfo) (string, error) {
	buyer.Email = strings.TrimSpace(buyer.Email)
	if buyer.Email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidBuyer)
	}

	state, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	breakdown, items := s.priceCart(ctx, state)
	if len(items) == 0 {
		return "", ErrEmptyCart
	}

	shippingCost := state.Fees.Shipping
	if buyer.Shipment.Pickup {
		shippingCost = 0
	}

	tx, err := s.repo.CreateTransaction(ctx, domain.Transaction{
		ID:       xid.New(),
		Status:   domain.TxStatusDraft,
		Date:     s.now(),
		Email:    buyer.Email,
		Payer:    buyer.Payer,
		Amount:   breakdown.Subtotal + shippingCost,
		Currency: breakdown.Currency,
	})
	if err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}

	logger := s.logger.WithFields(log.Fields{"transaction": tx.ID, "method": buyer.PaymentMethod})
	if buyer.PaymentMethod == PaymentMethodBankTransfer {
		return s.startBankTransfer(ctx, logger, *tx, buyer, items, shippingCost)
	}
	return s.startProcessorCheckout(ctx, logger, *tx, buyer, items, shippingCost)
}

func (s *Service) startBankTransfer(ctx context.Context, logger log.FieldLogger, tx domain.Transaction, buyer domain.BuyerInfo, items []domain.PricedItem, shippingCost int64) (string, error) {
	s.metrics.RecordCheckoutStarted("bank_transfer")

	amount := pricing.DiscountedSubtotal(pricing.Subtotal(items), s.pricer.DiscountRate()) + shippingCost

	// The order is written before the transaction leaves draft.
	order, err := s.repo.CreateOrder(ctx, domain.Order{
		ID:     xid.New(),
		Number: xid.OrderNumber(),
		Items:  orderItems(items),
		Customer: domain.Customer{
			Email:          buyer.Email,
			Name:           buyer.Payer.Name,
			Phone:          buyer.Payer.Phone,
			Identification: buyer.Payer.Identification,
			Address:        buyer.Payer.Address,
		},
		Shipment: domain.Shipment{
			Cost:    shippingCost,
			Name:    buyer.Shipment.Name,
			Phone:   buyer.Shipment.Phone,
			Pickup:  buyer.Shipment.Pickup,
			Address: buyer.Shipment.Address,
		},
		Date:          s.now(),
		TransactionID: tx.ID,
		Total:         amount,
		Status:        domain.OrderStatusNew,
		Comment:       buyer.Comment,
	})
	if err != nil {
		logger.WithError(err).Error("bank transfer order not stored, transaction left in draft")
		return "", fmt.Errorf("create order: %w", err)
	}

	tx.Status = domain.TxStatusPending
	tx.Detail = detailWaitingBankTransfer
	tx.Amount = amount
	tx.Currency = s.cfg.Currency
	if _, err := s.repo.SaveTransaction(ctx, tx); err != nil {
		entry := logger.WithError(err).WithField("order", order.ID)
		if derr := s.repo.DeleteOrder(ctx, order.ID); derr != nil {
			entry.WithField("cleanup_error", derr.Error()).Error("bank transfer transaction not saved and its order could not be removed")
		} else {
			entry.Error("bank transfer transaction not saved, order removed")
		}
		return "", fmt.Errorf("save transaction: %w", err)
	}
	s.metrics.RecordOrderCreated("bank_transfer")
	logger.WithField("order", order.ID).Info("bank transfer order created")

	s.notifyOrder(*order, notify.TemplateOrderPending)

	return fmt.Sprintf("%s/checkout/pending?external_reference=%s", s.cfg.SiteURL, url.QueryEscape(tx.ID)), nil
}

func (s *Service) startProcessorCheckout(ctx context.Context, logger log.FieldLogger, tx domain.Transaction, buyer domain.BuyerInfo, items []domain.PricedItem, shippingCost int64) (string, error) {
	s.metrics.RecordCheckoutStarted("processor")

	started := time.Now()
	pref, err := s.processor.CreatePreference(ctx, s.buildPreference(tx, buyer, items, shippingCost))
	s.metrics.ObserveProcessorCall("create_preference", started)
	if err == nil && pref.CheckoutURL() == "" {
		err = fmt.Errorf("preference %q has no checkout url", pref.ID)
	}
	if err != nil {
		s.metrics.RecordCheckoutFailed()
		logger.WithError(err).Error("payment processor rejected checkout, transaction left in draft")
		return "", fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	tx.ExternalID = pref.ID
	tx.Status = domain.TxStatusCreated
	tx.Detail = detailWaitingUser
	if _, err := s.repo.SaveTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("save transaction: %w", err)
	}
	logger.WithField("preference", pref.ID).Info("payment preference created")

	return pref.CheckoutURL(), nil
}

func (s *Service) buildPreference(tx domain.Transaction, buyer domain.BuyerInfo, items []domain.PricedItem, shippingCost int64) payment.Preference {
	pref := payment.Preference{
		Items: lo.Map(items, func(item domain.PricedItem, _ int) payment.Item {
			return payment.Item{
				ID:         item.ID,
				Title:      item.Name,
				UnitPrice:  payment.Amount(item.Price),
				CurrencyID: item.Currency,
				Quantity:   item.Quantity,
				PictureURL: item.Image,
			}
		}),
		Payer: payment.Payer{
			Email:          buyer.Email,
			Name:           buyer.Payer.Name,
			Identification: payment.Identification{Number: buyer.Payer.Identification},
		},
		AdditionalInfo:    payment.AdditionalInfo{Comment: buyer.Comment}.Encode(),
		ExternalReference: tx.ID,
		AutoReturn:        "all",
		BackURLs: payment.BackURLs{
			Success: s.cfg.SiteURL + "/checkout/success",
			Pending: s.cfg.SiteURL + "/checkout/pending",
			Failure: s.cfg.SiteURL + "/checkout/failure",
		},
	}
	if s.cfg.PublicURL != "" {
		pref.NotificationURL = s.cfg.PublicURL + "/notification"
	}

	if !buyer.Shipment.Pickup {
		addr := buyer.Shipment.Address
		pref.Shipments = &payment.Shipments{
			Mode: "not_specified",
			Cost: payment.Amount(shippingCost),
			ReceiverAddress: payment.ReceiverAddress{
				ZipCode:      addr.Zip,
				StreetName:   addr.Street,
				StreetNumber: payment.StreetNumber(strings.TrimSpace(addr.Number)),
				Apartment:    addr.Apartment,
				CityName:     addr.City,
				StateName:    addr.State,
			},
		}
		pref.AdditionalInfo = payment.AdditionalInfo{
			ReceiverName:  buyer.Shipment.Name,
			ReceiverPhone: buyer.Shipment.Phone,
			Comment:       buyer.Comment,
		}.Encode()
	}
	return pref
}

func orderItems(items []domain.PricedItem) []domain.OrderItem {
	return lo.Map(items, func(item domain.PricedItem, _ int) domain.OrderItem {
		return domain.OrderItem{
			ID:       item.ID,
			Name:     item.Name,
			Image:    item.Image,
			Quantity: item.Quantity,
			Price:    item.Price,
			Currency: item.Currency,
		}
	})
}

// notifyOrder tells the customer with customerTemplate and the shop with
// orderIncoming. Delivery happens after this returns.
func (s *Service) notifyOrder(order domain.Order, customerTemplate string) {
	raw, err := json.Marshal(order)
	if err != nil {
		s.logger.WithError(err).WithField("order", order.ID).Warn("failed to encode order for notification")
		return
	}
	data := map[string]any{"order": string(raw)}
	s.notify(
		notify.Message{To: order.Customer.Email, Template: customerTemplate, Data: data},
		notify.Message{To: s.cfg.NotificationEmail, Template: notify.TemplateOrderIncoming, Data: data},
	)
}
