package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/notify"
	"storefront/backend/internal/payment"
)

func TestStartCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.StartCheckout(context.Background(), sessionID, buyer())
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, f.transactions(t))
}

func TestStartCheckoutRequiresEmail(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, itemA)

	b := buyer()
	b.Email = "  "
	_, err := f.svc.StartCheckout(context.Background(), sessionID, b)
	require.ErrorIs(t, err, ErrInvalidBuyer)
}

func TestStartCheckoutBankTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, itemA, itemA)
	_, err := f.svc.SetShipping(ctx, sessionID, 1001)
	require.NoError(t, err)

	b := buyer()
	b.PaymentMethod = PaymentMethodBankTransfer
	redirect, err := f.svc.StartCheckout(ctx, sessionID, b)
	require.NoError(t, err)

	txs := f.transactions(t)
	require.Len(t, txs, 1)
	tx := txs[0]
	assert.Equal(t, "https://shop.test/checkout/pending?external_reference="+tx.ID, redirect)
	assert.Equal(t, domain.TxStatusPending, tx.Status)
	assert.Equal(t, "waiting for bank transfer", tx.Detail)
	assert.Equal(t, int64(480), tx.Amount)
	assert.Equal(t, "ARS", tx.Currency)
	assert.Empty(t, f.processor.created)

	orders := f.orders(t)
	require.Len(t, orders, 1)
	order := orders[0]
	assert.Equal(t, tx.ID, order.TransactionID)
	assert.Equal(t, domain.OrderStatusNew, order.Status)
	assert.Equal(t, int64(480), order.Total)
	assert.Equal(t, int64(300), order.Shipment.Cost)
	assert.Equal(t, "buyer@example.com", order.Customer.Email)
	assert.Equal(t, "30111222", order.Customer.Identification)
	assert.Equal(t, "ring twice", order.Comment)
	assert.Equal(t, []domain.OrderItem{{ID: itemA, Name: "Lámpara", Image: "https://img.test/a.jpg", Quantity: 2, Price: 100, Currency: "ARS"}}, order.Items)

	sent := f.sent()
	require.Len(t, sent, 2)
	byTemplate := map[string]string{}
	for _, m := range sent {
		byTemplate[m.Template] = m.To
		assert.Contains(t, m.Data["order"], order.ID)
	}
	assert.Equal(t, map[string]string{
		notify.TemplateOrderPending:  "buyer@example.com",
		notify.TemplateOrderIncoming: opsEmail,
	}, byTemplate)
}

func bankTransferBuyer() domain.BuyerInfo {
	b := buyer()
	b.PaymentMethod = PaymentMethodBankTransfer
	return b
}

func TestStartCheckoutBankTransferOrderFailureKeepsDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, itemA, itemA)
	f.svc.repo = &faultyRepo{Repository: f.repo, createOrderErr: errors.New("disk full")}

	_, err := f.svc.StartCheckout(ctx, sessionID, bankTransferBuyer())
	require.Error(t, err)

	txs := f.transactions(t)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TxStatusDraft, txs[0].Status)
	assert.Empty(t, f.orders(t))
	assert.Empty(t, f.sent())
}

func TestStartCheckoutBankTransferSaveFailureRemovesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, itemA, itemA)
	f.svc.repo = &faultyRepo{Repository: f.repo, saveTxErr: errors.New("connection reset")}

	_, err := f.svc.StartCheckout(ctx, sessionID, bankTransferBuyer())
	require.Error(t, err)

	txs := f.transactions(t)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TxStatusDraft, txs[0].Status)
	assert.Empty(t, f.orders(t))
	assert.Empty(t, f.sent())
}

func TestStartCheckoutBankTransferPickupSkipsShipping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, itemA, itemA)
	_, err := f.svc.SetShipping(ctx, sessionID, 1001)
	require.NoError(t, err)

	b := buyer()
	b.PaymentMethod = PaymentMethodBankTransfer
	b.Shipment.Pickup = true
	_, err = f.svc.StartCheckout(ctx, sessionID, b)
	require.NoError(t, err)

	txs := f.transactions(t)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(180), txs[0].Amount)
}

func TestStartCheckoutNotificationFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.mail.err = errors.New("relay down")
	f.fillCart(t, itemB)

	b := buyer()
	b.PaymentMethod = PaymentMethodBankTransfer
	_, err := f.svc.StartCheckout(context.Background(), sessionID, b)
	require.NoError(t, err)

	assert.Len(t, f.sent(), 2)
	assert.Len(t, f.orders(t), 1)
}

func TestStartCheckoutProcessor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, itemA, itemA, itemB)
	_, err := f.svc.SetShipping(ctx, sessionID, 1001)
	require.NoError(t, err)

	redirect, err := f.svc.StartCheckout(ctx, sessionID, buyer())
	require.NoError(t, err)
	assert.Equal(t, "https://pay.test/checkout?pref_id=pref-1", redirect)

	txs := f.transactions(t)
	require.Len(t, txs, 1)
	tx := txs[0]
	assert.Equal(t, domain.TxStatusCreated, tx.Status)
	assert.Equal(t, "waiting for user", tx.Detail)
	assert.Equal(t, "pref-1", tx.ExternalID)
	assert.Empty(t, f.orders(t))

	require.Len(t, f.processor.created, 1)
	pref := f.processor.created[0]
	assert.Equal(t, tx.ID, pref.ExternalReference)
	assert.Equal(t, "https://api.shop.test/notification", pref.NotificationURL)
	assert.Equal(t, "all", pref.AutoReturn)
	assert.Equal(t, payment.BackURLs{
		Success: "https://shop.test/checkout/success",
		Pending: "https://shop.test/checkout/pending",
		Failure: "https://shop.test/checkout/failure",
	}, pref.BackURLs)
	assert.Equal(t, []payment.Item{
		{ID: itemA, Title: "Lámpara", UnitPrice: 100, CurrencyID: "ARS", Quantity: 2, PictureURL: "https://img.test/a.jpg"},
		{ID: itemB, Title: "Velador", UnitPrice: 250, CurrencyID: "ARS", Quantity: 1, PictureURL: "https://img.test/b.jpg"},
	}, pref.Items)
	assert.Equal(t, "buyer@example.com", pref.Payer.Email)
	assert.Equal(t, "30111222", pref.Payer.Identification.Number)

	require.NotNil(t, pref.Shipments)
	assert.Equal(t, payment.Amount(300), pref.Shipments.Cost)
	assert.Equal(t, payment.ReceiverAddress{
		ZipCode: "1001", StreetName: "Av. Corrientes", StreetNumber: "1234",
		Apartment: "4B", CityName: "CABA", StateName: "Buenos Aires",
	}, pref.Shipments.ReceiverAddress)
	assert.Equal(t, payment.AdditionalInfo{ReceiverName: "Juan Badano", ReceiverPhone: "1155550000", Comment: "ring twice"},
		payment.DecodeAdditionalInfo(pref.AdditionalInfo))

	assert.Empty(t, f.sent())
}

func TestStartCheckoutProcessorPickupOmitsShipments(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, itemA)

	b := buyer()
	b.Shipment.Pickup = true
	_, err := f.svc.StartCheckout(context.Background(), sessionID, b)
	require.NoError(t, err)

	require.Len(t, f.processor.created, 1)
	pref := f.processor.created[0]
	assert.Nil(t, pref.Shipments)
	assert.Equal(t, payment.AdditionalInfo{Comment: "ring twice"}, payment.DecodeAdditionalInfo(pref.AdditionalInfo))
}

func TestStartCheckoutProcessorFailureLeavesDraft(t *testing.T) {
	f := newFixture(t)
	f.processor.createErr = errors.New("503 from processor")
	f.fillCart(t, itemA)

	_, err := f.svc.StartCheckout(context.Background(), sessionID, buyer())
	require.ErrorIs(t, err, ErrCheckoutUnavailable)

	txs := f.transactions(t)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TxStatusDraft, txs[0].Status)
	assert.Empty(t, txs[0].ExternalID)
	assert.Empty(t, f.orders(t))
}
