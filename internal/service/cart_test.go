package service

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/backend/internal/catalog"
	"storefront/backend/internal/domain"
)

func TestAddThenRemoveRestoresCart(t *testing.T) {
	before := []domain.CartLine{{ItemID: itemA, Quantity: 2}, {ItemID: itemB, Quantity: 1}}

	for _, id := range []string{itemA, itemB, "C"} {
		cart := append([]domain.CartLine(nil), before...)
		cart = RemoveItem(AddItem(cart, id), id)
		if diff := cmp.Diff(before, cart); diff != "" {
			t.Errorf("add/remove %s changed cart (-want +got):\n%s", id, diff)
		}
	}
}

func TestAddAndRemoveNTimes(t *testing.T) {
	const n = 5
	var cart []domain.CartLine
	for range n {
		cart = AddItem(cart, itemA)
	}
	require.Len(t, cart, 1)
	assert.Equal(t, n, cart[0].Quantity)

	for range n {
		cart = RemoveItem(cart, itemA)
	}
	assert.Empty(t, cart)

	assert.Empty(t, RemoveItem(cart, itemA))
}

func TestCartPricingExamples(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, itemA, itemA)

	view, err := f.svc.SetShipping(ctx, sessionID, 1001)
	require.NoError(t, err)
	assert.Equal(t, domain.PriceBreakdown{Subtotal: 200, Shipping: 300, Discount: 0, Total: 500, Currency: "ARS"}, view.Breakdown)
	require.NotNil(t, view.Address)
	assert.Equal(t, "CABA", view.Address.Area)

	view, err = f.svc.SetBankTransfer(ctx, sessionID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.PriceBreakdown{Subtotal: 200, Shipping: 300, Discount: 20, Total: 480, Currency: "ARS"}, view.Breakdown)

	again, err := f.svc.Cart(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, view.Breakdown, again.Breakdown)
	require.Len(t, again.Items, 1)
	assert.Equal(t, domain.PricedItem{ID: itemA, Name: "Lámpara", Image: "https://img.test/a.jpg", Quantity: 2, Currency: "ARS", Price: 100}, again.Items[0])
}

func TestCartPricesAreLive(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, itemA)

	f.catalog.Put(domain.CatalogItem{ID: itemA, Name: "Lámpara", Price: 150, Currency: "ARS"})
	view, err := f.svc.Cart(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), view.Breakdown.Subtotal)

	f.catalog.Delete(itemA)
	view, err = f.svc.Cart(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Zero(t, view.Breakdown.Total)
}

func TestSetShippingUnknownZipLeavesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, itemA)
	_, err := f.svc.SetShipping(ctx, sessionID, 1001)
	require.NoError(t, err)
	before, err := f.sessions.Load(ctx, sessionID)
	require.NoError(t, err)

	_, err = f.svc.SetShipping(ctx, sessionID, 99999)
	require.ErrorIs(t, err, ErrShippingNotFound)

	after, err := f.sessions.Load(ctx, sessionID)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("session changed (-before +after):\n%s", diff)
	}
}

func TestSetShippingZeroResets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, itemB)
	_, err := f.svc.SetShipping(ctx, sessionID, 1001)
	require.NoError(t, err)

	view, err := f.svc.SetShipping(ctx, sessionID, 0)
	require.NoError(t, err)
	assert.Nil(t, view.Address)
	assert.Zero(t, view.Breakdown.Shipping)
	assert.Equal(t, int64(250), view.Breakdown.Total)
}

func TestSetBankTransferKeepsCartAndFees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, itemA, itemB)
	_, err := f.svc.SetShipping(ctx, sessionID, 1001)
	require.NoError(t, err)

	_, err = f.svc.SetBankTransfer(ctx, sessionID, true)
	require.NoError(t, err)

	state, err := f.sessions.Load(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, state.BankTransfer)
	assert.Equal(t, int64(300), state.Fees.Shipping)
	assert.Len(t, state.Cart, 2)
}

func TestCatalogFailurePricesEmpty(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t, itemA)
	f.svc.catalog = failingCatalog{}

	view, err := f.svc.Cart(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Zero(t, view.Breakdown.Subtotal)
}

func TestCartTokenEncodesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t, itemA)
	view, err := f.svc.SetBankTransfer(ctx, sessionID, true)
	require.NoError(t, err)
	require.NotEmpty(t, view.Token)

	decoded, err := f.tokens.Parse(view.Token)
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{{ItemID: itemA, Quantity: 1}}, decoded.Cart)
	assert.True(t, decoded.BankTransfer)
}

func TestEmptySessionView(t *testing.T) {
	f := newFixture(t)
	f.svc.catalog = catalog.NewMemory()

	view, err := f.svc.Cart(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Equal(t, "ARS", view.Breakdown.Currency)
}
