package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"storefront/backend/internal/catalog"
	"storefront/backend/internal/domain"
	"storefront/backend/internal/notify"
	"storefront/backend/internal/payment"
	"storefront/backend/internal/service"
	"storefront/backend/internal/session"
	"storefront/backend/internal/store/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const adminToken = "s3cret-admin-token"

type stubProcessor struct {
	mu        sync.Mutex
	prefs     map[string]payment.Preference
	payments  map[string]payment.Payment
	createErr error
}

func (p *stubProcessor) CreatePreference(_ context.Context, pref payment.Preference) (payment.Preference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return payment.Preference{}, p.createErr
	}
	pref.ID = fmt.Sprintf("pref-%d", len(p.prefs)+1)
	pref.InitPoint = "https://pay.test/" + pref.ID
	p.prefs[pref.ID] = pref
	return pref, nil
}

func (p *stubProcessor) FindPreferenceByID(_ context.Context, id string) (payment.Preference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pref, ok := p.prefs[id]
	if !ok {
		return payment.Preference{}, payment.ErrNotFound
	}
	return pref, nil
}

func (p *stubProcessor) FindPaymentByID(_ context.Context, id string) (payment.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pay, ok := p.payments[id]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	return pay, nil
}

type testAPI struct {
	api       *API
	handler   http.Handler
	repo      *memory.Store
	processor *stubProcessor
}

func newTestAPI(t *testing.T, token string) *testAPI {
	t.Helper()

	logger := log.New()
	logger.SetOutput(io.Discard)

	repo := memory.New()
	processor := &stubProcessor{prefs: map[string]payment.Preference{}, payments: map[string]payment.Payment{}}
	notifier := notify.NewSideChannel(notify.NewLogDispatcher(logger), logger, time.Second)
	t.Cleanup(notifier.Close)

	svc := service.New(service.Config{
		DiscountRate:      decimal.RequireFromString("0.1"),
		Currency:          "ARS",
		NotificationEmail: "ops@shop.test",
		SiteURL:           "https://shop.test",
		PublicURL:         "https://api.shop.test",
	}, service.Deps{
		Repo: repo,
		Catalog: catalog.NewMemory(
			domain.CatalogItem{ID: "A", Name: "Lámpara", Price: 100, Currency: "ARS"},
		),
		Sessions:  session.NewMemory(),
		Processor: processor,
		Notifier:  notifier,
		Logger:    logger,
	})

	guard, err := NewAdminGuard(token)
	require.NoError(t, err)

	api := New(svc, guard, Options{AllowedOrigin: "https://shop.test", Logger: logger})
	return &testAPI{api: api, handler: api.Handler(), repo: repo, processor: processor}
}

func (ta *testAPI) do(t *testing.T, method string, path string, body any, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	return rec
}

func withSession(id string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: sessionCookie, Value: id})
	}
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	ta := newTestAPI(t, adminToken)

	rec := ta.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["ok"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	ta := newTestAPI(t, adminToken)

	rec := ta.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCartIssuesSessionCookie(t *testing.T) {
	ta := newTestAPI(t, adminToken)

	rec := ta.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	again := ta.do(t, http.MethodGet, "/api/v1/cart", nil, withSession(cookies[0].Value))
	assert.Empty(t, again.Result().Cookies())
}

func TestCartFlow(t *testing.T) {
	ta := newTestAPI(t, adminToken)
	sid := withSession("browser-1")

	for range 2 {
		rec := ta.do(t, http.MethodPost, "/api/v1/cart/items/A", nil, sid)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := ta.do(t, http.MethodPut, "/api/v1/cart/shipping", map[string]int{"zip": 1001}, sid)
	require.Equal(t, http.StatusOK, rec.Code)

	view := decode[domain.CartView](t, rec)
	assert.Equal(t, domain.PriceBreakdown{Subtotal: 200, Shipping: 300, Total: 500, Currency: "ARS"}, view.Breakdown)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)

	rec = ta.do(t, http.MethodPut, "/api/v1/cart/bank-transfer", map[string]bool{"bank_transfer": true}, sid)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[domain.CartView](t, rec)
	assert.Equal(t, int64(20), view.Breakdown.Discount)
	assert.Equal(t, int64(480), view.Breakdown.Total)

	rec = ta.do(t, http.MethodDelete, "/api/v1/cart/items/A", nil, sid)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[domain.CartView](t, rec)
	assert.Equal(t, 1, view.Items[0].Quantity)
}

func TestSetShippingErrors(t *testing.T) {
	ta := newTestAPI(t, adminToken)
	sid := withSession("browser-1")

	rec := ta.do(t, http.MethodPut, "/api/v1/cart/shipping", map[string]int{"zip": 9999}, sid)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ta.do(t, http.MethodPut, "/api/v1/cart/shipping", `{"zip": 1001, "extra": true}`, sid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ta.do(t, http.MethodPut, "/api/v1/cart/shipping", map[string]int{"zip": -1}, sid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func checkoutBody(method string) map[string]any {
	return map[string]any{
		"email":         "buyer@example.com",
		"paymentMethod": method,
		"payer":         map[string]any{"name": "Juan Badano", "identification": "30111222"},
		"shipment": map[string]any{
			"name":    "Juan Badano",
			"address": map[string]any{"street": "Av. Corrientes", "number": "1234", "zip": "1001"},
		},
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	ta := newTestAPI(t, adminToken)

	rec := ta.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody("mercadopago"), withSession("browser-1"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCheckoutBankTransfer(t *testing.T) {
	ta := newTestAPI(t, adminToken)
	sid := withSession("browser-1")
	require.Equal(t, http.StatusOK, ta.do(t, http.MethodPost, "/api/v1/cart/items/A", nil, sid).Code)

	rec := ta.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(service.PaymentMethodBankTransfer), sid)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[checkoutResponse](t, rec)
	assert.Contains(t, resp.Redirect, "https://shop.test/checkout/pending?external_reference=")
}

func TestCheckoutProcessorUnavailable(t *testing.T) {
	ta := newTestAPI(t, adminToken)
	ta.processor.createErr = errors.New("dial tcp: connection refused")
	sid := withSession("browser-1")
	require.Equal(t, http.StatusOK, ta.do(t, http.MethodPost, "/api/v1/cart/items/A", nil, sid).Code)

	rec := ta.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody("mercadopago"), sid)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestNotificationProcessesAfterAck(t *testing.T) {
	ta := newTestAPI(t, adminToken)
	sid := withSession("browser-1")
	require.Equal(t, http.StatusOK, ta.do(t, http.MethodPost, "/api/v1/cart/items/A", nil, sid).Code)
	rec := ta.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody("mercadopago"), sid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://pay.test/pref-1", decode[checkoutResponse](t, rec).Redirect)

	txs, err := ta.repo.ListTransactions(context.Background(), domain.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	ta.processor.mu.Lock()
	ta.processor.payments["77"] = payment.Payment{
		Status:             payment.StatusApproved,
		ExternalReference:  txs[0].ID,
		TransactionDetails: payment.TransactionDetails{TotalPaidAmount: decimal.NewFromInt(100)},
		CurrencyID:         "ARS",
	}
	ta.processor.mu.Unlock()

	for _, path := range []string{"/notification?topic=payment&id=77", "/notification?type=payment&data.id=77"} {
		rec = ta.do(t, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ta.api.Wait(ctx))

	orders, err := ta.repo.ListOrders(context.Background(), domain.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, txs[0].ID, orders[0].TransactionID)
}

func TestNotificationWithoutIDIsAcknowledged(t *testing.T) {
	ta := newTestAPI(t, adminToken)

	rec := ta.do(t, http.MethodPost, "/notification", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, ta.api.Wait(context.Background()))
}
