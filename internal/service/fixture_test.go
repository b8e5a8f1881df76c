package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"storefront/backend/internal/carttoken"
	"storefront/backend/internal/catalog"
	"storefront/backend/internal/domain"
	"storefront/backend/internal/notify"
	"storefront/backend/internal/payment"
	"storefront/backend/internal/session"
	"storefront/backend/internal/store"
	"storefront/backend/internal/store/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	sessionID = "sess-1"
	itemA     = "A"
	itemB     = "B"
	opsEmail  = "ops@shop.test"
)

type fakeProcessor struct {
	mu        sync.Mutex
	nextID    int
	prefs     map[string]payment.Preference
	payments  map[string]payment.Payment
	created   []payment.Preference
	createErr error
	prefErr   error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		prefs:    make(map[string]payment.Preference),
		payments: make(map[string]payment.Payment),
	}
}

func (p *fakeProcessor) CreatePreference(_ context.Context, pref payment.Preference) (payment.Preference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return payment.Preference{}, p.createErr
	}
	p.nextID++
	pref.ID = fmt.Sprintf("pref-%d", p.nextID)
	pref.InitPoint = "https://pay.test/checkout?pref_id=" + pref.ID
	p.prefs[pref.ID] = pref
	p.created = append(p.created, pref)
	return pref, nil
}

func (p *fakeProcessor) FindPreferenceByID(_ context.Context, id string) (payment.Preference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prefErr != nil {
		return payment.Preference{}, p.prefErr
	}
	pref, ok := p.prefs[id]
	if !ok {
		return payment.Preference{}, payment.ErrNotFound
	}
	return pref, nil
}

func (p *fakeProcessor) FindPaymentByID(_ context.Context, id string) (payment.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pay, ok := p.payments[id]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	return pay, nil
}

func (p *fakeProcessor) setPayment(id string, pay payment.Payment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments[id] = pay
}

func (p *fakeProcessor) setPrefErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prefErr = err
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (d *recordingDispatcher) Send(_ context.Context, to string, template string, data map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, notify.Message{To: to, Template: template, Data: data})
	return d.err
}

// faultyRepo fails selected writes and delegates the rest.
type faultyRepo struct {
	store.Repository
	createOrderErr error
	saveTxErr      error
}

func (r *faultyRepo) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if r.createOrderErr != nil {
		return nil, r.createOrderErr
	}
	return r.Repository.CreateOrder(ctx, order)
}

func (r *faultyRepo) SaveTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if r.saveTxErr != nil {
		return nil, r.saveTxErr
	}
	return r.Repository.SaveTransaction(ctx, tx)
}

type failingCatalog struct{}

func (failingCatalog) FetchItems(context.Context, []string) ([]domain.CatalogItem, error) {
	return nil, errors.New("catalog down")
}

type fixture struct {
	svc       *Service
	repo      *memory.Store
	catalog   *catalog.Memory
	sessions  *session.Memory
	processor *fakeProcessor
	mail      *recordingDispatcher
	notifier  *notify.SideChannel
	tokens    *carttoken.Signer
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := quietLogger()
	f := &fixture{
		repo: memory.New(),
		catalog: catalog.NewMemory(
			domain.CatalogItem{ID: itemA, Name: "Lámpara", Price: 100, Currency: "ARS", Image: "https://img.test/a.jpg"},
			domain.CatalogItem{ID: itemB, Name: "Velador", Price: 250, Currency: "ARS", Image: "https://img.test/b.jpg"},
		),
		sessions:  session.NewMemory(),
		processor: newFakeProcessor(),
		mail:      &recordingDispatcher{},
		tokens:    carttoken.NewSigner("0123456789abcdef0123456789abcdef", time.Hour),
	}
	f.notifier = notify.NewSideChannel(f.mail, logger, time.Second)
	t.Cleanup(f.notifier.Close)

	f.svc = New(Config{
		DiscountRate:      decimal.RequireFromString("0.1"),
		Currency:          "ARS",
		PageSize:          2,
		NotificationEmail: opsEmail,
		SiteURL:           "https://shop.test/",
		PublicURL:         "https://api.shop.test",
	}, Deps{
		Repo:      f.repo,
		Catalog:   f.catalog,
		Sessions:  f.sessions,
		Processor: f.processor,
		Notifier:  f.notifier,
		Tokens:    f.tokens,
		Logger:    logger,
	})
	return f
}

// sent flushes the side channel and returns every message handed to the
// dispatcher.
func (f *fixture) sent() []notify.Message {
	f.notifier.Close()
	f.mail.mu.Lock()
	defer f.mail.mu.Unlock()
	return append([]notify.Message(nil), f.mail.sent...)
}

func (f *fixture) fillCart(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := f.svc.AddToCart(context.Background(), sessionID, id)
		require.NoError(t, err)
	}
}

func (f *fixture) transactions(t *testing.T) []domain.Transaction {
	t.Helper()
	txs, err := f.repo.ListTransactions(context.Background(), domain.TransactionFilter{})
	require.NoError(t, err)
	return txs
}

func (f *fixture) orders(t *testing.T) []domain.Order {
	t.Helper()
	orders, err := f.repo.ListOrders(context.Background(), domain.OrderFilter{})
	require.NoError(t, err)
	return orders
}

func buyer() domain.BuyerInfo {
	return domain.BuyerInfo{
		Email:         "buyer@example.com",
		PaymentMethod: "mercadopago",
		Payer: domain.Payer{
			Name:           "Juan Badano",
			Phone:          "1155550000",
			Identification: "30111222",
			Address:        domain.Address{Street: "Av. Corrientes", Number: "1234", Zip: "1001", City: "CABA", State: "Buenos Aires"},
		},
		Shipment: domain.ShipmentInfo{
			Name:    "Juan Badano",
			Phone:   "1155550000",
			Address: domain.Address{Street: "Av. Corrientes", Number: "1234", Apartment: "4B", Zip: "1001", City: "CABA", State: "Buenos Aires"},
		},
		Comment: "ring twice",
	}
}
