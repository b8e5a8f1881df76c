package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"storefront/backend/internal/carttoken"
	"storefront/backend/internal/catalog"
	"storefront/backend/internal/domain"
	"storefront/backend/internal/metrics"
	"storefront/backend/internal/notify"
	"storefront/backend/internal/payment"
	"storefront/backend/internal/pricing"
	"storefront/backend/internal/session"
	"storefront/backend/internal/shipping"
	"storefront/backend/internal/store"
)

var (
	ErrShippingNotFound    = errors.New("shipping not found")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrCheckoutUnavailable = errors.New("checkout unavailable")
	ErrInvalidBuyer        = errors.New("invalid buyer info")
	// ErrStatusNotAllowed is returned when an administrator tries to set a
	// transaction status that only the payment webhook may set.
	ErrStatusNotAllowed = errors.New("status can only be set by the payment processor")
	ErrInvalidPeriod    = errors.New("invalid sales period")
)

// PaymentMethodBankTransfer selects the deferred bank transfer flow at checkout.
const PaymentMethodBankTransfer = "bankTransfer"

// Config is immutable for the lifetime of a Service.
type Config struct {
	DiscountRate      decimal.Decimal
	Currency          string
	PageSize          int
	NotificationEmail string
	// SiteURL is the storefront web app, used for buyer redirects.
	SiteURL string
	// PublicURL is where this service is reachable by the payment processor.
	PublicURL string
}

type Deps struct {
	Repo      store.Repository
	Catalog   catalog.Catalog
	Sessions  session.Store
	Processor payment.Processor
	Notifier  *notify.SideChannel
	Shipping  *shipping.Lookup
	Tokens    *carttoken.Signer
	Metrics   *metrics.CheckoutMetrics
	Logger    log.FieldLogger
}

type Service struct {
	cfg       Config
	repo      store.Repository
	catalog   catalog.Catalog
	sessions  session.Store
	processor payment.Processor
	notifier  *notify.SideChannel
	shipping  *shipping.Lookup
	tokens    *carttoken.Signer
	pricer    *pricing.Pricer
	metrics   *metrics.CheckoutMetrics
	logger    log.FieldLogger
	now       func() time.Time
}

func New(cfg Config, deps Deps) *Service {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.Currency == "" {
		cfg.Currency = "ARS"
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	logger := deps.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	lookup := deps.Shipping
	if lookup == nil {
		lookup = shipping.Default()
	}

	return &Service{
		cfg:       cfg,
		repo:      deps.Repo,
		catalog:   deps.Catalog,
		sessions:  deps.Sessions,
		processor: deps.Processor,
		notifier:  deps.Notifier,
		shipping:  lookup,
		tokens:    deps.Tokens,
		pricer: pricing.New(pricing.Config{
			DiscountRate:    cfg.DiscountRate,
			DefaultCurrency: cfg.Currency,
		}),
		metrics: deps.Metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// priceCart fetches live catalog data for the cart. A catalog failure is
// logged and priced as if no items came back.
func (s *Service) priceCart(ctx context.Context, state domain.SessionState) (domain.PriceBreakdown, []domain.PricedItem) {
	ids := lo.Uniq(lo.Map(state.Cart, func(line domain.CartLine, _ int) string { return line.ItemID }))

	var items []domain.CatalogItem
	if len(ids) > 0 {
		fetched, err := s.catalog.FetchItems(ctx, ids)
		if err != nil {
			s.logger.WithError(err).WithField("items", len(ids)).Warn("catalog lookup failed, pricing cart as empty")
		} else {
			items = fetched
		}
	}
	return s.pricer.Price(state.Cart, items, state.Fees, state.BankTransfer)
}

func (s *Service) notify(msgs ...notify.Message) {
	if s.notifier == nil {
		return
	}
	msgs = lo.Filter(msgs, func(m notify.Message, _ int) bool { return strings.TrimSpace(m.To) != "" })
	s.notifier.Dispatch(msgs...)
}
