package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"storefront/backend/internal/carttoken"
	"storefront/backend/internal/catalog"
	"storefront/backend/internal/config"
	"storefront/backend/internal/httpapi"
	"storefront/backend/internal/metrics"
	"storefront/backend/internal/notify"
	"storefront/backend/internal/payment"
	"storefront/backend/internal/service"
	"storefront/backend/internal/session"
	"storefront/backend/internal/shipping"
	"storefront/backend/internal/store"
	"storefront/backend/internal/store/memory"
	pgstore "storefront/backend/internal/store/postgres"
)

func setupLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("unknown LOG_LEVEL, using info")
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

func main() {
	cfg := config.Load()
	setupLogger(cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		log.WithError(err).Fatal("invalid security configuration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(); err != nil {
			log.WithError(err).Fatal("postgres migration failed")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.New()
		log.Info("repository: in-memory")
	}

	var sessions session.Store = session.NewMemory()
	if cfg.RedisAddr != "" {
		redisStore := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL)
		if err := redisStore.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unavailable, sessions kept in memory")
		} else {
			sessions = redisStore
			closers = append(closers, redisStore.Close)
			log.Info("sessions: redis")
		}
	} else {
		log.Info("sessions: in-memory")
	}

	var items catalog.Catalog = catalog.NewSeeded()
	if cfg.CatalogURL != "" {
		items = catalog.NewGraphQLClient(cfg.CatalogURL, cfg.UpstreamTimeout)
		log.WithField("url", cfg.CatalogURL).Info("catalog: graphql")
	} else {
		log.Info("catalog: demo items")
	}

	areas, err := shipping.Load(cfg.ShippingAreasFile)
	if err != nil {
		log.WithError(err).Fatal("shipping areas unavailable")
	}

	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(log.StandardLogger())
	if cfg.MailRelayURL != "" {
		dispatcher = notify.NewHTTPRelay(cfg.MailRelayURL, cfg.UpstreamTimeout)
		log.WithField("url", cfg.MailRelayURL).Info("notifications: mail relay")
	} else {
		log.Info("notifications: log only")
	}

	checkoutMetrics := metrics.NewCheckoutMetrics()
	notifier := notify.NewSideChannel(dispatcher, log.StandardLogger(), cfg.UpstreamTimeout)
	notifier.OnFailure(func(msg notify.Message, _ error) {
		checkoutMetrics.RecordNotificationFailure(msg.Template)
	})

	if cfg.MercadoPagoToken == "" {
		log.Warn("MP_ACCESS_TOKEN is not set; processor checkouts will fail")
	}

	svc := service.New(service.Config{
		DiscountRate:      cfg.DiscountRate,
		Currency:          cfg.Currency,
		PageSize:          cfg.PageSize,
		NotificationEmail: cfg.NotificationEmail,
		SiteURL:           cfg.SiteURL,
		PublicURL:         cfg.PublicURL,
	}, service.Deps{
		Repo:      repo,
		Catalog:   items,
		Sessions:  sessions,
		Processor: payment.NewMercadoPago(cfg.MercadoPagoURL, cfg.MercadoPagoToken, cfg.UpstreamTimeout),
		Notifier:  notifier,
		Shipping:  areas,
		Tokens:    carttoken.NewSigner(cfg.CartSecret, cfg.SessionTTL),
		Metrics:   checkoutMetrics,
		Logger:    log.StandardLogger(),
	})

	guard, err := httpapi.NewAdminGuard(cfg.AdminToken)
	if err != nil {
		log.WithError(err).Fatal("failed to hash ADMIN_TOKEN")
	}
	if !guard.Enabled() {
		log.Warn("ADMIN_TOKEN is not set; admin api disabled")
	}
	api := httpapi.New(svc, guard, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		SecureCookie:   cfg.SecureCookie,
		WebhookTimeout: cfg.WebhookTimeout,
		Logger:         log.StandardLogger(),
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Address()).Info("storefront backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.WebhookTimeout+5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
	if err := api.Wait(shutdownCtx); err != nil {
		log.WithError(err).Warn("payment notifications still running at shutdown")
	}
	notifier.Close()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.WithError(err).Warn("close error")
		}
	}

	log.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.CartSecret) < 32 {
		return fmt.Errorf("CART_SECRET must be set and at least 32 characters")
	}
	if cfg.AdminToken != "" && len(cfg.AdminToken) < 16 {
		return fmt.Errorf("ADMIN_TOKEN must be at least 16 characters")
	}
	if cfg.AdminToken != "" && cfg.AdminToken == cfg.CartSecret {
		return fmt.Errorf("ADMIN_TOKEN must differ from CART_SECRET")
	}
	return nil
}
