package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const (
	defaultCurrency     = "ARS"
	defaultDiscountRate = "0.1"
)

type Config struct {
	Port          string
	AllowedOrigin string
	LogLevel      string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration
	SecureCookie  bool

	CatalogURL        string
	MercadoPagoURL    string
	MercadoPagoToken  string
	MailRelayURL      string
	ShippingAreasFile string

	CartSecret string
	AdminToken string

	SiteURL           string
	PublicURL         string
	NotificationEmail string
	Currency          string
	DiscountRate      decimal.Decimal
	PageSize          int

	UpstreamTimeout time.Duration
	WebhookTimeout  time.Duration
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		SessionTTL:    time.Duration(positiveInt("SESSION_TTL_MINUTES", 7*24*60)) * time.Minute,
		SecureCookie:  getEnv("SECURE_COOKIE", "false") == "true",

		CatalogURL:        strings.TrimSpace(os.Getenv("CATALOG_URL")),
		MercadoPagoURL:    getEnv("MP_BASE_URL", "https://api.mercadopago.com"),
		MercadoPagoToken:  strings.TrimSpace(os.Getenv("MP_ACCESS_TOKEN")),
		MailRelayURL:      strings.TrimSpace(os.Getenv("MAIL_RELAY_URL")),
		ShippingAreasFile: strings.TrimSpace(os.Getenv("SHIPPING_AREAS_FILE")),

		CartSecret: strings.TrimSpace(os.Getenv("CART_SECRET")),
		AdminToken: strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),

		SiteURL:           getEnv("SITE_URL", "http://127.0.0.1:3000"),
		PublicURL:         getEnv("PUBLIC_URL", "http://127.0.0.1:8080"),
		NotificationEmail: strings.TrimSpace(os.Getenv("NOTIFICATION_EMAIL")),
		Currency:          currencyCode(os.Getenv("DEFAULT_CURRENCY")),
		DiscountRate:      discountRate(os.Getenv("BANK_TRANSFER_DISCOUNT")),
		PageSize:          positiveInt("PAGE_SIZE", 20),

		UpstreamTimeout: time.Duration(positiveInt("UPSTREAM_TIMEOUT_SECONDS", 10)) * time.Second,
		WebhookTimeout:  time.Duration(positiveInt("WEBHOOK_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// currencyCode accepts ISO 4217 codes only and falls back to ARS.
func currencyCode(raw string) string {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(raw)))
	if err != nil {
		return defaultCurrency
	}
	return unit.String()
}

// discountRate accepts a fraction in [0, 1).
func discountRate(raw string) decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.RequireFromString(defaultDiscountRate)
	}
	return rate
}
