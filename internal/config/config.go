package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"stocktrack/internal/alert"
	"stocktrack/internal/logger"
	"stocktrack/internal/pricing"
)

type Config struct {
	DatabaseURL string
	SQLitePath  string

	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	AlertCacheTTLSeconds int

	MongoURI    string
	MongoDBName string

	// LowStockThreshold drives notifications and the alerts command.
	// WellStockedThreshold is the wider view of alerts --dashboard.
	LowStockThreshold               int64
	WellStockedThreshold            int64
	AllowNegativeStockOnUnknownItem bool

	PricingPolicy string
	MarkupRate    decimal.Decimal
	TaxRate       decimal.Decimal
	DiscountRate  decimal.Decimal

	StatementCron string
	AlertCron     string
	Timezone      string

	AlertWebhookURL string
	LogLevel        string
}

// Load reads an optional env file, then the environment. A missing env file
// is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	var errs []error
	intVar := func(key string, fallback int) int {
		v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return fallback
		}
		return v
	}
	decVar := func(key string, fallback string) decimal.Decimal {
		v, err := decimal.NewFromString(getEnv(key, fallback))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return decimal.RequireFromString(fallback)
		}
		return v
	}
	allowNegative, err := strconv.ParseBool(getEnv("ALLOW_NEGATIVE_STOCK_ON_UNKNOWN_ITEM", "true"))
	if err != nil {
		errs = append(errs, fmt.Errorf("ALLOW_NEGATIVE_STOCK_ON_UNKNOWN_ITEM: %w", err))
		allowNegative = true
	}

	cfg := Config{
		DatabaseURL:                     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:                      strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		RedisAddr:                       os.Getenv("REDIS_ADDR"),
		RedisPassword:                   os.Getenv("REDIS_PASSWORD"),
		RedisDB:                         intVar("REDIS_DB", 0),
		AlertCacheTTLSeconds:            intVar("ALERT_CACHE_TTL_SECONDS", 30),
		MongoURI:                        strings.TrimSpace(os.Getenv("MONGODB_URI")),
		MongoDBName:                     getEnv("MONGODB_DB_NAME", "stocktrack"),
		LowStockThreshold:               int64(intVar("LOW_STOCK_THRESHOLD", int(alert.NotificationThreshold))),
		WellStockedThreshold:            int64(intVar("WELL_STOCKED_THRESHOLD", int(alert.DashboardThreshold))),
		AllowNegativeStockOnUnknownItem: allowNegative,
		PricingPolicy:                   strings.ToLower(getEnv("PRICING_POLICY", pricing.PolicyMarkup)),
		MarkupRate:                      decVar("MARKUP_RATE", "0.20"),
		TaxRate:                         decVar("TAX_RATE", "0.18"),
		DiscountRate:                    decVar("DISCOUNT_RATE", "0.05"),
		StatementCron:                   getEnv("STATEMENT_CRON", "0 23 * * *"),
		AlertCron:                       getEnv("ALERT_CRON", "0 * * * *"),
		Timezone:                        getEnv("TIMEZONE", "UTC"),
		AlertWebhookURL:                 strings.TrimSpace(os.Getenv("ALERT_WEBHOOK_URL")),
		LogLevel:                        getEnv("LOG_LEVEL", "info"),
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.LowStockThreshold < 0 {
		return errors.New("LOW_STOCK_THRESHOLD must not be negative")
	}
	if c.WellStockedThreshold < 0 {
		return errors.New("WELL_STOCKED_THRESHOLD must not be negative")
	}
	if c.AlertCacheTTLSeconds < 1 {
		return errors.New("ALERT_CACHE_TTL_SECONDS must be at least 1")
	}
	for name, rate := range map[string]decimal.Decimal{
		"MARKUP_RATE":   c.MarkupRate,
		"TAX_RATE":      c.TaxRate,
		"DISCOUNT_RATE": c.DiscountRate,
	} {
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s must be within [0, 1), got %s", name, rate)
		}
	}
	if _, err := c.Pricing(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Pricing builds the configured selling-price policy.
func (c Config) Pricing() (pricing.Policy, error) {
	return pricing.FromName(c.PricingPolicy, c.MarkupRate, c.TaxRate, c.DiscountRate)
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}

func (c Config) AlertCacheTTL() time.Duration {
	return time.Duration(c.AlertCacheTTLSeconds) * time.Second
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
