package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr       string
	MySQLDSN       string
	RedisAddr      string
	ProcurementURL string

	// Transit estimation: fixed leg added after a scheduled departure, and
	// the flat fallback when no departure is scheduled.
	TransitFixedDays    int
	TransitFallbackDays int

	// Per-unit estimates applied when a unit has no recorded freight yet
	// and when sizing a shortfall for procurement.
	FreightEstimate decimal.Decimal
	TaxRate         decimal.Decimal

	ReconcileBatchSize int
}

// Load reads configuration from the environment, honoring a local .env file
// when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		MySQLDSN:       getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/stockcore?parseTime=true"),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		ProcurementURL: getenv("PROCUREMENT_URL", "http://localhost:8090/api/requirements"),
	}

	var err error
	if cfg.TransitFixedDays, err = getenvInt("TRANSIT_FIXED_DAYS", 15); err != nil {
		return nil, err
	}
	if cfg.TransitFallbackDays, err = getenvInt("TRANSIT_FALLBACK_DAYS", 30); err != nil {
		return nil, err
	}
	if cfg.ReconcileBatchSize, err = getenvInt("RECONCILE_BATCH_SIZE", 200); err != nil {
		return nil, err
	}
	if cfg.FreightEstimate, err = getenvDecimal("FREIGHT_ESTIMATE", "2.50"); err != nil {
		return nil, err
	}
	if cfg.TaxRate, err = getenvDecimal("TAX_RATE", "0.19"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDecimal(key, fallback string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
