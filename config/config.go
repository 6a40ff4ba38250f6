// Package config loads server settings from STOCK_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "STOCK"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	App       AppConfig
	Log       LogConfig
	DB        DBConfig
	JWT       JWTConfig
	Admin     AdminConfig
	Redis     RedisConfig
	Gotenberg GotenbergConfig
	S3        S3Config
	Stock     StockConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("config: STOCK_DB_DRIVER must be sqlite, postgres or memory, got %q", c.DB.Driver)
	}
	if c.DB.Driver == DriverPostgres && c.DB.DSN == "" {
		return fmt.Errorf("config: STOCK_DB_DSN is required for postgres")
	}
	if _, err := time.LoadLocation(c.App.ReportTZ); err != nil {
		return fmt.Errorf("config: STOCK_REPORT_TZ: %w", err)
	}
	if c.Stock.LowStockThreshold < 0 {
		return fmt.Errorf("config: STOCK_LOW_STOCK_THRESHOLD must be at least 0")
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		return fmt.Errorf("config: STOCK_ADMIN_EMAIL and STOCK_ADMIN_PASSWORD must be set together")
	}
	return nil
}

type AppConfig struct {
	Env  string `envconfig:"STOCK_APP_ENV" default:"development"`
	Addr string `envconfig:"STOCK_APP_ADDR" default:":8080"`
	// PublicURL is where clients reach this server; images kept in
	// process are linked under it.
	PublicURL   string   `envconfig:"STOCK_PUBLIC_URL" default:"http://localhost:8080"`
	ReportTZ    string   `envconfig:"STOCK_REPORT_TZ" default:"Asia/Jakarta"`
	CORSOrigins []string `envconfig:"STOCK_CORS_ORIGINS" default:"*"`
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int `envconfig:"STOCK_RATE_LIMIT" default:"300"`
	// Scenarios exposes the demo data endpoints.
	Scenarios bool `envconfig:"STOCK_SCENARIOS" default:"false"`
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, "production")
}

// Location is the report time zone. validate has already checked it.
func (a AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.ReportTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

type LogConfig struct {
	Level  string `envconfig:"STOCK_LOG_LEVEL" default:"info"`
	Format string `envconfig:"STOCK_LOG_FORMAT" default:"json"`
}

type DBConfig struct {
	Driver string `envconfig:"STOCK_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"STOCK_DB_DSN" default:"stock.db"`
}

type JWTConfig struct {
	Secret string        `envconfig:"STOCK_JWT_SECRET" required:"true"`
	Issuer string        `envconfig:"STOCK_JWT_ISSUER" default:"stockledger"`
	TTL    time.Duration `envconfig:"STOCK_JWT_TTL" default:"12h"`
}

// AdminConfig seeds the first admin account at startup when set.
type AdminConfig struct {
	Email    string `envconfig:"STOCK_ADMIN_EMAIL"`
	Password string `envconfig:"STOCK_ADMIN_PASSWORD"`
	Name     string `envconfig:"STOCK_ADMIN_NAME" default:"Admin"`
}

type RedisConfig struct {
	URL    string `envconfig:"STOCK_REDIS_URL"`
	Prefix string `envconfig:"STOCK_REDIS_PREFIX" default:"stock"`
}

type GotenbergConfig struct {
	URL     string        `envconfig:"STOCK_GOTENBERG_URL"`
	Timeout time.Duration `envconfig:"STOCK_GOTENBERG_TIMEOUT" default:"30s"`
}

type S3Config struct {
	Endpoint     string `envconfig:"STOCK_S3_ENDPOINT"`
	Region       string `envconfig:"STOCK_S3_REGION" default:"us-east-1"`
	Bucket       string `envconfig:"STOCK_S3_BUCKET"`
	AccessKey    string `envconfig:"STOCK_S3_ACCESS_KEY"`
	SecretKey    string `envconfig:"STOCK_S3_SECRET_KEY"`
	UsePathStyle bool   `envconfig:"STOCK_S3_USE_PATH_STYLE" default:"true"`
	PublicURL    string `envconfig:"STOCK_S3_PUBLIC_URL"`
}

func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

type StockConfig struct {
	LowStockThreshold int64         `envconfig:"STOCK_LOW_STOCK_THRESHOLD" default:"10"`
	ReconcileEdits    bool          `envconfig:"STOCK_RECONCILE_EDITS" default:"false"`
	MonitorInterval   time.Duration `envconfig:"STOCK_MONITOR_INTERVAL" default:"5m"`
}
