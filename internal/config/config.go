package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`

	// Loyalty core configuration
	Loyalty LoyaltyConfig `env:",prefix=LOYALTY_"`

	// Tracing configuration
	Telemetry TelemetryConfig `env:",prefix=OTEL_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `env:"PORT,default=8080"`
	Host           string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout    int      `env:"READ_TIMEOUT,default=30"`  // seconds
	WriteTimeout   int      `env:"WRITE_TIMEOUT,default=30"` // seconds
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:5173"`
}

// DatabaseConfig holds the store configuration. Driver selects between
// PostgreSQL (production) and SQLite (single node and tests).
type DatabaseConfig struct {
	Driver   string `env:"DRIVER,default=postgres"`
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=loyalty"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`
	Path     string `env:"PATH,default=loyalty.db"` // sqlite only
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	Debug       bool   `env:"DEBUG,default=false"`
}

// LoyaltyConfig holds the stamp, ticket and sweeper settings.
type LoyaltyConfig struct {
	StampTTL         time.Duration `env:"STAMP_TTL,default=5m"`
	TicketTTL        time.Duration `env:"TICKET_TTL,default=24h"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL,default=1m"`
	StampCodeLength  int           `env:"STAMP_CODE_LENGTH,default=6"`
	TicketCodeLength int           `env:"TICKET_CODE_LENGTH,default=8"`
	MaxCodeAttempts  int           `env:"MAX_CODE_ATTEMPTS,default=10"`
	TiersFile        string        `env:"TIERS_FILE"`

	// Redemption attempts allowed per client, refilled every RedeemInterval.
	RedeemInterval time.Duration `env:"REDEEM_INTERVAL,default=2s"`
	RedeemBurst    int           `env:"REDEEM_BURST,default=10"`
}

// TelemetryConfig holds OpenTelemetry exporter settings. Tracing is off when
// Endpoint is empty.
type TelemetryConfig struct {
	Endpoint    string `env:"ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME,default=loyalty-core"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return Lookup(ctx, envconfig.OsLookuper())
}

// Lookup loads configuration from the given lookuper.
func Lookup(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the core cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Loyalty.StampCodeLength < 4 || c.Loyalty.TicketCodeLength < 4 {
		return fmt.Errorf("code lengths must be at least 4")
	}
	if c.Loyalty.MaxCodeAttempts < 1 {
		return fmt.Errorf("max code attempts must be positive")
	}
	if c.Loyalty.StampTTL <= 0 || c.Loyalty.TicketTTL <= 0 || c.Loyalty.SweepInterval <= 0 {
		return fmt.Errorf("ttl and sweep interval must be positive")
	}
	return nil
}

// GetDatabaseURL returns the connection string for the configured driver
func (c *DatabaseConfig) GetDatabaseURL() string {
	if c.Driver == "sqlite3" {
		return SQLiteDSN(c.Path)
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// SQLiteDSN builds a DSN that takes the write lock at BEGIN, so concurrent
// transactions queue instead of failing on lock upgrade.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate"
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
