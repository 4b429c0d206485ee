package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/loyalty/internal/config"
)

func TestLookup_Defaults(t *testing.T) {
	cfg, err := config.Lookup(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.GetServerAddr())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Loyalty.StampTTL)
	assert.Equal(t, 24*time.Hour, cfg.Loyalty.TicketTTL)
	assert.Equal(t, 6, cfg.Loyalty.StampCodeLength)
	assert.Equal(t, 8, cfg.Loyalty.TicketCodeLength)
	assert.Equal(t, 10, cfg.Loyalty.MaxCodeAttempts)
	assert.Equal(t, "loyalty-core", cfg.Telemetry.ServiceName)
	assert.Empty(t, cfg.Telemetry.Endpoint)
	assert.True(t, cfg.App.IsDevelopment())
	assert.Contains(t, cfg.Database.GetDatabaseURL(), "dbname=loyalty")
}

func TestLookup_Overrides(t *testing.T) {
	cfg, err := config.Lookup(context.Background(), envconfig.MapLookuper(map[string]string{
		"SERVER_PORT":                 "9090",
		"SERVER_CORS_ALLOWED_ORIGINS": "https://a.example,https://b.example",
		"DB_DRIVER":                   "sqlite3",
		"DB_PATH":                     "/tmp/loyalty.db",
		"APP_ENVIRONMENT":             "production",
		"LOYALTY_STAMP_TTL":           "90s",
		"LOYALTY_TIERS_FILE":          "/etc/loyalty/tiers.yaml",
		"OTEL_ENDPOINT":               "http://collector:4318",
	}))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.GetServerAddr())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 90*time.Second, cfg.Loyalty.StampTTL)
	assert.Equal(t, "/etc/loyalty/tiers.yaml", cfg.Loyalty.TiersFile)
	assert.True(t, cfg.App.IsProduction())
	assert.Equal(t, "http://collector:4318", cfg.Telemetry.Endpoint)
	assert.Equal(t, config.SQLiteDSN("/tmp/loyalty.db"), cfg.Database.GetDatabaseURL())
	assert.Contains(t, cfg.Database.GetDatabaseURL(), "_txlock=immediate")
}

func TestLookup_RejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"driver":      {"DB_DRIVER": "mysql"},
		"code length": {"LOYALTY_STAMP_CODE_LENGTH": "3"},
		"attempts":    {"LOYALTY_MAX_CODE_ATTEMPTS": "0"},
		"ttl":         {"LOYALTY_TICKET_TTL": "0s"},
		"not a duration": {
			"LOYALTY_SWEEP_INTERVAL": "soon",
		},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Lookup(context.Background(), envconfig.MapLookuper(env))
			assert.Error(t, err)
		})
	}
}
