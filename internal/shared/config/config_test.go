package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "settlement-worker")
	cfg := Load()

	assert.Equal(t, "9093", cfg.MetricsPort)
	assert.Equal(t, "0.15", cfg.TaxRate.String())
	assert.Equal(t, "4000000", cfg.MaxStake.String())
	assert.Equal(t, []string{"1"}, cfg.TwoUpMarkets)
	assert.Empty(t, cfg.TwoUpTournaments)
	assert.Equal(t, 30*time.Second, cfg.FixtureCacheTTL)
	assert.False(t, cfg.LoyaltyEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "bet-service")
	t.Setenv("TAX_RATE", "0.2")
	t.Setenv("MIN_STAKE", "abc")
	t.Setenv("LOYALTY_ENABLED", "true")
	t.Setenv("TWO_UP_TOURNAMENTS", "t1, t2")
	t.Setenv("FIXTURE_CACHE_TTL", "5s")
	cfg := Load()

	assert.Equal(t, "8083", cfg.HTTPPort)
	assert.Equal(t, "0.2", cfg.TaxRate.String())
	assert.Equal(t, "1", cfg.MinStake.String())
	assert.True(t, cfg.LoyaltyEnabled)
	assert.Equal(t, []string{"t1", "t2"}, cfg.TwoUpTournaments)
	assert.Equal(t, 5*time.Second, cfg.FixtureCacheTTL)
}

func TestLoad_PoolSizing(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantPG  int
		wantLvl string
	}{
		{name: "bet service default", env: map[string]string{"SERVICE_NAME": "bet-service"}, wantPG: 20},
		{
			name:   "settlement sized by readers and parallelism",
			env:    map[string]string{"SERVICE_NAME": "settlement-worker", "SETTLEMENT_CONSUMERS": "4", "SETTLEMENT_PARALLELISM": "8"},
			wantPG: 36,
		},
		{
			name:    "explicit override",
			env:     map[string]string{"SERVICE_NAME": "settlement-worker", "POSTGRES_MAX_OPEN_CONNS": "12", "LOG_LEVEL": "debug"},
			wantPG:  12,
			wantLvl: "debug",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", "")
			t.Setenv("POSTGRES_MAX_OPEN_CONNS", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg := Load()
			assert.Equal(t, tc.wantPG, cfg.PostgresPool().MaxOpenConns)
			assert.Equal(t, 30*time.Minute, cfg.PostgresPool().ConnMaxLifetime)
			assert.Equal(t, time.Second, cfg.RedisOptions().Timeout)
			assert.Equal(t, tc.wantLvl, cfg.LoggerOptions().Level)
		})
	}
}
