package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Environment: "development",
		PriceCache: PriceCacheConfig{
			IntervalSeconds: 5,
			ReferenceQuote:  "USDT",
			SyntheticSpread: 0.0005,
			CrossRateMaxDev: 0.30,
		},
		Risk: RiskConfig{
			MaxBalancePercent: 25,
			MaxTradeAmountUSD: 1000,
			MinReservePercent: 10,
		},
		Execution: ExecutionConfig{
			DepositPollSeconds:    5,
			DepositTimeoutMinutes: 10,
			DepositArrivalRatio:   0.95,
		},
		Venues: []VenueConfig{
			{Name: "binance", TakerFee: 0.001},
			{Name: "kraken", TakerFee: 0.0026},
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero poll interval", func(c *Config) { c.PriceCache.IntervalSeconds = 0 }},
		{"cross rate deviation too large", func(c *Config) { c.PriceCache.CrossRateMaxDev = 1.5 }},
		{"cross rate deviation zero", func(c *Config) { c.PriceCache.CrossRateMaxDev = 0 }},
		{"reserve percent negative", func(c *Config) { c.Risk.MinReservePercent = -1 }},
		{"reserve percent above hundred", func(c *Config) { c.Risk.MinReservePercent = 101 }},
		{"balance percent zero", func(c *Config) { c.Risk.MaxBalancePercent = 0 }},
		{"arrival ratio above one", func(c *Config) { c.Execution.DepositArrivalRatio = 1.5 }},
		{"deposit timeout zero", func(c *Config) { c.Execution.DepositTimeoutMinutes = 0 }},
		{"empty venue name", func(c *Config) { c.Venues[0].Name = "" }},
		{"absurd taker fee", func(c *Config) { c.Venues[1].TakerFee = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPollInterval(t *testing.T) {
	cfg := PriceCacheConfig{IntervalSeconds: 5}
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
}

func TestVenueLookup(t *testing.T) {
	cfg := validConfig()

	vc := cfg.Venue("kraken")
	require.NotNil(t, vc)
	assert.Equal(t, 0.0026, vc.TakerFee)

	assert.Nil(t, cfg.Venue("missing"))
}
