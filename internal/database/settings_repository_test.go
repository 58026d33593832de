package database

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsRepositoryGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettingsRepository(mock, testLogger())

	rows := pgxmock.NewRows([]string{
		"operator_id", "venues", "assets", "bridge_assets", "min_profit_percent",
		"max_balance_percent", "max_trade_amount_usd", "min_reserve_percent",
		"max_concurrent_trades", "max_daily_trades",
	}).AddRow(
		"op-1", []string{"binance", "kraken"}, []string{"USDT"}, []string{"XRP", "LTC"},
		decimal.NewFromFloat(0.75),
		decimal.NewFromInt(25), decimal.NewFromInt(2000), decimal.NewFromInt(10),
		2, 20,
	)

	mock.ExpectQuery("SELECT (.+) FROM operator_settings").
		WithArgs("op-1").
		WillReturnRows(rows)

	settings, err := repo.Get(context.Background(), "op-1")
	require.NoError(t, err)

	assert.Equal(t, "op-1", settings.OperatorID)
	assert.Equal(t, []string{"binance", "kraken"}, settings.Venues)
	assert.Equal(t, []string{"XRP", "LTC"}, settings.BridgeAssets)
	assert.True(t, settings.MinProfitPercent.Equal(decimal.NewFromFloat(0.75)))
	assert.True(t, settings.Limits.MaxTradeAmountUSD.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, 2, settings.Limits.MaxConcurrentTrades)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepositoryGetMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettingsRepository(mock, testLogger())

	mock.ExpectQuery("SELECT (.+) FROM operator_settings").
		WithArgs("nobody").
		WillReturnError(assert.AnError)

	settings, err := repo.Get(context.Background(), "nobody")
	assert.Error(t, err)
	assert.Nil(t, settings)
	assert.Contains(t, err.Error(), "nobody")
}
