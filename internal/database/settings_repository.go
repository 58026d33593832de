package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/models"
)

// SettingsRepository reads per-operator settings: the venue/asset selection,
// thresholds and risk limits. The engine only reads; writes belong to the
// settings service that owns the schema.
type SettingsRepository struct {
	pool   PgxPool
	logger *logrus.Logger
}

// NewSettingsRepository creates the repository.
func NewSettingsRepository(pool PgxPool, logger *logrus.Logger) *SettingsRepository {
	return &SettingsRepository{pool: pool, logger: logger}
}

// Get loads the settings row for one operator.
func (r *SettingsRepository) Get(ctx context.Context, operatorID string) (*models.OperatorSettings, error) {
	query := `
		SELECT operator_id, venues, assets, bridge_assets, min_profit_percent,
		       max_balance_percent, max_trade_amount_usd, min_reserve_percent,
		       max_concurrent_trades, max_daily_trades
		FROM operator_settings
		WHERE operator_id = $1
	`

	var settings models.OperatorSettings
	err := r.pool.QueryRow(ctx, query, operatorID).Scan(
		&settings.OperatorID, &settings.Venues, &settings.Assets, &settings.BridgeAssets,
		&settings.MinProfitPercent,
		&settings.Limits.MaxBalancePercent, &settings.Limits.MaxTradeAmountUSD,
		&settings.Limits.MinReservePercent,
		&settings.Limits.MaxConcurrentTrades, &settings.Limits.MaxDailyTrades,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for operator %s: %w", operatorID, err)
	}

	r.logger.WithFields(logrus.Fields{
		"operator": operatorID,
		"venues":   len(settings.Venues),
		"assets":   len(settings.Assets),
	}).Debug("Loaded operator settings")

	return &settings, nil
}
