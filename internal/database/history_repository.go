package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/ebisiere/crossarb/internal/models"
)

// PgxPool is the subset of pgxpool.Pool the repositories use. Satisfied by
// pgxmock in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HistoryRepository appends terminal sagas to the execution_history table and
// reads recent entries plus daily counts back. Schema ownership lives outside
// the engine; this repository only appends and reads.
type HistoryRepository struct {
	pool   PgxPool
	logger *logrus.Logger
}

// NewHistoryRepository creates the repository.
func NewHistoryRepository(pool PgxPool, logger *logrus.Logger) *HistoryRepository {
	return &HistoryRepository{pool: pool, logger: logger}
}

// Append stores one terminal saga.
func (r *HistoryRepository) Append(ctx context.Context, saga *models.ExecutionSaga) error {
	legLog, err := json.Marshal(saga.LegLog)
	if err != nil {
		return fmt.Errorf("failed to serialize leg log: %w", err)
	}

	query := `
		INSERT INTO execution_history (
			id, source_venue, dest_venue, source_asset, dest_asset, bridge_asset,
			amount, state, actual_profit, slippage, withdrawal_id, error,
			leg_log, started_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.pool.Exec(ctx, query,
		saga.ID, saga.Path.SourceVenue, saga.Path.DestVenue,
		saga.Path.SourceAsset, saga.Path.DestAsset, saga.Path.BridgeAsset,
		saga.Amount, string(saga.State), saga.ActualProfit, saga.Slippage,
		saga.WithdrawalID, saga.Error, legLog, saga.StartedAt, saga.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution history: %w", err)
	}
	return nil
}

// ListRecent returns the most recent terminal sagas, newest first.
func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]models.ExecutionSaga, error) {
	query := `
		SELECT id, source_venue, dest_venue, source_asset, dest_asset, bridge_asset,
		       amount, state, actual_profit, slippage, withdrawal_id, error,
		       leg_log, started_at, ended_at
		FROM execution_history
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution history: %w", err)
	}
	defer rows.Close()

	var sagas []models.ExecutionSaga
	for rows.Next() {
		var saga models.ExecutionSaga
		var state string
		var legLog []byte

		err := rows.Scan(
			&saga.ID, &saga.Path.SourceVenue, &saga.Path.DestVenue,
			&saga.Path.SourceAsset, &saga.Path.DestAsset, &saga.Path.BridgeAsset,
			&saga.Amount, &state, &saga.ActualProfit, &saga.Slippage,
			&saga.WithdrawalID, &saga.Error, &legLog, &saga.StartedAt, &saga.EndedAt,
		)
		if err != nil {
			r.logger.WithError(err).Error("Failed to scan execution history row")
			continue
		}
		saga.State = models.SagaState(state)
		if len(legLog) > 0 {
			if err := json.Unmarshal(legLog, &saga.LegLog); err != nil {
				r.logger.WithError(err).WithField("saga_id", saga.ID).Warn("Failed to deserialize leg log")
			}
		}
		sagas = append(sagas, saga)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution history rows: %w", err)
	}
	return sagas, nil
}

// CountSince returns the number of sagas started at or after the given time.
// Feeds the daily-trade advisory gate.
func (r *HistoryRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM execution_history WHERE started_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", err)
	}
	return count, nil
}
