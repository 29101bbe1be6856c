package state

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// PoolSummary represents high-level pool statistics from the latest snapshot.
type PoolSummary struct {
	TotalAssetA   string `json:"total_asset_a"`
	TotalAssetB   string `json:"total_asset_b"`
	TotalShares   string `json:"total_shares"`
	PoolValueUSD  string `json:"pool_value_usd"`
	Tier          string `json:"tier"`
	SnapshotCount int    `json:"snapshot_count"`
	LastUpdated   string `json:"last_updated"`
}

// RebalanceMetrics represents aggregated rebalance attempt outcomes.
type RebalanceMetrics struct {
	TotalAttempts     int `json:"total_attempts"`
	ConfirmedAttempts int `json:"confirmed_attempts"`
	FailedAttempts    int `json:"failed_attempts"`
	// DistinctPlans counts unique attempt ids: one plan can produce several
	// receipt rows as it moves through the state machine.
	DistinctPlans int `json:"distinct_plans"`
}

// GetPoolSummary retrieves high-level pool statistics.
func GetPoolSummary() (*PoolSummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	summary := &PoolSummary{}

	query := `
		SELECT
			total_asset_a, total_asset_b, total_shares,
			pool_value_usd, tier, snapshot_timestamp
		FROM pool_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT 1
	`

	var lastUpdated sql.NullString
	err := DB.QueryRow(query).Scan(
		&summary.TotalAssetA, &summary.TotalAssetB, &summary.TotalShares,
		&summary.PoolValueUSD, &summary.Tier, &lastUpdated,
	)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get latest pool snapshot: %w", err)
	}

	if lastUpdated.Valid {
		summary.LastUpdated = lastUpdated.String
	}

	err = DB.QueryRow("SELECT COUNT(*) FROM pool_snapshots").Scan(&summary.SnapshotCount)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get pool snapshot count")
	}

	log.Info().Str("tier", summary.Tier).Int("snapshotCount", summary.SnapshotCount).Msg("Retrieved pool summary")
	return summary, nil
}

// GetRebalanceMetrics retrieves aggregated rebalance attempt outcomes.
func GetRebalanceMetrics() (*RebalanceMetrics, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	metrics := &RebalanceMetrics{}

	query := `
		SELECT
			COUNT(*) as total_attempts,
			COUNT(CASE WHEN state = 'confirmed' THEN 1 END) as confirmed_attempts,
			COUNT(CASE WHEN state = 'failed' THEN 1 END) as failed_attempts,
			COUNT(DISTINCT attempt_id) as distinct_plans
		FROM rebalance_receipts
	`

	err := DB.QueryRow(query).Scan(
		&metrics.TotalAttempts,
		&metrics.ConfirmedAttempts,
		&metrics.FailedAttempts,
		&metrics.DistinctPlans,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get rebalance metrics: %w", err)
	}

	log.Info().
		Int("totalAttempts", metrics.TotalAttempts).
		Int("confirmed", metrics.ConfirmedAttempts).
		Int("failed", metrics.FailedAttempts).
		Msg("Retrieved rebalance metrics")

	return metrics, nil
}
