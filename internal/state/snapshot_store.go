// ./internal/state/snapshot_store.go
package state

import (
	"fmt"

	"github.com/basketfi/etf-engine/internal/types"
	"github.com/basketfi/etf-engine/internal/utils"
	"github.com/rs/zerolog/log"
)

// SavePoolSnapshot saves a pool snapshot to the database. Fixed-point values
// travel as decimal strings so no precision is lost at the driver boundary.
func SavePoolSnapshot(snapshot types.PoolSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO pool_snapshots (
			operation, total_asset_a, total_asset_b, total_shares,
			pool_value_usd, tier, snapshot_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err := DB.QueryRow(
		query,
		snapshot.Operation,
		snapshot.TotalAssetA.String(), snapshot.TotalAssetB.String(), snapshot.TotalShares.String(),
		snapshot.PoolValueUSD.String(), snapshot.Tier, snapshot.Timestamp,
	).Scan(&snapshotID)

	if err != nil {
		return 0, fmt.Errorf("failed to save pool snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Str("operation", snapshot.Operation).
		Str("tier", snapshot.Tier).
		Msg("Pool snapshot saved to database")

	return snapshotID, nil
}

// ListRecentPoolSnapshots returns the most recent snapshots, newest first.
func ListRecentPoolSnapshots(limit int) ([]types.PoolSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT snapshot_id, operation, total_asset_a, total_asset_b, total_shares,
		       pool_value_usd, tier, snapshot_timestamp
		FROM pool_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT $1;
	`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pool snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []types.PoolSnapshot
	for rows.Next() {
		var s types.PoolSnapshot
		var assetA, assetB, shares, valueUSD string
		if err := rows.Scan(&s.SnapshotID, &s.Operation, &assetA, &assetB, &shares,
			&valueUSD, &s.Tier, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan pool snapshot row: %w", err)
		}
		if s.TotalAssetA, err = utils.ParseDec(assetA); err != nil {
			return nil, fmt.Errorf("corrupt total_asset_a in snapshot %d: %w", s.SnapshotID, err)
		}
		if s.TotalAssetB, err = utils.ParseDec(assetB); err != nil {
			return nil, fmt.Errorf("corrupt total_asset_b in snapshot %d: %w", s.SnapshotID, err)
		}
		if s.TotalShares, err = utils.ParseDec(shares); err != nil {
			return nil, fmt.Errorf("corrupt total_shares in snapshot %d: %w", s.SnapshotID, err)
		}
		if s.PoolValueUSD, err = utils.ParseDec(valueUSD); err != nil {
			return nil, fmt.Errorf("corrupt pool_value_usd in snapshot %d: %w", s.SnapshotID, err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}
