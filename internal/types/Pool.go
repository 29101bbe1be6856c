/*

This file contains the singleton pool state tracked by the engine. Amounts
are whole asset units as 18-decimal fixed-point values.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// PoolState holds the pooled asset totals and the outstanding share supply.
// It is mutated only by the engine under its serialization lock.
// Invariant: TotalShares is zero exactly when both asset totals are zero.
type PoolState struct {
	TotalAssetA sdkmath.LegacyDec `json:"total_asset_a"` // native token units
	TotalAssetB sdkmath.LegacyDec `json:"total_asset_b"` // BTC-pegged token units
	TotalShares sdkmath.LegacyDec `json:"total_shares"`
}

// NewEmptyPoolState returns a zeroed pool, the state before the first deposit.
func NewEmptyPoolState() PoolState {
	return PoolState{
		TotalAssetA: sdkmath.LegacyZeroDec(),
		TotalAssetB: sdkmath.LegacyZeroDec(),
		TotalShares: sdkmath.LegacyZeroDec(),
	}
}

// IsEmpty reports whether the pool has no outstanding shares.
func (p PoolState) IsEmpty() bool {
	return p.TotalShares.IsZero()
}

// PoolSnapshot is the persisted record of pool state after an operation,
// queryable read-only by monitoring collaborators.
type PoolSnapshot struct {
	SnapshotID   int64             `json:"snapshot_id,omitempty"`
	Operation    string            `json:"operation"` // "deposit", "redeem", "rebalance"
	TotalAssetA  sdkmath.LegacyDec `json:"total_asset_a"`
	TotalAssetB  sdkmath.LegacyDec `json:"total_asset_b"`
	TotalShares  sdkmath.LegacyDec `json:"total_shares"`
	PoolValueUSD sdkmath.LegacyDec `json:"pool_value_usd"`
	Tier         string            `json:"tier"`
	Timestamp    time.Time         `json:"timestamp"`
}
