/*

This file contains the default parameters for the engine.

These defaults are used if no active parameter set is found in the database
during initialization. Each value bounds a specific risk in the deposit,
pricing, or rebalancing path; loosen them only with a new versioned set.

*/

package config

import (
	"github.com/basketfi/etf-engine/internal/types"
)

// DefaultEngineParameters provides a baseline parameter set for the engine.
var DefaultEngineParameters = types.EngineParameters{
	// --- Deposit / redemption ---
	MinDepositUSD: "10.0", // Deposits below $10 round to zero shares too easily.
	PayoutMode:    "pro_rata",
	// Only pro_rata is implemented; redemptions pay both assets in pool
	// proportion so a redemption never moves the ratio.

	// --- Oracle ---
	MaxPriceAgeSeconds: 300, // A price older than 5 minutes is stale.
	MaxDeviationBps:    1000,
	// Circuit breaker: a single update moving more than 10% from the cached
	// price is rejected and the source fallback chain continues. The bound
	// is inclusive; exactly 10% is accepted.
	StalenessCheckDisabled: false, // Emergency override only. Every read under it logs a warning.

	// --- Rebalancing ---
	TargetTier:        "SATOSHI", // Top of the ladder, 16000:1.
	DriftToleranceBps: 500,
	// Hysteresis band around the target threshold: deviations within 5% of
	// it are left alone. Without the band, truncation dust after each swap
	// would trigger a correction on every check.
	MaxSlippageBps:       200, // Reject any swap whose output falls more than 2% short of quote.
	SwapTimeoutSeconds:   30,
	MaxRebalanceAttempts: 3,
	// Bounded retries cover DEX timeouts and quotes invalidated by a
	// concurrent deposit or redemption.

	// --- Drift-check loop ---
	RebalanceIntervalMinutes: 15,
}
