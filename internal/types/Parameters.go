/*

This file contains the tunable engine parameters. Different sets can exist
for different deployments; the active set is versioned in the database.

*/

package types

// EngineParameters holds all tunable thresholds and bounds used by the
// deposit, redemption, oracle, and rebalancing logic.
type EngineParameters struct {
	// --- Deposit / redemption ---
	MinDepositUSD string `json:"min_deposit_usd"` // decimal string, minimum USD value accepted for a deposit
	PayoutMode    string `json:"payout_mode"`     // "pro_rata" (both assets) or "single_asset" (native only)

	// --- Oracle ---
	MaxPriceAgeSeconds     int64 `json:"max_price_age_seconds"`     // entries older than this are stale
	MaxDeviationBps        int64 `json:"max_deviation_bps"`         // circuit breaker: inclusive bound on price movement
	StalenessCheckDisabled bool  `json:"staleness_check_disabled"`  // emergency override; every read logs it

	// --- Rebalancing ---
	TargetTier           string `json:"target_tier"`            // ladder name, default "SATOSHI"
	DriftToleranceBps    int64  `json:"drift_tolerance_bps"`    // hysteresis band around the target threshold
	MaxSlippageBps       int64  `json:"max_slippage_bps"`       // bound on DEX output shortfall
	SwapTimeoutSeconds   int64  `json:"swap_timeout_seconds"`   // per-attempt bound on the external DEX call
	MaxRebalanceAttempts int    `json:"max_rebalance_attempts"` // bounded retries for timeouts and stale quotes

	// --- Drift-check loop ---
	RebalanceIntervalMinutes int `json:"rebalance_interval_minutes"`
}
