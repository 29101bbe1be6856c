/*

This file contains the receipts returned to deposit and redemption callers.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// DepositReceipt summarizes a completed deposit. RebalanceError carries a
// failed rebalance outcome without failing the deposit itself: shares are
// already minted by the time a rebalance is attempted.
type DepositReceipt struct {
	Owner           string            `json:"owner"`
	AmountA         sdkmath.LegacyDec `json:"amount_a"`
	AmountB         sdkmath.LegacyDec `json:"amount_b"`
	DepositValueUSD sdkmath.LegacyDec `json:"deposit_value_usd"`
	SharesMinted    sdkmath.LegacyDec `json:"shares_minted"`
	PriceA          AssetPrice        `json:"price_a"`
	PriceB          AssetPrice        `json:"price_b"`
	StalePricing    bool              `json:"stale_pricing"`
	TierAfter       string            `json:"tier_after"`
	Rebalanced      bool              `json:"rebalanced"`
	RebalanceError  string            `json:"rebalance_error,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// RedemptionReceipt summarizes a completed redemption.
type RedemptionReceipt struct {
	Owner         string            `json:"owner"`
	SharesBurned  sdkmath.LegacyDec `json:"shares_burned"`
	AmountA       sdkmath.LegacyDec `json:"amount_a"`
	AmountB       sdkmath.LegacyDec `json:"amount_b"`
	PayoutUSD     sdkmath.LegacyDec `json:"payout_usd"`
	PriceA        AssetPrice        `json:"price_a"`
	PriceB        AssetPrice        `json:"price_b"`
	StalePricing  bool              `json:"stale_pricing"`
	TierAfter     string            `json:"tier_after"`
	Timestamp     time.Time         `json:"timestamp"`
}
