/*

This file contains the types produced and consumed during a single rebalance
attempt: the ephemeral quote, the attempt state machine, and the persisted
receipt.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// SwapDirection is the single direction of a corrective swap.
type SwapDirection string

const (
	SwapAToB SwapDirection = "A_TO_B" // sell native, buy BTC token
	SwapBToA SwapDirection = "B_TO_A" // sell BTC token, buy native
)

// RebalanceQuote is a bounded swap plan that moves the pool ratio onto the
// target tier's threshold. It is produced and consumed within one rebalance
// attempt and never persisted directly. The snapshot fields capture the pool
// totals the quote was computed against so the result can be re-validated
// before it is applied.
type RebalanceQuote struct {
	AttemptID         string            `json:"attempt_id"`
	Direction         SwapDirection     `json:"direction"`
	AmountIn          sdkmath.LegacyDec `json:"amount_in"`
	ExpectedAmountOut sdkmath.LegacyDec `json:"expected_amount_out"`
	MinAmountOut      sdkmath.LegacyDec `json:"min_amount_out"`
	QuotedRate        sdkmath.LegacyDec `json:"quoted_rate"` // units out per unit in
	TargetTier        Tier              `json:"target_tier"`
	MaxSlippageBps    int64             `json:"max_slippage_bps"`
	SnapshotAssetA    sdkmath.LegacyDec `json:"snapshot_asset_a"`
	SnapshotAssetB    sdkmath.LegacyDec `json:"snapshot_asset_b"`
	CreatedAt         time.Time         `json:"created_at"`
}

// RebalanceState is the explicit lifecycle of a rebalance attempt. Idle is
// the absence of a receipt; a swap submitted to the DEX cannot be cancelled,
// it either confirms or times out.
type RebalanceState string

const (
	RebalanceSubmitted RebalanceState = "submitted"
	RebalanceConfirmed RebalanceState = "confirmed"
	RebalanceFailed    RebalanceState = "failed"
)

// RebalanceReceipt is the persisted outcome of a rebalance attempt.
type RebalanceReceipt struct {
	ReceiptID       int64             `json:"receipt_id,omitempty"`
	AttemptID       string            `json:"attempt_id"`
	Attempt         int               `json:"attempt"`
	Direction       SwapDirection     `json:"direction"`
	TargetTier      string            `json:"target_tier"`
	AmountIn        sdkmath.LegacyDec `json:"amount_in"`
	MinAmountOut    sdkmath.LegacyDec `json:"min_amount_out"`
	ActualAmountOut sdkmath.LegacyDec `json:"actual_amount_out"`
	State           RebalanceState    `json:"state"`
	Message         string            `json:"message,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}
