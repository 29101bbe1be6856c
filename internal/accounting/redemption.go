/*

This file contains the redemption calculator: the inverse of deposit
accounting. A share amount converts into a pro-rata payout across both
pooled assets. Payouts round down, which protects the pool from insolvency.

*/

package accounting

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/basketfi/etf-engine/internal/types"
)

// RedemptionBreakdown is the computed payout for a share redemption.
type RedemptionBreakdown struct {
	AmountA  sdkmath.LegacyDec `json:"amount_a"`
	AmountB  sdkmath.LegacyDec `json:"amount_b"`
	USDValue sdkmath.LegacyDec `json:"usd_value"`
}

// ComputeRedemption converts a share amount into returnable asset amounts at
// the given price snapshot. The payout is pro-rata across both pooled assets
// in proportion to their share of the pool.
//
// Redeeming the entire outstanding supply returns the exact pool totals so
// the empty-pool state stays exact: zero shares means zero of both assets,
// never a dust remainder.
func ComputeRedemption(
	shares sdkmath.LegacyDec,
	pool types.PoolState,
	priceA, priceB sdkmath.LegacyDec,
) (RedemptionBreakdown, error) {
	if err := validatePrices(priceA, priceB); err != nil {
		return RedemptionBreakdown{}, err
	}
	if shares.IsNil() || !shares.IsPositive() {
		return RedemptionBreakdown{}, fmt.Errorf("%w: shares must be positive", ErrInvalidAmount)
	}
	if pool.IsEmpty() {
		return RedemptionBreakdown{}, fmt.Errorf("%w: no shares outstanding", ErrInsufficientShares)
	}
	if shares.GT(pool.TotalShares) {
		return RedemptionBreakdown{}, fmt.Errorf("%w: %s > %s",
			ErrInsufficientShares, shares.String(), pool.TotalShares.String())
	}

	var amountA, amountB sdkmath.LegacyDec
	if shares.Equal(pool.TotalShares) {
		amountA = pool.TotalAssetA
		amountB = pool.TotalAssetB
	} else {
		amountA = pool.TotalAssetA.MulTruncate(shares).QuoTruncate(pool.TotalShares)
		amountB = pool.TotalAssetB.MulTruncate(shares).QuoTruncate(pool.TotalShares)
	}

	if amountA.GT(pool.TotalAssetA) || amountB.GT(pool.TotalAssetB) {
		return RedemptionBreakdown{}, fmt.Errorf("%w: payout %s/%s against totals %s/%s",
			ErrInsufficientPoolLiquidity,
			amountA.String(), amountB.String(),
			pool.TotalAssetA.String(), pool.TotalAssetB.String())
	}

	return RedemptionBreakdown{
		AmountA:  amountA,
		AmountB:  amountB,
		USDValue: amountA.MulTruncate(priceA).Add(amountB.MulTruncate(priceB)),
	}, nil
}

// CheckLiquidity verifies a computed payout against the balances actually on
// hand. Pool totals can exceed on-hand balances when assets are deployed to
// an external strategy; that shortfall is surfaced, never silently truncated.
func CheckLiquidity(breakdown RedemptionBreakdown, availableA, availableB sdkmath.LegacyDec) error {
	if breakdown.AmountA.GT(availableA) || breakdown.AmountB.GT(availableB) {
		return fmt.Errorf("%w: payout %s/%s against available %s/%s",
			ErrInsufficientPoolLiquidity,
			breakdown.AmountA.String(), breakdown.AmountB.String(),
			availableA.String(), availableB.String())
	}
	return nil
}
