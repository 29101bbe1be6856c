/*

This file classifies a dual-asset position into a reward tier. The ratio is
raw asset units (native per BTC), mirroring the product's reward mechanics,
not USD value.

*/

package tier

import (
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/basketfi/etf-engine/internal/types"
)

var ErrNegativeAmount = errors.New("amounts must be non-negative")

// Classify maps a position to the highest tier whose threshold is <= the
// asset ratio. Thresholds are inclusive lower bounds, so a ratio landing
// exactly on a threshold resolves to the higher tier. A position with no
// BTC-token units has no defined ratio and is BASE by definition, regardless
// of the native amount.
//
// Comparisons are done by cross-multiplication (amountA >= threshold*amountB)
// rather than division, so exact-threshold ties never depend on division
// rounding.
func Classify(amountA, amountB sdkmath.LegacyDec) (types.Tier, error) {
	if amountA.IsNegative() || amountB.IsNegative() {
		return types.TierBase, ErrNegativeAmount
	}
	if amountB.IsZero() {
		return types.TierBase, nil
	}
	for i := len(types.TierLadder) - 1; i > 0; i-- {
		spec := types.TierLadder[i]
		if amountA.GTE(amountB.MulInt64(spec.MinRatio)) {
			return spec.Tier, nil
		}
	}
	return types.TierBase, nil
}

// Ratio returns amountA / amountB and whether the ratio is defined.
// Monitoring surfaces use this; classification never divides.
func Ratio(amountA, amountB sdkmath.LegacyDec) (sdkmath.LegacyDec, bool) {
	if amountB.IsZero() {
		return sdkmath.LegacyZeroDec(), false
	}
	return amountA.Quo(amountB), true
}
