/*
This file contains the observe-mode adapter wrapper. It quotes against the
real DEX so planned corrections stay visible in the logs, but refuses to
execute any swap.
*/

package dex

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/basketfi/etf-engine/internal/types"
)

var ErrSwapsDisabled = errors.New("swap execution is disabled in observe mode")

// ReadOnlyAdapter delegates quotes to the wrapped adapter and rejects swaps.
type ReadOnlyAdapter struct {
	inner Adapter
}

// ReadOnly wraps an adapter so it can quote but never trade.
func ReadOnly(inner Adapter) *ReadOnlyAdapter {
	return &ReadOnlyAdapter{inner: inner}
}

func (r *ReadOnlyAdapter) QuoteRate(ctx context.Context, in, out types.AssetID) (sdkmath.LegacyDec, error) {
	return r.inner.QuoteRate(ctx, in, out)
}

func (r *ReadOnlyAdapter) Swap(ctx context.Context, in, out types.AssetID, amountIn, minAmountOut sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	return sdkmath.LegacyZeroDec(), ErrSwapsDisabled
}
