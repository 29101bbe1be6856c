package dex

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/basketfi/etf-engine/internal/types"
)

// Adapter defines the interface for the external DEX collaborator.
// This interface abstracts away the venue executing corrective swaps,
// allowing for different implementations (live HTTP adapter, deterministic
// test fixtures, etc.).
type Adapter interface {
	// QuoteRate returns the venue's current exchange rate as units of
	// assetOut per unit of assetIn.
	QuoteRate(ctx context.Context, assetIn, assetOut types.AssetID) (sdkmath.LegacyDec, error)

	// Swap executes a swap and returns the actual output amount. The venue
	// is the source of truth for actual output; minAmountOut is a hint the
	// venue may enforce, but the engine re-checks the result regardless.
	// A swap submitted to the venue cannot be cancelled; it either completes
	// or the context times out.
	Swap(ctx context.Context, assetIn, assetOut types.AssetID, amountIn, minAmountOut sdkmath.LegacyDec) (sdkmath.LegacyDec, error)
}
