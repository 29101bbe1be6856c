/*

This file contains the ratio rebalancer: it computes the minimal
single-direction swap that moves the pool's asset ratio onto a target tier's
threshold, bounds the result with a slippage floor, and executes the swap
through the external DEX adapter.

Quotes are computed against a snapshot of the pool; the engine re-validates
that snapshot before applying a swap result, because the DEX call runs
outside the pool's serialization lock.

*/

package rebalancer

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/basketfi/etf-engine/internal/dex"
	"github.com/basketfi/etf-engine/internal/logger"
	"github.com/basketfi/etf-engine/internal/types"
	"github.com/basketfi/etf-engine/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrRebalanceNotRequired = errors.New("pool ratio is within the drift tolerance of the target tier")
	ErrSlippageExceeded     = errors.New("swap output below the minimum acceptable amount")
	ErrExternalCallTimeout  = errors.New("external DEX call timed out")
	ErrPoolStateChanged     = errors.New("pool state changed while the swap was in flight")
	ErrSwapFailed           = errors.New("external DEX call failed")
	ErrInvalidQuote         = errors.New("rebalance quote is invalid")
	ErrEmptyPool            = errors.New("cannot rebalance an empty pool")
)

// Config holds the rebalancer's bounds.
type Config struct {
	// DriftToleranceBps is the hysteresis band: a ratio within this distance
	// of the target threshold is left alone to avoid swap-fee churn. The same
	// check handles "just dropped below tier" and "always been below tier".
	DriftToleranceBps int64
	// MaxSlippageBps bounds the shortfall between quoted and actual output.
	MaxSlippageBps int64
	// SwapTimeout bounds each external DEX call.
	SwapTimeout time.Duration
}

// Rebalancer plans and executes corrective swaps through a DEX adapter.
type Rebalancer struct {
	cfg     Config
	adapter dex.Adapter
	assetA  types.AssetID
	assetB  types.AssetID
	logger  zerolog.Logger
}

func New(cfg Config, adapter dex.Adapter, assetA, assetB types.AssetID) (*Rebalancer, error) {
	if adapter == nil {
		return nil, errors.New("dex adapter cannot be nil")
	}
	if cfg.DriftToleranceBps < 0 || cfg.DriftToleranceBps > 10_000 {
		return nil, errors.New("drift tolerance bps must be in [0, 10000]")
	}
	if cfg.MaxSlippageBps < 0 || cfg.MaxSlippageBps > 10_000 {
		return nil, errors.New("max slippage bps must be in [0, 10000]")
	}
	if cfg.SwapTimeout <= 0 {
		return nil, errors.New("swap timeout must be positive")
	}
	if assetA == "" || assetB == "" || assetA == assetB {
		return nil, errors.New("rebalancer requires two distinct asset identifiers")
	}
	return &Rebalancer{
		cfg:     cfg,
		adapter: adapter,
		assetA:  assetA,
		assetB:  assetB,
		logger:  logger.GetForComponent("rebalancer"),
	}, nil
}

// PlanRebalance computes the swap that lands the pool ratio exactly on the
// target tier's threshold. Landing exactly on the inclusive threshold never
// overshoots past the next tier.
//
// Given the target ratio r*, current totals (a, b), and the DEX quoted rate,
// the solve is:
//
//	need more A (ratio too low):  swap x of B for A,  x = (r*·b − a) / (p + r*)   with p = A out per B in
//	need less A (ratio too high): swap x of A for B,  x = (a − r*·b) / (1 + r*·q) with q = B out per A in
//
// so that the post-swap ratio equals r* exactly at the quoted rate.
func (r *Rebalancer) PlanRebalance(ctx context.Context, pool types.PoolState, targetTier types.Tier, maxSlippageBps int64) (types.RebalanceQuote, error) {
	if maxSlippageBps <= 0 {
		maxSlippageBps = r.cfg.MaxSlippageBps
	}
	a := pool.TotalAssetA
	b := pool.TotalAssetB
	if a.IsNil() || b.IsNil() || a.IsNegative() || b.IsNegative() {
		return types.RebalanceQuote{}, fmt.Errorf("%w: negative or nil totals", ErrInvalidQuote)
	}
	if a.IsZero() && b.IsZero() {
		return types.RebalanceQuote{}, ErrEmptyPool
	}

	rStar := targetTier.MinRatioDec()
	if !rStar.IsPositive() {
		// BASE's threshold is zero; every pool already satisfies it.
		return types.RebalanceQuote{}, ErrRebalanceNotRequired
	}

	needMoreA, required, err := r.direction(a, b, targetTier, rStar)
	if err != nil {
		return types.RebalanceQuote{}, err
	}
	if !required {
		return types.RebalanceQuote{}, ErrRebalanceNotRequired
	}

	var (
		direction types.SwapDirection
		assetIn   types.AssetID
		assetOut  types.AssetID
	)
	if needMoreA {
		direction, assetIn, assetOut = types.SwapBToA, r.assetB, r.assetA
	} else {
		direction, assetIn, assetOut = types.SwapAToB, r.assetA, r.assetB
	}

	rate, err := r.adapter.QuoteRate(ctx, assetIn, assetOut)
	if err != nil {
		return types.RebalanceQuote{}, fmt.Errorf("%w: quote rate: %w", ErrSwapFailed, err)
	}
	if !rate.IsPositive() {
		return types.RebalanceQuote{}, fmt.Errorf("%w: non-positive quoted rate", ErrInvalidQuote)
	}

	var amountIn sdkmath.LegacyDec
	if needMoreA {
		// x = (r*·b − a) / (p + r*)
		amountIn = rStar.Mul(b).Sub(a).QuoTruncate(rate.Add(rStar))
	} else {
		// x = (a − r*·b) / (1 + r*·q)
		amountIn = a.Sub(rStar.Mul(b)).QuoTruncate(sdkmath.LegacyOneDec().Add(rStar.Mul(rate)))
	}
	if !amountIn.IsPositive() {
		return types.RebalanceQuote{}, ErrRebalanceNotRequired
	}

	expectedOut := amountIn.MulTruncate(rate)
	minOut, err := utils.ApplyBpsFloor(expectedOut, maxSlippageBps)
	if err != nil {
		return types.RebalanceQuote{}, fmt.Errorf("%w: %w", ErrInvalidQuote, err)
	}

	quote := types.RebalanceQuote{
		AttemptID:         uuid.NewString(),
		Direction:         direction,
		AmountIn:          amountIn,
		ExpectedAmountOut: expectedOut,
		MinAmountOut:      minOut,
		QuotedRate:        rate,
		TargetTier:        targetTier,
		MaxSlippageBps:    maxSlippageBps,
		SnapshotAssetA:    a,
		SnapshotAssetB:    b,
		CreatedAt:         time.Now(),
	}

	r.logger.Info().
		Str("attemptID", quote.AttemptID).
		Str("direction", string(direction)).
		Str("targetTier", targetTier.String()).
		Str("amountIn", amountIn.String()).
		Str("expectedOut", expectedOut.String()).
		Str("minOut", minOut.String()).
		Str("quotedRate", rate.String()).
		Msg("Rebalance quote computed")
	return quote, nil
}

// ExecuteRebalance submits the quoted swap and enforces the slippage bound
// on the venue's actual output. The check runs after the swap executes: the
// DEX is the source of truth for what actually came out.
func (r *Rebalancer) ExecuteRebalance(ctx context.Context, quote types.RebalanceQuote) (sdkmath.LegacyDec, error) {
	if quote.AmountIn.IsNil() || !quote.AmountIn.IsPositive() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: amount in must be positive", ErrInvalidQuote)
	}

	var assetIn, assetOut types.AssetID
	switch quote.Direction {
	case types.SwapAToB:
		assetIn, assetOut = r.assetA, r.assetB
	case types.SwapBToA:
		assetIn, assetOut = r.assetB, r.assetA
	default:
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: unknown direction %q", ErrInvalidQuote, quote.Direction)
	}

	swapCtx, cancel := context.WithTimeout(ctx, r.cfg.SwapTimeout)
	defer cancel()

	actualOut, err := r.adapter.Swap(swapCtx, assetIn, assetOut, quote.AmountIn, quote.MinAmountOut)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(swapCtx.Err(), context.DeadlineExceeded) {
			return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %w", ErrExternalCallTimeout, err)
		}
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %w", ErrSwapFailed, err)
	}
	if actualOut.IsNil() || actualOut.IsNegative() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: venue reported invalid output", ErrSwapFailed)
	}

	if actualOut.LT(quote.MinAmountOut) {
		r.logger.Error().
			Str("attemptID", quote.AttemptID).
			Str("actualOut", actualOut.String()).
			Str("minOut", quote.MinAmountOut.String()).
			Msg("Swap output below slippage floor")
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: got %s, minimum %s",
			ErrSlippageExceeded, actualOut.String(), quote.MinAmountOut.String())
	}

	r.logger.Info().
		Str("attemptID", quote.AttemptID).
		Str("actualOut", actualOut.String()).
		Msg("Rebalance swap confirmed")
	return actualOut, nil
}

// ValidateSnapshot reports whether the pool still matches the totals the
// quote was computed against. Callers hold the pool lock when calling this.
func ValidateSnapshot(quote types.RebalanceQuote, pool types.PoolState) error {
	if !pool.TotalAssetA.Equal(quote.SnapshotAssetA) || !pool.TotalAssetB.Equal(quote.SnapshotAssetB) {
		return fmt.Errorf("%w: quoted against %s/%s, pool now %s/%s",
			ErrPoolStateChanged,
			quote.SnapshotAssetA.String(), quote.SnapshotAssetB.String(),
			pool.TotalAssetA.String(), pool.TotalAssetB.String())
	}
	return nil
}

// direction decides whether a swap is needed and which way it points.
// needMoreA means the ratio is below the target threshold.
func (r *Rebalancer) direction(a, b sdkmath.LegacyDec, targetTier types.Tier, rStar sdkmath.LegacyDec) (needMoreA bool, required bool, err error) {
	if b.IsZero() {
		// Ratio undefined (BASE by definition); any positive target tier
		// requires acquiring asset B.
		return false, true, nil
	}

	floor := rStar.Mul(b) // threshold expressed in asset-A units
	if a.GTE(floor) {
		if targetTier >= types.HighestTier {
			return false, false, nil
		}
		// Inside the band between this tier and the next: leave alone.
		next := types.TierLadder[targetTier+1]
		if a.LT(b.MulInt64(next.MinRatio)) {
			return false, false, nil
		}
		// Overshot past the next tier: swap A down onto the threshold.
		return false, true, nil
	}

	// Below the threshold: rebalance only when the deficit exceeds the
	// drift tolerance, measured relative to the threshold.
	deficit := floor.Sub(a)
	band := floor.MulInt64(r.cfg.DriftToleranceBps).Quo(sdkmath.LegacyNewDec(10_000))
	if deficit.LTE(band) {
		return true, false, nil
	}
	return true, true, nil
}
