/*

This file contains the engine that orchestrates deposits, redemptions, and
tier-targeted rebalancing over the pool's single serialization point.

Locking discipline: every PoolState mutation happens under the engine mutex;
no operation observes a partially-updated pool. External DEX calls never run
under the mutex — a rebalance quote snapshots the pool, the swap executes
outside the lock, and the result is applied only after the snapshot
re-validates.

*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/basketfi/etf-engine/internal/accounting"
	"github.com/basketfi/etf-engine/internal/ledger"
	"github.com/basketfi/etf-engine/internal/logger"
	"github.com/basketfi/etf-engine/internal/oracle"
	"github.com/basketfi/etf-engine/internal/rebalancer"
	"github.com/basketfi/etf-engine/internal/tier"
	"github.com/basketfi/etf-engine/internal/types"
)

var (
	ErrInvalidOwner   = errors.New("owner identifier cannot be empty")
	ErrStalePricing   = errors.New("operation rejected: pricing is stale and stale pricing is not allowed")
	ErrRetryExhausted = errors.New("rebalance retry budget exhausted")
)

// SnapshotSink persists pool snapshots and rebalance receipts. A nil sink
// disables persistence; monitoring then only sees live state.
type SnapshotSink interface {
	SavePoolSnapshot(snapshot types.PoolSnapshot) error
	SaveRebalanceReceipt(receipt types.RebalanceReceipt) error
}

// CustodyView reports the asset balances actually on hand. Pool totals can
// exceed on-hand balances when assets are deployed to an external strategy;
// redemptions check against this view when one is wired.
type CustodyView interface {
	AvailableBalances(ctx context.Context) (assetA, assetB sdkmath.LegacyDec, err error)
}

// Params holds the engine's operational bounds.
type Params struct {
	AssetA               types.AssetID
	AssetB               types.AssetID
	MinDepositUSD        sdkmath.LegacyDec
	TargetTier           types.Tier
	MaxSlippageBps       int64
	MaxRebalanceAttempts int
	// AllowStalePricing lets deposits and redemptions proceed on a
	// last-known-good price flagged stale. The flag is always surfaced on
	// the receipt either way.
	AllowStalePricing bool
}

// Config holds the engine's injected dependencies.
type Config struct {
	Oracle     *oracle.Aggregator
	Ledger     ledger.ShareLedger
	Rebalancer *rebalancer.Rebalancer
	Store      SnapshotSink
	Custody    CustodyView
	Params     Params
}

// Engine owns the singleton PoolState.
type Engine struct {
	mu      sync.Mutex
	pool    types.PoolState
	oracle  *oracle.Aggregator
	ledger  ledger.ShareLedger
	reb     *rebalancer.Rebalancer
	store   SnapshotSink
	custody CustodyView
	params  Params
	logger  zerolog.Logger
}

// NewEngine creates an engine with dependency injection.
func NewEngine(cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}
	e := &Engine{
		pool:    types.NewEmptyPoolState(),
		oracle:  cfg.Oracle,
		ledger:  cfg.Ledger,
		reb:     cfg.Rebalancer,
		store:   cfg.Store,
		custody: cfg.Custody,
		params:  cfg.Params,
		logger:  logger.GetForComponent("engine"),
	}
	e.logger.Info().
		Str("assetA", string(cfg.Params.AssetA)).
		Str("assetB", string(cfg.Params.AssetB)).
		Str("targetTier", cfg.Params.TargetTier.String()).
		Msg("Engine created")
	return e, nil
}

func validateConfig(cfg Config) error {
	if cfg.Oracle == nil {
		return errors.New("oracle aggregator cannot be nil")
	}
	if cfg.Ledger == nil {
		return errors.New("share ledger cannot be nil")
	}
	if cfg.Rebalancer == nil {
		return errors.New("rebalancer cannot be nil")
	}
	if cfg.Params.AssetA == "" || cfg.Params.AssetB == "" || cfg.Params.AssetA == cfg.Params.AssetB {
		return errors.New("engine requires two distinct asset identifiers")
	}
	if cfg.Params.MinDepositUSD.IsNil() || cfg.Params.MinDepositUSD.IsNegative() {
		return errors.New("minimum deposit must be non-negative")
	}
	if cfg.Params.MaxRebalanceAttempts <= 0 {
		return errors.New("max rebalance attempts must be positive")
	}
	if spec := cfg.Params.TargetTier.Spec(); spec.Tier != cfg.Params.TargetTier {
		return errors.New("target tier is not on the ladder")
	}
	return nil
}

// Deposit reads prices once, mints shares, updates the pool, and then
// attempts to move the pool toward the target tier. A failed rebalance never
// rolls back the deposit: by that point shares are already minted, so the
// rebalance outcome is reported on the receipt instead.
func (e *Engine) Deposit(ctx context.Context, owner string, amountA, amountB sdkmath.LegacyDec) (types.DepositReceipt, error) {
	if owner == "" {
		return types.DepositReceipt{}, ErrInvalidOwner
	}

	priceA, priceB, stale, err := e.priceSnapshot(ctx)
	if err != nil {
		return types.DepositReceipt{}, err
	}

	e.mu.Lock()
	shares, depositValue, err := accounting.ComputeSharesForDeposit(
		e.pool, amountA, amountB, priceA.Price, priceB.Price, e.params.MinDepositUSD)
	if err != nil {
		e.mu.Unlock()
		return types.DepositReceipt{}, err
	}
	if err := e.ledger.Mint(ctx, owner, shares); err != nil {
		e.mu.Unlock()
		return types.DepositReceipt{}, fmt.Errorf("share mint failed: %w", err)
	}
	e.pool.TotalAssetA = e.pool.TotalAssetA.Add(amountA)
	e.pool.TotalAssetB = e.pool.TotalAssetB.Add(amountB)
	e.pool.TotalShares = e.pool.TotalShares.Add(shares)
	poolAfter := e.pool
	e.mu.Unlock()

	tierAfter := e.classify(poolAfter)
	e.snapshot("deposit", poolAfter, priceA.Price, priceB.Price, tierAfter)

	e.logger.Info().
		Str("owner", owner).
		Str("amountA", amountA.String()).
		Str("amountB", amountB.String()).
		Str("depositValueUSD", depositValue.String()).
		Str("sharesMinted", shares.String()).
		Str("tier", tierAfter.String()).
		Bool("stalePricing", stale).
		Msg("Deposit settled")

	receipt := types.DepositReceipt{
		Owner:           owner,
		AmountA:         amountA,
		AmountB:         amountB,
		DepositValueUSD: depositValue,
		SharesMinted:    shares,
		PriceA:          priceA,
		PriceB:          priceB,
		StalePricing:    stale,
		TierAfter:       tierAfter.String(),
		Timestamp:       time.Now(),
	}

	rebalanced, rebErr := e.Rebalance(ctx)
	receipt.Rebalanced = rebalanced
	if rebErr != nil && !errors.Is(rebErr, rebalancer.ErrRebalanceNotRequired) {
		receipt.RebalanceError = rebErr.Error()
		e.logger.Warn().Err(rebErr).Str("owner", owner).
			Msg("Post-deposit rebalance failed; deposit stands")
	}
	if rebalanced {
		e.mu.Lock()
		receipt.TierAfter = e.classify(e.pool).String()
		e.mu.Unlock()
	}
	return receipt, nil
}

// Redeem burns shares and pays out pro-rata across both pooled assets.
func (e *Engine) Redeem(ctx context.Context, owner string, shares sdkmath.LegacyDec) (types.RedemptionReceipt, error) {
	if owner == "" {
		return types.RedemptionReceipt{}, ErrInvalidOwner
	}

	priceA, priceB, stale, err := e.priceSnapshot(ctx)
	if err != nil {
		return types.RedemptionReceipt{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	balance, err := e.ledger.BalanceOf(ctx, owner)
	if err != nil {
		return types.RedemptionReceipt{}, fmt.Errorf("balance lookup failed: %w", err)
	}
	if balance.LT(shares) {
		return types.RedemptionReceipt{}, fmt.Errorf("%w: %s holds %s, redeem of %s requested",
			ledger.ErrInsufficientBalance, owner, balance.String(), shares.String())
	}

	breakdown, err := accounting.ComputeRedemption(shares, e.pool, priceA.Price, priceB.Price)
	if err != nil {
		return types.RedemptionReceipt{}, err
	}

	if e.custody != nil {
		availA, availB, err := e.custody.AvailableBalances(ctx)
		if err != nil {
			return types.RedemptionReceipt{}, fmt.Errorf("custody balance lookup failed: %w", err)
		}
		if err := accounting.CheckLiquidity(breakdown, availA, availB); err != nil {
			return types.RedemptionReceipt{}, err
		}
	}

	if err := e.ledger.Burn(ctx, owner, shares); err != nil {
		return types.RedemptionReceipt{}, fmt.Errorf("share burn failed: %w", err)
	}
	e.pool.TotalAssetA = e.pool.TotalAssetA.Sub(breakdown.AmountA)
	e.pool.TotalAssetB = e.pool.TotalAssetB.Sub(breakdown.AmountB)
	e.pool.TotalShares = e.pool.TotalShares.Sub(shares)
	poolAfter := e.pool

	tierAfter := e.classify(poolAfter)
	e.snapshot("redeem", poolAfter, priceA.Price, priceB.Price, tierAfter)

	e.logger.Info().
		Str("owner", owner).
		Str("sharesBurned", shares.String()).
		Str("payoutA", breakdown.AmountA.String()).
		Str("payoutB", breakdown.AmountB.String()).
		Str("payoutUSD", breakdown.USDValue.String()).
		Str("tier", tierAfter.String()).
		Bool("stalePricing", stale).
		Msg("Redemption settled")

	return types.RedemptionReceipt{
		Owner:        owner,
		SharesBurned: shares,
		AmountA:      breakdown.AmountA,
		AmountB:      breakdown.AmountB,
		PayoutUSD:    breakdown.USDValue,
		PriceA:       priceA,
		PriceB:       priceB,
		StalePricing: stale,
		TierAfter:    tierAfter.String(),
		Timestamp:    time.Now(),
	}, nil
}

// Rebalance drives the attempt state machine toward the target tier:
// plan against a pool snapshot, execute the swap outside the lock, then
// re-validate the snapshot before applying the result. Timed-out swaps and
// invalidated snapshots are retried within the attempt budget; every other
// failure is terminal for the attempt.
func (e *Engine) Rebalance(ctx context.Context) (bool, error) {
	var lastErr error

	for attempt := 1; attempt <= e.params.MaxRebalanceAttempts; attempt++ {
		e.mu.Lock()
		poolCopy := e.pool
		e.mu.Unlock()

		quote, err := e.reb.PlanRebalance(ctx, poolCopy, e.params.TargetTier, e.params.MaxSlippageBps)
		if errors.Is(err, rebalancer.ErrRebalanceNotRequired) || errors.Is(err, rebalancer.ErrEmptyPool) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		e.receipt(quote, attempt, types.RebalanceSubmitted, sdkmath.LegacyZeroDec(), "")

		actualOut, err := e.reb.ExecuteRebalance(ctx, quote)
		if err != nil {
			e.receipt(quote, attempt, types.RebalanceFailed, sdkmath.LegacyZeroDec(), err.Error())
			if errors.Is(err, rebalancer.ErrExternalCallTimeout) {
				lastErr = err
				continue
			}
			return false, err
		}

		e.mu.Lock()
		if err := rebalancer.ValidateSnapshot(quote, e.pool); err != nil {
			e.mu.Unlock()
			e.receipt(quote, attempt, types.RebalanceFailed, actualOut, err.Error())
			lastErr = err
			continue
		}
		switch quote.Direction {
		case types.SwapBToA:
			e.pool.TotalAssetB = e.pool.TotalAssetB.Sub(quote.AmountIn)
			e.pool.TotalAssetA = e.pool.TotalAssetA.Add(actualOut)
		case types.SwapAToB:
			e.pool.TotalAssetA = e.pool.TotalAssetA.Sub(quote.AmountIn)
			e.pool.TotalAssetB = e.pool.TotalAssetB.Add(actualOut)
		}
		poolAfter := e.pool
		e.mu.Unlock()

		e.receipt(quote, attempt, types.RebalanceConfirmed, actualOut, "")
		tierAfter := e.classify(poolAfter)
		e.snapshotNoValue("rebalance", poolAfter, tierAfter)

		e.logger.Info().
			Str("attemptID", quote.AttemptID).
			Int("attempt", attempt).
			Str("tier", tierAfter.String()).
			Msg("Rebalance applied")
		return true, nil
	}

	return false, fmt.Errorf("%w: %w", ErrRetryExhausted, lastErr)
}

// RunLoop periodically re-checks the pool ratio and rebalances toward the
// target tier. It blocks until the context is cancelled.
func (e *Engine) RunLoop(ctx context.Context, interval time.Duration) {
	e.logger.Info().Dur("interval", interval).Msg("Starting drift-check loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Drift-check loop stopped")
			return
		case <-ticker.C:
			if _, err := e.Rebalance(ctx); err != nil {
				e.logger.Warn().Err(err).Msg("Periodic rebalance attempt failed")
			}
		}
	}
}

// PoolView returns a copy of the current pool state for monitoring.
func (e *Engine) PoolView() types.PoolState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool
}

// TierView returns the current tier and ratio (ratio defined only when the
// pool holds asset B).
func (e *Engine) TierView() (types.Tier, sdkmath.LegacyDec, bool) {
	e.mu.Lock()
	pool := e.pool
	e.mu.Unlock()
	t := e.classify(pool)
	ratio, defined := tier.Ratio(pool.TotalAssetA, pool.TotalAssetB)
	return t, ratio, defined
}

// PricesView exposes the oracle's cached entries read-only.
func (e *Engine) PricesView() []types.AssetPrice {
	return e.oracle.LastPrices()
}

func (e *Engine) priceSnapshot(ctx context.Context) (priceA, priceB types.AssetPrice, stale bool, err error) {
	priceA, staleA, err := e.oracle.GetPrice(ctx, e.params.AssetA)
	if err != nil {
		return types.AssetPrice{}, types.AssetPrice{}, false, err
	}
	priceB, staleB, err := e.oracle.GetPrice(ctx, e.params.AssetB)
	if err != nil {
		return types.AssetPrice{}, types.AssetPrice{}, false, err
	}
	stale = staleA || staleB
	if stale && !e.params.AllowStalePricing {
		return types.AssetPrice{}, types.AssetPrice{}, false,
			fmt.Errorf("%w: %w", oracle.ErrStalePrice, ErrStalePricing)
	}
	return priceA, priceB, stale, nil
}

func (e *Engine) classify(pool types.PoolState) types.Tier {
	t, err := tier.Classify(pool.TotalAssetA, pool.TotalAssetB)
	if err != nil {
		e.logger.Error().Err(err).Msg("Tier classification failed on live pool state")
		return types.TierBase
	}
	return t
}

func (e *Engine) snapshot(operation string, pool types.PoolState, priceA, priceB sdkmath.LegacyDec, t types.Tier) {
	if e.store == nil {
		return
	}
	snap := types.PoolSnapshot{
		Operation:    operation,
		TotalAssetA:  pool.TotalAssetA,
		TotalAssetB:  pool.TotalAssetB,
		TotalShares:  pool.TotalShares,
		PoolValueUSD: accounting.PoolValueUSD(pool, priceA, priceB),
		Tier:         t.String(),
		Timestamp:    time.Now(),
	}
	if err := e.store.SavePoolSnapshot(snap); err != nil {
		e.logger.Error().Err(err).Str("operation", operation).Msg("Failed to persist pool snapshot")
	}
}

// snapshotNoValue records a snapshot without re-reading prices; rebalances
// change composition, not share supply, and the next valued snapshot follows
// on the next deposit or redemption.
func (e *Engine) snapshotNoValue(operation string, pool types.PoolState, t types.Tier) {
	if e.store == nil {
		return
	}
	snap := types.PoolSnapshot{
		Operation:    operation,
		TotalAssetA:  pool.TotalAssetA,
		TotalAssetB:  pool.TotalAssetB,
		TotalShares:  pool.TotalShares,
		PoolValueUSD: sdkmath.LegacyZeroDec(),
		Tier:         t.String(),
		Timestamp:    time.Now(),
	}
	if err := e.store.SavePoolSnapshot(snap); err != nil {
		e.logger.Error().Err(err).Str("operation", operation).Msg("Failed to persist pool snapshot")
	}
}

func (e *Engine) receipt(quote types.RebalanceQuote, attempt int, state types.RebalanceState, actualOut sdkmath.LegacyDec, message string) {
	if e.store == nil {
		return
	}
	rec := types.RebalanceReceipt{
		AttemptID:       quote.AttemptID,
		Attempt:         attempt,
		Direction:       quote.Direction,
		TargetTier:      quote.TargetTier.String(),
		AmountIn:        quote.AmountIn,
		MinAmountOut:    quote.MinAmountOut,
		ActualAmountOut: actualOut,
		State:           state,
		Message:         message,
		Timestamp:       time.Now(),
	}
	if err := e.store.SaveRebalanceReceipt(rec); err != nil {
		e.logger.Error().Err(err).Str("attemptID", quote.AttemptID).Msg("Failed to persist rebalance receipt")
	}
}
