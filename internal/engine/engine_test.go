package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basketfi/etf-engine/internal/accounting"
	"github.com/basketfi/etf-engine/internal/ledger"
	"github.com/basketfi/etf-engine/internal/oracle"
	"github.com/basketfi/etf-engine/internal/rebalancer"
	"github.com/basketfi/etf-engine/internal/types"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

type fakeChainOracle struct {
	mu     sync.Mutex
	prices map[types.AssetID]sdkmath.LegacyDec
	ts     time.Time
	err    error
}

func (f *fakeChainOracle) GetPrice(_ context.Context, asset types.AssetID) (sdkmath.LegacyDec, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return sdkmath.LegacyDec{}, time.Time{}, f.err
	}
	price, ok := f.prices[asset]
	if !ok {
		return sdkmath.LegacyDec{}, time.Time{}, fmt.Errorf("no feed for %s", asset)
	}
	ts := f.ts
	if ts.IsZero() {
		ts = time.Now()
	}
	return price, ts, nil
}

func (f *fakeChainOracle) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeAdapter struct {
	mu        sync.Mutex
	rate      sdkmath.LegacyDec
	swapOut   sdkmath.LegacyDec
	swapErr   error
	swapDelay time.Duration
	swapCalls int
}

func (f *fakeAdapter) QuoteRate(_ context.Context, _, _ types.AssetID) (sdkmath.LegacyDec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate, nil
}

func (f *fakeAdapter) Swap(ctx context.Context, _, _ types.AssetID, _, _ sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	f.mu.Lock()
	f.swapCalls++
	delay, out, err := f.swapDelay, f.swapOut, f.swapErr
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return sdkmath.LegacyZeroDec(), ctx.Err()
		}
	}
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	return out, nil
}

func (f *fakeAdapter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.swapCalls
}

type recordingStore struct {
	mu        sync.Mutex
	snapshots []types.PoolSnapshot
	receipts  []types.RebalanceReceipt
}

func (s *recordingStore) SavePoolSnapshot(snapshot types.PoolSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func (s *recordingStore) SaveRebalanceReceipt(receipt types.RebalanceReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, receipt)
	return nil
}

type fakeCustody struct {
	availA sdkmath.LegacyDec
	availB sdkmath.LegacyDec
}

func (f *fakeCustody) AvailableBalances(_ context.Context) (sdkmath.LegacyDec, sdkmath.LegacyDec, error) {
	return f.availA, f.availB, nil
}

type harness struct {
	engine  *Engine
	agg     *oracle.Aggregator
	chain   *fakeChainOracle
	adapter *fakeAdapter
	store   *recordingStore
	ledger  ledger.ShareLedger
}

func defaultParams() Params {
	return Params{
		AssetA:               "CORE",
		AssetB:               "COREBTC",
		MinDepositUSD:        dec("10"),
		TargetTier:           types.TierSatoshi,
		MaxSlippageBps:       200,
		MaxRebalanceAttempts: 3,
	}
}

func newHarness(t *testing.T, params Params, rebCfg rebalancer.Config, custody CustodyView) *harness {
	t.Helper()

	chain := &fakeChainOracle{prices: map[types.AssetID]sdkmath.LegacyDec{
		"CORE":    dec("1.5"),
		"COREBTC": dec("65000"),
	}}
	agg, err := oracle.NewAggregator(oracle.Config{
		MaxPriceAge:     5 * time.Minute,
		MaxDeviationBps: 10000,
	}, chain, nil, nil)
	require.NoError(t, err)

	adapter := &fakeAdapter{rate: dec("1")}
	reb, err := rebalancer.New(rebCfg, adapter, params.AssetA, params.AssetB)
	require.NoError(t, err)

	store := &recordingStore{}
	shareLedger := ledger.NewMemoryLedger()
	eng, err := NewEngine(Config{
		Oracle:     agg,
		Ledger:     shareLedger,
		Rebalancer: reb,
		Store:      store,
		Custody:    custody,
		Params:     params,
	})
	require.NoError(t, err)

	return &harness{engine: eng, agg: agg, chain: chain, adapter: adapter, store: store, ledger: shareLedger}
}

func defaultRebConfig() rebalancer.Config {
	return rebalancer.Config{
		DriftToleranceBps: 50,
		MaxSlippageBps:    200,
		SwapTimeout:       time.Second,
	}
}

func TestNewEngine(t *testing.T) {
	t.Run("should reject missing dependencies", func(t *testing.T) {
		_, err := NewEngine(Config{Params: defaultParams()})
		require.Error(t, err)
	})

	t.Run("should reject identical asset identifiers", func(t *testing.T) {
		h := newHarness(t, defaultParams(), defaultRebConfig(), nil)
		params := defaultParams()
		params.AssetB = params.AssetA
		_, err := NewEngine(Config{
			Oracle:     h.agg,
			Ledger:     h.ledger,
			Rebalancer: h.engine.reb,
			Params:     params,
		})
		require.Error(t, err)
	})

	t.Run("should reject a non-positive attempt budget", func(t *testing.T) {
		h := newHarness(t, defaultParams(), defaultRebConfig(), nil)
		params := defaultParams()
		params.MaxRebalanceAttempts = 0
		_, err := NewEngine(Config{
			Oracle:     h.agg,
			Ledger:     h.ledger,
			Rebalancer: h.engine.reb,
			Params:     params,
		})
		require.Error(t, err)
	})
}

func TestEngineDeposit(t *testing.T) {
	ctx := context.Background()

	t.Run("should bootstrap shares at one dollar and rebalance toward the target tier", func(t *testing.T) {
		h := newHarness(t, defaultParams(), defaultRebConfig(), nil)
		// Quote 4000 CORE out per COREBTC in: the solve lands the ratio
		// exactly on 16000 with x = (16000*1 - 1000) / (4000 + 16000) = 0.75.
		h.adapter.rate = dec("4000")
		h.adapter.swapOut = dec("3000")

		receipt, err := h.engine.Deposit(ctx, "alice", dec("1000"), dec("1"))
		require.NoError(t, err)

		assert.True(t, receipt.DepositValueUSD.Equal(dec("66500")))
		assert.True(t, receipt.SharesMinted.Equal(dec("66500")))
		assert.False(t, receipt.StalePricing)
		assert.True(t, receipt.Rebalanced)
		assert.Empty(t, receipt.RebalanceError)
		assert.Equal(t, "SATOSHI", receipt.TierAfter)

		pool := h.engine.PoolView()
		assert.True(t, pool.TotalAssetA.Equal(dec("4000")))
		assert.True(t, pool.TotalAssetB.Equal(dec("0.25")))
		assert.True(t, pool.TotalShares.Equal(dec("66500")))

		balance, err := h.ledger.BalanceOf(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, balance.Equal(dec("66500")))

		// One valued deposit snapshot, one rebalance snapshot, and the
		// submitted/confirmed receipt pair for the single attempt.
		require.Len(t, h.store.snapshots, 2)
		assert.Equal(t, "deposit", h.store.snapshots[0].Operation)
		assert.True(t, h.store.snapshots[0].PoolValueUSD.Equal(dec("66500")))
		assert.Equal(t, "rebalance", h.store.snapshots[1].Operation)
		require.Len(t, h.store.receipts, 2)
		assert.Equal(t, types.RebalanceSubmitted, h.store.receipts[0].State)
		assert.Equal(t, types.RebalanceConfirmed, h.store.receipts[1].State)
		assert.True(t, h.store.receipts[1].ActualAmountOut.Equal(dec("3000")))
	})

	t.Run("should leave a pool already on the target threshold alone", func(t *testing.T) {
		h := newHarness(t, defaultParams(), defaultRebConfig(), nil)

		receipt, err := h.engine.Deposit(ctx, "alice", dec("16000"), dec("1"))
		require.NoError(t, err)

		assert.False(t, receipt.Rebalanced)
		assert.Empty(t, receipt.RebalanceError)
		assert.Equal(t, "SATOSHI", receipt.TierAfter)
		assert.Equal(t, 0, h.adapter.calls())
	})

	t.Run("should mint proportionally on a seeded pool", func(t *testing.T) {
		h := newHarness(t, defaultParams(), defaultRebConfig(), nil)

		_, err := h.engine.Deposit(ctx, "alice", dec("16000"), dec("1"))
		require.NoError(t, err)
		receipt, err := h.engine.Deposit(ctx, "bob", dec("1600"), dec("0.1"))
		require.NoError(t, err)

		// Pool value 89000 across 89000 shares: one dollar buys one share.
		assert.True(t, receipt.SharesMinted.Equal(dec("8900")))

		supply, err := h.ledger.TotalSupply(ctx)
		require.NoError(t, err)
		assert.True(t, supply.Equal(dec("97900")))
	})

	t.Run("should reject a deposit below the configured minimum", func(t *testing.T) {
		h := newHarness(t, defaultParams(), defaultRebConfig(), nil)
		_, err := h.engine.Deposit(ctx, "alice", dec("1"), dec("0"))
		require.ErrorIs(t, err, accounting.ErrInsufficientDeposit)
	})

	t.Run("should reject an empty owner", func(t *testing.T) {
		h := newHarness(t, defaultParams(), defaultRebConfig(), nil)
		_, err := h.engine.Deposit(ctx, "", dec("1000"), dec("1"))
		require.ErrorIs(t, err, ErrInvalidOwner)
	})

	t.Run("should report a failed post-deposit rebalance without rolling back the deposit", func(t *testing.T) {
		h := newHarness(t, defaultParams(), defaultRebConfig(), nil)
		h.adapter.rate = dec("4000")
		h.adapter.swapErr = errors.New("venue rejected order")

		receipt, err := h.engine.Deposit(ctx, "alice", dec("1000"), dec("1"))
		require.NoError(t, err)

		assert.False(t, receipt.Rebalanced)
		assert.Contains(t, receipt.RebalanceError, "venue rejected order")
		assert.True(t, receipt.SharesMinted.Equal(dec("66500")))

		pool := h.engine.PoolView()
		assert.True(t, pool.TotalAssetA.Equal(dec("1000")))
		assert.True(t, pool.TotalAssetB.Equal(dec("1")))
	})
}

func TestEngineStalePricing(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, allowStale bool) *harness {
		params := defaultParams()
		params.TargetTier = types.TierBase // no rebalance noise
		params.AllowStalePricing = allowStale
		return newHarness(t, params, defaultRebConfig(), nil)
	}

	t.Run("should reject operations on stale prices by default", func(t *testing.T) {
		h := setup(t, false)
		base := time.Now()
		now := base
		h.agg.WithClock(func() time.Time { return now })
		h.chain.ts = base

		_, err := h.engine.Deposit(ctx, "alice", dec("16000"), dec("1"))
		require.NoError(t, err)

		// Both sources go dark and the cache ages past the staleness bound.
		h.chain.setError(errors.New("oracle offline"))
		now = base.Add(10 * time.Minute)

		_, err = h.engine.Deposit(ctx, "alice", dec("16000"), dec("1"))
		require.ErrorIs(t, err, ErrStalePricing)
		require.ErrorIs(t, err, oracle.ErrStalePrice)

		_, err = h.engine.Redeem(ctx, "alice", dec("100"))
		require.ErrorIs(t, err, ErrStalePricing)
	})

	t.Run("should proceed on stale prices when allowed and flag the receipt", func(t *testing.T) {
		h := setup(t, true)
		base := time.Now()
		now := base
		h.agg.WithClock(func() time.Time { return now })
		h.chain.ts = base

		_, err := h.engine.Deposit(ctx, "alice", dec("16000"), dec("1"))
		require.NoError(t, err)

		h.chain.setError(errors.New("oracle offline"))
		now = base.Add(10 * time.Minute)

		receipt, err := h.engine.Deposit(ctx, "alice", dec("16000"), dec("1"))
		require.NoError(t, err)
		assert.True(t, receipt.StalePricing)
	})
}

func TestEngineRedeem(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, custody CustodyView) *harness {
		params := defaultParams()
		h := newHarness(t, params, defaultRebConfig(), custody)
		h.chain.prices["CORE"] = dec("1")
		h.chain.prices["COREBTC"] = dec("16000")
		_, err := h.engine.Deposit(ctx, "alice", dec("16000"), dec("1"))
		require.NoError(t, err)
		return h
	}

	t.Run("should pay out pro-rata across both assets", func(t *testing.T) {
		h := seed(t, nil)

		receipt, err := h.engine.Redeem(ctx, "alice", dec("16000"))
		require.NoError(t, err)

		assert.True(t, receipt.AmountA.Equal(dec("8000")))
		assert.True(t, receipt.AmountB.Equal(dec("0.5")))
		assert.True(t, receipt.PayoutUSD.Equal(dec("16000")))
		assert.Equal(t, "SATOSHI", receipt.TierAfter)

		pool := h.engine.PoolView()
		assert.True(t, pool.TotalAssetA.Equal(dec("8000")))
		assert.True(t, pool.TotalAssetB.Equal(dec("0.5")))
		assert.True(t, pool.TotalShares.Equal(dec("16000")))

		balance, err := h.ledger.BalanceOf(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, balance.Equal(dec("16000")))
	})

	t.Run("should reject redeeming more shares than the owner holds", func(t *testing.T) {
		h := seed(t, nil)
		_, err := h.engine.Redeem(ctx, "alice", dec("32000.000000000000000001"))
		require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	})

	t.Run("should reject an unknown owner", func(t *testing.T) {
		h := seed(t, nil)
		_, err := h.engine.Redeem(ctx, "mallory", dec("1"))
		require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	})

	t.Run("should surface a custody shortfall before burning", func(t *testing.T) {
		custody := &fakeCustody{availA: dec("100"), availB: dec("1")}
		h := seed(t, custody)

		_, err := h.engine.Redeem(ctx, "alice", dec("16000"))
		require.ErrorIs(t, err, accounting.ErrInsufficientPoolLiquidity)

		// Nothing burned, nothing moved.
		balance, err := h.ledger.BalanceOf(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, balance.Equal(dec("32000")))
		pool := h.engine.PoolView()
		assert.True(t, pool.TotalAssetA.Equal(dec("16000")))
	})

	t.Run("should allow redemption when custody covers the payout", func(t *testing.T) {
		custody := &fakeCustody{availA: dec("16000"), availB: dec("1")}
		h := seed(t, custody)

		_, err := h.engine.Redeem(ctx, "alice", dec("16000"))
		require.NoError(t, err)
	})
}

func TestEngineRebalanceRetries(t *testing.T) {
	ctx := context.Background()

	seedOffTarget := func(t *testing.T, rebCfg rebalancer.Config, attempts int) *harness {
		params := defaultParams()
		params.TargetTier = types.TierBase // keep the deposit itself quiet
		params.MaxRebalanceAttempts = attempts
		h := newHarness(t, params, rebCfg, nil)
		_, err := h.engine.Deposit(ctx, "alice", dec("1000"), dec("1"))
		require.NoError(t, err)
		h.engine.params.TargetTier = types.TierSatoshi
		return h
	}

	t.Run("should retry timed-out swaps until the budget is exhausted", func(t *testing.T) {
		cfg := defaultRebConfig()
		cfg.SwapTimeout = 10 * time.Millisecond
		h := seedOffTarget(t, cfg, 2)
		h.adapter.rate = dec("4000")
		h.adapter.swapDelay = 500 * time.Millisecond

		rebalanced, err := h.engine.Rebalance(ctx)
		require.ErrorIs(t, err, ErrRetryExhausted)
		require.ErrorIs(t, err, rebalancer.ErrExternalCallTimeout)
		assert.False(t, rebalanced)
		assert.Equal(t, 2, h.adapter.calls())

		// Each attempt leaves a submitted and a failed receipt.
		require.Len(t, h.store.receipts, 4)
		assert.Equal(t, types.RebalanceFailed, h.store.receipts[1].State)
		assert.Equal(t, types.RebalanceFailed, h.store.receipts[3].State)

		// The pool is untouched across the failed attempts.
		pool := h.engine.PoolView()
		assert.True(t, pool.TotalAssetA.Equal(dec("1000")))
		assert.True(t, pool.TotalAssetB.Equal(dec("1")))
	})

	t.Run("should fail terminally on a venue error without retrying", func(t *testing.T) {
		h := seedOffTarget(t, defaultRebConfig(), 3)
		h.adapter.rate = dec("4000")
		h.adapter.swapErr = errors.New("venue rejected order")

		rebalanced, err := h.engine.Rebalance(ctx)
		require.ErrorIs(t, err, rebalancer.ErrSwapFailed)
		assert.False(t, rebalanced)
		assert.Equal(t, 1, h.adapter.calls())
	})

	t.Run("should return quietly when no rebalance is required", func(t *testing.T) {
		h := newHarness(t, defaultParams(), defaultRebConfig(), nil)
		_, err := h.engine.Deposit(ctx, "alice", dec("16000"), dec("1"))
		require.NoError(t, err)

		rebalanced, err := h.engine.Rebalance(ctx)
		require.NoError(t, err)
		assert.False(t, rebalanced)
	})

	t.Run("should return quietly on an empty pool", func(t *testing.T) {
		h := newHarness(t, defaultParams(), defaultRebConfig(), nil)
		rebalanced, err := h.engine.Rebalance(ctx)
		require.NoError(t, err)
		assert.False(t, rebalanced)
		assert.Equal(t, 0, h.adapter.calls())
	})
}

func TestEngineViews(t *testing.T) {
	ctx := context.Background()

	t.Run("should classify an empty pool as BASE with an undefined ratio", func(t *testing.T) {
		h := newHarness(t, defaultParams(), defaultRebConfig(), nil)
		tierNow, _, defined := h.engine.TierView()
		assert.Equal(t, types.TierBase, tierNow)
		assert.False(t, defined)
	})

	t.Run("should expose pool, tier, and cached prices after a deposit", func(t *testing.T) {
		h := newHarness(t, defaultParams(), defaultRebConfig(), nil)
		_, err := h.engine.Deposit(ctx, "alice", dec("16000"), dec("1"))
		require.NoError(t, err)

		tierNow, ratio, defined := h.engine.TierView()
		assert.Equal(t, types.TierSatoshi, tierNow)
		require.True(t, defined)
		assert.True(t, ratio.Equal(dec("16000")))

		prices := h.engine.PricesView()
		assert.Len(t, prices, 2)
	})
}
