package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basketfi/etf-engine/internal/types"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

// fakeChainOracle returns a fixed price/timestamp or an error.
type fakeChainOracle struct {
	price sdkmath.LegacyDec
	ts    time.Time
	err   error
	calls int
}

func (f *fakeChainOracle) GetPrice(ctx context.Context, asset types.AssetID) (sdkmath.LegacyDec, time.Time, error) {
	f.calls++
	if f.err != nil {
		return sdkmath.LegacyZeroDec(), time.Time{}, f.err
	}
	return f.price, f.ts, nil
}

type fakeAPISource struct {
	price sdkmath.LegacyDec
	err   error
	calls int
}

func (f *fakeAPISource) GetPriceUSD(ctx context.Context, asset types.AssetID) (sdkmath.LegacyDec, error) {
	f.calls++
	if f.err != nil {
		return sdkmath.LegacyZeroDec(), f.err
	}
	return f.price, nil
}

type recordingSink struct {
	entries []types.PriceAuditEntry
}

func (r *recordingSink) RecordPriceAudit(entry types.PriceAuditEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func testConfig() Config {
	return Config{
		MaxPriceAge:     5 * time.Minute,
		MaxDeviationBps: 1000,
	}
}

func TestGetPriceFallbackChain(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	t.Run("should prefer the chain oracle when fresh", func(t *testing.T) {
		chain := &fakeChainOracle{price: dec("1.5"), ts: now.Add(-time.Minute)}
		api := &fakeAPISource{price: dec("9.9")}
		agg, err := NewAggregator(testConfig(), chain, api, nil)
		require.NoError(t, err)
		agg.WithClock(func() time.Time { return now })

		price, stale, err := agg.GetPrice(ctx, "CORE")
		require.NoError(t, err)
		assert.False(t, stale)
		assert.True(t, price.Price.Equal(dec("1.5")))
		assert.Equal(t, types.SourceChainOracle, price.Source)
		assert.Zero(t, api.calls, "secondary source must not be polled when the primary succeeds")
	})

	t.Run("should fall back to the API when the chain oracle fails", func(t *testing.T) {
		chain := &fakeChainOracle{err: errors.New("connection refused")}
		api := &fakeAPISource{price: dec("1.48")}
		agg, err := NewAggregator(testConfig(), chain, api, nil)
		require.NoError(t, err)
		agg.WithClock(func() time.Time { return now })

		price, stale, err := agg.GetPrice(ctx, "CORE")
		require.NoError(t, err)
		assert.False(t, stale)
		assert.True(t, price.Price.Equal(dec("1.48")))
		assert.Equal(t, types.SourcePriceAPI, price.Source)
	})

	t.Run("should skip a chain oracle reading older than the max age", func(t *testing.T) {
		chain := &fakeChainOracle{price: dec("1.5"), ts: now.Add(-time.Hour)}
		api := &fakeAPISource{price: dec("1.48")}
		agg, err := NewAggregator(testConfig(), chain, api, nil)
		require.NoError(t, err)
		agg.WithClock(func() time.Time { return now })

		price, _, err := agg.GetPrice(ctx, "CORE")
		require.NoError(t, err)
		assert.Equal(t, types.SourcePriceAPI, price.Source)
	})

	t.Run("should accept an aged chain reading only under the staleness override", func(t *testing.T) {
		chain := &fakeChainOracle{price: dec("1.5"), ts: now.Add(-time.Hour)}
		api := &fakeAPISource{price: dec("1.48")}
		agg, err := NewAggregator(testConfig(), chain, api, nil)
		require.NoError(t, err)
		agg.WithClock(func() time.Time { return now })
		agg.SetStalenessCheckDisabled(true)

		price, stale, err := agg.GetPrice(ctx, "CORE")
		require.NoError(t, err)
		assert.False(t, stale)
		assert.True(t, price.Price.Equal(dec("1.5")))
		assert.Equal(t, types.SourceChainOracle, price.Source)
		assert.Zero(t, api.calls, "aged primary reading must win under the override")
	})

	t.Run("should serve the cached value flagged stale when both sources fail", func(t *testing.T) {
		chain := &fakeChainOracle{price: dec("1.5"), ts: now.Add(-time.Minute)}
		api := &fakeAPISource{err: errors.New("503")}
		agg, err := NewAggregator(testConfig(), chain, api, nil)
		require.NoError(t, err)

		clock := now
		agg.WithClock(func() time.Time { return clock })

		_, stale, err := agg.GetPrice(ctx, "CORE")
		require.NoError(t, err)
		require.False(t, stale)

		// Both sources go dark and ten minutes pass.
		chain.err = errors.New("connection refused")
		clock = now.Add(10 * time.Minute)

		price, stale, err := agg.GetPrice(ctx, "CORE")
		require.NoError(t, err)
		assert.True(t, stale, "cached fallback older than MaxPriceAge must be flagged")
		assert.True(t, price.Price.Equal(dec("1.5")))
		assert.Equal(t, types.SourceCache, price.Source, "cache-served prices carry the cache tag")
	})

	t.Run("should fail with ErrNoPriceData when nothing was ever recorded", func(t *testing.T) {
		chain := &fakeChainOracle{err: errors.New("down")}
		api := &fakeAPISource{err: errors.New("down")}
		agg, err := NewAggregator(testConfig(), chain, api, nil)
		require.NoError(t, err)
		agg.WithClock(func() time.Time { return now })

		_, _, err = agg.GetPrice(ctx, "CORE")
		require.ErrorIs(t, err, ErrNoPriceData)
	})

	t.Run("should fall through when the breaker rejects a source update", func(t *testing.T) {
		chain := &fakeChainOracle{price: dec("1.5"), ts: now.Add(-time.Minute)}
		agg, err := NewAggregator(testConfig(), chain, nil, nil)
		require.NoError(t, err)

		clock := now
		agg.WithClock(func() time.Time { return clock })

		_, _, err = agg.GetPrice(ctx, "CORE")
		require.NoError(t, err)

		// The oracle now reports a 20% jump; the breaker must reject it and
		// the cached last-accepted value survives.
		chain.price = dec("1.8")
		chain.ts = now.Add(time.Minute)
		clock = now.Add(2 * time.Minute)

		price, stale, err := agg.GetPrice(ctx, "CORE")
		require.NoError(t, err)
		assert.False(t, stale)
		assert.True(t, price.Price.Equal(dec("1.5")), "rejected update must not supersede the cache")
	})
}

func TestStalenessOverride(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	chain := &fakeChainOracle{price: dec("1.5"), ts: now.Add(-time.Minute)}
	agg, err := NewAggregator(testConfig(), chain, nil, nil)
	require.NoError(t, err)

	clock := now
	agg.WithClock(func() time.Time { return clock })

	_, _, err = agg.GetPrice(ctx, "CORE")
	require.NoError(t, err)

	chain.err = errors.New("down")
	clock = now.Add(time.Hour)

	_, stale, err := agg.GetPrice(ctx, "CORE")
	require.NoError(t, err)
	require.True(t, stale)

	agg.SetStalenessCheckDisabled(true)
	_, stale, err = agg.GetPrice(ctx, "CORE")
	require.NoError(t, err)
	assert.False(t, stale, "override must suppress the stale flag")

	agg.SetStalenessCheckDisabled(false)
	_, stale, err = agg.GetPrice(ctx, "CORE")
	require.NoError(t, err)
	assert.True(t, stale, "stale flag must return when the override lifts")
}

func TestSubmitPriceCircuitBreaker(t *testing.T) {
	t.Run("should accept a move exactly on the deviation bound", func(t *testing.T) {
		sink := &recordingSink{}
		agg, err := NewAggregator(testConfig(), nil, nil, sink)
		require.NoError(t, err)

		require.NoError(t, agg.SubmitPrice("CORE", dec("1"), types.SourceManual, false))
		// 1000 bps = exactly 10%; the bound is inclusive.
		require.NoError(t, agg.SubmitPrice("CORE", dec("1.1"), types.SourceManual, false))

		require.Len(t, sink.entries, 2)
		assert.True(t, sink.entries[1].Accepted)
		assert.True(t, sink.entries[1].DeviationBps.Equal(dec("1000")))
	})

	t.Run("should reject a move past the bound with no cache side effects", func(t *testing.T) {
		sink := &recordingSink{}
		agg, err := NewAggregator(testConfig(), nil, nil, sink)
		require.NoError(t, err)

		require.NoError(t, agg.SubmitPrice("CORE", dec("1"), types.SourceManual, false))
		err = agg.SubmitPrice("CORE", dec("1.2"), types.SourceManual, false)
		require.ErrorIs(t, err, ErrPriceDeviation)

		prices := agg.LastPrices()
		require.Len(t, prices, 1)
		assert.True(t, prices[0].Price.Equal(dec("1")), "rejected submission must leave the cache untouched")

		require.Len(t, sink.entries, 2)
		assert.False(t, sink.entries[1].Accepted)
		assert.NotEmpty(t, sink.entries[1].RejectionReason)
	})

	t.Run("should bypass the breaker with emergency authority and flag the audit entry", func(t *testing.T) {
		sink := &recordingSink{}
		agg, err := NewAggregator(testConfig(), nil, nil, sink)
		require.NoError(t, err)

		require.NoError(t, agg.SubmitPrice("CORE", dec("1"), types.SourceManual, false))
		require.NoError(t, agg.SubmitPrice("CORE", dec("2"), types.SourceManual, true))

		prices := agg.LastPrices()
		require.Len(t, prices, 1)
		assert.True(t, prices[0].Price.Equal(dec("2")))

		require.Len(t, sink.entries, 2)
		assert.True(t, sink.entries[1].Accepted)
		assert.True(t, sink.entries[1].EmergencyBypass)
	})

	t.Run("should not flag an in-bounds emergency submission", func(t *testing.T) {
		sink := &recordingSink{}
		agg, err := NewAggregator(testConfig(), nil, nil, sink)
		require.NoError(t, err)

		require.NoError(t, agg.SubmitPrice("CORE", dec("1"), types.SourceManual, false))
		require.NoError(t, agg.SubmitPrice("CORE", dec("1.01"), types.SourceManual, true))

		require.Len(t, sink.entries, 2)
		assert.False(t, sink.entries[1].EmergencyBypass, "bypass flag is reserved for breaker overrides")
	})

	t.Run("should reject non-positive prices", func(t *testing.T) {
		agg, err := NewAggregator(testConfig(), nil, nil, nil)
		require.NoError(t, err)

		err = agg.SubmitPrice("CORE", sdkmath.LegacyZeroDec(), types.SourceManual, false)
		require.ErrorIs(t, err, ErrInvalidPrice)
	})
}
