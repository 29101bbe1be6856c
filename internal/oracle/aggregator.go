/*

This file contains the price oracle aggregator: a per-asset price cache with
staleness detection, a deviation circuit breaker, and ordered source
fallback. The aggregator is an injected dependency of every component that
reads prices; it is never a process-wide singleton.

Reads are lock-free (atomic pointer loads); writes are serialized per asset
so the circuit breaker's last-accepted-price comparison is race-free.

*/

package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/basketfi/etf-engine/internal/logger"
	"github.com/basketfi/etf-engine/internal/types"
	"github.com/basketfi/etf-engine/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNoPriceData    = errors.New("no price data has ever been recorded for asset")
	ErrPriceDeviation = errors.New("price update rejected by deviation circuit breaker")
	ErrStalePrice     = errors.New("price data is stale")
	ErrInvalidPrice   = errors.New("price must be a positive finite decimal")
)

// ChainOracle is the primary price source: an on-chain oracle read.
type ChainOracle interface {
	GetPrice(ctx context.Context, asset types.AssetID) (sdkmath.LegacyDec, time.Time, error)
}

// APISource is the secondary price source: an off-chain HTTP price API,
// polled on demand.
type APISource interface {
	GetPriceUSD(ctx context.Context, asset types.AssetID) (sdkmath.LegacyDec, error)
}

// AuditSink receives a record for every accepted and rejected submission.
// A nil sink disables persistence but never the structured audit log.
type AuditSink interface {
	RecordPriceAudit(entry types.PriceAuditEntry) error
}

// Config holds the aggregator's staleness and circuit-breaker bounds.
type Config struct {
	// MaxPriceAge is the age beyond which an entry is stale.
	MaxPriceAge time.Duration
	// MaxDeviationBps is the inclusive bound on how far a submission may move
	// the price from the last accepted value, in basis points.
	MaxDeviationBps int64
	// DisableStalenessCheck is the emergency override: GetPrice never reports
	// stale while set, and logs the override on every read.
	DisableStalenessCheck bool
}

type priceEntry struct {
	writeMu sync.Mutex
	current atomic.Pointer[types.AssetPrice]
}

// Aggregator owns all AssetPrice entries. Entries are overwritten on each
// accepted update and never deleted, only superseded.
type Aggregator struct {
	cfg    Config
	chain  ChainOracle
	api    APISource
	audit  AuditSink
	logger zerolog.Logger
	now    func() time.Time

	stalenessDisabled atomic.Bool

	mu      sync.RWMutex
	entries map[types.AssetID]*priceEntry
}

// NewAggregator creates an aggregator with the given sources. Either source
// may be nil; the fallback chain simply skips it.
func NewAggregator(cfg Config, chain ChainOracle, api APISource, audit AuditSink) (*Aggregator, error) {
	if cfg.MaxPriceAge <= 0 {
		return nil, errors.New("max price age must be positive")
	}
	if cfg.MaxDeviationBps <= 0 || cfg.MaxDeviationBps > 10_000 {
		return nil, errors.New("max deviation bps must be in (0, 10000]")
	}
	agg := &Aggregator{
		cfg:     cfg,
		chain:   chain,
		api:     api,
		audit:   audit,
		logger:  logger.GetForComponent("price_oracle"),
		now:     time.Now,
		entries: make(map[types.AssetID]*priceEntry),
	}
	agg.stalenessDisabled.Store(cfg.DisableStalenessCheck)
	return agg, nil
}

// WithClock overrides the aggregator's clock. Deterministic test fixtures
// only; production wiring never calls this.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// SetStalenessCheckDisabled toggles the emergency staleness override.
func (a *Aggregator) SetStalenessCheckDisabled(disabled bool) {
	a.stalenessDisabled.Store(disabled)
	if disabled {
		a.logger.Warn().Msg("Staleness checking DISABLED by emergency override")
	} else {
		a.logger.Info().Msg("Staleness checking re-enabled")
	}
}

// GetPrice resolves a price through the fixed fallback order:
// (1) the on-chain oracle if present and not stale, (2) the off-chain API,
// (3) the last-known-good cached entry, tagged SourceCache and flagged
// stale. The emergency staleness override admits aged readings on every
// rung, and every such read is logged. If no price has ever been recorded
// the call fails with ErrNoPriceData; callers must not substitute defaults.
func (a *Aggregator) GetPrice(ctx context.Context, asset types.AssetID) (types.AssetPrice, bool, error) {
	now := a.now()
	alog := logger.GetForAsset("price_oracle", string(asset))

	if a.chain != nil {
		value, ts, err := a.chain.GetPrice(ctx, asset)
		if err == nil {
			aged := now.Sub(ts) > a.cfg.MaxPriceAge
			if !aged || a.stalenessDisabled.Load() {
				if aged {
					alog.Warn().Dur("age", now.Sub(ts)).
						Msg("Accepting aged oracle reading with staleness checking disabled")
				}
				if recErr := a.record(asset, value, ts, types.SourceChainOracle, false); recErr == nil {
					price, _ := a.cached(asset)
					return price, false, nil
				} else {
					// A breaker rejection means the source moved too sharply
					// against the last accepted value; treat it as a failed
					// source and keep falling back.
					alog.Warn().Err(recErr).Msg("Primary oracle price rejected, falling back")
				}
			} else {
				alog.Warn().Dur("age", now.Sub(ts)).
					Msg("Primary oracle reading is older than the max age, falling back")
			}
		} else {
			alog.Warn().Err(err).Msg("Primary oracle read failed, falling back")
		}
	}

	if a.api != nil {
		value, err := a.api.GetPriceUSD(ctx, asset)
		if err == nil {
			if recErr := a.record(asset, value, now, types.SourcePriceAPI, false); recErr == nil {
				price, _ := a.cached(asset)
				return price, false, nil
			} else {
				alog.Warn().Err(recErr).Msg("API price rejected, falling back to cache")
			}
		} else {
			alog.Warn().Err(err).Msg("Price API read failed, falling back to cache")
		}
	}

	price, ok := a.cached(asset)
	if !ok {
		return types.AssetPrice{}, false, fmt.Errorf("%w: %s", ErrNoPriceData, asset)
	}
	// Served from the cache, not a live source; the stored entry keeps its
	// original provenance.
	price.Source = types.SourceCache

	stale := price.Age(now) > a.cfg.MaxPriceAge
	if a.stalenessDisabled.Load() {
		if stale {
			alog.Warn().Dur("age", price.Age(now)).
				Msg("Serving aged price with staleness checking disabled")
		}
		return price, false, nil
	}
	return price, stale, nil
}

// SubmitPrice records an operator or feed submission. Updates that move the
// price by more than MaxDeviationBps from the last accepted value are
// rejected with ErrPriceDeviation unless the caller holds emergency
// authority, in which case the breaker is bypassed and the event is flagged
// for audit. Rejected updates have no side effects beyond the audit entry.
func (a *Aggregator) SubmitPrice(asset types.AssetID, price sdkmath.LegacyDec, source types.PriceSource, emergency bool) error {
	return a.record(asset, price, a.now(), source, emergency)
}

// LastPrices returns a snapshot of every cached entry for monitoring
// surfaces. The snapshot is read-only by construction.
func (a *Aggregator) LastPrices() []types.AssetPrice {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]types.AssetPrice, 0, len(a.entries))
	for _, e := range a.entries {
		if p := e.current.Load(); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func (a *Aggregator) cached(asset types.AssetID) (types.AssetPrice, bool) {
	a.mu.RLock()
	e, ok := a.entries[asset]
	a.mu.RUnlock()
	if !ok {
		return types.AssetPrice{}, false
	}
	p := e.current.Load()
	if p == nil {
		return types.AssetPrice{}, false
	}
	return *p, true
}

func (a *Aggregator) entry(asset types.AssetID) *priceEntry {
	a.mu.RLock()
	e, ok := a.entries[asset]
	a.mu.RUnlock()
	if ok {
		return e
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok = a.entries[asset]; ok {
		return e
	}
	e = &priceEntry{}
	a.entries[asset] = e
	return e
}

// record is the single write path for the cache. It holds the per-asset
// write lock across the breaker comparison and the store.
func (a *Aggregator) record(asset types.AssetID, price sdkmath.LegacyDec, ts time.Time, source types.PriceSource, emergency bool) error {
	if price.IsNil() || !price.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, asset)
	}

	e := a.entry(asset)
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	audit := types.PriceAuditEntry{
		Asset:          asset,
		SubmittedPrice: price,
		PreviousPrice:  sdkmath.LegacyZeroDec(),
		DeviationBps:   sdkmath.LegacyZeroDec(),
		Source:         source,
		Timestamp:      ts,
	}

	last := e.current.Load()
	if last != nil {
		audit.PreviousPrice = last.Price
		devBps, err := utils.DeviationBps(price, last.Price)
		if err != nil {
			return fmt.Errorf("deviation computation failed for %s: %w", asset, err)
		}
		audit.DeviationBps = devBps

		exceeded := devBps.GT(sdkmath.LegacyNewDec(a.cfg.MaxDeviationBps))
		if exceeded && !emergency {
			audit.Accepted = false
			audit.RejectionReason = fmt.Sprintf("deviation %s bps exceeds limit %d bps", devBps.String(), a.cfg.MaxDeviationBps)
			a.writeAudit(audit)
			a.logger.Warn().
				Str("asset", string(asset)).
				Str("submitted", price.String()).
				Str("lastAccepted", last.Price.String()).
				Str("deviationBps", devBps.String()).
				Int64("limitBps", a.cfg.MaxDeviationBps).
				Msg("Price update rejected by circuit breaker")
			return fmt.Errorf("%w: %s moved %s bps", ErrPriceDeviation, asset, devBps.String())
		}
		if exceeded && emergency {
			audit.EmergencyBypass = true
			a.logger.Warn().
				Str("asset", string(asset)).
				Str("submitted", price.String()).
				Str("deviationBps", devBps.String()).
				Msg("Circuit breaker BYPASSED with emergency authority")
		}
	}

	updated := types.AssetPrice{
		Asset:       asset,
		Price:       price,
		LastUpdated: ts,
		Source:      source,
	}
	e.current.Store(&updated)

	audit.Accepted = true
	a.writeAudit(audit)

	a.logger.Debug().
		Str("asset", string(asset)).
		Str("price", price.String()).
		Str("source", string(source)).
		Time("lastUpdated", ts).
		Msg("Price entry superseded")
	return nil
}

func (a *Aggregator) writeAudit(entry types.PriceAuditEntry) {
	if a.audit == nil {
		return
	}
	if err := a.audit.RecordPriceAudit(entry); err != nil {
		a.logger.Error().Err(err).Str("asset", string(entry.Asset)).
			Msg("Failed to persist price audit entry")
	}
}
