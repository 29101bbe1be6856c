/*

This file contains the price cache entry type owned by the oracle aggregator
and the audit record written for every accepted or rejected submission.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// AssetID identifies a priced asset, e.g. "CORE" or "coreBTC".
type AssetID string

// PriceSource tags where an accepted price came from, in fallback order.
type PriceSource string

const (
	SourceChainOracle PriceSource = "chain_oracle" // primary on-chain oracle read
	SourcePriceAPI    PriceSource = "price_api"    // secondary off-chain HTTP API
	SourceCache       PriceSource = "cache"        // last-known-good, always stale
	SourceManual      PriceSource = "manual"       // operator submission
)

// AssetPrice is a timestamped 18-decimal USD price. Entries are only ever
// superseded by newer accepted submissions, never deleted.
type AssetPrice struct {
	Asset       AssetID           `json:"asset"`
	Price       sdkmath.LegacyDec `json:"price"`
	LastUpdated time.Time         `json:"last_updated"`
	Source      PriceSource       `json:"source"`
}

// Age returns how long ago the entry was last updated.
func (p AssetPrice) Age(now time.Time) time.Duration {
	return now.Sub(p.LastUpdated)
}

// PriceAuditEntry records the outcome of a single price submission. Rejected
// submissions leave no trace in the cache, only this record.
type PriceAuditEntry struct {
	Asset           AssetID           `json:"asset"`
	SubmittedPrice  sdkmath.LegacyDec `json:"submitted_price"`
	PreviousPrice   sdkmath.LegacyDec `json:"previous_price"`
	DeviationBps    sdkmath.LegacyDec `json:"deviation_bps"`
	Source          PriceSource       `json:"source"`
	Accepted        bool              `json:"accepted"`
	EmergencyBypass bool              `json:"emergency_bypass"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}
