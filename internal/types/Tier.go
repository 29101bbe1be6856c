/*

This file defines the reward tiers and the ordered ratio ladder used to
classify a dual-asset position.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// Tier is a discrete reward bracket determined by the ratio of pooled
// native-token units to BTC-token units.
type Tier int

const (
	TierBase Tier = iota
	TierBoost
	TierSuper
	TierSatoshi
)

// TierSpec describes one rung of the tier ladder. MinRatio is an inclusive
// lower bound in raw asset units (native per BTC), not USD value.
type TierSpec struct {
	Tier      Tier    `json:"tier"`
	Name      string  `json:"name"`
	MinRatio  int64   `json:"min_ratio"`
	RewardAPR float64 `json:"reward_apr"` // informational, not computed by the engine
}

// TierLadder is the ordered tier table. Thresholds are strictly increasing
// and TierBase's zero threshold guarantees every ratio maps to some tier.
var TierLadder = []TierSpec{
	{Tier: TierBase, Name: "BASE", MinRatio: 0, RewardAPR: 0.08},
	{Tier: TierBoost, Name: "BOOST", MinRatio: 2000, RewardAPR: 0.12},
	{Tier: TierSuper, Name: "SUPER", MinRatio: 6000, RewardAPR: 0.16},
	{Tier: TierSatoshi, Name: "SATOSHI", MinRatio: 16000, RewardAPR: 0.20},
}

// HighestTier is the top rung of the ladder, the default rebalance target.
const HighestTier = TierSatoshi

func (t Tier) String() string {
	if t < TierBase || int(t) >= len(TierLadder) {
		return "UNKNOWN"
	}
	return TierLadder[t].Name
}

// Spec returns the ladder entry for the tier. Out-of-range tiers collapse to
// BASE so callers never index past the ladder.
func (t Tier) Spec() TierSpec {
	if t < TierBase || int(t) >= len(TierLadder) {
		return TierLadder[TierBase]
	}
	return TierLadder[t]
}

// MinRatioDec returns the tier's inclusive lower ratio bound as a decimal.
func (t Tier) MinRatioDec() sdkmath.LegacyDec {
	return sdkmath.LegacyNewDec(t.Spec().MinRatio)
}

// TierFromName resolves a ladder name (e.g. "SATOSHI") to its Tier.
func TierFromName(name string) (Tier, bool) {
	for _, spec := range TierLadder {
		if spec.Name == name {
			return spec.Tier, true
		}
	}
	return TierBase, false
}
