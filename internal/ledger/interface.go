package ledger

import (
	"context"

	sdkmath "cosmossdk.io/math"
)

// ShareLedger defines the interface for the fungible share token ledger.
// The ledger is the system of record for share ownership; the engine only
// computes the deltas to apply to it.
type ShareLedger interface {
	// Mint credits newly issued shares to an owner.
	Mint(ctx context.Context, owner string, shares sdkmath.LegacyDec) error

	// Burn debits shares from an owner. Burning more than the owner holds
	// must fail without side effects.
	Burn(ctx context.Context, owner string, shares sdkmath.LegacyDec) error

	// BalanceOf returns the shares held by an owner.
	BalanceOf(ctx context.Context, owner string) (sdkmath.LegacyDec, error)

	// TotalSupply returns the total outstanding share supply.
	TotalSupply(ctx context.Context) (sdkmath.LegacyDec, error)
}
