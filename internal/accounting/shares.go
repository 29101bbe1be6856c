/*

This file contains the share accounting math: pool valuation, the derived
share price, and deposit-to-share conversion. All arithmetic is 18-decimal
fixed point and rounds down; round-off dust accrues to the pool, never to an
individual depositor.

*/

package accounting

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/basketfi/etf-engine/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrZeroPrice                 = errors.New("asset price must be positive")
	ErrInvalidAmount             = errors.New("deposit amounts are invalid")
	ErrInsufficientDeposit       = errors.New("deposit value is below the configured minimum")
	ErrInsufficientShares        = errors.New("share amount exceeds outstanding supply")
	ErrInsufficientPoolLiquidity = errors.New("computed payout exceeds available pool balances")
	ErrCorruptPoolState          = errors.New("pool state violates accounting invariants")
)

// PoolValueUSD returns totalAssetA*priceA + totalAssetB*priceB, floored.
func PoolValueUSD(pool types.PoolState, priceA, priceB sdkmath.LegacyDec) sdkmath.LegacyDec {
	return pool.TotalAssetA.MulTruncate(priceA).Add(pool.TotalAssetB.MulTruncate(priceB))
}

// SharePrice returns poolValueUSD / totalShares. An empty pool bootstraps at
// exactly 1: the first deposit mints one share per unit of deposited USD
// value.
func SharePrice(pool types.PoolState, priceA, priceB sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if err := validatePrices(priceA, priceB); err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	if pool.IsEmpty() {
		return sdkmath.LegacyOneDec(), nil
	}
	value := PoolValueUSD(pool, priceA, priceB)
	if !value.IsPositive() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: shares outstanding with zero pool value", ErrCorruptPoolState)
	}
	return value.QuoTruncate(pool.TotalShares), nil
}

// ComputeSharesForDeposit converts a two-asset deposit into shares to mint.
// The deposit value and the share price must come from the same price
// snapshot; callers pass both prices once and this function uses them for
// both computations, so price drift mid-operation cannot open an arbitrage.
//
// Minting rounds down, which protects existing holders from dilution.
func ComputeSharesForDeposit(
	pool types.PoolState,
	amountA, amountB sdkmath.LegacyDec,
	priceA, priceB sdkmath.LegacyDec,
	minDepositUSD sdkmath.LegacyDec,
) (shares sdkmath.LegacyDec, depositValueUSD sdkmath.LegacyDec, err error) {
	zero := sdkmath.LegacyZeroDec()

	if err := validatePrices(priceA, priceB); err != nil {
		return zero, zero, err
	}
	if amountA.IsNil() || amountB.IsNil() || amountA.IsNegative() || amountB.IsNegative() {
		return zero, zero, fmt.Errorf("%w: amounts must be non-negative", ErrInvalidAmount)
	}
	if amountA.IsZero() && amountB.IsZero() {
		return zero, zero, fmt.Errorf("%w: deposit must include at least one asset", ErrInvalidAmount)
	}

	depositValueUSD = amountA.MulTruncate(priceA).Add(amountB.MulTruncate(priceB))
	if !minDepositUSD.IsNil() && depositValueUSD.LT(minDepositUSD) {
		return zero, zero, fmt.Errorf("%w: value %s below minimum %s",
			ErrInsufficientDeposit, depositValueUSD.String(), minDepositUSD.String())
	}

	if pool.IsEmpty() {
		// Bootstrap: sharePrice is exactly 1.
		return depositValueUSD, depositValueUSD, nil
	}

	poolValue := PoolValueUSD(pool, priceA, priceB)
	if !poolValue.IsPositive() {
		return zero, zero, fmt.Errorf("%w: shares outstanding with zero pool value", ErrCorruptPoolState)
	}

	// depositValue * totalShares / poolValue, floored at each step. This is
	// depositValue / sharePrice without the intermediate division.
	shares = depositValueUSD.MulTruncate(pool.TotalShares).QuoTruncate(poolValue)
	return shares, depositValueUSD, nil
}

// ComputeValueForShares returns the USD value of a share amount at the given
// price snapshot, floored.
func ComputeValueForShares(pool types.PoolState, shares, priceA, priceB sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	zero := sdkmath.LegacyZeroDec()

	if err := validatePrices(priceA, priceB); err != nil {
		return zero, err
	}
	if shares.IsNil() || shares.IsNegative() {
		return zero, fmt.Errorf("%w: shares must be non-negative", ErrInvalidAmount)
	}
	if shares.IsZero() {
		return zero, nil
	}
	if pool.IsEmpty() {
		return zero, fmt.Errorf("%w: no shares outstanding", ErrInsufficientShares)
	}
	if shares.GT(pool.TotalShares) {
		return zero, fmt.Errorf("%w: %s > %s", ErrInsufficientShares, shares.String(), pool.TotalShares.String())
	}
	poolValue := PoolValueUSD(pool, priceA, priceB)
	return shares.MulTruncate(poolValue).QuoTruncate(pool.TotalShares), nil
}

func validatePrices(priceA, priceB sdkmath.LegacyDec) error {
	if priceA.IsNil() || !priceA.IsPositive() {
		return fmt.Errorf("%w: price of asset A", ErrZeroPrice)
	}
	if priceB.IsNil() || !priceB.IsPositive() {
		return fmt.Errorf("%w: price of asset B", ErrZeroPrice)
	}
	return nil
}
