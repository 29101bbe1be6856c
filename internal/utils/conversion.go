/*
This file contains common utility functions for converting between float,
decimal, and basis-point representations used by the engine's fixed-point
arithmetic.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNotFinite        = errors.New("value is not finite")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrInvalidBps       = errors.New("basis points out of range")
	ErrConversionFailed = errors.New("conversion failed")
)

const bpsDenominator int64 = 10_000

// Float64ToDec converts a float64 (e.g. a price from an external JSON API)
// into an 18-decimal fixed-point value. The conversion goes through a string
// to avoid binary floating point artifacts.
func Float64ToDec(value float64) (sdkmath.LegacyDec, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %f", ErrNotFinite, value)
	}
	if value < 0 {
		return sdkmath.LegacyZeroDec(), ErrAmountNegative
	}
	dec, err := sdkmath.LegacyNewDecFromStr(fmt.Sprintf("%.18f", value))
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return dec, nil
}

// DecToFloat64 converts a fixed-point value to float64 for display surfaces
// only. Accounting paths never round-trip through this.
func DecToFloat64(value sdkmath.LegacyDec) (float64, error) {
	f, err := value.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, f)
	}
	return f, nil
}

// ApplyBpsFloor scales a value by (10000 - bps) / 10000, rounding down.
// This is the slippage-bound formula: the minimum acceptable output for a
// quoted output and a tolerance in basis points.
func ApplyBpsFloor(value sdkmath.LegacyDec, bps int64) (sdkmath.LegacyDec, error) {
	if bps < 0 || bps > bpsDenominator {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	return value.MulInt64(bpsDenominator - bps).QuoTruncate(sdkmath.LegacyNewDec(bpsDenominator)), nil
}

// DeviationBps returns |newValue - baseline| / baseline in basis points.
// The baseline must be positive.
func DeviationBps(newValue, baseline sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if !baseline.IsPositive() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: baseline must be positive", ErrConversionFailed)
	}
	diff := newValue.Sub(baseline).Abs()
	return diff.MulInt64(bpsDenominator).Quo(baseline), nil
}

// ParseDec parses a decimal string and rejects negative results.
func ParseDec(s string) (sdkmath.LegacyDec, error) {
	dec, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if dec.IsNegative() {
		return sdkmath.LegacyZeroDec(), ErrAmountNegative
	}
	return dec, nil
}
