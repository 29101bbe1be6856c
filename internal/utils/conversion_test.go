package utils

import (
	"math"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func TestApplyBpsFloor(t *testing.T) {
	t.Run("should scale down by the tolerance and truncate", func(t *testing.T) {
		got, err := ApplyBpsFloor(dec("1200"), 200)
		require.NoError(t, err)
		assert.True(t, got.Equal(dec("1176")))

		got, err = ApplyBpsFloor(dec("100"), 0)
		require.NoError(t, err)
		assert.True(t, got.Equal(dec("100")))

		got, err = ApplyBpsFloor(dec("100"), 10000)
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})

	t.Run("should reject out-of-range basis points", func(t *testing.T) {
		_, err := ApplyBpsFloor(dec("100"), -1)
		require.ErrorIs(t, err, ErrInvalidBps)
		_, err = ApplyBpsFloor(dec("100"), 10001)
		require.ErrorIs(t, err, ErrInvalidBps)
	})
}

func TestDeviationBps(t *testing.T) {
	t.Run("should measure absolute deviation in basis points", func(t *testing.T) {
		got, err := DeviationBps(dec("110"), dec("100"))
		require.NoError(t, err)
		assert.True(t, got.Equal(dec("1000")))

		got, err = DeviationBps(dec("90"), dec("100"))
		require.NoError(t, err)
		assert.True(t, got.Equal(dec("1000")))

		got, err = DeviationBps(dec("100"), dec("100"))
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})

	t.Run("should reject a non-positive baseline", func(t *testing.T) {
		_, err := DeviationBps(dec("1"), dec("0"))
		require.ErrorIs(t, err, ErrConversionFailed)
	})
}

func TestFloat64ToDec(t *testing.T) {
	t.Run("should convert finite non-negative values", func(t *testing.T) {
		got, err := Float64ToDec(66500.25)
		require.NoError(t, err)
		assert.True(t, got.Equal(dec("66500.25")))
	})

	t.Run("should reject NaN, infinity, and negatives", func(t *testing.T) {
		_, err := Float64ToDec(math.NaN())
		require.ErrorIs(t, err, ErrNotFinite)
		_, err = Float64ToDec(math.Inf(1))
		require.ErrorIs(t, err, ErrNotFinite)
		_, err = Float64ToDec(-1)
		require.ErrorIs(t, err, ErrAmountNegative)
	})
}

func TestParseDec(t *testing.T) {
	t.Run("should parse valid decimal strings", func(t *testing.T) {
		got, err := ParseDec("0.333333333333333333")
		require.NoError(t, err)
		assert.True(t, got.Equal(dec("0.333333333333333333")))
	})

	t.Run("should reject garbage and negative values", func(t *testing.T) {
		_, err := ParseDec("not-a-number")
		require.ErrorIs(t, err, ErrConversionFailed)
		_, err = ParseDec("-1")
		require.ErrorIs(t, err, ErrAmountNegative)
	})
}
