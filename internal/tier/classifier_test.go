package tier

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basketfi/etf-engine/internal/types"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func TestClassify(t *testing.T) {
	t.Run("should return BASE when the pool holds no BTC token", func(t *testing.T) {
		tier, err := Classify(dec("1000000"), sdkmath.LegacyZeroDec())
		require.NoError(t, err)
		assert.Equal(t, types.TierBase, tier, "ratio is undefined without asset B, BASE by definition")
	})

	t.Run("should return BASE for an empty pool", func(t *testing.T) {
		tier, err := Classify(sdkmath.LegacyZeroDec(), sdkmath.LegacyZeroDec())
		require.NoError(t, err)
		assert.Equal(t, types.TierBase, tier)
	})

	t.Run("should classify each band correctly", func(t *testing.T) {
		cases := []struct {
			name    string
			amountA string
			amountB string
			want    types.Tier
		}{
			{"well below BOOST", "1000", "1", types.TierBase},
			{"just below BOOST", "1999.999999999999999999", "1", types.TierBase},
			{"inside BOOST band", "3000", "1", types.TierBoost},
			{"inside SUPER band", "10000", "1", types.TierSuper},
			{"above SATOSHI threshold", "20000", "1", types.TierSatoshi},
			{"fractional B amounts", "8000", "0.5", types.TierSatoshi},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				tier, err := Classify(dec(tc.amountA), dec(tc.amountB))
				require.NoError(t, err)
				assert.Equal(t, tc.want, tier)
			})
		}
	})

	t.Run("should resolve exact threshold ties to the higher tier", func(t *testing.T) {
		// Thresholds are inclusive lower bounds.
		cases := []struct {
			amountA string
			want    types.Tier
		}{
			{"2000", types.TierBoost},
			{"6000", types.TierSuper},
			{"16000", types.TierSatoshi},
		}
		for _, tc := range cases {
			tier, err := Classify(dec(tc.amountA), sdkmath.LegacyOneDec())
			require.NoError(t, err)
			assert.Equal(t, tc.want, tier, "ratio exactly %s:1 must land in the higher tier", tc.amountA)
		}
	})

	t.Run("should be monotonic in the ratio", func(t *testing.T) {
		b := sdkmath.LegacyOneDec()
		prev := types.TierBase
		for _, a := range []string{"0", "1", "1999", "2000", "5999", "6000", "15999", "16000", "50000"} {
			tier, err := Classify(dec(a), b)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, int(tier), int(prev), "tier must never drop as the ratio grows (at %s:1)", a)
			prev = tier
		}
	})

	t.Run("should reject negative amounts", func(t *testing.T) {
		_, err := Classify(dec("-1"), sdkmath.LegacyOneDec())
		require.ErrorIs(t, err, ErrNegativeAmount)

		_, err = Classify(sdkmath.LegacyOneDec(), dec("-1"))
		require.ErrorIs(t, err, ErrNegativeAmount)
	})
}

func TestRatio(t *testing.T) {
	t.Run("should report undefined when asset B is zero", func(t *testing.T) {
		_, defined := Ratio(dec("1000"), sdkmath.LegacyZeroDec())
		assert.False(t, defined)
	})

	t.Run("should divide when defined", func(t *testing.T) {
		ratio, defined := Ratio(dec("16000"), dec("2"))
		require.True(t, defined)
		assert.True(t, ratio.Equal(dec("8000")), "got %s", ratio)
	})
}
