package lending

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"lendledger/core/types"
)

func TestSimpleInterest(t *testing.T) {
	require.Equal(t, "50", SimpleInterest(money(1000), 500).String())
	require.Equal(t, "0", SimpleInterest(money(10), 5).String())
	require.True(t, SimpleInterest(types.Money{}, 500).IsZero())
}

func TestProratedInterest(t *testing.T) {
	require.Equal(t, "50", ProratedInterest(money(1000), 500, BlocksPerYear, BlocksPerYear).String())
	require.Equal(t, "25", ProratedInterest(money(1000), 500, BlocksPerYear/2, BlocksPerYear).String())
	require.True(t, ProratedInterest(money(1000), 500, 10, 0).IsZero())
}

func TestPeriodRateBps(t *testing.T) {
	cases := []struct {
		name   string
		rate   uint64
		period uint64
		want   uint64
	}{
		{"daily truncates", 1_000, BlocksPerDay, 2},
		{"tiny rate floors at one", 1, BlocksPerDay, 1},
		{"annual", 1_000, BlocksPerYear, 1_000},
		{"zero rate", 0, BlocksPerDay, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, PeriodRateBps(tc.rate, tc.period, BlocksPerYear))
		})
	}
}

func TestCompoundInterestMatchesClosedForm(t *testing.T) {
	interest := CompoundInterest(money(1000), 2, 360)
	got, ok := interest.Uint64()
	require.True(t, ok)
	want := 1000*math.Pow(1.0002, 360) - 1000
	require.InDelta(t, want, float64(got), 1)
}

func TestCompoundInterestFloorsAtOneUnit(t *testing.T) {
	require.Equal(t, "1", CompoundInterest(money(1), 1, 1).String())
	require.True(t, CompoundInterest(money(1000), 0, 10).IsZero())
	require.True(t, CompoundInterest(money(1000), 5, 0).IsZero())
}

func TestEffectiveRate(t *testing.T) {
	require.Equal(t, uint64(600), EffectiveRate(600, 1_000, 10_000))
	require.Equal(t, uint64(720), EffectiveRate(600, 1_200, 10_000))
	require.Equal(t, uint64(840), EffectiveRate(700, 1_200, 10_000))
	require.Equal(t, uint64(10_000), EffectiveRate(9_000, 5_000, 10_000))
}

func TestLateFeeBps(t *testing.T) {
	require.Equal(t, uint64(0), LateFeeBps(0, 0, 100, 2_000))
	require.Equal(t, uint64(500), LateFeeBps(0, 5, 100, 2_000))
	require.Equal(t, uint64(2_000), LateFeeBps(0, 25, 100, 2_000))
	require.Equal(t, uint64(1_700), LateFeeBps(1_500, 2, 100, 2_000))
	require.Equal(t, uint64(2_000), LateFeeBps(2_000, 9, 100, 2_000))
	require.Equal(t, uint64(2_000), LateFeeBps(0, math.MaxUint64, 100, 2_000))
}

func TestLateFeeAmountFloor(t *testing.T) {
	require.Equal(t, "200", LateFeeAmount(money(1000), 2_000).String())
	require.Equal(t, "1", LateFeeAmount(money(10), 1).String())
	require.True(t, LateFeeAmount(money(10), 0).IsZero())
}

func TestEarlyRepaymentDiscountBps(t *testing.T) {
	require.Equal(t, uint64(500), EarlyRepaymentDiscountBps(1_000, 1_000, 500))
	require.Equal(t, uint64(250), EarlyRepaymentDiscountBps(500, 1_000, 500))
	require.Equal(t, uint64(0), EarlyRepaymentDiscountBps(0, 1_000, 500))
	require.Equal(t, uint64(0), EarlyRepaymentDiscountBps(500, 0, 500))
}

func TestFees(t *testing.T) {
	require.Equal(t, "10", ExtensionFee(money(1000), 100).String())
	require.Equal(t, "5", RefinanceFee(money(1050), 50).String())
	require.Equal(t, "5", ProtocolFee(money(1050), 50).String())
}

func TestInterestOnlyPaymentMinimum(t *testing.T) {
	// 1000 * 1000 * 14_400 / (10_000 * 5_184_000) truncates to zero.
	require.Equal(t, "1", InterestOnlyPayment(money(1000), 1_000, BlocksPerDay, BlocksPerYear).String())
	require.Equal(t, "100", InterestOnlyPayment(money(1000), 1_000, BlocksPerYear, BlocksPerYear).String())
	require.True(t, InterestOnlyPayment(types.Money{}, 1_000, BlocksPerDay, BlocksPerYear).IsZero())
}

func TestAmortizedPayment(t *testing.T) {
	require.Equal(t, "251", AmortizedPayment(money(1000), 1_000, BlocksPerDay, BlocksPerYear, 4).String())
	require.Equal(t, "1001", AmortizedPayment(money(1000), 1_000, BlocksPerDay, BlocksPerYear, 0).String())
}

func TestUnearnedSimpleInterest(t *testing.T) {
	require.Equal(t, "50", UnearnedSimpleInterest(money(1000), 500, 1_000, 1_000).String())
	require.Equal(t, "25", UnearnedSimpleInterest(money(1000), 500, 500, 1_000).String())
	require.Equal(t, "50", UnearnedSimpleInterest(money(1000), 500, 5_000, 1_000).String())
	require.True(t, UnearnedSimpleInterest(money(1000), 500, 0, 1_000).IsZero())
}

func TestMulDivSaturates(t *testing.T) {
	limit := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	huge, err := types.MoneyFromBig(limit)
	require.NoError(t, err)
	product := mulDiv(huge, math.MaxUint64, 1)
	require.Equal(t, 1, product.Cmp(huge))
}
