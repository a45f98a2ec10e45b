package lending

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"lendledger/core/types"
	"lendledger/crypto"
)

var legalTransitions = map[LoanStatus][]LoanStatus{
	StatusPending:    {StatusPending, StatusActive},
	StatusActive:     {StatusActive, StatusRepaid, StatusDefaulted, StatusLiquidated},
	StatusDefaulted:  {StatusDefaulted, StatusLiquidated},
	StatusRepaid:     {StatusRepaid},
	StatusLiquidated: {StatusLiquidated},
}

func legal(from, to LoanStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func TestRandomOperationsPreserveInvariants(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.engine.InitOwner(env.as(admin)))
	rng := rand.New(rand.NewSource(7))
	principals := []crypto.Address{alice, bob, carol}
	statuses := make(map[uint64]LoanStatus)

	pick := func() crypto.Address { return principals[rng.Intn(len(principals))] }

	for step := 0; step < 600; step++ {
		env.advance(uint64(rng.Intn(int(BlocksPerDay))))
		total, err := env.engine.GetTotalLoans()
		require.NoError(t, err)
		id := uint64(rng.Intn(int(total)+1)) + 1
		if id > total {
			id = total
		}

		switch op := rng.Intn(12); op {
		case 0, 1:
			amount := uint64(rng.Intn(10_000) + 1)
			_, _ = env.engine.CreateLoan(env.as(pick()), money(amount), uint64(rng.Intn(3_000)+1), uint64(rng.Intn(500_000)+1), money(amount*2))
		case 2:
			if loan, err := env.engine.GetLoan(id); err == nil {
				amount, _ := loan.Amount.Uint64()
				_ = env.engine.FundLoan(env.pay(pick(), amount), id)
			}
		case 3:
			if total, err := env.engine.CalculateFullRepayment(id, env.block); err == nil {
				v, _ := total.Uint64()
				_ = env.engine.RepayLoan(env.pay(alice, v), id)
				_ = env.engine.RepayLoan(env.pay(bob, v), id)
				_ = env.engine.RepayLoan(env.pay(carol, v), id)
			}
		case 4:
			if loan, err := env.engine.GetLoan(id); err == nil && !loan.RemainingBalance.IsZero() {
				remaining, _ := loan.RemainingBalance.Uint64()
				amount := uint64(rng.Int63n(int64(remaining))) + 1
				_ = env.engine.PartialRepay(env.pay(loan.Borrower, amount), id, money(amount))
			}
		case 5:
			if fee, err := env.engine.CalculateExtensionFee(id); err == nil {
				v, _ := fee.Uint64()
				if loan, err := env.engine.GetLoan(id); err == nil {
					_ = env.engine.ExtendLoan(env.pay(loan.Borrower, v), id)
				}
			}
		case 6:
			if loan, err := env.engine.GetLoan(id); err == nil {
				_ = env.engine.RefinanceLoan(env.as(loan.Lender), id, uint64(rng.Intn(2_000)+1))
			}
		case 7:
			if loan, err := env.engine.GetLoan(id); err == nil {
				lender := env.as(loan.Lender)
				switch rng.Intn(3) {
				case 0:
					_ = env.engine.ConvertToVariableRate(lender, id, uint64(rng.Intn(2_000)+1))
				case 1:
					_ = env.engine.UpdateRiskMultiplier(lender, id, uint64(rng.Intn(3_000)+1))
				default:
					_ = env.engine.AdjustInterestRate(lender, id, uint64(rng.Intn(2_000)+1), ReasonMarketConditions)
				}
			}
		case 8:
			if loan, err := env.engine.GetLoan(id); err == nil {
				if rng.Intn(2) == 0 {
					_ = env.engine.ConvertToCompoundInterest(env.as(loan.Lender), id, CompoundFrequency(rng.Intn(3)))
				} else {
					_ = env.engine.SwitchToSimpleInterest(env.as(loan.Lender), id)
				}
			}
		case 9:
			if loan, err := env.engine.GetLoan(id); err == nil {
				_ = env.engine.SetInterestOnlyPeriods(env.as(loan.Lender), id, uint64(rng.Intn(4)+1), BlocksPerDay)
			}
		case 10:
			env.advance(uint64(rng.Intn(int(BlocksPerMonth))))
			_ = env.engine.MarkDefault(env.as(pick()), id)
		default:
			_ = env.engine.Accrue(env.as(pick()), id)
			if rng.Intn(4) == 0 {
				_ = env.engine.Liquidate(env.as(admin), id)
			}
		}

		checkInvariants(t, env, statuses)
	}
}

func checkInvariants(t *testing.T, env *testEnv, statuses map[uint64]LoanStatus) {
	t.Helper()
	loans, err := env.engine.GetLoans(1, 0)
	require.NoError(t, err)

	var active types.Money
	for _, loan := range loans {
		if prev, ok := statuses[loan.ID]; ok {
			require.Truef(t, legal(prev, loan.Status), "loan %d moved %s -> %s", loan.ID, prev, loan.Status)
		}
		statuses[loan.ID] = loan.Status

		if loan.Status == StatusActive {
			active = active.Add(loan.Amount)
		}
		if loan.RateType == RateVariable {
			require.Equal(t, EffectiveRate(loan.BaseInterestRate, loan.RiskMultiplier, env.engine.Params().MaxRateBps), loan.InterestRate)
		}
		require.LessOrEqual(t, loan.ExtensionCount, loan.MaxExtensions)
		require.LessOrEqual(t, loan.RefinanceCount, loan.MaxRefinances)
		require.LessOrEqual(t, loan.InterestOnlyPeriodsUsed, loan.InterestOnlyPeriods)
		requireAccounting(t, loan)

		borrower := env.profile(loan.Borrower)
		require.Equal(t, loan.Status.Open(), borrower.HasActiveLoan(loan.ID))
		if loan.HasLender() {
			require.Equal(t, loan.Status.Open(), env.profile(loan.Lender).HasActiveLoan(loan.ID))
		}
	}
	require.Equal(t, 0, active.Cmp(env.liquidity()), "total liquidity must match active principal")
}

func TestRoundTripPaysLender(t *testing.T) {
	cases := []struct {
		amount uint64
		rate   uint64
	}{
		{1000, 500},
		{12_345, 777},
		{1, 10_000},
		{999_999, 1},
	}
	for _, tc := range cases {
		env := newTestEnv(t)
		id := env.createAndFund(tc.amount, tc.rate, 10_000)
		env.advance(10_000)

		due := tc.amount + tc.amount*tc.rate/10_000
		require.Equal(t, due, env.fullRepayment(id))
		require.NoError(t, env.engine.RepayLoan(env.pay(alice, due), id))

		payout := due - due*50/10_000
		require.Equal(t, money(payout).String(), env.received[bob].String())
		require.False(t, env.profile(alice).HasActiveLoan(id))
	}
}

func TestAccrueIdempotentWithinBlock(t *testing.T) {
	params := DefaultParams()
	loan := &Loan{
		Status:               StatusActive,
		Amount:               money(5_000),
		PrincipalOutstanding: money(5_000),
		InterestRate:         1_500,
		InterestType:         InterestCompound,
		CompoundPeriodBlocks: BlocksPerDay,
		PaymentPeriodBlocks:  BlocksPerMonth,
		DueDate:              10 * BlocksPerDay,
		Duration:             10 * BlocksPerDay,
		LateFeeRate:          50,
		MaxLateFeeRate:       1_000,
	}
	now := 15*BlocksPerDay + 7
	params.accrue(loan, now)
	first := loan.Clone()
	params.accrue(loan, now)
	require.Equal(t, first, loan)
	require.False(t, loan.FeesOutstanding.IsZero())
	require.False(t, loan.TotalCompoundedInterest.IsZero())
}
