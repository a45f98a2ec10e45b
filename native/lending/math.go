package lending

import (
	"math/big"

	"lendledger/core/types"
)

var (
	basisPoints = new(big.Int).SetUint64(basisPointsDivisor)
	ray         = mustBigInt("1000000000000000000000000000") // 1e27 precision
	halfRay     = new(big.Int).Rsh(ray, 1)
	oneUnit     = types.NewMoney(1)
	maxMoney, _ = types.MoneyFromWide(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func rayMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfRay)
	product.Quo(product, ray)
	return product
}

// rayPow raises a ray-scaled factor to the n-th power by squaring. Each
// multiply rounds half up; callers truncate the final product once.
func rayPow(base *big.Int, n uint64) *big.Int {
	result := new(big.Int).Set(ray)
	factor := new(big.Int).Set(base)
	for n > 0 {
		if n&1 == 1 {
			result = rayMul(result, factor)
		}
		n >>= 1
		if n > 0 {
			factor = rayMul(factor, factor)
		}
	}
	return result
}

// mulDiv returns amount * num / den truncated toward zero. A zero
// denominator yields zero.
func mulDiv(amount types.Money, num, den uint64) types.Money {
	if den == 0 || num == 0 || amount.IsZero() {
		return types.Money{}
	}
	product := amount.Big()
	product.Mul(product, new(big.Int).SetUint64(num))
	product.Quo(product, new(big.Int).SetUint64(den))
	return mustMoney(product)
}

// mulDiv2 returns amount * a * b / den with a single truncation.
func mulDiv2(amount types.Money, a, b uint64, den *big.Int) types.Money {
	if den == nil || den.Sign() == 0 || a == 0 || b == 0 || amount.IsZero() {
		return types.Money{}
	}
	product := amount.Big()
	product.Mul(product, new(big.Int).SetUint64(a))
	product.Mul(product, new(big.Int).SetUint64(b))
	product.Quo(product, den)
	return mustMoney(product)
}

// mustMoney converts kernel results back to Money. Inputs are bounded to 128
// bits, so only pathological compounding can exceed 256 bits; such results
// saturate.
func mustMoney(v *big.Int) types.Money {
	m, err := types.MoneyFromWide(v)
	if err != nil {
		return maxMoney
	}
	return m
}

func bpsDenominator(blocks uint64) *big.Int {
	den := new(big.Int).SetUint64(blocks)
	return den.Mul(den, basisPoints)
}

// SimpleInterest is the full-term interest: amount * rate / 10_000.
func SimpleInterest(amount types.Money, rateBps uint64) types.Money {
	return mulDiv(amount, rateBps, basisPointsDivisor)
}

// ProratedInterest is amount * rate * elapsed / (10_000 * yearBlocks).
func ProratedInterest(amount types.Money, rateBps, elapsed, yearBlocks uint64) types.Money {
	if yearBlocks == 0 {
		return types.Money{}
	}
	return mulDiv2(amount, rateBps, elapsed, bpsDenominator(yearBlocks))
}

// PeriodRateBps converts an annual rate into a per-period rate. Interest
// bearing loans never round down to a free period.
func PeriodRateBps(rateBps, periodBlocks, yearBlocks uint64) uint64 {
	if rateBps == 0 || periodBlocks == 0 || yearBlocks == 0 {
		return 0
	}
	rate := new(big.Int).SetUint64(rateBps)
	rate.Mul(rate, new(big.Int).SetUint64(periodBlocks))
	rate.Quo(rate, new(big.Int).SetUint64(yearBlocks))
	if !rate.IsUint64() {
		return ^uint64(0)
	}
	if r := rate.Uint64(); r > 0 {
		return r
	}
	return 1
}

// CompoundInterest returns the interest produced by compounding balance for
// steps periods at periodRateBps. The exact product is computed in ray
// precision and truncated once. Any non-zero accrual is at least one unit.
func CompoundInterest(balance types.Money, periodRateBps, steps uint64) types.Money {
	if balance.IsZero() || periodRateBps == 0 || steps == 0 {
		return types.Money{}
	}
	growth := new(big.Int).SetUint64(basisPointsDivisor + periodRateBps)
	growth.Mul(growth, ray)
	growth.Quo(growth, basisPoints)

	factor := rayPow(growth, steps)
	grown := new(big.Int).Mul(balance.Big(), factor)
	grown.Quo(grown, ray)
	interest := grown.Sub(grown, balance.Big())
	if interest.Sign() <= 0 {
		return oneUnit
	}
	return mustMoney(interest)
}

// EffectiveRate composes a variable rate: base * risk / 1000 clamped to
// [0, maxRate].
func EffectiveRate(baseBps, riskMille, maxRateBps uint64) uint64 {
	rate := new(big.Int).SetUint64(baseBps)
	rate.Mul(rate, new(big.Int).SetUint64(riskMille))
	rate.Quo(rate, new(big.Int).SetUint64(perMilleDivisor))
	if !rate.IsUint64() || rate.Uint64() > maxRateBps {
		return maxRateBps
	}
	return rate.Uint64()
}

// LateFeeBps returns the cumulative late fee ratio after days overdue days,
// starting from baseBps and capped at maxBps.
func LateFeeBps(baseBps, days, ratePerDayBps, maxBps uint64) uint64 {
	if baseBps >= maxBps {
		return baseBps
	}
	headroom := maxBps - baseBps
	if ratePerDayBps == 0 || days == 0 {
		return baseBps
	}
	if days > headroom/ratePerDayBps {
		return maxBps
	}
	return baseBps + days*ratePerDayBps
}

// LateFeeAmount converts a cumulative late fee ratio into money. A non-zero
// ratio always costs at least one unit.
func LateFeeAmount(amount types.Money, feeBps uint64) types.Money {
	if feeBps == 0 || amount.IsZero() {
		return types.Money{}
	}
	fee := mulDiv(amount, feeBps, basisPointsDivisor)
	if fee.IsZero() {
		return oneUnit
	}
	return fee
}

// EarlyRepaymentDiscountBps scales linearly from capBps with the full term
// remaining down to zero at the due date.
func EarlyRepaymentDiscountBps(remainingBlocks, durationBlocks, capBps uint64) uint64 {
	if durationBlocks == 0 || remainingBlocks == 0 || capBps == 0 {
		return 0
	}
	if remainingBlocks >= durationBlocks {
		return capBps
	}
	d := new(big.Int).SetUint64(capBps)
	d.Mul(d, new(big.Int).SetUint64(remainingBlocks))
	d.Quo(d, new(big.Int).SetUint64(durationBlocks))
	return d.Uint64()
}

// ExtensionFee is amount * extensionFeeRate / 10_000.
func ExtensionFee(amount types.Money, feeRateBps uint64) types.Money {
	return mulDiv(amount, feeRateBps, basisPointsDivisor)
}

// RefinanceFee is remaining * refinanceFeeRate / 10_000.
func RefinanceFee(remaining types.Money, feeRateBps uint64) types.Money {
	return mulDiv(remaining, feeRateBps, basisPointsDivisor)
}

// ProtocolFee is the share of a repayment withheld by the protocol.
func ProtocolFee(value types.Money, feeBps uint64) types.Money {
	return mulDiv(value, feeBps, basisPointsDivisor)
}

// InterestOnlyPayment is the per-period interest of principal at rate. Any
// interest bearing principal owes at least one unit per period.
func InterestOnlyPayment(principal types.Money, rateBps, periodBlocks, yearBlocks uint64) types.Money {
	if principal.IsZero() {
		return types.Money{}
	}
	payment := ProratedInterest(principal, rateBps, periodBlocks, yearBlocks)
	if payment.IsZero() && rateBps > 0 {
		return oneUnit
	}
	return payment
}

// AmortizedPayment is the interest component plus an even share of the
// principal over the remaining periods.
func AmortizedPayment(principal types.Money, rateBps, periodBlocks, yearBlocks, remainingPeriods uint64) types.Money {
	if principal.IsZero() {
		return types.Money{}
	}
	if remainingPeriods == 0 {
		remainingPeriods = 1
	}
	interest := InterestOnlyPayment(principal, rateBps, periodBlocks, yearBlocks)
	share := mulDiv(principal, 1, remainingPeriods)
	return interest.Add(share)
}

// UnearnedSimpleInterest is the part of booked full-term simple interest that
// belongs to the remaining term.
func UnearnedSimpleInterest(principal types.Money, rateBps, remainingBlocks, durationBlocks uint64) types.Money {
	if durationBlocks == 0 {
		return types.Money{}
	}
	if remainingBlocks > durationBlocks {
		remainingBlocks = durationBlocks
	}
	return mulDiv2(principal, rateBps, remainingBlocks, bpsDenominator(durationBlocks))
}
