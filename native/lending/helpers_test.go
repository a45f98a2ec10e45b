package lending

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"lendledger/core/events"
	"lendledger/core/types"
	"lendledger/crypto"
	"lendledger/storage"
)

var (
	alice = crypto.DeriveAddress("alice")
	bob   = crypto.DeriveAddress("bob")
	carol = crypto.DeriveAddress("carol")
	admin = crypto.DeriveAddress("admin")
)

var errTransferRejected = errors.New("transfer rejected")

type stubPauseView struct {
	modules map[string]bool
}

func (s stubPauseView) IsPaused(module string) bool { return s.modules[module] }

// testEnv drives an engine over an in-memory store with a controllable block
// height and a ledger of outgoing transfers.
type testEnv struct {
	t         *testing.T
	engine    *Engine
	db        *storage.MemDB
	block     uint64
	received  map[crypto.Address]types.Money
	recorder  *events.Recorder
	failTrans bool
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithParams(t, DefaultParams())
}

func newTestEnvWithParams(t *testing.T, params Params) *testEnv {
	t.Helper()
	require.NoError(t, params.Validate())
	db := storage.NewMemDB()
	engine := NewEngine(params)
	engine.SetStorage(db)
	return &testEnv{
		t:        t,
		engine:   engine,
		db:       db,
		received: make(map[crypto.Address]types.Money),
		recorder: &events.Recorder{},
	}
}

type testHost struct {
	env    *testEnv
	caller crypto.Address
	value  types.Money
}

func (h *testHost) Caller() crypto.Address        { return h.caller }
func (h *testHost) BlockNumber() uint64           { return h.env.block }
func (h *testHost) TransferredValue() types.Money { return h.value }
func (h *testHost) Emit(ev events.Event)          { h.env.recorder.Emit(ev) }

func (h *testHost) Transfer(to crypto.Address, amount types.Money) error {
	if h.env.failTrans {
		return errTransferRejected
	}
	h.env.received[to] = h.env.received[to].Add(amount)
	return nil
}

func (env *testEnv) as(caller crypto.Address) Host {
	return &testHost{env: env, caller: caller}
}

func (env *testEnv) pay(caller crypto.Address, value uint64) Host {
	return &testHost{env: env, caller: caller, value: types.NewMoney(value)}
}

func (env *testEnv) advance(blocks uint64) { env.block += blocks }

func (env *testEnv) loan(id uint64) *Loan {
	env.t.Helper()
	loan, err := env.engine.GetLoan(id)
	require.NoError(env.t, err)
	return loan
}

// stored returns the encoded loan record as persisted.
func (env *testEnv) stored(id uint64) []byte {
	env.t.Helper()
	raw, err := env.db.Get(loanKey(id))
	require.NoError(env.t, err)
	return raw
}

func (env *testEnv) profile(addr crypto.Address) *UserProfile {
	env.t.Helper()
	profile, err := env.engine.GetUserProfile(addr)
	require.NoError(env.t, err)
	return profile
}

func (env *testEnv) liquidity() types.Money {
	env.t.Helper()
	v, err := env.engine.GetTotalLiquidity()
	require.NoError(env.t, err)
	return v
}

// createAndFund opens a loan from alice funded by bob and returns its id.
func (env *testEnv) createAndFund(amount, rateBps, duration uint64) uint64 {
	env.t.Helper()
	id, err := env.engine.CreateLoan(env.as(alice), types.NewMoney(amount), rateBps, duration, types.NewMoney(amount*2))
	require.NoError(env.t, err)
	require.NoError(env.t, env.engine.FundLoan(env.pay(bob, amount), id))
	return id
}

func (env *testEnv) fullRepayment(id uint64) uint64 {
	env.t.Helper()
	total, err := env.engine.CalculateFullRepayment(id, env.block)
	require.NoError(env.t, err)
	v, ok := total.Uint64()
	require.True(env.t, ok)
	return v
}

func money(v uint64) types.Money { return types.NewMoney(v) }

// requireAccounting checks that the outstanding buckets reconcile with the
// loan's running totals.
func requireAccounting(t *testing.T, loan *Loan) {
	t.Helper()
	require.Equal(t, 0, loan.RemainingBalance.Cmp(types.SumMoney(loan.PrincipalOutstanding, loan.InterestOutstanding, loan.FeesOutstanding)))

	left := loan.RemainingBalance.Add(loan.TotalPaid).Add(loan.TotalDiscounts)
	right := types.SumMoney(loan.Amount, loan.TotalInterestAccrued, loan.TotalLateFees, loan.TotalRefinanceFees)
	require.Equalf(t, 0, left.Cmp(right), "remaining+paid+discounts=%s principal+interest+fees=%s", left, right)
}
