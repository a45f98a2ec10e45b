package host

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lendledger/core/events"
	"lendledger/core/types"
	"lendledger/crypto"
	"lendledger/native/bank"
	"lendledger/native/lending"
	"lendledger/storage"
)

var (
	alice = crypto.DeriveAddress("alice")
	bob   = crypto.DeriveAddress("bob")
)

func fundedStore(t *testing.T) *storage.MemDB {
	t.Helper()
	db := storage.NewMemDB()
	b := bank.New(db)
	require.NoError(t, b.Credit(alice, types.NewMoney(10_000)))
	require.NoError(t, b.Credit(bob, types.NewMoney(10_000)))
	return db
}

func balance(t *testing.T, db storage.Database, addr crypto.Address) string {
	t.Helper()
	v, err := bank.New(db).Balance(addr)
	require.NoError(t, err)
	return v.String()
}

func TestBeginRejectsUnfundedValue(t *testing.T) {
	db := storage.NewMemDB()
	_, err := Begin(db, lending.ModuleAddress, alice, 1, types.NewMoney(5))
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
	require.Zero(t, db.Len())
}

func TestLoanLifecycleMovesBalances(t *testing.T) {
	db := fundedStore(t)
	engine := lending.NewEngine(lending.DefaultParams())
	engine.SetStorage(db)
	recorder := &events.Recorder{}

	run := func(caller crypto.Address, block, value uint64, op func(lending.Host) error) {
		t.Helper()
		tx, err := Begin(db, lending.ModuleAddress, caller, block, types.NewMoney(value))
		require.NoError(t, err)
		if err := op(tx); err != nil {
			tx.Abort()
			t.Fatalf("operation failed: %v", err)
		}
		require.NoError(t, tx.Commit(recorder))
	}

	var id uint64
	run(alice, 0, 0, func(h lending.Host) (err error) {
		id, err = engine.CreateLoan(h, types.NewMoney(1000), 500, 1000, types.NewMoney(1500))
		return err
	})
	run(bob, 0, 1000, func(h lending.Host) error { return engine.FundLoan(h, id) })
	require.Equal(t, "11000", balance(t, db, alice))
	require.Equal(t, "9000", balance(t, db, bob))
	require.Equal(t, "0", balance(t, db, lending.ModuleAddress))

	run(alice, 1000, 1050, func(h lending.Host) error { return engine.RepayLoan(h, id) })
	require.Equal(t, "9950", balance(t, db, alice))
	require.Equal(t, "10045", balance(t, db, bob))
	require.Equal(t, "5", balance(t, db, lending.ModuleAddress))

	require.Equal(t, []string{
		events.TypeLoanCreated,
		events.TypeLoanFunded,
		events.TypeLoanRepaid,
	}, recorder.Types())
}

func TestAbortRestoresEscrow(t *testing.T) {
	db := fundedStore(t)
	engine := lending.NewEngine(lending.DefaultParams())
	engine.SetStorage(db)

	tx, err := Begin(db, lending.ModuleAddress, alice, 0, types.NewMoney(7))
	require.NoError(t, err)
	_, err = engine.CreateLoan(tx, types.NewMoney(1000), 500, 1000, types.NewMoney(1500))
	require.ErrorIs(t, err, lending.ErrInvalidAmount)
	tx.Abort()

	require.Equal(t, "10000", balance(t, db, alice))
	require.ErrorIs(t, tx.Commit(nil), ErrTxClosed)
	total, err := engine.GetTotalLoans()
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(10)
	require.Equal(t, uint64(15), c.Advance(5))
	require.False(t, c.Set(12))
	require.True(t, c.Set(20))
	require.Equal(t, uint64(20), c.Height())
}

func TestWallClock(t *testing.T) {
	genesis := time.Unix(1_700_000_000, 0)
	c := WallClock{Genesis: genesis, BlockTime: 6 * time.Second, Now: func() time.Time { return genesis.Add(time.Minute) }}
	require.Equal(t, uint64(10), c.Height())
	c.Now = func() time.Time { return genesis.Add(-time.Second) }
	require.Zero(t, c.Height())
}
