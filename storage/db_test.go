package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("loans/1"), []byte("one")))
	value, err := db.Get([]byte("loans/1"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), value)

	require.NoError(t, db.Delete([]byte("loans/1")))
	_, err = db.Get([]byte("loans/1"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDBPersists(t *testing.T) {
	dir := t.TempDir()

	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	exerciseDatabase(t, db)
	require.NoError(t, db.Put([]byte("total_loans"), []byte{0x01}))
	db.Close()

	reopened, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()
	value, err := reopened.Get([]byte("total_loans"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, value)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	buf := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), buf))
	buf[0] = 'z'
	value, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), value)
}
