package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJournalBuffersUntilCommit(t *testing.T) {
	base := NewMemDB()
	require.NoError(t, base.Put([]byte("a"), []byte("1")))

	j := NewJournal(base)
	require.NoError(t, j.Put([]byte("a"), []byte("2")))
	require.NoError(t, j.Put([]byte("b"), []byte("3")))
	require.True(t, j.Dirty())

	value, err := j.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), value)

	value, err = base.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value, "base must not see buffered writes")

	_, err = j.Commit()
	require.NoError(t, err)

	value, err = base.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("3"), value)
}

func TestJournalDiscard(t *testing.T) {
	base := NewMemDB()
	j := NewJournal(base)
	require.NoError(t, j.Put([]byte("a"), []byte("1")))
	j.Discard()
	require.Equal(t, 0, base.Len())
	require.Error(t, j.Put([]byte("a"), []byte("1")))
	_, err := j.Commit()
	require.Error(t, err)
}

func TestJournalDeleteAndRevert(t *testing.T) {
	base := NewMemDB()
	require.NoError(t, base.Put([]byte("keep"), []byte("v1")))
	require.NoError(t, base.Put([]byte("drop"), []byte("v2")))

	j := NewJournal(base)
	require.NoError(t, j.Delete([]byte("drop")))
	require.NoError(t, j.Put([]byte("keep"), []byte("v3")))
	require.NoError(t, j.Put([]byte("new"), []byte("v4")))

	_, err := j.Get([]byte("drop"))
	require.ErrorIs(t, err, ErrNotFound)

	undo, err := j.Commit()
	require.NoError(t, err)
	_, err = base.Get([]byte("drop"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, undo.Revert())
	value, err := base.Get([]byte("drop"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), value)
	value, err = base.Get([]byte("keep"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), value)
	_, err = base.Get([]byte("new"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNestedJournals(t *testing.T) {
	base := NewMemDB()
	outer := NewJournal(base)
	inner := NewJournal(outer)
	require.NoError(t, inner.Put([]byte("k"), []byte("v")))
	_, err := inner.Commit()
	require.NoError(t, err)

	value, err := outer.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)
	require.Equal(t, 0, base.Len())

	_, err = outer.Commit()
	require.NoError(t, err)
	require.Equal(t, 1, base.Len())
}

type failingDB struct {
	*MemDB
	failOn string
}

func (f *failingDB) Put(key, value []byte) error {
	if string(key) == f.failOn {
		return errors.New("disk full")
	}
	return f.MemDB.Put(key, value)
}

func TestJournalCommitFailureRestoresBase(t *testing.T) {
	base := &failingDB{MemDB: NewMemDB(), failOn: "second"}
	require.NoError(t, base.MemDB.Put([]byte("first"), []byte("old")))

	j := NewJournal(base)
	require.NoError(t, j.Put([]byte("first"), []byte("new")))
	require.NoError(t, j.Put([]byte("second"), []byte("x")))

	_, err := j.Commit()
	require.Error(t, err)

	value, err := base.Get([]byte("first"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), value)
}
