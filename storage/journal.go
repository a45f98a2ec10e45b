package storage

import (
	"errors"
	"fmt"
)

var errJournalClosed = errors.New("storage: journal already committed or discarded")

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Journal buffers writes over a base Database. Reads observe the buffered
// writes first. Nothing reaches the base until Commit, and a committed journal
// can still be rolled back through the returned Undo.
type Journal struct {
	base    Database
	pending map[string]pendingWrite
	order   []string
	closed  bool
}

// NewJournal opens a journal over base.
func NewJournal(base Database) *Journal {
	return &Journal{base: base, pending: make(map[string]pendingWrite)}
}

func (j *Journal) Get(key []byte) ([]byte, error) {
	if w, ok := j.pending[string(key)]; ok {
		if w.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), w.value...), nil
	}
	return j.base.Get(key)
}

func (j *Journal) Put(key []byte, value []byte) error {
	if j.closed {
		return errJournalClosed
	}
	j.record(string(key), pendingWrite{value: append([]byte(nil), value...)})
	return nil
}

func (j *Journal) Delete(key []byte) error {
	if j.closed {
		return errJournalClosed
	}
	j.record(string(key), pendingWrite{deleted: true})
	return nil
}

// Close discards any pending writes.
func (j *Journal) Close() { j.Discard() }

// Dirty reports whether any write is buffered.
func (j *Journal) Dirty() bool { return len(j.order) > 0 }

func (j *Journal) record(key string, w pendingWrite) {
	if _, seen := j.pending[key]; !seen {
		j.order = append(j.order, key)
	}
	j.pending[key] = w
}

// Discard drops the buffered writes.
func (j *Journal) Discard() {
	j.pending = map[string]pendingWrite{}
	j.order = nil
	j.closed = true
}

type undoEntry struct {
	key     string
	value   []byte
	existed bool
}

// Undo restores the values a committed journal overwrote.
type Undo struct {
	base    Database
	entries []undoEntry
}

// Commit applies the buffered writes to the base in insertion order. On a
// failed write the already-applied writes are reverted before returning.
func (j *Journal) Commit() (*Undo, error) {
	if j.closed {
		return nil, errJournalClosed
	}
	undo := &Undo{base: j.base}
	for _, key := range j.order {
		prior, err := j.base.Get([]byte(key))
		existed := true
		if errors.Is(err, ErrNotFound) {
			existed = false
		} else if err != nil {
			_ = undo.Revert()
			return nil, fmt.Errorf("storage: snapshot %q: %w", key, err)
		}
		undo.entries = append(undo.entries, undoEntry{key: key, value: prior, existed: existed})

		w := j.pending[key]
		if w.deleted {
			err = j.base.Delete([]byte(key))
		} else {
			err = j.base.Put([]byte(key), w.value)
		}
		if err != nil {
			_ = undo.Revert()
			return nil, fmt.Errorf("storage: apply %q: %w", key, err)
		}
	}
	j.pending = map[string]pendingWrite{}
	j.order = nil
	j.closed = true
	return undo, nil
}

// Revert restores the base to its state before Commit. It is safe to call on
// a nil Undo.
func (u *Undo) Revert() error {
	if u == nil {
		return nil
	}
	var firstErr error
	for i := len(u.entries) - 1; i >= 0; i-- {
		entry := u.entries[i]
		var err error
		if entry.existed {
			err = u.base.Put([]byte(entry.key), entry.value)
		} else {
			err = u.base.Delete([]byte(entry.key))
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("storage: revert %q: %w", entry.key, err)
		}
	}
	u.entries = nil
	return firstErr
}
