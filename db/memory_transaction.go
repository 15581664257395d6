package db

import (
	"sort"
)

var _ Transaction = (*memTransaction)(nil)

type memTransaction struct {
	storage map[string][]byte
}

// NewMemTransaction returns a transaction backed by a plain map. It is used
// for ephemeral tries and as the flush target in tests; Commit is a no-op.
func NewMemTransaction() Transaction {
	return &memTransaction{storage: make(map[string][]byte)}
}

func (t *memTransaction) Discard() error {
	t.storage = make(map[string][]byte)
	return nil
}

func (t *memTransaction) Commit() error {
	return nil
}

func (t *memTransaction) Set(key, val []byte) error {
	t.storage[string(key)] = append([]byte{}, val...)
	return nil
}

func (t *memTransaction) Delete(key []byte) error {
	delete(t.storage, string(key))
	return nil
}

func (t *memTransaction) Get(key []byte, cb func([]byte) error) error {
	value, found := t.storage[string(key)]
	if !found {
		return ErrKeyNotFound
	}
	return cb(value)
}

func (t *memTransaction) Impl() any {
	return t.storage
}

func (t *memTransaction) NewIterator(lowerBound []byte, withUpperBound bool) (Iterator, error) {
	return newMemIterator(t.storage, lowerBound, withUpperBound), nil
}

type memIterator struct {
	curInd int
	keys   []string
	values [][]byte
}

// newMemIterator snapshots the matching keys in ascending order. Like the
// disk-backed iterators it starts unpositioned.
func newMemIterator(storage map[string][]byte, lowerBound []byte, withUpperBound bool) *memIterator {
	lower := string(lowerBound)
	upper := string(UpperBound(lowerBound))

	keys := make([]string, 0, len(storage))
	for key := range storage {
		if key < lower {
			continue
		}
		if withUpperBound && upper != "" && key >= upper {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, key := range keys {
		values[i] = storage[key]
	}
	return &memIterator{curInd: -1, keys: keys, values: values}
}

func (it *memIterator) Valid() bool {
	return it.curInd >= 0 && it.curInd < len(it.keys)
}

func (it *memIterator) First() bool {
	it.curInd = 0
	return it.Valid()
}

func (it *memIterator) Prev() bool {
	if it.curInd < 0 {
		return false
	}
	it.curInd--
	return it.Valid()
}

func (it *memIterator) Next() bool {
	if it.curInd >= len(it.keys) {
		return false
	}
	it.curInd++
	return it.Valid()
}

func (it *memIterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return []byte(it.keys[it.curInd])
}

func (it *memIterator) Value() ([]byte, error) {
	if !it.Valid() {
		return nil, ErrKeyNotFound
	}
	return it.values[it.curInd], nil
}

func (it *memIterator) Seek(key []byte) bool {
	it.curInd = sort.SearchStrings(it.keys, string(key))
	return it.Valid()
}

func (it *memIterator) Close() error {
	it.keys = nil
	it.values = nil
	return nil
}
