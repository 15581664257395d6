package memory

import (
	"sort"

	"github.com/antiyro/starkroot/db"
)

var _ db.Iterator = (*iterator)(nil)

type iterator struct {
	curInd int
	keys   []string
	values [][]byte
}

func newIterator(data map[string][]byte, lowerBound []byte, withUpperBound bool) *iterator {
	lower := string(lowerBound)
	upper := string(db.UpperBound(lowerBound))

	keys := make([]string, 0, len(data))
	for key := range data {
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
		values[i] = data[key]
	}
	return &iterator{curInd: -1, keys: keys, values: values}
}

func (it *iterator) Valid() bool {
	return it.curInd >= 0 && it.curInd < len(it.keys)
}

func (it *iterator) First() bool {
	it.curInd = 0
	return it.Valid()
}

func (it *iterator) Prev() bool {
	if it.curInd < 0 {
		return false
	}
	it.curInd--
	return it.Valid()
}

func (it *iterator) Next() bool {
	if it.curInd >= len(it.keys) {
		return false
	}
	it.curInd++
	return it.Valid()
}

func (it *iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return []byte(it.keys[it.curInd])
}

func (it *iterator) Value() ([]byte, error) {
	if !it.Valid() {
		return nil, db.ErrKeyNotFound
	}
	return it.values[it.curInd], nil
}

func (it *iterator) Seek(key []byte) bool {
	it.curInd = sort.SearchStrings(it.keys, string(key))
	return it.Valid()
}

func (it *iterator) Close() error {
	it.keys = nil
	it.values = nil
	return nil
}
