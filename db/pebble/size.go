package pebble

import (
	"context"

	"github.com/antiyro/starkroot/db"
	"github.com/antiyro/starkroot/utils"
	"github.com/cockroachdb/pebble"
)

type Item struct {
	Count uint
	Size  utils.DataSize
}

func (i *Item) add(size utils.DataSize) {
	i.Count++
	i.Size += size
}

// CalculatePrefixSize iterates over all keys with the given prefix and sums
// the key and value lengths. The scan aborts with the context's error when
// ctx is cancelled.
func CalculatePrefixSize(ctx context.Context, pDB *DB, prefix []byte) (*Item, error) {
	var (
		err error
		v   []byte

		item = &Item{}
	)

	pebbleDB := pDB.Impl().(*pebble.DB)
	it, err := pebbleDB.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: db.UpperBound(prefix)})
	if err != nil {
		return nil, err
	}

	for it.First(); it.Valid(); it.Next() {
		if ctx.Err() != nil {
			return item, utils.RunAndWrapOnError(it.Close, ctx.Err())
		}
		if v, err = it.ValueAndErr(); err != nil {
			return nil, utils.RunAndWrapOnError(it.Close, err)
		}
		item.add(utils.DataSize(len(it.Key()) + len(v)))
	}

	return item, it.Close()
}
