package db_test

import (
	"errors"
	"testing"

	"github.com/antiyro/starkroot/db"
	"github.com/antiyro/starkroot/db/memory"
	"github.com/antiyro/starkroot/db/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = func(val []byte) error {
	return nil
}

// testTransactions returns a write transaction for every Transaction
// implementation so that the suite below runs against all of them.
func testTransactions(t *testing.T) map[string]db.Transaction {
	memDB := memory.New()
	t.Cleanup(func() {
		require.NoError(t, memDB.Close())
	})
	memDBTxn := memDB.NewTransaction(true)
	pebbleTxn := pebble.NewMemTest(t).NewTransaction(true)
	t.Cleanup(func() {
		require.NoError(t, memDBTxn.Discard())
		require.NoError(t, pebbleTxn.Discard())
	})

	return map[string]db.Transaction{
		"in-memory transaction": db.NewMemTransaction(),
		"memory database":       memDBTxn,
		"pebble database":       pebbleTxn,
	}
}

func TestTransactionGetSetDelete(t *testing.T) {
	for name, txn := range testTransactions(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("get returns the last value set", func(t *testing.T) {
				require.NoError(t, txn.Set([]byte("key"), []byte("one")))
				require.NoError(t, txn.Set([]byte("key"), []byte("two")))
				assert.NoError(t, txn.Get([]byte("key"), func(val []byte) error {
					assert.Equal(t, "two", string(val))
					return nil
				}))
			})

			t.Run("get of an unknown key returns ErrKeyNotFound", func(t *testing.T) {
				assert.ErrorIs(t, txn.Get([]byte("unknown"), discard), db.ErrKeyNotFound)
			})

			t.Run("get after delete returns ErrKeyNotFound", func(t *testing.T) {
				require.NoError(t, txn.Set([]byte("gone"), []byte("value")))
				require.NoError(t, txn.Delete([]byte("gone")))
				assert.ErrorIs(t, txn.Get([]byte("gone"), discard), db.ErrKeyNotFound)
			})

			t.Run("deleting an unknown key is not an error", func(t *testing.T) {
				assert.NoError(t, txn.Delete([]byte("never set")))
			})

			t.Run("zero-length values survive the round trip", func(t *testing.T) {
				require.NoError(t, txn.Set([]byte("empty"), nil))
				assert.NoError(t, txn.Get([]byte("empty"), func(val []byte) error {
					assert.Len(t, val, 0)
					return nil
				}))
			})

			t.Run("error from the get callback is returned", func(t *testing.T) {
				require.NoError(t, txn.Set([]byte("cb"), []byte("value")))
				cbErr := errors.New("callback error")
				assert.ErrorIs(t, txn.Get([]byte("cb"), func([]byte) error {
					return cbErr
				}), cbErr)
			})
		})
	}
}

func TestTransactionIterator(t *testing.T) {
	for name, txn := range testTransactions(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range [][]byte{{1, 1}, {2, 1}, {2, 2}, {3, 1}} {
				require.NoError(t, txn.Set(key, key))
			}

			t.Run("walks every key in ascending order", func(t *testing.T) {
				it, err := txn.NewIterator(nil, false)
				require.NoError(t, err)

				var keys [][]byte
				for it.First(); it.Valid(); it.Next() {
					keys = append(keys, append([]byte{}, it.Key()...))
					v, vErr := it.Value()
					require.NoError(t, vErr)
					assert.Equal(t, keys[len(keys)-1], v)
				}
				assert.Equal(t, [][]byte{{1, 1}, {2, 1}, {2, 2}, {3, 1}}, keys)
				require.NoError(t, it.Close())
			})

			t.Run("honours the prefix bounds", func(t *testing.T) {
				it, err := txn.NewIterator([]byte{2}, true)
				require.NoError(t, err)

				var keys [][]byte
				for it.First(); it.Valid(); it.Next() {
					keys = append(keys, append([]byte{}, it.Key()...))
				}
				assert.Equal(t, [][]byte{{2, 1}, {2, 2}}, keys)
				require.NoError(t, it.Close())
			})

			t.Run("seek positions at the first key at or after the target", func(t *testing.T) {
				it, err := txn.NewIterator(nil, false)
				require.NoError(t, err)

				require.True(t, it.Seek([]byte{2}))
				assert.Equal(t, []byte{2, 1}, it.Key())
				require.False(t, it.Seek([]byte{4}))
				require.NoError(t, it.Close())
			})
		})
	}
}

func testDatabases(t *testing.T) map[string]db.DB {
	memDB := memory.New()
	t.Cleanup(func() {
		require.NoError(t, memDB.Close())
	})

	return map[string]db.DB{
		"memory": memDB,
		"pebble": pebble.NewMemTest(t),
	}
}

func TestDatabaseBackends(t *testing.T) {
	for name, database := range testDatabases(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("value from Update is visible to View", func(t *testing.T) {
				require.NoError(t, database.Update(func(txn db.Transaction) error {
					return txn.Set([]byte("committed"), []byte("value"))
				}))
				assert.NoError(t, database.View(func(txn db.Transaction) error {
					return txn.Get([]byte("committed"), func(val []byte) error {
						assert.Equal(t, "value", string(val))
						return nil
					})
				}))
			})

			t.Run("Update error discards the writes", func(t *testing.T) {
				boom := errors.New("boom")
				require.ErrorIs(t, database.Update(func(txn db.Transaction) error {
					require.NoError(t, txn.Set([]byte("rolled back"), []byte("value")))
					return boom
				}), boom)
				assert.ErrorIs(t, database.View(func(txn db.Transaction) error {
					return txn.Get([]byte("rolled back"), discard)
				}), db.ErrKeyNotFound)
			})

			t.Run("read transactions see a stable snapshot", func(t *testing.T) {
				require.NoError(t, database.Update(func(txn db.Transaction) error {
					return txn.Set([]byte("stable"), []byte{1})
				}))

				readTxn := database.NewTransaction(false)
				require.NoError(t, database.Update(func(txn db.Transaction) error {
					return txn.Set([]byte("stable"), []byte{2})
				}))

				assert.NoError(t, readTxn.Get([]byte("stable"), func(val []byte) error {
					assert.Equal(t, []byte{1}, val)
					return nil
				}))
				require.NoError(t, readTxn.Discard())
			})

			t.Run("writes in a read transaction are rejected", func(t *testing.T) {
				readTxn := database.NewTransaction(false)
				assert.Error(t, readTxn.Set([]byte("key"), []byte("value")))
				assert.Error(t, readTxn.Delete([]byte("key")))
				require.NoError(t, readTxn.Discard())
			})
		})
	}
}

func TestUpperBound(t *testing.T) {
	tests := []struct {
		prefix []byte
		want   []byte
	}{
		{nil, nil},
		{[]byte{0xff}, nil},
		{[]byte{0xff, 0xff}, nil},
		{[]byte{1}, []byte{2}},
		{[]byte{1, 2, 3}, []byte{1, 2, 4}},
		{[]byte{1, 0xff}, []byte{2}},
		{[]byte{1, 0xff, 0xff}, []byte{2}},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, db.UpperBound(test.prefix), "prefix %v", test.prefix)
	}
}
