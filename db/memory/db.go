// Package memory provides a db.DB backed by a plain map, giving the
// benchmark a baseline without any storage engine underneath.
package memory

import (
	"errors"
	"sync"

	"github.com/antiyro/starkroot/db"
	"github.com/antiyro/starkroot/utils"
)

var (
	errDBClosed    = errors.New("memory database closed")
	errDiscarded   = errors.New("discarded txn")
	errReadOnlyTxn = errors.New("read only transaction")
)

var _ db.DB = (*Database)(nil)

// Database is an in-memory key-value store. A write transaction buffers its
// changes and applies them on commit; read transactions work on a copy of the
// backing map taken when the transaction is created, mirroring the snapshot
// isolation the disk backend provides.
type Database struct {
	mu     sync.RWMutex
	wMutex sync.Mutex
	data   map[string][]byte
}

func New() *Database {
	return &Database{data: make(map[string][]byte)}
}

// NewTransaction : see db.DB.NewTransaction
func (d *Database) NewTransaction(update bool) db.Transaction {
	if update {
		d.wMutex.Lock()
		return &transaction{db: d, update: true, pending: make(map[string][]byte)}
	}
	return &transaction{db: d, snapshot: d.copyData()}
}

func (d *Database) copyData() map[string][]byte {
	d.mu.RLock()
	defer d.mu.RUnlock()

	data := make(map[string][]byte, len(d.data))
	for key, value := range d.data {
		data[key] = value
	}
	return data
}

// View : see db.DB.View
func (d *Database) View(fn func(txn db.Transaction) error) error {
	txn := d.NewTransaction(false)
	return utils.RunAndWrapOnError(txn.Discard, fn(txn))
}

// Update : see db.DB.Update
func (d *Database) Update(fn func(txn db.Transaction) error) error {
	txn := d.NewTransaction(true)
	if err := fn(txn); err != nil {
		return utils.RunAndWrapOnError(txn.Discard, err)
	}
	return utils.RunAndWrapOnError(txn.Discard, txn.Commit())
}

// Impl : see db.DB.Impl
func (d *Database) Impl() any {
	return d.data
}

// Close : see io.Closer.Close
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.data = nil
	return nil
}

var _ db.Transaction = (*transaction)(nil)

type transaction struct {
	db       *Database
	pending  map[string][]byte // write overlay, nil marks a deletion
	snapshot map[string][]byte // read view for read-only transactions
	update   bool
	done     bool
}

// Discard : see db.Transaction.Discard
func (t *transaction) Discard() error {
	if t.done {
		return nil
	}
	t.done = true
	t.pending = nil
	t.snapshot = nil
	if t.update {
		t.db.wMutex.Unlock()
	}
	return nil
}

// Commit : see db.Transaction.Commit
func (t *transaction) Commit() error {
	if t.done {
		return errDiscarded
	}
	if !t.update {
		return errReadOnlyTxn
	}

	t.db.mu.Lock()
	if t.db.data == nil {
		t.db.mu.Unlock()
		return utils.RunAndWrapOnError(t.Discard, errDBClosed)
	}
	for key, value := range t.pending {
		if value == nil {
			delete(t.db.data, key)
		} else {
			t.db.data[key] = value
		}
	}
	t.db.mu.Unlock()

	return t.Discard()
}

// Set : see db.Transaction.Set
func (t *transaction) Set(key, val []byte) error {
	if t.done {
		return errDiscarded
	}
	if !t.update {
		return errReadOnlyTxn
	}
	if len(key) == 0 {
		return errors.New("empty key")
	}

	// never store nil, it is the overlay's deletion marker
	t.pending[string(key)] = append([]byte{}, val...)
	return nil
}

// Delete : see db.Transaction.Delete
func (t *transaction) Delete(key []byte) error {
	if t.done {
		return errDiscarded
	}
	if !t.update {
		return errReadOnlyTxn
	}

	t.pending[string(key)] = nil
	return nil
}

// Get : see db.Transaction.Get
func (t *transaction) Get(key []byte, cb func([]byte) error) error {
	if t.done {
		return errDiscarded
	}

	if !t.update {
		value, found := t.snapshot[string(key)]
		if !found {
			return db.ErrKeyNotFound
		}
		return cb(value)
	}

	if value, found := t.pending[string(key)]; found {
		if value == nil {
			return db.ErrKeyNotFound
		}
		return cb(value)
	}

	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	if t.db.data == nil {
		return errDBClosed
	}
	value, found := t.db.data[string(key)]
	if !found {
		return db.ErrKeyNotFound
	}
	return cb(value)
}

// NewIterator : see db.Transaction.NewIterator
func (t *transaction) NewIterator(lowerBound []byte, withUpperBound bool) (db.Iterator, error) {
	if t.done {
		return nil, errDiscarded
	}
	return newIterator(t.view(), lowerBound, withUpperBound), nil
}

// view merges the committed data with the pending overlay into a flat map the
// iterator can snapshot.
func (t *transaction) view() map[string][]byte {
	if !t.update {
		return t.snapshot
	}

	t.db.mu.RLock()
	merged := make(map[string][]byte, len(t.db.data)+len(t.pending))
	for key, value := range t.db.data {
		merged[key] = value
	}
	t.db.mu.RUnlock()

	for key, value := range t.pending {
		if value == nil {
			delete(merged, key)
		} else {
			merged[key] = value
		}
	}
	return merged
}

// Impl : see db.Transaction.Impl
func (t *transaction) Impl() any {
	return t.db
}
