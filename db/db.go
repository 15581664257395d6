package db

import "io"

// DB is a key-value database
type DB interface {
	io.Closer

	// NewTransaction returns a transaction on this database. It blocks if an
	// update transaction is requested while another one is still in flight.
	NewTransaction(update bool) Transaction
	// View creates a read-only transaction and calls fn with it
	View(fn func(txn Transaction) error) error
	// Update creates a read-write transaction, calls fn with it and commits
	// unless fn errored
	Update(fn func(txn Transaction) error) error
	// Impl returns the underlying database object
	Impl() any
}

// Transaction provides an interface to access the database's data
type Transaction interface {
	// Discard discards all the changes done to the database with this transaction
	Discard() error
	// Commit flushes all the changes pending on this transaction to the database
	Commit() error
	// Set updates the value of the given key
	Set(key, val []byte) error
	// Delete removes the key from the database
	Delete(key []byte) error
	// Get fetches the value for the given key. The value is only valid for
	// the duration of the callback.
	Get(key []byte, cb func(val []byte) error) error
	// NewIterator returns an iterator over the database's key/value pairs,
	// positioned before the first key greater than or equal to lowerBound.
	// With withUpperBound set, iteration stops before the first key that no
	// longer carries lowerBound as a prefix.
	NewIterator(lowerBound []byte, withUpperBound bool) (Iterator, error)
	// Impl returns the underlying transaction object
	Impl() any
}
