package transcript

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// KV is the durable key-value storage behind the client store. Get returns
// nil and no error for an absent key.
type KV interface {
	Get(key string) ([]byte, error)
	SetMany(values map[string][]byte) error
}

// BadgerKV stores client state in a BadgerDB directory.
type BadgerKV struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the badger database in dir.
func OpenBadger(dir string) (*BadgerKV, error) {
	opts := badger.DefaultOptions(dir).
		WithLoggingLevel(badger.ERROR)
	return openBadger(opts)
}

// OpenInMemory opens a badger database that lives only in memory.
func OpenInMemory() (*BadgerKV, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.ERROR)
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerKV, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat database: %w", err)
	}
	return &BadgerKV{db: db}, nil
}

// Get returns a copy of the value stored under key.
func (b *BadgerKV) Get(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return out, nil
}

// SetMany writes all values in one transaction.
func (b *BadgerKV) SetMany(values map[string][]byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for key, value := range values {
			if err := txn.Set([]byte(key), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write chat state: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *BadgerKV) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
