// Package badgerdb wraps an embedded BadgerDB used for state that must
// survive a process restart without an external server: page-state snapshots
// of headless sessions and the edge resource cache tiers.
package badgerdb

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned by Get when the key is absent or expired
var ErrNotFound = errors.New("badgerdb: key not found")

// Store is a thin key/value facade over *badger.DB
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a store in dir. An empty dir opens an in-memory
// store, which tests and ephemeral edge nodes use.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns a copy of the value stored under key
func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %q: %w", key, err)
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set stores value under key. A zero ttl stores it without expiry.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("set %q: %w", key, err)
		}
		return nil
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete %q: %w", key, err)
		}
		return nil
	})
}

// Keys returns every live key starting with prefix, in key order
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list prefix %q: %w", prefix, err)
	}
	return keys, nil
}

// DeletePrefix drops every key starting with prefix
func (s *Store) DeletePrefix(prefix string) error {
	if err := s.db.DropPrefix([]byte(prefix)); err != nil {
		return fmt.Errorf("drop prefix %q: %w", prefix, err)
	}
	return nil
}
