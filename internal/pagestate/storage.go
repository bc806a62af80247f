package pagestate

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"safety-app/pkg/badgerdb"
)

// Storage is a per-session string key/value area that outlives an in-memory
// cache, the server-side counterpart of a tab's sessionStorage.
type Storage interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
	Keys() ([]string, error)
}

// MemoryStorage keeps items in a map. It survives Cache re-creation as long
// as the same instance is reused, which is how tests simulate a reload.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

func (m *MemoryStorage) GetItem(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemoryStorage) SetItem(key, value string) error {
	m.mu.Lock()
	m.items[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) RemoveItem(key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys, nil
}

// BadgerStorage scopes items of one session under "session/<id>/" in an
// embedded BadgerDB, expiring them after ttl.
type BadgerStorage struct {
	store     *badgerdb.Store
	namespace string
	ttl       time.Duration
}

func NewBadgerStorage(store *badgerdb.Store, sessionID string, ttl time.Duration) *BadgerStorage {
	return &BadgerStorage{
		store:     store,
		namespace: fmt.Sprintf("session/%s/", sessionID),
		ttl:       ttl,
	}
}

func (b *BadgerStorage) GetItem(key string) (string, bool, error) {
	v, err := b.store.Get(b.namespace + key)
	if errors.Is(err, badgerdb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

func (b *BadgerStorage) SetItem(key, value string) error {
	return b.store.Set(b.namespace+key, []byte(value), b.ttl)
}

func (b *BadgerStorage) RemoveItem(key string) error {
	return b.store.Delete(b.namespace + key)
}

func (b *BadgerStorage) Keys() ([]string, error) {
	full, err := b.store.Keys(b.namespace)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(full))
	for i, k := range full {
		keys[i] = strings.TrimPrefix(k, b.namespace)
	}
	return keys, nil
}
