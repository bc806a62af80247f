package resourcecache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"safety-app/pkg/badgerdb"
)

// CacheStorage holds named caches of responses keyed by absolute URL
type CacheStorage interface {
	// Match returns the stored response or nil on a miss
	Match(ctx context.Context, cacheName, key string) (*Response, error)
	Put(ctx context.Context, cacheName, key string, resp *Response) error
	Remove(ctx context.Context, cacheName, key string) error
	// Delete drops a whole named cache
	Delete(ctx context.Context, cacheName string) error
	Names(ctx context.Context) ([]string, error)
}

// MemoryStorage keeps caches in process memory
type MemoryStorage struct {
	mu     sync.RWMutex
	caches map[string]map[string]*Response
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: make(map[string]map[string]*Response)}
}

func (m *MemoryStorage) Match(_ context.Context, cacheName, key string) (*Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp, ok := m.caches[cacheName][key]
	if !ok {
		return nil, nil
	}
	return resp.Clone(), nil
}

func (m *MemoryStorage) Put(_ context.Context, cacheName, key string, resp *Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.caches[cacheName]
	if !ok {
		c = make(map[string]*Response)
		m.caches[cacheName] = c
	}
	c[key] = resp.Clone()
	return nil
}

func (m *MemoryStorage) Remove(_ context.Context, cacheName, key string) error {
	m.mu.Lock()
	delete(m.caches[cacheName], key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, cacheName string) error {
	m.mu.Lock()
	delete(m.caches, cacheName)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Names(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// BadgerStorage persists caches in an embedded BadgerDB under
// "rc/<cache name>/<url>" so an edge node restarts warm.
type BadgerStorage struct {
	store *badgerdb.Store
}

const badgerPrefix = "rc/"

func NewBadgerStorage(store *badgerdb.Store) *BadgerStorage {
	return &BadgerStorage{store: store}
}

func badgerKey(cacheName, key string) string {
	return badgerPrefix + cacheName + "/" + key
}

func (b *BadgerStorage) Match(_ context.Context, cacheName, key string) (*Response, error) {
	raw, err := b.store.Get(badgerKey(cacheName, key))
	if errors.Is(err, badgerdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode cached response: %w", err)
	}
	return &resp, nil
}

func (b *BadgerStorage) Put(_ context.Context, cacheName, key string, resp *Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return b.store.Set(badgerKey(cacheName, key), raw, 0)
}

func (b *BadgerStorage) Remove(_ context.Context, cacheName, key string) error {
	return b.store.Delete(badgerKey(cacheName, key))
}

func (b *BadgerStorage) Delete(_ context.Context, cacheName string) error {
	return b.store.DeletePrefix(badgerPrefix + cacheName + "/")
}

func (b *BadgerStorage) Names(context.Context) ([]string, error) {
	keys, err := b.store.Keys(badgerPrefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, k := range keys {
		name, _, ok := strings.Cut(strings.TrimPrefix(k, badgerPrefix), "/")
		if ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}
