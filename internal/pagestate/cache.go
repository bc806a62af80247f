// Package pagestate snapshots and restores per-path view state (scroll
// offset, form values, custom data) in two tiers: an in-process memory cache
// that is authoritative for the session and a durable Storage that survives
// a reload. Snapshots older than the configured TTL are never restored.
package pagestate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"safety-app/internal/browser"
	"safety-app/internal/domain"
	"safety-app/pkg/logger"
)

const (
	// StorageKeyPrefix prefixes every durable snapshot key
	StorageKeyPrefix = "pageState_"
	// DefaultTTL is how long a snapshot stays restorable
	DefaultTTL = 24 * time.Hour

	formKeyPrefix = "form_"
)

// ErrStorageUnavailable wraps failures of the durable tier. They are logged
// and the cache keeps working from memory.
var ErrStorageUnavailable = errors.New("page state storage unavailable")

// Collector adds custom data to a snapshot being collected
type Collector func(state *domain.PageState)

// Restorer receives a snapshot after scroll and forms were restored
type Restorer func(state *domain.PageState)

// Location reports the path currently displayed
type Location interface {
	CurrentPath() string
}

// Options configures a Cache. Document and Location are required; a nil
// Storage keeps the cache memory-only.
type Options struct {
	Document browser.Document
	Location Location
	Storage  Storage
	TTL      time.Duration
	Clock    func() time.Time
	Logger   *logger.Logger
}

// Cache is the two-tier page-state store
type Cache struct {
	doc     browser.Document
	loc     Location
	storage Storage
	memory  *gocache.Cache
	ttl     time.Duration
	now     func() time.Time
	log     *logger.Logger

	mu         sync.RWMutex
	collectors []Collector
	restorers  []Restorer
	degraded   bool
}

// New creates a Cache
func New(opts Options) *Cache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Cache{
		doc:     opts.Document,
		loc:     opts.Location,
		storage: opts.Storage,
		memory:  gocache.New(ttl, 10*time.Minute),
		ttl:     ttl,
		now:     clock,
		log:     log.Component("page_state"),
	}
}

// OnCollect registers a collector run on every automatic collection
func (c *Cache) OnCollect(fn Collector) {
	c.mu.Lock()
	c.collectors = append(c.collectors, fn)
	c.mu.Unlock()
}

// OnRestore registers a restorer run after every restore
func (c *Cache) OnRestore(fn Restorer) {
	c.mu.Lock()
	c.restorers = append(c.restorers, fn)
	c.mu.Unlock()
}

// Degraded reports whether the last durable operation failed
func (c *Cache) Degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.degraded
}

// Collect snapshots the current document: scroll offset, every form's named
// fields keyed "form_<index>", then whatever the collectors add.
func (c *Cache) Collect() *domain.PageState {
	state := &domain.PageState{
		ScrollPosition: c.doc.ScrollPosition(),
		FormData:       make(map[string]map[string]string),
		CustomData:     make(map[string]any),
	}
	for i, form := range c.doc.Forms() {
		state.FormData[formKeyPrefix+strconv.Itoa(i)] = form.Values()
	}

	c.mu.RLock()
	collectors := append([]Collector(nil), c.collectors...)
	c.mu.RUnlock()
	for _, collect := range collectors {
		collect(state)
	}
	return state
}

// Save stores a snapshot for path. An empty path means the current location
// and a nil state is collected from the document.
func (c *Cache) Save(path string, state *domain.PageState) {
	if path == "" {
		path = c.loc.CurrentPath()
	}
	if state == nil {
		state = c.Collect()
	} else {
		state = state.Clone()
	}
	state.Path = path
	state.Timestamp = c.now().UnixMilli()

	c.memory.Set(path, state, gocache.DefaultExpiration)

	if c.storage == nil {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		c.log.Warn("page state not serializable, kept in memory only",
			zap.String("path", path), zap.Error(err))
		return
	}
	c.durable(c.storage.SetItem(StorageKeyPrefix+path, string(data)), "save", path)
}

// Load returns the freshest snapshot for path. Memory is consulted first; a
// durable hit is promoted into memory. Stale snapshots count as absent.
func (c *Cache) Load(path string) (*domain.PageState, bool) {
	now := c.now()

	if v, ok := c.memory.Get(path); ok {
		state := v.(*domain.PageState)
		if state.IsFresh(now, c.ttl) {
			return state.Clone(), true
		}
		c.memory.Delete(path)
	}

	if c.storage == nil {
		return nil, false
	}

	raw, ok, err := c.storage.GetItem(StorageKeyPrefix + path)
	c.durable(err, "load", path)
	if err != nil || !ok {
		return nil, false
	}

	var state domain.PageState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		c.log.Warn("discarding unreadable page state", zap.String("path", path), zap.Error(err))
		c.durable(c.storage.RemoveItem(StorageKeyPrefix+path), "remove", path)
		return nil, false
	}
	if !state.IsFresh(now, c.ttl) {
		c.durable(c.storage.RemoveItem(StorageKeyPrefix+path), "remove", path)
		return nil, false
	}

	remaining := c.ttl - now.Sub(state.SavedAt())
	c.memory.Set(path, &state, remaining)
	return state.Clone(), true
}

// Restore applies a snapshot to the document: scroll first, then form values
// by name. Forms or fields that no longer exist are skipped.
func (c *Cache) Restore(state *domain.PageState) {
	if state == nil {
		return
	}
	c.doc.ScrollTo(state.ScrollPosition)

	forms := c.doc.Forms()
	for key, fields := range state.FormData {
		idx, ok := formIndex(key)
		if !ok || idx >= len(forms) {
			continue
		}
		for name, value := range fields {
			forms[idx].SetValue(name, value)
		}
	}

	c.mu.RLock()
	restorers := append([]Restorer(nil), c.restorers...)
	c.mu.RUnlock()
	for _, restore := range restorers {
		restore(state)
	}
}

// Clear removes the snapshot of path from both tiers, or every snapshot when
// path is empty.
func (c *Cache) Clear(path string) {
	if path != "" {
		c.memory.Delete(path)
		if c.storage != nil {
			c.durable(c.storage.RemoveItem(StorageKeyPrefix+path), "clear", path)
		}
		return
	}

	c.memory.Flush()
	if c.storage == nil {
		return
	}
	keys, err := c.storage.Keys()
	c.durable(err, "clear", "*")
	if err != nil {
		return
	}
	for _, key := range keys {
		if strings.HasPrefix(key, StorageKeyPrefix) {
			c.durable(c.storage.RemoveItem(key), "clear", strings.TrimPrefix(key, StorageKeyPrefix))
		}
	}
}

// durable records the outcome of a durable-tier call
func (c *Cache) durable(err error, op, path string) {
	c.mu.Lock()
	c.degraded = err != nil
	c.mu.Unlock()
	if err != nil {
		c.log.Warn("falling back to memory-only page state",
			zap.String("op", op),
			zap.String("path", path),
			zap.Error(fmt.Errorf("%w: %v", ErrStorageUnavailable, err)))
	}
}

func formIndex(key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, formKeyPrefix)
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}
