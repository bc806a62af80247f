// Package resourcecache is the offline-first resource cache that fronts the
// site. Requests are classified into a static, dynamic or api tier; static
// assets are served cache-first with a background refresh, everything else
// network-first with a cache fallback. When both fail, documents get the
// cached home page or an offline page and other resources a 503.
package resourcecache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"safety-app/pkg/logger"
)

type lifecycle int32

const (
	stateNew lifecycle = iota
	stateInstalled
	stateActivated
)

// Options configures a Controller
type Options struct {
	Version  string
	Origin   *url.URL
	Storage  CacheStorage
	Fetcher  Fetcher
	Manifest []string
	Logger   *logger.Logger
	Clock    func() time.Time
	// RefreshTimeout bounds each background refresh
	RefreshTimeout time.Duration
	// EvictAfterFailures drops a cache-first entry after that many
	// consecutive failed refreshes; zero keeps stale entries forever
	EvictAfterFailures int
}

// Controller owns the tiered caches and answers requests from them
type Controller struct {
	names      CacheNames
	origin     *url.URL
	storage    CacheStorage
	fetcher    Fetcher
	classifier *Classifier
	manifest   []string
	log        *logger.Logger
	now        func() time.Time

	refreshTimeout time.Duration
	evictAfter     int

	state atomic.Int32

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	failuresMu sync.Mutex
	failures   map[string]int
}

// New creates a Controller. Origin resolves relative request URLs and is
// where the application shell lives.
func New(opts Options) (*Controller, error) {
	if opts.Storage == nil || opts.Fetcher == nil {
		return nil, errors.New("resourcecache: storage and fetcher are required")
	}
	if opts.Origin == nil || !opts.Origin.IsAbs() {
		return nil, errors.New("resourcecache: origin must be an absolute URL")
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	if opts.Manifest == nil {
		opts.Manifest = DefaultManifest
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 30 * time.Second
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	return &Controller{
		names:          NewCacheNames(opts.Version),
		origin:         opts.Origin,
		storage:        opts.Storage,
		fetcher:        opts.Fetcher,
		classifier:     NewClassifier(opts.Manifest),
		manifest:       opts.Manifest,
		log:            opts.Logger.Component("resource_cache"),
		now:            opts.Clock,
		refreshTimeout: opts.RefreshTimeout,
		evictAfter:     opts.EvictAfterFailures,
		bgCtx:          bgCtx,
		bgCancel:       cancel,
		failures:       make(map[string]int),
	}, nil
}

// Names returns the cache names of this version
func (c *Controller) Names() CacheNames {
	return c.names
}

// Active reports whether the controller intercepts requests
func (c *Controller) Active() bool {
	return lifecycle(c.state.Load()) == stateActivated
}

// Install precaches the manifest into the static tier. It is all or
// nothing: if any asset cannot be fetched with a 2xx, nothing is stored.
// A successful install activates immediately.
func (c *Controller) Install(ctx context.Context) error {
	responses := make([]*Response, len(c.manifest))
	keys := make([]string, len(c.manifest))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, entry := range c.manifest {
		target, err := c.resolve(entry)
		if err != nil {
			return fmt.Errorf("precache %q: %w", entry, err)
		}
		keys[i] = target.String()
		g.Go(func() error {
			resp, err := c.fetch(gctx, http.MethodGet, target, nil)
			if err != nil {
				return fmt.Errorf("precache %s: %w", target, err)
			}
			if !resp.Cacheable() {
				resp.Close()
				return fmt.Errorf("precache %s: unexpected status %d", target, resp.Status)
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.log.Error("install failed", zap.Error(err))
		return err
	}

	for i, resp := range responses {
		if err := c.storage.Put(ctx, c.names.Static, keys[i], resp); err != nil {
			return fmt.Errorf("store %s: %w", keys[i], err)
		}
	}
	c.state.Store(int32(stateInstalled))
	c.log.Info("static assets precached", zap.Int("assets", len(responses)), zap.String("cache", c.names.Static))

	return c.SkipWaiting(ctx)
}

// SkipWaiting activates an installed controller right away
func (c *Controller) SkipWaiting(ctx context.Context) error {
	if lifecycle(c.state.Load()) == stateActivated {
		return nil
	}
	return c.Activate(ctx)
}

// Activate deletes every cache that does not belong to this version and
// starts intercepting requests.
func (c *Controller) Activate(ctx context.Context) error {
	names, err := c.storage.Names(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}
	for _, name := range names {
		if c.names.Current(name) {
			continue
		}
		if err := c.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete cache %s: %w", name, err)
		}
		c.log.Info("deleted outdated cache", zap.String("cache", name))
	}
	c.state.Store(int32(stateActivated))
	c.log.Info("resource cache activated", zap.String("version", c.names.App))
	return nil
}

// Respond answers r. It always returns a response: non-GET requests and
// requests before activation go straight to the network, everything else
// follows its tier policy with the offline fallbacks.
func (c *Controller) Respond(r *http.Request) *Response {
	ctx := r.Context()
	target, err := c.resolve(r.URL.String())
	if err != nil {
		c.log.Warn("unresolvable request URL", zap.String("url", r.URL.String()), zap.Error(err))
		return networkErrorResponse(c.now())
	}

	if r.Method != http.MethodGet || !c.Active() {
		resp, err := c.forward(r, target)
		if err != nil {
			c.log.Warn("pass-through request failed", zap.String("url", target.String()), zap.Error(err))
			cacheRequests.WithLabelValues("none", string(SourceOffline)).Inc()
			return networkErrorResponse(c.now())
		}
		cacheRequests.WithLabelValues("none", string(SourceNetwork)).Inc()
		return resp
	}

	class := c.classifier.Classify(target)
	cacheName := c.names.For(class.Tier)

	var resp *Response
	switch class.Policy {
	case CacheFirst:
		resp, err = c.cacheFirst(ctx, cacheName, target, r.Header)
	default:
		resp, err = c.networkFirst(ctx, cacheName, target, r.Header)
	}
	if err != nil {
		c.log.Warn("request failed in every tier",
			zap.String("url", target.String()),
			zap.String("tier", string(class.Tier)),
			zap.Error(err))
		resp = c.offlineFallback(ctx, r)
	}
	cacheRequests.WithLabelValues(string(class.Tier), string(resp.Source)).Inc()
	return resp
}

// ServeHTTP lets the controller front an origin as a caching reverse proxy
func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := c.Respond(r)
	if err := resp.WriteTo(w); err != nil {
		c.log.Debug("client went away while writing response", zap.Error(err))
	}
}

// Wait blocks until every background refresh has finished
func (c *Controller) Wait() {
	c.bg.Wait()
}

// Close cancels background refreshes and waits for them
func (c *Controller) Close() {
	c.bgCancel()
	c.bg.Wait()
}

func (c *Controller) cacheFirst(ctx context.Context, cacheName string, target *url.URL, header http.Header) (*Response, error) {
	key := target.String()
	cached, err := c.storage.Match(ctx, cacheName, key)
	if err != nil {
		c.log.Warn("cache lookup failed, treating as miss", zap.String("cache", cacheName), zap.Error(err))
	}
	if cached != nil {
		cached.Source = SourceCache
		c.refreshInBackground(cacheName, target, header)
		return cached, nil
	}

	resp, err := c.fetch(ctx, http.MethodGet, target, header)
	if err != nil {
		return nil, err
	}
	c.store(ctx, cacheName, key, resp)
	return resp, nil
}

func (c *Controller) networkFirst(ctx context.Context, cacheName string, target *url.URL, header http.Header) (*Response, error) {
	key := target.String()
	resp, err := c.fetch(ctx, http.MethodGet, target, header)
	if err == nil {
		c.store(ctx, cacheName, key, resp)
		return resp, nil
	}

	cached, lookupErr := c.storage.Match(ctx, cacheName, key)
	if lookupErr != nil {
		c.log.Warn("cache lookup failed", zap.String("cache", cacheName), zap.Error(lookupErr))
	}
	if cached == nil {
		return nil, err
	}
	c.log.Info("network failed, serving cached copy", zap.String("url", key), zap.Error(err))
	cached.Source = SourceCache
	return cached, nil
}

// refreshInBackground refetches a cache-first entry without delaying the
// cached answer. Failures are logged and counted, never surfaced.
func (c *Controller) refreshInBackground(cacheName string, target *url.URL, header http.Header) {
	header = header.Clone()
	key := target.String()

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(c.bgCtx, c.refreshTimeout)
		defer cancel()

		resp, err := c.fetch(ctx, http.MethodGet, target, header)
		if err == nil && resp.Cacheable() {
			c.store(ctx, cacheName, key, resp)
			c.resetFailures(key)
			return
		}
		if err == nil {
			resp.Close()
			err = fmt.Errorf("unexpected status %d", resp.Status)
		}

		refreshFailures.Inc()
		n := c.recordFailure(key)
		c.log.Warn("background refresh failed",
			zap.String("url", key),
			zap.Int("consecutive_failures", n),
			zap.Error(err))

		if c.evictAfter > 0 && n >= c.evictAfter {
			if err := c.storage.Remove(ctx, cacheName, key); err != nil {
				c.log.Warn("evicting stale entry failed", zap.String("url", key), zap.Error(err))
				return
			}
			c.resetFailures(key)
			c.log.Info("evicted stale entry after repeated refresh failures", zap.String("url", key))
		}
	}()
}

func (c *Controller) recordFailure(key string) int {
	c.failuresMu.Lock()
	defer c.failuresMu.Unlock()
	c.failures[key]++
	return c.failures[key]
}

func (c *Controller) resetFailures(key string) {
	c.failuresMu.Lock()
	delete(c.failures, key)
	c.failuresMu.Unlock()
}

// offlineFallback is the last resort once network and tier both failed
func (c *Controller) offlineFallback(ctx context.Context, r *http.Request) *Response {
	if !isDocumentRequest(r) {
		return networkErrorResponse(c.now())
	}
	home := c.origin.ResolveReference(&url.URL{Path: "/"}).String()
	cached, err := c.storage.Match(ctx, c.names.Static, home)
	if err == nil && cached != nil {
		cached.Source = SourceCache
		return cached
	}
	return offlineResponse(c.now())
}

func (c *Controller) store(ctx context.Context, cacheName, key string, resp *Response) {
	if !resp.Cacheable() {
		return
	}
	if err := c.storage.Put(ctx, cacheName, key, resp); err != nil {
		c.log.Warn("caching response failed", zap.String("cache", cacheName), zap.String("url", key), zap.Error(err))
	}
}

func (c *Controller) fetch(ctx context.Context, method string, target *url.URL, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, err
	}
	copyRequestHeaders(req.Header, header)
	return c.fetcher.Fetch(req)
}

// forward relays a request, body included, without caching
func (c *Controller) forward(r *http.Request, target *url.URL) (*Response, error) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = r.ContentLength
	copyRequestHeaders(req.Header, r.Header)
	return c.fetcher.Fetch(req)
}

// resolve turns a request or manifest URL into the absolute cache key
func (c *Controller) resolve(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		u = c.origin.ResolveReference(u)
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

func copyRequestHeaders(dst, src http.Header) {
	for k, vs := range src {
		if isHopHeader(k) || strings.EqualFold(k, "Host") || strings.EqualFold(k, "Accept-Encoding") {
			continue
		}
		dst[k] = append([]string(nil), vs...)
	}
}

// isDocumentRequest reports a top-level page load
func isDocumentRequest(r *http.Request) bool {
	if dest := r.Header.Get("Sec-Fetch-Dest"); dest != "" {
		return dest == "document"
	}
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
