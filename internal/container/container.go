// Package container is the application context every binary builds once
// at startup. Backing stores are opened on first use so each binary only
// connects to what it needs, and Close releases whatever was opened.
package container

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"safety-app/internal/browser"
	"safety-app/internal/config"
	"safety-app/internal/navigation"
	"safety-app/internal/pagestate"
	"safety-app/internal/repository"
	"safety-app/internal/resourcecache"
	"safety-app/internal/service"
	"safety-app/internal/service/auth"
	"safety-app/pkg/badgerdb"
	"safety-app/pkg/database"
	"safety-app/pkg/logger"
	"safety-app/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	mu          sync.Mutex
	redisClient *redis.Client
	db          *database.PostgresDB
	dbChecked   bool
	badger      *badgerdb.Store
	auth        *auth.Service
	stats       service.StatsService
}

// New creates a new dependency injection container
func New(cfg *config.Config, logger *logger.Logger) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("container: config is required")
	}
	if logger == nil {
		return nil, errors.New("container: logger is required")
	}
	return &Container{Config: cfg, Logger: logger}, nil
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// Redis returns the shared Redis client, connecting on first use
func (c *Container) Redis() (*redis.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redisLocked()
}

func (c *Container) redisLocked() (*redis.Client, error) {
	if c.redisClient != nil {
		return c.redisClient, nil
	}
	if c.Config.RedisURL == "" {
		return nil, errors.New("REDIS_URL is not configured")
	}

	client, err := redis.NewClient(c.Config.RedisURL, c.Config.RedisKeyPrefix, c.Logger.Component("redis").Logger)
	if err != nil {
		return nil, err
	}
	c.redisClient = client
	c.Logger.Info("Redis client initialized successfully")
	return client, nil
}

// Postgres returns the relational store, or nil when DATABASE_URL is unset
func (c *Container) Postgres(ctx context.Context) (*database.PostgresDB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.postgresLocked(ctx)
}

func (c *Container) postgresLocked(ctx context.Context) (*database.PostgresDB, error) {
	if c.dbChecked {
		return c.db, nil
	}
	if c.Config.DatabaseURL == "" {
		c.dbChecked = true
		c.Logger.Info("DATABASE_URL not configured, statistics use the KV store only")
		return nil, nil
	}

	db, err := database.NewPostgresDB(ctx, c.Config.DatabaseURL, c.Config.DatabaseReadURL)
	if err != nil {
		return nil, err
	}
	c.db, c.dbChecked = db, true
	c.Logger.Info("PostgreSQL connected")
	return db, nil
}

// Badger returns the embedded store, in memory when BADGER_DIR is unset
func (c *Container) Badger() (*badgerdb.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.badgerLocked()
}

func (c *Container) badgerLocked() (*badgerdb.Store, error) {
	if c.badger != nil {
		return c.badger, nil
	}
	store, err := badgerdb.Open(c.Config.BadgerDir)
	if err != nil {
		return nil, err
	}
	c.badger = store
	return store, nil
}

// AuthService returns the admin token service
func (c *Container) AuthService() *auth.Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auth == nil {
		c.auth = auth.NewService(c.Config.AdminJWTSecret, c.Config.AdminTokenTTL, c.Logger)
	}
	return c.auth
}

// StatsService wires the stats service to Redis and, when configured,
// PostgreSQL
func (c *Container) StatsService(ctx context.Context) (service.StatsService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stats != nil {
		return c.stats, nil
	}

	client, err := c.redisLocked()
	if err != nil {
		return nil, fmt.Errorf("stats service: %w", err)
	}
	db, err := c.postgresLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats service: %w", err)
	}

	opts := service.StatsOptions{
		Redis:        client,
		TotalContent: c.Config.StatsTotalContent,
		Logger:       c.Logger,
	}
	if db != nil {
		opts.Activities = repository.NewActivityRepository(db)
	}
	c.stats = service.NewStatsService(opts)
	return c.stats, nil
}

// ResourceCache builds the edge cache controller in front of UPSTREAM_URL,
// persisting its tiers in the embedded store
func (c *Container) ResourceCache() (*resourcecache.Controller, error) {
	origin, err := url.Parse(c.Config.UpstreamURL)
	if err != nil || !origin.IsAbs() {
		return nil, fmt.Errorf("invalid UPSTREAM_URL %q", c.Config.UpstreamURL)
	}

	c.mu.Lock()
	store, err := c.badgerLocked()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	fetcher := resourcecache.NewHTTPFetcher(resourcecache.FetcherOptions{
		Timeout:      c.Config.FetchTimeout,
		MaxBodyBytes: c.Config.MaxCacheEntryBytes,
		Logger:       c.Logger,
	})

	return resourcecache.New(resourcecache.Options{
		Version:            c.Config.CacheVersion,
		Origin:             origin,
		Storage:            resourcecache.NewBadgerStorage(store),
		Fetcher:            fetcher,
		Logger:             c.Logger,
		EvictAfterFailures: c.Config.RefreshEvictAfter,
	})
}

// Session is one headless browsing session driven by a Router
type Session struct {
	ID         string
	Browser    *browser.Headless
	PageStates *pagestate.Cache
	Router     *navigation.Router
}

// NewSession builds a router over a headless browser whose page state is
// kept in the embedded store under sessionID, so reusing an ID resumes it.
// adminToken is consulted whenever a protected route is entered.
func (c *Container) NewSession(sessionID, initialPath string, adminToken func() string) (*Session, error) {
	c.mu.Lock()
	store, err := c.badgerLocked()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	hb := browser.NewHeadless(initialPath)
	states := pagestate.New(pagestate.Options{
		Document: hb,
		Location: hb,
		Storage:  pagestate.NewBadgerStorage(store, sessionID, c.Config.PageStateTTL),
		TTL:      c.Config.PageStateTTL,
		Logger:   c.Logger,
	})

	router, err := navigation.New(navigation.Config{
		Routes:             navigation.DefaultRoutes(),
		DefaultPath:        navigation.DefaultPath,
		TransitionDuration: c.Config.TransitionDuration,
	}, navigation.Dependencies{
		Document:   hb,
		History:    hb,
		PageStates: states,
		Authorizer: c.AuthService().RouteAuthorizer(adminToken),
		Logger:     c.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Session{ID: sessionID, Browser: hb, PageStates: states, Router: router}, nil
}

// HealthChecks returns a probe per backing store that has been opened
func (c *Container) HealthChecks() map[string]func(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	checks := make(map[string]func(ctx context.Context) error)
	if c.redisClient != nil {
		checks["redis"] = c.redisClient.Health
	}
	if c.db != nil {
		checks["postgres"] = c.db.Health
	}
	return checks
}

// Close releases every backing store that was opened
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		c.redisClient = nil
	}
	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
	if c.badger != nil {
		if err := c.badger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close badger: %w", err))
		}
		c.badger = nil
	}
	c.stats = nil
	c.dbChecked = false
	return errors.Join(errs...)
}
