// Command edge runs the resource cache as a caching reverse proxy in front
// of UPSTREAM_URL.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"safety-app/internal/config"
	"safety-app/internal/container"
	"safety-app/internal/handler"
	"safety-app/internal/middleware"
	"safety-app/internal/resourcecache"
	"safety-app/pkg/logger"
	"safety-app/pkg/server"
)

// MessagePath is where pages post controller commands
const MessagePath = "/__sw/message"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":     cfg.EdgePort,
		"upstream": cfg.UpstreamURL,
		"version":  cfg.CacheVersion,
	}).Info("Starting edge cache")

	c, err := container.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	ctrl, err := c.ResourceCache()
	if err != nil {
		_ = c.Close()
		log.WithError(err).Fatal("Failed to create resource cache")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout+5*time.Second)
	if err := ctrl.Install(ctx); err != nil {
		// Requests pass through uncached until SKIP_WAITING or a restart
		log.WithError(err).Error("Install failed, serving pass-through")
	}
	cancel()

	resources := &server.Resources{
		Server: server.New(cfg.EdgePort, setupRouter(c, ctrl)),
		Log:    log,
		Closers: []server.Closer{
			{Name: "resource_cache", Close: func(context.Context) error { ctrl.Close(); return nil }},
			{Name: "stores", Close: func(context.Context) error { return c.Close() }},
		},
	}

	if err := resources.Run(25 * time.Second); err != nil {
		log.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Edge cache shutdown complete")
}

func setupRouter(c *container.Container, ctrl *resourcecache.Controller) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", handler.NewHealthHandler(c, "edge").Check)
	r.Handle("/metrics", promhttp.Handler())
	r.Method(http.MethodPost, MessagePath, ctrl.MessageHandler())

	// Everything else is proxied through the cache tiers
	r.Handle("/*", ctrl)

	return r
}
