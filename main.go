package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"safety-app/internal/config"
	"safety-app/internal/container"
	"safety-app/internal/handler"
	"safety-app/internal/middleware"
	"safety-app/internal/service"
	"safety-app/pkg/errors"
	"safety-app/pkg/logger"
	"safety-app/pkg/server"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
	}).Info("Starting stats API server")

	c, err := container.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	stats, err := c.StatsService(ctx)
	cancel()
	if err != nil {
		_ = c.Close()
		log.WithError(err).Fatal("Failed to initialize stats service")
	}

	resources := &server.Resources{
		Server: server.New(cfg.Port, setupRouter(c, stats)),
		Log:    log,
		Closers: []server.Closer{
			{Name: "stores", Close: func(context.Context) error { return c.Close() }},
		},
	}

	if err := resources.Run(25 * time.Second); err != nil {
		log.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(c *container.Container, stats service.StatsService) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()

	r := chi.NewRouter()

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowedOrigins = cfg.AllowedOrigins
	}

	// CORS sits outermost so error and preflight responses carry the headers too
	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID())
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	healthHandler := handler.NewHealthHandler(c, "stats-api")
	statsHandler := handler.NewStatsHandler(stats, log)
	adminHandler := handler.NewAdminHandler(stats, log)

	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", statsHandler.GetStats)

		r.With(httprate.Limit(
			cfg.StatsRateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				middleware.WriteError(w, r, errors.NewRateLimitError("Too many stats updates, slow down"), log)
			}),
		)).Post("/stats", statsHandler.UpdateStats)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(c.AuthService(), log))

			r.Get("/activities/{userId}", adminHandler.RecentActivities)
			r.Delete("/stats/{userId}", adminHandler.InvalidateStats)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, errors.NewNotFoundError("Endpoint not found"), log)
	})

	log.Info("Router configured successfully")
	return r
}
