package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"safety-app/pkg/logger"
)

// New returns an http.Server with the timeouts every binary uses
func New(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:           ":" + port,
		Handler:        handler,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
}

// Resources holds everything that needs cleanup on shutdown. Closers run
// in order after the server stops accepting requests.
type Resources struct {
	Server  *http.Server
	Closers []Closer
	Log     *logger.Logger

	mu     sync.Mutex
	closed bool
}

// Closer is one named shutdown step
type Closer struct {
	Name  string
	Close func(ctx context.Context) error
}

// Cleanup gracefully closes all resources. Calling it again is a no-op.
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error

	r.Log.Info("Starting graceful shutdown...")

	// Stop accepting new requests first
	if r.Server != nil {
		r.Log.Info("Shutting down HTTP server...")
		if err := r.Server.Shutdown(ctx); err != nil {
			r.Log.WithError(err).Error("Failed to shutdown HTTP server")
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.Log.Info("HTTP server shutdown complete")
		}
	}

	for _, c := range r.Closers {
		log := r.Log.WithField("resource", c.Name)
		if err := c.Close(ctx); err != nil {
			log.WithError(err).Error("Failed to close resource")
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		log.Info("Resource closed")
	}

	if len(errs) > 0 {
		r.Log.WithField("error_count", len(errs)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %w", len(errs), errors.Join(errs...))
	}

	r.Log.Info("Graceful shutdown completed successfully")
	return nil
}

// Run serves until SIGINT/SIGTERM or a listener failure, then runs
// Cleanup with shutdownTimeout. It returns the listener error, if any,
// joined with cleanup errors.
func (r *Resources) Run(shutdownTimeout time.Duration) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return r.serve(quit, shutdownTimeout)
}

func (r *Resources) serve(quit <-chan os.Signal, shutdownTimeout time.Duration) error {
	serverErr := make(chan error, 1)
	go func() {
		r.Log.WithField("addr", r.Server.Addr).Info("Server starting")
		if err := r.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case sig := <-quit:
		r.Log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErr:
		r.Log.WithError(err).Error("Server failed, initiating shutdown")
		runErr = err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(runErr, r.Cleanup(ctx))
}
