package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farmacia-suite/citas-client/internal/board"
	httpmiddleware "github.com/farmacia-suite/citas-client/internal/http/middleware"
)

// runWatch reloads the board on an interval and serves health and metrics
// endpoints until interrupted.
func runWatch(ctx context.Context, a *app, b *board.Board, filter board.StatusFilter, from, to time.Time) error {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(a.logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         a.cfg.MetricsAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		a.logger.Info("watch endpoints listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("watch endpoint server error", "error", err)
		}
	}()

	refresh := func() {
		if err := b.Load(ctx, filter, from, to); err != nil {
			a.logger.Error("board refresh failed", "error", err)
			return
		}
		fmt.Printf("\n[%s]\n", time.Now().In(a.cfg.Location()).Format("2006-01-02 15:04:05"))
		printBoard(b.Rows())
	}
	refresh()

	ticker := time.NewTicker(a.cfg.WatchInterval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			refresh()
		case <-quit:
			a.logger.Info("shutting down watch mode")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			return ctx.Err()
		}
	}
}
