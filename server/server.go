// Package server exposes the operational HTTP surface: liveness, league and
// watcher status, and Prometheus metrics. It injects correlation IDs into
// request contexts for consistent logging.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/castling-club/leaguebot/league"
	"github.com/castling-club/leaguebot/telemetry"
	"github.com/castling-club/leaguebot/watch"
)

// WatcherStatus is one watcher's entry in the status payload.
type WatcherStatus struct {
	League  string `json:"league"`
	State   string `json:"state"`
	Tracked int    `json:"tracked"`
}

// LeagueStatus is one league's entry in the status payload.
type LeagueStatus struct {
	Name        string    `json:"name"`
	Teams       int       `json:"teams"`
	Pairings    int       `json:"pairings"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewMux returns the HTTP handler with all routes.
func NewMux(reg *league.Registry, watchers []*watch.Watcher) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		leagues := make([]LeagueStatus, 0, len(reg.All()))
		for _, lg := range reg.All() {
			leagues = append(leagues, LeagueStatus{
				Name:        lg.Name(),
				Teams:       len(lg.Teams()),
				Pairings:    len(lg.Pairings()),
				LastUpdated: lg.LastUpdated(),
			})
		}
		ws := make([]WatcherStatus, 0, len(watchers))
		for _, watcher := range watchers {
			state, tracked := watcher.Status()
			ws = append(ws, WatcherStatus{League: watcher.LeagueName(), State: string(state), Tracked: tracked})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"leagues":  leagues,
			"watchers": ws,
		})
	})

	// Correlation ID injector.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)
		telemetry.LoggerWithCorr(ctx).Debug("request start",
			slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))
		mux.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start runs the HTTP server and shuts down gracefully on context
// cancellation.
func Start(ctx context.Context, addr string, reg *league.Registry, watchers []*watch.Watcher) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(reg, watchers),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
