package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/ColisTrack/config"
	"github.com/BearBump/ColisTrack/internal/services/poller"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type workerHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	poller *poller.Poller
	cfg    *config.Config
	ready  func(ctx context.Context) error
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := opts.ready(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		if opts.poller == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "poller not wired"})
			return
		}
		writeJSON(w, http.StatusOK, opts.poller.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		if opts.cfg == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "config not wired"})
			return
		}
		// operational settings only, credentials stay out
		ct := opts.cfg.ColisTrack
		writeJSON(w, http.StatusOK, map[string]any{
			"poll_interval_seconds":             ct.WorkerPollIntervalSeconds,
			"batch_size":                        ct.WorkerBatchSize,
			"concurrency":                       ct.WorkerConcurrency,
			"lease_seconds":                     ct.WorkerLeaseSeconds,
			"rate_limit_per_minute":             ct.WorkerRateLimitPerMinute,
			"rate_limit_fedex_per_minute":       ct.WorkerRateLimitFedExPerMinute,
			"next_check_in_transit_min_seconds": ct.WorkerNextCheckInTransitMinSeconds,
			"next_check_in_transit_max_seconds": ct.WorkerNextCheckInTransitMaxSeconds,
			"next_check_unknown_seconds":        ct.WorkerNextCheckUnknownSeconds,
			"next_check_pending_seconds":        ct.WorkerNextCheckPendingSeconds,
			"next_check_exception_seconds":      ct.WorkerNextCheckExceptionSeconds,
			"history_retention_days":            opts.cfg.Retention.HistoryDays,
			"notification_retention_days":       opts.cfg.Retention.NotificationDays,
			"retention_purge_interval_minutes":  opts.cfg.Retention.PurgeIntervalMinutes,
			"fedex_enabled":                     opts.cfg.FedEx.Enabled(),
			"tracking_updated_topic":            opts.cfg.Kafka.TrackingUpdatedTopicName,
		})
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if opts.poller == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "poller not wired"})
			return
		}
		opts.poller.Trigger()
		writeJSON(w, http.StatusAccepted, map[string]bool{"triggered": true})
	})

	if opts.swaggerPath != "" {
		if fi, err := os.Stat(opts.swaggerPath); err == nil {
			r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Cache-Control", "no-store")
				http.ServeFile(w, r, opts.swaggerPath)
			})
			swaggerURL := fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
			r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
		} else {
			slog.Warn("worker swagger file not available, docs disabled", "path", opts.swaggerPath)
		}
	}

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("worker HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
