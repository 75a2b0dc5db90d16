package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/metrics"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/mid"
)

func newMetricsRouter(reg *metrics.Registry, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(mid.Recover(log), mid.Logger(log), mid.OTel("catalog.metrics"))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", reg.Handler())
	return r
}

// serveMetrics starts the metrics listener in the background.
func serveMetrics(port int, reg *metrics.Registry, log *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newMetricsRouter(reg, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics.listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics.server", "error", err)
		}
	}()
	return srv
}
