package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	metrics "github.com/docker/go-metrics"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/TeoSlayer/sackudp/pkg/observe"
)

// newMetricsRouter exposes the prometheus registry.
func newMetricsRouter() *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return router
}

// serveMetrics starts the metrics endpoint on addr and returns a stop function.
func serveMetrics(addr string) (func(), error) {
	observe.RegisterMetrics()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "metrics listen %s", addr)
	}
	srv := &http.Server{Handler: newMetricsRouter(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
