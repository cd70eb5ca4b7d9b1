package main

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/onuhq/onu/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// serveMetrics registers the studio collectors and serves them on addr.
func serveMetrics(addr string, log *slog.Logger) error {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info("serving metrics", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server error", "error", err)
		}
	}()
	return nil
}
