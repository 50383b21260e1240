// Copyright 2026 The chainconsumer Authors
// This file is part of chainconsumer.
//
// chainconsumer is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// chainconsumer is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with chainconsumer. If not, see <http://www.gnu.org/licenses/>.

// Package httpapi exposes the service's external HTTP surface: prometheus
// metrics, the readiness probe, and the trivial last-block-timestamp
// lookup.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/erigontech/chainconsumer/internal/readiness"
	"github.com/erigontech/chainconsumer/internal/store"
)

// Server wires the readiness state, the repository, and the prometheus
// registry into a chi router. Metrics are served on a separate router bound
// to their own port, matching the original's two-port topology: the
// application surface (readiness, lookups) and the metrics exposition
// listen independently.
type Server struct {
	router        http.Handler
	metricsRouter http.Handler
	status        atomic.Value // readiness.Status
}

// New builds a Server that reports Ready until ConsumeReadiness delivers a
// status; repo serves the last_block_timestamp endpoint on the request path
// directly.
func New(repo store.Repository, registry *prometheus.Registry, log *zap.SugaredLogger) *Server {
	s := &Server{}
	s.status.Store(readiness.Ready)

	mr := chi.NewRouter()
	mr.Use(middleware.RequestID)
	mr.Use(middleware.Recoverer)
	mr.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	s.metricsRouter = mr

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		status := s.status.Load().(readiness.Status)
		if status != readiness.Ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/last_block_timestamp", func(w http.ResponseWriter, req *http.Request) {
		ts, err := repo.GetLastBlockTimestamp(req.Context())
		if err != nil {
			log.Errorw("failed to fetch last block timestamp", "error", err)
			http.NotFound(w, req)
			return
		}
		if ts == nil {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(*ts)
	})

	s.router = r
	return s
}

// ConsumeReadiness drains statuses into the server's current state until
// the channel closes.
func (s *Server) ConsumeReadiness(statuses <-chan readiness.Status) {
	for status := range statuses {
		s.status.Store(status)
	}
}

// ListenAndServe runs the application HTTP surface (readiness,
// last_block_timestamp) until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	return listenAndServe(ctx, addr, s.router)
}

// ListenAndServeMetrics runs the prometheus exposition endpoint on its own
// listener, bound to METRICS_PORT, until ctx is cancelled.
func (s *Server) ListenAndServeMetrics(ctx context.Context, addr string) error {
	return listenAndServe(ctx, addr, s.metricsRouter)
}

func listenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errs:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
