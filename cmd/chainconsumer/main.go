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

// Command chainconsumer runs the blockchain state consumer: it subscribes
// to the upstream update feed, projects data entries into Postgres, and
// serves metrics/readiness/lookup over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/erigontech/chainconsumer/internal/config"
	"github.com/erigontech/chainconsumer/internal/httpapi"
	"github.com/erigontech/chainconsumer/internal/ingest"
	"github.com/erigontech/chainconsumer/internal/logging"
	"github.com/erigontech/chainconsumer/internal/metrics"
	"github.com/erigontech/chainconsumer/internal/readiness"
	"github.com/erigontech/chainconsumer/internal/store"
	"github.com/erigontech/chainconsumer/internal/upstream"
)

func main() {
	root := &cobra.Command{
		Use:          "chainconsumer",
		Short:        "Consumes the upstream blockchain update feed into a Postgres-backed store",
		SilenceUsage: true,
		RunE:         run,
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	pg, err := store.NewPostgres(ctx, store.Config{
		Host:        cfg.Postgres.Host,
		Port:        cfg.Postgres.Port,
		Database:    cfg.Postgres.Database,
		User:        cfg.Postgres.User,
		Password:    cfg.Postgres.Password,
		PoolSize:    cfg.Postgres.PoolSize,
		IdleTimeout: 300 * time.Second,
		HistoryKeys: cfg.HistoryKeysEnable,
		Metrics:     collector,
	})
	if err != nil {
		return err
	}
	defer pg.Close()

	source, err := upstream.Dial(cfg.Upstream.URL, log)
	if err != nil {
		return err
	}

	daemon := ingest.New(pg, source, log, collector)
	reporter := readiness.New(pg, 300*time.Second, log)
	server := httpapi.New(pg, registry, log)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return daemon.Run(gctx, ingest.Config{
			StartRollbackDepth: cfg.Upstream.StartRollbackDepth,
			BatchMaxSize:       int(cfg.Upstream.UpdatesPerRequest),
			BatchMaxWait:       cfg.Upstream.MaxWaitTime,
		})
	})
	group.Go(func() error {
		reporter.Run(gctx)
		return nil
	})
	group.Go(func() error {
		server.ConsumeReadiness(reporter.Statuses())
		return nil
	})
	group.Go(func() error {
		return server.ListenAndServe(gctx, fmt.Sprintf(":%d", cfg.Port))
	})
	group.Go(func() error {
		return server.ListenAndServeMetrics(gctx, fmt.Sprintf(":%d", cfg.MetricsPort))
	})

	log.Infow("chainconsumer started", "metrics_port", cfg.MetricsPort, "port", cfg.Port)

	if err := group.Wait(); err != nil && gctx.Err() == nil {
		log.Errorw("fatal error", "error", err)
		return err
	}
	return nil
}
