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

// Package ingest is the core ingestion daemon: it consumes batches from the
// upstream source and projects them into the store, one database
// transaction per batch.
package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/erigontech/chainconsumer/internal/apperror"
	"github.com/erigontech/chainconsumer/internal/metrics"
	"github.com/erigontech/chainconsumer/internal/store"
	"github.com/erigontech/chainconsumer/internal/upstream"
)

// Source is the subset of upstream.Source the daemon depends on.
type Source interface {
	Stream(ctx context.Context, fromHeight int32, batchMaxSize int, batchMaxWait time.Duration) (<-chan upstream.Batch, <-chan error)
}

// Config holds the daemon's tunables, independent of internal/config so the
// package stays importable from tests without it.
type Config struct {
	StartRollbackDepth uint32
	BatchMaxSize       int
	BatchMaxWait       time.Duration
}

// Daemon is the singleton writer described in the concurrency model: it is
// the only component that opens write transactions against the store.
type Daemon struct {
	repo    store.Repository
	source  Source
	log     *zap.SugaredLogger
	metrics *metrics.Collector
}

// New builds a Daemon around repo and source.
func New(repo store.Repository, source Source, log *zap.SugaredLogger, m *metrics.Collector) *Daemon {
	return &Daemon{repo: repo, source: source, log: log, metrics: m}
}

// Run performs startup rollback-to-depth, opens the upstream stream, and
// processes batches until ctx is cancelled or a fatal error occurs.
func (d *Daemon) Run(ctx context.Context, cfg Config) error {
	startHeight, err := d.startup(ctx, cfg.StartRollbackDepth)
	if err != nil {
		return err
	}
	d.log.Infow("starting ingestion", "from_height", startHeight)

	batches, errs := d.source.Stream(ctx, startHeight, cfg.BatchMaxSize, cfg.BatchMaxWait)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !ok {
				return apperror.Wrapf(apperror.StreamClosed, "upstream error channel closed unexpectedly")
			}
			return err
		case batch, ok := <-batches:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !ok {
				return apperror.Wrapf(apperror.StreamClosed, "upstream batch channel closed unexpectedly")
			}
			if d.metrics != nil {
				d.metrics.BatchReceived()
			}
			if err := d.processBatch(ctx, batch); err != nil {
				return err
			}
			if d.metrics != nil {
				d.metrics.SetHandledHeight(batch.LastHeight)
			}
		}
	}
}

// startup resolves the first height to stream from: if a handled height
// exists at start_rollback_depth below the current tip, roll back to it and
// resume one past it; otherwise start at height 1.
func (d *Daemon) startup(ctx context.Context, depth uint32) (int32, error) {
	var startHeight int32 = 1
	err := d.repo.Transaction(ctx, func(ctx context.Context, tx store.Repository) error {
		handled, err := tx.GetHandledHeight(ctx, depth)
		if err != nil {
			return err
		}
		if handled == nil {
			return nil
		}
		if err := rollback(ctx, tx, handled.UID); err != nil {
			return err
		}
		startHeight = handled.Height + 1
		return nil
	})
	if err != nil {
		return 0, err
	}
	return startHeight, nil
}

// processBatch coalesces the batch's events and applies each resulting item
// inside a single transaction.
func (d *Daemon) processBatch(ctx context.Context, batch upstream.Batch) error {
	return d.repo.Transaction(ctx, func(ctx context.Context, tx store.Repository) error {
		for _, item := range coalesce(batch.Updates) {
			if err := d.applyItem(ctx, tx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Daemon) applyItem(ctx context.Context, tx store.Repository, item any) error {
	switch v := item.(type) {
	case blocksItem:
		if err := squashMicroblocks(ctx, tx, d.metrics); err != nil {
			return err
		}
		if err := appendBlocksOrMicroblocks(ctx, tx, blocksToAppendable(v)); err != nil {
			return err
		}
		if d.metrics != nil {
			for range v {
				d.metrics.EventProcessed("block")
			}
		}
		return nil

	case microblockItem:
		if err := squashMicroblocks(ctx, tx, d.metrics); err != nil {
			return err
		}
		if err := appendBlocksOrMicroblocks(ctx, tx, []appendable{microblockToAppendable(v)}); err != nil {
			return err
		}
		if d.metrics != nil {
			d.metrics.EventProcessed("microblock")
		}
		return nil

	case rollbackItem:
		uid, err := tx.GetBlockUID(ctx, v.ID)
		if err != nil {
			return err
		}
		if err := rollback(ctx, tx, uid); err != nil {
			return err
		}
		if d.metrics != nil {
			d.metrics.RollbackApplied()
			d.metrics.EventProcessed("rollback")
		}
		return nil

	default:
		return apperror.Wrapf(apperror.InvalidMessage, "unknown coalesced item type %T", item)
	}
}
