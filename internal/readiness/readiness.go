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

// Package readiness polls the store for chain liveness and reports a
// Ready/Dead status on a channel consumed by the HTTP surface.
package readiness

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/erigontech/chainconsumer/internal/store"
)

// Status is the reported liveness of the ingested chain data.
type Status int

const (
	Ready Status = iota
	Dead
)

func (s Status) String() string {
	if s == Ready {
		return "ready"
	}
	return "dead"
}

const pollInterval = 60 * time.Second

// Reporter polls store.Repository.GetLastBlockTimestamp every pollInterval
// and pushes a Status on Statuses().
type Reporter struct {
	repo         store.Repository
	maxBlockAge  time.Duration
	log          *zap.SugaredLogger
	statuses     chan Status
	lastSeen     int64
	lastChangeAt time.Time
}

// New builds a Reporter. maxBlockAge should be 300-600s per deployment
// configuration.
func New(repo store.Repository, maxBlockAge time.Duration, log *zap.SugaredLogger) *Reporter {
	return &Reporter{
		repo:        repo,
		maxBlockAge: maxBlockAge,
		log:         log,
		statuses:    make(chan Status, 1),
	}
}

// Statuses returns the single-producer channel the HTTP surface consumes.
func (r *Reporter) Statuses() <-chan Status { return r.statuses }

// Run polls until ctx is cancelled, at which point it closes Statuses().
func (r *Reporter) Run(ctx context.Context) {
	defer close(r.statuses)

	r.lastChangeAt = time.Now()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *Reporter) poll(ctx context.Context) {
	ts, err := r.repo.GetLastBlockTimestamp(ctx)
	if err != nil {
		r.log.Errorw("readiness: failed to fetch last block timestamp", "error", err)
		r.emit(Dead)
		return
	}

	now := time.Now()
	if ts != nil && *ts > r.lastSeen {
		r.lastSeen = *ts
		r.lastChangeAt = now
		r.emit(Ready)
		return
	}

	if now.Sub(r.lastChangeAt) > r.maxBlockAge {
		r.emit(Dead)
		return
	}
	r.emit(Ready)
}

func (r *Reporter) emit(status Status) {
	select {
	case r.statuses <- status:
	default:
		// Drain the stale value so the most recent status always wins;
		// Statuses() has only ever one reader polling at its own pace.
		select {
		case <-r.statuses:
		default:
		}
		r.statuses <- status
	}
}
