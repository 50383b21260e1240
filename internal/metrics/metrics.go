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

// Package metrics exposes the ingestion daemon's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every prometheus metric the daemon and the Postgres store
// report against. It is always safe to use: all counters/histograms are
// registered eagerly at construction.
type Collector struct {
	batchesReceived  prometheus.Counter
	eventsProcessed  *prometheus.CounterVec
	squashesExecuted prometheus.Counter
	rollbacksApplied prometheus.Counter
	storeOpDuration  *prometheus.HistogramVec
	handledHeight    prometheus.Gauge
}

// New registers every collector against reg and returns a Collector wired
// to it.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		batchesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chainconsumer",
			Name:      "batches_received_total",
			Help:      "Number of batches received from the upstream source.",
		}),
		eventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainconsumer",
			Name:      "events_processed_total",
			Help:      "Number of upstream events processed, labelled by kind.",
		}, []string{"kind"}),
		squashesExecuted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chainconsumer",
			Name:      "microblock_squashes_total",
			Help:      "Number of microblock squash operations executed.",
		}),
		rollbacksApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chainconsumer",
			Name:      "rollbacks_total",
			Help:      "Number of rollback operations applied.",
		}),
		storeOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chainconsumer",
			Name:      "store_operation_duration_seconds",
			Help:      "Latency of repository operations, labelled by operation name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		handledHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chainconsumer",
			Name:      "handled_height",
			Help:      "Height of the most recently committed batch.",
		}),
	}
}

// BatchReceived records one batch arriving from the upstream source.
func (c *Collector) BatchReceived() { c.batchesReceived.Inc() }

// EventProcessed records one upstream event being committed, labelled by its
// kind ("block", "microblock", "rollback").
func (c *Collector) EventProcessed(kind string) { c.eventsProcessed.WithLabelValues(kind).Inc() }

// SquashExecuted records one microblock-squash pass.
func (c *Collector) SquashExecuted() { c.squashesExecuted.Inc() }

// RollbackApplied records one rollback being applied.
func (c *Collector) RollbackApplied() { c.rollbacksApplied.Inc() }

// ObserveStoreOp records the wall-clock duration of a single repository
// operation.
func (c *Collector) ObserveStoreOp(operation string, d time.Duration) {
	c.storeOpDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetHandledHeight records the height most recently committed.
func (c *Collector) SetHandledHeight(height int32) { c.handledHeight.Set(float64(height)) }
