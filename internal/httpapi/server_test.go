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

package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erigontech/chainconsumer/internal/readiness"
	"github.com/erigontech/chainconsumer/internal/store"
	"github.com/erigontech/chainconsumer/internal/store/storetest"
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	return zap.NewNop().Sugar()
}

func TestServer_HealthReady_DefaultsToReady(t *testing.T) {
	s := New(storetest.New(), prometheus.NewRegistry(), testLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_HealthReady_ReflectsConsumedStatus(t *testing.T) {
	s := New(storetest.New(), prometheus.NewRegistry(), testLogger(t))

	statuses := make(chan readiness.Status, 1)
	statuses <- readiness.Dead
	close(statuses)
	s.ConsumeReadiness(statuses)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_LastBlockTimestamp_NotFoundWhenEmpty(t *testing.T) {
	s := New(storetest.New(), prometheus.NewRegistry(), testLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/last_block_timestamp", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_LastBlockTimestamp_ReturnsValue(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()
	ts := int64(1234)
	_, err := fake.InsertBlocksOrMicroblocks(ctx, []store.BlockOrMicroblock{{ID: "block-1", Timestamp: &ts, Height: 1}})
	require.NoError(t, err)

	s := New(fake, prometheus.NewRegistry(), testLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/last_block_timestamp", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1234\n", rec.Body.String())
}

func TestServer_Metrics_IsServedOnMetricsRouter(t *testing.T) {
	s := New(storetest.New(), prometheus.NewRegistry(), testLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.metricsRouter.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Metrics_NotServedOnAppRouter(t *testing.T) {
	s := New(storetest.New(), prometheus.NewRegistry(), testLogger(t))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
