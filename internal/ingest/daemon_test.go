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

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erigontech/chainconsumer/internal/apperror"
	"github.com/erigontech/chainconsumer/internal/store/storetest"
	"github.com/erigontech/chainconsumer/internal/upstream"
)

// fakeSource replays a fixed sequence of batches, then blocks until ctx is
// cancelled (simulating an idle, still-connected upstream).
type fakeSource struct {
	batches []upstream.Batch
}

func (f *fakeSource) Stream(ctx context.Context, fromHeight int32, batchMaxSize int, batchMaxWait time.Duration) (<-chan upstream.Batch, <-chan error) {
	out := make(chan upstream.Batch)
	errs := make(chan error)
	go func() {
		defer close(out)
		defer close(errs)
		for _, b := range f.batches {
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return out, errs
}

// failingSource immediately reports a fatal error.
type failingSource struct{ err error }

func (f *failingSource) Stream(ctx context.Context, fromHeight int32, batchMaxSize int, batchMaxWait time.Duration) (<-chan upstream.Batch, <-chan error) {
	out := make(chan upstream.Batch)
	errs := make(chan error, 1)
	errs <- f.err
	close(out)
	close(errs)
	return out, errs
}

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	return zap.NewNop().Sugar()
}

func TestDaemon_Run_ProcessesBatchesUntilCancelled(t *testing.T) {
	fake := storetest.New()
	src := &fakeSource{batches: []upstream.Batch{
		{LastHeight: 1, Updates: []upstream.Event{upstream.BlockEvent{ID: "b1", Height: 1}}},
		{LastHeight: 2, Updates: []upstream.Event{upstream.BlockEvent{ID: "b2", Height: 2}}},
	}}

	d := New(fake, src, testLogger(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := d.Run(ctx, Config{StartRollbackDepth: 1, BatchMaxSize: 10, BatchMaxWait: time.Second})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	blocks := fake.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, "b1", blocks[0].ID)
	assert.Equal(t, "b2", blocks[1].ID)
}

func TestDaemon_Run_FatalSourceErrorPropagates(t *testing.T) {
	fake := storetest.New()
	boom := apperror.Wrapf(apperror.StreamClosed, "connection reset")
	src := &failingSource{err: boom}

	d := New(fake, src, testLogger(t), nil)
	err := d.Run(context.Background(), Config{StartRollbackDepth: 1, BatchMaxSize: 10, BatchMaxWait: time.Second})
	require.Error(t, err)
	assert.Equal(t, apperror.StreamClosed, apperror.KindOf(err))
}

func TestDaemon_Run_StartsFromHeightOneWhenStoreEmpty(t *testing.T) {
	fake := storetest.New()
	var seenFromHeight int32 = -1
	src := &recordingSource{fakeSource: fakeSource{}, onStream: func(h int32) { seenFromHeight = h }}

	d := New(fake, src, testLogger(t), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_ = d.Run(ctx, Config{StartRollbackDepth: 1, BatchMaxSize: 10, BatchMaxWait: time.Second})
	assert.EqualValues(t, 1, seenFromHeight)
}

type recordingSource struct {
	fakeSource
	onStream func(fromHeight int32)
}

func (r *recordingSource) Stream(ctx context.Context, fromHeight int32, batchMaxSize int, batchMaxWait time.Duration) (<-chan upstream.Batch, <-chan error) {
	r.onStream(fromHeight)
	return r.fakeSource.Stream(ctx, fromHeight, batchMaxSize, batchMaxWait)
}
