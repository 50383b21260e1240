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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/chainconsumer/internal/store"
	"github.com/erigontech/chainconsumer/internal/store/storetest"
	"github.com/erigontech/chainconsumer/internal/upstream"
)

func TestAppendDataEntries_NewKeyBecomesCurrent(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	uids, err := fake.InsertBlocksOrMicroblocks(ctx, []store.BlockOrMicroblock{{ID: "block-1", Height: 1}})
	require.NoError(t, err)

	err = appendDataEntries(ctx, fake, []blockUIDWithEntry{
		{blockUID: uids[0], entry: upstream.DataEntry{Address: "addr1", Key: "k1"}},
	})
	require.NoError(t, err)

	entries := fake.DataEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, store.MaxUID, entries[0].SupersededBy)
}

func TestAppendDataEntries_SameKeyTwiceClosesPrevious(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	uids, err := fake.InsertBlocksOrMicroblocks(ctx, []store.BlockOrMicroblock{{ID: "block-1", Height: 1}})
	require.NoError(t, err)
	require.NoError(t, appendDataEntries(ctx, fake, []blockUIDWithEntry{
		{blockUID: uids[0], entry: upstream.DataEntry{Address: "addr1", Key: "k1"}},
	}))

	uids2, err := fake.InsertBlocksOrMicroblocks(ctx, []store.BlockOrMicroblock{{ID: "block-2", Height: 2}})
	require.NoError(t, err)
	require.NoError(t, appendDataEntries(ctx, fake, []blockUIDWithEntry{
		{blockUID: uids2[0], entry: upstream.DataEntry{Address: "addr1", Key: "k1"}},
	}))

	entries := fake.DataEntries()
	require.Len(t, entries, 2)
	assert.NotEqual(t, store.MaxUID, entries[0].SupersededBy, "first row must be closed")
	assert.Equal(t, entries[1].UID, entries[0].SupersededBy)
	assert.Equal(t, store.MaxUID, entries[1].SupersededBy, "second row is now current")
}

func TestAppendDataEntries_MultipleKeysInOneBatchChainIndependently(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	uids, err := fake.InsertBlocksOrMicroblocks(ctx, []store.BlockOrMicroblock{{ID: "block-1", Height: 1}})
	require.NoError(t, err)

	err = appendDataEntries(ctx, fake, []blockUIDWithEntry{
		{blockUID: uids[0], entry: upstream.DataEntry{Address: "addr1", Key: "k1"}},
		{blockUID: uids[0], entry: upstream.DataEntry{Address: "addr1", Key: "k2"}},
		{blockUID: uids[0], entry: upstream.DataEntry{Address: "addr2", Key: "k1"}},
	})
	require.NoError(t, err)

	entries := fake.DataEntries()
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, store.MaxUID, e.SupersededBy)
	}
}

func TestAppendDataEntries_DuplicateKeyWithinBatchChainsInOrder(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	uids, err := fake.InsertBlocksOrMicroblocks(ctx, []store.BlockOrMicroblock{{ID: "block-1", Height: 1}})
	require.NoError(t, err)

	err = appendDataEntries(ctx, fake, []blockUIDWithEntry{
		{blockUID: uids[0], entry: upstream.DataEntry{Address: "addr1", Key: "k1"}},
		{blockUID: uids[0], entry: upstream.DataEntry{Address: "addr1", Key: "k1"}},
	})
	require.NoError(t, err)

	entries := fake.DataEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, entries[1].UID, entries[0].SupersededBy)
	assert.Equal(t, store.MaxUID, entries[1].SupersededBy)
}

func TestAppendDataEntries_FragmentsAreParsed(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	uids, err := fake.InsertBlocksOrMicroblocks(ctx, []store.BlockOrMicroblock{{ID: "block-1", Height: 1}})
	require.NoError(t, err)

	err = appendDataEntries(ctx, fake, []blockUIDWithEntry{
		{blockUID: uids[0], entry: upstream.DataEntry{Address: "addr1", Key: "d%s__42__hello"}},
	})
	require.NoError(t, err)

	entries := fake.DataEntries()
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].FragmentInteger[0])
	assert.EqualValues(t, 42, *entries[0].FragmentInteger[0])
	require.NotNil(t, entries[0].FragmentString[1])
	assert.Equal(t, "hello", *entries[0].FragmentString[1])
}

func TestAppendDataEntries_UnknownDescriptorIsRejected(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	uids, err := fake.InsertBlocksOrMicroblocks(ctx, []store.BlockOrMicroblock{{ID: "block-1", Height: 1}})
	require.NoError(t, err)

	err = appendDataEntries(ctx, fake, []blockUIDWithEntry{
		{blockUID: uids[0], entry: upstream.DataEntry{Address: "addr1", Key: "z__oops"}},
	})
	assert.Error(t, err)
}

func TestAppendBlocksOrMicroblocks_PopulatesHistoryKeysForFinalisedBlock(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	ts := int64(1000)
	err := appendBlocksOrMicroblocks(ctx, fake, []appendable{
		{ID: "block-1", Timestamp: &ts, Height: 7, DataEntries: []upstream.DataEntry{
			{Address: "addr1", Key: "k1"},
		}},
	})
	require.NoError(t, err)

	history := fake.HistoryKeys()
	require.Len(t, history, 1)
	assert.Equal(t, "addr1", history[0].Address)
	assert.Equal(t, "k1", history[0].Key)
	require.NotNil(t, history[0].Height)
	assert.EqualValues(t, 7, *history[0].Height)
	require.NotNil(t, history[0].BlockTimestamp)
	assert.Equal(t, ts, *history[0].BlockTimestamp)
}

func TestAppendBlocksOrMicroblocks_HistoryKeyHeightNilForMicroblock(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	err := appendBlocksOrMicroblocks(ctx, fake, []appendable{
		{ID: "mb-1", Timestamp: nil, Height: 3, DataEntries: []upstream.DataEntry{
			{Address: "addr1", Key: "k1"},
		}},
	})
	require.NoError(t, err)

	history := fake.HistoryKeys()
	require.Len(t, history, 1)
	assert.Nil(t, history[0].Height, "height is unknown until the microblock's key block is squashed")
	assert.Nil(t, history[0].BlockTimestamp)
}
