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
)

func TestSquashMicroblocks_NoMicroblocksIsNoop(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()
	require.NoError(t, squashMicroblocks(ctx, fake, nil))
	assert.Empty(t, fake.Blocks())
}

func TestSquashMicroblocks_FoldsIntoKeyBlock(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	ts := int64(1000)
	keyUIDs, err := fake.InsertBlocksOrMicroblocks(ctx, []store.BlockOrMicroblock{{ID: "key-1", Timestamp: &ts, Height: 1}})
	require.NoError(t, err)
	keyUID := keyUIDs[0]

	mbUIDs, err := fake.InsertBlocksOrMicroblocks(ctx, []store.BlockOrMicroblock{{ID: "mb-1", Height: 1}})
	require.NoError(t, err)
	mbUID := mbUIDs[0]

	require.NoError(t, fake.InsertDataEntries(ctx, []store.DataEntry{
		{BlockUID: mbUID, UID: 1, SupersededBy: store.MaxUID, Address: "addr1", Key: "k1"},
	}))

	require.NoError(t, squashMicroblocks(ctx, fake, nil))

	blocks := fake.Blocks()
	require.Len(t, blocks, 1, "the microblock row must be gone")
	assert.Equal(t, "mb-1", blocks[0].ID, "key block now carries the total block id")

	entries := fake.DataEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, keyUID, entries[0].BlockUID, "data entry re-pointed to the key block")
}

func TestSquashMicroblocks_BackfillsHistoryKeyHeightAndTimestamp(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	ts := int64(2000)
	keyUIDs, err := fake.InsertBlocksOrMicroblocks(ctx, []store.BlockOrMicroblock{{ID: "key-1", Timestamp: &ts, Height: 5}})
	require.NoError(t, err)
	keyUID := keyUIDs[0]

	mbUIDs, err := fake.InsertBlocksOrMicroblocks(ctx, []store.BlockOrMicroblock{{ID: "mb-1", Height: 5}})
	require.NoError(t, err)
	mbUID := mbUIDs[0]

	require.NoError(t, fake.InsertDataEntries(ctx, []store.DataEntry{
		{BlockUID: mbUID, UID: 1, SupersededBy: store.MaxUID, Address: "addr1", Key: "k1"},
	}))
	require.NoError(t, fake.InsertHistoryKeys(ctx, []store.HistoryKeyEntry{
		{Address: "addr1", Key: "k1", DataEntryUID: 1, BlockUID: mbUID},
	}))

	require.NoError(t, squashMicroblocks(ctx, fake, nil))

	history := fake.HistoryKeys()
	require.Len(t, history, 1)
	assert.Equal(t, keyUID, history[0].BlockUID)
	require.NotNil(t, history[0].Height)
	assert.EqualValues(t, 5, *history[0].Height)
	require.NotNil(t, history[0].BlockTimestamp)
	assert.Equal(t, ts, *history[0].BlockTimestamp)
}
