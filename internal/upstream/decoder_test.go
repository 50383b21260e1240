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

package upstream

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/chainconsumer/internal/apperror"
	"github.com/erigontech/chainconsumer/internal/upstreampb"
)

func TestDecode_NilMessageIsInvalid(t *testing.T) {
	_, err := Decode(nil)
	require.Error(t, err)
	assert.Equal(t, apperror.InvalidMessage, apperror.KindOf(err))
}

func TestDecode_EmptyAppendBodyIsInvalid(t *testing.T) {
	_, err := Decode(&upstreampb.BlockchainUpdated{ID: []byte("id")})
	require.Error(t, err)
	assert.Equal(t, apperror.InvalidMessage, apperror.KindOf(err))
}

func TestDecode_BlockAppendDecodesHeaderAndEntries(t *testing.T) {
	addr := []byte("address-bytes")
	txID := []byte("tx-bytes")
	val := int64(42)

	msg := &upstreampb.BlockchainUpdated{
		ID:     []byte("block-id"),
		Height: 100,
		Append: &upstreampb.Append{
			Block: &upstreampb.BlockAppend{
				Block: &upstreampb.Block{Header: &upstreampb.BlockHeader{Timestamp: 1690000000000}},
			},
			TransactionIDs: [][]byte{txID},
			TransactionStateUpdates: []*upstreampb.StateUpdate{
				{DataEntries: []*upstreampb.DataEntryUpdate{
					{Address: addr, DataEntry: &upstreampb.DataEntry{Key: "k1", ValueInteger: &val}},
				}},
			},
		},
	}

	ev, err := Decode(msg)
	require.NoError(t, err)
	block, ok := ev.(BlockEvent)
	require.True(t, ok)

	assert.Equal(t, base58.Encode([]byte("block-id")), block.ID)
	assert.EqualValues(t, 100, block.Height)
	require.NotNil(t, block.Timestamp)
	assert.EqualValues(t, 1690000000000, *block.Timestamp)

	require.Len(t, block.DataEntries, 1)
	assert.Equal(t, base58.Encode(addr), block.DataEntries[0].Address)
	assert.Equal(t, "k1", block.DataEntries[0].Key)
	assert.Equal(t, base58.Encode(txID), block.DataEntries[0].TransactionID)
	require.NotNil(t, block.DataEntries[0].ValueInteger)
	assert.EqualValues(t, 42, *block.DataEntries[0].ValueInteger)
}

func TestDecode_MicroBlockAppendUsesTotalBlockID(t *testing.T) {
	msg := &upstreampb.BlockchainUpdated{
		ID:     []byte("ignored"),
		Height: 7,
		Append: &upstreampb.Append{
			MicroBlock: &upstreampb.MicroBlockAppend{
				MicroBlock: &upstreampb.MicroBlock{TotalBlockID: []byte("total-block")},
			},
		},
	}

	ev, err := Decode(msg)
	require.NoError(t, err)
	mb, ok := ev.(MicroblockEvent)
	require.True(t, ok)
	assert.Equal(t, base58.Encode([]byte("total-block")), mb.ID)
	assert.EqualValues(t, 7, mb.Height)
}

func TestDecode_MicroBlockAppendWithNilBodyIsInvalid(t *testing.T) {
	msg := &upstreampb.BlockchainUpdated{
		Append: &upstreampb.Append{MicroBlock: &upstreampb.MicroBlockAppend{}},
	}
	_, err := Decode(msg)
	require.Error(t, err)
	assert.Equal(t, apperror.InvalidMessage, apperror.KindOf(err))
}

func TestDecode_RollbackEvent(t *testing.T) {
	msg := &upstreampb.BlockchainUpdated{ID: []byte("rollback-id"), Height: 3, Rollback: &upstreampb.Rollback{}}
	ev, err := Decode(msg)
	require.NoError(t, err)
	rb, ok := ev.(RollbackEvent)
	require.True(t, ok)
	assert.Equal(t, base58.Encode([]byte("rollback-id")), rb.ID)
	assert.EqualValues(t, 3, rb.Height)
}

func TestDecode_DuplicateKeyWithinTransactionLastWriteWins(t *testing.T) {
	addr := []byte("addr")
	first := int64(1)
	second := int64(2)

	msg := &upstreampb.BlockchainUpdated{
		Append: &upstreampb.Append{
			Block: &upstreampb.BlockAppend{Block: &upstreampb.Block{Header: &upstreampb.BlockHeader{Timestamp: 1}}},
			TransactionStateUpdates: []*upstreampb.StateUpdate{
				{DataEntries: []*upstreampb.DataEntryUpdate{
					{Address: addr, DataEntry: &upstreampb.DataEntry{Key: "k1", ValueInteger: &first}},
					{Address: addr, DataEntry: &upstreampb.DataEntry{Key: "k1", ValueInteger: &second}},
				}},
			},
		},
	}

	ev, err := Decode(msg)
	require.NoError(t, err)
	block := ev.(BlockEvent)
	require.Len(t, block.DataEntries, 1, "the second write for the same key replaces the first, position preserved")
	assert.EqualValues(t, 2, *block.DataEntries[0].ValueInteger)
}

func TestDecode_EmbeddedNulIsEscaped(t *testing.T) {
	val := "has\x00nul"
	msg := &upstreampb.BlockchainUpdated{
		Append: &upstreampb.Append{
			Block: &upstreampb.BlockAppend{Block: &upstreampb.Block{Header: &upstreampb.BlockHeader{}}},
			TransactionStateUpdates: []*upstreampb.StateUpdate{
				{DataEntries: []*upstreampb.DataEntryUpdate{
					{Address: []byte("a"), DataEntry: &upstreampb.DataEntry{Key: "k\x00ey", ValueString: &val}},
				}},
			},
		},
	}

	ev, err := Decode(msg)
	require.NoError(t, err)
	block := ev.(BlockEvent)
	require.Len(t, block.DataEntries, 1)
	assert.Equal(t, `k\0ey`, block.DataEntries[0].Key)
	require.NotNil(t, block.DataEntries[0].ValueString)
	assert.Equal(t, `has\0nul`, *block.DataEntries[0].ValueString)
}
