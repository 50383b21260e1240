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

// Package upstreampb holds the wire types for the upstream node's streaming
// update subscription. It is hand-maintained in the shape protoc-gen-go and
// protoc-gen-go-grpc would emit, since no .proto toolchain runs in this
// build; the service and message shapes follow the node's documented
// contract (external interfaces, not owned by this repository).
package upstreampb

// SubscribeRequest starts a subscription at FromHeight. ToHeight of 0 means
// "stream indefinitely".
type SubscribeRequest struct {
	FromHeight int32 `json:"from_height"`
	ToHeight   int32 `json:"to_height"`
}

// SubscribeEvent is one item yielded by the Subscribe stream. An event with
// a nil Update is a protocol violation (empty message) and must be treated
// as a stream failure by the caller.
type SubscribeEvent struct {
	Update *BlockchainUpdated `json:"update"`
}

// BlockchainUpdated is the tagged union of block append, microblock append
// and rollback events, keyed by Append/Rollback being non-nil.
type BlockchainUpdated struct {
	ID     []byte  `json:"id"`
	Height int32   `json:"height"`
	Append *Append `json:"append,omitempty"`
	// Rollback is non-nil for a rollback event; it carries no fields (the
	// new chain tip is BlockchainUpdated.ID).
	Rollback *Rollback `json:"rollback,omitempty"`
}

// Append carries a finalised block or an in-progress microblock, plus the
// per-transaction state updates (data entries) the daemon projects.
type Append struct {
	Block                   *BlockAppend      `json:"block,omitempty"`
	MicroBlock              *MicroBlockAppend `json:"micro_block,omitempty"`
	TransactionIDs          [][]byte          `json:"transaction_ids"`
	TransactionStateUpdates []*StateUpdate    `json:"transaction_state_updates"`
}

// BlockAppend wraps a finalised key block.
type BlockAppend struct {
	Block *Block `json:"block"`
}

// Block carries the header (with its finalisation timestamp).
type Block struct {
	Header *BlockHeader `json:"header"`
}

// BlockHeader carries the key block's timestamp, in milliseconds.
type BlockHeader struct {
	Timestamp int64 `json:"timestamp"`
}

// MicroBlockAppend wraps an in-progress microblock fragment.
type MicroBlockAppend struct {
	MicroBlock *MicroBlock `json:"micro_block"`
}

// MicroBlock carries the id of the block it will eventually be folded into
// once finalised (the "total block id").
type MicroBlock struct {
	TotalBlockID []byte `json:"total_block_id"`
}

// Rollback signals that the upstream chain now ends at an earlier id.
type Rollback struct{}

// StateUpdate carries the data entries written by one transaction.
type StateUpdate struct {
	DataEntries []*DataEntryUpdate `json:"data_entries"`
}

// DataEntryUpdate is one raw (address, key, value) write.
type DataEntryUpdate struct {
	Address   []byte     `json:"address"`
	DataEntry *DataEntry `json:"data_entry"`
}

// DataEntry is the tagged value written to (address, key). Exactly one of
// the Value* fields is set; none set represents a delete.
type DataEntry struct {
	Key          string  `json:"key"`
	ValueBinary  []byte  `json:"value_binary,omitempty"`
	ValueBool    *bool   `json:"value_bool,omitempty"`
	ValueInteger *int64  `json:"value_integer,omitempty"`
	ValueString  *string `json:"value_string,omitempty"`
}
