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

// Package store defines the repository contract the ingestion daemon issues
// its reads and writes through, plus the production Postgres implementation.
package store

import (
	"context"
	"time"

	"github.com/erigontech/chainconsumer/internal/metrics"
)

// MaxUID is the sentinel superseded_by value marking a data entry row as the
// current one for its (address, key).
const MaxUID int64 = 1<<63 - 2

// BlockOrMicroblock is one row to insert into blocks_microblocks.
type BlockOrMicroblock struct {
	ID        string
	Timestamp *int64
	Height    int32
}

// DataEntry is one row to insert into data_entries, already carrying its
// assigned uid/superseded_by and parsed fragment columns.
type DataEntry struct {
	BlockUID      int64
	TransactionID string
	UID           int64
	SupersededBy  int64
	Address       string
	Key           string
	ValueBinary   []byte
	ValueBool     *bool
	ValueInteger  *int64
	ValueString   *string

	FragmentInteger      [11]*int64
	FragmentString       [11]*string
	ValueFragmentInteger [11]*int64
	ValueFragmentString  [11]*string
}

// SupersededByUpdate closes the previous current row for (Address, Key),
// pointing it at NewUID.
type SupersededByUpdate struct {
	Address string
	Key     string
	NewUID  int64
}

// DeletedDataEntry is one row removed by RollbackDataEntries.
type DeletedDataEntry struct {
	Address string
	Key     string
	UID     int64
}

// HandledHeight is the result of GetHandledHeight.
type HandledHeight struct {
	UID    int64
	Height int32
}

// HistoryKeyEntry is one row of the optional data_entries_history_keys
// accelerant index: (address, key) -> every data_entry_uid that ever held
// the current value, with the owning block's height/timestamp. Height and
// BlockTimestamp are nil for a microblock entry until its key block is
// squashed.
type HistoryKeyEntry struct {
	Address        string
	Key            string
	DataEntryUID   int64
	BlockUID       int64
	Height         *int32
	BlockTimestamp *int64
}

// Repository is every store operation the ingestion daemon and readiness
// reporter need, per the package's operation table. Implementations may be
// invoked either inside a transaction (Tx) or on a pooled connection
// (outside one, for single read operations).
type Repository interface {
	// Transaction runs fn with a Repository bound to a single database
	// transaction, committing iff fn returns nil and rolling back otherwise.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error

	GetHandledHeight(ctx context.Context, depth uint32) (*HandledHeight, error)
	GetLastBlockTimestamp(ctx context.Context) (*int64, error)
	GetBlockUID(ctx context.Context, id string) (int64, error)
	GetKeyBlockUID(ctx context.Context) (int64, error)
	GetTotalBlockID(ctx context.Context) (*string, error)
	GetNextUpdateUID(ctx context.Context) (int64, error)

	InsertBlocksOrMicroblocks(ctx context.Context, items []BlockOrMicroblock) ([]int64, error)
	InsertDataEntries(ctx context.Context, items []DataEntry) error
	// InsertHistoryKeys populates the optional data_entries_history_keys
	// accelerant. Implementations may no-op when the feature is disabled.
	InsertHistoryKeys(ctx context.Context, entries []HistoryKeyEntry) error
	CloseSupersededBy(ctx context.Context, updates []SupersededByUpdate) error
	ReopenSupersededBy(ctx context.Context, uids []int64) error
	SetNextUpdateUID(ctx context.Context, n int64) error
	ChangeBlockID(ctx context.Context, uid int64, newID string) error
	UpdateDataEntriesBlockReferences(ctx context.Context, uid int64) error
	DeleteMicroblocks(ctx context.Context) error
	RollbackBlocksMicroblocks(ctx context.Context, uid int64) error
	RollbackDataEntries(ctx context.Context, uid int64) ([]DeletedDataEntry, error)

	// Close releases the underlying pool. No-op on a transaction-bound
	// Repository.
	Close()
}

// Config is the subset of connection parameters the store needs, decoupled
// from internal/config so storetest doesn't import it.
type Config struct {
	Host        string
	Port        uint16
	Database    string
	User        string
	Password    string
	PoolSize    uint32
	IdleTimeout time.Duration
	HistoryKeys bool
	// Metrics is optional; when set, every Postgres operation records its
	// wall-clock duration against it.
	Metrics *metrics.Collector
}
