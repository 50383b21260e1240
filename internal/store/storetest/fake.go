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

// Package storetest provides an in-memory store.Repository for exercising
// the ingestion daemon's logic without a Postgres instance.
package storetest

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/erigontech/chainconsumer/internal/apperror"
	"github.com/erigontech/chainconsumer/internal/store"
)

// Fake is a single-process, mutex-guarded Repository backed by plain slices
// and maps, mirroring the table shapes the Postgres implementation targets.
type Fake struct {
	mu sync.Mutex

	blocks      []blockRow
	nextBlock   int64
	dataEntries []store.DataEntry
	nextUID     int64
	historyKeys []store.HistoryKeyEntry
}

type blockRow struct {
	uid       int64
	id        string
	timestamp *int64
	height    int32
}

// New returns an empty Fake; the data-entries sequence starts at 1, matching
// a freshly migrated schema.
func New() *Fake {
	return &Fake{nextUID: 1}
}

// Transaction snapshots state before calling fn and restores it if fn
// fails, emulating rollback. It does not hold the instance lock across fn:
// fn's own calls back into f take the lock per-method, matching how a real
// transaction-bound connection would be used from a single daemon goroutine.
func (f *Fake) Transaction(ctx context.Context, fn func(ctx context.Context, tx store.Repository) error) error {
	f.mu.Lock()
	snapshotBlocks := append([]blockRow(nil), f.blocks...)
	snapshotEntries := append([]store.DataEntry(nil), f.dataEntries...)
	snapshotHistoryKeys := append([]store.HistoryKeyEntry(nil), f.historyKeys...)
	snapshotNextBlock := f.nextBlock
	snapshotNextUID := f.nextUID
	f.mu.Unlock()

	if err := fn(ctx, f); err != nil {
		f.mu.Lock()
		f.blocks = snapshotBlocks
		f.dataEntries = snapshotEntries
		f.historyKeys = snapshotHistoryKeys
		f.nextBlock = snapshotNextBlock
		f.nextUID = snapshotNextUID
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *Fake) Close() {}

func (f *Fake) GetHandledHeight(ctx context.Context, depth uint32) (*store.HandledHeight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.blocks) == 0 {
		return nil, nil
	}
	maxHeight := f.blocks[0].height
	for _, b := range f.blocks {
		if b.height > maxHeight {
			maxHeight = b.height
		}
	}
	target := maxHeight - int32(depth)

	var candidates []blockRow
	for _, b := range f.blocks {
		if b.height == target {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].uid < candidates[j].uid })
	return &store.HandledHeight{UID: candidates[0].uid, Height: candidates[0].height}, nil
}

func (f *Fake) GetLastBlockTimestamp(ctx context.Context) (*int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *blockRow
	for i := range f.blocks {
		b := &f.blocks[i]
		if b.timestamp == nil {
			continue
		}
		if best == nil || b.uid > best.uid {
			best = b
		}
	}
	if best == nil {
		return nil, nil
	}
	ts := *best.timestamp
	return &ts, nil
}

func (f *Fake) GetBlockUID(ctx context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.blocks {
		if b.id == id {
			return b.uid, nil
		}
	}
	return 0, apperror.Wrapf(apperror.DbQuery, "block %q not found", id)
}

func (f *Fake) GetKeyBlockUID(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best int64 = -1
	for _, b := range f.blocks {
		if b.timestamp != nil && b.uid > best {
			best = b.uid
		}
	}
	return best, nil
}

func (f *Fake) GetTotalBlockID(ctx context.Context) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *blockRow
	for i := range f.blocks {
		b := &f.blocks[i]
		if b.timestamp != nil {
			continue
		}
		if best == nil || b.uid > best.uid {
			best = b
		}
	}
	if best == nil {
		return nil, nil
	}
	id := best.id
	return &id, nil
}

func (f *Fake) GetNextUpdateUID(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextUID, nil
}

func (f *Fake) InsertBlocksOrMicroblocks(ctx context.Context, items []store.BlockOrMicroblock) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uids := make([]int64, len(items))
	for i, it := range items {
		f.nextBlock++
		uid := f.nextBlock
		f.blocks = append(f.blocks, blockRow{uid: uid, id: it.ID, timestamp: it.Timestamp, height: it.Height})
		uids[i] = uid
	}
	return uids, nil
}

func (f *Fake) InsertDataEntries(ctx context.Context, items []store.DataEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataEntries = append(f.dataEntries, items...)
	return nil
}

func (f *Fake) InsertHistoryKeys(ctx context.Context, entries []store.HistoryKeyEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyKeys = append(f.historyKeys, entries...)
	return nil
}

func (f *Fake) CloseSupersededBy(ctx context.Context, updates []store.SupersededByUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range updates {
		for i := range f.dataEntries {
			e := &f.dataEntries[i]
			if e.Address == u.Address && e.Key == u.Key && e.SupersededBy == store.MaxUID {
				e.SupersededBy = u.NewUID
			}
		}
	}
	return nil
}

func (f *Fake) ReopenSupersededBy(ctx context.Context, uids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := make(map[int64]bool, len(uids))
	for _, u := range uids {
		set[u] = true
	}
	for i := range f.dataEntries {
		e := &f.dataEntries[i]
		if set[e.SupersededBy] {
			e.SupersededBy = store.MaxUID
		}
	}
	return nil
}

func (f *Fake) SetNextUpdateUID(ctx context.Context, n int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextUID = n
	return nil
}

func (f *Fake) ChangeBlockID(ctx context.Context, uid int64, newID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.blocks {
		if f.blocks[i].uid == uid {
			f.blocks[i].id = newID
			return nil
		}
	}
	return errors.Errorf("block uid %d not found", uid)
}

func (f *Fake) UpdateDataEntriesBlockReferences(ctx context.Context, uid int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.dataEntries {
		if f.dataEntries[i].BlockUID > uid {
			f.dataEntries[i].BlockUID = uid
		}
	}

	var keyBlock *blockRow
	for i := range f.blocks {
		if f.blocks[i].uid == uid {
			keyBlock = &f.blocks[i]
			break
		}
	}
	for i := range f.historyKeys {
		h := &f.historyKeys[i]
		if h.BlockUID > uid {
			h.BlockUID = uid
		}
		if h.BlockUID == uid && h.Height == nil && keyBlock != nil {
			height := keyBlock.height
			h.Height = &height
			h.BlockTimestamp = keyBlock.timestamp
		}
	}
	return nil
}

func (f *Fake) DeleteMicroblocks(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.blocks[:0:0]
	for _, b := range f.blocks {
		if b.timestamp != nil {
			kept = append(kept, b)
		}
	}
	f.blocks = kept
	return nil
}

func (f *Fake) RollbackBlocksMicroblocks(ctx context.Context, uid int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.blocks[:0:0]
	for _, b := range f.blocks {
		if b.uid <= uid {
			kept = append(kept, b)
		}
	}
	f.blocks = kept
	return nil
}

func (f *Fake) RollbackDataEntries(ctx context.Context, uid int64) ([]store.DeletedDataEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted []store.DeletedDataEntry
	kept := f.dataEntries[:0:0]
	for _, e := range f.dataEntries {
		if e.BlockUID > uid {
			deleted = append(deleted, store.DeletedDataEntry{Address: e.Address, Key: e.Key, UID: e.UID})
			continue
		}
		kept = append(kept, e)
	}
	f.dataEntries = kept

	if len(deleted) > 0 {
		deletedUIDs := make(map[int64]bool, len(deleted))
		for _, d := range deleted {
			deletedUIDs[d.UID] = true
		}
		keptHistory := f.historyKeys[:0:0]
		for _, h := range f.historyKeys {
			if deletedUIDs[h.DataEntryUID] {
				continue
			}
			keptHistory = append(keptHistory, h)
		}
		f.historyKeys = keptHistory
	}
	return deleted, nil
}

// Blocks exposes a read-only snapshot for assertions in tests.
func (f *Fake) Blocks() []store.BlockOrMicroblock {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.BlockOrMicroblock, len(f.blocks))
	for i, b := range f.blocks {
		out[i] = store.BlockOrMicroblock{ID: b.id, Timestamp: b.timestamp, Height: b.height}
	}
	return out
}

// DataEntries exposes a read-only snapshot for assertions in tests.
func (f *Fake) DataEntries() []store.DataEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.DataEntry(nil), f.dataEntries...)
}

// HistoryKeys exposes a read-only snapshot for assertions in tests.
func (f *Fake) HistoryKeys() []store.HistoryKeyEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.HistoryKeyEntry(nil), f.historyKeys...)
}
