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

	"github.com/erigontech/chainconsumer/internal/fragment"
	"github.com/erigontech/chainconsumer/internal/store"
	"github.com/erigontech/chainconsumer/internal/upstream"
)

// appendable is the block/microblock-shaped input to appendBlocksOrMicroblocks,
// bridging upstream.BlockEvent and upstream.MicroblockEvent (which differ
// only in always-nil Timestamp for the latter).
type appendable struct {
	ID          string
	Timestamp   *int64
	Height      int32
	DataEntries []upstream.DataEntry
}

func blocksToAppendable(bs blocksItem) []appendable {
	out := make([]appendable, len(bs))
	for i, b := range bs {
		out[i] = appendable{ID: b.ID, Timestamp: b.Timestamp, Height: b.Height, DataEntries: b.DataEntries}
	}
	return out
}

func microblockToAppendable(m microblockItem) appendable {
	return appendable{ID: m.ID, Timestamp: nil, Height: m.Height, DataEntries: m.DataEntries}
}

type blockUIDWithEntry struct {
	blockUID  int64
	height    int32
	timestamp *int64
	entry     upstream.DataEntry
}

// appendBlocksOrMicroblocks inserts items as blocks_microblocks rows in one
// call, then appends any data entries they carry.
func appendBlocksOrMicroblocks(ctx context.Context, tx store.Repository, items []appendable) error {
	rows := make([]store.BlockOrMicroblock, len(items))
	for i, it := range items {
		rows[i] = store.BlockOrMicroblock{ID: it.ID, Timestamp: it.Timestamp, Height: it.Height}
	}

	uids, err := tx.InsertBlocksOrMicroblocks(ctx, rows)
	if err != nil {
		return err
	}

	var pairs []blockUIDWithEntry
	for i, it := range items {
		if len(it.DataEntries) == 0 {
			continue
		}
		for _, de := range it.DataEntries {
			pairs = append(pairs, blockUIDWithEntry{blockUID: uids[i], height: it.Height, timestamp: it.Timestamp, entry: de})
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	return appendDataEntries(ctx, tx, pairs)
}

// appendDataEntries assigns uids, parses fragment columns, computes each
// entry's superseded_by within its (address, key) group, closes the
// previously-current row for each group, then bulk-inserts, per §4.4.3.
func appendDataEntries(ctx context.Context, tx store.Repository, pairs []blockUIDWithEntry) error {
	start, err := tx.GetNextUpdateUID(ctx)
	if err != nil {
		return err
	}

	entries := make([]store.DataEntry, len(pairs))
	for i, p := range pairs {
		de := store.DataEntry{
			BlockUID:      p.blockUID,
			TransactionID: p.entry.TransactionID,
			UID:           start + int64(i),
			SupersededBy:  store.MaxUID,
			Address:       p.entry.Address,
			Key:           p.entry.Key,
			ValueBinary:   p.entry.ValueBinary,
			ValueBool:     p.entry.ValueBool,
			ValueInteger:  p.entry.ValueInteger,
			ValueString:   p.entry.ValueString,
		}

		keyFragments, err := fragment.Parse(p.entry.Key)
		if err != nil {
			return err
		}
		de.FragmentInteger = keyFragments.Integer
		de.FragmentString = keyFragments.String

		if p.entry.ValueString != nil {
			valueFragments, err := fragment.Parse(*p.entry.ValueString)
			if err != nil {
				return err
			}
			de.ValueFragmentInteger = valueFragments.Integer
			de.ValueFragmentString = valueFragments.String
		}

		entries[i] = de
	}

	// Group by (address, key) preserving first-appearance order; within a
	// group, entries are already uid-ascending since uids were assigned in
	// input order above.
	type group struct {
		address string
		key     string
		indices []int
	}
	groupIndex := make(map[string]int)
	var groups []group
	for i, e := range entries {
		gk := e.Address + "\x00" + e.Key
		if gi, ok := groupIndex[gk]; ok {
			groups[gi].indices = append(groups[gi].indices, i)
			continue
		}
		groupIndex[gk] = len(groups)
		groups = append(groups, group{address: e.Address, key: e.Key, indices: []int{i}})
	}

	firstUIDs := make([]store.SupersededByUpdate, 0, len(groups))
	for _, g := range groups {
		// Walk in reverse: the tail (highest uid) keeps MaxUID; every
		// earlier entry points at its immediate successor's uid.
		for j := len(g.indices) - 1; j > 0; j-- {
			entries[g.indices[j-1]].SupersededBy = entries[g.indices[j]].UID
		}
		firstUIDs = append(firstUIDs, store.SupersededByUpdate{
			Address: g.address,
			Key:     g.key,
			NewUID:  entries[g.indices[0]].UID,
		})
	}

	// Closing must precede insertion: it filters on superseded_by = MaxUID,
	// which must still identify the rows current before this batch.
	if err := tx.CloseSupersededBy(ctx, firstUIDs); err != nil {
		return err
	}
	if err := tx.InsertDataEntries(ctx, entries); err != nil {
		return err
	}

	historyKeys := make([]store.HistoryKeyEntry, len(entries))
	for i, e := range entries {
		p := pairs[i]
		var height *int32
		if p.timestamp != nil {
			h := p.height
			height = &h
		}
		historyKeys[i] = store.HistoryKeyEntry{
			Address:        e.Address,
			Key:            e.Key,
			DataEntryUID:   e.UID,
			BlockUID:       e.BlockUID,
			Height:         height,
			BlockTimestamp: p.timestamp,
		}
	}
	if err := tx.InsertHistoryKeys(ctx, historyKeys); err != nil {
		return err
	}

	return tx.SetNextUpdateUID(ctx, start+int64(len(entries)))
}
