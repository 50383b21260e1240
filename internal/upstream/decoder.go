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
	"strings"

	"github.com/mr-tron/base58"

	"github.com/erigontech/chainconsumer/internal/apperror"
	"github.com/erigontech/chainconsumer/internal/upstreampb"
)

// nulEscape replaces embedded NUL bytes with the two-character sequence
// `\0`, since the downstream store's text columns reject NUL.
func nulEscape(s string) string {
	if !strings.ContainsRune(s, 0) {
		return s
	}
	return strings.ReplaceAll(s, "\x00", `\0`)
}

// Decode converts one raw upstream message into an Event.
func Decode(msg *upstreampb.BlockchainUpdated) (Event, error) {
	if msg == nil {
		return nil, apperror.Wrapf(apperror.InvalidMessage, "nil blockchain update")
	}

	switch {
	case msg.Append != nil && msg.Append.Block != nil:
		id := base58.Encode(msg.ID)
		var ts *int64
		if block := msg.Append.Block.Block; block != nil && block.Header != nil {
			t := block.Header.Timestamp
			ts = &t
		}
		entries, err := decodeDataEntries(msg.Append)
		if err != nil {
			return nil, err
		}
		return BlockEvent{ID: id, Height: msg.Height, Timestamp: ts, DataEntries: entries}, nil

	case msg.Append != nil && msg.Append.MicroBlock != nil:
		mb := msg.Append.MicroBlock.MicroBlock
		if mb == nil {
			return nil, apperror.Wrapf(apperror.InvalidMessage, "microblock append with no micro_block body")
		}
		id := base58.Encode(mb.TotalBlockID)
		entries, err := decodeDataEntries(msg.Append)
		if err != nil {
			return nil, err
		}
		return MicroblockEvent{ID: id, Height: msg.Height, DataEntries: entries}, nil

	case msg.Rollback != nil:
		return RollbackEvent{ID: base58.Encode(msg.ID), Height: msg.Height}, nil

	default:
		return nil, apperror.Wrapf(apperror.InvalidMessage, "append body is empty")
	}
}

// decodeDataEntries flattens every transaction's state update into decoded
// DataEntry values, deduplicating (address, key) within each transaction's
// own update list (last occurrence wins), per the documented contract.
func decodeDataEntries(appnd *upstreampb.Append) ([]DataEntry, error) {
	var out []DataEntry

	for idx, update := range appnd.TransactionStateUpdates {
		if update == nil {
			continue
		}
		var txID string
		if idx < len(appnd.TransactionIDs) {
			txID = base58.Encode(appnd.TransactionIDs[idx])
		}

		type keyed struct {
			key   string
			entry DataEntry
		}
		var ordered []keyed
		index := make(map[string]int)

		for _, raw := range update.DataEntries {
			if raw == nil || raw.DataEntry == nil {
				continue
			}
			entry := DataEntry{
				Address:       base58.Encode(raw.Address),
				Key:           nulEscape(raw.DataEntry.Key),
				TransactionID: txID,
				ValueBinary:   raw.DataEntry.ValueBinary,
				ValueBool:     raw.DataEntry.ValueBool,
				ValueInteger:  raw.DataEntry.ValueInteger,
			}
			if raw.DataEntry.ValueString != nil {
				escaped := nulEscape(*raw.DataEntry.ValueString)
				entry.ValueString = &escaped
			}

			dedupKey := entry.Address + "\x00" + entry.Key
			if pos, ok := index[dedupKey]; ok {
				ordered[pos].entry = entry
				continue
			}
			index[dedupKey] = len(ordered)
			ordered = append(ordered, keyed{key: dedupKey, entry: entry})
		}

		for _, k := range ordered {
			out = append(out, k.entry)
		}
	}

	return out, nil
}
