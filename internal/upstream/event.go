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

// DataEntry is one decoded (address, key) write, with ids already
// base58-encoded and strings NUL-escaped.
type DataEntry struct {
	Address       string
	Key           string
	TransactionID string
	ValueBinary   []byte
	ValueBool     *bool
	ValueInteger  *int64
	ValueString   *string
}

// Event is one decoded blockchain update.
type Event interface {
	eventHeight() int32
}

// BlockEvent is a finalised key block.
type BlockEvent struct {
	ID          string
	Height      int32
	Timestamp   *int64
	DataEntries []DataEntry
}

func (b BlockEvent) eventHeight() int32 { return b.Height }

// MicroblockEvent is an in-progress, not-yet-finalised fragment.
type MicroblockEvent struct {
	ID          string
	Height      int32
	DataEntries []DataEntry
}

func (m MicroblockEvent) eventHeight() int32 { return m.Height }

// RollbackEvent instructs the daemon to undo everything after ID.
type RollbackEvent struct {
	ID     string
	Height int32
}

func (r RollbackEvent) eventHeight() int32 { return r.Height }
