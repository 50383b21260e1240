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

import "github.com/erigontech/chainconsumer/internal/upstream"

// blocksItem is a maximal run of consecutive BlockEvents, inserted together.
type blocksItem []upstream.BlockEvent

// microblockItem is a single microblock append.
type microblockItem upstream.MicroblockEvent

// rollbackItem is a single rollback.
type rollbackItem upstream.RollbackEvent

// coalesce merges consecutive Block events into one blocksItem each, while
// Microblock and Rollback events remain singletons, preserving order.
func coalesce(events []upstream.Event) []any {
	var out []any
	for _, e := range events {
		switch v := e.(type) {
		case upstream.BlockEvent:
			if n := len(out); n > 0 {
				if last, ok := out[n-1].(blocksItem); ok {
					out[n-1] = append(last, v)
					continue
				}
			}
			out = append(out, blocksItem{v})
		case upstream.MicroblockEvent:
			out = append(out, microblockItem(v))
		case upstream.RollbackEvent:
			out = append(out, rollbackItem(v))
		}
	}
	return out
}
