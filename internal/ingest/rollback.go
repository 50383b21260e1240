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

	"github.com/erigontech/chainconsumer/internal/store"
)

// rollback undoes every data entry and block/microblock record attached
// above blockUID, restoring the previously-current row for every
// (address, key) the rolled-back batch had superseded.
func rollback(ctx context.Context, tx store.Repository, blockUID int64) error {
	deleted, err := tx.RollbackDataEntries(ctx, blockUID)
	if err != nil {
		return err
	}

	lowestUID := make(map[string]int64, len(deleted))
	for _, d := range deleted {
		key := d.Address + "\x00" + d.Key
		if cur, ok := lowestUID[key]; !ok || d.UID < cur {
			lowestUID[key] = d.UID
		}
	}
	reopen := make([]int64, 0, len(lowestUID))
	for _, uid := range lowestUID {
		reopen = append(reopen, uid)
	}

	if err := tx.ReopenSupersededBy(ctx, reopen); err != nil {
		return err
	}
	return tx.RollbackBlocksMicroblocks(ctx, blockUID)
}
