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

	"github.com/erigontech/chainconsumer/internal/metrics"
	"github.com/erigontech/chainconsumer/internal/store"
)

// squashMicroblocks folds any pending microblocks into the preceding key
// block before a new key block (or further microblock) is appended.
func squashMicroblocks(ctx context.Context, tx store.Repository, m *metrics.Collector) error {
	totalBlockID, err := tx.GetTotalBlockID(ctx)
	if err != nil {
		return err
	}
	if totalBlockID == nil {
		return nil
	}

	keyBlockUID, err := tx.GetKeyBlockUID(ctx)
	if err != nil {
		return err
	}
	if keyBlockUID < 0 {
		return nil
	}

	if err := tx.UpdateDataEntriesBlockReferences(ctx, keyBlockUID); err != nil {
		return err
	}
	if err := tx.DeleteMicroblocks(ctx); err != nil {
		return err
	}
	if err := tx.ChangeBlockID(ctx, keyBlockUID, *totalBlockID); err != nil {
		return err
	}

	if m != nil {
		m.SquashExecuted()
	}
	return nil
}
