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

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/erigontech/chainconsumer/internal/apperror"
	"github.com/erigontech/chainconsumer/internal/metrics"
)

// insertChunkSize bounds how many rows each insert_data_entries statement
// carries. Each statement binds one array parameter per column (54 in all),
// whatever the number of rows.
const insertChunkSize = 2000

// Postgres implements Repository against a pgx/v5 connection pool, or,
// inside Transaction, against a single pgx.Tx.
type Postgres struct {
	pool        *pgxpool.Pool
	tx          pgx.Tx
	historyKeys bool
	metrics     *metrics.Collector
}

// observe records the time elapsed since start against operation in the
// store_operation_duration_seconds
// histogram when a Collector is wired; a nil Collector makes this a no-op.
func (p *Postgres) observe(operation string, start time.Time) {
	if p.metrics != nil {
		p.metrics.ObserveStoreOp(operation, time.Since(start))
	}
}

// NewPostgres connects a pool with Config's parameters.
func NewPostgres(ctx context.Context, cfg Config) (*Postgres, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?pool_max_conns=%d&pool_max_conn_idle_time=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.PoolSize, cfg.IdleTimeout)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperror.Wrap(apperror.DbConnect, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperror.Wrap(apperror.DbConnect, err)
	}
	return &Postgres{pool: pool, historyKeys: cfg.HistoryKeys, metrics: cfg.Metrics}, nil
}

func (p *Postgres) Close() {
	if p.tx == nil && p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) conn() interface {
	Exec(context.Context, string, ...any) (pgx.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
} {
	if p.tx != nil {
		return p.tx
	}
	return p.pool
}

// Transaction opens a pgx transaction and hands the caller a Postgres bound
// to it; the ingestion daemon issues every per-batch write through fn's tx.
func (p *Postgres) Transaction(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return apperror.Wrap(apperror.DbConnect, err)
	}
	defer tx.Rollback(ctx)

	bound := &Postgres{pool: p.pool, tx: tx, historyKeys: p.historyKeys, metrics: p.metrics}
	if err := fn(ctx, bound); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.Wrap(apperror.DbQuery, err)
	}
	return nil
}

func (p *Postgres) GetHandledHeight(ctx context.Context, depth uint32) (*HandledHeight, error) {
	defer p.observe("get_handled_height", time.Now())
	row := p.conn().QueryRow(ctx, `
		SELECT uid, height FROM blocks_microblocks
		WHERE height = (SELECT max(height) FROM blocks_microblocks) - $1
		ORDER BY uid ASC LIMIT 1`, depth)
	var h HandledHeight
	if err := row.Scan(&h.UID, &h.Height); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.Wrap(apperror.DbQuery, err)
	}
	return &h, nil
}

func (p *Postgres) GetLastBlockTimestamp(ctx context.Context) (*int64, error) {
	defer p.observe("get_last_block_timestamp", time.Now())
	row := p.conn().QueryRow(ctx, `
		SELECT time_stamp FROM blocks_microblocks
		WHERE time_stamp IS NOT NULL
		ORDER BY uid DESC LIMIT 1`)
	var ts int64
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.Wrap(apperror.DbQuery, err)
	}
	return &ts, nil
}

func (p *Postgres) GetBlockUID(ctx context.Context, id string) (int64, error) {
	defer p.observe("get_block_uid", time.Now())
	row := p.conn().QueryRow(ctx, `SELECT uid FROM blocks_microblocks WHERE id = $1`, id)
	var uid int64
	if err := row.Scan(&uid); err != nil {
		return 0, apperror.Wrap(apperror.DbQuery, err)
	}
	return uid, nil
}

// GetKeyBlockUID returns the highest uid among finalised (non-microblock)
// blocks, or -1 if none exist yet.
func (p *Postgres) GetKeyBlockUID(ctx context.Context) (int64, error) {
	defer p.observe("get_key_block_uid", time.Now())
	row := p.conn().QueryRow(ctx, `SELECT COALESCE(max(uid), -1) FROM blocks_microblocks WHERE time_stamp IS NOT NULL`)
	var uid int64
	if err := row.Scan(&uid); err != nil {
		return 0, apperror.Wrap(apperror.DbQuery, err)
	}
	return uid, nil
}

func (p *Postgres) GetTotalBlockID(ctx context.Context) (*string, error) {
	defer p.observe("get_total_block_id", time.Now())
	row := p.conn().QueryRow(ctx, `
		SELECT id FROM blocks_microblocks WHERE time_stamp IS NULL
		ORDER BY uid DESC LIMIT 1`)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.Wrap(apperror.DbQuery, err)
	}
	return &id, nil
}

func (p *Postgres) GetNextUpdateUID(ctx context.Context) (int64, error) {
	defer p.observe("get_next_update_uid", time.Now())
	row := p.conn().QueryRow(ctx, `SELECT last_value FROM data_entries_uid_seq`)
	var uid int64
	if err := row.Scan(&uid); err != nil {
		return 0, apperror.Wrap(apperror.DbQuery, err)
	}
	return uid, nil
}

func (p *Postgres) InsertBlocksOrMicroblocks(ctx context.Context, items []BlockOrMicroblock) ([]int64, error) {
	defer p.observe("insert_blocks_or_microblocks", time.Now())
	if len(items) == 0 {
		return nil, nil
	}
	ids := make([]string, len(items))
	timestamps := make([]*int64, len(items))
	heights := make([]int32, len(items))
	for i, it := range items {
		ids[i] = it.ID
		timestamps[i] = it.Timestamp
		heights[i] = it.Height
	}
	rows, err := p.conn().Query(ctx, `
		INSERT INTO blocks_microblocks (id, time_stamp, height)
		SELECT * FROM UNNEST($1::text[], $2::bigint[], $3::int[])
		RETURNING uid`, ids, timestamps, heights)
	if err != nil {
		return nil, apperror.Wrap(apperror.DbQuery, err)
	}
	defer rows.Close()

	uids := make([]int64, 0, len(items))
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, apperror.Wrap(apperror.DbQuery, err)
		}
		uids = append(uids, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.DbQuery, err)
	}
	return uids, nil
}

func (p *Postgres) InsertDataEntries(ctx context.Context, items []DataEntry) error {
	defer p.observe("insert_data_entries", time.Now())
	for start := 0; start < len(items); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(items) {
			end = len(items)
		}
		if err := p.insertDataEntriesChunk(ctx, items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) insertDataEntriesChunk(ctx context.Context, chunk []DataEntry) error {
	n := len(chunk)
	blockUID := make([]int64, n)
	txID := make([]string, n)
	uid := make([]int64, n)
	supersededBy := make([]int64, n)
	address := make([]string, n)
	key := make([]string, n)
	valueBinary := make([][]byte, n)
	valueBool := make([]*bool, n)
	valueInteger := make([]*int64, n)
	valueString := make([]*string, n)
	var fragInt [11][]*int64
	var fragStr [11][]*string
	var valFragInt [11][]*int64
	var valFragStr [11][]*string
	for i := range fragInt {
		fragInt[i] = make([]*int64, n)
		fragStr[i] = make([]*string, n)
		valFragInt[i] = make([]*int64, n)
		valFragStr[i] = make([]*string, n)
	}

	for i, e := range chunk {
		blockUID[i] = e.BlockUID
		txID[i] = e.TransactionID
		uid[i] = e.UID
		supersededBy[i] = e.SupersededBy
		address[i] = e.Address
		key[i] = e.Key
		valueBinary[i] = e.ValueBinary
		valueBool[i] = e.ValueBool
		valueInteger[i] = e.ValueInteger
		valueString[i] = e.ValueString
		for f := 0; f < 11; f++ {
			fragInt[f][i] = e.FragmentInteger[f]
			fragStr[f][i] = e.FragmentString[f]
			valFragInt[f][i] = e.ValueFragmentInteger[f]
			valFragStr[f][i] = e.ValueFragmentString[f]
		}
	}

	args := []any{blockUID, txID, uid, supersededBy, address, key, valueBinary, valueBool, valueInteger, valueString}
	columns := []string{"block_uid", "transaction_id", "uid", "superseded_by", "address", "key",
		"value_binary", "value_bool", "value_integer", "value_string"}
	placeholders := []string{
		"$1::bigint[]", "$2::text[]", "$3::bigint[]", "$4::bigint[]", "$5::text[]", "$6::text[]",
		"$7::bytea[]", "$8::bool[]", "$9::bigint[]", "$10::text[]",
	}
	argn := 11
	for f := 0; f < 11; f++ {
		columns = append(columns, fmt.Sprintf("fragment_%d_integer", f), fmt.Sprintf("fragment_%d_string", f))
		placeholders = append(placeholders, fmt.Sprintf("$%d::bigint[]", argn), fmt.Sprintf("$%d::text[]", argn+1))
		args = append(args, fragInt[f], fragStr[f])
		argn += 2
	}
	for f := 0; f < 11; f++ {
		columns = append(columns, fmt.Sprintf("value_fragment_%d_integer", f), fmt.Sprintf("value_fragment_%d_string", f))
		placeholders = append(placeholders, fmt.Sprintf("$%d::bigint[]", argn), fmt.Sprintf("$%d::text[]", argn+1))
		args = append(args, valFragInt[f], valFragStr[f])
		argn += 2
	}

	query := fmt.Sprintf("INSERT INTO data_entries (%s) SELECT * FROM UNNEST(%s)",
		joinColumns(columns), joinColumns(placeholders))

	_, err := p.conn().Exec(ctx, query, args...)
	if err != nil {
		return apperror.Wrap(apperror.DbQuery, err)
	}
	return nil
}

// InsertHistoryKeys populates the optional data_entries_history_keys
// accelerant. It is a no-op when history keys are disabled.
func (p *Postgres) InsertHistoryKeys(ctx context.Context, entries []HistoryKeyEntry) error {
	defer p.observe("insert_history_keys", time.Now())
	if !p.historyKeys || len(entries) == 0 {
		return nil
	}
	n := len(entries)
	address := make([]string, n)
	key := make([]string, n)
	dataEntryUID := make([]int64, n)
	blockUID := make([]int64, n)
	height := make([]*int32, n)
	blockTimestamp := make([]*int64, n)
	for i, e := range entries {
		address[i] = e.Address
		key[i] = e.Key
		dataEntryUID[i] = e.DataEntryUID
		blockUID[i] = e.BlockUID
		height[i] = e.Height
		blockTimestamp[i] = e.BlockTimestamp
	}
	_, err := p.conn().Exec(ctx, `
		INSERT INTO data_entries_history_keys (address, key, data_entry_uid, block_uid, height, block_timestamp)
		SELECT * FROM UNNEST($1::text[], $2::text[], $3::bigint[], $4::bigint[], $5::int[], $6::bigint[])`,
		address, key, dataEntryUID, blockUID, height, blockTimestamp)
	if err != nil {
		return apperror.Wrap(apperror.DbQuery, err)
	}
	return nil
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func (p *Postgres) CloseSupersededBy(ctx context.Context, updates []SupersededByUpdate) error {
	defer p.observe("close_superseded_by", time.Now())
	if len(updates) == 0 {
		return nil
	}
	addresses := make([]string, len(updates))
	keys := make([]string, len(updates))
	newUIDs := make([]int64, len(updates))
	for i, u := range updates {
		addresses[i] = u.Address
		keys[i] = u.Key
		newUIDs[i] = u.NewUID
	}
	_, err := p.conn().Exec(ctx, `
		UPDATE data_entries SET superseded_by = updates.new_uid
		FROM (SELECT UNNEST($1::text[]) AS address, UNNEST($2::text[]) AS key, UNNEST($3::bigint[]) AS new_uid) AS updates
		WHERE data_entries.address = updates.address
		  AND data_entries.key = updates.key
		  AND data_entries.superseded_by = $4`,
		addresses, keys, newUIDs, MaxUID)
	if err != nil {
		return apperror.Wrap(apperror.DbQuery, err)
	}
	return nil
}

func (p *Postgres) ReopenSupersededBy(ctx context.Context, uids []int64) error {
	defer p.observe("reopen_superseded_by", time.Now())
	if len(uids) == 0 {
		return nil
	}
	_, err := p.conn().Exec(ctx, `
		UPDATE data_entries SET superseded_by = $1 WHERE superseded_by = ANY($2::bigint[])`, MaxUID, uids)
	if err != nil {
		return apperror.Wrap(apperror.DbQuery, err)
	}
	return nil
}

func (p *Postgres) SetNextUpdateUID(ctx context.Context, n int64) error {
	defer p.observe("set_next_update_uid", time.Now())
	_, err := p.conn().Exec(ctx, `SELECT setval('data_entries_uid_seq', $1, false)`, n)
	if err != nil {
		return apperror.Wrap(apperror.DbQuery, err)
	}
	return nil
}

func (p *Postgres) ChangeBlockID(ctx context.Context, uid int64, newID string) error {
	defer p.observe("change_block_id", time.Now())
	_, err := p.conn().Exec(ctx, `UPDATE blocks_microblocks SET id = $1 WHERE uid = $2`, newID, uid)
	if err != nil {
		return apperror.Wrap(apperror.DbQuery, err)
	}
	return nil
}

func (p *Postgres) UpdateDataEntriesBlockReferences(ctx context.Context, uid int64) error {
	defer p.observe("update_data_entries_block_references", time.Now())
	if _, err := p.conn().Exec(ctx, `UPDATE data_entries SET block_uid = $1 WHERE block_uid > $1`, uid); err != nil {
		return apperror.Wrap(apperror.DbQuery, err)
	}
	if !p.historyKeys {
		return nil
	}
	if _, err := p.conn().Exec(ctx, `UPDATE data_entries_history_keys SET block_uid = $1 WHERE block_uid > $1`, uid); err != nil {
		return apperror.Wrap(apperror.DbQuery, err)
	}
	// Backfill height/timestamp for rows that moved from a microblock (where
	// both were unknown) onto the now-finalised key block.
	_, err := p.conn().Exec(ctx, `
		UPDATE data_entries_history_keys h SET height = b.height, block_timestamp = b.time_stamp
		FROM blocks_microblocks b
		WHERE h.block_uid = $1 AND b.uid = $1 AND h.height IS NULL`, uid)
	if err != nil {
		return apperror.Wrap(apperror.DbQuery, err)
	}
	return nil
}

func (p *Postgres) DeleteMicroblocks(ctx context.Context) error {
	defer p.observe("delete_microblocks", time.Now())
	_, err := p.conn().Exec(ctx, `DELETE FROM blocks_microblocks WHERE time_stamp IS NULL`)
	if err != nil {
		return apperror.Wrap(apperror.DbQuery, err)
	}
	return nil
}

func (p *Postgres) RollbackBlocksMicroblocks(ctx context.Context, uid int64) error {
	defer p.observe("rollback_blocks_microblocks", time.Now())
	_, err := p.conn().Exec(ctx, `DELETE FROM blocks_microblocks WHERE uid > $1`, uid)
	if err != nil {
		return apperror.Wrap(apperror.DbQuery, err)
	}
	return nil
}

func (p *Postgres) RollbackDataEntries(ctx context.Context, uid int64) ([]DeletedDataEntry, error) {
	defer p.observe("rollback_data_entries", time.Now())
	rows, err := p.conn().Query(ctx, `
		DELETE FROM data_entries WHERE block_uid > $1
		RETURNING address, key, uid`, uid)
	if err != nil {
		return nil, apperror.Wrap(apperror.DbQuery, err)
	}
	defer rows.Close()

	var out []DeletedDataEntry
	for rows.Next() {
		var d DeletedDataEntry
		if err := rows.Scan(&d.Address, &d.Key, &d.UID); err != nil {
			return nil, apperror.Wrap(apperror.DbQuery, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.DbQuery, err)
	}

	if p.historyKeys && len(out) > 0 {
		uids := make([]int64, len(out))
		for i, d := range out {
			uids[i] = d.UID
		}
		if _, err := p.conn().Exec(ctx, `DELETE FROM data_entries_history_keys WHERE data_entry_uid = ANY($1::bigint[])`, uids); err != nil {
			return nil, apperror.Wrap(apperror.DbQuery, err)
		}
	}
	return out, nil
}
