// Package sqlite is the reference StorageEngine backed by SQLite
// (mattn/go-sqlite3 via database/sql): a generic, schema-agnostic table
// shape carrying the six HLC/id columns spec.md §6 mandates plus an
// opaque JSON content column, so any entity kind can be registered
// without the sync core dictating its relational schema.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mediasync/libsync/pkg/hlc"
	"github.com/mediasync/libsync/pkg/syncrecord"
)

// Engine is a storage.Engine backed by one SQLite database file, with one
// physical table per registered logical table.
type Engine struct {
	db     *sql.DB
	tables map[string]*Table
}

// Open opens (creating if necessary) a SQLite database at path.
func Open(path string) (*Engine, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=0")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	return &Engine{db: db, tables: make(map[string]*Table)}, nil
}

// Close releases the underlying database handle.
func (e *Engine) Close() error { return e.db.Close() }

// RegisterTable creates (if needed) the backing SQL table for name and
// returns its syncrecord.Table/Operation-target handle. fkColumns maps a
// content field name to the logical table it references, used for
// foreign-key remapping at apply time.
func (e *Engine) RegisterTable(ctx context.Context, name string, fkColumns map[string]string) (*Table, error) {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
		hlc_uuid TEXT PRIMARY KEY,
		updated_at_hlc_ts INTEGER NOT NULL,
		updated_at_hlc_ver INTEGER NOT NULL,
		updated_at_hlc_nid TEXT NOT NULL,
		created_at_hlc_ts INTEGER NOT NULL,
		created_at_hlc_ver INTEGER NOT NULL,
		created_at_hlc_nid TEXT NOT NULL,
		local_id INTEGER,
		content TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_hlc ON %[1]s(updated_at_hlc_ts, updated_at_hlc_ver, updated_at_hlc_nid);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_local_id ON %[1]s(local_id);`, quoteIdent(name))

	if _, err := e.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("sqlite: create table %s: %w", name, err)
	}

	t := &Table{name: name, db: e.db, fkColumns: fkColumns}
	e.tables[name] = t
	return t, nil
}

func (e *Engine) Table(ctx context.Context, name string) (syncrecord.Table, error) {
	t, ok := e.tables[name]
	if !ok {
		return nil, fmt.Errorf("sqlite: table %q is not registered", name)
	}
	return t, nil
}

func (e *Engine) FkResolver(ctx context.Context, name string) (syncrecord.FkResolver, error) {
	t, ok := e.tables[name]
	if !ok {
		return nil, fmt.Errorf("sqlite: table %q is not registered", name)
	}
	return &fkResolver{table: t}, nil
}

// ApplyLocal applies ops to table inside a single SQL transaction.
func (e *Engine) ApplyLocal(ctx context.Context, table string, ops []syncrecord.Operation) error {
	t, ok := e.tables[table]
	if !ok {
		return fmt.Errorf("sqlite: table %q is not registered", table)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction for table %s: %w", table, err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		if op.IsNoOp() {
			continue
		}
		if err := t.applyOne(ctx, tx, op); err != nil {
			return fmt.Errorf("sqlite: apply operation %s on table %s: %w", op.Kind, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit transaction for table %s: %w", table, err)
	}
	return nil
}

// Table is a syncrecord.Table over one SQLite table using the generic
// six-HLC-column-plus-JSON-content schema.
type Table struct {
	name      string
	db        *sql.DB
	fkColumns map[string]string
}

func (t *Table) Name() string { return t.name }

func (t *Table) Columns() syncrecord.HLCColumns {
	return syncrecord.HLCColumns{
		TimestampColumn: "updated_at_hlc_ts",
		VersionColumn:   "updated_at_hlc_ver",
		NodeIDColumn:    "updated_at_hlc_nid",
		UniqueIDColumn:  "hlc_uuid",
	}
}

func (t *Table) LatestUpdatedAtHLC(ctx context.Context) (hlc.HLC, bool, error) {
	row := t.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT updated_at_hlc_ts, updated_at_hlc_ver, updated_at_hlc_nid FROM %s
		 ORDER BY updated_at_hlc_ts DESC, updated_at_hlc_ver DESC, updated_at_hlc_nid DESC LIMIT 1`,
		quoteIdent(t.name)))

	var ts, ver int64
	var nid string
	switch err := row.Scan(&ts, &ver, &nid); err {
	case nil:
		id, perr := parseNodeID(nid)
		if perr != nil {
			return hlc.HLC{}, false, perr
		}
		return hlc.HLC{TimestampMS: uint64(ts), Version: uint32(ver), NodeID: id}, true, nil
	case sql.ErrNoRows:
		return hlc.HLC{}, false, nil
	default:
		return hlc.HLC{}, false, fmt.Errorf("sqlite: latest updated_at_hlc for %s: %w", t.name, err)
	}
}

// afterPredicate builds the lexicographic "(ts, ver, nid) > (ts0, ver0,
// nid0)" predicate spec.md §4.2 requires: naive timestamp-only comparison
// would silently drop same-millisecond events.
func afterPredicate() string {
	return `(updated_at_hlc_ts > ?) OR
		(updated_at_hlc_ts = ? AND updated_at_hlc_ver > ?) OR
		(updated_at_hlc_ts = ? AND updated_at_hlc_ver = ? AND updated_at_hlc_nid > ?)`
}

func (t *Table) RecordsAfter(ctx context.Context, after hlc.HLC, limit int) ([]syncrecord.Record, error) {
	query := fmt.Sprintf(`SELECT hlc_uuid, updated_at_hlc_ts, updated_at_hlc_ver, updated_at_hlc_nid,
		created_at_hlc_ts, created_at_hlc_ver, created_at_hlc_nid, content FROM %s
		WHERE %s
		ORDER BY updated_at_hlc_ts ASC, updated_at_hlc_ver ASC, updated_at_hlc_nid ASC`,
		quoteIdent(t.name), afterPredicate())
	args := []interface{}{
		after.TimestampMS,
		after.TimestampMS, after.Version,
		after.TimestampMS, after.Version, after.NodeID.String(),
	}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return t.queryRecords(ctx, query, args...)
}

func (t *Table) RecordsInRange(ctx context.Context, start, end hlc.HLC) ([]syncrecord.Record, error) {
	// Inclusive range [start, end]: not-less-than start AND not-greater-than end,
	// both expressed with the same lexicographic-tuple predicate shape.
	query := fmt.Sprintf(`SELECT hlc_uuid, updated_at_hlc_ts, updated_at_hlc_ver, updated_at_hlc_nid,
		created_at_hlc_ts, created_at_hlc_ver, created_at_hlc_nid, content FROM %s
		WHERE NOT (%s) AND NOT (%s)
		ORDER BY updated_at_hlc_ts ASC, updated_at_hlc_ver ASC, updated_at_hlc_nid ASC`,
		quoteIdent(t.name), beforePredicate(), afterPredicate())
	args := []interface{}{
		start.TimestampMS, start.TimestampMS, start.Version,
		start.TimestampMS, start.Version, start.NodeID.String(),
		end.TimestampMS, end.TimestampMS, end.Version,
		end.TimestampMS, end.Version, end.NodeID.String(),
	}
	return t.queryRecords(ctx, query, args...)
}

func beforePredicate() string {
	return `(updated_at_hlc_ts < ?) OR
		(updated_at_hlc_ts = ? AND updated_at_hlc_ver < ?) OR
		(updated_at_hlc_ts = ? AND updated_at_hlc_ver = ? AND updated_at_hlc_nid < ?)`
}

func (t *Table) queryRecords(ctx context.Context, query string, args ...interface{}) ([]syncrecord.Record, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []syncrecord.Record
	for rows.Next() {
		var id, updNid, crNid, content string
		var updTS, updVer, crTS, crVer int64
		if err := rows.Scan(&id, &updTS, &updVer, &updNid, &crTS, &crVer, &crNid, &content); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", t.name, err)
		}
		updID, err := parseNodeID(updNid)
		if err != nil {
			return nil, err
		}
		crID, err := parseNodeID(crNid)
		if err != nil {
			return nil, err
		}
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(content), &data); err != nil {
			return nil, fmt.Errorf("sqlite: decode content for %s/%s: %w", t.name, id, err)
		}
		out = append(out, &syncrecord.MemoryRecord{
			ID:        id,
			UpdatedAt: hlc.HLC{TimestampMS: uint64(updTS), Version: uint32(updVer), NodeID: updID},
			CreatedAt: hlc.HLC{TimestampMS: uint64(crTS), Version: uint32(crVer), NodeID: crID},
			Content:   data,
		})
	}
	return out, rows.Err()
}

func (t *Table) EncodeWire(r syncrecord.Record) ([]byte, error) {
	mr, ok := r.(*syncrecord.MemoryRecord)
	if !ok {
		return nil, fmt.Errorf("sqlite: table %s: cannot encode record of type %T", t.name, r)
	}
	return json.Marshal(mr)
}

func (t *Table) DecodeWire(data []byte) (syncrecord.Record, error) {
	var mr syncrecord.MemoryRecord
	if err := json.Unmarshal(data, &mr); err != nil {
		return nil, fmt.Errorf("sqlite: table %s: decode wire record: %w", t.name, err)
	}
	return &mr, nil
}

func (t *Table) applyOne(ctx context.Context, tx *sql.Tx, op syncrecord.Operation) error {
	switch op.Kind {
	case syncrecord.OpInsertLocal, syncrecord.OpUpdateLocal:
		mr, ok := op.Record.(*syncrecord.MemoryRecord)
		if !ok {
			return fmt.Errorf("operation record has unexpected type %T", op.Record)
		}

		resolved := make(map[string]interface{}, len(mr.Content))
		for k, v := range mr.Content {
			resolved[k] = v
		}
		for column, refTable := range t.fkColumns {
			syncIDPtr, present := op.Fk[column]
			if !present || syncIDPtr == nil {
				continue
			}
			localID, ok, err := t.resolveFk(ctx, tx, refTable, *syncIDPtr)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("foreign key %q references unresolved sync_id %q in table %q", column, *syncIDPtr, refTable)
			}
			resolved[column] = localID
		}

		content, err := json.Marshal(resolved)
		if err != nil {
			return fmt.Errorf("encode content: %w", err)
		}

		_, err = tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s
			(hlc_uuid, updated_at_hlc_ts, updated_at_hlc_ver, updated_at_hlc_nid,
			 created_at_hlc_ts, created_at_hlc_ver, created_at_hlc_nid, local_id, content)
			VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(local_id), 0) + 1 FROM %s), ?)
			ON CONFLICT(hlc_uuid) DO UPDATE SET
				updated_at_hlc_ts=excluded.updated_at_hlc_ts,
				updated_at_hlc_ver=excluded.updated_at_hlc_ver,
				updated_at_hlc_nid=excluded.updated_at_hlc_nid,
				content=excluded.content`,
			quoteIdent(t.name), quoteIdent(t.name)),
			mr.ID, mr.UpdatedAt.TimestampMS, mr.UpdatedAt.Version, mr.UpdatedAt.NodeID.String(),
			mr.CreatedAt.TimestampMS, mr.CreatedAt.Version, mr.CreatedAt.NodeID.String(), content)
		return err

	case syncrecord.OpDeleteLocal:
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE hlc_uuid = ?`, quoteIdent(t.name)), op.UniqueID)
		return err

	default:
		return fmt.Errorf("unsupported local operation kind %q", op.Kind)
	}
}

func (t *Table) resolveFk(ctx context.Context, tx *sql.Tx, refTable, syncID string) (string, bool, error) {
	row := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT local_id FROM %s WHERE hlc_uuid = ?`, quoteIdent(refTable)), syncID)
	var localID int64
	switch err := row.Scan(&localID); err {
	case nil:
		return fmt.Sprintf("%d", localID), true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("resolve fk against %s: %w", refTable, err)
	}
}

type fkResolver struct {
	table *Table
}

func (r *fkResolver) ResolveLocalID(ctx context.Context, referencedTable, syncID string) (string, bool, error) {
	row := r.table.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT local_id FROM %s WHERE hlc_uuid = ?`, quoteIdent(referencedTable)), syncID)
	var localID int64
	switch err := row.Scan(&localID); err {
	case nil:
		return fmt.Sprintf("%d", localID), true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("sqlite: resolve fk against %s: %w", referencedTable, err)
	}
}

func parseNodeID(s string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("sqlite: malformed node id %q: %w", s, err)
	}
	return u, nil
}

// quoteIdent guards against SQL injection through table names, which in
// this codebase come only from host-application registration calls, not
// untrusted input, but are still built with fmt.Sprintf into DDL/DML
// because database/sql has no identifier placeholder.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
