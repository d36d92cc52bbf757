package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/mediasync/libsync/pkg/syncrecord"
)

// tableEntry bundles a registered table with the foreign-key column
// mapping the demo host application declared for it: which content
// fields hold a reference to another table's row, and which table that
// reference targets.
type tableEntry struct {
	table     *syncrecord.MemoryTable
	fkColumns map[string]string // content field name -> referenced table name
	localIDs  map[string]int64  // unique id -> node-local autoincrement id
	nextID    int64
}

// MemoryEngine is an in-process storage.Engine over syncrecord.MemoryTable
// registrations. "Transactional" apply is implemented by snapshotting
// every row touched by the batch before mutating, and restoring the
// snapshot if any operation in the batch fails, which is sufficient for
// the single-process, single-mutex demo and test use this engine serves.
type MemoryEngine struct {
	mu     sync.Mutex
	tables map[string]*tableEntry
}

// NewMemoryEngine creates an engine with no tables registered.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{tables: make(map[string]*tableEntry)}
}

// RegisterTable adds table under name, declaring fkColumns as the content
// fields that hold a foreign-key reference (content field name ->
// referenced table name) to be remapped at apply time (spec.md §4.6 "FK
// remapping", §9).
func (e *MemoryEngine) RegisterTable(name string, table *syncrecord.MemoryTable, fkColumns map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[name] = &tableEntry{table: table, fkColumns: fkColumns, localIDs: make(map[string]int64)}
}

func (e *MemoryEngine) entry(name string) (*tableEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	te, ok := e.tables[name]
	if !ok {
		return nil, fmt.Errorf("storage: table %q is not registered", name)
	}
	return te, nil
}

func (e *MemoryEngine) Table(ctx context.Context, name string) (syncrecord.Table, error) {
	te, err := e.entry(name)
	if err != nil {
		return nil, err
	}
	return te.table, nil
}

func (e *MemoryEngine) FkResolver(ctx context.Context, name string) (syncrecord.FkResolver, error) {
	if _, err := e.entry(name); err != nil {
		return nil, err
	}
	return &memFkResolver{engine: e}, nil
}

// LocalID returns the node-local autoincrement id assigned to the row
// identified by syncID in table, if one has been assigned.
func (e *MemoryEngine) LocalID(table, syncID string) (int64, bool) {
	te, err := e.entry(table)
	if err != nil {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := te.localIDs[syncID]
	return id, ok
}

func (e *MemoryEngine) assignLocalID(te *tableEntry, syncID string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id, ok := te.localIDs[syncID]; ok {
		return id
	}
	te.nextID++
	id := te.nextID
	te.localIDs[syncID] = id
	return id
}

type memFkResolver struct {
	engine *MemoryEngine
}

func (r *memFkResolver) ResolveLocalID(ctx context.Context, referencedTable, syncID string) (string, bool, error) {
	id, ok := r.engine.LocalID(referencedTable, syncID)
	if !ok {
		return "", false, nil
	}
	return fmt.Sprintf("%d", id), true, nil
}

// ApplyLocal applies ops to table, resolving foreign keys via the
// registered fkColumns mapping and assigning this node's local id to any
// newly inserted row. On the first failing operation, every row mutated
// earlier in the same batch is restored to its pre-batch snapshot, and
// the batch's error is returned (spec.md §4.6 Phase 6, §7).
func (e *MemoryEngine) ApplyLocal(ctx context.Context, table string, ops []syncrecord.Operation) error {
	te, err := e.entry(table)
	if err != nil {
		return err
	}

	type snapshot struct {
		had bool
		rec *syncrecord.MemoryRecord
	}
	snapshots := make(map[string]snapshot)
	snapshotOnce := func(id string) {
		if _, done := snapshots[id]; done {
			return
		}
		rec, had := te.table.Get(id)
		snapshots[id] = snapshot{had: had, rec: rec}
	}

	rollback := func() {
		for id, snap := range snapshots {
			if snap.had {
				te.table.Put(snap.rec)
			} else {
				te.table.Delete(id)
			}
		}
	}

	for _, op := range ops {
		if op.IsNoOp() {
			continue
		}

		switch op.Kind {
		case syncrecord.OpInsertLocal, syncrecord.OpUpdateLocal:
			mr, ok := op.Record.(*syncrecord.MemoryRecord)
			if !ok {
				rollback()
				return fmt.Errorf("storage: table %q: operation record has unexpected type %T", table, op.Record)
			}
			snapshotOnce(mr.ID)

			resolved := make(map[string]interface{}, len(mr.Content))
			for k, v := range mr.Content {
				resolved[k] = v
			}
			for column, refTable := range te.fkColumns {
				syncIDPtr, present := op.Fk[column]
				if !present || syncIDPtr == nil {
					continue
				}
				localID, ok := e.LocalID(refTable, *syncIDPtr)
				if !ok {
					rollback()
					return fmt.Errorf("storage: table %q: foreign key %q references unresolved sync_id %q in table %q", table, column, *syncIDPtr, refTable)
				}
				resolved[column] = fmt.Sprintf("%d", localID)
			}

			toStore := &syncrecord.MemoryRecord{
				ID:        mr.ID,
				UpdatedAt: mr.UpdatedAt,
				CreatedAt: mr.CreatedAt,
				Content:   resolved,
				Fk:        op.Fk,
			}
			te.table.Put(toStore)
			e.assignLocalID(te, mr.ID)

		case syncrecord.OpDeleteLocal:
			snapshotOnce(op.UniqueID)
			te.table.Delete(op.UniqueID)

		default:
			rollback()
			return fmt.Errorf("storage: table %q: unsupported local operation kind %q", table, op.Kind)
		}
	}

	return nil
}
