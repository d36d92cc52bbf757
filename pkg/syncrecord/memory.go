package syncrecord

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/mediasync/libsync/pkg/hlc"
)

// MemoryRecord is a generic in-memory record: a unique id, the two HLC
// stamps, and an arbitrary content map. It is used by tests, by the
// example "tracks" table in cmd/libsyncd, and anywhere a concrete
// relational schema would otherwise be required.
type MemoryRecord struct {
	ID        string
	UpdatedAt hlc.HLC
	CreatedAt hlc.HLC
	Content   map[string]interface{}
	Fk        FkPayload
}

func (r *MemoryRecord) UniqueID() string      { return r.ID }
func (r *MemoryRecord) UpdatedAtHLC() hlc.HLC { return r.UpdatedAt }
func (r *MemoryRecord) CreatedAtHLC() hlc.HLC { return r.CreatedAt }
func (r *MemoryRecord) FkPayload() FkPayload  { return r.Fk }

// DataForHashing returns the content map with every string value run
// through Unicode NFKC normalization, so that two nodes that produced
// visually-identical but byte-distinct strings (e.g. composed vs.
// decomposed accents) still hash identically. Grounded on the teacher's
// pkg/honeytag/resolver.go query-normalization step, generalized from a
// single query string to an arbitrary content map.
func (r *MemoryRecord) DataForHashing() (interface{}, error) {
	normalized := make(map[string]interface{}, len(r.Content))
	for k, v := range r.Content {
		normalized[k] = normalizeValue(v)
	}
	return normalized, nil
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return norm.NFKC.String(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, sub := range val {
			out[k] = normalizeValue(sub)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, sub := range val {
			out[i] = normalizeValue(sub)
		}
		return out
	default:
		return v
	}
}

// MemoryTable is a thread-safe, in-process implementation of
// syncrecord.Table and the local half of storage.Engine, keyed by
// UniqueID. It is the adapter exercised by every invariant and
// end-to-end test in pkg/reconcile.
type MemoryTable struct {
	mu      sync.RWMutex
	name    string
	columns HLCColumns
	rows    map[string]*MemoryRecord
}

// NewMemoryTable creates an empty table named name.
func NewMemoryTable(name string) *MemoryTable {
	return &MemoryTable{
		name: name,
		columns: HLCColumns{
			TimestampColumn: "updated_at_hlc_ts",
			VersionColumn:   "updated_at_hlc_ver",
			NodeIDColumn:    "updated_at_hlc_nid",
			UniqueIDColumn:  "hlc_uuid",
		},
		rows: make(map[string]*MemoryRecord),
	}
}

func (t *MemoryTable) Name() string        { return t.name }
func (t *MemoryTable) Columns() HLCColumns { return t.columns }

// Put inserts or overwrites a row directly, bypassing Operation
// application. Used by tests and by seeding code to set up initial state.
func (t *MemoryTable) Put(r *MemoryRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := *r
	t.rows[r.ID] = &cp
}

// Get returns the row with the given unique id, if present.
func (t *MemoryTable) Get(id string) (*MemoryRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[id]
	return r, ok
}

// Delete removes the row with the given unique id, if present.
func (t *MemoryTable) Delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, id)
}

// Len returns the current row count.
func (t *MemoryTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

func (t *MemoryTable) sortedRows() []*MemoryRecord {
	rows := make([]*MemoryRecord, 0, len(t.rows))
	for _, r := range t.rows {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		return hlc.Less(rows[i].UpdatedAt, rows[j].UpdatedAt)
	})
	return rows
}

func (t *MemoryTable) LatestUpdatedAtHLC(ctx context.Context) (hlc.HLC, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.rows) == 0 {
		return hlc.HLC{}, false, nil
	}
	latest := hlc.Zero
	for _, r := range t.rows {
		if hlc.Less(latest, r.UpdatedAt) {
			latest = r.UpdatedAt
		}
	}
	return latest, true, nil
}

func (t *MemoryTable) RecordsAfter(ctx context.Context, after hlc.HLC, limit int) ([]Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := t.sortedRows()
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		if !hlc.Less(after, r.UpdatedAt) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (t *MemoryTable) RecordsInRange(ctx context.Context, start, end hlc.HLC) ([]Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := t.sortedRows()
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		if hlc.Less(r.UpdatedAt, start) || hlc.Less(end, r.UpdatedAt) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// wireRecord is the JSON-on-the-wire shape of a MemoryRecord.
type wireRecord struct {
	ID        string                 `json:"hlc_uuid"`
	UpdatedAt hlc.HLC                `json:"updated_at_hlc"`
	CreatedAt hlc.HLC                `json:"created_at_hlc"`
	Content   map[string]interface{} `json:"content"`
	Fk        FkPayload              `json:"fk,omitempty"`
}

func (t *MemoryTable) EncodeWire(r Record) ([]byte, error) {
	mr, ok := r.(*MemoryRecord)
	if !ok {
		return nil, fmt.Errorf("memory table %s: cannot encode record of type %T", t.name, r)
	}
	return json.Marshal(wireRecord{ID: mr.ID, UpdatedAt: mr.UpdatedAt, CreatedAt: mr.CreatedAt, Content: mr.Content, Fk: mr.Fk})
}

func (t *MemoryTable) DecodeWire(data []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("memory table %s: decode wire record: %w", t.name, err)
	}
	return &MemoryRecord{ID: w.ID, UpdatedAt: w.UpdatedAt, CreatedAt: w.CreatedAt, Content: w.Content, Fk: w.Fk}, nil
}
