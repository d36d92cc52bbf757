// Package syncrecord defines C2, the uniform view over heterogeneous
// entity kinds that the sync core reconciles: a stable unique id, the
// HLC metadata that orders mutations, and the canonical projection that
// feeds the hash engine.
package syncrecord

import (
	"context"

	"github.com/mediasync/libsync/pkg/hlc"
)

// Record is the minimal uniform capability set any synchronized entity
// kind must expose (spec.md §4.2). Concrete entity kinds wrap their own
// struct to satisfy this interface; the sync core never depends on a
// specific schema.
type Record interface {
	// UniqueID is the stable id used for cross-node identity: a string
	// projection of the primary key, or a dedicated sync id on joining
	// tables.
	UniqueID() string

	// UpdatedAtHLC is required. A record missing this is a data
	// integrity error, not a zero value.
	UpdatedAtHLC() hlc.HLC

	// CreatedAtHLC is optional; adapters that do not track it return
	// the zero HLC.
	CreatedAtHLC() hlc.HLC

	// DataForHashing returns the canonical content projection: every
	// content field, keys eventually sorted by the hash engine's
	// canonical JSON encoder, never including the updated_at_hlc
	// components.
	DataForHashing() (interface{}, error)

	// FkPayload returns the sync_id of every row this record references
	// by foreign key, keyed by content field name, so the receiving
	// side can remap it to its own locally-assigned id (spec.md §3, §9
	// "FK remapping"). Records with no foreign keys return nil.
	FkPayload() FkPayload
}

// HLCColumns describes which physical columns hold the three HLC
// components and the unique id, for adapters backed by a SQL-ish store
// that must build range predicates directly in the query layer.
type HLCColumns struct {
	TimestampColumn string
	VersionColumn   string
	NodeIDColumn    string
	UniqueIDColumn  string
}

// FkPayload carries, alongside a replicated record, the sync_id of every
// row it references by foreign key so the receiving side can remap
// integer primary keys that differ between nodes (spec.md §3, §9).
type FkPayload map[string]*string

// Table is the storage-facing half of the record adapter: range queries
// over one synchronized table, keyed by HLC order. All methods are
// cancellation-safe; suspension happens at the underlying store, not here.
type Table interface {
	// Name is the table identifier used in sync metadata and peer
	// endpoints.
	Name() string

	// Columns describes this table's HLC/unique-id column mapping.
	Columns() HLCColumns

	// LatestUpdatedAtHLC returns the greatest updated_at_hlc currently
	// stored, or the zero HLC and ok=false if the table is empty.
	LatestUpdatedAtHLC(ctx context.Context) (h hlc.HLC, ok bool, err error)

	// RecordsAfter returns up to limit records with updated_at_hlc
	// strictly greater than after, ordered by updated_at_hlc ascending.
	// limit == 0 means unbounded.
	RecordsAfter(ctx context.Context, after hlc.HLC, limit int) ([]Record, error)

	// RecordsInRange returns every record with updated_at_hlc in the
	// inclusive range [start, end], ordered by updated_at_hlc ascending.
	RecordsInRange(ctx context.Context, start, end hlc.HLC) ([]Record, error)

	// EncodeWire serializes a Record of this table's concrete entity kind
	// to its wire representation, for the HTTP binding in pkg/remote.
	EncodeWire(r Record) ([]byte, error)

	// DecodeWire deserializes a wire-format record back into this
	// table's concrete entity kind. Used by both the HTTP client
	// (decoding a peer's response) and the HTTP server (decoding an
	// incoming apply-changes batch), so a single table registration
	// covers both directions (spec.md §9 "tagged dispatch table").
	DecodeWire(data []byte) (Record, error)
}

// FkResolver resolves a foreign-key sync_id to the locally-assigned
// integer (or string) primary key on this node, for the remap step of
// spec.md §4.6/§9. Returns ok=false when the referenced row does not
// exist locally yet.
type FkResolver interface {
	ResolveLocalID(ctx context.Context, referencedTable, syncID string) (localID string, ok bool, err error)
}
