// Package remote defines C5, the abstract interface to a sync peer, and
// ships an HTTP binding (pkg/remote/remotesrv is the server side) for the
// logical endpoints of spec.md §6.
package remote

import (
	"context"

	"github.com/google/uuid"

	"github.com/mediasync/libsync/pkg/chunk"
	"github.com/mediasync/libsync/pkg/hlc"
	"github.com/mediasync/libsync/pkg/syncrecord"
)

// DataSource is the collaborator the reconciliation engine drives to
// reach a peer. All methods are cancellation-safe; the embedder is
// responsible for applying its own timeouts (spec.md §4.5).
type DataSource interface {
	// RemoteNodeID identifies the peer, used in HLC tie-breaks.
	RemoteNodeID(ctx context.Context) (uuid.UUID, error)

	// Chunks returns chunks for table covering records with
	// updated_at_hlc strictly after afterHLC.
	Chunks(ctx context.Context, table string, afterHLC hlc.HLC) ([]chunk.Chunk, error)

	// SubChunks asks the peer to verify parent against its own live data
	// and, if it still matches, break it down into sub-chunks of at most
	// subSize records. A verification mismatch is returned as an error
	// (spec.md §4.5): the peer MUST check before breaking down.
	SubChunks(ctx context.Context, table string, parent chunk.Chunk, subSize int) ([]chunk.SubChunk, error)

	// RecordsInRange returns every record in table with updated_at_hlc
	// in the inclusive range [start, end], HLC-ascending.
	RecordsInRange(ctx context.Context, table string, start, end hlc.HLC) ([]syncrecord.Record, error)

	// ApplyChanges applies ops to table on the peer inside a single
	// transaction and returns an HLC at least as recent as the applied
	// set. Any per-operation failure rolls back the whole batch.
	ApplyChanges(ctx context.Context, table string, ops []syncrecord.Operation, clientNodeID uuid.UUID, newLastSyncHLC hlc.HLC) (hlc.HLC, error)

	// LastSyncHLC is an optional consistency hint: the peer's own record
	// of the last HLC it reconciled with localNodeID for table.
	LastSyncHLC(ctx context.Context, table string, localNodeID uuid.UUID) (hlc.HLC, bool, error)
}

// RemoteToLocalKind maps the Insert/Update/DeleteRemote kinds in an
// ApplyChanges batch (what the caller, from its own perspective, is
// asking this peer to apply) onto the Insert/Update/DeleteLocal kinds
// a storage.Engine accepts from its own side. Every DataSource
// implementation's ApplyChanges must apply this translation before
// handing operations to a storage.Engine, so the in-process (Local)
// and HTTP (remotesrv) bindings agree on which OpKinds ever reach
// ApplyLocal.
func RemoteToLocalKind(k syncrecord.OpKind) syncrecord.OpKind {
	switch k {
	case syncrecord.OpInsertRemote:
		return syncrecord.OpInsertLocal
	case syncrecord.OpUpdateRemote:
		return syncrecord.OpUpdateLocal
	case syncrecord.OpDeleteRemote:
		return syncrecord.OpDeleteLocal
	default:
		return syncrecord.OpNoOp
	}
}
