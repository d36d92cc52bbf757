// Package storage defines the local half of the apply path: the
// StorageEngine a table's host application must provide so the
// reconciliation engine can query chunks/records and apply a batch of
// operations inside a single local transaction (spec.md §4.6 Phase 6).
package storage

import (
	"context"

	"github.com/mediasync/libsync/pkg/syncrecord"
)

// Engine is the local-side collaborator the reconciliation engine drives.
// It owns table registration, foreign-key resolution, and the
// transactional local apply.
type Engine interface {
	// Table returns the registered syncrecord.Table for name, used for
	// chunk generation/breakdown and for Phase 4's record comparison.
	Table(ctx context.Context, name string) (syncrecord.Table, error)

	// FkResolver returns the resolver used to remap a replicated row's
	// foreign keys to local primary keys (spec.md §4.6 "FK remapping").
	FkResolver(ctx context.Context, name string) (syncrecord.FkResolver, error)

	// ApplyLocal applies ops to table inside a single transaction.
	// NoOp entries are skipped. Any per-operation failure aborts and
	// rolls back the entire batch; last_sync_hlc is not advanced by the
	// caller in that case (spec.md §4.6 Phase 6, §7).
	ApplyLocal(ctx context.Context, table string, ops []syncrecord.Operation) error
}
