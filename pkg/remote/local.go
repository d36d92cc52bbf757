package remote

import (
	"context"

	"github.com/google/uuid"

	"github.com/mediasync/libsync/pkg/chunk"
	"github.com/mediasync/libsync/pkg/hlc"
	"github.com/mediasync/libsync/pkg/storage"
	"github.com/mediasync/libsync/pkg/syncmeta"
	"github.com/mediasync/libsync/pkg/syncrecord"
)

// Local implements DataSource directly over a storage.Engine and
// syncmeta.Store in the same process, skipping the HTTP binding
// entirely. It is the in-process counterpart of remotesrv, used to wire
// two peers together for tests and single-process demos the way the
// teacher's own integration tests couple two in-process actors instead
// of going over a real socket.
type Local struct {
	NodeID uuid.UUID
	Engine storage.Engine
	Meta   syncmeta.Store

	// ChunkSizing is the policy this peer uses when asked for its own
	// chunks; callers typically pass the same Options on both sides of
	// a test pair.
	ChunkSizing chunk.Options
}

func (l *Local) RemoteNodeID(ctx context.Context) (uuid.UUID, error) {
	return l.NodeID, nil
}

func (l *Local) Chunks(ctx context.Context, table string, afterHLC hlc.HLC) ([]chunk.Chunk, error) {
	t, err := l.Engine.Table(ctx, table)
	if err != nil {
		return nil, err
	}
	return chunk.Generate(ctx, t, afterHLC, l.ChunkSizing)
}

func (l *Local) SubChunks(ctx context.Context, table string, parent chunk.Chunk, subSize int) ([]chunk.SubChunk, error) {
	t, err := l.Engine.Table(ctx, table)
	if err != nil {
		return nil, err
	}
	return chunk.Break(ctx, t, parent, subSize)
}

func (l *Local) RecordsInRange(ctx context.Context, table string, start, end hlc.HLC) ([]syncrecord.Record, error) {
	t, err := l.Engine.Table(ctx, table)
	if err != nil {
		return nil, err
	}
	return t.RecordsInRange(ctx, start, end)
}

func (l *Local) ApplyChanges(ctx context.Context, table string, ops []syncrecord.Operation, clientNodeID uuid.UUID, newLastSyncHLC hlc.HLC) (hlc.HLC, error) {
	localOps := make([]syncrecord.Operation, len(ops))
	for i, op := range ops {
		op.Kind = RemoteToLocalKind(op.Kind)
		localOps[i] = op
	}
	if err := l.Engine.ApplyLocal(ctx, table, localOps); err != nil {
		return hlc.HLC{}, err
	}
	if err := l.Meta.Put(ctx, syncmeta.Metadata{TableName: table, PeerNodeID: clientNodeID, LastSyncHLC: newLastSyncHLC}); err != nil {
		return hlc.HLC{}, err
	}
	return newLastSyncHLC, nil
}

func (l *Local) LastSyncHLC(ctx context.Context, table string, localNodeID uuid.UUID) (hlc.HLC, bool, error) {
	m, err := l.Meta.Get(ctx, table, localNodeID)
	if err != nil {
		return hlc.HLC{}, false, err
	}
	if m.LastSyncHLC == hlc.Zero {
		return hlc.HLC{}, false, nil
	}
	return m.LastSyncHLC, true, nil
}
