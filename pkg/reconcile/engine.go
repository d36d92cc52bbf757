// Package reconcile implements C6, the per-table sync driver: it aligns
// local and remote chunks, queues fetches, resolves conflicts by HLC, and
// applies the resulting operation lists to both sides (spec.md §4.6).
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mediasync/libsync/pkg/chunk"
	"github.com/mediasync/libsync/pkg/hlc"
	"github.com/mediasync/libsync/pkg/remote"
	"github.com/mediasync/libsync/pkg/storage"
	"github.com/mediasync/libsync/pkg/syncerr"
	"github.com/mediasync/libsync/pkg/syncmeta"
	"github.com/mediasync/libsync/pkg/syncrecord"
)

// ComparisonThreshold is the record count below which a differing chunk
// pair is resolved by direct record fetch rather than further breakdown
// (spec.md §4.6 Phase 3, §6).
const ComparisonThreshold = 50

// Options configures one table's reconciliation run.
type Options struct {
	Direction    Direction
	ChunkSizing  chunk.Options
	Threshold    int // 0 defaults to ComparisonThreshold
	LocalNodeID  uuid.UUID
	RemoteNodeID uuid.UUID
}

func (o Options) threshold() int {
	if o.Threshold > 0 {
		return o.Threshold
	}
	return ComparisonThreshold
}

// Engine drives SyncTable for one (table, peer) pair at a time. It holds
// no cross-run coordinator state: per spec.md §5, each (table, peer)
// sync is independent and the engine itself carries nothing but its
// collaborators.
type Engine struct {
	Storage storage.Engine
	Meta    syncmeta.Store
	Log     zerolog.Logger
}

// New creates an Engine over the given local storage and metadata store.
func New(storageEngine storage.Engine, meta syncmeta.Store, log zerolog.Logger) *Engine {
	return &Engine{Storage: storageEngine, Meta: meta, Log: log}
}

// SyncTable runs one full reconciliation cycle for tableName against
// peer, implementing spec.md §4.6 Phases 1-7 in order. On any failure,
// last_sync_hlc is left unadvanced so the next attempt re-examines the
// same range (spec.md §7).
func (e *Engine) SyncTable(ctx context.Context, tableName string, peer remote.DataSource, opts Options) (syncmeta.Metadata, error) {
	log := e.Log.With().Str("table", tableName).Str("direction", opts.Direction.String()).Logger()

	localTable, err := e.Storage.Table(ctx, tableName)
	if err != nil {
		return syncmeta.Metadata{}, syncerr.NewTransport(tableName, "failed to resolve local table", err)
	}

	priorMeta, err := e.Meta.Get(ctx, tableName, opts.RemoteNodeID)
	if err != nil {
		return syncmeta.Metadata{}, syncerr.NewTransport(tableName, "failed to read sync metadata", err)
	}
	lastSyncHLC := priorMeta.LastSyncHLC
	maxHLCSeen := lastSyncHLC

	// Phase 1: chunk acquisition, local and remote concurrently.
	log.Debug().Msg("acquiring local and remote chunks")
	var localChunks []chunk.Chunk
	var remoteChunks []chunk.Chunk
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cs, err := chunk.Generate(gctx, localTable, lastSyncHLC, opts.ChunkSizing)
		if err != nil {
			return fmt.Errorf("failed to generate local chunks for table %s: %w", tableName, err)
		}
		localChunks = cs
		return nil
	})
	g.Go(func() error {
		cs, err := peer.Chunks(gctx, tableName, lastSyncHLC)
		if err != nil {
			return syncerr.NewTransport(tableName, "failed to fetch remote chunks", err)
		}
		remoteChunks = cs
		return nil
	})
	if err := g.Wait(); err != nil {
		return syncmeta.Metadata{}, err
	}

	sort.Slice(localChunks, func(i, j int) bool { return hlc.Less(localChunks[i].StartHLC, localChunks[j].StartHLC) })
	sort.Slice(remoteChunks, func(i, j int) bool { return hlc.Less(remoteChunks[i].StartHLC, remoteChunks[j].StartHLC) })

	// Phase 2: alignment, building the reconciliation queue.
	queue := alignChunks(localChunks, remoteChunks, &maxHLCSeen)
	log.Debug().Int("queue_len", len(queue)).Msg("built reconciliation queue")

	// Phase 3: drain the queue sequentially, collecting compared records.
	var localRecords, remoteRecords []syncrecord.Record
	for i := 0; i < len(queue); i++ {
		item := queue[i]
		switch item.kind {
		case itemFetchRange:
			lr, rr, err := e.fetchRange(ctx, localTable, peer, tableName, item.rangeStart, item.rangeEnd)
			if err != nil {
				return syncmeta.Metadata{}, err
			}
			localRecords = append(localRecords, lr...)
			remoteRecords = append(remoteRecords, rr...)

		case itemChunkPair:
			more, fellBack, err := e.processChunkPair(ctx, localTable, peer, tableName, item.local, item.remote, opts.threshold())
			if err != nil {
				return syncmeta.Metadata{}, err
			}
			if fellBack {
				lr, rr, err := e.fetchRange(ctx, localTable, peer, tableName, item.local.StartHLC, item.local.EndHLC)
				if err != nil {
					return syncmeta.Metadata{}, err
				}
				localRecords = append(localRecords, lr...)
				remoteRecords = append(remoteRecords, rr...)
			} else {
				queue = append(queue, more...)
			}
		}
	}

	// Phase 4: merge by unique id.
	merged := make(map[string]mergedEntry)
	for _, r := range localRecords {
		maxHLCSeen = hlc.Max(maxHLCSeen, r.UpdatedAtHLC())
		e := merged[r.UniqueID()]
		e.kind = mergeLocalOnly
		e.local = r
		merged[r.UniqueID()] = e
	}
	for _, r := range remoteRecords {
		maxHLCSeen = hlc.Max(maxHLCSeen, r.UpdatedAtHLC())
		e := merged[r.UniqueID()]
		if e.local != nil {
			e.kind = mergeBoth
		} else {
			e.kind = mergeRemoteOnly
		}
		e.remote = r
		merged[r.UniqueID()] = e
	}

	// Phase 5: conflict resolution per id.
	var localOps, remoteOps []syncrecord.Operation
	for id, entry := range merged {
		res := resolve(id, entry, opts.Direction, func(corruptID string) {
			log.Error().Str("unique_id", corruptID).Msg("corruption: equal HLC and node id on distinct events")
		})
		if !res.local.IsNoOp() {
			localOps = append(localOps, res.local)
		}
		if !res.remote.IsNoOp() {
			remoteOps = append(remoteOps, res.remote)
		}
	}

	// Phase 6: apply. Local first, inside a single transaction; remote
	// only if local succeeded.
	if len(localOps) > 0 {
		if err := e.Storage.ApplyLocal(ctx, tableName, localOps); err != nil {
			return syncmeta.Metadata{}, syncerr.NewLocalApply(tableName, "failed to apply local changes", err)
		}
	}
	if len(remoteOps) > 0 {
		remoteHLC, err := peer.ApplyChanges(ctx, tableName, remoteOps, opts.LocalNodeID, maxHLCSeen)
		if err != nil {
			// Local changes, if any, have already been committed. This
			// is deliberate: last_sync_hlc stays unadvanced, so the next
			// sync re-sends them, and HLCs make that idempotent
			// (spec.md §7).
			return syncmeta.Metadata{}, syncerr.NewRemoteApply(tableName, "failed to apply remote changes", err)
		}
		maxHLCSeen = hlc.Max(maxHLCSeen, remoteHLC)
	}

	// Phase 7: advance metadata.
	newMeta := syncmeta.Metadata{TableName: tableName, PeerNodeID: opts.RemoteNodeID, LastSyncHLC: maxHLCSeen}
	if err := e.Meta.Put(ctx, newMeta); err != nil {
		return syncmeta.Metadata{}, syncerr.NewTransport(tableName, "failed to persist advanced sync metadata", err)
	}

	log.Info().Str("new_last_sync_hlc", maxHLCSeen.String()).
		Int("local_ops", len(localOps)).Int("remote_ops", len(remoteOps)).
		Msg("table sync complete")
	return newMeta, nil
}

// fetchRange fetches the local and remote record sets for [start, end]
// concurrently (spec.md §5 "race two futures").
func (e *Engine) fetchRange(ctx context.Context, localTable syncrecord.Table, peer remote.DataSource, tableName string, start, end hlc.HLC) ([]syncrecord.Record, []syncrecord.Record, error) {
	var localRecords, remoteRecords []syncrecord.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rs, err := localTable.RecordsInRange(gctx, start, end)
		if err != nil {
			return syncerr.NewTransport(tableName, "failed to fetch local records in range", err)
		}
		localRecords = rs
		return nil
	})
	g.Go(func() error {
		rs, err := peer.RecordsInRange(gctx, tableName, start, end)
		if err != nil {
			return syncerr.NewTransport(tableName, "failed to fetch remote records in range", err)
		}
		remoteRecords = rs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return localRecords, remoteRecords, nil
}

// processChunkPair implements spec.md §4.6 Phase 3's ChunkPair handling.
// It returns newly queued items when breakdown succeeds, or
// fellBack=true when the caller should fall back to a FetchRange over
// the pair's span (degenerate pair, small pair, or a breakdown failure
// on either side).
func (e *Engine) processChunkPair(ctx context.Context, localTable syncrecord.Table, peer remote.DataSource, tableName string, local, remoteChunk chunk.Chunk, threshold int) ([]queueItem, bool, error) {
	maxCount := local.Count
	if remoteChunk.Count > maxCount {
		maxCount = remoteChunk.Count
	}
	if maxCount == 0 {
		// Degenerate: hashes differ despite both sides reporting zero
		// records, which can only mean a stale snapshot somewhere.
		return nil, true, nil
	}
	if maxCount <= threshold {
		return nil, true, nil
	}

	var localSubs []chunk.SubChunk
	var remoteSubs []chunk.SubChunk
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		subs, err := chunk.Break(gctx, localTable, local, threshold)
		if err != nil {
			return err
		}
		localSubs = subs
		return nil
	})
	g.Go(func() error {
		subs, err := peer.SubChunks(gctx, tableName, remoteChunk, threshold)
		if err != nil {
			return err
		}
		remoteSubs = subs
		return nil
	})
	if err := g.Wait(); err != nil {
		e.Log.Warn().Err(err).Str("table", tableName).Msg("chunk breakdown failed, falling back to direct fetch")
		return nil, true, nil
	}

	localAsChunks := make([]chunk.Chunk, len(localSubs))
	for i, s := range localSubs {
		localAsChunks[i] = s.Chunk
	}
	remoteAsChunks := make([]chunk.Chunk, len(remoteSubs))
	for i, s := range remoteSubs {
		remoteAsChunks[i] = s.Chunk
	}
	sort.Slice(localAsChunks, func(i, j int) bool { return hlc.Less(localAsChunks[i].StartHLC, localAsChunks[j].StartHLC) })
	sort.Slice(remoteAsChunks, func(i, j int) bool { return hlc.Less(remoteAsChunks[i].StartHLC, remoteAsChunks[j].StartHLC) })

	var discard hlc.HLC
	newItems := alignChunks(localAsChunks, remoteAsChunks, &discard)
	return newItems, false, nil
}
