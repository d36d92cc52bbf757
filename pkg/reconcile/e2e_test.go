package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mediasync/libsync/pkg/chunk"
	"github.com/mediasync/libsync/pkg/hlc"
	"github.com/mediasync/libsync/pkg/remote"
	"github.com/mediasync/libsync/pkg/storage"
	"github.com/mediasync/libsync/pkg/syncmeta"
	"github.com/mediasync/libsync/pkg/syncrecord"
)

const tracksTable = "tracks"

// peer bundles one side of a sync pair: its own storage, metadata store
// and node identity, wired directly to the other side via remote.Local
// rather than a real network (matching the teacher's in-process
// integration test style).
type peer struct {
	nodeID uuid.UUID
	engine *storage.MemoryEngine
	table  *syncrecord.MemoryTable
	meta   *syncmeta.Memory
}

func newPeer() *peer {
	engine := storage.NewMemoryEngine()
	table := syncrecord.NewMemoryTable(tracksTable)
	engine.RegisterTable(tracksTable, table, nil)
	return &peer{
		nodeID: uuid.New(),
		engine: engine,
		table:  table,
		meta:   syncmeta.NewMemory(),
	}
}

func (p *peer) asRemote() *remote.Local {
	return &remote.Local{NodeID: p.nodeID, Engine: p.engine, Meta: p.meta, ChunkSizing: testChunkOptions}
}

var testChunkOptions = chunk.Options{MinSize: 2, MaxSize: 5, Alpha: 0}

func runSync(t *testing.T, local, remotePeer *peer, dir Direction) syncmeta.Metadata {
	t.Helper()
	eng := New(local.engine, local.meta, zerolog.Nop())
	result, err := eng.SyncTable(context.Background(), tracksTable, remotePeer.asRemote(), Options{
		Direction:    dir,
		ChunkSizing:  testChunkOptions,
		LocalNodeID:  local.nodeID,
		RemoteNodeID: remotePeer.nodeID,
	})
	require.NoError(t, err)
	return result
}

func putRecord(p *peer, id string, h hlc.HLC, content map[string]interface{}) {
	p.table.Put(&syncrecord.MemoryRecord{ID: id, UpdatedAt: h, CreatedAt: h, Content: content})
}

func TestS1EmptySync(t *testing.T) {
	a, b := newPeer(), newPeer()
	result := runSync(t, a, b, Bidirectional)
	require.Equal(t, hlc.Zero, result.LastSyncHLC)
	require.Equal(t, 0, a.table.Len())
	require.Equal(t, 0, b.table.Len())
}

func TestS2UnilateralInsertPulled(t *testing.T) {
	client, server := newPeer(), newPeer()
	serverHLC := hlc.HLC{TimestampMS: 1000, Version: 0, NodeID: server.nodeID}
	putRecord(server, "1", serverHLC, map[string]interface{}{"name": "x"})

	result := runSync(t, client, server, Bidirectional)

	rec, ok := client.table.Get("1")
	require.True(t, ok)
	require.Equal(t, "x", rec.Content["name"])
	require.Equal(t, serverHLC, result.LastSyncHLC)
}

func TestS3CrossInsert(t *testing.T) {
	client, server := newPeer(), newPeer()
	clientHLC := hlc.HLC{TimestampMS: 100, Version: 0, NodeID: client.nodeID}
	serverHLC := hlc.HLC{TimestampMS: 200, Version: 0, NodeID: server.nodeID}
	putRecord(client, "A", clientHLC, map[string]interface{}{"name": "A"})
	putRecord(server, "B", serverHLC, map[string]interface{}{"name": "B"})

	result := runSync(t, client, server, Bidirectional)

	_, ok := client.table.Get("A")
	require.True(t, ok)
	_, ok = client.table.Get("B")
	require.True(t, ok)
	_, ok = server.table.Get("A")
	require.True(t, ok)
	_, ok = server.table.Get("B")
	require.True(t, ok)
	require.Equal(t, serverHLC, result.LastSyncHLC)
}

func TestS4ConflictClientWinsByTime(t *testing.T) {
	client, server := newPeer(), newPeer()
	base := hlc.HLC{TimestampMS: 1, Version: 0, NodeID: server.nodeID}
	putRecord(client, "1", base, map[string]interface{}{"name": "initial"})
	putRecord(server, "1", base, map[string]interface{}{"name": "initial"})

	serverUpdate := hlc.HLC{TimestampMS: 500, Version: 0, NodeID: server.nodeID}
	putRecord(server, "1", serverUpdate, map[string]interface{}{"name": "server"})
	clientUpdate := hlc.HLC{TimestampMS: 510, Version: 0, NodeID: client.nodeID}
	putRecord(client, "1", clientUpdate, map[string]interface{}{"name": "client"})

	runSync(t, client, server, Bidirectional)

	clientRec, _ := client.table.Get("1")
	serverRec, _ := server.table.Get("1")
	require.Equal(t, "client", clientRec.Content["name"])
	require.Equal(t, "client", serverRec.Content["name"])
	require.Equal(t, client.nodeID, serverRec.UpdatedAt.NodeID)
}

func TestS5ConflictServerWinsByTime(t *testing.T) {
	client, server := newPeer(), newPeer()
	base := hlc.HLC{TimestampMS: 1, Version: 0, NodeID: server.nodeID}
	putRecord(client, "1", base, map[string]interface{}{"name": "initial"})
	putRecord(server, "1", base, map[string]interface{}{"name": "initial"})

	clientUpdate := hlc.HLC{TimestampMS: 500, Version: 0, NodeID: client.nodeID}
	putRecord(client, "1", clientUpdate, map[string]interface{}{"name": "client"})
	serverUpdate := hlc.HLC{TimestampMS: 510, Version: 0, NodeID: server.nodeID}
	putRecord(server, "1", serverUpdate, map[string]interface{}{"name": "server"})

	runSync(t, client, server, Bidirectional)

	clientRec, _ := client.table.Get("1")
	serverRec, _ := server.table.Get("1")
	require.Equal(t, "server", clientRec.Content["name"])
	require.Equal(t, "server", serverRec.Content["name"])
}

func TestS6FKRemap(t *testing.T) {
	client, server := newPeer(), newPeer()

	coverArtEngine := storage.NewMemoryEngine()
	coverArtTable := syncrecord.NewMemoryTable("cover_art")
	mediaFileTable := syncrecord.NewMemoryTable("media_files")
	coverArtEngine.RegisterTable("cover_art", coverArtTable, nil)
	coverArtEngine.RegisterTable("media_files", mediaFileTable, map[string]string{"cover_art_id": "cover_art"})
	client.engine = coverArtEngine

	serverEngine := storage.NewMemoryEngine()
	serverCoverArt := syncrecord.NewMemoryTable("cover_art")
	serverMediaFiles := syncrecord.NewMemoryTable("media_files")
	serverEngine.RegisterTable("cover_art", serverCoverArt, nil)
	serverEngine.RegisterTable("media_files", serverMediaFiles, map[string]string{"cover_art_id": "cover_art"})
	server.engine = serverEngine

	// Seed an unrelated cover_art row on the server only, so the two
	// nodes' autoincrement counters diverge before the synced row lands
	// on each side. Otherwise both engines would independently assign
	// local id 1 to the first row they ever see, making the "distinct
	// local ids" assertion below pass by coincidence rather than by
	// actually exercising FK remap.
	preExistingHLC := hlc.HLC{TimestampMS: 50, Version: 0, NodeID: server.nodeID}
	preExistingID := uuid.New().String()
	preExisting := &syncrecord.MemoryRecord{ID: preExistingID, UpdatedAt: preExistingHLC, CreatedAt: preExistingHLC, Content: map[string]interface{}{"path": "booklet.jpg"}}
	serverCoverArt.Put(preExisting)
	require.NoError(t, server.engine.ApplyLocal(context.Background(), "cover_art", []syncrecord.Operation{
		{Kind: syncrecord.OpInsertLocal, UniqueID: preExistingID, Record: preExisting},
	}))

	caHLC := hlc.HLC{TimestampMS: 100, Version: 0, NodeID: client.nodeID}
	caSyncID := uuid.New().String()
	caRecord := &syncrecord.MemoryRecord{ID: caSyncID, UpdatedAt: caHLC, CreatedAt: caHLC, Content: map[string]interface{}{"path": "cover.jpg"}}
	coverArtTable.Put(caRecord)
	// Assign the client's own local id for cover_art by applying an
	// insert through the engine so FK resolution has something to read.
	require.NoError(t, client.engine.ApplyLocal(context.Background(), "cover_art", []syncrecord.Operation{
		{Kind: syncrecord.OpInsertLocal, UniqueID: caSyncID, Record: caRecord},
	}))

	mfHLC := hlc.HLC{TimestampMS: 110, Version: 0, NodeID: client.nodeID}
	mfSyncID := uuid.New().String()
	mfRecord := &syncrecord.MemoryRecord{ID: mfSyncID, UpdatedAt: mfHLC, CreatedAt: mfHLC, Content: map[string]interface{}{"filename": "track.flac"}, Fk: syncrecord.FkPayload{"cover_art_id": &caSyncID}}
	mediaFileTable.Put(mfRecord)
	require.NoError(t, client.engine.ApplyLocal(context.Background(), "media_files", []syncrecord.Operation{
		{Kind: syncrecord.OpInsertLocal, UniqueID: mfSyncID, Record: mfRecord, Fk: mfRecord.Fk},
	}))

	eng := New(server.engine, server.meta, zerolog.Nop())
	clientRemote := client.asRemote()
	_, err := eng.SyncTable(context.Background(), "cover_art", clientRemote, Options{Direction: Bidirectional, ChunkSizing: testChunkOptions, LocalNodeID: server.nodeID, RemoteNodeID: client.nodeID})
	require.NoError(t, err)
	_, err = eng.SyncTable(context.Background(), "media_files", clientRemote, Options{Direction: Bidirectional, ChunkSizing: testChunkOptions, LocalNodeID: server.nodeID, RemoteNodeID: client.nodeID})
	require.NoError(t, err)

	serverCoverArtLocalID, ok := serverEngine.LocalID("cover_art", caSyncID)
	require.True(t, ok)
	clientCoverArtLocalID, ok := coverArtEngine.LocalID("cover_art", caSyncID)
	require.True(t, ok)

	serverMF, ok := serverMediaFiles.Get(mfSyncID)
	require.True(t, ok)
	require.Equal(t, serverCoverArtLocalID, mustAtoi(serverMF.Content["cover_art_id"].(string)))
	require.NotEqual(t, clientCoverArtLocalID, serverCoverArtLocalID, "the two nodes must assign distinct local ids for the same synced row")
}

func TestMetadataNonRegressionOnRepeatSync(t *testing.T) {
	client, server := newPeer(), newPeer()
	h := hlc.HLC{TimestampMS: 100, Version: 0, NodeID: server.nodeID}
	putRecord(server, "1", h, map[string]interface{}{"name": "x"})

	result := runSync(t, client, server, Bidirectional)
	require.Equal(t, h, result.LastSyncHLC)

	// A second sync with nothing new must not regress last_sync_hlc.
	second := runSync(t, client, server, Bidirectional)
	require.False(t, hlc.Less(second.LastSyncHLC, result.LastSyncHLC))
}

func TestDirectionGatingSuppressesDisallowedSide(t *testing.T) {
	client, server := newPeer(), newPeer()
	clientHLC := hlc.HLC{TimestampMS: 100, Version: 0, NodeID: client.nodeID}
	putRecord(client, "A", clientHLC, map[string]interface{}{"name": "A"})

	// Pull-only: the server's view of "A" must not receive it, and the
	// client-local table must remain unchanged too since there is
	// nothing to pull.
	runSync(t, client, server, Pull)
	_, ok := server.table.Get("A")
	require.False(t, ok, "push-only content must not cross in a Pull-direction sync")
}

func mustAtoi(s string) int64 {
	var n int64
	for _, r := range s {
		n = n*10 + int64(r-'0')
	}
	return n
}
