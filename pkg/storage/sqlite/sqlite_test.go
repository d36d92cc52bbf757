package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediasync/libsync/pkg/hlc"
	"github.com/mediasync/libsync/pkg/syncrecord"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync.db")
	e, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestRegisterTableAndApplyInsert(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t)
	table, err := e.RegisterTable(ctx, "tracks", nil)
	require.NoError(t, err)

	rec := &syncrecord.MemoryRecord{
		ID:        "a",
		UpdatedAt: hlc.HLC{TimestampMS: 10},
		CreatedAt: hlc.HLC{TimestampMS: 10},
		Content:   map[string]interface{}{"title": "x"},
	}
	require.NoError(t, e.ApplyLocal(ctx, "tracks", []syncrecord.Operation{
		{Kind: syncrecord.OpInsertLocal, UniqueID: "a", Record: rec},
	}))

	latest, ok, err := table.LatestUpdatedAtHLC(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(10), latest.TimestampMS)

	recs, err := table.RecordsInRange(ctx, hlc.Zero, hlc.HLC{TimestampMS: 100})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "a", recs[0].UniqueID())
}

func TestRecordsAfterOrdersByHLCAndRespectsLimit(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t)
	table, err := e.RegisterTable(ctx, "tracks", nil)
	require.NoError(t, err)

	for i := uint64(1); i <= 5; i++ {
		rec := &syncrecord.MemoryRecord{
			ID:        string(rune('a' + i)),
			UpdatedAt: hlc.HLC{TimestampMS: i},
			CreatedAt: hlc.HLC{TimestampMS: i},
			Content:   map[string]interface{}{},
		}
		require.NoError(t, e.ApplyLocal(ctx, "tracks", []syncrecord.Operation{
			{Kind: syncrecord.OpInsertLocal, UniqueID: rec.ID, Record: rec},
		}))
	}

	recs, err := table.RecordsAfter(ctx, hlc.HLC{TimestampMS: 2}, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, uint64(3), recs[0].UpdatedAtHLC().TimestampMS)
	require.Equal(t, uint64(4), recs[1].UpdatedAtHLC().TimestampMS)
}

func TestApplyLocalResolvesForeignKey(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t)
	_, err := e.RegisterTable(ctx, "albums", nil)
	require.NoError(t, err)
	_, err = e.RegisterTable(ctx, "tracks", map[string]string{"album_id": "albums"})
	require.NoError(t, err)

	album := &syncrecord.MemoryRecord{ID: "album-1", UpdatedAt: hlc.HLC{TimestampMS: 1}, CreatedAt: hlc.HLC{TimestampMS: 1}, Content: map[string]interface{}{}}
	require.NoError(t, e.ApplyLocal(ctx, "albums", []syncrecord.Operation{
		{Kind: syncrecord.OpInsertLocal, UniqueID: "album-1", Record: album},
	}))

	albumSyncID := "album-1"
	track := &syncrecord.MemoryRecord{ID: "track-1", UpdatedAt: hlc.HLC{TimestampMS: 2}, CreatedAt: hlc.HLC{TimestampMS: 2}, Content: map[string]interface{}{"title": "x"}}
	require.NoError(t, e.ApplyLocal(ctx, "tracks", []syncrecord.Operation{
		{Kind: syncrecord.OpInsertLocal, UniqueID: "track-1", Record: track, Fk: syncrecord.FkPayload{"album_id": &albumSyncID}},
	}))

	tracksTable, err := e.Table(ctx, "tracks")
	require.NoError(t, err)
	recs, err := tracksTable.RecordsInRange(ctx, hlc.Zero, hlc.HLC{TimestampMS: 100})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	mr, ok := recs[0].(*syncrecord.MemoryRecord)
	require.True(t, ok)
	require.Equal(t, "1", mr.Content["album_id"])
}

func TestApplyLocalFailsOnUnresolvedForeignKey(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t)
	_, err := e.RegisterTable(ctx, "albums", nil)
	require.NoError(t, err)
	_, err = e.RegisterTable(ctx, "tracks", map[string]string{"album_id": "albums"})
	require.NoError(t, err)

	missingAlbumID := "does-not-exist"
	track := &syncrecord.MemoryRecord{ID: "track-1", UpdatedAt: hlc.HLC{TimestampMS: 1}, CreatedAt: hlc.HLC{TimestampMS: 1}, Content: map[string]interface{}{}}
	err = e.ApplyLocal(ctx, "tracks", []syncrecord.Operation{
		{Kind: syncrecord.OpInsertLocal, UniqueID: "track-1", Record: track, Fk: syncrecord.FkPayload{"album_id": &missingAlbumID}},
	})
	require.Error(t, err)

	tracksTable, err := e.Table(ctx, "tracks")
	require.NoError(t, err)
	recs, err := tracksTable.RecordsInRange(ctx, hlc.Zero, hlc.HLC{TimestampMS: 100})
	require.NoError(t, err)
	require.Empty(t, recs, "the failed transaction must not have committed any row")
}

func TestApplyLocalDeleteRemovesRow(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t)
	table, err := e.RegisterTable(ctx, "tracks", nil)
	require.NoError(t, err)

	rec := &syncrecord.MemoryRecord{ID: "a", UpdatedAt: hlc.HLC{TimestampMS: 1}, CreatedAt: hlc.HLC{TimestampMS: 1}, Content: map[string]interface{}{}}
	require.NoError(t, e.ApplyLocal(ctx, "tracks", []syncrecord.Operation{
		{Kind: syncrecord.OpInsertLocal, UniqueID: "a", Record: rec},
	}))
	require.NoError(t, e.ApplyLocal(ctx, "tracks", []syncrecord.Operation{
		{Kind: syncrecord.OpDeleteLocal, UniqueID: "a"},
	}))

	recs, err := table.RecordsInRange(ctx, hlc.Zero, hlc.HLC{TimestampMS: 100})
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestEncodeDecodeWireRoundTrips(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t)
	table, err := e.RegisterTable(ctx, "tracks", nil)
	require.NoError(t, err)

	rec := &syncrecord.MemoryRecord{ID: "a", UpdatedAt: hlc.HLC{TimestampMS: 1}, CreatedAt: hlc.HLC{TimestampMS: 1}, Content: map[string]interface{}{"title": "x"}}
	data, err := table.EncodeWire(rec)
	require.NoError(t, err)

	decoded, err := table.DecodeWire(data)
	require.NoError(t, err)
	require.Equal(t, "a", decoded.UniqueID())
}
