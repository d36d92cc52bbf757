package chunk

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mediasync/libsync/pkg/hlc"
	"github.com/mediasync/libsync/pkg/syncrecord"
)

func seedTable(t *testing.T, n int) *syncrecord.MemoryTable {
	t.Helper()
	table := syncrecord.NewMemoryTable("tracks")
	node := uuid.New()
	for i := 0; i < n; i++ {
		id := uuid.New().String()
		h := hlc.HLC{TimestampMS: uint64(1000 + i), Version: 0, NodeID: node}
		table.Put(&syncrecord.MemoryRecord{
			ID:        id,
			UpdatedAt: h,
			CreatedAt: h,
			Content:   map[string]interface{}{"n": i},
		})
	}
	return table
}

func TestGenerateCoversEveryRecordExactlyOnce(t *testing.T) {
	table := seedTable(t, 37)
	chunks, err := Generate(context.Background(), table, hlc.Zero, Options{MinSize: 5, MaxSize: 10, Alpha: 0.1})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	total := 0
	for i, c := range chunks {
		total += c.Count
		require.LessOrEqual(t, c.Count, 10)
		if i > 0 {
			require.False(t, hlc.Less(c.StartHLC, chunks[i-1].EndHLC), "chunks must be contiguous and non-overlapping")
		}
	}
	require.Equal(t, 37, total)
}

func TestGenerateOnEmptyTableReturnsNoChunks(t *testing.T) {
	table := syncrecord.NewMemoryTable("tracks")
	chunks, err := Generate(context.Background(), table, hlc.Zero, Balanced)
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestGenerateRespectsAfterCursor(t *testing.T) {
	table := seedTable(t, 10)
	all, err := Generate(context.Background(), table, hlc.Zero, Options{MinSize: 100, MaxSize: 100, Alpha: 0})
	require.NoError(t, err)
	require.Len(t, all, 1)

	after := all[0].StartHLC
	rest, err := Generate(context.Background(), table, after, Options{MinSize: 100, MaxSize: 100, Alpha: 0})
	require.NoError(t, err)
	total := 0
	for _, c := range rest {
		total += c.Count
	}
	require.Equal(t, 9, total)
}

func TestBreakVerifiesParentAgainstLiveData(t *testing.T) {
	table := seedTable(t, 20)
	chunks, err := Generate(context.Background(), table, hlc.Zero, Options{MinSize: 20, MaxSize: 20, Alpha: 0})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	subs, err := Break(context.Background(), table, chunks[0], 5)
	require.NoError(t, err)
	require.Len(t, subs, 4)

	total := 0
	for _, s := range subs {
		total += s.Chunk.Count
		require.Equal(t, chunks[0].StartHLC, s.ParentStartHLC)
		require.Equal(t, chunks[0].ChunkHash, s.ParentHash)
	}
	require.Equal(t, 20, total)
}

func TestBreakFailsOnStaleParent(t *testing.T) {
	table := seedTable(t, 10)
	chunks, err := Generate(context.Background(), table, hlc.Zero, Options{MinSize: 10, MaxSize: 10, Alpha: 0})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	// Mutate the table after the chunk snapshot was taken: the live data
	// no longer matches the parent's recorded count and hash.
	records, err := table.RecordsInRange(context.Background(), chunks[0].StartHLC, chunks[0].EndHLC)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	table.Delete(records[0].UniqueID())

	_, err = Break(context.Background(), table, chunks[0], 3)
	require.Error(t, err)
}

func TestGenerateTerminatesOnNonEmptyTableEvenWithTinyWindow(t *testing.T) {
	table := seedTable(t, 5)
	chunks, err := Generate(context.Background(), table, hlc.Zero, Options{MinSize: 1, MaxSize: 1, Alpha: 0})
	require.NoError(t, err)
	require.Len(t, chunks, 5)
}
