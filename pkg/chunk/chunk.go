// Package chunk implements C4: HLC-ordered variable-size chunk generation
// and verified recursive breakdown over a syncrecord.Table.
package chunk

import (
	"context"
	"fmt"
	"math"

	"github.com/mediasync/libsync/pkg/hlc"
	"github.com/mediasync/libsync/pkg/syncerr"
	"github.com/mediasync/libsync/pkg/synchash"
	"github.com/mediasync/libsync/pkg/syncrecord"
)

// Chunk is the metadata-only description of a contiguous HLC-ordered
// range of records, per spec.md §3.
type Chunk struct {
	StartHLC  hlc.HLC `json:"start_hlc"`
	EndHLC    hlc.HLC `json:"end_hlc"`
	Count     int     `json:"count"`
	ChunkHash string  `json:"chunk_hash"`
}

// SubChunk is a Chunk plus a back-reference to the parent it was broken
// down from, letting the caller detect a parent that changed mid-breakdown.
type SubChunk struct {
	Chunk          Chunk   `json:"chunk"`
	ParentStartHLC hlc.HLC `json:"parent_start_hlc"`
	ParentEndHLC   hlc.HLC `json:"parent_end_hlc"`
	ParentHash     string  `json:"parent_chunk_hash"`
}

// maxIterations bounds the chunk-generation loop so a logic error cannot
// spin forever against a pathological table (spec.md §4.4 step 6).
const maxIterations = 1_000_000

// Options configures chunk sizing. MinSize and MaxSize bound every
// generated chunk's record count (except the table's terminal chunk);
// Alpha controls how aggressively older data is merged into larger
// chunks.
type Options struct {
	MinSize int
	MaxSize int
	Alpha   float64
}

// Preset sizing policies (spec.md §4.4, §6). These differ only in
// (min, max, alpha): high-frequency mobile favors small, fine-grained
// chunks; append-optimized backends and initial sync favor large ones.
var (
	HighFrequencyMobile    = Options{MinSize: 10, MaxSize: 200, Alpha: 0.5}
	AppendOptimizedBackend = Options{MinSize: 100, MaxSize: 5000, Alpha: 0.05}
	Balanced               = Options{MinSize: 50, MaxSize: 1000, Alpha: 0.2}
	InitialSyncOptimized   = Options{MinSize: 500, MaxSize: 20000, Alpha: 0.01}
)

// window computes the exponential-decay chunk size for a candidate chunk
// whose first record has HLC timestamp t, given the table's latest
// updated_at_hlc timestamp latestTS (spec.md §4.4).
func (o Options) window(t, latestTS uint64) int {
	var ageDays float64
	if latestTS > t {
		ageDays = math.Ceil(float64(latestTS-t) / 86_400_000)
	}
	desired := float64(o.MinSize) * math.Pow(1+o.Alpha, ageDays)
	if desired >= float64(o.MaxSize) {
		return o.MaxSize
	}
	size := int(math.Round(desired))
	if size < o.MinSize {
		size = o.MinSize
	}
	if size > o.MaxSize {
		size = o.MaxSize
	}
	return size
}

// Generate implements generate_data_chunks (spec.md §4.4): it walks
// table in HLC-ascending order starting strictly after 'after', producing
// chunks whose size is chosen by the exponential-decay window policy.
func Generate(ctx context.Context, table syncrecord.Table, after hlc.HLC, opts Options) ([]Chunk, error) {
	latest, ok, err := table.LatestUpdatedAtHLC(ctx)
	if err != nil {
		return nil, syncerr.NewTransport(table.Name(), "failed to read latest updated_at_hlc", err)
	}
	if !ok {
		return nil, nil
	}

	var chunks []Chunk
	cursor := after

	for i := 0; i < maxIterations; i++ {
		window := opts.window(cursor.TimestampMS, latest.TimestampMS)

		batch, err := table.RecordsAfter(ctx, cursor, window)
		if err != nil {
			return nil, syncerr.NewTransport(table.Name(), "failed to fetch records for chunk generation", err)
		}
		if len(batch) == 0 {
			return chunks, nil
		}

		c, err := buildChunk(batch)
		if err != nil {
			return nil, syncerr.NewDataInconsistency(table.Name(), "failed to hash record batch", err)
		}
		chunks = append(chunks, c)
		cursor = c.EndHLC
	}

	return nil, syncerr.NewDataInconsistency(table.Name(),
		fmt.Sprintf("chunk generation did not terminate after %d iterations", maxIterations), nil)
}

// Break implements break_data_chunk (spec.md §4.4): it re-fetches the
// live records spanned by parent, verifies the live data still matches
// parent's count and hash, and slices the verified records into
// sub_chunk_size groups.
func Break(ctx context.Context, table syncrecord.Table, parent Chunk, subChunkSize int) ([]SubChunk, error) {
	if subChunkSize <= 0 {
		return nil, syncerr.NewMalformedInput(table.Name(), "sub_chunk_size must be positive", nil)
	}

	if parent.Count == 0 {
		if parent.ChunkHash != synchash.EmptyChunkHash {
			return nil, syncerr.NewMalformedInput(table.Name(), "empty parent chunk must carry the canonical empty-chunk hash", nil)
		}
		return nil, nil
	}

	if hlc.Less(parent.EndHLC, parent.StartHLC) {
		return nil, syncerr.NewMalformedInput(table.Name(), "parent chunk has start_hlc after end_hlc with nonzero count", nil)
	}

	records, err := table.RecordsInRange(ctx, parent.StartHLC, parent.EndHLC)
	if err != nil {
		return nil, syncerr.NewTransport(table.Name(), "failed to fetch records for chunk breakdown", err)
	}

	if len(records) != parent.Count {
		return nil, syncerr.NewDataInconsistency(table.Name(),
			fmt.Sprintf("data inconsistency: parent chunk count %d does not match live record count %d", parent.Count, len(records)), nil)
	}

	recomputed, err := buildChunk(records)
	if err != nil {
		return nil, syncerr.NewDataInconsistency(table.Name(), "failed to hash live records during breakdown", err)
	}
	if recomputed.ChunkHash != parent.ChunkHash {
		return nil, syncerr.NewDataInconsistency(table.Name(),
			"data inconsistency: parent chunk hash does not match live data, parent snapshot is stale", nil)
	}

	var subChunks []SubChunk
	for start := 0; start < len(records); start += subChunkSize {
		end := start + subChunkSize
		if end > len(records) {
			end = len(records)
		}
		group := records[start:end]
		groupChunk, err := buildChunk(group)
		if err != nil {
			return nil, syncerr.NewDataInconsistency(table.Name(), "failed to hash sub-chunk group", err)
		}
		subChunks = append(subChunks, SubChunk{
			Chunk:          groupChunk,
			ParentStartHLC: parent.StartHLC,
			ParentEndHLC:   parent.EndHLC,
			ParentHash:     parent.ChunkHash,
		})
	}

	return subChunks, nil
}

// buildChunk hashes an HLC-ascending, non-empty record batch into a
// Chunk. Callers must guarantee the batch is already HLC-ordered; this
// function does not re-sort it, so accidental upstream reordering is
// caught as a hash mismatch rather than silently accepted.
func buildChunk(batch []syncrecord.Record) (Chunk, error) {
	if len(batch) == 0 {
		return Chunk{ChunkHash: synchash.EmptyChunkHash}, nil
	}

	hashes := make([]string, len(batch))
	for i, rec := range batch {
		data, err := rec.DataForHashing()
		if err != nil {
			return Chunk{}, fmt.Errorf("record %s: %w", rec.UniqueID(), err)
		}
		h, err := synchash.RecordHash(data)
		if err != nil {
			return Chunk{}, fmt.Errorf("record %s: %w", rec.UniqueID(), err)
		}
		hashes[i] = h
	}

	return Chunk{
		StartHLC:  batch[0].UpdatedAtHLC(),
		EndHLC:    batch[len(batch)-1].UpdatedAtHLC(),
		Count:     len(batch),
		ChunkHash: synchash.ChunkHash(hashes),
	}, nil
}
