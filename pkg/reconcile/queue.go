package reconcile

import (
	"github.com/mediasync/libsync/pkg/chunk"
	"github.com/mediasync/libsync/pkg/hlc"
)

// queueItemKind discriminates the reconciliation queue's two work item
// shapes (spec.md §4.6 Phase 2/3, §9 "Reconciliation queue").
type queueItemKind int

const (
	itemFetchRange queueItemKind = iota
	itemChunkPair
)

// queueItem is one entry of the FIFO the engine drains sequentially in
// Phase 3. It is never itself processed concurrently with another item:
// only the two fetches within a single FetchRange, or the two breakdown
// calls within a single ChunkPair, run concurrently with each other.
type queueItem struct {
	kind queueItemKind

	// populated when kind == itemFetchRange
	rangeStart hlc.HLC
	rangeEnd   hlc.HLC

	// populated when kind == itemChunkPair
	local  chunk.Chunk
	remote chunk.Chunk
}

func newFetchRange(start, end hlc.HLC) queueItem {
	return queueItem{kind: itemFetchRange, rangeStart: start, rangeEnd: end}
}

func newChunkPair(local, remote chunk.Chunk) queueItem {
	return queueItem{kind: itemChunkPair, local: local, remote: remote}
}
