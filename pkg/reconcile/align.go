package reconcile

import (
	"github.com/mediasync/libsync/pkg/chunk"
	"github.com/mediasync/libsync/pkg/hlc"
)

// alignChunks implements spec.md §4.6 Phase 2: a two-pointer walk over
// two HLC-ascending, non-overlapping chunk lists, producing the FIFO the
// engine drains in Phase 3. Both slices must already be sorted by
// StartHLC; maxHLCSeen is updated in place with every chunk boundary
// observed, matching chunks included, so a sync that touches no
// differing data still advances last_sync_hlc to the newest chunk seen.
func alignChunks(local, remote []chunk.Chunk, maxHLCSeen *hlc.HLC) []queueItem {
	var queue []queueItem
	i, j := 0, 0

	for i < len(local) && j < len(remote) {
		l, r := local[i], remote[j]

		switch {
		case hlc.Less(l.EndHLC, r.StartHLC):
			// Local chunk entirely precedes the remote chunk: the peer
			// has nothing here yet, so fetch the range directly rather
			// than diff against an empty remote chunk.
			queue = append(queue, newFetchRange(l.StartHLC, l.EndHLC))
			*maxHLCSeen = hlc.Max(*maxHLCSeen, l.EndHLC)
			i++

		case hlc.Less(r.EndHLC, l.StartHLC):
			queue = append(queue, newFetchRange(r.StartHLC, r.EndHLC))
			*maxHLCSeen = hlc.Max(*maxHLCSeen, r.EndHLC)
			j++

		default:
			// Overlapping ranges: compare hashes directly when the
			// bounds coincide exactly, otherwise widen to a FetchRange
			// over the union so neither side's boundary is missed.
			if l.StartHLC == r.StartHLC && l.EndHLC == r.EndHLC {
				if l.ChunkHash != r.ChunkHash {
					queue = append(queue, newChunkPair(l, r))
				}
				*maxHLCSeen = hlc.Max(*maxHLCSeen, l.EndHLC)
				i++
				j++
				continue
			}

			start := l.StartHLC
			if hlc.Less(r.StartHLC, start) {
				start = r.StartHLC
			}
			end := l.EndHLC
			if hlc.Less(end, r.EndHLC) {
				end = r.EndHLC
			}
			queue = append(queue, newFetchRange(start, end))
			*maxHLCSeen = hlc.Max(*maxHLCSeen, end)
			i++
			j++
		}
	}

	for ; i < len(local); i++ {
		queue = append(queue, newFetchRange(local[i].StartHLC, local[i].EndHLC))
		*maxHLCSeen = hlc.Max(*maxHLCSeen, local[i].EndHLC)
	}
	for ; j < len(remote); j++ {
		queue = append(queue, newFetchRange(remote[j].StartHLC, remote[j].EndHLC))
		*maxHLCSeen = hlc.Max(*maxHLCSeen, remote[j].EndHLC)
	}

	return queue
}
