// Package synchash implements C3, the hash engine: BLAKE3 hashing of a
// single record's canonical projection and of an HLC-ordered run of
// record hashes into a chunk hash.
package synchash

import (
	"encoding/hex"

	"lukechampine.com/blake3"

	"github.com/mediasync/libsync/pkg/synchash/canon"
)

// EmptyChunkHash is the BLAKE3 digest of the empty byte string, the fixed
// canonical hash of a zero-record chunk (spec.md §3, §4.3).
var EmptyChunkHash = hashHex(nil)

// RecordHash computes the content hash of a record's canonical
// data_for_hashing projection: BLAKE3 over the canonical JSON bytes,
// emitted as lowercase hex.
func RecordHash(dataForHashing interface{}) (string, error) {
	data, err := canon.Marshal(dataForHashing)
	if err != nil {
		return "", err
	}
	return hashHex(data), nil
}

// ChunkHash computes the content hash of a chunk from the ordered record
// hashes it contains: BLAKE3 over the concatenation of the hex ASCII
// bytes of each record hash, in HLC-ascending order. Callers are
// responsible for supplying recordHashes already sorted by HLC; this
// function does not reorder them, so that accidental reordering upstream
// is detectable by hash mismatch rather than silently tolerated.
func ChunkHash(recordHashesHLCOrdered []string) string {
	h := blake3.New(32, nil)
	for _, rh := range recordHashesHLCOrdered {
		h.Write([]byte(rh))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func hashHex(data []byte) string {
	h := blake3.New(32, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
