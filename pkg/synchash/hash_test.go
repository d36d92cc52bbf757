package synchash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordHashIsDeterministicAcrossFieldOrder(t *testing.T) {
	a := map[string]interface{}{"title": "Arrival", "track": 1}
	b := map[string]interface{}{"track": 1, "title": "Arrival"}

	ha, err := RecordHash(a)
	require.NoError(t, err)
	hb, err := RecordHash(b)
	require.NoError(t, err)
	require.Equal(t, ha, hb)
}

func TestRecordHashIsSensitiveToContent(t *testing.T) {
	h1, err := RecordHash(map[string]interface{}{"title": "Arrival"})
	require.NoError(t, err)
	h2, err := RecordHash(map[string]interface{}{"title": "arrival"})
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

func TestChunkHashOrderSensitive(t *testing.T) {
	h1, err := RecordHash(map[string]interface{}{"title": "a"})
	require.NoError(t, err)
	h2, err := RecordHash(map[string]interface{}{"title": "b"})
	require.NoError(t, err)

	require.Equal(t, ChunkHash([]string{h1, h2}), ChunkHash([]string{h1, h2}))
	require.NotEqual(t, ChunkHash([]string{h1, h2}), ChunkHash([]string{h2, h1}))
}

func TestEmptyChunkHashIsStableAndDistinct(t *testing.T) {
	require.Equal(t, hashHex(nil), EmptyChunkHash)

	h, err := RecordHash(map[string]interface{}{"title": "a"})
	require.NoError(t, err)
	require.NotEqual(t, EmptyChunkHash, ChunkHash([]string{h}))
}
