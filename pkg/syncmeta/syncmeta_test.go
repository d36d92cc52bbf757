package syncmeta

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mediasync/libsync/pkg/hlc"
)

func TestMemoryGetUnknownReturnsZeroHLC(t *testing.T) {
	s := NewMemory()
	m, err := s.Get(context.Background(), "tracks", uuid.New())
	require.NoError(t, err)
	require.Equal(t, hlc.HLC{}, m.LastSyncHLC)
}

func TestMemoryPutThenGetRoundTrips(t *testing.T) {
	s := NewMemory()
	peer := uuid.New()
	h := hlc.HLC{TimestampMS: 100, Version: 1, NodeID: peer}

	require.NoError(t, s.Put(context.Background(), Metadata{TableName: "tracks", PeerNodeID: peer, LastSyncHLC: h}))

	m, err := s.Get(context.Background(), "tracks", peer)
	require.NoError(t, err)
	require.Equal(t, h, m.LastSyncHLC)
}

func TestMemoryKeysArePerTableAndPerPeer(t *testing.T) {
	s := NewMemory()
	peerA, peerB := uuid.New(), uuid.New()
	hA := hlc.HLC{TimestampMS: 1}
	hB := hlc.HLC{TimestampMS: 2}

	require.NoError(t, s.Put(context.Background(), Metadata{TableName: "tracks", PeerNodeID: peerA, LastSyncHLC: hA}))
	require.NoError(t, s.Put(context.Background(), Metadata{TableName: "tracks", PeerNodeID: peerB, LastSyncHLC: hB}))

	mA, _ := s.Get(context.Background(), "tracks", peerA)
	mB, _ := s.Get(context.Background(), "tracks", peerB)
	require.Equal(t, hA, mA.LastSyncHLC)
	require.Equal(t, hB, mB.LastSyncHLC)
}

func TestBoltStoreRoundTripsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "meta.db")
	peer := uuid.New()
	h := hlc.HLC{TimestampMS: 500, Version: 2, NodeID: peer}

	store, err := OpenBoltStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), Metadata{TableName: "albums", PeerNodeID: peer, LastSyncHLC: h}))
	require.NoError(t, store.Close())

	reopened, err := OpenBoltStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	m, err := reopened.Get(context.Background(), "albums", peer)
	require.NoError(t, err)
	require.Equal(t, h, m.LastSyncHLC)
}

func TestBoltStoreGetUnknownReturnsZeroHLC(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "meta.db")
	store, err := OpenBoltStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	m, err := store.Get(context.Background(), "albums", uuid.New())
	require.NoError(t, err)
	require.Equal(t, hlc.HLC{}, m.LastSyncHLC)
}
