// Package syncmeta persists SyncTableMetadata: the highest HLC known to
// have been reconciled with a given peer, for a given table (spec.md §3,
// §6). Keyed by (table_name, peer_node_id).
package syncmeta

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mediasync/libsync/pkg/hlc"
)

// Metadata mirrors spec.md's SyncTableMetadata.
type Metadata struct {
	TableName   string
	PeerNodeID  uuid.UUID
	LastSyncHLC hlc.HLC
}

// Store is the persistence contract the reconciliation engine reads and
// advances at the end of every successful sync (spec.md §4.6 Phase 7).
type Store interface {
	Get(ctx context.Context, table string, peer uuid.UUID) (Metadata, error)
	Put(ctx context.Context, m Metadata) error
}

func key(table string, peer uuid.UUID) string {
	return fmt.Sprintf("%s\x00%s", table, peer.String())
}

// Memory is an in-process Store, used by tests and by single-process
// demos where durability across restarts is not required.
type Memory struct {
	mu sync.RWMutex
	m  map[string]Metadata
}

// NewMemory creates an empty in-memory metadata store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]Metadata)}
}

// Get returns the zero-HLC Metadata when no prior sync has been recorded,
// matching "never synced" rather than treating it as an error.
func (s *Memory) Get(ctx context.Context, table string, peer uuid.UUID) (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.m[key(table, peer)]; ok {
		return m, nil
	}
	return Metadata{TableName: table, PeerNodeID: peer}, nil
}

// Put records the new metadata. Overwrites any prior value for the same
// (table, peer) pair; the reconciliation engine only calls this with a
// LastSyncHLC that is >= the previous value (spec.md §8 invariant 10).
func (s *Memory) Put(ctx context.Context, m Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key(m.TableName, m.PeerNodeID)] = m
	return nil
}
