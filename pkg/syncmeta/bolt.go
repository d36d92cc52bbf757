package syncmeta

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/mediasync/libsync/pkg/hlc"
)

var metadataBucket = []byte("sync_table_metadata")

// BoltStore is a durable Store backed by a single bbolt database file, so
// last_sync_hlc survives a process restart. cmd/libsyncd does not use it;
// its commands keep metadata in a syncmeta.Memory store.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if necessary) a bbolt-backed metadata
// store at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("syncmeta: open bbolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(metadataBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("syncmeta: create metadata bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the underlying database file.
func (s *BoltStore) Close() error { return s.db.Close() }

type walEntry struct {
	TableName   string  `json:"table_name"`
	PeerNodeID  string  `json:"peer_node_id"`
	LastSyncHLC hlc.HLC `json:"last_sync_hlc"`
}

// Get returns the zero-HLC Metadata when no prior sync has been recorded.
func (s *BoltStore) Get(ctx context.Context, table string, peer uuid.UUID) (Metadata, error) {
	var entry walEntry
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metadataBucket)
		data := b.Get([]byte(key(table, peer)))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("syncmeta: get %s/%s: %w", table, peer, err)
	}
	if !found {
		return Metadata{TableName: table, PeerNodeID: peer}, nil
	}
	return Metadata{TableName: entry.TableName, PeerNodeID: peer, LastSyncHLC: entry.LastSyncHLC}, nil
}

// Put durably records the new metadata.
func (s *BoltStore) Put(ctx context.Context, m Metadata) error {
	data, err := json.Marshal(walEntry{
		TableName:   m.TableName,
		PeerNodeID:  m.PeerNodeID.String(),
		LastSyncHLC: m.LastSyncHLC,
	})
	if err != nil {
		return fmt.Errorf("syncmeta: encode metadata: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(metadataBucket)
		return b.Put([]byte(key(m.TableName, m.PeerNodeID)), data)
	})
}
