package main

import (
	"github.com/google/uuid"

	"github.com/mediasync/libsync/pkg/hlc"
	"github.com/mediasync/libsync/pkg/storage"
	"github.com/mediasync/libsync/pkg/syncrecord"
)

// demoTableName is the single table this daemon hosts. A real host
// application would register one syncrecord.Table per relational table
// it wants synchronized; a concrete schema is out of scope here
// (spec.md's Non-goals).
const demoTableName = "tracks"

// newDemoEngine builds a storage.Engine with demoTableName registered
// and, when seed is true, a handful of rows stamped with fresh HLCs so a
// first sync against an empty peer has something to pull.
func newDemoEngine(clock *hlc.Clock, seed bool) (*storage.MemoryEngine, map[string]syncrecord.Table) {
	engine := storage.NewMemoryEngine()
	table := syncrecord.NewMemoryTable(demoTableName)
	engine.RegisterTable(demoTableName, table, nil)

	if seed {
		for i, title := range []string{"Arrival", "Nightswim", "Low Tide"} {
			id := uuid.New().String()
			now := clock.Generate()
			table.Put(&syncrecord.MemoryRecord{
				ID:        id,
				UpdatedAt: now,
				CreatedAt: now,
				Content: map[string]interface{}{
					"title": title,
					"track": float64(i + 1),
				},
			})
		}
	}

	return engine, map[string]syncrecord.Table{demoTableName: table}
}
