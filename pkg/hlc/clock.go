package hlc

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// nowFunc is overridden in tests to drive the backward-clock-step and
// counter-overflow paths deterministically.
var nowFunc = func() uint64 { return uint64(time.Now().UnixMilli()) }

// Clock issues monotonically increasing HLCs for a single node. All state
// is protected by a single mutex; per spec.md §5 this is the only
// non-suspending critical section in the whole sync core.
type Clock struct {
	mu     sync.Mutex
	nodeID uuid.UUID
	last   HLC
}

// New creates a Clock for the given node, initialized at the zero HLC.
func New(nodeID uuid.UUID) *Clock {
	return &Clock{nodeID: nodeID}
}

// NodeID returns the identity stamped on every HLC this clock issues.
func (c *Clock) NodeID() uuid.UUID { return c.nodeID }

// Generate produces the next HLC for this node, per spec.md §4.1:
//
//   - now > last.ts:  (now, 0, self)
//   - now == last.ts: (now, last.ver+1, self), overflow is fatal
//   - now < last.ts:  (last.ts, last.ver+1, self), or on overflow
//     (last.ts+1, 0, self)
//
// Generate never blocks on I/O; it holds the mutex only across a wall
// clock read and an arithmetic comparison.
func (c *Clock) Generate() HLC {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := nowFunc()

	var next HLC
	switch {
	case now > c.last.TimestampMS:
		next = HLC{TimestampMS: now, Version: 0, NodeID: c.nodeID}
	case now == c.last.TimestampMS:
		if c.last.Version == ^uint32(0) {
			panic(fmt.Sprintf("hlc: version counter overflow at timestamp %d on node %s: impossible call rate or logic error", now, c.nodeID))
		}
		next = HLC{TimestampMS: now, Version: c.last.Version + 1, NodeID: c.nodeID}
	default: // now < c.last.TimestampMS: backward clock step
		if c.last.Version == ^uint32(0) {
			next = HLC{TimestampMS: c.last.TimestampMS + 1, Version: 0, NodeID: c.nodeID}
		} else {
			next = HLC{TimestampMS: c.last.TimestampMS, Version: c.last.Version + 1, NodeID: c.nodeID}
		}
	}

	c.last = next
	return next
}

// Last returns the most recently issued HLC without generating a new one.
func (c *Clock) Last() HLC {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Observe folds an externally-seen HLC (e.g. from a remote peer) into
// this clock's last-issued value so that the next Generate call is
// guaranteed to sort after it, without stamping the peer's node id. This
// is the standard HLC "receive" rule: only the physical/logical
// components are adopted, never the foreign node id.
func (c *Clock) Observe(seen HLC) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seen.TimestampMS > c.last.TimestampMS {
		c.last = HLC{TimestampMS: seen.TimestampMS, Version: seen.Version, NodeID: c.nodeID}
	} else if seen.TimestampMS == c.last.TimestampMS && seen.Version > c.last.Version {
		c.last = HLC{TimestampMS: seen.TimestampMS, Version: seen.Version, NodeID: c.nodeID}
	}
}
