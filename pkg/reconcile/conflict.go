package reconcile

import (
	"strings"

	"github.com/mediasync/libsync/pkg/hlc"
	"github.com/mediasync/libsync/pkg/syncrecord"
)

// compareByHLC implements the last-writer-wins comparator of spec.md
// §4.6 Phase 5: -1 if a should win over b, 1 if b should win, 0 if they
// are the same event (equal HLC and equal node id — a corruption case
// the caller must handle separately, not a legitimate tie).
//
// Grounded on the teacher's pkg/honeytag/crdt.go CompareNameRecords,
// whose three-rule shape (higher version, older timestamp, smaller
// owner id) is generalized here to a later-(timestamp,version)-wins
// rule plus a lexicographic node-id tie-break (smaller wins), since
// spec.md's conflict rule has only two rules rather than honeytag's
// three. hlc.Compare is not reused directly here: its own node-id
// tie-break exists to give HLC.String() a strict total order, not to
// express which writer should win a conflict, and the two directions
// disagree.
func compareByHLC(aHLC, bHLC hlc.HLC) int {
	if aHLC.TimestampMS != bHLC.TimestampMS {
		if aHLC.TimestampMS > bHLC.TimestampMS {
			return -1
		}
		return 1
	}
	if aHLC.Version != bHLC.Version {
		if aHLC.Version > bHLC.Version {
			return -1
		}
		return 1
	}
	return strings.Compare(aHLC.NodeID.String(), bHLC.NodeID.String())
}

// mergeKind is which bucket a unique id fell into after Phase 4's
// by-id merge of the comparison set.
type mergeKind int

const (
	mergeLocalOnly mergeKind = iota
	mergeRemoteOnly
	mergeBoth
)

type mergedEntry struct {
	kind   mergeKind
	local  syncrecord.Record
	remote syncrecord.Record
}

// resolution is the pair of operations conflict resolution emits for one
// unique id: what, if anything, the local side should apply, and what,
// if anything, the remote side should apply.
type resolution struct {
	local  syncrecord.Operation
	remote syncrecord.Operation
}

// resolve implements spec.md §4.6 Phase 5 for a single merged entry.
func resolve(id string, entry mergedEntry, dir Direction, onCorruption func(id string)) resolution {
	switch entry.kind {
	case mergeLocalOnly:
		if dir.allowsPush() {
			return resolution{
				local:  syncrecord.Operation{Kind: syncrecord.OpNoOp, UniqueID: id},
				remote: syncrecord.Operation{Kind: syncrecord.OpInsertRemote, UniqueID: id, Record: entry.local, Fk: entry.local.FkPayload()},
			}
		}
		return noop(id)

	case mergeRemoteOnly:
		if dir.allowsPull() {
			return resolution{
				local:  syncrecord.Operation{Kind: syncrecord.OpInsertLocal, UniqueID: id, Record: entry.remote, Fk: entry.remote.FkPayload()},
				remote: syncrecord.Operation{Kind: syncrecord.OpNoOp, UniqueID: id},
			}
		}
		return noop(id)

	case mergeBoth:
		localHLC := entry.local.UpdatedAtHLC()
		remoteHLC := entry.remote.UpdatedAtHLC()

		if hlc.Equal(localHLC, remoteHLC) && localHLC.NodeID == remoteHLC.NodeID {
			// Two distinct events on the same node sharing an HLC: the
			// clock contract forbids this. Treat as NoOp on both sides
			// rather than propagate a fatal error for the whole table
			// sync (spec.md §4.6 Phase 5, §7).
			onCorruption(id)
			return noop(id)
		}

		if compareByHLC(localHLC, remoteHLC) < 0 {
			return winLocal(id, entry, dir)
		}
		return winRemote(id, entry, dir)
	}
	return noop(id)
}

func winLocal(id string, entry mergedEntry, dir Direction) resolution {
	r := resolution{local: syncrecord.Operation{Kind: syncrecord.OpNoOp, UniqueID: id}}
	if dir.allowsPush() {
		r.remote = syncrecord.Operation{Kind: syncrecord.OpUpdateRemote, UniqueID: id, Record: entry.local, Fk: entry.local.FkPayload()}
	} else {
		r.remote = syncrecord.Operation{Kind: syncrecord.OpNoOp, UniqueID: id}
	}
	return r
}

func winRemote(id string, entry mergedEntry, dir Direction) resolution {
	r := resolution{remote: syncrecord.Operation{Kind: syncrecord.OpNoOp, UniqueID: id}}
	if dir.allowsPull() {
		r.local = syncrecord.Operation{Kind: syncrecord.OpUpdateLocal, UniqueID: id, Record: entry.remote, Fk: entry.remote.FkPayload()}
	} else {
		r.local = syncrecord.Operation{Kind: syncrecord.OpNoOp, UniqueID: id}
	}
	return r
}

func noop(id string) resolution {
	return resolution{
		local:  syncrecord.Operation{Kind: syncrecord.OpNoOp, UniqueID: id},
		remote: syncrecord.Operation{Kind: syncrecord.OpNoOp, UniqueID: id},
	}
}
