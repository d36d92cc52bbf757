// Package hlc implements the Hybrid Logical Clock used to order every
// mutation the sync core reconciles: a (timestamp_ms, version, node_id)
// triple with a strict total order and a monotonic per-node generator.
package hlc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// HLC is a single hybrid logical clock value. Zero value compares less
// than any clock value issued by a real generator.
type HLC struct {
	TimestampMS uint64
	Version     uint32
	NodeID      uuid.UUID
}

// Zero is the smallest possible HLC, used as the exclusive lower bound
// when a table has never been synced with a peer.
var Zero = HLC{}

// Compare implements the lexicographic total order on
// (timestamp_ms, version, node_id). It returns -1, 0 or 1.
func Compare(a, b HLC) int {
	if a.TimestampMS != b.TimestampMS {
		if a.TimestampMS < b.TimestampMS {
			return -1
		}
		return 1
	}
	if a.Version != b.Version {
		if a.Version < b.Version {
			return -1
		}
		return 1
	}
	return strings.Compare(a.NodeID.String(), b.NodeID.String())
}

// Less reports whether a sorts strictly before b.
func Less(a, b HLC) bool { return Compare(a, b) < 0 }

// Equal reports whether a and b are the same clock value.
func Equal(a, b HLC) bool { return Compare(a, b) == 0 }

// Max returns whichever of a, b sorts later.
func Max(a, b HLC) HLC {
	if Less(a, b) {
		return b
	}
	return a
}

// Min returns whichever of a, b sorts earlier.
func Min(a, b HLC) HLC {
	if Less(a, b) {
		return a
	}
	return b
}

// String renders the canonical wire form "<ms>-<8-hex-version>-<uuid>".
func (h HLC) String() string {
	return fmt.Sprintf("%d-%08x-%s", h.TimestampMS, h.Version, h.NodeID.String())
}

// Parse decodes the canonical wire form produced by String. Parsing is
// strict: exactly three '-'-separated parts are accepted after splitting
// off the 5-part UUID, a decimal millisecond count, and an 8-hex-digit
// version.
func Parse(s string) (HLC, error) {
	// The UUID itself contains four '-' separators, so split only on the
	// first two dashes and treat the remainder as the UUID field.
	first := strings.IndexByte(s, '-')
	if first < 0 {
		return HLC{}, fmt.Errorf("hlc: malformed string %q: missing timestamp separator", s)
	}
	rest := s[first+1:]
	second := strings.IndexByte(rest, '-')
	if second < 0 {
		return HLC{}, fmt.Errorf("hlc: malformed string %q: missing version separator", s)
	}

	tsPart := s[:first]
	verPart := rest[:second]
	idPart := rest[second+1:]

	ts, err := strconv.ParseUint(tsPart, 10, 64)
	if err != nil {
		return HLC{}, fmt.Errorf("hlc: malformed timestamp %q: %w", tsPart, err)
	}
	if len(verPart) != 8 {
		return HLC{}, fmt.Errorf("hlc: malformed version %q: want 8 hex digits", verPart)
	}
	ver, err := strconv.ParseUint(verPart, 16, 32)
	if err != nil {
		return HLC{}, fmt.Errorf("hlc: malformed version %q: %w", verPart, err)
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return HLC{}, fmt.Errorf("hlc: malformed node id %q: %w", idPart, err)
	}

	return HLC{TimestampMS: ts, Version: uint32(ver), NodeID: id}, nil
}
