package hlc

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCompareTotalOrder(t *testing.T) {
	n1 := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	n2 := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	cases := []struct {
		name string
		a, b HLC
		want int
	}{
		{"timestamp decides", HLC{TimestampMS: 1, NodeID: n1}, HLC{TimestampMS: 2, NodeID: n1}, -1},
		{"version breaks timestamp tie", HLC{TimestampMS: 5, Version: 1, NodeID: n1}, HLC{TimestampMS: 5, Version: 2, NodeID: n1}, -1},
		{"node id breaks full tie", HLC{TimestampMS: 5, Version: 1, NodeID: n1}, HLC{TimestampMS: 5, Version: 1, NodeID: n2}, -1},
		{"equal", HLC{TimestampMS: 5, Version: 1, NodeID: n1}, HLC{TimestampMS: 5, Version: 1, NodeID: n1}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Compare(tc.a, tc.b))
			require.Equal(t, -tc.want, Compare(tc.b, tc.a))
		})
	}
}

func TestStringParseRoundTrip(t *testing.T) {
	h := HLC{TimestampMS: 1735689600123, Version: 7, NodeID: uuid.New()}
	parsed, err := Parse(h.String())
	require.NoError(t, err)
	require.Equal(t, h, parsed)
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"not-an-hlc",
		"123-abc",
		"123-0000000g-" + uuid.New().String(),
		"123-0001-" + uuid.New().String(), // version must be exactly 8 hex digits
		"abc-00000001-" + uuid.New().String(),
	}
	for _, s := range cases {
		_, err := Parse(s)
		require.Error(t, err, "expected parse error for %q", s)
	}
}

func TestMaxMin(t *testing.T) {
	a := HLC{TimestampMS: 1, NodeID: uuid.New()}
	b := HLC{TimestampMS: 2, NodeID: uuid.New()}
	require.Equal(t, b, Max(a, b))
	require.Equal(t, a, Min(a, b))
}

func TestJSONRoundTrip(t *testing.T) {
	h := HLC{TimestampMS: 42, Version: 3, NodeID: uuid.New()}
	data, err := h.MarshalJSON()
	require.NoError(t, err)

	var out HLC
	require.NoError(t, out.UnmarshalJSON(data))
	require.Equal(t, h, out)
}
