package canon

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeysAtEveryLevel(t *testing.T) {
	a := map[string]interface{}{
		"b": 1,
		"a": map[string]interface{}{"z": 1, "y": 2},
	}
	b := map[string]interface{}{
		"a": map[string]interface{}{"y": 2, "z": 1},
		"b": 1,
	}

	encA, err := Marshal(a)
	require.NoError(t, err)
	encB, err := Marshal(b)
	require.NoError(t, err)
	require.Equal(t, encA, encB)
	require.Equal(t, `{"a":{"y":2,"z":1},"b":1}`, string(encA))
}

func TestMarshalIntegerVsFloatFormat(t *testing.T) {
	out, err := Marshal(map[string]interface{}{"n": 3})
	require.NoError(t, err)
	require.Equal(t, `{"n":3}`, string(out))

	out, err = Marshal(map[string]interface{}{"n": 3.5})
	require.NoError(t, err)
	require.Equal(t, `{"n":3.5}`, string(out))
}

func TestIsCanonical(t *testing.T) {
	require.True(t, IsCanonical([]byte(`{"a":1,"b":2}`)))
	require.False(t, IsCanonical([]byte(`{"b":2,"a":1}`)))
	require.False(t, IsCanonical([]byte(`{"a": 1}`)))
}

func TestMustMarshalPanicsOnUnsupportedType(t *testing.T) {
	require.Panics(t, func() { MustMarshal(make(chan int)) })
}
