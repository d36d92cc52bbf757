// Package canon provides canonical JSON encoding: deterministic sorted
// object keys and a fixed floating-point format, so that two records with
// identical content always hash identically regardless of struct field
// order or map iteration order. This is the JSON analogue of the
// teacher's cborcanon package, re-targeted at JSON because spec.md §4.2/§6
// fix the hash and wire format as JSON rather than CBOR.
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Marshal encodes v into canonical JSON: object keys are sorted
// lexicographically at every nesting level and floats are rendered with
// a fixed format: integers that fit in an int64 in plain decimal, any
// other number in strconv's shortest round-trip 'g' form, which switches
// to exponent notation below 1e-4 and at or above 1e6 (1234567.5 becomes
// 1.2345675e+06).
func Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal: %w", err)
	}
	return CanonicalBytes(data)
}

// MustMarshal is Marshal but panics on error, for call sites that have
// already validated v is JSON-serializable (mirrors the teacher's
// MarshalToBytes convenience wrapper).
func MustMarshal(v interface{}) []byte {
	data, err := Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("canon: must-marshal failed: %v", err))
	}
	return data
}

// CanonicalBytes re-serializes arbitrary JSON bytes into canonical form:
// decode into a generic value, then re-encode with sorted keys.
func CanonicalBytes(data []byte) ([]byte, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canon: invalid JSON: %w", err)
	}
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsCanonical reports whether data is already in canonical form.
func IsCanonical(data []byte) bool {
	canonical, err := CanonicalBytes(data)
	if err != nil {
		return false
	}
	return bytes.Equal(bytes.TrimSpace(data), canonical)
}

func encodeValue(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		return encodeNumber(buf, val)
	case string:
		encoded, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(encoded)
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyBytes)
			buf.WriteByte(':')
			if err := encodeValue(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canon: unsupported value type %T", v)
	}
	return nil
}

// encodeNumber renders a JSON number in a fixed, deterministic format:
// integers without a decimal point, non-integers with Go's shortest
// round-trip representation. This guarantees two encoders given the same
// float64 always emit the same bytes.
func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	if i, err := n.Int64(); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("canon: invalid number %q: %w", n.String(), err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canon: non-finite number %v not representable in canonical JSON", f)
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}
