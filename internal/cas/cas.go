// Package cas provides content-addressing primitives: BLAKE3 digests and
// canonical JSON serialization with stable key ordering.
package cas

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"lukechampine.com/blake3"
)

// NowMs returns the current time in milliseconds since epoch.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// Hash computes a BLAKE3-256 digest of the input.
func Hash(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// HashHex computes a BLAKE3-256 digest and returns it as a hex string.
func HashHex(data []byte) string {
	return hex.EncodeToString(Hash(data))
}

// NewHasher returns a streaming BLAKE3 hasher producing 32-byte digests.
func NewHasher() *blake3.Hasher {
	return blake3.New(32, nil)
}

// CanonicalJSON converts a value to canonical JSON: object keys sorted,
// no insignificant whitespace. Two structurally equal values always
// produce identical bytes, which makes the result safe to hash.
func CanonicalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var obj interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}

	return canonicalMarshal(obj)
}

func canonicalMarshal(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []interface{}:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(v)
	}
}

// NodeID computes the content-addressed ID for a graph node:
// blake3(kind + "\n" + canonicalJSON(payload)).
func NodeID(kind string, payload interface{}) ([]byte, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return nil, err
	}
	data := append([]byte(kind+"\n"), canonical...)
	return Hash(data), nil
}

// HexToBytes converts a hex string to bytes.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// BytesToHex converts bytes to a hex string.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}
