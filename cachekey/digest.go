package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"maps"
	"slices"
)

// Digest returns the hex SHA-256 of the canonical JSON form of v. Object
// members are hashed in name order and array order is kept, so two bags
// with the same content always digest alike.
func Digest(v any) (string, error) {
	h := sha256.New()
	if err := hashValue(h, v); err != nil {
		return "", fmt.Errorf("cachekey: digest: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashValue writes v to h. Writes to a hash.Hash never fail.
func hashValue(h hash.Hash, v any) error {
	switch val := v.(type) {
	case nil:
		h.Write([]byte("null"))
		return nil
	case map[string]any:
		return hashObject(h, slices.Sorted(maps.Keys(val)), func(k string) any { return val[k] })
	case map[string]string:
		return hashObject(h, slices.Sorted(maps.Keys(val)), func(k string) any { return val[k] })
	case []any:
		return hashArray(h, len(val), func(i int) any { return val[i] })
	case []string:
		return hashArray(h, len(val), func(i int) any { return val[i] })
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		h.Write(data)
		return nil
	}
}

func hashObject(h hash.Hash, names []string, member func(string) any) error {
	h.Write([]byte{'{'})
	for i, name := range names {
		if i > 0 {
			h.Write([]byte{','})
		}
		quoted, err := json.Marshal(name)
		if err != nil {
			return err
		}
		h.Write(quoted)
		h.Write([]byte{':'})
		if err := hashValue(h, member(name)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	h.Write([]byte{'}'})
	return nil
}

func hashArray(h hash.Hash, n int, elem func(int) any) error {
	h.Write([]byte{'['})
	for i := range n {
		if i > 0 {
			h.Write([]byte{','})
		}
		if err := hashValue(h, elem(i)); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	h.Write([]byte{']'})
	return nil
}
