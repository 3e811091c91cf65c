package cache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// keyPrefix namespaces cache entries in shared backends.
const keyPrefix = "plogic:"

// DeriveKey computes the content address for one operation call: a
// blake2b-128 digest over the canonical JSON serialization of the identity
// map, with the operation name folded in under "__op__". encoding/json
// marshals map keys in sorted order, so equivalent-but-differently-ordered
// inputs and restarts produce the same key.
func DeriveKey(op string, identity map[string]any) (string, error) {
	canonical := make(map[string]any, len(identity)+1)
	for k, v := range identity {
		canonical[k] = v
	}
	canonical["__op__"] = op

	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize cache identity: %w", err)
	}
	h, err := blake2b.New(16, nil)
	if err != nil {
		return "", fmt.Errorf("failed to initialize digest: %w", err)
	}
	h.Write(data)
	return keyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}
