// ABOUTME: Canonical fingerprinting of tool calls for idempotent dispatch.
// ABOUTME: Key-order-insensitive args hashing via re-marshaling and BLAKE2b-256.

package idempotency

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint derives a stable key for a tool call from the tenant, the
// invoker, the proof message, the tool name, and its canonicalized args.
// Two calls whose args differ only in object key order produce the same
// fingerprint.
func Fingerprint(realmID, invokerID, messageID int64, tool string, args json.RawMessage) (string, error) {
	canonical, err := CanonicalizeArgs(args)
	if err != nil {
		return "", fmt.Errorf("canonicalizing args: %w", err)
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("creating hash: %w", err)
	}

	fmt.Fprintf(h, "%d\x00%d\x00%d\x00%s\x00", realmID, invokerID, messageID, tool)
	h.Write(canonical)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// CanonicalizeArgs normalizes a JSON args document so that logically equal
// documents serialize identically. Decoding into interface values and
// re-marshaling sorts object keys recursively.
func CanonicalizeArgs(args json.RawMessage) ([]byte, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return nil, fmt.Errorf("invalid args JSON: %w", err)
	}

	canonical, err := json.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("re-encoding args: %w", err)
	}

	return canonical, nil
}
