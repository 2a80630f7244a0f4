package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// stableHash returns the hex SHA-256 of the canonical JSON encoding of
// data. encoding/json sorts map keys, so equal maps always hash equally
// regardless of construction order.
func stableHash(data map[string]any) (string, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("decision: canonicalize hash input: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}
