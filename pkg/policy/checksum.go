package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON encodes the artifact with sorted object keys and without its
// checksum field.
func (a *Artifact) CanonicalJSON() ([]byte, error) {
	clone := *a
	clone.Checksum = ""

	raw, err := json.Marshal(&clone)
	if err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}

	// Round-trip through a generic value; encoding/json writes map keys in
	// sorted order, which gives a key-sorted document.
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to canonicalize artifact: %w", err)
	}
	return json.Marshal(generic)
}

// ComputeChecksum returns the hex-encoded SHA-256 of the canonical encoding.
func (a *Artifact) ComputeChecksum() (string, error) {
	payload, err := a.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChecksum reports whether the stored checksum matches the content.
func (a *Artifact) VerifyChecksum() (bool, error) {
	sum, err := a.ComputeChecksum()
	if err != nil {
		return false, err
	}
	return sum == a.Checksum, nil
}
