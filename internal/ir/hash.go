package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainComposite = "stoats/composite/v1"
	DomainRecords   = "stoats/records/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ComponentHash identifies a composite by its set of inputs.
// Input order does not matter; duplicates are kept.
func ComponentHash(inputs []SourceID) (string, error) {
	sorted := slices.Clone(inputs)
	slices.Sort(sorted)
	canonical, err := MarshalCanonical(map[string]any{"inputs": sorted})
	if err != nil {
		return "", fmt.Errorf("ComponentHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainComposite, canonical), nil
}

// RecordsHash identifies an imported file by its path-independent content
// digest, so the same file is not imported twice.
func RecordsHash(content []byte) string {
	return hashWithDomain(DomainRecords, content)
}
