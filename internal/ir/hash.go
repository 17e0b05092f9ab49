package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainManifest separates manifest hashes from any other content hash.
// The version suffix leaves room to change the algorithm.
const DomainManifest = "cogd/manifest/v1"

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns the domain-separated hash of v's canonical encoding.
func ContentHash(domain string, v IRValue) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s content: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// ManifestHash identifies a compiled module manifest. Two manifests with
// the same hash configure a module identically.
func ManifestHash(manifest IRObject) (string, error) {
	return ContentHash(DomainManifest, manifest)
}
