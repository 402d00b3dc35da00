package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows future algorithm migration without id collisions.
const (
	DomainPlanItem   = "rosie/plan-item/v1"
	DomainPlan       = "rosie/plan/v1"
	DomainContent    = "rosie/content/v1"
	DomainCheckpoint = "rosie/checkpoint/v1"
)

// HashWithDomain computes SHA-256 over domain + 0x00 + data.
// The null separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashValue canonically marshals v and hashes it under the given domain.
func HashValue(domain string, v Value) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return HashWithDomain(domain, b), nil
}

// MustHashValue is like HashValue but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHashValue(domain string, v Value) string {
	id, err := HashValue(domain, v)
	if err != nil {
		panic(err)
	}
	return id
}

// FingerprintFile computes the content fingerprint of a file: SHA-256 over
// the file bytes under the content domain. The fingerprint identifies content
// independent of path, so identical bytes at different paths share one key.
func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	h.Write([]byte(DomainContent))
	h.Write([]byte{0x00})
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
