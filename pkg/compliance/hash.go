package compliance

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaxHashSize is the maximum number of bytes hashed from a value or context window.
const MaxHashSize = 1024 * 1024 // 1MB

// HashValue returns the hex-encoded SHA-256 of content, hashing at most
// MaxHashSize bytes. Detectors use it to produce value_hash and context_hash
// so the raw text never reaches the store. Empty input hashes to "".
func HashValue(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	if len(content) > MaxHashSize {
		content = content[:MaxHashSize]
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashString is HashValue for strings.
func HashString(s string) string {
	return HashValue([]byte(s))
}

// ValidHash reports whether s looks like a hex-encoded SHA-256 digest.
func ValidHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}

// NormalizeFramework canonicalizes a compliance framework tag: lower case,
// with spaces and hyphens folded to underscores ("PCI-DSS" -> "pci_dss").
func NormalizeFramework(s string) string {
	return normalizeTag(s)
}

// NormalizePIIType canonicalizes a PII type tag the same way as frameworks.
func NormalizePIIType(s string) string {
	return normalizeTag(s)
}

func normalizeTag(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// NormalizeFrameworks canonicalizes and de-duplicates a framework list,
// preserving first-seen order and dropping empty tags.
func NormalizeFrameworks(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, f := range in {
		n := NormalizeFramework(f)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
