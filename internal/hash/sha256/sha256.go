// Package sha256 provides the content digests used for cache keys and
// screenshot artifact names.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortLen is the digest prefix length used in artifact file names.
const ShortLen = 16

// Hasher implements camp.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Text hashes the concatenation of parts, separated by NUL bytes so that
// ("ab","c") and ("a","bc") differ.
func Text(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Short truncates a hex digest for use in file names.
func Short(digest string) string {
	if len(digest) <= ShortLen {
		return digest
	}
	return digest[:ShortLen]
}
