// Package digest computes the content hash used as the image cache key.
package digest

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Blake3Hasher hashes normalized raster bytes with BLAKE3
type Blake3Hasher struct{}

// NewBlake3Hasher creates a new BLAKE3 hasher
func NewBlake3Hasher() *Blake3Hasher {
	return &Blake3Hasher{}
}

// Digest returns the hex-encoded BLAKE3-256 digest of data
func (h *Blake3Hasher) Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
