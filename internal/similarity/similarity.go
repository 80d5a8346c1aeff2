// Package similarity implements a direct fingerprint-to-fingerprint
// comparator: the Hamming-bit agreement ratio between two hash sequences,
// over their shared prefix.
package similarity

import (
	"math/bits"

	"github.com/arcspan/fingermatch/internal/model"
)

// Hamming returns the fraction of bits that agree between a and b, summed
// over min(len(a.Hashes), len(b.Hashes)) positions and 32 bits per
// position. Returns 0 when either fingerprint is empty.
func Hamming(a, b model.Fingerprint) float64 {
	n := len(a.Hashes)
	if len(b.Hashes) < n {
		n = len(b.Hashes)
	}
	if n == 0 {
		return 0
	}

	var agreeing int
	for i := 0; i < n; i++ {
		agreeing += 32 - bits.OnesCount32(a.Hashes[i]^b.Hashes[i])
	}

	return float64(agreeing) / float64(32*n)
}
