// Package hash provides the content address type used throughout the
// engine. Every tree node and every commit is identified by the SHA-256
// digest of its canonical encoding, so identical content always maps to
// the same address.
package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the length of a Hash in bytes.
const Size = sha256.Size

// Hash is a fixed-size content address.
type Hash [Size]byte

// Zero is the all-zero hash. It is never a valid content address and is
// used as the "no hash" sentinel (e.g. a branch with no commits yet).
var Zero Hash

// Sum hashes the concatenation of the given byte slices.
func Sum(data ...[]byte) Hash {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// FromBytes copies b into a Hash. It returns an error if b has the wrong
// length.
func FromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != Size {
		return h, fmt.Errorf("invalid hash length %d, want %d", len(b), Size)
	}
	copy(h[:], b)
	return h, nil
}

// FromHex parses a full hex representation of a Hash.
func FromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Zero, fmt.Errorf("invalid hash hex: %w", err)
	}
	return FromBytes(b)
}

// Hex returns the lowercase hex representation.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 hex characters, for logs and CLI output.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:4])
}

// IsZero reports whether h is the zero sentinel.
func (h Hash) IsZero() bool {
	return h == Zero
}

// Equal reports whether two hashes are identical.
func (h Hash) Equal(other Hash) bool {
	return h == other
}

// Compare orders hashes bytewise, for deterministic iteration.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

func (h Hash) String() string {
	return h.Hex()
}
