package primitives

import (
	"crypto/sha256"

	"github.com/ethereum/go-ethereum/crypto"
)

// Keccak256 hashes data with keccak256, the hash function go-ethereum uses
// throughout the execution layer (transaction hashing, signing digests).
func Keccak256(data []byte) [32]byte {
	return [32]byte(crypto.Keccak256Hash(data))
}

// Sha256Concat hashes the concatenation of a and b with sha256, matching
// the digest algorithm used for delegation and revocation messages.
func Sha256Concat(a, b []byte) [32]byte {
	h := sha256.New()
	h.Write(a)
	h.Write(b)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
