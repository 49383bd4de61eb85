// Package crypto provides the hashing, keying and commitment primitives
// shared by the proof engine and the routing planner.
//
// All commitments in this package are keyed-hash constructions: hiding
// comes from a fresh random blinding factor, binding from HMAC-SHA256.
// They are not Pedersen commitments over an elliptic-curve group; where
// genuine zero-knowledge soundness is needed the gnark-backed prover in
// zkp.go can be substituted behind the same interfaces.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
)

// BlindingFactorSize is the size of the random secret that blinds a
// commitment.
const BlindingFactorSize = 32

// GenerateBlindingFactor returns a fresh cryptographically random
// blinding factor. The caller owns the slice exclusively and must never
// place it in a public field or log line.
func GenerateBlindingFactor() ([]byte, error) {
	b := make([]byte, BlindingFactorSize)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("failed to generate blinding factor: %w", err)
	}
	return b, nil
}

// Commit binds payload to the given blinding factor:
//
//	commitment = HMAC-SHA256(blinding, payload)
//
// The result is public; it hides payload as long as blinding stays
// secret, and recomputing with the same inputs reproduces it exactly.
func Commit(payload, blinding []byte) []byte {
	mac := hmac.New(sha256.New, blinding)
	mac.Write(payload)
	return mac.Sum(nil)
}

// Open verifies that commitment opens to payload under blinding.
// Comparison is constant-time via hmac.Equal.
func Open(commitment, blinding, payload []byte) bool {
	return hmac.Equal(commitment, Commit(payload, blinding))
}

// Hash256 is the engine-wide SHA-256 shorthand.
func Hash256(data ...[]byte) []byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// HMAC256 computes HMAC-SHA256 over data with the given key.
func HMAC256(key []byte, data ...[]byte) []byte {
	mac := hmac.New(sha256.New, key)
	for _, d := range data {
		mac.Write(d)
	}
	return mac.Sum(nil)
}
