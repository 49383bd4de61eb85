// Package interfaces holds the small contracts shared across the engine
// so that components can be wired together without import cycles and
// swapped out in tests.
package interfaces

import (
	"fmt"

	"github.com/veilswap/veilcore/internal/crypto"
)

// NullifierStore is the system's sole double-spend guard. TryConsume must
// be linearizable: of two concurrent calls with the same nullifier,
// exactly one may return true.
type NullifierStore interface {
	// Contains reports whether the nullifier has already been consumed.
	Contains(nullifier []byte) (bool, error)

	// TryConsume atomically records the nullifier as used. Returns false
	// if it was already present.
	TryConsume(nullifier []byte) (bool, error)
}

// CommitmentProver is an optional real proving backend for commitment
// openings. The keyed-hash commitments used elsewhere are only checkable
// by whoever holds the blinding factor; a CommitmentProver produces a
// proof a third party can verify.
type CommitmentProver interface {
	ProveOpening(claimDigest, blinding []byte) (*crypto.OpeningProof, error)
	VerifyOpening(proof *crypto.OpeningProof) error
}

// PrivacyLevel selects a bundle of routing-obfuscation defaults.
type PrivacyLevel int

const (
	PrivacyLow PrivacyLevel = iota
	PrivacyStandard
	PrivacyHigh
	PrivacyMaximum
)

// String returns the string representation of a privacy level.
func (l PrivacyLevel) String() string {
	switch l {
	case PrivacyLow:
		return "low"
	case PrivacyStandard:
		return "standard"
	case PrivacyHigh:
		return "high"
	case PrivacyMaximum:
		return "maximum"
	default:
		return "unknown"
	}
}

// PrivacyLevelFromString converts a string to a PrivacyLevel.
func PrivacyLevelFromString(s string) (PrivacyLevel, error) {
	switch s {
	case "low":
		return PrivacyLow, nil
	case "standard":
		return PrivacyStandard, nil
	case "high":
		return PrivacyHigh, nil
	case "maximum":
		return PrivacyMaximum, nil
	default:
		return PrivacyLow, fmt.Errorf("unknown privacy level: %s", s)
	}
}
