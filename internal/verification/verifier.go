// Package verification checks proof integrity, expiry and double-spend
// status. Verification never mutates the proof or the nullifier set;
// consuming a nullifier is an explicit, separate operation.
package verification

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/iotaledger/hive.go/logger"

	"github.com/veilswap/veilcore/internal/interfaces"
	"github.com/veilswap/veilcore/internal/proof"
)

// Rejection reasons reported in Result. A failing proof reports the
// first reason in this order: integrity, revocation, expiry,
// double-spend.
const (
	ReasonIntegrity   = "integrity"
	ReasonRevoked     = "revoked"
	ReasonExpired     = "expired"
	ReasonDoubleSpend = "double-spend"
)

var (
	ErrNullifierConsumed = errors.New("nullifier already consumed")
)

// Result is the outcome of verifying a single proof.
type Result struct {
	Valid     bool      `json:"valid"`
	Reason    string    `json:"reason,omitempty"`
	ProofHash string    `json:"proof_hash"`
	CheckedAt time.Time `json:"checked_at"`
}

// Verifier validates proofs against their integrity hash, their expiry
// and the consumed-nullifier set.
type Verifier struct {
	*logger.WrappedLogger

	nullifiers interfaces.NullifierStore
	cache      *resultCache
}

// NewVerifier creates a verifier backed by the given nullifier store.
func NewVerifier(log *logger.Logger, nullifiers interfaces.NullifierStore) *Verifier {
	return &Verifier{
		WrappedLogger: logger.NewWrappedLogger(log),
		nullifiers:    nullifiers,
		cache:         newResultCache(30*time.Second, 10000),
	}
}

// Verify checks the proof and returns a Result. It needs the blinding
// factor to recompute the integrity hash; a proof without one cannot be
// verified. The nullifier set is read but never written.
//
// Nullifier lookups are cached briefly, keyed by the nullifier itself
// so every proof record carrying it shares one entry; consumption
// through this verifier invalidates that entry.
func (v *Verifier) Verify(p *proof.Proof) (*Result, error) {
	if len(p.BlindingFactor) == 0 {
		return nil, proof.ErrMissingBlinding
	}

	now := time.Now()
	result := &Result{
		ProofHash: p.ProofHash,
		CheckedAt: now,
	}

	// Integrity binds every public field plus the blinding to the hash,
	// so it is always recomputed from the presented record.
	recomputed := proof.ComputeHash(p)
	if subtle.ConstantTimeCompare([]byte(recomputed), []byte(p.ProofHash)) != 1 {
		v.LogWarnf("proof %s failed integrity check", p.ID)
		result.Reason = ReasonIntegrity
		return result, nil
	}

	// Revocation is terminal; a revoked proof never verifies again.
	if p.Revoked {
		result.Reason = ReasonRevoked
		return result, nil
	}

	if p.Expired(now) {
		result.Reason = ReasonExpired
		return result, nil
	}

	if cached, ok := v.cache.get(p.Nullifier); ok {
		return &Result{
			Valid:     cached.Valid,
			Reason:    cached.Reason,
			ProofHash: p.ProofHash,
			CheckedAt: now,
		}, nil
	}

	nullifier, err := hex.DecodeString(p.Nullifier)
	if err != nil {
		result.Reason = ReasonIntegrity
		return result, nil
	}

	consumed, err := v.nullifiers.Contains(nullifier)
	if err != nil {
		return nil, fmt.Errorf("nullifier lookup failed: %w", err)
	}
	if consumed {
		result.Reason = ReasonDoubleSpend
	} else {
		result.Valid = true
	}
	v.cache.put(p.Nullifier, result)

	return result, nil
}

// Check is the error-typed form of Verify, suitable as an aggregation
// integrity callback.
func (v *Verifier) Check(p *proof.Proof) error {
	result, err := v.Verify(p)
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("proof rejected: %s", result.Reason)
	}

	return nil
}

// ConsumeNullifier marks the proof's nullifier as spent. Exactly one of
// any set of concurrent calls with the same nullifier succeeds; the rest
// return ErrNullifierConsumed.
func (v *Verifier) ConsumeNullifier(p *proof.Proof) error {
	nullifier, err := hex.DecodeString(p.Nullifier)
	if err != nil {
		return fmt.Errorf("invalid nullifier encoding: %w", err)
	}

	ok, err := v.nullifiers.TryConsume(nullifier)
	if err != nil {
		return fmt.Errorf("nullifier consume failed: %w", err)
	}

	v.cache.invalidate(p.Nullifier)

	if !ok {
		return ErrNullifierConsumed
	}

	v.LogDebugf("consumed nullifier for proof %s", p.ID)

	return nil
}
