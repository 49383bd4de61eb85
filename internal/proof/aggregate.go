package proof

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veilswap/veilcore/internal/crypto"
)

// IntegrityCheck re-validates a single proof. The aggregator uses it for
// members that have not been marked verified yet; the verification
// package supplies the implementation.
type IntegrityCheck func(p *Proof) error

// Aggregator folds multiple proofs into a single batch record.
type Aggregator struct {
	check IntegrityCheck
}

// NewAggregator creates an aggregator. check may be nil, in which case
// only already-verified members count towards batch validity.
func NewAggregator(check IntegrityCheck) *Aggregator {
	return &Aggregator{check: check}
}

// Aggregate folds the proofs into one batch commitment plus a Merkle
// root over the member proof hashes. The batch is verified iff every
// member is already verified or independently passes the integrity
// check.
func (a *Aggregator) Aggregate(proofs []*Proof) (*AggregatedProof, error) {
	if len(proofs) == 0 {
		return nil, ErrEmptyBatch
	}

	commitments := make([]byte, 0, len(proofs)*32)
	nullifiers := make([]byte, 0, len(proofs)*32)
	hashLeaves := make([][]byte, len(proofs))

	verified := true
	for i, p := range proofs {
		c, err := hex.DecodeString(p.Commitment)
		if err != nil {
			return nil, fmt.Errorf("proof %d: invalid commitment: %w", i, err)
		}
		n, err := hex.DecodeString(p.Nullifier)
		if err != nil {
			return nil, fmt.Errorf("proof %d: invalid nullifier: %w", i, err)
		}
		h, err := hex.DecodeString(p.ProofHash)
		if err != nil {
			return nil, fmt.Errorf("proof %d: invalid proof hash: %w", i, err)
		}

		commitments = append(commitments, c...)
		nullifiers = append(nullifiers, n...)
		// Leaves are hashed on entry so a singleton batch roots at
		// H(proofHash), not the proof hash itself.
		hashLeaves[i] = crypto.Hash256(h)

		if !p.Verified {
			if a.check == nil || a.check(p) != nil {
				verified = false
			}
		}
	}

	return &AggregatedProof{
		Proofs:              proofs,
		AggregateCommitment: hex.EncodeToString(crypto.Hash256(commitments)),
		AggregateNullifier:  hex.EncodeToString(crypto.Hash256(nullifiers)),
		BatchRoot:           hex.EncodeToString(crypto.MerkleRoot(hashLeaves)),
		Verified:            verified,
	}, nil
}

// GenerateAggregatedProof wraps an aggregation into a standard Proof
// record so aggregates are storable and verifiable like any other proof.
func (a *Aggregator) GenerateAggregatedProof(proofs []*Proof) (*Proof, error) {
	agg, err := a.Aggregate(proofs)
	if err != nil {
		return nil, err
	}

	blinding, err := crypto.GenerateBlindingFactor()
	if err != nil {
		return nil, err
	}

	now := time.Now()

	p := &Proof{
		ID:         uuid.NewString(),
		Commitment: agg.AggregateCommitment,
		Nullifier:  agg.AggregateNullifier,
		PublicInputs: []string{
			"type:" + string(TypeAggregated),
			"batch_root:" + agg.BatchRoot,
			fmt.Sprintf("batch_size:%d", len(proofs)),
		},
		Timestamp: now.Unix(),
		Type:      TypeAggregated,
		Verified:  agg.Verified,
		Protocol:  ProtocolCommitment,
		Metadata: Metadata{
			Claim:         fmt.Sprintf("aggregate:%d", len(proofs)),
			CreatedAt:     now.Unix(),
			ExpiresAt:     now.Add(ExpiryPeriod).Unix(),
			Version:       Version,
			SecurityLevel: SecurityLevel128,
		},
		BlindingFactor: blinding,
	}
	p.ProofHash = ComputeHash(p)

	return p, nil
}
