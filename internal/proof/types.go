// Package proof implements the claim-type-specific proof generators, the
// proof aggregator and the compressed proof codec.
//
// A Proof is a uniform record binding a hidden claim to a wallet: the
// claim payload is hidden inside a keyed-hash commitment, the nullifier
// makes double-submission of the same claim detectable, and the proof
// hash seals the whole record against tampering.
package proof

import (
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/veilswap/veilcore/internal/crypto"
)

var (
	ErrEmptyBatch      = errors.New("no proofs to aggregate")
	ErrNotInSet        = errors.New("element is not a member of the provided set")
	ErrMissingBlinding = errors.New("proof carries no blinding factor")
)

// Type identifies the claim shape a proof was generated for.
type Type string

const (
	TypeBalance     Type = "balance"
	TypeRange       Type = "range"
	TypeTransaction Type = "transaction"
	TypeIdentity    Type = "identity"
	TypeOwnership   Type = "ownership"
	TypeMerkle      Type = "merkle"
	TypeSignature   Type = "signature"
	TypeAggregated  Type = "aggregated"
)

const (
	// ExpiryPeriod is how long a proof stays valid after creation.
	ExpiryPeriod = 30 * 24 * time.Hour

	// Version is the proof record format version.
	Version = "1.0.0"

	// SecurityLevel128 labels the effective security level of the
	// keyed-hash construction.
	SecurityLevel128 = "128"

	// ProtocolCommitment labels the keyed-hash commitment scheme. The
	// name states design intent; this is not literal Pedersen over an
	// elliptic-curve group.
	ProtocolCommitment = "veil-pedersen-v1"

	// ProtocolRange labels the bit-decomposition range construction.
	ProtocolRange = "veil-bulletproof-v1"
)

// Metadata carries the proof's lifecycle fields.
type Metadata struct {
	Claim         string `json:"claim"`
	CreatedAt     int64  `json:"created_at"`
	ExpiresAt     int64  `json:"expires_at"`
	Version       string `json:"version"`
	SecurityLevel string `json:"security_level"`
}

// SignatureTranscript is the public part of a signature-style ownership
// proof: a Schnorr-like (R, s) pair over the RFC 3526 MODP group,
// together with the derived public key. See signature.go.
type SignatureTranscript struct {
	R           string `json:"r"`
	S           string `json:"s"`
	PublicKey   string `json:"public_key"`
	MessageHash string `json:"message_hash"`
}

// Proof is the uniform record produced by every generator.
//
// BlindingFactor is the proof's private opening material: it is excluded
// from JSON serialization and persisted only in AEAD-encrypted compressed
// form (see Codec). It must never appear in a public field or log line.
type Proof struct {
	ID           string   `json:"id"`
	ProofHash    string   `json:"proof_hash"`
	Commitment   string   `json:"commitment"`
	Nullifier    string   `json:"nullifier"`
	PublicInputs []string `json:"public_inputs"`
	Timestamp    int64    `json:"timestamp"`
	Type         Type     `json:"proof_type"`
	Verified     bool     `json:"verified"`
	Revoked      bool     `json:"revoked"`
	Protocol     string   `json:"protocol"`
	Metadata     Metadata `json:"metadata"`

	// Claim-type-specific attachments.
	MerklePath *crypto.MerkleProof  `json:"merkle_path,omitempty"`
	Transcript *SignatureTranscript `json:"transcript,omitempty"`

	BlindingFactor []byte `json:"-"`
}

// AggregatedProof folds N proofs into one batch commitment plus a Merkle
// root over the member proof hashes.
type AggregatedProof struct {
	Proofs              []*Proof `json:"proofs"`
	AggregateCommitment string   `json:"aggregate_commitment"`
	AggregateNullifier  string   `json:"aggregate_nullifier"`
	BatchRoot           string   `json:"batch_root"`
	Verified            bool     `json:"verified"`
}

// ComputeHash recomputes the integrity hash sealing the proof:
//
//	SHA256(commitment || nullifier || blinding || publicInputs || timestamp)
//
// hex-encoded. The proof is intact iff this equals ProofHash.
func ComputeHash(p *Proof) string {
	h := crypto.Hash256(
		[]byte(p.Commitment),
		[]byte(p.Nullifier),
		p.BlindingFactor,
		[]byte(strings.Join(p.PublicInputs, "|")),
		[]byte(strconv.FormatInt(p.Timestamp, 10)),
	)
	return hex.EncodeToString(h)
}

// Expired reports whether the proof is past its expiry at the given time.
func (p *Proof) Expired(now time.Time) bool {
	return now.Unix() > p.Metadata.ExpiresAt
}

// Active reports whether the proof still blocks its nullifier: not
// revoked and not expired.
func (p *Proof) Active(now time.Time) bool {
	return !p.Revoked && !p.Expired(now)
}
