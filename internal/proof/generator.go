package proof

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iotaledger/hive.go/logger"

	"github.com/veilswap/veilcore/internal/crypto"
)

// Generator builds proofs for the seven claim types. All generators
// follow one template: build a claim payload, blind it into a
// commitment, derive the claim's nullifier, assemble the public inputs
// and seal the record with its integrity hash. The raw private values
// only ever appear inside the committed payload, never in public fields.
type Generator struct {
	*logger.WrappedLogger

	keys *crypto.KeyManager
}

// NewGenerator creates a proof generator bound to the given key manager.
func NewGenerator(log *logger.Logger, keys *crypto.KeyManager) *Generator {
	return &Generator{
		WrappedLogger: logger.NewWrappedLogger(log),
		keys:          keys,
	}
}

// build assembles the uniform Proof record from a claim payload.
func (g *Generator) build(proofType Type, protocol, wallet, claim string, payload []byte, extraInputs []string) (*Proof, error) {
	blinding, err := crypto.GenerateBlindingFactor()
	if err != nil {
		return nil, err
	}

	commitment := crypto.Commit(payload, blinding)
	nullifier := crypto.DeriveNullifier(g.keys, wallet, string(proofType), payload)

	now := time.Now()

	p := &Proof{
		ID:         uuid.NewString(),
		Commitment: hex.EncodeToString(commitment),
		Nullifier:  hex.EncodeToString(nullifier),
		PublicInputs: append([]string{
			"wallet:" + hex.EncodeToString(crypto.Hash256([]byte(wallet))),
			"type:" + string(proofType),
		}, extraInputs...),
		Timestamp: now.Unix(),
		Type:      proofType,
		Protocol:  protocol,
		Metadata: Metadata{
			Claim:         claim,
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

// GenerateBalanceProof proves a claim about a wallet balance without
// revealing the exact value. If threshold is non-nil, the public inputs
// carry whether the threshold is met, but never the balance itself.
func (g *Generator) GenerateBalanceProof(wallet string, balance uint64, threshold *uint64) (*Proof, error) {
	payload, err := json.Marshal(map[string]any{
		"claim":   "balance",
		"wallet":  wallet,
		"balance": balance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build balance payload: %w", err)
	}

	var extra []string
	claim := "balance"
	if threshold != nil {
		extra = append(extra,
			fmt.Sprintf("threshold:%d", *threshold),
			fmt.Sprintf("threshold_met:%t", balance >= *threshold),
		)
		claim = fmt.Sprintf("balance_gte:%d", *threshold)
	}

	return g.build(TypeBalance, ProtocolCommitment, wallet, claim, payload, extra)
}

// GenerateRangeProof proves that a hidden value lies in [min, max]. Per
// bit of the value a separate commitment is produced so the structure of
// the claim is auditable; the public inputs carry the Merkle root over
// those bit commitments and the range-membership result. Range
// membership is a property of the claim, not a secret, so Verified is
// set to it at generation time.
func (g *Generator) GenerateRangeProof(wallet string, value, min, max uint64) (*Proof, error) {
	payload, err := json.Marshal(map[string]any{
		"claim": "range",
		"value": value,
		"min":   min,
		"max":   max,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build range payload: %w", err)
	}

	// Bit-decomposition commitments: one per bit of the 64-bit value.
	bitCommitments := make([][]byte, 64)
	for i := 0; i < 64; i++ {
		bit := byte(value >> uint(i) & 1)
		bitBlinding, err := crypto.GenerateBlindingFactor()
		if err != nil {
			return nil, err
		}
		bitCommitments[i] = crypto.Commit([]byte{bit}, bitBlinding)
		crypto.ClearBytes(bitBlinding)
	}
	bitsRoot := crypto.MerkleRoot(bitCommitments)

	inRange := value >= min && value <= max
	extra := []string{
		fmt.Sprintf("min:%d", min),
		fmt.Sprintf("max:%d", max),
		fmt.Sprintf("in_range:%t", inRange),
		"bits_root:" + hex.EncodeToString(bitsRoot),
	}

	p, err := g.build(TypeRange, ProtocolRange, wallet, fmt.Sprintf("range:%d..%d", min, max), payload, extra)
	if err != nil {
		return nil, err
	}
	p.Verified = inRange

	return p, nil
}

// GenerateTransactionProof proves a claim about a past transaction
// without revealing its details.
func (g *Generator) GenerateTransactionProof(wallet, txSignature string, amount uint64) (*Proof, error) {
	payload, err := json.Marshal(map[string]any{
		"claim":     "transaction",
		"signature": txSignature,
		"amount":    amount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction payload: %w", err)
	}

	return g.build(TypeTransaction, ProtocolCommitment, wallet, "transaction", payload, nil)
}

// GenerateIdentityProof proves possession of identity attributes without
// revealing them.
func (g *Generator) GenerateIdentityProof(wallet string, attributes map[string]string) (*Proof, error) {
	payload, err := json.Marshal(map[string]any{
		"claim":      "identity",
		"attributes": attributes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build identity payload: %w", err)
	}

	return g.build(TypeIdentity, ProtocolCommitment, wallet, "identity", payload, nil)
}

// GenerateOwnershipProof proves ownership of an asset without revealing
// the held quantity.
func (g *Generator) GenerateOwnershipProof(wallet, assetMint string, quantity uint64) (*Proof, error) {
	payload, err := json.Marshal(map[string]any{
		"claim":    "ownership",
		"asset":    assetMint,
		"quantity": quantity,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build ownership payload: %w", err)
	}

	return g.build(TypeOwnership, ProtocolCommitment, wallet, "ownership:"+assetMint, payload, []string{"asset:" + assetMint})
}

// GenerateMerkleProof proves that element is a literal member of the
// given set. Returns ErrNotInSet if it is not; membership claims over
// non-members are a validation error, never a proof with a false path.
func (g *Generator) GenerateMerkleProof(wallet string, element []byte, set [][]byte) (*Proof, error) {
	leaves := make([][]byte, len(set))
	for i, e := range set {
		leaves[i] = crypto.Hash256(e)
	}

	path, err := crypto.MerklePathForLeaf(leaves, crypto.Hash256(element))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotInSet, err)
	}

	payload, err := json.Marshal(map[string]any{
		"claim":   "merkle",
		"element": hex.EncodeToString(element),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build merkle payload: %w", err)
	}

	extra := []string{
		"root:" + hex.EncodeToString(path.Root),
		fmt.Sprintf("set_size:%d", len(set)),
	}

	p, err := g.build(TypeMerkle, ProtocolCommitment, wallet, "merkle-membership", payload, extra)
	if err != nil {
		return nil, err
	}
	p.MerklePath = path

	return p, nil
}

// GenerateSignatureProof produces a signature-style ownership transcript
// over the message using the wallet's derived key.
//
// The transcript is verifiable by anyone holding the derived public key
// (see VerifyTranscript); unlike a self-attesting construction the proof
// starts out unverified and only transitions after an explicit check.
func (g *Generator) GenerateSignatureProof(wallet string, message []byte) (*Proof, error) {
	walletKey := g.keys.DeriveWalletKey(wallet)
	defer crypto.ClearBytes(walletKey)

	transcript, err := signTranscript(walletKey, message)
	if err != nil {
		return nil, fmt.Errorf("failed to build signature transcript: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"claim":   "signature",
		"message": hex.EncodeToString(crypto.Hash256(message)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build signature payload: %w", err)
	}

	extra := []string{
		"public_key:" + transcript.PublicKey,
		"message_hash:" + transcript.MessageHash,
	}

	p, err := g.build(TypeSignature, ProtocolCommitment, wallet, "signature-ownership", payload, extra)
	if err != nil {
		return nil, err
	}
	p.Transcript = transcript

	return p, nil
}
