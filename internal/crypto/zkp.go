package crypto

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	mimcHash "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/hash/mimc"
)

var (
	ErrProofGenerationFailed    = errors.New("proof generation failed")
	ErrProofVerificationFailed  = errors.New("proof verification failed")
	ErrCircuitCompilationFailed = errors.New("circuit compilation failed")
)

var domainTagOpening = domainSeparatorElement("VeilCore:opening")

// OpeningProver generates genuine zero-knowledge proofs of commitment
// opening: knowledge of the blinding factor and claim digest behind a
// MiMC commitment, without revealing either. It backs the ownership
// proof path where a keyed-hash commitment alone would only be checkable
// by whoever already holds the blinding factor.
type OpeningProver struct {
	mu        sync.RWMutex
	compileMu sync.Mutex
	proofMu   sync.Mutex
	curve     ecc.ID

	compiled map[string]compiledCircuit
	pk       map[string]groth16.ProvingKey
	vk       map[string]groth16.VerifyingKey
}

type compiledCircuit struct {
	cs       constraint.ConstraintSystem
	circuit  frontend.Circuit
	compiled time.Time
}

// NewOpeningProver creates a prover over BN254.
func NewOpeningProver() *OpeningProver {
	return &OpeningProver{
		curve:    ecc.BN254,
		compiled: make(map[string]compiledCircuit),
		pk:       make(map[string]groth16.ProvingKey),
		vk:       make(map[string]groth16.VerifyingKey),
	}
}

// OpeningCircuit proves knowledge of (claim digest, blinding factor)
// behind a public MiMC commitment.
type OpeningCircuit struct {
	// Public inputs
	Commitment frontend.Variable `gnark:",public"`

	// Private inputs
	ClaimDigest frontend.Variable
	Blinding    frontend.Variable
}

// Define implements frontend.Circuit
func (c *OpeningCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	h.Write(domainTagOpening.BigInt(new(big.Int)))
	h.Write(c.ClaimDigest)
	h.Write(c.Blinding)
	commitment := h.Sum()

	api.AssertIsEqual(commitment, c.Commitment)

	return nil
}

// OpeningProof is a groth16 proof of commitment opening together with
// its public inputs.
type OpeningProof struct {
	Proof      groth16.Proof
	Commitment []byte
	Timestamp  int64
}

const openingCircuitID = "opening"

func (p *OpeningProver) ensureCompiled(circuitID string, circuit frontend.Circuit) error {
	p.compileMu.Lock()
	defer p.compileMu.Unlock()

	p.mu.RLock()
	_, exists := p.compiled[circuitID]
	p.mu.RUnlock()
	if exists {
		return nil
	}

	cs, err := frontend.Compile(p.curve.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCircuitCompilationFailed, err)
	}

	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return fmt.Errorf("failed to setup circuit: %w", err)
	}

	p.mu.Lock()
	p.compiled[circuitID] = compiledCircuit{cs: cs, circuit: circuit, compiled: time.Now()}
	p.pk[circuitID] = pk
	p.vk[circuitID] = vk
	p.mu.Unlock()

	return nil
}

// MiMCCommitment computes the off-circuit commitment matching the
// in-circuit construction: MiMC(domain || claimDigest || blinding).
func MiMCCommitment(claimDigest, blinding []byte) []byte {
	h := mimcHash.NewMiMC()
	h.Write(fieldElementBytes(domainTagOpening))
	h.Write(fieldElementBytes(bytesToFieldElement(claimDigest)))
	h.Write(fieldElementBytes(bytesToFieldElement(blinding)))
	return h.Sum(nil)
}

// ProveOpening generates a proof of knowledge of (claimDigest, blinding)
// behind their MiMC commitment.
func (p *OpeningProver) ProveOpening(claimDigest, blinding []byte) (*OpeningProof, error) {
	if err := p.ensureCompiled(openingCircuitID, &OpeningCircuit{}); err != nil {
		return nil, err
	}

	p.mu.RLock()
	pk := p.pk[openingCircuitID]
	cs := p.compiled[openingCircuitID].cs
	p.mu.RUnlock()

	commitment := MiMCCommitment(claimDigest, blinding)

	claimDigestElem := bytesToFieldElement(claimDigest)
	blindingElem := bytesToFieldElement(blinding)
	witness := &OpeningCircuit{
		Commitment:  new(big.Int).SetBytes(commitment),
		ClaimDigest: claimDigestElem.BigInt(new(big.Int)),
		Blinding:    blindingElem.BigInt(new(big.Int)),
	}

	w, err := frontend.NewWitness(witness, p.curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("failed to create witness: %w", err)
	}

	p.proofMu.Lock()
	proof, err := groth16.Prove(cs, pk, w)
	p.proofMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofGenerationFailed, err)
	}

	return &OpeningProof{
		Proof:      proof,
		Commitment: commitment,
		Timestamp:  time.Now().Unix(),
	}, nil
}

// VerifyOpening verifies a proof of commitment opening against its
// public commitment.
func (p *OpeningProver) VerifyOpening(proof *OpeningProof) error {
	p.mu.RLock()
	vk, exists := p.vk[openingCircuitID]
	p.mu.RUnlock()
	if !exists {
		return errors.New("verifying key not found")
	}

	publicWitnessCircuit := &OpeningCircuit{
		Commitment: new(big.Int).SetBytes(proof.Commitment),
	}

	publicWitness, err := frontend.NewWitness(publicWitnessCircuit, p.curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("failed to create public witness: %w", err)
	}

	p.proofMu.Lock()
	err = groth16.Verify(proof.Proof, vk, publicWitness)
	p.proofMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProofVerificationFailed, err)
	}

	return nil
}

// bytesToFieldElement reduces bytes into a BN254 field element.
func bytesToFieldElement(data []byte) fr.Element {
	var e fr.Element
	e.SetBytes(data)
	return e
}

// fieldElementBytes returns the canonical 32-byte representation of a field element.
func fieldElementBytes(e fr.Element) []byte {
	b := e.Bytes()
	return b[:]
}

// domainSeparatorElement converts a tag string into a field element for domain separation.
func domainSeparatorElement(tag string) fr.Element {
	var e fr.Element
	e.SetBytes([]byte(tag))
	return e
}
