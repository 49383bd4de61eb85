// Package storage persists proofs, consumed nullifiers and routing
// batches in a key-value store. Blinding factors never touch disk in the
// clear; they are sealed through the proof codec before storage.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iotaledger/hive.go/kvstore"
	"github.com/iotaledger/hive.go/serializer/v2/marshalutil"

	"github.com/veilswap/veilcore/internal/proof"
)

const (
	// Storage key prefixes.
	StorePrefixProof          byte = 0
	StorePrefixNullifierIndex byte = 1
	StorePrefixConsumed       byte = 2
	StorePrefixBatch          byte = 3
)

var (
	ErrProofNotFound      = errors.New("proof not found")
	ErrDuplicateNullifier = errors.New("an active proof with this nullifier already exists")
)

// storedProof is the on-disk shape of a proof: the public record plus
// the AEAD-sealed blinding factor.
type storedProof struct {
	Proof             *proof.Proof `json:"proof"`
	EncryptedBlinding string       `json:"encrypted_blinding"`
}

// ProofStore persists proofs and enforces nullifier uniqueness among
// active (not revoked, not expired) proofs.
type ProofStore struct {
	mu    sync.Mutex
	store kvstore.KVStore
	codec *proof.Codec
}

// NewProofStore creates a proof store on the given backing store.
func NewProofStore(store kvstore.KVStore, codec *proof.Codec) (*ProofStore, error) {
	realm, err := store.WithRealm([]byte{0x01})
	if err != nil {
		return nil, err
	}

	return &ProofStore{
		store: realm,
		codec: codec,
	}, nil
}

// PutNew stores a freshly generated proof. Returns ErrDuplicateNullifier
// if an active proof already holds the same nullifier; revoked or
// expired holders are displaced.
func (ps *ProofStore) PutNew(p *proof.Proof) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()

	holderID, err := ps.nullifierHolder(p.Nullifier)
	if err != nil {
		return err
	}
	if holderID != "" && holderID != p.ID {
		holder, err := ps.get(holderID)
		if err != nil && !errors.Is(err, ErrProofNotFound) {
			return err
		}
		if holder != nil && holder.Active(now) {
			return fmt.Errorf("%w: held by proof %s", ErrDuplicateNullifier, holderID)
		}
	}

	if err := ps.put(p); err != nil {
		return err
	}

	return ps.store.Set(ps.nullifierIndexKey(p.Nullifier), []byte(p.ID))
}

// Get loads a proof by ID with its blinding factor restored.
func (ps *ProofStore) Get(id string) (*proof.Proof, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	return ps.get(id)
}

// MarkVerified flips the proof's verified flag after an external check
// succeeded.
func (ps *ProofStore) MarkVerified(id string) error {
	return ps.update(id, func(p *proof.Proof) {
		p.Verified = true
	})
}

// Revoke marks the proof revoked, releasing its nullifier for reuse.
func (ps *ProofStore) Revoke(id string) error {
	return ps.update(id, func(p *proof.Proof) {
		p.Revoked = true
	})
}

// ListByType returns all stored proofs of the given type.
func (ps *ProofStore) ListByType(proofType proof.Type) ([]*proof.Proof, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	var proofs []*proof.Proof
	var iterErr error

	prefix := []byte{StorePrefixProof}
	if err := ps.store.Iterate(prefix, func(key kvstore.Key, value kvstore.Value) bool {
		p, err := ps.deserialize(value)
		if err != nil {
			iterErr = err
			return false
		}
		if p.Type == proofType {
			proofs = append(proofs, p)
		}
		return true
	}); err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}

	return proofs, nil
}

func (ps *ProofStore) update(id string, mutate func(p *proof.Proof)) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	p, err := ps.get(id)
	if err != nil {
		return err
	}

	mutate(p)

	return ps.put(p)
}

func (ps *ProofStore) get(id string) (*proof.Proof, error) {
	value, err := ps.store.Get(ps.proofKey(id))
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProofNotFound, id)
		}
		return nil, err
	}

	return ps.deserialize(value)
}

func (ps *ProofStore) put(p *proof.Proof) error {
	value, err := ps.serialize(p)
	if err != nil {
		return err
	}

	return ps.store.Set(ps.proofKey(p.ID), value)
}

// nullifierHolder returns the ID of the proof currently indexed under
// the nullifier, or "" if none.
func (ps *ProofStore) nullifierHolder(nullifier string) (string, error) {
	value, err := ps.store.Get(ps.nullifierIndexKey(nullifier))
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return "", nil
		}
		return "", err
	}

	return string(value), nil
}

func (ps *ProofStore) proofKey(id string) []byte {
	ms := marshalutil.New(1 + len(id))
	ms.WriteByte(StorePrefixProof)
	ms.WriteBytes([]byte(id))
	return ms.Bytes()
}

func (ps *ProofStore) nullifierIndexKey(nullifier string) []byte {
	ms := marshalutil.New(1 + len(nullifier))
	ms.WriteByte(StorePrefixNullifierIndex)
	ms.WriteBytes([]byte(nullifier))
	return ms.Bytes()
}

func (ps *ProofStore) serialize(p *proof.Proof) ([]byte, error) {
	encBlinding, err := ps.codec.EncryptBlinding(p.BlindingFactor)
	if err != nil {
		return nil, err
	}

	return json.Marshal(&storedProof{
		Proof:             p,
		EncryptedBlinding: encBlinding,
	})
}

func (ps *ProofStore) deserialize(data []byte) (*proof.Proof, error) {
	var stored storedProof
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}

	blinding, err := ps.codec.DecryptBlinding(stored.EncryptedBlinding)
	if err != nil {
		return nil, err
	}
	stored.Proof.BlindingFactor = blinding

	return stored.Proof, nil
}
