package proof

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/veilswap/veilcore/internal/crypto"
)

var (
	ErrDecodeFailed     = errors.New("proof decode failed")
	ErrBlindingTampered = errors.New("encrypted blinding factor failed authentication")
)

// Codec serializes proofs into a compact transport form. The blinding
// factor is the only private field and travels XChaCha20-Poly1305
// encrypted under a key derived from the master secret; everything else
// in the compact object is already public.
//
// Format: base64(JSON(compactProof)), with encrypted_blinding =
// hex(nonce || ciphertext || tag).
type Codec struct {
	aead cipher.AEAD
}

// compactProof is the wire shape of an encoded proof.
type compactProof struct {
	ProofHash         string `json:"proof_hash"`
	Commitment        string `json:"commitment"`
	Nullifier         string `json:"nullifier"`
	EncryptedBlinding string `json:"encrypted_blinding"`
	Timestamp         int64  `json:"timestamp"`
	Type              Type   `json:"type"`
	Verified          bool   `json:"verified"`
	Protocol          string `json:"protocol"`
	SecurityLevel     string `json:"security_level"`
}

// NewCodec creates a codec whose AEAD key is derived from the key
// manager's master secret. salt binds the key to a deployment.
func NewCodec(keys *crypto.KeyManager, salt []byte) (*Codec, error) {
	key, err := keys.DeriveCodecKey(salt)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// EncryptBlinding seals a blinding factor for storage or transport.
func (c *Codec) EncryptBlinding(blinding []byte) (string, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, blinding, nil)
	return hex.EncodeToString(append(nonce, sealed...)), nil
}

// DecryptBlinding opens an encrypted blinding factor. An authentication
// failure surfaces as an error, never as a silently wrong value.
func (c *Codec) DecryptBlinding(encrypted string) ([]byte, error) {
	raw, err := hex.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecodeFailed)
	}

	nonce := raw[:chacha20poly1305.NonceSizeX]
	blinding, err := c.aead.Open(nil, nonce, raw[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return nil, ErrBlindingTampered
	}

	return blinding, nil
}

// Encode serializes the proof to its compact base64 transport form.
func (c *Codec) Encode(p *Proof) (string, error) {
	if len(p.BlindingFactor) == 0 {
		return "", ErrMissingBlinding
	}

	encBlinding, err := c.EncryptBlinding(p.BlindingFactor)
	if err != nil {
		return "", err
	}

	compact := compactProof{
		ProofHash:         p.ProofHash,
		Commitment:        p.Commitment,
		Nullifier:         p.Nullifier,
		EncryptedBlinding: encBlinding,
		Timestamp:         p.Timestamp,
		Type:              p.Type,
		Verified:          p.Verified,
		Protocol:          p.Protocol,
		SecurityLevel:     p.Metadata.SecurityLevel,
	}

	data, err := json.Marshal(compact)
	if err != nil {
		return "", fmt.Errorf("failed to marshal compact proof: %w", err)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode reverses Encode. The returned proof is partial: public inputs
// and full metadata do not travel in the compact form.
func (c *Codec) Decode(encoded string) (*Proof, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	var compact compactProof
	if err := json.Unmarshal(data, &compact); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	blinding, err := c.DecryptBlinding(compact.EncryptedBlinding)
	if err != nil {
		return nil, err
	}

	return &Proof{
		ProofHash:  compact.ProofHash,
		Commitment: compact.Commitment,
		Nullifier:  compact.Nullifier,
		Timestamp:  compact.Timestamp,
		Type:       compact.Type,
		Verified:   compact.Verified,
		Protocol:   compact.Protocol,
		Metadata: Metadata{
			SecurityLevel: compact.SecurityLevel,
		},
		BlindingFactor: blinding,
	}, nil
}
