package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrMasterSecretMissing = errors.New("master secret not configured")
	ErrInvalidKeySize      = errors.New("invalid key size")
	ErrKeyDerivationFailed = errors.New("key derivation failed")
)

const (
	// MasterSecretSize is the required size of the operator-provided master secret.
	MasterSecretSize = 32

	// DerivedKeySize is the size of all HMAC-derived keys.
	DerivedKeySize = 32

	// walletKeyPrefix is the domain separator for per-wallet key derivation.
	walletKeyPrefix = "wallet:"

	// codecKeyInfo is the HKDF info string for the proof codec encryption key.
	codecKeyInfo = "veilcore-codec-v1"
)

// KeyManager derives all per-wallet and per-purpose keys from a single
// operator-provided master secret. The master secret itself never leaves
// this struct; derived keys are deterministic and recomputed on demand
// rather than stored.
type KeyManager struct {
	mu           sync.RWMutex
	masterSecret []byte
}

// NewKeyManager creates a key manager from the given master secret.
//
// A missing or undersized secret is a configuration error and must be
// treated as fatal by the caller: without it, nullifiers and signature
// transcripts would be guessable.
func NewKeyManager(masterSecret []byte) (*KeyManager, error) {
	if len(masterSecret) == 0 {
		return nil, ErrMasterSecretMissing
	}
	if len(masterSecret) != MasterSecretSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeySize, MasterSecretSize, len(masterSecret))
	}

	km := &KeyManager{
		masterSecret: make([]byte, len(masterSecret)),
	}
	copy(km.masterSecret, masterSecret)

	return km, nil
}

// DeriveWalletKey returns HMAC-SHA256(masterSecret, "wallet:"+walletAddress).
//
// The result is deterministic for a given wallet and is used as the HMAC
// key for that wallet's nullifiers and signature transcripts. Callers
// should clear the returned slice when done.
func (km *KeyManager) DeriveWalletKey(walletAddress string) []byte {
	km.mu.RLock()
	defer km.mu.RUnlock()

	mac := hmac.New(sha256.New, km.masterSecret)
	mac.Write([]byte(walletKeyPrefix + walletAddress))
	return mac.Sum(nil)
}

// DeriveCodecKey derives the AEAD key used by the compressed proof codec
// via HKDF-SHA256. The salt binds the key to a deployment; passing nil
// uses an all-zero salt per RFC 5869.
func (km *KeyManager) DeriveCodecKey(salt []byte) ([]byte, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()

	key := make([]byte, DerivedKeySize)
	r := hkdf.New(sha256.New, km.masterSecret, salt, []byte(codecKeyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivationFailed, err)
	}

	return key, nil
}

// Clear zeroes the master secret. The manager must not be used afterwards.
func (km *KeyManager) Clear() {
	km.mu.Lock()
	defer km.mu.Unlock()

	clearBytes(km.masterSecret)
}
