package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var (
	ErrSecretNotFound    = errors.New("master secret not found")
	ErrSecretExists      = errors.New("master secret already exists")
	ErrInvalidSecretFile = errors.New("invalid master secret file")
)

const (
	SecretFileName = "master.secret"
	SecretFileMode = 0600
	SecretDirMode  = 0700
)

// KeyStore manages the persistent master secret on disk.
//
// Unlike a key cache, the store never generates a secret implicitly during
// normal operation: a missing secret is fatal at startup so that a
// misconfigured deployment cannot silently produce guessable nullifiers.
// Generate is exposed separately for provisioning tooling.
type KeyStore struct {
	secretPath string
}

// NewKeyStore creates a key store rooted at the given directory.
func NewKeyStore(dir string) (*KeyStore, error) {
	if err := os.MkdirAll(dir, SecretDirMode); err != nil {
		return nil, fmt.Errorf("failed to create secret directory: %w", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secret directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secret path is not a directory: %s", dir)
	}

	// Tighten permissions if the directory pre-existed with looser ones.
	if info.Mode().Perm()&0077 != 0 {
		if err := os.Chmod(dir, SecretDirMode); err != nil {
			return nil, fmt.Errorf("failed to fix directory permissions: %w", err)
		}
	}

	return &KeyStore{
		secretPath: filepath.Join(dir, SecretFileName),
	}, nil
}

// Load reads the master secret from disk.
func (ks *KeyStore) Load() ([]byte, error) {
	if _, err := os.Stat(ks.secretPath); os.IsNotExist(err) {
		return nil, ErrSecretNotFound
	}

	data, err := os.ReadFile(ks.secretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}

	info, err := os.Stat(ks.secretPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secret file: %w", err)
	}
	if info.Mode().Perm() != SecretFileMode {
		return nil, fmt.Errorf("%w: invalid permissions %o", ErrInvalidSecretFile, info.Mode().Perm())
	}

	secret := make([]byte, hex.DecodedLen(len(data)))
	n, err := hex.Decode(secret, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret: %w", err)
	}
	secret = secret[:n]

	if len(secret) != MasterSecretSize {
		clearBytes(secret)
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSecretFile, MasterSecretSize, len(secret))
	}

	return secret, nil
}

// Generate creates a fresh master secret and persists it. Fails if a
// secret already exists; rotation is an explicit operator action, not a
// code path.
func (ks *KeyStore) Generate() ([]byte, error) {
	if ks.Exists() {
		return nil, ErrSecretExists
	}

	secret := make([]byte, MasterSecretSize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	if err := ks.save(secret); err != nil {
		clearBytes(secret)
		return nil, err
	}

	return secret, nil
}

func (ks *KeyStore) save(secret []byte) error {
	encoded := make([]byte, hex.EncodedLen(len(secret)))
	hex.Encode(encoded, secret)
	defer clearBytes(encoded)

	// Write to a temporary file first, then rename atomically.
	tmpPath := ks.secretPath + ".tmp"
	if err := os.WriteFile(tmpPath, encoded, SecretFileMode); err != nil {
		return fmt.Errorf("failed to write temporary secret file: %w", err)
	}
	if err := os.Rename(tmpPath, ks.secretPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename secret file: %w", err)
	}

	return nil
}

// Exists reports whether a master secret file is present.
func (ks *KeyStore) Exists() bool {
	_, err := os.Stat(ks.secretPath)
	return err == nil
}

// Path returns the secret file path (for logging/debugging).
func (ks *KeyStore) Path() string {
	return ks.secretPath
}
