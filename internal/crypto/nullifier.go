package crypto

import (
	"encoding/hex"
)

// nullifierPrefix is the domain separator for nullifier derivation.
const nullifierPrefix = "nullifier:"

// DeriveNullifier computes the deterministic per-claim nullifier
//
//	HMAC-SHA256(walletKey, "nullifier:"+proofType+":"+hex(SHA256(claimData)))
//
// where walletKey is the key derived for walletAddress by the KeyManager.
// The same (wallet, type, claim) triple always yields the same nullifier,
// which is what makes double-submission of a claim detectable before
// persistence and at consumption time.
func DeriveNullifier(km *KeyManager, walletAddress, proofType string, claimData []byte) []byte {
	walletKey := km.DeriveWalletKey(walletAddress)
	defer clearBytes(walletKey)

	claimDigest := hex.EncodeToString(Hash256(claimData))
	return HMAC256(walletKey, []byte(nullifierPrefix+proofType+":"+claimDigest))
}
