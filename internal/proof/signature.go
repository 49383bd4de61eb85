package proof

import (
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/veilswap/veilcore/internal/crypto"
)

// The signature transcript is a Schnorr-style proof of knowledge of the
// wallet's derived key, computed in the multiplicative group modulo the
// RFC 3526 group 14 (2048-bit MODP) prime with generator 2. Exponents
// live modulo q = (p-1)/2, the order of the subgroup generated by 2.
const modpGroup14Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AACAA68FFFFFFFFFFFFFFFF"

var (
	modpPrime     *big.Int
	modpOrder     *big.Int // (p-1)/2
	modpGenerator = big.NewInt(2)
)

func init() {
	modpPrime, _ = new(big.Int).SetString(modpGroup14Hex, 16)
	modpOrder = new(big.Int).Rsh(new(big.Int).Sub(modpPrime, big.NewInt(1)), 1)
}

var ErrInvalidTranscript = errors.New("invalid signature transcript")

// signTranscript derives (R, s, publicKey) from the wallet key and
// message. The nonce is deterministic (HMAC of the message under the
// wallet key) so signing never consumes entropy and identical inputs
// produce identical transcripts.
func signTranscript(walletKey, message []byte) (*SignatureTranscript, error) {
	msgHash := crypto.Hash256(message)

	x := new(big.Int).Mod(new(big.Int).SetBytes(walletKey), modpOrder)
	if x.Sign() == 0 {
		return nil, ErrInvalidTranscript
	}

	kBytes := crypto.HMAC256(walletKey, []byte("sig-nonce:"), msgHash)
	k := new(big.Int).Mod(new(big.Int).SetBytes(kBytes), modpOrder)
	if k.Sign() == 0 {
		return nil, ErrInvalidTranscript
	}

	r := new(big.Int).Exp(modpGenerator, k, modpPrime)
	pub := new(big.Int).Exp(modpGenerator, x, modpPrime)

	e := challengeScalar(r, msgHash)

	// s = k + e*x mod q
	s := new(big.Int).Mul(e, x)
	s.Add(s, k)
	s.Mod(s, modpOrder)

	return &SignatureTranscript{
		R:           hex.EncodeToString(r.Bytes()),
		S:           hex.EncodeToString(s.Bytes()),
		PublicKey:   hex.EncodeToString(pub.Bytes()),
		MessageHash: hex.EncodeToString(msgHash),
	}, nil
}

// VerifyTranscript checks g^s == R * pub^e (mod p) for the transcript's
// challenge e. This is the explicit verification step a signature proof
// must pass before it may be marked verified.
func VerifyTranscript(t *SignatureTranscript) bool {
	if t == nil {
		return false
	}

	r, okR := new(big.Int).SetString(t.R, 16)
	s, okS := new(big.Int).SetString(t.S, 16)
	pub, okP := new(big.Int).SetString(t.PublicKey, 16)
	msgHash, err := hex.DecodeString(t.MessageHash)
	if !okR || !okS || !okP || err != nil {
		return false
	}
	if r.Sign() <= 0 || pub.Sign() <= 0 || r.Cmp(modpPrime) >= 0 || pub.Cmp(modpPrime) >= 0 {
		return false
	}

	e := challengeScalar(r, msgHash)

	lhs := new(big.Int).Exp(modpGenerator, s, modpPrime)

	rhs := new(big.Int).Exp(pub, e, modpPrime)
	rhs.Mul(rhs, r)
	rhs.Mod(rhs, modpPrime)

	return lhs.Cmp(rhs) == 0
}

// challengeScalar computes e = SHA256(R || msgHash) mod q.
func challengeScalar(r *big.Int, msgHash []byte) *big.Int {
	e := new(big.Int).SetBytes(crypto.Hash256(r.Bytes(), msgHash))
	return e.Mod(e, modpOrder)
}
