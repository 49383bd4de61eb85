package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommitOpenRoundTrip(t *testing.T) {
	blinding, err := GenerateBlindingFactor()
	require.NoError(t, err)
	require.Len(t, blinding, BlindingFactorSize)

	payload := []byte(`{"claim":"balance_gte","threshold":100}`)
	commitment := Commit(payload, blinding)

	require.True(t, Open(commitment, blinding, payload))

	// Deterministic: recomputing reproduces the commitment exactly.
	require.Equal(t, commitment, Commit(payload, blinding))
}

func TestCommitOpenRejectsMutation(t *testing.T) {
	blinding, err := GenerateBlindingFactor()
	require.NoError(t, err)

	payload := []byte("the committed payload")
	commitment := Commit(payload, blinding)

	// Flip one bit of the payload.
	mutatedPayload := append([]byte(nil), payload...)
	mutatedPayload[0] ^= 0x01
	require.False(t, Open(commitment, blinding, mutatedPayload))

	// Flip one bit of the blinding factor.
	mutatedBlinding := append([]byte(nil), blinding...)
	mutatedBlinding[31] ^= 0x80
	require.False(t, Open(commitment, mutatedBlinding, payload))

	// Flip one bit of the commitment itself.
	mutatedCommitment := append([]byte(nil), commitment...)
	mutatedCommitment[7] ^= 0x10
	require.False(t, Open(mutatedCommitment, blinding, payload))
}

func TestGenerateBlindingFactorUnique(t *testing.T) {
	a, err := GenerateBlindingFactor()
	require.NoError(t, err)
	b, err := GenerateBlindingFactor()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
