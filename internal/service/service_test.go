package service

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/iotaledger/hive.go/kvstore/mapdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/veilswap/veilcore/internal/crypto"
	"github.com/veilswap/veilcore/internal/proof"
	"github.com/veilswap/veilcore/internal/routing"
	"github.com/veilswap/veilcore/internal/storage"
	"github.com/veilswap/veilcore/internal/verification"
)

func testService(t *testing.T) *Service {
	t.Helper()

	secret := bytes.Repeat([]byte{0x5a}, crypto.MasterSecretSize)
	s, err := NewService(nil, mapdb.NewMapDB(), secret, nil)
	require.NoError(t, err)

	return s
}

func TestNewServiceRequiresMasterSecret(t *testing.T) {
	_, err := NewService(nil, mapdb.NewMapDB(), nil, nil)
	assert.ErrorIs(t, err, crypto.ErrMasterSecretMissing)

	_, err = NewService(nil, mapdb.NewMapDB(), []byte("short"), nil)
	assert.ErrorIs(t, err, crypto.ErrInvalidKeySize)
}

func TestGenerateProofTypes(t *testing.T) {
	s := testService(t)

	threshold := uint64(100)
	requests := []*ProofRequest{
		{Type: proof.TypeBalance, WalletAddress: "w1", Balance: 500, Threshold: &threshold},
		{Type: proof.TypeRange, WalletAddress: "w1", Value: 50, Min: 1, Max: 100},
		{Type: proof.TypeTransaction, WalletAddress: "w1", TxSignature: "sig", Amount: 10},
		{Type: proof.TypeIdentity, WalletAddress: "w1", Attributes: map[string]string{"kyc": "done"}},
		{Type: proof.TypeOwnership, WalletAddress: "w1", AssetMint: "mint-1", Quantity: 3},
		{Type: proof.TypeMerkle, WalletAddress: "w1", Element: []byte("a"), Set: [][]byte{[]byte("a"), []byte("b")}},
		{Type: proof.TypeSignature, WalletAddress: "w1", Message: []byte("msg")},
	}

	for _, req := range requests {
		p, err := s.GenerateProof(req)
		require.NoError(t, err, "type %s", req.Type)
		assert.Equal(t, req.Type, p.Type)

		stored, err := s.GetProof(p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ProofHash, stored.ProofHash)
	}

	_, err := s.GenerateProof(&ProofRequest{Type: proof.Type("bogus"), WalletAddress: "w1"})
	assert.ErrorIs(t, err, ErrUnsupportedProofType)
}

func TestGenerateProofDuplicateNullifier(t *testing.T) {
	s := testService(t)

	req := &ProofRequest{Type: proof.TypeTransaction, WalletAddress: "w1", TxSignature: "sig", Amount: 10}

	_, err := s.GenerateProof(req)
	require.NoError(t, err)

	_, err = s.GenerateProof(req)
	assert.ErrorIs(t, err, storage.ErrDuplicateNullifier)
}

func TestGenerateProofDuplicateNullifierRace(t *testing.T) {
	s := testService(t)

	req := &ProofRequest{Type: proof.TypeOwnership, WalletAddress: "w1", AssetMint: "mint-1", Quantity: 1}

	const attempts = 8

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.GenerateProof(req); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
}

func TestVerifyAndMarkVerified(t *testing.T) {
	s := testService(t)

	p, err := s.GenerateProof(&ProofRequest{Type: proof.TypeIdentity, WalletAddress: "w1", Attributes: map[string]string{"age": "over18"}})
	require.NoError(t, err)
	require.False(t, p.Verified)

	result, err := s.VerifyProof(p)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	// Verification alone persists nothing.
	stored, err := s.GetProof(p.ID)
	require.NoError(t, err)
	assert.False(t, stored.Verified)

	require.NoError(t, s.MarkVerified(p.ID))

	stored, err = s.GetProof(p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
}

func TestConsumeProof(t *testing.T) {
	s := testService(t)

	p, err := s.GenerateProof(&ProofRequest{Type: proof.TypeTransaction, WalletAddress: "w1", TxSignature: "sig", Amount: 10})
	require.NoError(t, err)

	require.NoError(t, s.ConsumeProof(p))

	// Second consumption is a double spend.
	err = s.ConsumeProof(p)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProofRejected)
	assert.Contains(t, err.Error(), verification.ReasonDoubleSpend)
}

func TestRevokeReleasesNullifier(t *testing.T) {
	s := testService(t)

	req := &ProofRequest{Type: proof.TypeBalance, WalletAddress: "w1", Balance: 500}

	p, err := s.GenerateProof(req)
	require.NoError(t, err)
	require.NoError(t, s.RevokeProof(p.ID))

	_, err = s.GenerateProof(req)
	assert.NoError(t, err)
}

func TestAggregateProofs(t *testing.T) {
	s := testService(t)

	_, err := s.AggregateProofs(nil)
	assert.ErrorIs(t, err, proof.ErrEmptyBatch)

	p1, err := s.GenerateProof(&ProofRequest{Type: proof.TypeBalance, WalletAddress: "w1", Balance: 100})
	require.NoError(t, err)
	p2, err := s.GenerateProof(&ProofRequest{Type: proof.TypeBalance, WalletAddress: "w2", Balance: 200})
	require.NoError(t, err)

	// Members pass the verifier's integrity check, so the batch verifies
	// even though nothing was marked verified yet.
	agg, err := s.AggregateProofs([]*proof.Proof{p1, p2})
	require.NoError(t, err)
	assert.True(t, agg.Verified)

	wrapped, err := s.GenerateAggregatedProof([]*proof.Proof{p1, p2})
	require.NoError(t, err)
	assert.Equal(t, proof.TypeAggregated, wrapped.Type)

	stored, err := s.GetProof(wrapped.ID)
	require.NoError(t, err)
	assert.Equal(t, wrapped.ProofHash, stored.ProofHash)
}

func TestEncodeDecodeProof(t *testing.T) {
	s := testService(t)

	p, err := s.GenerateProof(&ProofRequest{Type: proof.TypeBalance, WalletAddress: "w1", Balance: 100})
	require.NoError(t, err)

	encoded, err := s.EncodeProof(p)
	require.NoError(t, err)

	decoded, err := s.DecodeProof(encoded)
	require.NoError(t, err)
	assert.Equal(t, p.ProofHash, decoded.ProofHash)
	assert.Equal(t, p.BlindingFactor, decoded.BlindingFactor)

	_, err = s.DecodeProof("garbage")
	assert.Error(t, err)
}

func TestRouteLifecycle(t *testing.T) {
	s := testService(t)

	noJitter := false
	batch, err := s.PlanRoute("w1", "SOL", "USDC", 1000, &routing.Options{
		EnableTimingJitter: &noJitter,
	})
	require.NoError(t, err)
	assert.Equal(t, routing.BatchScheduled, batch.Status)

	result, err := s.ExecuteRoute(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, routing.BatchCompleted, result.FinalStatus)
	assert.Equal(t, batch.TotalSegments, result.CompletedSegments)

	stored, err := s.GetRoute(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, routing.BatchCompleted, stored.Status)

	// A completed batch can be neither executed nor cancelled.
	_, err = s.ExecuteRoute(context.Background(), batch.ID)
	assert.ErrorIs(t, err, routing.ErrNotScheduled)
	assert.ErrorIs(t, s.CancelRoute(batch.ID), routing.ErrNotCancellable)
}

func TestCancelRoute(t *testing.T) {
	s := testService(t)

	batch, err := s.PlanRoute("w1", "SOL", "USDC", 1000, nil)
	require.NoError(t, err)

	require.NoError(t, s.CancelRoute(batch.ID))

	stored, err := s.GetRoute(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, routing.BatchCancelled, stored.Status)
	for _, seg := range stored.Segments {
		assert.Equal(t, routing.SegmentSkipped, seg.Status)
	}

	_, err = s.ExecuteRoute(context.Background(), batch.ID)
	assert.ErrorIs(t, err, routing.ErrNotScheduled)
}

func TestPlanRouteValidation(t *testing.T) {
	s := testService(t)

	_, err := s.PlanRoute("w1", "SOL", "USDC", 0, nil)
	assert.ErrorIs(t, err, routing.ErrInvalidAmount)

	_, err = s.PlanRoute("w1", "SOL", "SOL", 100, nil)
	assert.ErrorIs(t, err, routing.ErrSameToken)

	_, err = s.ExecuteRoute(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrBatchNotFound)
}

func TestStealthCommitment(t *testing.T) {
	s := testService(t)

	secret := []byte("shared-secret")

	commitment, salt, err := s.CreateStealthCommitment(1.23456789, secret)
	require.NoError(t, err)

	// Amounts equal after normalization verify against the same
	// commitment.
	ok, err := s.VerifyStealthCommitment(commitment, 1.234567, secret, salt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.VerifyStealthCommitment(commitment, 1.234568, secret, salt)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.VerifyStealthCommitment(commitment, 1.234567, []byte("wrong"), salt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommitmentOpeningProof(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping zk proving in short mode")
	}

	s := testService(t)

	p, err := s.GenerateProof(&ProofRequest{Type: proof.TypeBalance, WalletAddress: "w1", Balance: 100})
	require.NoError(t, err)

	op, err := s.ProveCommitmentOpening(p)
	require.NoError(t, err)
	require.NoError(t, s.VerifyCommitmentOpening(op))

	p.BlindingFactor = nil
	_, err = s.ProveCommitmentOpening(p)
	assert.ErrorIs(t, err, proof.ErrMissingBlinding)
}

func TestMarkVerifiedRejectsRevoked(t *testing.T) {
	s := testService(t)

	p, err := s.GenerateProof(&ProofRequest{Type: proof.TypeBalance, WalletAddress: "w1", Balance: 100})
	require.NoError(t, err)
	require.NoError(t, s.RevokeProof(p.ID))

	err = s.MarkVerified(p.ID)
	assert.ErrorIs(t, err, ErrProofRejected)
	assert.Contains(t, err.Error(), verification.ReasonRevoked)
}

func TestExecuteRouteConcurrentSingleWinner(t *testing.T) {
	var submissions atomic.Int32

	config := DefaultServiceConfig()
	config.SubmissionRate = rate.Inf
	config.SegmentRunner = routing.SegmentRunnerFunc(func(ctx context.Context, b *routing.RoutingBatch, seg *routing.RoutingSegment) error {
		submissions.Add(1)
		return nil
	})

	secret := bytes.Repeat([]byte{0x5a}, crypto.MasterSecretSize)
	s, err := NewService(nil, mapdb.NewMapDB(), secret, config)
	require.NoError(t, err)

	noJitter := false
	noDecoys := false
	batch, err := s.PlanRoute("w1", "SOL", "USDC", 1000, &routing.Options{
		EnableTimingJitter: &noJitter,
		EnableDecoys:       &noDecoys,
	})
	require.NoError(t, err)
	require.Equal(t, 1, batch.TotalSegments)

	const callers = 8

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ExecuteRoute(context.Background(), batch.ID); err == nil {
				successes.Add(1)
			} else {
				assert.ErrorIs(t, err, routing.ErrNotScheduled)
			}
		}()
	}
	wg.Wait()

	// Exactly one caller claims the batch; the real segment is submitted
	// exactly once.
	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, 1, submissions.Load())

	stored, err := s.GetRoute(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, routing.BatchCompleted, stored.Status)
}
