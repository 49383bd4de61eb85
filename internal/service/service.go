// Package service is the engine facade: it wires the proof generators,
// the integrity verifier, the aggregator, the codec, the routing
// planner and persistence into the operation surface callers use.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/iotaledger/hive.go/kvstore"
	"github.com/iotaledger/hive.go/logger"

	"github.com/veilswap/veilcore/internal/audit"
	"github.com/veilswap/veilcore/internal/crypto"
	"github.com/veilswap/veilcore/internal/interfaces"
	"github.com/veilswap/veilcore/internal/monitoring"
	"github.com/veilswap/veilcore/internal/proof"
	"github.com/veilswap/veilcore/internal/routing"
	"github.com/veilswap/veilcore/internal/storage"
	"github.com/veilswap/veilcore/internal/verification"
)

// Service exposes the privacy engine's operations. All proof operations
// are synchronous; only route execution awaits external confirmation.
type Service struct {
	*logger.WrappedLogger

	config *ServiceConfig
	keys   *crypto.KeyManager

	generator  *proof.Generator
	aggregator *proof.Aggregator
	codec      *proof.Codec
	verifier   *verification.Verifier
	prover     interfaces.CommitmentProver

	proofs     *storage.ProofStore
	batches    *storage.BatchStore
	nullifiers interfaces.NullifierStore

	planner  *routing.Planner
	executor *routing.Executor

	metrics *monitoring.MetricsCollector
	trail   *audit.Trail
}

// NewService creates the engine on the given backing store. A missing
// or malformed master secret is fatal; there is no degraded mode
// without one.
func NewService(log *logger.Logger, store kvstore.KVStore, masterSecret []byte, config *ServiceConfig) (*Service, error) {
	if config == nil {
		config = DefaultServiceConfig()
	}

	keys, err := crypto.NewKeyManager(masterSecret)
	if err != nil {
		return nil, err
	}

	codec, err := proof.NewCodec(keys, config.CodecSalt)
	if err != nil {
		return nil, err
	}

	proofs, err := storage.NewProofStore(store, codec)
	if err != nil {
		return nil, err
	}

	batches, err := storage.NewBatchStore(store)
	if err != nil {
		return nil, err
	}

	nullifiers, err := storage.NewConsumedNullifierStore(store)
	if err != nil {
		return nil, err
	}

	verifier := verification.NewVerifier(log, nullifiers)

	runner := config.SegmentRunner
	if runner == nil {
		runner = simulatedRunner{}
	}

	trail := audit.NewDisabledTrail()
	if config.AuditLogPath != "" {
		trail = audit.NewTrail("veilcore", config.AuditLogPath)
	}

	s := &Service{
		WrappedLogger: logger.NewWrappedLogger(log),
		config:        config,
		keys:          keys,
		generator:     proof.NewGenerator(log, keys),
		aggregator:    proof.NewAggregator(verifier.Check),
		codec:         codec,
		verifier:      verifier,
		prover:        crypto.NewOpeningProver(),
		proofs:        proofs,
		batches:       batches,
		nullifiers:    nullifiers,
		planner:       routing.NewPlanner(log, routing.DefaultProfile(config.PrivacyLevel)),
		executor:      routing.NewExecutor(log, runner, config.SubmissionRate),
		trail:         trail,
	}

	return s, nil
}

// WithMetrics attaches a metrics collector. Must be called before the
// service handles traffic.
func (s *Service) WithMetrics(metrics *monitoring.MetricsCollector) *Service {
	s.metrics = metrics
	return s
}

// GenerateProof builds and persists a proof for the request. Fails with
// storage.ErrDuplicateNullifier while another active proof holds the
// derived nullifier.
func (s *Service) GenerateProof(req *ProofRequest) (*proof.Proof, error) {
	start := time.Now()

	p, err := s.dispatch(req)
	if err != nil {
		s.trail.RecordWithDuration("generateProof", "type="+string(req.Type), time.Since(start), err)
		return nil, err
	}

	if err := s.proofs.PutNew(p); err != nil {
		s.trail.RecordWithDuration("generateProof", "type="+string(req.Type), time.Since(start), err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordProofGenerated(string(p.Type), time.Since(start))
	}
	s.trail.RecordWithDuration("generateProof", "type="+string(req.Type), time.Since(start), nil)

	return p, nil
}

func (s *Service) dispatch(req *ProofRequest) (*proof.Proof, error) {
	switch req.Type {
	case proof.TypeBalance:
		return s.generator.GenerateBalanceProof(req.WalletAddress, req.Balance, req.Threshold)
	case proof.TypeRange:
		return s.generator.GenerateRangeProof(req.WalletAddress, req.Value, req.Min, req.Max)
	case proof.TypeTransaction:
		return s.generator.GenerateTransactionProof(req.WalletAddress, req.TxSignature, req.Amount)
	case proof.TypeIdentity:
		return s.generator.GenerateIdentityProof(req.WalletAddress, req.Attributes)
	case proof.TypeOwnership:
		return s.generator.GenerateOwnershipProof(req.WalletAddress, req.AssetMint, req.Quantity)
	case proof.TypeMerkle:
		return s.generator.GenerateMerkleProof(req.WalletAddress, req.Element, req.Set)
	case proof.TypeSignature:
		return s.generator.GenerateSignatureProof(req.WalletAddress, req.Message)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProofType, req.Type)
	}
}

// VerifyProof checks the proof without mutating any state. Callers
// decide whether to persist the verified flag afterwards.
func (s *Service) VerifyProof(p *proof.Proof) (*verification.Result, error) {
	result, err := s.verifier.Verify(p)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		outcome := "valid"
		if !result.Valid {
			outcome = result.Reason
		}
		s.metrics.RecordProofVerified(string(p.Type), outcome)
	}

	return result, nil
}

// MarkVerified re-checks the stored proof and persists verified=true if
// it passes. Returns ErrProofRejected with the reason otherwise.
func (s *Service) MarkVerified(proofID string) error {
	p, err := s.proofs.Get(proofID)
	if err != nil {
		return err
	}

	result, err := s.VerifyProof(p)
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("%w: %s", ErrProofRejected, result.Reason)
	}

	return s.proofs.MarkVerified(proofID)
}

// RevokeProof marks the proof revoked, releasing its nullifier for
// future proofs. Revocation is terminal.
func (s *Service) RevokeProof(proofID string) error {
	s.trail.Record("revokeProof", "id="+proofID, nil)
	return s.proofs.Revoke(proofID)
}

// GetProof loads a stored proof by ID.
func (s *Service) GetProof(proofID string) (*proof.Proof, error) {
	return s.proofs.Get(proofID)
}

// ConsumeProof verifies the proof and atomically consumes its
// nullifier. Of two concurrent consumers of the same proof exactly one
// succeeds.
func (s *Service) ConsumeProof(p *proof.Proof) error {
	result, err := s.VerifyProof(p)
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("%w: %s", ErrProofRejected, result.Reason)
	}

	if err := s.verifier.ConsumeNullifier(p); err != nil {
		if s.metrics != nil {
			s.metrics.RecordDoubleSpendBlocked()
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordNullifierConsumed()
	}
	s.trail.Record("consumeProof", "id="+p.ID, nil)

	return nil
}

// AggregateProofs folds the proofs into one batch record. Fails with
// proof.ErrEmptyBatch on zero input.
func (s *Service) AggregateProofs(proofs []*proof.Proof) (*proof.AggregatedProof, error) {
	return s.aggregator.Aggregate(proofs)
}

// GenerateAggregatedProof wraps an aggregation into a standard proof
// record and persists it.
func (s *Service) GenerateAggregatedProof(proofs []*proof.Proof) (*proof.Proof, error) {
	p, err := s.aggregator.GenerateAggregatedProof(proofs)
	if err != nil {
		return nil, err
	}

	if err := s.proofs.PutNew(p); err != nil {
		return nil, err
	}

	return p, nil
}

// EncodeProof serializes the proof to its compact transport form.
func (s *Service) EncodeProof(p *proof.Proof) (string, error) {
	return s.codec.Encode(p)
}

// DecodeProof reverses EncodeProof. Tampered or malformed input is an
// error, never a silently wrong proof.
func (s *Service) DecodeProof(encoded string) (*proof.Proof, error) {
	return s.codec.Decode(encoded)
}

// PlanRoute plans and persists an obfuscated routing batch for the
// transfer.
func (s *Service) PlanRoute(walletAddress, inputToken, outputToken string, amount uint64, opts *routing.Options) (*routing.RoutingBatch, error) {
	done := s.trail.Measure("planRoute", "wallet="+walletAddress)

	batch, err := s.planner.PlanRoute(walletAddress, inputToken, outputToken, amount, opts)
	if err != nil {
		done(err)
		return nil, err
	}

	if err := s.batches.Put(batch); err != nil {
		done(err)
		return nil, err
	}

	if s.metrics != nil {
		segTypes := make([]string, len(batch.Segments))
		for i, seg := range batch.Segments {
			segTypes[i] = string(seg.SegmentType)
		}
		s.metrics.RecordBatchPlanned(string(batch.Status), batch.PrivacyScore, segTypes)
	}
	done(nil)

	return batch, nil
}

// ExecuteRoute runs a scheduled batch to completion and persists the
// outcome. Fails with routing.ErrNotScheduled if the batch already
// started or finished.
func (s *Service) ExecuteRoute(ctx context.Context, batchID string) (*routing.ExecutionResult, error) {
	// The scheduled->executing transition is persisted under the store
	// lock before any segment runs, so of two concurrent callers exactly
	// one claims the batch; the other fails the status check.
	batch, err := s.batches.Update(batchID, func(b *routing.RoutingBatch) error {
		if b.Status != routing.BatchScheduled {
			return fmt.Errorf("%w: batch %s is %s", routing.ErrNotScheduled, b.ID, b.Status)
		}
		b.Status = routing.BatchExecuting
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := s.executor.Execute(ctx, batch)

	// Persist whatever state the execution reached, also on failure.
	if putErr := s.batches.Put(batch); putErr != nil && err == nil {
		err = putErr
	}
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		for _, seg := range batch.Segments {
			s.metrics.RecordSegmentRun(string(seg.SegmentType), string(seg.Status))
		}
	}
	s.trail.Record("executeRoute", fmt.Sprintf("batch=%s status=%s", batchID, result.FinalStatus), nil)

	return result, nil
}

// CancelRoute aborts a batch that has not started executing. Fails with
// routing.ErrNotCancellable outside planning/scheduled.
func (s *Service) CancelRoute(batchID string) error {
	// Cancellation goes through the same store lock as the execution
	// claim, so it can never stomp a batch that just started executing.
	if _, err := s.batches.Update(batchID, func(b *routing.RoutingBatch) error {
		return s.planner.Cancel(b)
	}); err != nil {
		return err
	}

	s.trail.Record("cancelRoute", "batch="+batchID, nil)

	return nil
}

// GetRoute loads a stored batch by ID.
func (s *Service) GetRoute(batchID string) (*routing.RoutingBatch, error) {
	return s.batches.Get(batchID)
}

// CreateStealthCommitment commits to a payment amount under the secret.
// The amount is normalized to a fixed decimal precision first, so
// amounts differing only beyond that precision commit identically.
// Returns the commitment and the fresh salt, both hex.
func (s *Service) CreateStealthCommitment(amount float64, secret []byte) (string, string, error) {
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}

	commitment := crypto.StealthCommit(amount, secret, salt)

	return hex.EncodeToString(commitment), hex.EncodeToString(salt), nil
}

// VerifyStealthCommitment checks a stealth commitment against the
// claimed amount and secret.
func (s *Service) VerifyStealthCommitment(commitmentHex string, amount float64, secret []byte, saltHex string) (bool, error) {
	commitment, err := hex.DecodeString(commitmentHex)
	if err != nil {
		return false, fmt.Errorf("invalid commitment encoding: %w", err)
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false, fmt.Errorf("invalid salt encoding: %w", err)
	}

	return crypto.StealthOpen(commitment, amount, secret, salt), nil
}

// ProveCommitmentOpening produces a zero-knowledge proof that the
// service knows the blinding behind the proof's claim digest. Unlike the
// keyed-hash commitment itself, the returned proof is verifiable by a
// third party without the blinding factor.
func (s *Service) ProveCommitmentOpening(p *proof.Proof) (*crypto.OpeningProof, error) {
	if len(p.BlindingFactor) == 0 {
		return nil, proof.ErrMissingBlinding
	}

	digest, err := hex.DecodeString(p.ProofHash)
	if err != nil {
		return nil, fmt.Errorf("invalid proof hash encoding: %w", err)
	}

	return s.prover.ProveOpening(digest, p.BlindingFactor)
}

// VerifyCommitmentOpening checks a zero-knowledge opening proof.
func (s *Service) VerifyCommitmentOpening(op *crypto.OpeningProof) error {
	return s.prover.VerifyOpening(op)
}

// Close flushes the audit trail and clears key material.
func (s *Service) Close() error {
	err := s.trail.Flush()
	s.keys.Clear()
	return err
}

// simulatedRunner settles real segments locally without touching an
// exchange. Used when no external transfer layer is wired in.
type simulatedRunner struct{}

func (simulatedRunner) RunSegment(ctx context.Context, batch *routing.RoutingBatch, segment *routing.RoutingSegment) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil
	}
}
