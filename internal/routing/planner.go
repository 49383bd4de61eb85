package routing

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	mathrand "math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/iotaledger/hive.go/logger"
	"golang.org/x/crypto/blake2b"
)

// Planner turns transfer intents into scheduled routing batches. Batches
// share no state, so planning can run fully in parallel across wallets.
//
// Randomness is split by purpose: the batch seed comes from crypto/rand
// and feeds the segment commitments, while shuffling and delay jitter
// run on a cheap deterministic generator derived from that seed. Replays
// of the same seed reproduce the same batch shape.
type Planner struct {
	*logger.WrappedLogger

	defaults Profile
}

// NewPlanner creates a planner with the given default profile.
func NewPlanner(log *logger.Logger, defaults Profile) *Planner {
	return &Planner{
		WrappedLogger: logger.NewWrappedLogger(log),
		defaults:      defaults,
	}
}

// PlanRoute decomposes the transfer into real/split segments plus
// decoys, shuffles them and scores the batch. The returned batch is in
// the scheduled state, ready for execution.
func (pl *Planner) PlanRoute(walletAddress, inputToken, outputToken string, amount uint64, opts *Options) (*RoutingBatch, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if inputToken == outputToken {
		return nil, fmt.Errorf("%w: %s", ErrSameToken, inputToken)
	}

	profile := pl.defaults.Apply(opts)
	if err := profile.validate(); err != nil {
		return nil, err
	}

	seed := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, fmt.Errorf("failed to generate batch seed: %w", err)
	}

	now := time.Now()
	batch := &RoutingBatch{
		ID:                  uuid.NewString(),
		WalletAddress:       walletAddress,
		InputToken:          inputToken,
		OutputToken:         outputToken,
		TotalAmount:         amount,
		RandomSeed:          hex.EncodeToString(seed),
		Status:              BatchPlanning,
		TimingJitterApplied: profile.EnableTimingJitter,
		CreatedAt:           now,
	}

	// Cosmetic randomness (shuffle, jitter) is derived from the batch
	// seed; commitments bind the seed itself.
	cosmetic := mathrand.New(mathrand.NewSource(int64(binary.BigEndian.Uint64(seed))))

	realCount := 1
	if profile.EnableSplitting && amount > profile.SplitThreshold {
		realCount = int((amount + profile.SplitThreshold - 1) / profile.SplitThreshold)
		if realCount > profile.MaxSplitParts {
			realCount = profile.MaxSplitParts
		}
	}

	segType := SegmentReal
	if realCount > 1 {
		segType = SegmentSplit
	}

	segments := make([]*RoutingSegment, 0, realCount+profile.DecoyCount)

	// Even division; the first segment absorbs the remainder.
	share := amount / uint64(realCount)
	remainder := amount % uint64(realCount)

	var maxDelayMs int64
	for i := 0; i < realCount; i++ {
		segAmount := share
		if i == 0 {
			segAmount += remainder
		}

		var delayMs int64
		if profile.EnableTimingJitter {
			delayMs = profile.MinDelayMs
			if profile.MaxDelayMs > profile.MinDelayMs {
				delayMs += cosmetic.Int63n(profile.MaxDelayMs - profile.MinDelayMs + 1)
			}
		}
		if delayMs > maxDelayMs {
			maxDelayMs = delayMs
		}

		token := outputToken
		amt := segAmount
		segments = append(segments, &RoutingSegment{
			BatchID:        batch.ID,
			SegmentType:    segType,
			Commitment:     segmentCommitment(batch.ID, i, "real", seed),
			Nullifier:      segmentNullifier(batch.ID, walletAddress, i),
			Amount:         &amt,
			TokenMint:      &token,
			ScheduledAt:    now.Add(time.Duration(delayMs) * time.Millisecond),
			DelayAppliedMs: delayMs,
			Status:         SegmentPending,
		})
	}

	// Decoys land at a uniformly random point inside the estimated
	// execution window so they interleave with the real traffic.
	windowMs := maxDelayMs + 1
	if profile.EnableDecoys {
		for i := 0; i < profile.DecoyCount; i++ {
			idx := realCount + i
			delayMs := cosmetic.Int63n(windowMs)
			segments = append(segments, &RoutingSegment{
				BatchID:        batch.ID,
				SegmentType:    SegmentDecoy,
				Commitment:     segmentCommitment(batch.ID, idx, "decoy", seed),
				Nullifier:      segmentNullifier(batch.ID, walletAddress, idx),
				ScheduledAt:    now.Add(time.Duration(delayMs) * time.Millisecond),
				DelayAppliedMs: delayMs,
				Status:         SegmentPending,
			})
		}
	}

	// Uniform shuffle, then re-assign indices so position leaks no type
	// information.
	cosmetic.Shuffle(len(segments), func(i, j int) {
		segments[i], segments[j] = segments[j], segments[i]
	})
	for i, seg := range segments {
		seg.SegmentIndex = i
	}

	batch.Segments = segments
	batch.TotalSegments = len(segments)
	batch.ObfuscationLevel = decoyCount(segments)
	batch.PrivacyScore = privacyScore(segments, profile.EnableTimingJitter, realCount)
	batch.WindowStart = now
	batch.WindowEnd = now.Add(time.Duration(windowMs) * time.Millisecond)
	batch.Status = BatchScheduled

	pl.LogDebugf("planned batch %s: %d segments, privacy score %d", batch.ID, batch.TotalSegments, batch.PrivacyScore)

	return batch, nil
}

// Cancel aborts a batch that has not started executing. All pending
// segments are marked skipped without side effects.
func (pl *Planner) Cancel(batch *RoutingBatch) error {
	if batch.Status != BatchPlanning && batch.Status != BatchScheduled {
		return fmt.Errorf("%w: batch %s is %s", ErrNotCancellable, batch.ID, batch.Status)
	}

	for _, seg := range batch.Segments {
		if seg.Status == SegmentPending {
			seg.Status = SegmentSkipped
		}
	}
	batch.Status = BatchCancelled

	return nil
}

// segmentCommitment computes H(batchID || index || kind || seed) where
// kind is "real" or "decoy".
func segmentCommitment(batchID string, index int, kind string, seed []byte) string {
	h := blake2b.Sum256(append([]byte(batchID+strconv.Itoa(index)+kind), seed...))
	return hex.EncodeToString(h[:])
}

// segmentNullifier computes H(batchID || wallet || index).
func segmentNullifier(batchID, wallet string, index int) string {
	h := blake2b.Sum256([]byte(batchID + wallet + strconv.Itoa(index)))
	return hex.EncodeToString(h[:])
}

func decoyCount(segments []*RoutingSegment) int {
	n := 0
	for _, seg := range segments {
		if seg.SegmentType == SegmentDecoy {
			n++
		}
	}
	return n
}

// privacyScore folds decoy ratio, timing entropy and splitting into one
// 0..100 heuristic.
func privacyScore(segments []*RoutingSegment, jitter bool, realCount int) int {
	total := len(segments)
	if total == 0 {
		return 0
	}

	decoyRatio := float64(decoyCount(segments)) / float64(total)

	timingEntropy := 0.2
	if jitter {
		timingEntropy = 0.8
	}

	splitBonus := 0.0
	if realCount > 1 {
		splitBonus = 15.0
	}

	score := int(decoyRatio*40 + timingEntropy*30 + splitBonus + 15 + 0.5)
	if score > 100 {
		score = 100
	}

	return score
}
