// Package routing decomposes a single transfer intent into a shuffled
// batch of real, split and decoy segments with timing jitter, and scores
// the batch's resistance to timing- and pattern-based analysis.
package routing

import (
	"errors"
	"fmt"
	"time"

	"github.com/veilswap/veilcore/internal/interfaces"
)

// BatchStatus is the lifecycle state of a routing batch.
type BatchStatus string

const (
	BatchPlanning  BatchStatus = "planning"
	BatchScheduled BatchStatus = "scheduled"
	BatchExecuting BatchStatus = "executing"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
	BatchCancelled BatchStatus = "cancelled"
)

// SegmentType classifies a routing segment.
type SegmentType string

const (
	// SegmentReal carries the full transfer amount.
	SegmentReal SegmentType = "real"
	// SegmentSplit carries one even share of a split transfer.
	SegmentSplit SegmentType = "split"
	// SegmentDecoy carries nothing. The absence of amount and token, not
	// a zero value, is the hiding mechanism.
	SegmentDecoy SegmentType = "decoy"
)

// SegmentStatus is the lifecycle state of a single segment.
type SegmentStatus string

const (
	SegmentPending   SegmentStatus = "pending"
	SegmentExecuting SegmentStatus = "executing"
	SegmentCompleted SegmentStatus = "completed"
	SegmentFailed    SegmentStatus = "failed"
	SegmentSkipped   SegmentStatus = "skipped"
)

var (
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrSameToken      = errors.New("input and output token must differ")
	ErrInvalidProfile = errors.New("invalid obfuscation profile")
	ErrNotScheduled   = errors.New("batch is not in scheduled state")
	ErrNotCancellable = errors.New("batch can only be cancelled while planning or scheduled")
)

// RoutingBatch is one planned obfuscated transfer.
type RoutingBatch struct {
	ID                  string            `json:"id"`
	WalletAddress       string            `json:"wallet_address"`
	InputToken          string            `json:"input_token"`
	OutputToken         string            `json:"output_token"`
	TotalAmount         uint64            `json:"total_amount"`
	RandomSeed          string            `json:"random_seed"`
	Status              BatchStatus       `json:"status"`
	Segments            []*RoutingSegment `json:"segments"`
	TotalSegments       int               `json:"total_segments"`
	CompletedSegments   int               `json:"completed_segments"`
	PrivacyScore        int               `json:"privacy_score"`
	ObfuscationLevel    int               `json:"obfuscation_level"`
	TimingJitterApplied bool              `json:"timing_jitter_applied"`
	WindowStart         time.Time         `json:"window_start"`
	WindowEnd           time.Time         `json:"window_end"`
	CreatedAt           time.Time         `json:"created_at"`
}

// RoutingSegment is one step of a batch. Amount and TokenMint are nil
// for decoys.
type RoutingSegment struct {
	BatchID        string        `json:"batch_id"`
	SegmentIndex   int           `json:"segment_index"`
	SegmentType    SegmentType   `json:"segment_type"`
	Commitment     string        `json:"commitment"`
	Nullifier      string        `json:"nullifier"`
	Amount         *uint64       `json:"amount"`
	TokenMint      *string       `json:"token_mint"`
	ScheduledAt    time.Time     `json:"scheduled_at"`
	DelayAppliedMs int64         `json:"delay_applied_ms"`
	Status         SegmentStatus `json:"status"`
}

// Profile is the full set of obfuscation settings in effect for one
// batch.
type Profile struct {
	EnableDecoys       bool
	EnableTimingJitter bool
	EnableSplitting    bool
	DecoyCount         int
	MinDelayMs         int64
	MaxDelayMs         int64
	SplitThreshold     uint64
	MaxSplitParts      int
}

// validate rejects settings the planner cannot act on. Overrides can
// produce degenerate profiles, so this runs on the effective profile
// after Apply.
func (p Profile) validate() error {
	if p.EnableSplitting && (p.SplitThreshold == 0 || p.MaxSplitParts < 1) {
		return fmt.Errorf("%w: splitting requires a positive threshold and at least one part", ErrInvalidProfile)
	}
	if p.EnableTimingJitter && (p.MinDelayMs < 0 || p.MaxDelayMs < p.MinDelayMs) {
		return fmt.Errorf("%w: jitter window [%d, %d]ms", ErrInvalidProfile, p.MinDelayMs, p.MaxDelayMs)
	}
	if p.EnableDecoys && p.DecoyCount < 1 {
		return fmt.Errorf("%w: decoys enabled with count %d", ErrInvalidProfile, p.DecoyCount)
	}

	return nil
}

// Options overrides individual Profile fields per request. Nil fields
// keep the profile's value.
type Options struct {
	EnableDecoys       *bool
	EnableTimingJitter *bool
	EnableSplitting    *bool
	DecoyCount         *int
	MinDelayMs         *int64
	MaxDelayMs         *int64
	SplitThreshold     *uint64
	MaxSplitParts      *int
}

// DefaultProfile returns the obfuscation defaults for a privacy level.
func DefaultProfile(level interfaces.PrivacyLevel) Profile {
	switch level {
	case interfaces.PrivacyLow:
		return Profile{
			EnableDecoys:   false,
			SplitThreshold: 10_000,
			MaxSplitParts:  2,
			MinDelayMs:     0,
			MaxDelayMs:     0,
		}
	case interfaces.PrivacyHigh:
		return Profile{
			EnableDecoys:       true,
			EnableTimingJitter: true,
			EnableSplitting:    true,
			DecoyCount:         4,
			MinDelayMs:         500,
			MaxDelayMs:         8_000,
			SplitThreshold:     1_000,
			MaxSplitParts:      5,
		}
	case interfaces.PrivacyMaximum:
		return Profile{
			EnableDecoys:       true,
			EnableTimingJitter: true,
			EnableSplitting:    true,
			DecoyCount:         8,
			MinDelayMs:         1_000,
			MaxDelayMs:         15_000,
			SplitThreshold:     500,
			MaxSplitParts:      8,
		}
	default:
		return Profile{
			EnableDecoys:       true,
			EnableTimingJitter: true,
			EnableSplitting:    false,
			DecoyCount:         2,
			MinDelayMs:         250,
			MaxDelayMs:         4_000,
			SplitThreshold:     5_000,
			MaxSplitParts:      3,
		}
	}
}

// Apply merges the request's overrides into the profile.
func (p Profile) Apply(opts *Options) Profile {
	if opts == nil {
		return p
	}

	if opts.EnableDecoys != nil {
		p.EnableDecoys = *opts.EnableDecoys
	}
	if opts.EnableTimingJitter != nil {
		p.EnableTimingJitter = *opts.EnableTimingJitter
	}
	if opts.EnableSplitting != nil {
		p.EnableSplitting = *opts.EnableSplitting
	}
	if opts.DecoyCount != nil {
		p.DecoyCount = *opts.DecoyCount
	}
	if opts.MinDelayMs != nil {
		p.MinDelayMs = *opts.MinDelayMs
	}
	if opts.MaxDelayMs != nil {
		p.MaxDelayMs = *opts.MaxDelayMs
	}
	if opts.SplitThreshold != nil {
		p.SplitThreshold = *opts.SplitThreshold
	}
	if opts.MaxSplitParts != nil {
		p.MaxSplitParts = *opts.MaxSplitParts
	}

	return p
}
