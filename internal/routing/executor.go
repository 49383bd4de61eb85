package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/iotaledger/hive.go/logger"
	"golang.org/x/time/rate"
)

// decoySettleDelay is the fixed synthetic settle time for decoy
// segments. Decoys exist only to be visible activity and are never run
// against an exchange.
const decoySettleDelay = 50 * time.Millisecond

// SegmentRunner executes a single real segment against the external
// transfer layer. Implementations own transaction submission and
// confirmation; the executor only sees success or failure.
type SegmentRunner interface {
	RunSegment(ctx context.Context, batch *RoutingBatch, segment *RoutingSegment) error
}

// SegmentRunnerFunc adapts a function to the SegmentRunner interface.
type SegmentRunnerFunc func(ctx context.Context, batch *RoutingBatch, segment *RoutingSegment) error

func (f SegmentRunnerFunc) RunSegment(ctx context.Context, batch *RoutingBatch, segment *RoutingSegment) error {
	return f(ctx, batch, segment)
}

// ExecutionResult summarizes one batch execution.
type ExecutionResult struct {
	CompletedSegments int         `json:"completed_segments"`
	FailedSegments    int         `json:"failed_segments"`
	FinalStatus       BatchStatus `json:"final_status"`
}

// Executor drives a scheduled batch through its segments in index
// order. Segments of different batches are independent; a single
// executor may run them concurrently from separate goroutines.
type Executor struct {
	*logger.WrappedLogger

	runner  SegmentRunner
	limiter *rate.Limiter
}

// NewExecutor creates an executor submitting real segments through the
// given runner. submissionRate caps real-segment submissions across all
// batches.
func NewExecutor(log *logger.Logger, runner SegmentRunner, submissionRate rate.Limit) *Executor {
	return &Executor{
		WrappedLogger: logger.NewWrappedLogger(log),
		runner:        runner,
		limiter:       rate.NewLimiter(submissionRate, 1),
	}
}

// Execute runs the batch. It accepts a batch that is scheduled, or one
// the caller already claimed for execution by persisting the executing
// status. The planned per-segment delays are replayed relative to the
// execution start so the timing shape survives a gap between planning
// and execution. A failed real segment marks the batch failed but
// remaining segments still run.
func (e *Executor) Execute(ctx context.Context, batch *RoutingBatch) (*ExecutionResult, error) {
	if batch.Status != BatchScheduled && batch.Status != BatchExecuting {
		return nil, fmt.Errorf("%w: batch %s is %s", ErrNotScheduled, batch.ID, batch.Status)
	}

	batch.Status = BatchExecuting
	start := time.Now()

	result := &ExecutionResult{}

	for _, seg := range batch.Segments {
		if err := e.waitUntil(ctx, start.Add(time.Duration(seg.DelayAppliedMs)*time.Millisecond)); err != nil {
			batch.Status = BatchFailed
			return nil, err
		}

		seg.Status = SegmentExecuting

		if seg.SegmentType == SegmentDecoy {
			if err := e.waitUntil(ctx, time.Now().Add(decoySettleDelay)); err != nil {
				batch.Status = BatchFailed
				return nil, err
			}
			seg.Status = SegmentCompleted
			result.CompletedSegments++
			batch.CompletedSegments++
			continue
		}

		if err := e.limiter.Wait(ctx); err != nil {
			batch.Status = BatchFailed
			return nil, err
		}

		if err := e.runner.RunSegment(ctx, batch, seg); err != nil {
			e.LogWarnf("segment %d of batch %s failed: %s", seg.SegmentIndex, batch.ID, err)
			seg.Status = SegmentFailed
			result.FailedSegments++
			continue
		}

		seg.Status = SegmentCompleted
		result.CompletedSegments++
		batch.CompletedSegments++
	}

	if result.FailedSegments > 0 {
		batch.Status = BatchFailed
	} else {
		batch.Status = BatchCompleted
	}
	result.FinalStatus = batch.Status

	return result, nil
}

// waitUntil sleeps until the deadline or the context ends.
func (e *Executor) waitUntil(ctx context.Context, deadline time.Time) error {
	wait := time.Until(deadline)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
