package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func plannedBatch(t *testing.T, profile Profile) *RoutingBatch {
	t.Helper()

	batch, err := NewPlanner(nil, profile).PlanRoute("wallet-1", "SOL", "USDC", 1000, nil)
	require.NoError(t, err)

	return batch
}

func TestExecuteRequiresScheduled(t *testing.T) {
	e := NewExecutor(nil, SegmentRunnerFunc(func(ctx context.Context, b *RoutingBatch, s *RoutingSegment) error {
		return nil
	}), rate.Inf)

	batch := plannedBatch(t, Profile{})
	batch.Status = BatchCompleted

	_, err := e.Execute(context.Background(), batch)
	assert.ErrorIs(t, err, ErrNotScheduled)
}

func TestExecuteCompletesBatch(t *testing.T) {
	var ran int
	e := NewExecutor(nil, SegmentRunnerFunc(func(ctx context.Context, b *RoutingBatch, s *RoutingSegment) error {
		ran++
		return nil
	}), rate.Inf)

	batch := plannedBatch(t, Profile{
		EnableDecoys:    true,
		DecoyCount:      2,
		EnableSplitting: true,
		SplitThreshold:  500,
		MaxSplitParts:   2,
	})

	result, err := e.Execute(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, BatchCompleted, result.FinalStatus)
	assert.Equal(t, 4, result.CompletedSegments)
	assert.Equal(t, 0, result.FailedSegments)
	assert.Equal(t, 4, batch.CompletedSegments)

	// The runner only ever sees real segments.
	assert.Equal(t, 2, ran)

	for _, seg := range batch.Segments {
		assert.Equal(t, SegmentCompleted, seg.Status)
	}
}

func TestExecuteFailedRealSegmentFailsBatch(t *testing.T) {
	failures := 0
	e := NewExecutor(nil, SegmentRunnerFunc(func(ctx context.Context, b *RoutingBatch, s *RoutingSegment) error {
		failures++
		if failures == 1 {
			return errors.New("transfer rejected")
		}
		return nil
	}), rate.Inf)

	batch := plannedBatch(t, Profile{
		EnableSplitting: true,
		SplitThreshold:  500,
		MaxSplitParts:   2,
	})
	require.Len(t, batch.Segments, 2)

	result, err := e.Execute(context.Background(), batch)
	require.NoError(t, err)

	// The failure is recorded but the rest of the batch still runs.
	assert.Equal(t, BatchFailed, result.FinalStatus)
	assert.Equal(t, 1, result.FailedSegments)
	assert.Equal(t, 1, result.CompletedSegments)
	assert.Equal(t, 2, failures)
}

func TestExecuteHonorsContext(t *testing.T) {
	e := NewExecutor(nil, SegmentRunnerFunc(func(ctx context.Context, b *RoutingBatch, s *RoutingSegment) error {
		return nil
	}), rate.Inf)

	batch := plannedBatch(t, Profile{
		EnableTimingJitter: true,
		MinDelayMs:         60_000,
		MaxDelayMs:         60_000,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, batch)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, BatchFailed, batch.Status)
}
