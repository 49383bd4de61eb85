package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilswap/veilcore/internal/interfaces"
)

func TestPlanRouteValidation(t *testing.T) {
	pl := NewPlanner(nil, DefaultProfile(interfaces.PrivacyStandard))

	_, err := pl.PlanRoute("wallet-1", "SOL", "USDC", 0, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = pl.PlanRoute("wallet-1", "SOL", "SOL", 100, nil)
	assert.ErrorIs(t, err, ErrSameToken)
}

func TestPlanRouteDecoysWithoutSplitting(t *testing.T) {
	pl := NewPlanner(nil, Profile{
		EnableDecoys: true,
		DecoyCount:   2,
	})

	batch, err := pl.PlanRoute("wallet-1", "SOL", "USDC", 10, nil)
	require.NoError(t, err)

	assert.Equal(t, BatchScheduled, batch.Status)
	assert.Equal(t, 3, batch.TotalSegments)
	require.Len(t, batch.Segments, 3)

	carrying := 0
	for _, seg := range batch.Segments {
		if seg.SegmentType == SegmentDecoy {
			assert.Nil(t, seg.Amount)
			assert.Nil(t, seg.TokenMint)
			continue
		}
		require.NotNil(t, seg.Amount)
		require.NotNil(t, seg.TokenMint)
		assert.EqualValues(t, 10, *seg.Amount)
		assert.Equal(t, "USDC", *seg.TokenMint)
		carrying++
	}
	assert.Equal(t, 1, carrying)

	assert.GreaterOrEqual(t, batch.PrivacyScore, 0)
	assert.LessOrEqual(t, batch.PrivacyScore, 100)
}

func TestPlanRouteSplitting(t *testing.T) {
	pl := NewPlanner(nil, Profile{
		EnableSplitting: true,
		SplitThreshold:  500,
		MaxSplitParts:   3,
	})

	batch, err := pl.PlanRoute("wallet-1", "SOL", "USDC", 1000, nil)
	require.NoError(t, err)
	require.Len(t, batch.Segments, 2)

	for _, seg := range batch.Segments {
		assert.Equal(t, SegmentSplit, seg.SegmentType)
		require.NotNil(t, seg.Amount)
		assert.EqualValues(t, 500, *seg.Amount)
	}
}

func TestPlanRouteSplitCapAndRemainder(t *testing.T) {
	pl := NewPlanner(nil, Profile{
		EnableSplitting: true,
		SplitThreshold:  100,
		MaxSplitParts:   3,
	})

	// ceil(1000/100) = 10 parts, capped at 3.
	batch, err := pl.PlanRoute("wallet-1", "SOL", "USDC", 1000, nil)
	require.NoError(t, err)
	require.Len(t, batch.Segments, 3)

	var total uint64
	for _, seg := range batch.Segments {
		require.NotNil(t, seg.Amount)
		total += *seg.Amount
	}
	assert.EqualValues(t, 1000, total)
}

func TestPlanRouteIndicesAndCommitments(t *testing.T) {
	pl := NewPlanner(nil, Profile{
		EnableDecoys:    true,
		DecoyCount:      4,
		EnableSplitting: true,
		SplitThreshold:  100,
		MaxSplitParts:   4,
	})

	batch, err := pl.PlanRoute("wallet-1", "SOL", "USDC", 400, nil)
	require.NoError(t, err)
	require.Len(t, batch.Segments, 8)

	seen := make(map[string]struct{})
	for i, seg := range batch.Segments {
		assert.Equal(t, i, seg.SegmentIndex)
		assert.Equal(t, batch.ID, seg.BatchID)
		assert.Equal(t, SegmentPending, seg.Status)
		assert.NotEmpty(t, seg.Commitment)
		assert.NotEmpty(t, seg.Nullifier)

		_, dup := seen[seg.Commitment]
		assert.False(t, dup, "duplicate commitment at index %d", i)
		seen[seg.Commitment] = struct{}{}
	}

	assert.Equal(t, 4, batch.ObfuscationLevel)
}

func TestPlanRouteOptionsOverrideProfile(t *testing.T) {
	pl := NewPlanner(nil, DefaultProfile(interfaces.PrivacyStandard))

	noDecoys := false
	batch, err := pl.PlanRoute("wallet-1", "SOL", "USDC", 10, &Options{
		EnableDecoys: &noDecoys,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, batch.TotalSegments)
	assert.Equal(t, 0, batch.ObfuscationLevel)
}

func TestPlanRouteJitterDelays(t *testing.T) {
	pl := NewPlanner(nil, Profile{
		EnableTimingJitter: true,
		MinDelayMs:         100,
		MaxDelayMs:         200,
	})

	batch, err := pl.PlanRoute("wallet-1", "SOL", "USDC", 10, nil)
	require.NoError(t, err)
	require.True(t, batch.TimingJitterApplied)

	for _, seg := range batch.Segments {
		assert.GreaterOrEqual(t, seg.DelayAppliedMs, int64(100))
		assert.LessOrEqual(t, seg.DelayAppliedMs, int64(200))
	}
}

func TestCancel(t *testing.T) {
	pl := NewPlanner(nil, DefaultProfile(interfaces.PrivacyStandard))

	batch, err := pl.PlanRoute("wallet-1", "SOL", "USDC", 10, nil)
	require.NoError(t, err)

	require.NoError(t, pl.Cancel(batch))
	assert.Equal(t, BatchCancelled, batch.Status)
	for _, seg := range batch.Segments {
		assert.Equal(t, SegmentSkipped, seg.Status)
	}

	assert.ErrorIs(t, pl.Cancel(batch), ErrNotCancellable)
}

func TestPrivacyScoreMonotonicInDecoys(t *testing.T) {
	plain := NewPlanner(nil, Profile{})
	heavy := NewPlanner(nil, Profile{
		EnableDecoys:       true,
		EnableTimingJitter: true,
		DecoyCount:         8,
	})

	low, err := plain.PlanRoute("wallet-1", "SOL", "USDC", 10, nil)
	require.NoError(t, err)
	high, err := heavy.PlanRoute("wallet-1", "SOL", "USDC", 10, nil)
	require.NoError(t, err)

	assert.Greater(t, high.PrivacyScore, low.PrivacyScore)
}

func TestPlanRouteRejectsDegenerateProfiles(t *testing.T) {
	pl := NewPlanner(nil, DefaultProfile(interfaces.PrivacyStandard))

	splitting := true
	zeroThreshold := uint64(0)
	_, err := pl.PlanRoute("wallet-1", "SOL", "USDC", 100, &Options{
		EnableSplitting: &splitting,
		SplitThreshold:  &zeroThreshold,
	})
	assert.ErrorIs(t, err, ErrInvalidProfile)

	noParts := 0
	_, err = pl.PlanRoute("wallet-1", "SOL", "USDC", 100, &Options{
		EnableSplitting: &splitting,
		MaxSplitParts:   &noParts,
	})
	assert.ErrorIs(t, err, ErrInvalidProfile)

	minDelay := int64(500)
	maxDelay := int64(100)
	_, err = pl.PlanRoute("wallet-1", "SOL", "USDC", 100, &Options{
		MinDelayMs: &minDelay,
		MaxDelayMs: &maxDelay,
	})
	assert.ErrorIs(t, err, ErrInvalidProfile)

	noDecoys := 0
	_, err = pl.PlanRoute("wallet-1", "SOL", "USDC", 100, &Options{
		DecoyCount: &noDecoys,
	})
	assert.ErrorIs(t, err, ErrInvalidProfile)
}
