package audit

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrailRecordsOutcomes(t *testing.T) {
	trail := NewTrail("proof-engine", "")

	trail.Record("generateProof", "type=balance", nil)
	trail.Record("verifyProof", "", errors.New("integrity"))

	entries := trail.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, "generateProof", entries[0].Operation)
	assert.Equal(t, StatusSuccess, entries[0].Status)

	assert.Equal(t, StatusFailure, entries[1].Status)
	assert.Contains(t, entries[1].Details, "integrity")
}

func TestTrailMeasure(t *testing.T) {
	trail := NewTrail("proof-engine", "")

	done := trail.Measure("planRoute", "")
	time.Sleep(time.Millisecond)
	done(nil)

	entries := trail.Entries()
	require.Len(t, entries, 1)
	assert.Greater(t, entries[0].DurationNs, int64(0))
}

func TestTrailFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "report.json")
	trail := NewTrail("proof-engine", path)

	trail.Record("generateProof", "type=range", nil)
	require.NoError(t, trail.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "proof-engine", report.Component)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, "generateProof", report.Entries[0].Operation)
}

func TestDisabledTrail(t *testing.T) {
	trail := NewDisabledTrail()

	trail.Record("generateProof", "", nil)
	assert.Empty(t, trail.Entries())
	assert.NoError(t, trail.Flush())
}

func TestTrailConcurrentRecords(t *testing.T) {
	trail := NewTrail("proof-engine", "")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				trail.Record("op", "", nil)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, trail.Entries(), 800)
}
