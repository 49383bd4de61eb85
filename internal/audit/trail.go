// Package audit records the engine's privacy-sensitive operations as a
// structured trail that can be flushed to a JSON report. The trail never
// captures private values, only operation names, outcomes and timings.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// Entry is one recorded operation.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationNs int64     `json:"duration_ns"`
	Details    string    `json:"details"`
}

// Report is the flushed form of a trail.
type Report struct {
	Component   string    `json:"component"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Entries     []Entry   `json:"entries"`
}

// Trail is a thread-safe in-memory audit trail.
type Trail struct {
	mu         sync.Mutex
	component  string
	outputPath string
	entries    []Entry
	startTime  time.Time
	enabled    bool
}

// NewTrail creates an audit trail for the given component. outputPath
// may be empty, in which case Flush is a no-op.
func NewTrail(component, outputPath string) *Trail {
	return &Trail{
		component:  component,
		outputPath: outputPath,
		entries:    make([]Entry, 0, 100),
		startTime:  time.Now(),
		enabled:    true,
	}
}

// NewDisabledTrail creates a no-op trail.
func NewDisabledTrail() *Trail {
	return &Trail{}
}

// Record logs an operation outcome.
func (t *Trail) Record(operation, details string, err error) {
	t.RecordWithDuration(operation, details, 0, err)
}

// RecordWithDuration logs an operation outcome with its measured
// duration.
func (t *Trail) RecordWithDuration(operation, details string, duration time.Duration, err error) {
	if !t.enabled {
		return
	}

	status := StatusSuccess
	if err != nil {
		status = StatusFailure
		if details != "" {
			details = fmt.Sprintf("%s; error: %v", details, err)
		} else {
			details = fmt.Sprintf("error: %v", err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, Entry{
		Timestamp:  time.Now(),
		Operation:  operation,
		Status:     status,
		DurationNs: duration.Nanoseconds(),
		Details:    details,
	})
}

// Measure returns a closure that records the operation with the elapsed
// time since the call. Usage: defer trail.Measure("planRoute", "")(nil).
func (t *Trail) Measure(operation, details string) func(err error) {
	start := time.Now()
	return func(err error) {
		t.RecordWithDuration(operation, details, time.Since(start), err)
	}
}

// Entries returns a copy of all recorded entries.
func (t *Trail) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := make([]Entry, len(t.entries))
	copy(entries, t.entries)

	return entries
}

// Flush writes the trail as a JSON report to the configured path.
func (t *Trail) Flush() error {
	if !t.enabled || t.outputPath == "" {
		return nil
	}

	t.mu.Lock()
	report := &Report{
		Component:   t.component,
		StartedAt:   t.startTime,
		CompletedAt: time.Now(),
		Entries:     append([]Entry(nil), t.entries...),
	}
	t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal audit report: %w", err)
	}

	if err := os.WriteFile(t.outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write audit report: %w", err)
	}

	return nil
}
