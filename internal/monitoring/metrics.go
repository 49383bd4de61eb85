// Package monitoring exposes engine metrics through Prometheus.
package monitoring

import (
	"time"

	"github.com/iotaledger/hive.go/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector collects and exposes proof and routing metrics.
type MetricsCollector struct {
	*logger.WrappedLogger

	// Proof metrics
	proofsGenerated *prometheus.CounterVec
	proofsVerified  *prometheus.CounterVec
	proofDuration   *prometheus.HistogramVec

	// Nullifier metrics
	nullifiersConsumed  prometheus.Counter
	doubleSpendsBlocked prometheus.Counter

	// Routing metrics
	batchesPlanned  *prometheus.CounterVec
	segmentsPlanned *prometheus.CounterVec
	segmentsRun     *prometheus.CounterVec
	privacyScore    prometheus.Histogram
}

// NewMetricsCollector creates a metrics collector. Metrics register on
// the default registry through promauto, so only one collector may
// exist per process.
func NewMetricsCollector(log *logger.Logger) *MetricsCollector {
	return &MetricsCollector{
		WrappedLogger: logger.NewWrappedLogger(log),

		proofsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veilcore",
			Subsystem: "proofs",
			Name:      "generated_total",
			Help:      "Total number of proofs generated",
		}, []string{"type"}),

		proofsVerified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veilcore",
			Subsystem: "proofs",
			Name:      "verified_total",
			Help:      "Total number of proof verifications by outcome",
		}, []string{"type", "result"}),

		proofDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "veilcore",
			Subsystem: "proofs",
			Name:      "generation_duration_seconds",
			Help:      "Proof generation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),

		nullifiersConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "veilcore",
			Subsystem: "nullifiers",
			Name:      "consumed_total",
			Help:      "Total number of nullifiers consumed",
		}),

		doubleSpendsBlocked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "veilcore",
			Subsystem: "nullifiers",
			Name:      "double_spends_blocked_total",
			Help:      "Total number of rejected duplicate nullifier consumptions",
		}),

		batchesPlanned: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veilcore",
			Subsystem: "routing",
			Name:      "batches_planned_total",
			Help:      "Total number of routing batches planned",
		}, []string{"status"}),

		segmentsPlanned: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veilcore",
			Subsystem: "routing",
			Name:      "segments_planned_total",
			Help:      "Total number of routing segments planned by type",
		}, []string{"type"}),

		segmentsRun: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veilcore",
			Subsystem: "routing",
			Name:      "segments_run_total",
			Help:      "Total number of routing segments run by final status",
		}, []string{"type", "status"}),

		privacyScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "veilcore",
			Subsystem: "routing",
			Name:      "privacy_score",
			Help:      "Privacy scores of planned batches",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
}

func (mc *MetricsCollector) RecordProofGenerated(proofType string, duration time.Duration) {
	mc.proofsGenerated.WithLabelValues(proofType).Inc()
	mc.proofDuration.WithLabelValues(proofType).Observe(duration.Seconds())
}

func (mc *MetricsCollector) RecordProofVerified(proofType, result string) {
	mc.proofsVerified.WithLabelValues(proofType, result).Inc()
}

func (mc *MetricsCollector) RecordNullifierConsumed() {
	mc.nullifiersConsumed.Inc()
}

func (mc *MetricsCollector) RecordDoubleSpendBlocked() {
	mc.doubleSpendsBlocked.Inc()
}

func (mc *MetricsCollector) RecordBatchPlanned(status string, privacyScore int, segmentTypes []string) {
	mc.batchesPlanned.WithLabelValues(status).Inc()
	mc.privacyScore.Observe(float64(privacyScore))
	for _, segType := range segmentTypes {
		mc.segmentsPlanned.WithLabelValues(segType).Inc()
	}
}

func (mc *MetricsCollector) RecordSegmentRun(segType, status string) {
	mc.segmentsRun.WithLabelValues(segType, status).Inc()
}
