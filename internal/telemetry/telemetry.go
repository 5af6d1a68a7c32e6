package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voltlab/circuitreview/config"
)

// Telemetry provides monitoring for provider calls and the recognition pipeline
type Telemetry struct {
	config  config.TelemetryConfig
	logger  *log.Logger
	metrics *Metrics
	mu      sync.RWMutex

	providerCalls    *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	recognitionPass  prometheus.Counter
	consolidationCnt *prometheus.CounterVec
	reviewRequests   *prometheus.CounterVec
}

// Metrics holds aggregate counters kept in-process for quick inspection
type Metrics struct {
	mu sync.RWMutex

	ProviderRequests   int64
	ProviderFailures   map[string]int64 // failure class -> count
	RecognitionPasses  int64
	ConsolidationDone  int64
	ConsolidationFalls int64
	ReviewRequests     int64
	AverageCallTime    time.Duration
	totalCallTime      time.Duration
}

// Snapshot is a point-in-time copy of the in-process counters.
type Snapshot struct {
	ProviderRequests   int64
	ProviderFailures   map[string]int64
	RecognitionPasses  int64
	ConsolidationDone  int64
	ConsolidationFalls int64
	ReviewRequests     int64
	AverageCallTime    time.Duration
}

// NewTelemetry creates a new telemetry instance and registers its collectors.
// Registration happens once per process; a second instance would panic, which
// matches how the server wires a single shared Telemetry.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			ProviderFailures: make(map[string]int64),
		},
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuitreview_provider_calls_total",
			Help: "Upstream model calls by host and outcome.",
		}, []string{"host", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "circuitreview_provider_call_seconds",
			Help:    "Upstream model call latency.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"host"}),
		recognitionPass: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "circuitreview_recognition_passes_total",
			Help: "Individual recognition passes executed.",
		}),
		consolidationCnt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuitreview_consolidations_total",
			Help: "Consolidation outcomes (done or fallback).",
		}, []string{"outcome"}),
		reviewRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuitreview_review_requests_total",
			Help: "Review requests by phase.",
		}, []string{"phase"}),
	}

	if cfg.Enabled {
		prometheus.MustRegister(t.providerCalls, t.providerLatency, t.recognitionPass, t.consolidationCnt, t.reviewRequests)
	}
	return t
}

// RecordProviderCall records one upstream call attempt outcome.
// Outcome is one of: success, http_error, network_error, wrong_endpoint, aborted.
func (t *Telemetry) RecordProviderCall(host, outcome string, duration time.Duration) {
	if t == nil {
		return
	}
	t.metrics.mu.Lock()
	t.metrics.ProviderRequests++
	if outcome != "success" {
		t.metrics.ProviderFailures[outcome]++
	}
	t.metrics.totalCallTime += duration
	t.metrics.AverageCallTime = t.metrics.totalCallTime / time.Duration(t.metrics.ProviderRequests)
	t.metrics.mu.Unlock()

	if t.config.Enabled {
		t.providerCalls.WithLabelValues(host, outcome).Inc()
		t.providerLatency.WithLabelValues(host).Observe(duration.Seconds())
	}
	if t.config.Enabled && outcome != "success" {
		t.logger.Printf("provider call to %s failed: %s (%.1fs)", host, outcome, duration.Seconds())
	}
}

// RecordRecognitionPass records one completed recognition pass.
func (t *Telemetry) RecordRecognitionPass() {
	if t == nil {
		return
	}
	t.metrics.mu.Lock()
	t.metrics.RecognitionPasses++
	t.metrics.mu.Unlock()
	if t.config.Enabled {
		t.recognitionPass.Inc()
	}
}

// RecordConsolidation records the consolidation outcome ("done" or "fallback").
func (t *Telemetry) RecordConsolidation(outcome string) {
	if t == nil {
		return
	}
	t.metrics.mu.Lock()
	if outcome == "fallback" {
		t.metrics.ConsolidationFalls++
	} else {
		t.metrics.ConsolidationDone++
	}
	t.metrics.mu.Unlock()
	if t.config.Enabled {
		t.consolidationCnt.WithLabelValues(outcome).Inc()
	}
}

// RecordReviewRequest records one review request in the given phase.
func (t *Telemetry) RecordReviewRequest(phase string) {
	if t == nil {
		return
	}
	t.metrics.mu.Lock()
	t.metrics.ReviewRequests++
	t.metrics.mu.Unlock()
	if t.config.Enabled {
		t.reviewRequests.WithLabelValues(phase).Inc()
	}
}

// Stats returns a copy of the in-process counters.
func (t *Telemetry) Stats() Snapshot {
	t.metrics.mu.RLock()
	defer t.metrics.mu.RUnlock()
	failures := make(map[string]int64, len(t.metrics.ProviderFailures))
	for k, v := range t.metrics.ProviderFailures {
		failures[k] = v
	}
	return Snapshot{
		ProviderRequests:   t.metrics.ProviderRequests,
		ProviderFailures:   failures,
		RecognitionPasses:  t.metrics.RecognitionPasses,
		ConsolidationDone:  t.metrics.ConsolidationDone,
		ConsolidationFalls: t.metrics.ConsolidationFalls,
		ReviewRequests:     t.metrics.ReviewRequests,
		AverageCallTime:    t.metrics.AverageCallTime,
	}
}
