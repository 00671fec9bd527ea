package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled           bool
	Port              int
	Path              string
	PrometheusEnabled bool
}

// MetricsCollector manages Prometheus metrics for the simulation engine.
type MetricsCollector struct {
	// Dialogue metrics (C5 Dialogue State Machine)
	dialoguesTotal        *prometheus.CounterVec
	dialogueDuration      *prometheus.HistogramVec
	dialogueMessagesTotal *prometheus.CounterVec
	dialogueTokensTotal   prometheus.Counter
	activeDialogues       prometheus.Gauge

	// LLM metrics
	llmRequestsTotal  *prometheus.CounterVec
	llmLatencySeconds *prometheus.HistogramVec
	llmTokensTotal    *prometheus.CounterVec
	llmErrorsTotal    *prometheus.CounterVec

	// Store metrics (C1 Store)
	storeOperationsTotal *prometheus.CounterVec
	storeDurationSeconds *prometheus.HistogramVec
	storeErrorsTotal     *prometheus.CounterVec

	// Memory compression metrics (C2 Memory Compression)
	compressionsTotal        *prometheus.CounterVec
	compressionDuration      prometheus.Histogram
	compressionSkippedTotal  prometheus.Counter
	summaryLengthChars       prometheus.Histogram

	// Scheduler metrics (C6 Scheduler)
	daysCompletedTotal  prometheus.Counter
	phaseDuration       *prometheus.HistogramVec
	dialoguesPerPhase   *prometheus.GaugeVec

	// Social agent metrics (C3 SocialAgents)
	socialCallsTotal    *prometheus.CounterVec
	socialDuration      *prometheus.HistogramVec

	// System metrics
	healthStatus prometheus.Gauge

	config MetricsConfig
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(config MetricsConfig, registry *prometheus.Registry) *MetricsCollector {
	if !config.Enabled {
		return &MetricsCollector{config: config}
	}

	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	factory := promauto.With(registry)

	collector := &MetricsCollector{
		dialoguesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "npcworld_dialogues_total",
				Help: "Total number of dialogues by terminal state",
			},
			[]string{"status"}, // ended, aborted
		),
		dialogueDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "npcworld_dialogue_duration_seconds",
				Help:    "Wall-clock duration of a dialogue from Starting to its terminal state",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"end_reason"}, // natural_goodbye, forced_goodbye, max_messages, max_tokens, aborted
		),
		dialogueMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "npcworld_dialogue_messages_total",
				Help: "Total number of dialogue messages produced, by phase",
			},
			[]string{"phase"},
		),
		dialogueTokensTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "npcworld_dialogue_tokens_total",
				Help: "Total approximate tokens consumed across all dialogues",
			},
		),
		activeDialogues: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "npcworld_active_dialogues",
				Help: "Number of dialogues currently in progress",
			},
		),

		llmRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "npcworld_llm_requests_total",
				Help: "Total number of LLM API requests",
			},
			[]string{"provider", "model", "status"},
		),
		llmLatencySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "npcworld_llm_latency_seconds",
				Help:    "LLM API latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"provider", "model"},
		),
		llmTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "npcworld_llm_tokens_total",
				Help: "Total number of LLM tokens used",
			},
			[]string{"provider", "model", "type"}, // type: prompt, completion
		),
		llmErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "npcworld_llm_errors_total",
				Help: "Total number of LLM errors by kind",
			},
			[]string{"provider", "model", "kind"},
		),

		storeOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "npcworld_store_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"operation", "entity", "status"},
		),
		storeDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "npcworld_store_duration_seconds",
				Help:    "Store operation duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
			},
			[]string{"operation", "entity"},
		),
		storeErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "npcworld_store_errors_total",
				Help: "Total number of store errors by kind",
			},
			[]string{"operation", "kind"},
		),

		compressionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "npcworld_memory_compressions_total",
				Help: "Total number of memory compression runs by outcome",
			},
			[]string{"status"}, // committed, failed
		),
		compressionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "npcworld_memory_compression_duration_seconds",
				Help:    "Duration of a memory compression run, including the LLM summarization call",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
		compressionSkippedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "npcworld_memory_compression_skipped_total",
				Help: "Total number of compression requests skipped because one was already in flight for that key",
			},
		),
		summaryLengthChars: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "npcworld_memory_summary_length_chars",
				Help:    "Character length of committed rolling summaries",
				Buckets: prometheus.LinearBuckets(100, 100, 10),
			},
		),

		daysCompletedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "npcworld_days_completed_total",
				Help: "Total number of simulation days completed",
			},
		),
		phaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "npcworld_phase_duration_seconds",
				Help:    "Wall-clock duration of one scheduler phase",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"phase"},
		),
		dialoguesPerPhase: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "npcworld_dialogues_per_phase",
				Help: "Number of dialogues run in the most recent instance of a phase",
			},
			[]string{"phase"},
		),

		socialCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "npcworld_social_agent_calls_total",
				Help: "Total number of SocialAgent transducer calls by variant and status",
			},
			[]string{"variant", "status"}, // variant: opinion/stance/knowledge/reputation
		),
		socialDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "npcworld_social_agent_duration_seconds",
				Help:    "Duration of a SocialAgent transducer call",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"variant"},
		),

		healthStatus: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "npcworld_health_status",
				Help: "Health status (1 = healthy, 0 = unhealthy)",
			},
		),

		config: config,
	}

	collector.healthStatus.Set(1)

	return collector
}

// RecordDialogueEnded records a dialogue reaching a terminal state.
func (m *MetricsCollector) RecordDialogueEnded(status, endReason string, duration time.Duration, messageCount int, tokens int) {
	if !m.config.Enabled {
		return
	}
	m.dialoguesTotal.WithLabelValues(status).Inc()
	m.dialogueDuration.WithLabelValues(endReason).Observe(duration.Seconds())
	m.dialogueTokensTotal.Add(float64(tokens))
}

// RecordDialogueMessage records one message produced during a phase.
func (m *MetricsCollector) RecordDialogueMessage(phase string) {
	if !m.config.Enabled {
		return
	}
	m.dialogueMessagesTotal.WithLabelValues(phase).Inc()
}

// SetActiveDialogues sets the number of dialogues currently in progress.
func (m *MetricsCollector) SetActiveDialogues(count int) {
	if !m.config.Enabled {
		return
	}
	m.activeDialogues.Set(float64(count))
}

// RecordLLMRequest records an LLM API request.
func (m *MetricsCollector) RecordLLMRequest(provider, model string, duration time.Duration, promptTokens, completionTokens int, errKind string) {
	if !m.config.Enabled {
		return
	}

	status := "success"
	if errKind != "" {
		status = "error"
		m.llmErrorsTotal.WithLabelValues(provider, model, errKind).Inc()
	}

	m.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	m.llmLatencySeconds.WithLabelValues(provider, model).Observe(duration.Seconds())

	if status == "success" {
		m.llmTokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
		m.llmTokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordStoreOperation records a store operation.
func (m *MetricsCollector) RecordStoreOperation(operation, entity string, duration time.Duration, errKind string) {
	if !m.config.Enabled {
		return
	}

	status := "success"
	if errKind != "" {
		status = "error"
		m.storeErrorsTotal.WithLabelValues(operation, errKind).Inc()
	}

	m.storeOperationsTotal.WithLabelValues(operation, entity, status).Inc()
	m.storeDurationSeconds.WithLabelValues(operation, entity).Observe(duration.Seconds())
}

// RecordCompression records a memory compression run.
func (m *MetricsCollector) RecordCompression(committed bool, duration time.Duration, summaryLen int) {
	if !m.config.Enabled {
		return
	}
	status := "committed"
	if !committed {
		status = "failed"
	}
	m.compressionsTotal.WithLabelValues(status).Inc()
	m.compressionDuration.Observe(duration.Seconds())
	if committed {
		m.summaryLengthChars.Observe(float64(summaryLen))
	}
}

// RecordCompressionSkipped records a compression request that was skipped
// because one was already in flight for that buffer key.
func (m *MetricsCollector) RecordCompressionSkipped() {
	if !m.config.Enabled {
		return
	}
	m.compressionSkippedTotal.Inc()
}

// RecordDayCompleted records a simulation day reaching its end.
func (m *MetricsCollector) RecordDayCompleted() {
	if !m.config.Enabled {
		return
	}
	m.daysCompletedTotal.Inc()
}

// RecordPhaseCompleted records one phase's duration and dialogue count.
func (m *MetricsCollector) RecordPhaseCompleted(phase string, duration time.Duration, dialogueCount int) {
	if !m.config.Enabled {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
	m.dialoguesPerPhase.WithLabelValues(phase).Set(float64(dialogueCount))
}

// RecordSocialAgentCall records a SocialAgent transducer call.
func (m *MetricsCollector) RecordSocialAgentCall(variant string, duration time.Duration, err error) {
	if !m.config.Enabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.socialCallsTotal.WithLabelValues(variant, status).Inc()
	m.socialDuration.WithLabelValues(variant).Observe(duration.Seconds())
}

// SetHealthStatus sets the health status
func (m *MetricsCollector) SetHealthStatus(healthy bool) {
	if !m.config.Enabled {
		return
	}

	if healthy {
		m.healthStatus.Set(1)
	} else {
		m.healthStatus.Set(0)
	}
}

// GetHandler returns the HTTP handler for Prometheus metrics
func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer starts the metrics HTTP server
func (m *MetricsCollector) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	http.Handle(m.config.Path, m.GetHandler())

	addr := fmt.Sprintf(":%d", m.config.Port)
	fmt.Printf("Starting metrics server on %s%s\n", addr, m.config.Path)

	return http.ListenAndServe(addr, nil)
}

// Global metrics collector
var globalMetrics *MetricsCollector

// InitGlobalMetrics initializes the global metrics collector
func InitGlobalMetrics(config MetricsConfig) error {
	globalMetrics = NewMetricsCollector(config, prometheus.DefaultRegisterer.(*prometheus.Registry))
	return nil
}

// GetMetrics returns the global metrics collector
func GetMetrics() *MetricsCollector {
	if globalMetrics == nil {
		_ = InitGlobalMetrics(MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		})
	}
	return globalMetrics
}
