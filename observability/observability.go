package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/skumyol/npcworld/config"
)

// Observability is the main interface for the observability stack
type Observability struct {
	Logger  Logger
	Tracer  *Tracer
	Metrics *MetricsCollector
	config  *config.Config
}

// New creates a new observability stack
func New(cfg *config.Config) (*Observability, error) {
	// Initialize Logger
	loggerConfig := &LoggerConfig{
		Level:      LogLevel(cfg.App.LogLevel),
		JSONOutput: cfg.Observability.Logging.Format == "json",
		WithCaller: true,
	}

	logger := NewLogger(loggerConfig)

	// Initialize Tracer
	tracingConfig := TracingConfig{
		Enabled:       cfg.Observability.Tracing.Enabled,
		ServiceName:   cfg.Observability.Tracing.ServiceName,
		Environment:   cfg.App.Env,
		Exporter:      cfg.Observability.Tracing.Exporter,
		JaegerURL:     cfg.Observability.Tracing.JaegerURL,
		OTLPEndpoint:  cfg.Observability.Tracing.OTLPEndpoint,
		SamplingRatio: cfg.Observability.Tracing.SamplingRatio,
	}

	tracer, err := NewTracer(tracingConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	// Set as global tracer
	if err := InitGlobalTracer(tracingConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize global tracer: %w", err)
	}

	if tracingConfig.Enabled {
		logger.Info(fmt.Sprintf("Tracer initialized successfully (exporter: %s)", tracingConfig.Exporter))
	}

	// Initialize Metrics
	metricsConfig := MetricsConfig{
		Enabled:           cfg.Observability.Metrics.Enabled,
		Port:              cfg.Observability.Metrics.Port,
		Path:              cfg.Observability.Metrics.Path,
		PrometheusEnabled: cfg.Observability.Metrics.PrometheusEnabled,
	}

	metrics := NewMetricsCollector(metricsConfig, nil)

	// Set as global metrics
	if err := InitGlobalMetrics(metricsConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize global metrics: %w", err)
	}

	if metricsConfig.Enabled {
		logger.Info(fmt.Sprintf("Metrics collector initialized successfully (port: %d)", metricsConfig.Port))
	}

	return &Observability{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		config:  cfg,
	}, nil
}

// Close gracefully shuts down the observability stack
func (o *Observability) Close(ctx context.Context) error {
	o.Logger.Info("Shutting down observability stack")

	if err := o.Tracer.Close(ctx); err != nil {
		o.Logger.Error("Failed to shutdown tracer", Err(err))
		return err
	}

	o.Logger.Info("Observability stack shutdown complete")
	return nil
}

// StartMetricsServer starts the Prometheus metrics HTTP server
// This should be run in a separate goroutine
func (o *Observability) StartMetricsServer() error {
	if !o.config.Observability.Metrics.Enabled {
		return nil
	}

	o.Logger.Info(fmt.Sprintf("Starting metrics server on port %d", o.config.Observability.Metrics.Port))
	return o.Metrics.StartMetricsServer()
}

// Helper methods for common observability operations

// errKind maps an error to a low-cardinality label for metrics, empty when nil.
func errKind(err error) string {
	if err == nil {
		return ""
	}
	return "error"
}

// ObserveDialogueTurn provides a complete observability wrapper around a single
// dialogue turn (one message exchange within a bounded dialogue).
func (o *Observability) ObserveDialogueTurn(
	ctx context.Context,
	dialogueID, phase string,
	fn func(ctx context.Context) error,
) error {
	ctx, span := o.Tracer.StartSpan(ctx, fmt.Sprintf("dialogue.turn.%s", phase), SpanKindSession,
	)
	defer span.End()

	ctx = o.Tracer.InjectTraceContext(ctx)
	logger := o.Logger.WithContext(ctx)
	logger.Debug("Starting dialogue turn", String("dialogue_id", dialogueID), String("phase", phase))

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	o.Metrics.RecordDialogueMessage(phase)

	if err != nil {
		logger.Error("Dialogue turn failed", String("dialogue_id", dialogueID), Duration("duration", duration), Err(err))
		o.Tracer.RecordError(span, err, "dialogue_turn_error")
	} else {
		logger.Debug("Dialogue turn completed", String("dialogue_id", dialogueID), Duration("duration", duration))
	}

	return err
}

// ObserveLLMCall provides a complete observability wrapper for LLM API calls
func (o *Observability) ObserveLLMCall(
	ctx context.Context,
	provider, model string,
	fn func(ctx context.Context) (promptTokens, completionTokens int, err error),
) error {
	// Start tracing span
	ctx, span := o.Tracer.StartLLMSpan(ctx, provider, model)
	defer span.End()

	// Log start
	logger := o.Logger.WithContext(ctx)
	logger.Info("Starting LLM call", String("provider", provider), String("model", model))

	// Execute function with timing
	start := time.Now()
	promptTokens, completionTokens, err := fn(ctx)
	duration := time.Since(start)

	// Record token usage in span
	o.Tracer.RecordLLMTokens(span, promptTokens, completionTokens, 0)

	// Record metrics
	o.Metrics.RecordLLMRequest(provider, model, duration, promptTokens, completionTokens, errKind(err))

	// Log completion
	if err != nil {
		logger.Error("LLM call failed", String("provider", provider), String("model", model), Duration("duration", duration), Err(err))
	} else {
		logger.Info("LLM call completed",
			String("provider", provider),
			String("model", model),
			Int("prompt_tokens", promptTokens),
			Int("completion_tokens", completionTokens),
			Duration("duration", duration))
	}

	// Record error in span if present
	if err != nil {
		o.Tracer.RecordError(span, err, "llm_api_error")
	}

	return err
}

// ObserveStoreOperation provides a complete observability wrapper for persistence operations
func (o *Observability) ObserveStoreOperation(
	ctx context.Context,
	operation, entity string,
	fn func(ctx context.Context) error,
) error {
	// Start tracing span
	ctx, span := o.Tracer.StartStorageSpan(ctx, operation, entity)
	defer span.End()

	// Execute function with timing
	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	// Record metrics
	o.Metrics.RecordStoreOperation(operation, entity, duration, errKind(err))

	// Log operation (only on error)
	if err != nil {
		logger := o.Logger.WithContext(ctx)
		logger.Error("Store operation failed", String("operation", operation), String("entity", entity), Duration("duration", duration), Err(err))
	}

	// Record error in span if present
	if err != nil {
		o.Tracer.RecordError(span, err, "store_error")
	}

	return err
}

// GetLogger returns the logger with context
func (o *Observability) GetLogger(ctx context.Context) Logger {
	return o.Logger.WithContext(ctx)
}

// GetTraceID returns the trace ID from context
func (o *Observability) GetTraceID(ctx context.Context) string {
	return o.Tracer.GetTraceID(ctx)
}

// LogSecurityEvent logs a security-related event
func (o *Observability) LogSecurityEvent(ctx context.Context, eventType, description, severity string) {
	o.Logger.WithContext(ctx).Warn("Security event",
		String("event_type", eventType),
		String("description", description),
		String("severity", severity))
}
