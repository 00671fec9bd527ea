package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the simulation engine.
type Config struct {
	App           AppConfig
	Store         StoreConfig
	LLM           LLMConfig
	Dialogue      DialogueConfig
	Memory        MemoryConfig
	Scheduler     SchedulerConfig
	Social        SocialConfig
	Events        EventsConfig
	Observability ObservabilityConfig
	Operations    OperationsConfig
	Health        HealthConfig
}

// AppConfig contains process-level configuration.
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// StoreConfig selects and configures the persistence backend (C1 Store).
type StoreConfig struct {
	// Backend is "memory", "postgres", or "hybrid", mirroring the
	// in/postgres/hybrid switch the multi-agent ledger factory uses to pick a
	// backend. "hybrid" selects the same PostgreSQL store as "postgres"; no
	// in-memory read cache is layered on top of it.
	Backend            string        `mapstructure:"backend"`
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Name               string        `mapstructure:"name"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	SSLMode            string        `mapstructure:"sslmode"`
	MaxConnections     int           `mapstructure:"max_connections"`
	MaxIdleConnections int           `mapstructure:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `mapstructure:"connection_max_lifetime"`
	WriteLockTimeout   time.Duration `mapstructure:"write_lock_timeout"`
}

// GetDSN returns the PostgreSQL connection string for the store.
func (c *StoreConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// LLMConfig contains LLM provider and per-role model selection.
type LLMConfig struct {
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	TupleLeap TupleLeapConfig `mapstructure:"tupleleap"`
	Default   DefaultLLMConfig `mapstructure:"default"`
	// Speaker overrides the default provider/model for NPC dialogue turns.
	Speaker RoleLLMConfig `mapstructure:"speaker"`
	// Memory overrides the default provider/model for memory summarization.
	Memory RoleLLMConfig `mapstructure:"memory"`
	// Social overrides the default provider/model for the social agents.
	Social RoleLLMConfig `mapstructure:"social"`
	// FallbackChain lists additional provider/model pairs tried in order
	// when the preferred provider returns a non-retryable-as-is failure
	// (e.g. 402 payment required, or repeated 429/timeout).
	FallbackChain []RoleLLMConfig `mapstructure:"fallback_chain"`
	// OfflineModel is used automatically in non-interactive mode when no
	// provider in the chain is reachable.
	OfflineModel string `mapstructure:"offline_model"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	OrgID  string `mapstructure:"org_id"`
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// TupleLeapConfig selects an OpenAI-compatible TupleLeap deployment; BaseURL
// is optional and defaults to the public TupleLeap endpoint when empty.
type TupleLeapConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type DefaultLLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RoleLLMConfig overrides provider/model for one role in the simulation.
type RoleLLMConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
}

// DialogueConfig bounds a single dialogue's state machine (C5 Dialogue State
// Machine), grounded on dialogue_handler.py's constructor defaults.
type DialogueConfig struct {
	MaxMessagesPerDialogue int           `mapstructure:"max_messages_per_dialogue"`
	MaxTokensPerDialogue   int           `mapstructure:"max_tokens_per_dialogue"`
	GoodbyeThreshold       int           `mapstructure:"goodbye_threshold"`
	AvgCharsPerToken       float64       `mapstructure:"avg_chars_per_token"`
	// MaxContextLength bounds, in characters, how much context a buffer
	// accumulates before it is due for compression; memsvc.Config.ThresholdChars
	// is sourced from this field rather than carrying its own constant.
	MaxContextLength int           `mapstructure:"max_context_length"`
	MessageTimeout   time.Duration `mapstructure:"message_timeout"`
}

// MemoryConfig controls the background compression subsystem (C2 Memory
// Compression).
type MemoryConfig struct {
	CompressionThresholdMessages int           `mapstructure:"compression_threshold_messages"`
	SummaryTargetLength          int           `mapstructure:"summary_target_length"`
	CompressionTimeout           time.Duration `mapstructure:"compression_timeout"`
	// DistributedLockBackend selects "local" (process-local map of in-flight
	// markers) or "redis" for cross-process coordination of compression
	// jobs when multiple simulate processes share one Postgres store.
	DistributedLockBackend string `mapstructure:"distributed_lock_backend"`
	RedisAddr              string `mapstructure:"redis_addr"`
}

// SchedulerConfig controls day/phase progression (C6 Scheduler).
type SchedulerConfig struct {
	Phases               []string      `mapstructure:"phases"`
	DialoguesPerPhase     int           `mapstructure:"dialogues_per_phase"`
	PhaseWorkerPoolSize   int           `mapstructure:"phase_worker_pool_size"`
	InterDialogueDelay    time.Duration `mapstructure:"inter_dialogue_delay"`
}

// SocialConfig toggles and bounds the four SocialAgent transducers (C3).
type SocialConfig struct {
	OpinionEnabled              bool          `mapstructure:"opinion_enabled"`
	StanceEnabled               bool          `mapstructure:"stance_enabled"`
	KnowledgeEnabled            bool          `mapstructure:"knowledge_enabled"`
	ReputationEnabled           bool          `mapstructure:"reputation_enabled"`
	ReputationUpdateTimeout     time.Duration `mapstructure:"reputation_update_timeout"`
	IntroductionBloomCapacity   uint          `mapstructure:"introduction_bloom_capacity"`
	IntroductionBloomFalsePositive float64    `mapstructure:"introduction_bloom_false_positive"`
}

// EventsConfig controls the optional Kafka publisher for out-of-process
// analytics consumers (DialogueStarted/DialogueEnded/DaySummaryUpdated).
type EventsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ObservabilityConfig contains observability configuration.
type ObservabilityConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type TracingConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	Exporter      string  `mapstructure:"exporter"`
	JaegerURL     string  `mapstructure:"jaeger_endpoint"`
	OTLPEndpoint  string  `mapstructure:"otlp_endpoint"`
	SamplingRatio float64 `mapstructure:"sampling_ratio"`
}

type MetricsConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Port              int    `mapstructure:"port"`
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled"`
	Path              string `mapstructure:"path"`
}

type LoggingConfig struct {
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// OperationsConfig contains operational controls configuration.
type OperationsConfig struct {
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Retry          RetryConfig          `mapstructure:"retry"`
}

type CircuitBreakerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Threshold int           `mapstructure:"threshold"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type RetryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

// HealthConfig contains health check configuration.
type HealthConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	CheckStore bool        `mapstructure:"check_store"`
	CheckLLM   bool        `mapstructure:"check_llm"`
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "npcworld")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.host", "localhost")
	v.SetDefault("store.port", 5432)
	v.SetDefault("store.name", "npcworld")
	v.SetDefault("store.user", "npcworld")
	v.SetDefault("store.password", "npcworld")
	v.SetDefault("store.sslmode", "disable")
	v.SetDefault("store.max_connections", 25)
	v.SetDefault("store.max_idle_connections", 5)
	v.SetDefault("store.connection_max_lifetime", "300s")
	v.SetDefault("store.write_lock_timeout", "5s")

	v.SetDefault("llm.default.provider", "openai")
	v.SetDefault("llm.default.model", "gpt-4-turbo-preview")
	v.SetDefault("llm.default.temperature", 0.7)
	v.SetDefault("llm.default.max_tokens", 2000)
	v.SetDefault("llm.offline_model", "offline/local-echo")

	v.SetDefault("dialogue.max_messages_per_dialogue", 10)
	v.SetDefault("dialogue.max_tokens_per_dialogue", 2000)
	v.SetDefault("dialogue.goodbye_threshold", 2)
	v.SetDefault("dialogue.avg_chars_per_token", 4.0)
	v.SetDefault("dialogue.max_context_length", 4000)
	v.SetDefault("dialogue.message_timeout", "30s")

	v.SetDefault("memory.compression_threshold_messages", 20)
	v.SetDefault("memory.summary_target_length", 500)
	v.SetDefault("memory.compression_timeout", "45s")
	v.SetDefault("memory.distributed_lock_backend", "local")
	v.SetDefault("memory.redis_addr", "localhost:6379")

	v.SetDefault("scheduler.phases", []string{"morning", "afternoon", "evening"})
	v.SetDefault("scheduler.dialogues_per_phase", 5)
	v.SetDefault("scheduler.phase_worker_pool_size", 4)
	v.SetDefault("scheduler.inter_dialogue_delay", "0s")

	v.SetDefault("social.opinion_enabled", true)
	v.SetDefault("social.stance_enabled", true)
	v.SetDefault("social.knowledge_enabled", true)
	v.SetDefault("social.reputation_enabled", true)
	v.SetDefault("social.reputation_update_timeout", "15s")
	v.SetDefault("social.introduction_bloom_capacity", 10000)
	v.SetDefault("social.introduction_bloom_false_positive", 0.01)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.brokers", []string{"localhost:9092"})
	v.SetDefault("events.topic", "npcworld.events")

	v.SetDefault("observability.tracing.enabled", true)
	v.SetDefault("observability.tracing.service_name", "npcworld-simulate")
	v.SetDefault("observability.tracing.exporter", "jaeger")
	v.SetDefault("observability.tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.tracing.sampling_ratio", 1.0)

	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9090)
	v.SetDefault("observability.metrics.prometheus_enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.output", "stdout")
	v.SetDefault("observability.logging.max_size_mb", 100)
	v.SetDefault("observability.logging.max_backups", 3)
	v.SetDefault("observability.logging.max_age_days", 28)

	v.SetDefault("operations.circuit_breaker.enabled", true)
	v.SetDefault("operations.circuit_breaker.threshold", 5)
	v.SetDefault("operations.circuit_breaker.timeout", "60s")

	v.SetDefault("operations.rate_limit.enabled", true)
	v.SetDefault("operations.rate_limit.requests_per_second", 10.0)
	v.SetDefault("operations.rate_limit.burst", 20)

	v.SetDefault("operations.retry.enabled", true)
	v.SetDefault("operations.retry.max_attempts", 3)
	v.SetDefault("operations.retry.initial_interval", "1s")
	v.SetDefault("operations.retry.max_interval", "30s")
	v.SetDefault("operations.retry.multiplier", 2.0)

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.interval", "30s")
	v.SetDefault("health.check_store", true)
	v.SetDefault("health.check_llm", true)
}

func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("app.name", "APP_NAME")
	_ = v.BindEnv("app.env", "APP_ENV")
	_ = v.BindEnv("app.log_level", "APP_LOG_LEVEL")

	_ = v.BindEnv("store.backend", "STORE_BACKEND")
	_ = v.BindEnv("store.host", "DB_HOST")
	_ = v.BindEnv("store.port", "DB_PORT")
	_ = v.BindEnv("store.name", "DB_NAME")
	_ = v.BindEnv("store.user", "DB_USER")
	_ = v.BindEnv("store.password", "DB_PASSWORD")
	_ = v.BindEnv("store.sslmode", "DB_SSLMODE")
	_ = v.BindEnv("store.max_connections", "DB_MAX_CONNECTIONS")
	_ = v.BindEnv("store.max_idle_connections", "DB_MAX_IDLE_CONNECTIONS")
	_ = v.BindEnv("store.connection_max_lifetime", "DB_CONNECTION_MAX_LIFETIME")
	_ = v.BindEnv("store.write_lock_timeout", "STORE_WRITE_LOCK_TIMEOUT")

	_ = v.BindEnv("llm.openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.openai.org_id", "OPENAI_ORG_ID")
	_ = v.BindEnv("llm.anthropic.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("llm.tupleleap.api_key", "TUPLELEAP_API_KEY")
	_ = v.BindEnv("llm.tupleleap.base_url", "TUPLELEAP_BASE_URL")
	_ = v.BindEnv("llm.default.provider", "DEFAULT_LLM_PROVIDER")
	_ = v.BindEnv("llm.default.model", "DEFAULT_LLM_MODEL")
	_ = v.BindEnv("llm.default.temperature", "DEFAULT_LLM_TEMPERATURE")
	_ = v.BindEnv("llm.default.max_tokens", "DEFAULT_LLM_MAX_TOKENS")
	_ = v.BindEnv("llm.offline_model", "LLM_OFFLINE_MODEL")
	_ = v.BindEnv("llm.speaker.provider", "SPEAKER_LLM_PROVIDER")
	_ = v.BindEnv("llm.speaker.model", "SPEAKER_LLM_MODEL")
	_ = v.BindEnv("llm.memory.provider", "MEMORY_LLM_PROVIDER")
	_ = v.BindEnv("llm.memory.model", "MEMORY_LLM_MODEL")
	_ = v.BindEnv("llm.social.provider", "SOCIAL_LLM_PROVIDER")
	_ = v.BindEnv("llm.social.model", "SOCIAL_LLM_MODEL")

	_ = v.BindEnv("dialogue.max_messages_per_dialogue", "DIALOGUE_MAX_MESSAGES")
	_ = v.BindEnv("dialogue.max_tokens_per_dialogue", "DIALOGUE_MAX_TOKENS")
	_ = v.BindEnv("dialogue.goodbye_threshold", "DIALOGUE_GOODBYE_THRESHOLD")
	_ = v.BindEnv("dialogue.avg_chars_per_token", "DIALOGUE_AVG_CHARS_PER_TOKEN")
	_ = v.BindEnv("dialogue.max_context_length", "DIALOGUE_MAX_CONTEXT_LENGTH")
	_ = v.BindEnv("dialogue.message_timeout", "DIALOGUE_MESSAGE_TIMEOUT")

	_ = v.BindEnv("memory.compression_threshold_messages", "MEMORY_COMPRESSION_THRESHOLD")
	_ = v.BindEnv("memory.summary_target_length", "MEMORY_SUMMARY_TARGET_LENGTH")
	_ = v.BindEnv("memory.compression_timeout", "MEMORY_COMPRESSION_TIMEOUT")
	_ = v.BindEnv("memory.distributed_lock_backend", "MEMORY_LOCK_BACKEND")
	_ = v.BindEnv("memory.redis_addr", "MEMORY_REDIS_ADDR")

	_ = v.BindEnv("scheduler.dialogues_per_phase", "SCHEDULER_DIALOGUES_PER_PHASE")
	_ = v.BindEnv("scheduler.phase_worker_pool_size", "SCHEDULER_WORKER_POOL_SIZE")
	_ = v.BindEnv("scheduler.inter_dialogue_delay", "SCHEDULER_INTER_DIALOGUE_DELAY")

	_ = v.BindEnv("social.opinion_enabled", "SOCIAL_OPINION_ENABLED")
	_ = v.BindEnv("social.stance_enabled", "SOCIAL_STANCE_ENABLED")
	_ = v.BindEnv("social.knowledge_enabled", "SOCIAL_KNOWLEDGE_ENABLED")
	_ = v.BindEnv("social.reputation_enabled", "SOCIAL_REPUTATION_ENABLED")
	_ = v.BindEnv("social.reputation_update_timeout", "SOCIAL_REPUTATION_UPDATE_TIMEOUT")

	_ = v.BindEnv("events.enabled", "EVENTS_ENABLED")
	_ = v.BindEnv("events.topic", "EVENTS_TOPIC")

	_ = v.BindEnv("observability.tracing.enabled", "OTEL_ENABLED")
	_ = v.BindEnv("observability.tracing.service_name", "OTEL_SERVICE_NAME")
	_ = v.BindEnv("observability.tracing.exporter", "OTEL_EXPORTER")
	_ = v.BindEnv("observability.tracing.jaeger_endpoint", "JAEGER_ENDPOINT")
	_ = v.BindEnv("observability.tracing.otlp_endpoint", "OTLP_ENDPOINT")
	_ = v.BindEnv("observability.tracing.sampling_ratio", "OTEL_SAMPLING_RATIO")

	_ = v.BindEnv("observability.metrics.enabled", "METRICS_ENABLED")
	_ = v.BindEnv("observability.metrics.port", "METRICS_PORT")
	_ = v.BindEnv("observability.metrics.prometheus_enabled", "PROMETHEUS_ENABLED")
	_ = v.BindEnv("observability.metrics.path", "METRICS_PATH")

	_ = v.BindEnv("observability.logging.format", "LOG_FORMAT")
	_ = v.BindEnv("observability.logging.output", "LOG_OUTPUT")
	_ = v.BindEnv("observability.logging.file_path", "LOG_FILE_PATH")
	_ = v.BindEnv("observability.logging.max_size_mb", "LOG_MAX_SIZE_MB")
	_ = v.BindEnv("observability.logging.max_backups", "LOG_MAX_BACKUPS")
	_ = v.BindEnv("observability.logging.max_age_days", "LOG_MAX_AGE_DAYS")

	_ = v.BindEnv("operations.circuit_breaker.enabled", "CIRCUIT_BREAKER_ENABLED")
	_ = v.BindEnv("operations.circuit_breaker.threshold", "CIRCUIT_BREAKER_THRESHOLD")
	_ = v.BindEnv("operations.circuit_breaker.timeout", "CIRCUIT_BREAKER_TIMEOUT")

	_ = v.BindEnv("operations.rate_limit.enabled", "RATE_LIMIT_ENABLED")
	_ = v.BindEnv("operations.rate_limit.requests_per_second", "RATE_LIMIT_REQUESTS_PER_SECOND")
	_ = v.BindEnv("operations.rate_limit.burst", "RATE_LIMIT_BURST")

	_ = v.BindEnv("operations.retry.enabled", "RETRY_ENABLED")
	_ = v.BindEnv("operations.retry.max_attempts", "RETRY_MAX_ATTEMPTS")
	_ = v.BindEnv("operations.retry.initial_interval", "RETRY_INITIAL_INTERVAL")
	_ = v.BindEnv("operations.retry.max_interval", "RETRY_MAX_INTERVAL")
	_ = v.BindEnv("operations.retry.multiplier", "RETRY_MULTIPLIER")

	_ = v.BindEnv("health.enabled", "HEALTH_CHECK_ENABLED")
	_ = v.BindEnv("health.interval", "HEALTH_CHECK_INTERVAL")
	_ = v.BindEnv("health.check_store", "READINESS_CHECK_STORE")
	_ = v.BindEnv("health.check_llm", "READINESS_CHECK_LLM")
}

func validate(cfg *Config) error {
	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if !validEnvs[cfg.App.Env] {
		return fmt.Errorf("invalid app.env: must be development, staging, or production")
	}

	validBackends := map[string]bool{"memory": true, "postgres": true, "hybrid": true}
	if !validBackends[cfg.Store.Backend] {
		return fmt.Errorf("invalid store.backend: must be memory, postgres, or hybrid")
	}
	if cfg.Store.Backend != "memory" && cfg.Store.Name == "" {
		return fmt.Errorf("store.name is required for backend %q", cfg.Store.Backend)
	}

	validProviders := map[string]bool{"openai": true, "anthropic": true, "gemini": true}
	if !validProviders[cfg.LLM.Default.Provider] {
		return fmt.Errorf("invalid llm.default.provider: must be openai, anthropic, or gemini")
	}
	if cfg.LLM.Default.Provider == "openai" && cfg.LLM.OpenAI.APIKey == "" {
		return fmt.Errorf("llm.openai.api_key is required when provider is openai")
	}

	if cfg.Dialogue.MaxMessagesPerDialogue < 2 {
		return fmt.Errorf("invalid dialogue.max_messages_per_dialogue: must be >= 2")
	}
	if cfg.Dialogue.MaxTokensPerDialogue < 1 {
		return fmt.Errorf("invalid dialogue.max_tokens_per_dialogue: must be >= 1")
	}
	if cfg.Dialogue.GoodbyeThreshold < 1 {
		return fmt.Errorf("invalid dialogue.goodbye_threshold: must be >= 1")
	}
	if cfg.Dialogue.AvgCharsPerToken <= 0 {
		return fmt.Errorf("invalid dialogue.avg_chars_per_token: must be > 0")
	}

	if len(cfg.Scheduler.Phases) == 0 {
		return fmt.Errorf("scheduler.phases must not be empty")
	}

	if cfg.Observability.Tracing.SamplingRatio < 0 || cfg.Observability.Tracing.SamplingRatio > 1.0 {
		return fmt.Errorf("invalid observability.tracing.sampling_ratio: must be between 0.0 and 1.0")
	}

	if cfg.Operations.CircuitBreaker.Threshold < 1 {
		return fmt.Errorf("invalid operations.circuit_breaker.threshold: must be >= 1")
	}
	if cfg.Operations.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("invalid operations.rate_limit.requests_per_second: must be > 0")
	}
	if cfg.Operations.Retry.MaxAttempts < 1 {
		return fmt.Errorf("invalid operations.retry.max_attempts: must be >= 1")
	}

	return nil
}

// IsProduction returns true if running in production environment.
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment returns true if running in development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsStaging returns true if running in staging environment.
func (c *AppConfig) IsStaging() bool {
	return c.Env == "staging"
}
