package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("OPENAI_API_KEY", "sk-test")
	defer os.Unsetenv("OPENAI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Backend != "memory" {
		t.Errorf("expected default store.backend 'memory', got %q", cfg.Store.Backend)
	}
	if cfg.Dialogue.MaxMessagesPerDialogue != 10 {
		t.Errorf("expected default dialogue.max_messages_per_dialogue 10, got %d", cfg.Dialogue.MaxMessagesPerDialogue)
	}
	if cfg.Dialogue.GoodbyeThreshold != 2 {
		t.Errorf("expected default dialogue.goodbye_threshold 2, got %d", cfg.Dialogue.GoodbyeThreshold)
	}
	if len(cfg.Scheduler.Phases) != 3 {
		t.Errorf("expected 3 default phases, got %d", len(cfg.Scheduler.Phases))
	}
}

func TestValidate_RejectsUnknownBackend(t *testing.T) {
	cfg := &Config{
		App:       AppConfig{Env: "development"},
		Store:     StoreConfig{Backend: "filesystem"},
		LLM:       LLMConfig{Default: DefaultLLMConfig{Provider: "openai"}, OpenAI: OpenAIConfig{APIKey: "sk-test"}},
		Dialogue:  DialogueConfig{MaxMessagesPerDialogue: 10, MaxTokensPerDialogue: 2000, GoodbyeThreshold: 2, AvgCharsPerToken: 4.0},
		Scheduler: SchedulerConfig{Phases: []string{"morning"}},
		Operations: OperationsConfig{
			CircuitBreaker: CircuitBreakerConfig{Threshold: 1},
			RateLimit:      RateLimitConfig{RequestsPerSecond: 1},
			Retry:          RetryConfig{MaxAttempts: 1},
		},
	}

	if err := validate(cfg); err == nil {
		t.Error("expected validation error for unknown store backend")
	}
}

func TestValidate_RejectsZeroGoodbyeThreshold(t *testing.T) {
	cfg := &Config{
		App:       AppConfig{Env: "development"},
		Store:     StoreConfig{Backend: "memory"},
		LLM:       LLMConfig{Default: DefaultLLMConfig{Provider: "openai"}, OpenAI: OpenAIConfig{APIKey: "sk-test"}},
		Dialogue:  DialogueConfig{MaxMessagesPerDialogue: 10, MaxTokensPerDialogue: 2000, GoodbyeThreshold: 0, AvgCharsPerToken: 4.0},
		Scheduler: SchedulerConfig{Phases: []string{"morning"}},
		Operations: OperationsConfig{
			CircuitBreaker: CircuitBreakerConfig{Threshold: 1},
			RateLimit:      RateLimitConfig{RequestsPerSecond: 1},
			Retry:          RetryConfig{MaxAttempts: 1},
		},
	}

	if err := validate(cfg); err == nil {
		t.Error("expected validation error for goodbye_threshold 0")
	}
}
