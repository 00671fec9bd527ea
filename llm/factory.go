package llm

import "fmt"

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeOllama    ProviderType = "ollama"
	ProviderTypeTupleLeap ProviderType = "tupleleap"
)

// ProviderConfig contains configuration for creating providers
type ProviderConfig struct {
	Type    ProviderType
	APIKey  string // For cloud providers
	BaseURL string // For Ollama or custom endpoints
}

// ProviderFactory creates LLM providers
type ProviderFactory struct {
	config *ProviderConfig
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(config *ProviderConfig) *ProviderFactory {
	return &ProviderFactory{config: config}
}

// CreateProvider creates a provider based on configuration
func (pf *ProviderFactory) CreateProvider() (Provider, error) {
	switch pf.config.Type {
	case ProviderTypeOpenAI:
		if pf.config.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return NewOpenAI(pf.config.APIKey), nil

	case ProviderTypeAnthropic:
		if pf.config.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		return NewAnthropic(pf.config.APIKey), nil

	case ProviderTypeOllama:
		return NewOllama(pf.config.BaseURL), nil

	case ProviderTypeTupleLeap:
		if pf.config.APIKey == "" {
			return nil, fmt.Errorf("TupleLeap API key required")
		}
		if pf.config.BaseURL != "" {
			return NewTupleLeapWithBaseURL(pf.config.APIKey, pf.config.BaseURL), nil
		}
		return NewTupleLeap(pf.config.APIKey), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s", pf.config.Type)
	}
}
