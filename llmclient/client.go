// Package llmclient composes the provider abstraction from llm with
// resilience.CircuitBreaker and resilience.WithTimeoutResult to implement
// the fallback-chain contract every dialogue participant calls through: try
// a (provider, model) pair, retry a rate-limited or timed-out call once,
// fall through an ordered list of alternates, and degrade to caller-supplied
// fallback text rather than propagate when everything is exhausted. The
// single retry is immediate; there is no backoff delay between attempts.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	serrors "github.com/skumyol/npcworld/errors"
	"github.com/skumyol/npcworld/llm"
	"github.com/skumyol/npcworld/resilience"
)

// ModelRef names one provider+model pair in a fallback chain.
type ModelRef struct {
	Provider string
	Model    string
}

// CallRequest is one completion request routed through the fallback chain.
type CallRequest struct {
	Provider     string
	Model        string
	System       string
	User         string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
	Fallbacks    []ModelRef
	FallbackText string
}

// Client is the sole entry point dialogue/social/speaker components use to
// reach an LLM. Implementations must never block past the request's timeout
// and must never panic on provider failure.
type Client interface {
	Call(ctx context.Context, req CallRequest) (string, error)
	HealthCheck(ctx context.Context) error
}

// Router is the default Client: a registry of named providers, one circuit
// breaker per (provider, model) pair, and an optional local/offline provider used as the
// last resort when the configured chain is entirely exhausted.
type Router struct {
	mu        sync.RWMutex
	providers map[string]llm.Provider
	breakers  *resilience.CircuitBreakerRegistry
	offline   llm.Provider // optional; used when the whole chain fails
}

// NewRouter creates an empty router. Register providers with Register
// before routing calls through them.
func NewRouter() *Router {
	return &Router{
		providers: make(map[string]llm.Provider),
		breakers: resilience.NewCircuitBreakerRegistry(func(name string) *resilience.CircuitBreaker {
			return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: name})
		}),
	}
}

// Register adds a named provider to the router.
func (r *Router) Register(name string, p llm.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// SetOfflineFallback sets the provider tried once the whole fallback chain
// has been exhausted, intended for non-interactive runs where no human is
// present to retry.
func (r *Router) SetOfflineFallback(p llm.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline = p
}

func (r *Router) provider(name string) (llm.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Call routes req through its primary (provider, model) pair, then through
// req.Fallbacks in order, applying the retry contract per candidate:
//   - unauthorized / bad_response: no retry, advance immediately
//   - unavailable (HTTP 402, 5xx): no retry, advance immediately
//   - rate_limited / timeout: retry once, then advance
//
// If every candidate is exhausted, the offline fallback (if registered) is
// tried once; otherwise req.FallbackText is returned with a nil error, the
// same degrade-gracefully contract NPCSpeaker relies on for hangs.
func (r *Router) Call(ctx context.Context, req CallRequest) (string, error) {
	chain := append([]ModelRef{{Provider: req.Provider, Model: req.Model}}, req.Fallbacks...)

	var lastErr error
	for _, candidate := range chain {
		text, err := r.attempt(ctx, candidate, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}

	if r.offline != nil {
		text, err := r.callProvider(ctx, r.offline, req, req.Timeout)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}

	if req.FallbackText != "" {
		return req.FallbackText, nil
	}
	return "", fmt.Errorf("llm call exhausted all candidates: %w", lastErr)
}

func (r *Router) attempt(ctx context.Context, candidate ModelRef, req CallRequest) (string, error) {
	provider, ok := r.provider(candidate.Provider)
	if !ok {
		return "", serrors.NewLLMError(candidate.Provider, candidate.Model, 0, fmt.Errorf("provider %q not registered", candidate.Provider))
	}
	cb := r.breakers.Get(candidate.Provider + "/" + candidate.Model)
	return r.callWithRetry(ctx, provider, cb, req, candidate)
}

func (r *Router) callWithRetry(ctx context.Context, provider llm.Provider, cb *resilience.CircuitBreaker, req CallRequest, candidate ModelRef) (string, error) {
	text, err := resilience.DoWithResult(ctx, nil, cb, func(ctx context.Context) (string, error) {
		return r.callProvider(ctx, provider, req, req.Timeout)
	})
	if err == nil {
		return text, nil
	}

	kind := classify(candidate, err)
	if !retryable(kind) {
		return "", err
	}

	// one retry for rate-limited/timeout kinds, per the contract.
	text, retryErr := resilience.DoWithResult(ctx, nil, cb, func(ctx context.Context) (string, error) {
		return r.callProvider(ctx, provider, req, req.Timeout)
	})
	if retryErr == nil {
		return text, nil
	}
	return "", retryErr
}

func (r *Router) callProvider(ctx context.Context, provider llm.Provider, req CallRequest, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return resilience.WithTimeoutResult(ctx, timeout, func(ctx context.Context) (string, error) {
		resp, err := provider.GenerateCompletion(ctx, &llm.CompletionRequest{
			SystemPrompt: req.System,
			UserPrompt:   req.User,
			Temperature:  req.Temperature,
			MaxTokens:    req.MaxTokens,
			Model:        req.Model,
		})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	})
}

func classify(candidate ModelRef, err error) serrors.LLMKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, resilience.ErrTimeout) {
		return serrors.LLMTimeout
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		llmErr := serrors.NewLLMError(candidate.Provider, candidate.Model, apiErr.HTTPStatusCode, err)
		return llmErr.Kind
	}
	var llmErr *serrors.LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Kind
	}
	return serrors.LLMBadResponse
}

func retryable(kind serrors.LLMKind) bool {
	return kind == serrors.LLMRateLimited || kind == serrors.LLMTimeout
}

// HealthCheck pings every registered provider that supports it and returns
// the first failure it meets; failures of the other providers are not
// reported.
func (r *Router) HealthCheck(ctx context.Context) error {
	r.mu.RLock()
	providers := make(map[string]llm.Provider, len(r.providers))
	for name, p := range r.providers {
		providers[name] = p
	}
	r.mu.RUnlock()

	var firstErr error
	for name, p := range providers {
		hc, ok := p.(llm.HealthCheckProvider)
		if !ok {
			continue
		}
		if err := hc.HealthCheck(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("provider %q: %w", name, err)
		}
	}
	return firstErr
}

var _ Client = (*Router)(nil)
