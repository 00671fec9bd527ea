package llmclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skumyol/npcworld/llm"
)

type fakeProvider struct {
	name     string
	response string
	err      error
	delay    time.Duration
	calls    int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GenerateCompletion(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Text: f.response, Model: req.Model}, nil
}

func (f *fakeProvider) GenerateChat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not implemented")
}

func TestRouterCallPrimarySuccess(t *testing.T) {
	r := NewRouter()
	r.Register("primary", &fakeProvider{name: "primary", response: "hello"})

	text, err := r.Call(context.Background(), CallRequest{
		Provider: "primary",
		Model:    "test-model",
		System:   "sys",
		User:     "hi",
		Timeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if text != "hello" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestRouterFallsThroughToSecondCandidate(t *testing.T) {
	r := NewRouter()
	r.Register("broken", &fakeProvider{name: "broken", err: errors.New("unauthorized")})
	r.Register("backup", &fakeProvider{name: "backup", response: "backup reply"})

	text, err := r.Call(context.Background(), CallRequest{
		Provider: "broken",
		Model:    "m1",
		Timeout:  time.Second,
		Fallbacks: []ModelRef{
			{Provider: "backup", Model: "m2"},
		},
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if text != "backup reply" {
		t.Fatalf("expected fallback reply, got %q", text)
	}
}

func TestRouterTimeoutDegradesToFallbackText(t *testing.T) {
	r := NewRouter()
	r.Register("slow", &fakeProvider{name: "slow", delay: 50 * time.Millisecond, response: "too late"})

	text, err := r.Call(context.Background(), CallRequest{
		Provider:     "slow",
		Model:        "m1",
		Timeout:      5 * time.Millisecond,
		FallbackText: "I need to go now. Goodbye!",
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if text != "I need to go now. Goodbye!" {
		t.Fatalf("expected fallback text, got %q", text)
	}
}

func TestRouterUnregisteredProviderExhaustsToFallback(t *testing.T) {
	r := NewRouter()

	text, err := r.Call(context.Background(), CallRequest{
		Provider:     "missing",
		Model:        "m1",
		Timeout:      time.Second,
		FallbackText: "fallback",
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if text != "fallback" {
		t.Fatalf("expected fallback text, got %q", text)
	}
}

func TestRouterNoFallbackTextReturnsError(t *testing.T) {
	r := NewRouter()
	r.Register("broken", &fakeProvider{name: "broken", err: errors.New("down")})

	_, err := r.Call(context.Background(), CallRequest{
		Provider: "broken",
		Model:    "m1",
		Timeout:  time.Second,
	})
	if err == nil {
		t.Fatal("expected error when chain exhausted with no fallback text")
	}
}
