// Package social implements the four SocialAgent transducers (C3): Opinion,
// Stance, Knowledge, and Reputation. Each is a pure wrapper around one LLM
// call with a strict prompt.Template, modeled on agents/'s
// duck-typed-agent-class idea (a shared capability surface, a fixed variant
// set) rather than a new polymorphic class hierarchy per agent.
package social

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/skumyol/npcworld/llmclient"
	"github.com/skumyol/npcworld/prompt"
)

// Inputs carries every field any of the four variants might need; each
// variant's Call reads only the subset it was built with a template for.
type Inputs struct {
	ObserverName        string
	ObserverPersonality  string
	ObserverStory        string
	RecipientName        string
	RecipientReputation  string
	IncomingMessage      string
	RecentDialogue       string
	OpponentName         string
	OpponentOpinion      string
	WorldKnowledge       map[string]any
	InteractionHistory   string
	DialogueText         string
	WorldDefinition      string
	AllOpinions          string
	SummaryDialogue      string
	CurrentReputation    string
}

// Output is the postcondition of a social agent call: either a short
// string (Opinion/Stance/Reputation) or a structured knowledge delta.
type Output struct {
	Text      string
	Knowledge map[string]any
}

// Agent is the shared capability every variant implements.
type Agent interface {
	Enabled() bool
	Call(ctx context.Context, in Inputs) (Output, error)
}

const neutralText = "Neutral"

// llmCaller is the minimal surface social agents need from llmclient.Client,
// narrowed so test doubles don't have to implement HealthCheck.
type llmCaller interface {
	Call(ctx context.Context, req llmclient.CallRequest) (string, error)
}

func call(ctx context.Context, caller llmCaller, tmpl *prompt.Template, vars map[string]any, provider, model string, timeout time.Duration) (string, error) {
	system, err := tmpl.Format(vars)
	if err != nil {
		return "", err
	}
	text, err := caller.Call(ctx, llmclient.CallRequest{
		Provider:    provider,
		Model:       model,
		System:      system,
		User:        "Respond with only the requested output, nothing else.",
		Temperature: 0.3,
		Timeout:     timeout,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// OpinionAgent forms a one-or-two-word opinion of a dialogue partner.
type OpinionAgent struct {
	enabled  bool
	provider string
	model    string
	timeout  time.Duration
	llm      llmCaller
	tmpl     *prompt.Template
}

// NewOpinionAgent builds an OpinionAgent. llm may be nil when enabled=false.
func NewOpinionAgent(enabled bool, provider, model string, timeout time.Duration, llm llmCaller) (*OpinionAgent, error) {
	tmpl, err := prompt.NewTemplate(prompt.TemplateConfig{
		TemplateType: prompt.TemplateTypeFString,
		Template: "You are {observer_name}, personality: {observer_personality}, background: {observer_story}.\n" +
			"{recipient_name} just said: \"{incoming_message}\"\nRecent exchange: {recent_dialogue}\n" +
			"{recipient_name}'s reputation: {recipient_reputation}\n" +
			"In one or two words, what is your opinion of {recipient_name}?",
	})
	if err != nil {
		return nil, err
	}
	return &OpinionAgent{enabled: enabled, provider: provider, model: model, timeout: timeout, llm: llm, tmpl: tmpl}, nil
}

func (a *OpinionAgent) Enabled() bool { return a.enabled }

func (a *OpinionAgent) Call(ctx context.Context, in Inputs) (Output, error) {
	if !a.enabled {
		return Output{Text: neutralText}, nil
	}
	text, err := call(ctx, a.llm, a.tmpl, map[string]any{
		"observer_name":        in.ObserverName,
		"observer_personality": in.ObserverPersonality,
		"observer_story":       in.ObserverStory,
		"recipient_name":       in.RecipientName,
		"incoming_message":     in.IncomingMessage,
		"recent_dialogue":      in.RecentDialogue,
		"recipient_reputation": in.RecipientReputation,
	}, a.provider, a.model, a.timeout)
	if err != nil {
		return Output{}, err
	}
	return Output{Text: text}, nil
}

// StanceAgent forms a short stance string toward an opponent.
type StanceAgent struct {
	enabled  bool
	provider string
	model    string
	timeout  time.Duration
	llm      llmCaller
	tmpl     *prompt.Template
}

func NewStanceAgent(enabled bool, provider, model string, timeout time.Duration, llm llmCaller) (*StanceAgent, error) {
	tmpl, err := prompt.NewTemplate(prompt.TemplateConfig{
		TemplateType: prompt.TemplateTypeFString,
		Template: "You are {observer_name}, personality: {observer_personality}.\n" +
			"Opponent: {opponent_name}, reputation: {opponent_reputation}, their opinion of you: {opponent_opinion}.\n" +
			"Your world knowledge: {world_knowledge}\nPast interactions: {interaction_history}\n" +
			"State your stance toward {opponent_name} in a short phrase.",
	})
	if err != nil {
		return nil, err
	}
	return &StanceAgent{enabled: enabled, provider: provider, model: model, timeout: timeout, llm: llm, tmpl: tmpl}, nil
}

func (a *StanceAgent) Enabled() bool { return a.enabled }

func (a *StanceAgent) Call(ctx context.Context, in Inputs) (Output, error) {
	if !a.enabled {
		return Output{Text: neutralText}, nil
	}
	knowledgeJSON, _ := json.Marshal(in.WorldKnowledge)
	text, err := call(ctx, a.llm, a.tmpl, map[string]any{
		"observer_name":        in.ObserverName,
		"observer_personality": in.ObserverPersonality,
		"opponent_name":        in.OpponentName,
		"opponent_reputation":  in.RecipientReputation,
		"opponent_opinion":     in.OpponentOpinion,
		"world_knowledge":      string(knowledgeJSON),
		"interaction_history":  in.InteractionHistory,
	}, a.provider, a.model, a.timeout)
	if err != nil {
		return Output{}, err
	}
	return Output{Text: text}, nil
}

// KnowledgeAgent extracts a structured world-knowledge delta from dialogue
// text and merges it into the observer's existing knowledge.
type KnowledgeAgent struct {
	enabled  bool
	provider string
	model    string
	timeout  time.Duration
	llm      llmCaller
	tmpl     *prompt.Template
}

func NewKnowledgeAgent(enabled bool, provider, model string, timeout time.Duration, llm llmCaller) (*KnowledgeAgent, error) {
	tmpl, err := prompt.NewTemplate(prompt.TemplateConfig{
		TemplateType: prompt.TemplateTypeFString,
		Template: "You are {observer_name}, personality: {observer_personality}.\n" +
			"Current world knowledge: {world_knowledge}\nNew dialogue: {dialogue_text}\n" +
			"Respond with a JSON object of the form {{\"entities\": [], \"relationships\": [], \"timeline\": []}} " +
			"containing only NEW facts learned from the dialogue.",
	})
	if err != nil {
		return nil, err
	}
	return &KnowledgeAgent{enabled: enabled, provider: provider, model: model, timeout: timeout, llm: llm, tmpl: tmpl}, nil
}

func (a *KnowledgeAgent) Enabled() bool { return a.enabled }

func (a *KnowledgeAgent) Call(ctx context.Context, in Inputs) (Output, error) {
	if !a.enabled {
		return Output{Knowledge: map[string]any{}}, nil
	}
	knowledgeJSON, _ := json.Marshal(in.WorldKnowledge)
	text, err := call(ctx, a.llm, a.tmpl, map[string]any{
		"observer_name":        in.ObserverName,
		"observer_personality": in.ObserverPersonality,
		"world_knowledge":      string(knowledgeJSON),
		"dialogue_text":        in.DialogueText,
	}, a.provider, a.model, a.timeout)
	if err != nil {
		return Output{}, err
	}

	var delta map[string]any
	if err := json.Unmarshal([]byte(text), &delta); err != nil {
		return Output{Knowledge: map[string]any{}}, nil
	}
	return Output{Knowledge: delta}, nil
}

// ReputationAgent forms a one-or-two-word reputation for a character,
// consulted by every NPC who has opinions of them.
type ReputationAgent struct {
	enabled  bool
	provider string
	model    string
	timeout  time.Duration
	llm      llmCaller
	tmpl     *prompt.Template
}

func NewReputationAgent(enabled bool, provider, model string, timeout time.Duration, llm llmCaller) (*ReputationAgent, error) {
	tmpl, err := prompt.NewTemplate(prompt.TemplateConfig{
		TemplateType: prompt.TemplateTypeFString,
		Template: "Character: {observer_name}\nWorld: {world_definition}\n" +
			"Opinions others hold of them: {all_opinions}\nRecent and summarized dialogue: {summary_dialogue}\n" +
			"Current reputation: {current_reputation}\n" +
			"In one or two words, what is {observer_name}'s reputation now?",
	})
	if err != nil {
		return nil, err
	}
	return &ReputationAgent{enabled: enabled, provider: provider, model: model, timeout: timeout, llm: llm, tmpl: tmpl}, nil
}

func (a *ReputationAgent) Enabled() bool { return a.enabled }

func (a *ReputationAgent) Call(ctx context.Context, in Inputs) (Output, error) {
	if !a.enabled {
		return Output{Text: neutralText}, nil
	}
	text, err := call(ctx, a.llm, a.tmpl, map[string]any{
		"observer_name":       in.ObserverName,
		"world_definition":    in.WorldDefinition,
		"all_opinions":        in.AllOpinions,
		"summary_dialogue":    in.SummaryDialogue,
		"current_reputation":  in.CurrentReputation,
	}, a.provider, a.model, a.timeout)
	if err != nil {
		return Output{}, err
	}
	return Output{Text: text}, nil
}
