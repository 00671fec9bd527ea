// Package speaker implements NPCSpeaker (C4): a stateless message
// producer for one (speaker, partner, dialogue) triple. Grounded on
// agents/react.go's persona/system-prompt composition and
// llm/interface.go's CompletionRequest validate-then-call shape, narrowed
// from a multi-step ReAct loop to a single branch-selected completion call.
package speaker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/skumyol/npcworld/llmclient"
	"github.com/skumyol/npcworld/simmodel"
)

// FallbackText is substituted whenever generation fails or times out.
const FallbackText = "I need to go now. Goodbye!"

const defaultTimeout = 60 * time.Second
const maxRecentTurns = 6

// Memory is the subset of a Store/memsvc snapshot NPCSpeaker needs to
// compose a persona prompt. Callers build this from simmodel.NPCMemory.
type Memory struct {
	DialogueSummary string
	WorldKnowledge  map[string]any
	Opinions        map[string]string
	SocialStance    map[string]string
}

// DialogueContext is the subset of a Dialogue + its Messages NPCSpeaker
// needs to pick a conversational branch.
type DialogueContext struct {
	RecentMessages []simmodel.Message
}

// Speaker produces the next utterance for one character in a dialogue.
// It is stateless beyond its LLM routing configuration and never touches
// the Store.
type Speaker struct {
	llm      llmclient.Client
	provider string
	model    string
	timeout  time.Duration
}

// New creates a Speaker routed through llm using provider/model, with
// per-call timeout bounded by timeout (defaults to 60s if zero).
func New(llm llmclient.Client, provider, model string, timeout time.Duration) *Speaker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Speaker{llm: llm, provider: provider, model: model, timeout: timeout}
}

// GenerateMessage produces the next message speaker sends to partner.
// knownToSpeaker reports whether partner has spoken with speaker before in
// this session (drives the introduce-vs-greet-vs-respond branch).
func (s *Speaker) GenerateMessage(ctx context.Context, speaker, partner simmodel.CharacterProperties, speakerMem Memory, dctx DialogueContext, knownToSpeaker, forceGoodbye bool) string {
	if speaker.Name == "" || partner.Name == "" {
		return FallbackText
	}

	system := personaPrompt(speaker, speakerMem)
	user := s.branchPrompt(speaker, partner, dctx, knownToSpeaker, forceGoodbye)

	text, err := s.llm.Call(ctx, llmclient.CallRequest{
		Provider:    s.provider,
		Model:       s.model,
		System:      system,
		User:        user,
		Temperature: 0.8,
		Timeout:     s.timeout,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		return FallbackText
	}
	return strings.TrimSpace(text)
}

func personaPrompt(c simmodel.CharacterProperties, mem Memory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a %s. Personality: %s.\n", c.Name, c.Role, c.Personality)
	if c.Story != "" {
		fmt.Fprintf(&b, "Background: %s\n", c.Story)
	}
	if len(c.Titles) > 0 {
		fmt.Fprintf(&b, "Titles: %s\n", strings.Join(c.Titles, ", "))
	}
	if len(c.Abilities) > 0 {
		fmt.Fprintf(&b, "Abilities: %s\n", strings.Join(c.Abilities, ", "))
	}
	if len(c.SpeechMotifs) > 0 {
		fmt.Fprintf(&b, "Speak using these motifs where natural: %s\n", strings.Join(c.SpeechMotifs, ", "))
	}
	if mem.DialogueSummary != "" {
		fmt.Fprintf(&b, "What you remember so far: %s\n", mem.DialogueSummary)
	}
	if len(mem.Opinions) > 0 {
		fmt.Fprintf(&b, "Your opinions of people you've met: %v\n", mem.Opinions)
	}
	if len(mem.SocialStance) > 0 {
		fmt.Fprintf(&b, "Your current stance toward people: %v\n", mem.SocialStance)
	}
	if len(mem.WorldKnowledge) > 0 {
		fmt.Fprintf(&b, "What you know about the world: %v\n", mem.WorldKnowledge)
	}
	b.WriteString("Stay in character. Respond with only your spoken line, nothing else.")
	return b.String()
}

func (s *Speaker) branchPrompt(speaker, partner simmodel.CharacterProperties, dctx DialogueContext, knownToSpeaker, forceGoodbye bool) string {
	switch {
	case !knownToSpeaker && len(dctx.RecentMessages) == 0:
		return fmt.Sprintf("You have just met %s for the first time. Introduce yourself.", partner.Name)
	case len(dctx.RecentMessages) == 0:
		return fmt.Sprintf("You run into %s. Greet them.", partner.Name)
	default:
		recent := dctx.RecentMessages
		if len(recent) > maxRecentTurns {
			recent = recent[len(recent)-maxRecentTurns:]
		}
		var turns strings.Builder
		for _, m := range recent {
			fmt.Fprintf(&turns, "%s: %s\n", m.Sender, m.MessageText)
		}
		prompt := fmt.Sprintf("Recent conversation:\n%sRespond to %s's last message.", turns.String(), partner.Name)
		if forceGoodbye {
			prompt += " Wrap up the conversation and say goodbye."
		}
		return prompt
	}
}
