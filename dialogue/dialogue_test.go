package dialogue

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skumyol/npcworld/llmclient"
	"github.com/skumyol/npcworld/simmodel"
	"github.com/skumyol/npcworld/social"
	"github.com/skumyol/npcworld/speaker"
	"github.com/skumyol/npcworld/store/memstore"
)

// sequenceClient returns replies in order, looping the last one once
// exhausted, so tests can script exact turn-by-turn dialogue.
type sequenceClient struct {
	mu       sync.Mutex
	replies  []string
	i        int
	hang     bool
	hangChan chan struct{}
}

func (s *sequenceClient) Call(ctx context.Context, req llmclient.CallRequest) (string, error) {
	if s.hang {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-s.hangChan:
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return "hello", nil
	}
	idx := s.i
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	s.i++
	return s.replies[idx], nil
}

func (s *sequenceClient) HealthCheck(ctx context.Context) error { return nil }

func newParticipant(name string) Participant {
	return Participant{
		Properties:     simmodel.CharacterProperties{Name: name, Role: "villager", Personality: "friendly"},
		Memory:         simmodel.NewNPCMemory(name, "sess", simmodel.CharacterProperties{Name: name}),
		KnownToPartner: true,
	}
}

func setupSession(t *testing.T, st *memstore.MemStore) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.CreateSession(ctx, "sess", simmodel.GameSettings{}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := st.CreateDay(ctx, "sess", 1, simmodel.PeriodMorning, []string{"Alice", "Bob"}, nil); err != nil {
		t.Fatalf("CreateDay: %v", err)
	}
}

func TestSelfPairRejected(t *testing.T) {
	st := memstore.New()
	setupSession(t, st)
	sp := speaker.New(&sequenceClient{}, "openai", "gpt-4o-mini", time.Second)
	eng := New(st, nil, sp, DefaultConfig(), nil, nil, nil, nil)

	_, err := eng.Run(context.Background(), "sess", 1, simmodel.PeriodMorning, "square", newParticipant("Alice"), newParticipant("Alice"))
	if err == nil {
		t.Fatal("expected self-pair to be rejected")
	}
}

func TestMaxMessagesBoundaryEndsExactlyAtLimit(t *testing.T) {
	st := memstore.New()
	setupSession(t, st)
	client := &sequenceClient{replies: []string{"Hi there", "Hi to you too"}}
	sp := speaker.New(client, "openai", "gpt-4o-mini", time.Second)
	cfg := DefaultConfig()
	cfg.MaxMessages = 2
	cfg.GoodbyeThreshold = 2
	cfg.PacingDelay = time.Millisecond
	eng := New(st, nil, sp, cfg, nil, nil, nil, nil)

	dlg, err := eng.Run(context.Background(), "sess", 1, simmodel.PeriodMorning, "square", newParticipant("Alice"), newParticipant("Bob"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dlg.EndedAt == nil {
		t.Fatal("expected dialogue to be ended")
	}
	msgs, err := st.GetMessages(context.Background(), dlg.DialogueID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected exactly 2 messages, got %d", len(msgs))
	}
}

func TestGoodbyeShortCircuit(t *testing.T) {
	st := memstore.New()
	setupSession(t, st)
	client := &sequenceClient{replies: []string{"Well, goodbye for now", "Goodbye to you too"}}
	sp := speaker.New(client, "openai", "gpt-4o-mini", time.Second)
	cfg := DefaultConfig()
	cfg.MaxMessages = 10
	cfg.GoodbyeThreshold = 2
	cfg.PacingDelay = time.Millisecond
	eng := New(st, nil, sp, cfg, nil, nil, nil, nil)

	dlg, err := eng.Run(context.Background(), "sess", 1, simmodel.PeriodMorning, "square", newParticipant("Alice"), newParticipant("Bob"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	msgs, err := st.GetMessages(context.Background(), dlg.DialogueID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected goodbye short-circuit after 2 messages, got %d", len(msgs))
	}
}

func TestTimeoutDegradesToFallbackAndEndsWithinOneMoreTurn(t *testing.T) {
	st := memstore.New()
	setupSession(t, st)
	client := &sequenceClient{hang: true, hangChan: make(chan struct{})}
	sp := speaker.New(client, "openai", "gpt-4o-mini", 20*time.Millisecond)
	cfg := DefaultConfig()
	cfg.MaxMessages = 10
	cfg.GoodbyeThreshold = 2
	cfg.MessageTimeout = 20 * time.Millisecond
	cfg.PacingDelay = time.Millisecond
	eng := New(st, nil, sp, cfg, nil, nil, nil, nil)

	dlg, err := eng.Run(context.Background(), "sess", 1, simmodel.PeriodMorning, "square", newParticipant("Alice"), newParticipant("Bob"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	msgs, err := st.GetMessages(context.Background(), dlg.DialogueID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected the dialogue to end after one fallback turn, got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[0].MessageText, "Goodbye") {
		t.Fatalf("expected fallback farewell text, got %q", msgs[0].MessageText)
	}
}

// capturingSocialClient records every System prompt it is handed, so a
// test can assert on what a social agent actually rendered into its call.
type capturingSocialClient struct {
	mu       sync.Mutex
	systems  []string
	fixedOut string
}

func (c *capturingSocialClient) Call(ctx context.Context, req llmclient.CallRequest) (string, error) {
	c.mu.Lock()
	c.systems = append(c.systems, req.System)
	c.mu.Unlock()
	return c.fixedOut, nil
}

func TestPostDialogueSocialCallsUseSessionReputationAndWorld(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	settings := simmodel.GameSettings{World: "a windswept coastal village"}
	if _, err := st.CreateSession(ctx, "sess-social", settings); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := st.UpdateSessionFn(ctx, "sess-social", func(s *simmodel.Session) error {
		s.Reputations = map[string]string{"Alice": "trusted", "Bob": "aloof"}
		return nil
	}); err != nil {
		t.Fatalf("UpdateSessionFn: %v", err)
	}
	if _, err := st.CreateDay(ctx, "sess-social", 1, simmodel.PeriodMorning, []string{"Alice", "Bob"}, nil); err != nil {
		t.Fatalf("CreateDay: %v", err)
	}

	dialogueClient := &sequenceClient{replies: []string{"Hi there", "Goodbye for now"}}
	sp := speaker.New(dialogueClient, "openai", "gpt-4o-mini", time.Second)

	socialClient := &capturingSocialClient{fixedOut: "Warm"}
	opinionAgent, err := social.NewOpinionAgent(true, "openai", "gpt-4o-mini", time.Second, socialClient)
	if err != nil {
		t.Fatalf("NewOpinionAgent: %v", err)
	}
	stanceAgent, err := social.NewStanceAgent(true, "openai", "gpt-4o-mini", time.Second, socialClient)
	if err != nil {
		t.Fatalf("NewStanceAgent: %v", err)
	}
	reputationAgent, err := social.NewReputationAgent(true, "openai", "gpt-4o-mini", time.Second, socialClient)
	if err != nil {
		t.Fatalf("NewReputationAgent: %v", err)
	}

	cfg := DefaultConfig()
	cfg.MaxMessages = 10
	cfg.GoodbyeThreshold = 1
	cfg.PacingDelay = time.Millisecond
	cfg.ReputationUpdateTimeout = time.Second
	eng := New(st, nil, sp, cfg, opinionAgent, stanceAgent, nil, reputationAgent)

	if _, err := eng.Run(ctx, "sess-social", 1, simmodel.PeriodMorning, "square", newParticipant("Alice"), newParticipant("Bob")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Opinion (per turn) and Stance (synchronous post-dialogue) calls land
	// immediately; Reputation fires in a goroutine, so poll for all six
	// expected social calls (2 opinion + 2 stance + 2 reputation).
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		socialClient.mu.Lock()
		n := len(socialClient.systems)
		socialClient.mu.Unlock()
		if n >= 6 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	socialClient.mu.Lock()
	defer socialClient.mu.Unlock()
	joined := strings.Join(socialClient.systems, "\n---\n")
	if !strings.Contains(joined, "aloof") {
		t.Fatalf("expected Bob's recorded reputation (aloof) to appear in some social prompt, got %q", joined)
	}
	if !strings.Contains(joined, "trusted") {
		t.Fatalf("expected Alice's recorded reputation (trusted) to appear in some social prompt, got %q", joined)
	}
	if !strings.Contains(joined, "a windswept coastal village") {
		t.Fatalf("expected session world definition to appear in the reputation prompt, got %q", joined)
	}
}

func TestDuplicateActiveDialogueRejected(t *testing.T) {
	st := memstore.New()
	setupSession(t, st)
	sp := speaker.New(&sequenceClient{}, "openai", "gpt-4o-mini", time.Second)
	eng := New(st, nil, sp, DefaultConfig(), nil, nil, nil, nil)

	key := activeKey("Alice", "Bob", simmodel.PeriodMorning)
	if !eng.claim(key) {
		t.Fatal("expected to claim key")
	}
	defer eng.release(key)

	_, err := eng.Run(context.Background(), "sess", 1, simmodel.PeriodMorning, "square", newParticipant("Alice"), newParticipant("Bob"))
	if err == nil {
		t.Fatal("expected duplicate active dialogue to be rejected")
	}
}
