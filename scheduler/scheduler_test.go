package scheduler

import (
	"context"
	"strings"
	"testing"

	"github.com/skumyol/npcworld/llmclient"
	"github.com/skumyol/npcworld/simmodel"
	"github.com/skumyol/npcworld/store/memstore"
)

type fakeClient struct {
	reply string
	err   error
}

func (f *fakeClient) Call(ctx context.Context, req llmclient.CallRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeClient) HealthCheck(ctx context.Context) error { return nil }

func TestLifecycleValidCSVIntersectsRoster(t *testing.T) {
	llm := &fakeClient{reply: "Alice,Bob"}
	s := New(memstore.New(), llm, DefaultConfig())

	res := s.Lifecycle(context.Background(), "summary", []string{"Alice", "Bob", "Carol"}, nil, nil)
	if len(res.Active) != 2 || res.Active[0] != "Alice" || res.Active[1] != "Bob" {
		t.Fatalf("expected [Alice Bob], got %v", res.Active)
	}
	if len(res.Passive) != 1 || res.Passive[0] != "Carol" {
		t.Fatalf("expected Carol passive, got %v", res.Passive)
	}
}

func TestLifecycleUnknownNamesFallsBackToFirstTwo(t *testing.T) {
	llm := &fakeClient{reply: "Zed,Nobody"}
	s := New(memstore.New(), llm, DefaultConfig())

	res := s.Lifecycle(context.Background(), "summary", []string{"Alice", "Bob", "Carol"}, nil, nil)
	if len(res.Active) != 2 || res.Active[0] != "Alice" || res.Active[1] != "Bob" {
		t.Fatalf("expected fallback to first two roster names, got %v", res.Active)
	}
}

func TestLifecycleLLMErrorFallsBackToFirstTwo(t *testing.T) {
	llm := &fakeClient{err: context.DeadlineExceeded}
	s := New(memstore.New(), llm, DefaultConfig())

	res := s.Lifecycle(context.Background(), "summary", []string{"Alice", "Bob"}, nil, nil)
	if len(res.Active) != 2 {
		t.Fatalf("expected full roster fallback, got %v", res.Active)
	}
}

func TestIntroduceNoOpAtRosterCap(t *testing.T) {
	llm := &fakeClient{reply: `{"name":"New","story":"s","personality":"p","role":"r","location_home":"h","location_work":"w"}`}
	s := New(memstore.New(), llm, DefaultConfig())

	props, err := s.Introduce(context.Background(), "sess", "events", []string{"Alice"}, 10)
	if err != nil {
		t.Fatalf("Introduce: %v", err)
	}
	if props != nil {
		t.Fatalf("expected no-op at roster cap, got %v", props)
	}
}

func TestIntroduceAddsWellFormedCharacter(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	if _, err := st.CreateSession(ctx, "sess", simmodel.GameSettings{}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	llm := &fakeClient{reply: `{"name":"Nora","story":"a wandering scholar","personality":"curious","role":"scholar","location_home":"library","location_work":"archive"}`}
	s := New(st, llm, DefaultConfig())

	props, err := s.Introduce(ctx, "sess", "events", []string{"Alice"}, 2)
	if err != nil {
		t.Fatalf("Introduce: %v", err)
	}
	if props == nil || props.Name != "Nora" {
		t.Fatalf("expected Nora to be introduced, got %v", props)
	}

	sess, err := st.GetSession(ctx, "sess")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(sess.GameSettings.CharacterList) != 1 || sess.GameSettings.CharacterList[0].Name != "Nora" {
		t.Fatalf("expected Nora in character list, got %v", sess.GameSettings.CharacterList)
	}
}

func TestIntroduceMalformedJSONIsNoOp(t *testing.T) {
	llm := &fakeClient{reply: "not json"}
	s := New(memstore.New(), llm, DefaultConfig())

	props, err := s.Introduce(context.Background(), "sess", "events", []string{"Alice"}, 2)
	if err != nil {
		t.Fatalf("Introduce: %v", err)
	}
	if props != nil {
		t.Fatalf("expected no-op on malformed reply, got %v", props)
	}
}

func TestIntroduceDedupsAlreadyIntroducedName(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	st.CreateSession(ctx, "sess", simmodel.GameSettings{})
	llm := &fakeClient{reply: `{"name":"Nora","story":"s","personality":"p","role":"r","location_home":"h","location_work":"w"}`}
	s := New(st, llm, DefaultConfig())

	if _, err := s.Introduce(ctx, "sess", "events", nil, 0); err != nil {
		t.Fatalf("Introduce (first): %v", err)
	}
	props, err := s.Introduce(ctx, "sess", "events", nil, 1)
	if err != nil {
		t.Fatalf("Introduce (second): %v", err)
	}
	if props != nil {
		t.Fatalf("expected second introduction of the same name to be a no-op, got %v", props)
	}
}

type mutualClient struct{}

func (mutualClient) Call(ctx context.Context, req llmclient.CallRequest) (string, error) {
	if strings.Contains(req.User, "Speaker: Alice") {
		return "Bob", nil
	}
	return "Alice", nil
}

func (mutualClient) HealthCheck(ctx context.Context) error { return nil }

func TestScheduleDedupsUndirectedPairs(t *testing.T) {
	s := New(memstore.New(), mutualClient{}, DefaultConfig())

	pairs := s.Schedule(context.Background(), simmodel.PeriodMorning, []string{"Alice", "Bob"}, map[string]string{}, map[string]map[string]string{}, map[string]map[string]bool{})
	if len(pairs) != 1 {
		t.Fatalf("expected Alice->Bob and Bob->Alice to dedup to one pair, got %d: %v", len(pairs), pairs)
	}
	if pairKey(pairs[0].Speaker, pairs[0].Recipient) != pairKey("Alice", "Bob") {
		t.Fatalf("unexpected pair: %v", pairs[0])
	}
}
