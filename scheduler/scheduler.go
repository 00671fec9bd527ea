// Package scheduler implements the Scheduler (C6): per-day Lifecycle,
// Introduction, and Schedule passes. Grounded on
// core/multiagent/loadbalancer.go and core/multiagent/autoscaler.go's
// "decide-then-partition" shape (score/assign, then fall back to a
// deterministic default), adapted from worker-capability assignment to
// NPC active/passive partitioning and pairwise dialogue scheduling.
package scheduler

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/skumyol/npcworld/llmclient"
	"github.com/skumyol/npcworld/simmodel"
	"github.com/skumyol/npcworld/store"
)

// Config bounds the scheduler's LLM usage and Introduction pass.
type Config struct {
	Provider              string
	Model                 string
	Timeout               time.Duration
	IntroductionRosterCap int // roster size at/above which Introduction is a no-op (default 10)
	BloomCapacity         uint
	BloomFalsePositive    float64
}

// DefaultConfig matches spec defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:               30 * time.Second,
		IntroductionRosterCap: 10,
		BloomCapacity:         10000,
		BloomFalsePositive:    0.01,
	}
}

// Scheduler runs the three per-day passes.
type Scheduler struct {
	store store.Store
	llm   llmclient.Client
	cfg   Config

	introduced *bloom.BloomFilter
}

// New constructs a Scheduler. The Introduction-pass dedup filter persists
// for the Scheduler's lifetime (typically one SimulationLoop run).
func New(st store.Store, llm llmclient.Client, cfg Config) *Scheduler {
	if cfg.IntroductionRosterCap <= 0 {
		cfg.IntroductionRosterCap = 10
	}
	if cfg.BloomCapacity == 0 {
		cfg.BloomCapacity = 10000
	}
	if cfg.BloomFalsePositive <= 0 {
		cfg.BloomFalsePositive = 0.01
	}
	return &Scheduler{
		store:      st,
		llm:        llm,
		cfg:        cfg,
		introduced: bloom.NewWithEstimates(cfg.BloomCapacity, cfg.BloomFalsePositive),
	}
}

// LifecycleResult is the output of one Lifecycle pass.
type LifecycleResult struct {
	Active  []string
	Passive []string
}

// Lifecycle decides who is active today from the session summary, full
// roster, and yesterday's active/passive lists.
func (s *Scheduler) Lifecycle(ctx context.Context, sessionSummary string, roster, prevActive, prevPassive []string) LifecycleResult {
	system := "You decide which characters are active participants in the world today, " +
		"given the accumulated session summary and the full character roster. " +
		"Respond with a CSV of active character names, nothing else."
	user := buildLifecyclePrompt(sessionSummary, roster, prevActive, prevPassive)

	reply, err := s.llm.Call(ctx, llmclient.CallRequest{
		Provider: s.cfg.Provider, Model: s.cfg.Model, System: system, User: user,
		Temperature: 0.3, Timeout: s.cfg.Timeout,
	})

	active := intersectCSV(reply, roster)
	if err != nil || len(active) == 0 {
		active = fallbackActive(roster)
	}
	return LifecycleResult{Active: active, Passive: subtract(roster, active)}
}

func buildLifecyclePrompt(sessionSummary string, roster, prevActive, prevPassive []string) string {
	var b strings.Builder
	b.WriteString("Session summary: " + sessionSummary + "\n")
	b.WriteString("Full roster: " + strings.Join(roster, ", ") + "\n")
	b.WriteString("Yesterday's active: " + strings.Join(prevActive, ", ") + "\n")
	b.WriteString("Yesterday's passive: " + strings.Join(prevPassive, ", ") + "\n")
	b.WriteString("Which characters are active today?")
	return b.String()
}

func intersectCSV(csvText string, roster []string) []string {
	names := parseCSVNames(csvText)
	rosterSet := toSet(roster)
	var out []string
	seen := map[string]bool{}
	for _, n := range names {
		if rosterSet[n] && !seen[n] {
			out = append(out, n)
			seen[n] = true
		}
	}
	return out
}

func fallbackActive(roster []string) []string {
	if len(roster) <= 2 {
		return append([]string{}, roster...)
	}
	return append([]string{}, roster[:2]...)
}

func subtract(all, remove []string) []string {
	removeSet := toSet(remove)
	var out []string
	for _, n := range all {
		if !removeSet[n] {
			out = append(out, n)
		}
	}
	return out
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func parseCSVNames(csvText string) []string {
	r := csv.NewReader(strings.NewReader(strings.TrimSpace(csvText)))
	r.FieldsPerRecord = -1
	record, err := r.Read()
	if err != nil {
		return nil
	}
	var out []string
	for _, f := range record {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// introductionResponse is the exact shape an Introduction-pass reply must
// match to be accepted.
type introductionResponse struct {
	Name         string `json:"name"`
	Story        string `json:"story"`
	Personality  string `json:"personality"`
	Role         string `json:"role"`
	LocationHome string `json:"location_home"`
	LocationWork string `json:"location_work"`
}

// Introduce runs the optional Introduction pass: if roster is already at
// or above the cap, it is a no-op. Otherwise it prompts for a new
// character and, on a well-formed and not-already-introduced reply, adds
// them to sessionID's roster via Store.
func (s *Scheduler) Introduce(ctx context.Context, sessionID, recentEvents string, active []string, currentRosterSize int) (*simmodel.CharacterProperties, error) {
	if currentRosterSize >= s.cfg.IntroductionRosterCap {
		return nil, nil
	}

	system := "You may introduce exactly one new character into the world. Respond with a JSON object " +
		`{"name": "...", "story": "...", "personality": "...", "role": "...", "location_home": "...", "location_work": "..."} ` +
		"or respond with an empty object if no new character should be introduced."
	user := "Recent events: " + recentEvents + "\nCurrently active: " + strings.Join(active, ", ")

	reply, err := s.llm.Call(ctx, llmclient.CallRequest{
		Provider: s.cfg.Provider, Model: s.cfg.Model, System: system, User: user,
		Temperature: 0.7, Timeout: s.cfg.Timeout,
	})
	if err != nil {
		return nil, nil
	}

	var parsed introductionResponse
	if jsonErr := json.Unmarshal([]byte(strings.TrimSpace(reply)), &parsed); jsonErr != nil {
		return nil, nil
	}
	if parsed.Name == "" || parsed.Story == "" || parsed.Personality == "" ||
		parsed.Role == "" || parsed.LocationHome == "" || parsed.LocationWork == "" {
		return nil, nil
	}
	if s.introduced.TestString(parsed.Name) {
		return nil, nil
	}
	s.introduced.AddString(parsed.Name)

	props := simmodel.CharacterProperties{
		Name:         parsed.Name,
		Type:         "npc",
		Role:         parsed.Role,
		Story:        parsed.Story,
		Personality:  parsed.Personality,
		LocationHome: parsed.LocationHome,
		LocationWork: parsed.LocationWork,
		LifeCycle:    "active",
	}

	_, err = s.store.UpdateSessionFn(ctx, sessionID, func(sess *simmodel.Session) error {
		sess.GameSettings.CharacterList = append(sess.GameSettings.CharacterList, props)
		sess.ActiveNPCs = append(sess.ActiveNPCs, props.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &props, nil
}

// Pair is one (speaker, recipient) scheduled dialogue within a phase.
type Pair struct {
	Speaker   string
	Recipient string
}

// Schedule runs the Schedule pass for one phase: queries the LLM per
// active NPC for a CSV of recipients, and deduplicates pairs within the
// phase (undirected: (A,B) and (B,A) never coexist).
func (s *Scheduler) Schedule(ctx context.Context, phase simmodel.TimePeriod, active []string, memorySummaries map[string]string, opinions map[string]map[string]string, alreadySpoken map[string]map[string]bool) []Pair {
	activeSet := toSet(active)
	seen := map[string]bool{} // undirected pair key
	var pairs []Pair

	for _, speakerName := range active {
		partners := availablePartners(active, speakerName)
		reply, err := s.llm.Call(ctx, llmclient.CallRequest{
			Provider: s.cfg.Provider, Model: s.cfg.Model,
			System: "You decide who this character wants to talk to this phase. Respond with a CSV of recipient names, nothing else.",
			User:   buildScheduleUser(speakerName, phase, memorySummaries[speakerName], opinions[speakerName], alreadySpokenFor(alreadySpoken, speakerName), partners),
			Temperature: 0.5, Timeout: s.cfg.Timeout,
		})
		if err != nil {
			continue
		}
		for _, recipient := range parseCSVNames(reply) {
			if recipient == speakerName || !activeSet[recipient] {
				continue
			}
			key := pairKey(speakerName, recipient)
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, Pair{Speaker: speakerName, Recipient: recipient})
		}
	}
	return pairs
}

func availablePartners(active []string, exclude string) []string {
	var out []string
	for _, n := range active {
		if n != exclude {
			out = append(out, n)
		}
	}
	return out
}

func alreadySpokenFor(alreadySpoken map[string]map[string]bool, speaker string) []string {
	var out []string
	for partner := range alreadySpoken[speaker] {
		out = append(out, partner)
	}
	return out
}

func buildScheduleUser(speakerName string, phase simmodel.TimePeriod, memorySummary string, opinions map[string]string, alreadySpoken, partners []string) string {
	var b strings.Builder
	b.WriteString("Speaker: " + speakerName + "\nPhase: " + string(phase) + "\n")
	b.WriteString("Memory summary: " + memorySummary + "\n")
	b.WriteString("Opinions: ")
	first := true
	for name, op := range opinions {
		if !first {
			b.WriteString(", ")
		}
		b.WriteString(name + "=" + op)
		first = false
	}
	b.WriteString("\nAlready spoken to this phase: " + strings.Join(alreadySpoken, ", ") + "\n")
	b.WriteString("Available partners: " + strings.Join(partners, ", ") + "\n")
	b.WriteString("Who does this character want to talk to?")
	return b.String()
}

func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}
