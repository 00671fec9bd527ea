// Package dialogue implements DialogueEngine (C5): the bounded two-party
// conversation state machine. Grounded on
// core/multiagent/groupchat.go's GroupChat.Run turn loop (round counter,
// speaker swap, termination check), narrowed from N-agent round-robin to
// strict two-party alternation with token/message/goodbye accounting, and
// on core/multiagent/conversable.go's ConversableAgent.GenerateReply for
// the per-turn call shape. Message-append retries use retry.Do; per-turn
// timeouts use resilience.WithTimeout.
package dialogue

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/skumyol/npcworld/errors"
	"github.com/skumyol/npcworld/memsvc"
	"github.com/skumyol/npcworld/resilience"
	"github.com/skumyol/npcworld/retry"
	"github.com/skumyol/npcworld/simmodel"
	"github.com/skumyol/npcworld/social"
	"github.com/skumyol/npcworld/speaker"
	"github.com/skumyol/npcworld/store"
)

// goodbyeLexicon is matched case-insensitively as a substring against each
// generated message to drive the goodbye_count accounting.
var goodbyeLexicon = []string{
	"goodbye", "bye", "farewell", "see you later", "see you", "talk later",
	"gotta go", "need to go", "have to go", "must go", "take care", "until next time",
}

// Config bounds one dialogue's state machine.
type Config struct {
	MaxMessages            int
	MaxTokens              int
	GoodbyeThreshold       int
	AvgCharsPerToken       float64
	MessageTimeout         time.Duration
	PacingDelay            time.Duration
	ReputationUpdateTimeout time.Duration
}

// DefaultConfig matches spec defaults: 10 messages, 2000 tokens,
// goodbye_threshold 2, 60s per-turn timeout, 500ms pacing delay.
func DefaultConfig() Config {
	return Config{
		MaxMessages:             10,
		MaxTokens:               2000,
		GoodbyeThreshold:        2,
		AvgCharsPerToken:        4.0,
		MessageTimeout:          60 * time.Second,
		PacingDelay:             500 * time.Millisecond,
		ReputationUpdateTimeout: 20 * time.Second,
	}
}

// Participant is everything the engine needs about one side of a dialogue.
type Participant struct {
	Properties     simmodel.CharacterProperties
	Memory         *simmodel.NPCMemory
	KnownToPartner bool
}

// Engine drives dialogues to completion, persisting via Store and updating
// social state via the four SocialAgent transducers.
type Engine struct {
	store   store.Store
	mem     *memsvc.Service
	speaker *speaker.Speaker
	cfg     Config

	opinion    social.Agent // invoked per-turn, listener forming an opinion of the speaker
	stance     social.Agent
	knowledge  social.Agent
	reputation social.Agent

	activeMu sync.Mutex
	active   map[string]bool
}

// New constructs a dialogue Engine.
func New(st store.Store, mem *memsvc.Service, sp *speaker.Speaker, cfg Config, opinion, stance, knowledge, reputation social.Agent) *Engine {
	return &Engine{
		store:      st,
		mem:        mem,
		speaker:    sp,
		cfg:        cfg,
		opinion:    opinion,
		stance:     stance,
		knowledge:  knowledge,
		reputation: reputation,
		active:     make(map[string]bool),
	}
}

func activeKey(initiator, receiver string, phase simmodel.TimePeriod) string {
	return fmt.Sprintf("%s|%s|%s", initiator, receiver, phase)
}

// approxTokens estimates token count as ceil(0.3*word_count + word_count).
func approxTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(0.3*float64(words) + float64(words)))
}

func isGoodbye(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range goodbyeLexicon {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Run executes one scheduled (initiator, receiver) pair within one phase to
// completion: Initializing -> Starting -> Turn* -> Ending|Aborted.
func (e *Engine) Run(ctx context.Context, sessionID string, day int, phase simmodel.TimePeriod, location string, initiator, receiver Participant) (*simmodel.Dialogue, error) {
	// Initializing
	if initiator.Properties.Name == "" || receiver.Properties.Name == "" {
		return nil, errors.NewValidationError("participants", nil, "both NPC names must be non-empty")
	}
	if initiator.Properties.Name == receiver.Properties.Name {
		return nil, errors.NewValidationError("participants", initiator.Properties.Name, "self-pair is not allowed")
	}

	// Starting
	key := activeKey(initiator.Properties.Name, receiver.Properties.Name, phase)
	if !e.claim(key) {
		return nil, errors.NewDialogueStateError(key, "dialogue already active for this (initiator, responder, phase)")
	}
	defer e.release(key)

	dlg, err := e.store.CreateDialogue(ctx, sessionID, initiator.Properties.Name, receiver.Properties.Name, day, phase, location)
	if err != nil {
		return nil, err
	}

	sess, sessErr := e.store.GetSession(ctx, sessionID)
	if sessErr != nil {
		sess = &simmodel.Session{SessionID: sessionID}
	}

	dlg, runErr := e.runTurns(ctx, sess, dlg, day, phase, location, initiator, receiver)
	if runErr != nil {
		// Aborted: best-effort end, then propagate.
		if ended, endErr := e.store.EndDialogue(ctx, dlg.DialogueID, dlg.Summary); endErr == nil {
			dlg = ended
		}
		return dlg, errors.NewDialogueHandlerError(fmt.Sprintf("%d", dlg.DialogueID), runErr)
	}

	e.runPostDialogueUpdates(ctx, sess, day, phase, location, dlg, initiator, receiver)
	return dlg, nil
}

func (e *Engine) claim(key string) bool {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	if e.active[key] {
		return false
	}
	e.active[key] = true
	return true
}

func (e *Engine) release(key string) {
	e.activeMu.Lock()
	delete(e.active, key)
	e.activeMu.Unlock()
}

func (e *Engine) runTurns(ctx context.Context, sess *simmodel.Session, dlg *simmodel.Dialogue, day int, phase simmodel.TimePeriod, location string, initiator, receiver Participant) (*simmodel.Dialogue, error) {
	speakerSide, listenerSide := initiator, receiver
	messagesSoFar := 0
	tokensSoFar := 0
	goodbyeCount := 0
	var recent []simmodel.Message

	for {
		forceGoodbye := goodbyeCount > 0 ||
			messagesSoFar >= e.cfg.MaxMessages-2 ||
			float64(tokensSoFar) >= 0.9*float64(e.cfg.MaxTokens)

		text, genErr := e.generateTurn(ctx, speakerSide, listenerSide, recent, forceGoodbye)
		if genErr != nil || text == speaker.FallbackText {
			// timeout or invalid output: substitute fallback text and force
			// the Ending transition this turn, per the per-turn contract.
			text = speaker.FallbackText
			goodbyeCount = e.cfg.GoodbyeThreshold
		}

		msg, err := e.appendWithRetry(ctx, dlg.DialogueID, speakerSide.Properties.Name, listenerSide.Properties.Name, text)
		if err != nil {
			return dlg, errors.NewMemoryOperationError("AppendMessage", err)
		}
		messagesSoFar++
		tokensSoFar += approxTokens(text)
		recent = append(recent, *msg)

		if isGoodbye(text) {
			goodbyeCount++
		}

		if e.mem != nil {
			if err := e.mem.RecordMessage(ctx, dlg.SessionID, day, phase, speakerSide.Properties.Name, listenerSide.Properties.Name, text); err != nil {
				// non-critical per spec; warnings only, continue.
				_ = err
			}
		}

		// Opinion is formed by the listener about the speaker on every
		// incoming message; timeout-guarded and non-fatal, matching the
		// other per-turn "non-critical" updates in step 6.
		e.updateOpinion(ctx, sess, listenerSide, speakerSide, text, recent)

		if messagesSoFar >= e.cfg.MaxMessages || tokensSoFar >= e.cfg.MaxTokens || goodbyeCount >= e.cfg.GoodbyeThreshold {
			ended, err := e.store.EndDialogue(ctx, dlg.DialogueID, "")
			if err != nil {
				return dlg, err
			}
			return ended, nil
		}

		speakerSide, listenerSide = listenerSide, speakerSide
		select {
		case <-ctx.Done():
			return dlg, ctx.Err()
		case <-time.After(e.cfg.PacingDelay):
		}
	}
}

func (e *Engine) generateTurn(ctx context.Context, speakerSide, listenerSide Participant, recent []simmodel.Message, forceGoodbye bool) (string, error) {
	var text string
	err := resilience.WithTimeout(ctx, e.cfg.MessageTimeout, func(ctx context.Context) error {
		mem := speaker.Memory{}
		if speakerSide.Memory != nil {
			mem = speaker.Memory{
				DialogueSummary: speakerSide.Memory.MessagesSummary,
				WorldKnowledge:  speakerSide.Memory.WorldKnowledge,
				Opinions:        speakerSide.Memory.OpinionOnNPCs,
				SocialStance:    speakerSide.Memory.SocialStance,
			}
		}
		text = e.speaker.GenerateMessage(ctx, speakerSide.Properties, listenerSide.Properties, mem, speaker.DialogueContext{RecentMessages: recent}, speakerSide.KnownToPartner, forceGoodbye)
		return nil
	})
	return text, err
}

// updateOpinion forms listener's opinion of speaker from the just-received
// message and persists it into listener's NPCMemory.OpinionOnNPCs[speaker].
// Non-fatal: a failing or empty opinion call leaves the dialogue unaffected.
func (e *Engine) updateOpinion(ctx context.Context, sess *simmodel.Session, listener, speakerSide Participant, incoming string, recent []simmodel.Message) {
	if e.opinion == nil {
		return
	}

	var recentText strings.Builder
	for _, m := range recent {
		fmt.Fprintf(&recentText, "%s: %s\n", m.Sender, m.MessageText)
	}

	var out social.Output
	err := resilience.WithTimeout(ctx, e.cfg.MessageTimeout, func(ctx context.Context) error {
		var callErr error
		out, callErr = e.opinion.Call(ctx, social.Inputs{
			ObserverName:        listener.Properties.Name,
			ObserverPersonality: listener.Properties.Personality,
			ObserverStory:       listener.Properties.Story,
			RecipientName:       speakerSide.Properties.Name,
			RecipientReputation: sess.Reputations[speakerSide.Properties.Name],
			IncomingMessage:     incoming,
			RecentDialogue:      recentText.String(),
		})
		return callErr
	})
	if err != nil || out.Text == "" {
		return
	}

	mem, getErr := e.store.GetNPCMemory(ctx, listener.Properties.Name, sess.SessionID)
	if getErr != nil {
		mem = simmodel.NewNPCMemory(listener.Properties.Name, sess.SessionID, listener.Properties)
	}
	mem.OpinionOnNPCs[speakerSide.Properties.Name] = out.Text
	_ = e.store.UpsertNPCMemory(ctx, mem)
}

func (e *Engine) appendWithRetry(ctx context.Context, dialogueID int64, sender, receiver, text string) (*simmodel.Message, error) {
	return retry.Do(ctx, func() (*simmodel.Message, error) {
		return e.store.AppendMessage(ctx, dialogueID, sender, receiver, text)
	}, retry.WithMaxRetries(2), retry.WithInitialDelay(100*time.Millisecond), retry.WithMultiplier(2.0))
}

// runPostDialogueUpdates fires the C5 post-dialogue social updates using a
// single pre-update snapshot, per spec: Knowledge/Stance updates are
// persisted under the Store write lock (via UpsertNPCMemory), Reputation
// updates may lag and are best-effort.
func (e *Engine) runPostDialogueUpdates(ctx context.Context, sess *simmodel.Session, day int, phase simmodel.TimePeriod, location string, dlg *simmodel.Dialogue, a, b Participant) {
	sessionID := sess.SessionID
	messages, err := e.store.GetMessages(ctx, dlg.DialogueID)
	if err != nil {
		return
	}
	dialogueText := formatDialogueText(day, phase, location, a.Properties.Name, b.Properties.Name, messages)

	var wg sync.WaitGroup
	var aKnowledge, bKnowledge social.Output
	var aStance, bStance social.Output

	wg.Add(4)
	go func() {
		defer wg.Done()
		if e.knowledge != nil {
			aKnowledge, _ = e.knowledge.Call(ctx, social.Inputs{ObserverName: a.Properties.Name, ObserverPersonality: a.Properties.Personality, WorldKnowledge: safeKnowledge(a), DialogueText: dialogueText})
		}
	}()
	go func() {
		defer wg.Done()
		if e.knowledge != nil {
			bKnowledge, _ = e.knowledge.Call(ctx, social.Inputs{ObserverName: b.Properties.Name, ObserverPersonality: b.Properties.Personality, WorldKnowledge: safeKnowledge(b), DialogueText: dialogueText})
		}
	}()
	go func() {
		defer wg.Done()
		if e.stance == nil {
			return
		}
		aStance, _ = e.stance.Call(ctx, social.Inputs{
			ObserverName: a.Properties.Name, ObserverPersonality: a.Properties.Personality,
			OpponentName:        b.Properties.Name,
			OpponentOpinion:     safeOpinions(a)[b.Properties.Name],
			RecipientReputation: sess.Reputations[b.Properties.Name],
			WorldKnowledge:      safeKnowledge(a),
			InteractionHistory:  dialogueText,
		})
	}()
	go func() {
		defer wg.Done()
		if e.stance == nil {
			return
		}
		bStance, _ = e.stance.Call(ctx, social.Inputs{
			ObserverName: b.Properties.Name, ObserverPersonality: b.Properties.Personality,
			OpponentName:        a.Properties.Name,
			OpponentOpinion:     safeOpinions(b)[a.Properties.Name],
			RecipientReputation: sess.Reputations[a.Properties.Name],
			WorldKnowledge:      safeKnowledge(b),
			InteractionHistory:  dialogueText,
		})
	}()
	wg.Wait()

	e.persistKnowledgeAndStance(ctx, sessionID, a.Properties.Name, b.Properties.Name, aKnowledge, aStance)
	e.persistKnowledgeAndStance(ctx, sessionID, b.Properties.Name, a.Properties.Name, bKnowledge, bStance)

	if e.reputation != nil && e.reputation.Enabled() {
		e.updateReputationBestEffort(ctx, sess, a.Properties.Name, a)
		e.updateReputationBestEffort(ctx, sess, b.Properties.Name, b)
	}
}

func safeKnowledge(p Participant) map[string]any {
	if p.Memory == nil {
		return map[string]any{}
	}
	return p.Memory.WorldKnowledge
}

func (e *Engine) persistKnowledgeAndStance(ctx context.Context, sessionID, npcName, partnerName string, knowledge social.Output, stance social.Output) {
	mem, err := e.store.GetNPCMemory(ctx, npcName, sessionID)
	if err != nil {
		mem = simmodel.NewNPCMemory(npcName, sessionID, simmodel.CharacterProperties{Name: npcName})
	}
	for k, v := range knowledge.Knowledge {
		mem.WorldKnowledge[k] = v
	}
	if stance.Text != "" {
		mem.SocialStance[partnerName] = stance.Text
	}
	_ = e.store.UpsertNPCMemory(ctx, mem)
}

// updateReputationBestEffort invokes Reputation(name) with a
// timeout-guarded call and persists into session.reputations; failures are
// swallowed, matching the "partial success permitted" contract.
func (e *Engine) updateReputationBestEffort(_ context.Context, sess *simmodel.Session, name string, p Participant) {
	sessionID := sess.SessionID
	worldDefinition := sess.GameSettings.World
	currentReputation := sess.Reputations[name]
	go func() {
		timeout := e.cfg.ReputationUpdateTimeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		var out social.Output
		err := resilience.WithTimeout(context.Background(), timeout, func(ctx context.Context) error {
			var callErr error
			summaryDialogue := ""
			if p.Memory != nil {
				summaryDialogue = p.Memory.MessagesSummary
			}
			out, callErr = e.reputation.Call(ctx, social.Inputs{
				ObserverName:      name,
				AllOpinions:       fmt.Sprintf("%v", safeOpinions(p)),
				SummaryDialogue:   summaryDialogue,
				WorldDefinition:   worldDefinition,
				CurrentReputation: currentReputation,
			})
			return callErr
		})
		if err != nil || out.Text == "" {
			return
		}
		_, _ = e.store.UpdateSessionFn(context.Background(), sessionID, func(s *simmodel.Session) error {
			if s.Reputations == nil {
				s.Reputations = make(map[string]string)
			}
			s.Reputations[name] = out.Text
			return nil
		})
	}()
}

func safeOpinions(p Participant) map[string]string {
	if p.Memory == nil {
		return map[string]string{}
	}
	return p.Memory.OpinionOnNPCs
}

func formatDialogueText(day int, phase simmodel.TimePeriod, location, a, b string, messages []*simmodel.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Day %d | %s | @ %s | Participants: %s and %s\n", day, phase, location, a, b)
	for _, m := range messages {
		fmt.Fprintf(&sb, "%s: %s\n", m.Sender, m.MessageText)
	}
	return sb.String()
}
