// Package simloop implements SimulationLoop (C7): the top-level
// day/phase-stepping driver. Grounded on core/multiagent/coordinator.go's
// top-level run loop (context-cancellable, phase/day stepping, graceful
// stop) and core/multiagent/worker_pool.go's Start/Stop lifecycle for
// cancel-signal handling between days, phases, and pairs.
package simloop

import (
	"context"
	"sync"

	"github.com/skumyol/npcworld/dialogue"
	"github.com/skumyol/npcworld/events"
	"github.com/skumyol/npcworld/scheduler"
	"github.com/skumyol/npcworld/simmodel"
	"github.com/skumyol/npcworld/store"
)

// LocationFor implements the location policy: home for morning/evening,
// work otherwise.
func LocationFor(c simmodel.CharacterProperties, period simmodel.TimePeriod) string {
	if simmodel.IsHomePeriod(period) {
		return c.LocationHome
	}
	return c.LocationWork
}

// Loop drives a session through num_days of Lifecycle/Introduction/Schedule
// and per-phase dialogue execution.
type Loop struct {
	store   store.Store
	sched   *scheduler.Scheduler
	engine  *dialogue.Engine
	periods []simmodel.TimePeriod

	// partnerContext holds ephemeral per-(npc, partner) conversation
	// context cleared at end of day, grounded on dialogue_handler.py's
	// per-partner context map (a supplemented feature, see DESIGN.md).
	contextMu      sync.Mutex
	partnerContext map[string]map[string]string

	// history is the Schedule pass's day -> phase -> pairs record. Each
	// phase's pairs are consulted to build the "already spoken to earlier
	// today" set for every later phase the same day.
	history map[int]map[simmodel.TimePeriod][]scheduler.Pair

	// events is optional (a nil *events.Publisher is itself a no-op), so
	// RunDays never has to branch on whether publishing is configured.
	events *events.Publisher
}

// WithEvents attaches an analytics publisher; subsequent dialogues and
// day transitions emit DialogueEnded/DaySummaryUpdated events to it.
func (l *Loop) WithEvents(pub *events.Publisher) *Loop {
	l.events = pub
	return l
}

// New constructs a Loop. periods defaults to simmodel.DefaultPeriods() if
// nil, matching "a day may be configured with any ordered non-empty subset".
func New(st store.Store, sched *scheduler.Scheduler, engine *dialogue.Engine, periods []simmodel.TimePeriod) *Loop {
	if len(periods) == 0 {
		periods = simmodel.DefaultPeriods()
	}
	return &Loop{
		store:          st,
		sched:          sched,
		engine:         engine,
		periods:        periods,
		partnerContext: make(map[string]map[string]string),
		history:        make(map[int]map[simmodel.TimePeriod][]scheduler.Pair),
	}
}

// RunDays ensures sessionID exists (creating it with settings if not) and
// runs numDays days of simulation, checking cancel between phases and
// between pairs.
func (l *Loop) RunDays(ctx context.Context, sessionID string, settings simmodel.GameSettings, numDays int) error {
	sess, err := l.store.GetSession(ctx, sessionID)
	if err != nil {
		sess, err = l.store.CreateSession(ctx, sessionID, settings)
		if err != nil {
			return err
		}
	}

	startDay := sess.CurrentDay
	var prevActive, prevPassive []string

	for d := startDay; d < startDay+numDays; d++ {
		if ctx.Err() != nil {
			return nil
		}

		roster := rosterNames(sess.GameSettings.CharacterList)
		lifecycle := l.sched.Lifecycle(ctx, sess.SessionSummary, roster, prevActive, prevPassive)

		if introduced, _ := l.sched.Introduce(ctx, sessionID, sess.SessionSummary, lifecycle.Active, len(roster)); introduced != nil {
			sess, _ = l.store.GetSession(ctx, sessionID)
			lifecycle.Active = append(lifecycle.Active, introduced.Name)
		}

		dayHistory := make(map[simmodel.TimePeriod][]scheduler.Pair, len(l.periods))
		for _, phase := range l.periods {
			if ctx.Err() != nil {
				return nil
			}

			charsByName := charactersByName(sess.GameSettings.CharacterList)

			if _, err := l.store.CreateDay(ctx, sessionID, d, phase, lifecycle.Active, lifecycle.Passive); err != nil {
				return err
			}
			sess, err = l.store.UpdateSessionFn(ctx, sessionID, func(s *simmodel.Session) error {
				s.CurrentPeriod = phase
				return nil
			})
			if err != nil {
				return err
			}

			summaries := l.memorySummaries(ctx, sessionID, lifecycle.Active)
			opinions := l.opinionMaps(ctx, sessionID, lifecycle.Active)
			alreadySpoken := alreadySpokenToday(dayHistory)
			pairs := l.sched.Schedule(ctx, phase, lifecycle.Active, summaries, opinions, alreadySpoken)
			dayHistory[phase] = pairs

			for _, pair := range pairs {
				if ctx.Err() != nil {
					return nil
				}
				l.runPair(ctx, sess, d, phase, charsByName, pair)
			}
		}
		l.history[d] = dayHistory

		l.clearEphemeralContexts(lifecycle.Active)
		sess, err = l.store.UpdateSessionFn(ctx, sessionID, func(s *simmodel.Session) error {
			s.CurrentDay = d + 1
			return nil
		})
		if err != nil {
			return err
		}
		_ = l.events.Publish(ctx, events.DaySummaryUpdated, sessionID, d, events.DaySummaryUpdatedPayload{Summary: sess.SessionSummary})

		prevActive, prevPassive = lifecycle.Active, lifecycle.Passive
	}
	return nil
}

func (l *Loop) runPair(ctx context.Context, sess *simmodel.Session, day int, phase simmodel.TimePeriod, charsByName map[string]simmodel.CharacterProperties, pair scheduler.Pair) {
	speakerProps, ok1 := charsByName[pair.Speaker]
	recipientProps, ok2 := charsByName[pair.Recipient]
	if !ok1 || !ok2 {
		return
	}

	speakerMem, _ := l.store.GetNPCMemory(ctx, pair.Speaker, sess.SessionID)
	recipientMem, _ := l.store.GetNPCMemory(ctx, pair.Recipient, sess.SessionID)

	location := LocationFor(speakerProps, phase)
	initiator := dialogue.Participant{Properties: speakerProps, Memory: speakerMem, KnownToPartner: l.hasSpokenBefore(pair.Speaker, pair.Recipient)}
	receiver := dialogue.Participant{Properties: recipientProps, Memory: recipientMem, KnownToPartner: l.hasSpokenBefore(pair.Recipient, pair.Speaker)}

	_ = l.events.Publish(ctx, events.DialogueStarted, sess.SessionID, day, events.DialogueStartedPayload{
		Initiator: pair.Speaker, Receiver: pair.Recipient, Phase: phase, Location: location,
	})

	dlg, err := l.engine.Run(ctx, sess.SessionID, day, phase, location, initiator, receiver)
	if err != nil {
		return
	}
	l.recordContext(pair.Speaker, pair.Recipient)
	l.recordContext(pair.Recipient, pair.Speaker)

	_ = l.events.Publish(ctx, events.DialogueEnded, sess.SessionID, day, events.DialogueEndedPayload{
		DialogueID:   dlg.DialogueID,
		MessageCount: len(dlg.MessageIDs),
		Summary:      dlg.Summary,
	})
}

func (l *Loop) hasSpokenBefore(npc, partner string) bool {
	l.contextMu.Lock()
	defer l.contextMu.Unlock()
	return l.partnerContext[npc] != nil && l.partnerContext[npc][partner] != ""
}

func (l *Loop) recordContext(npc, partner string) {
	l.contextMu.Lock()
	defer l.contextMu.Unlock()
	if l.partnerContext[npc] == nil {
		l.partnerContext[npc] = make(map[string]string)
	}
	l.partnerContext[npc][partner] = "met"
}

func (l *Loop) clearEphemeralContexts(active []string) {
	l.contextMu.Lock()
	defer l.contextMu.Unlock()
	for _, name := range active {
		delete(l.partnerContext, name)
	}
}

func rosterNames(chars []simmodel.CharacterProperties) []string {
	out := make([]string, 0, len(chars))
	for _, c := range chars {
		out = append(out, c.Name)
	}
	return out
}

func charactersByName(chars []simmodel.CharacterProperties) map[string]simmodel.CharacterProperties {
	m := make(map[string]simmodel.CharacterProperties, len(chars))
	for _, c := range chars {
		m[c.Name] = c
	}
	return m
}

// memorySummaries fetches each active NPC's current compressed memory
// buffer, feeding Schedule's per-speaker LLM prompt the same context the
// NPC itself would reason from.
func (l *Loop) memorySummaries(ctx context.Context, sessionID string, active []string) map[string]string {
	out := make(map[string]string, len(active))
	for _, name := range active {
		if mem, err := l.store.GetNPCMemory(ctx, name, sessionID); err == nil {
			out[name] = mem.MessagesSummary
		}
	}
	return out
}

// opinionMaps fetches each active NPC's opinions of other NPCs, keyed by
// the opinion-holder's name.
func (l *Loop) opinionMaps(ctx context.Context, sessionID string, active []string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(active))
	for _, name := range active {
		if mem, err := l.store.GetNPCMemory(ctx, name, sessionID); err == nil {
			out[name] = mem.OpinionOnNPCs
		}
	}
	return out
}

// alreadySpokenToday builds the undirected "already paired" set from every
// phase scheduled so far today, so a later phase's Schedule call never
// re-offers a partner the active NPC was already matched with earlier
// today.
func alreadySpokenToday(dayHistory map[simmodel.TimePeriod][]scheduler.Pair) map[string]map[string]bool {
	out := make(map[string]map[string]bool)
	mark := func(a, b string) {
		if out[a] == nil {
			out[a] = make(map[string]bool)
		}
		out[a][b] = true
	}
	for _, pairs := range dayHistory {
		for _, p := range pairs {
			mark(p.Speaker, p.Recipient)
			mark(p.Recipient, p.Speaker)
		}
	}
	return out
}
