// Package memstore is the in-process, map-based implementation of
// store.Store. It is the default backend: used by tests and single-process
// runs, guarded by a single sync.RWMutex the way storage.InMemoryStore
// guards its agent/metrics/activity maps.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	serrors "github.com/skumyol/npcworld/errors"
	"github.com/skumyol/npcworld/simmodel"
	"github.com/skumyol/npcworld/store"
)

// MemStore is a thread-safe in-memory Store implementation.
type MemStore struct {
	mu sync.RWMutex

	counters  map[string]int64
	sessions  map[string]*simmodel.Session
	days      map[dayKey]*simmodel.Day
	dialogues map[int64]*simmodel.Dialogue
	messages  map[int64]*simmodel.Message
	npcMems   map[npcKey]*simmodel.NPCMemory
}

type dayKey struct {
	sessionID string
	day       int
}

type npcKey struct {
	npc       string
	sessionID string
}

// New creates an empty in-memory store.
func New() *MemStore {
	return &MemStore{
		counters:  make(map[string]int64),
		sessions:  make(map[string]*simmodel.Session),
		days:      make(map[dayKey]*simmodel.Day),
		dialogues: make(map[int64]*simmodel.Dialogue),
		messages:  make(map[int64]*simmodel.Message),
		npcMems:   make(map[npcKey]*simmodel.NPCMemory),
	}
}

var _ store.Store = (*MemStore)(nil)

// AllocateID returns the next id for entity and increments the counter.
func (s *MemStore) AllocateID(ctx context.Context, entity string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.counters[entity]
	s.counters[entity] = next + 1
	return next, nil
}

// alignCounter ensures entity's counter is at least existing+1, for rows
// imported with pre-assigned ids. MemStore has no import path, so nothing
// calls it: every id it holds was handed out by its own counters.
func (s *MemStore) alignCounter(entity string, existing int64) {
	if s.counters[entity] <= existing {
		s.counters[entity] = existing + 1
	}
}

func (s *MemStore) CreateSession(ctx context.Context, id string, settings simmodel.GameSettings) (*simmodel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		// s.mu is already held, so the counter is bumped inline rather than
		// through AllocateID, which would lock it again.
		next := s.counters[simmodel.EntitySessions]
		s.counters[simmodel.EntitySessions] = next + 1
		id = fmt.Sprintf("%d", next)
	}

	if _, exists := s.sessions[id]; exists {
		return nil, serrors.NewStorageError(serrors.StorageConflict, "CreateSession", fmt.Errorf("session %s already exists", id))
	}

	now := time.Now()
	session := &simmodel.Session{
		SessionID:      id,
		CreatedAt:      now,
		LastUpdated:    now,
		CurrentDay:     1,
		CurrentPeriod:  simmodel.PeriodMorning,
		GameSettings:   settings,
		Reputations:    make(map[string]string),
		ActiveNPCs:     nil,
		DialogueIDs:    nil,
	}
	s.sessions[id] = session
	return cloneSession(session), nil
}

func (s *MemStore) GetSession(ctx context.Context, id string) (*simmodel.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, serrors.NewStorageError(serrors.StorageNotFound, "GetSession", fmt.Errorf("session %s not found", id))
	}
	return cloneSession(session), nil
}

func (s *MemStore) UpdateSession(ctx context.Context, session *simmodel.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.SessionID]; !ok {
		return serrors.NewStorageError(serrors.StorageNotFound, "UpdateSession", fmt.Errorf("session %s not found", session.SessionID))
	}
	session.LastUpdated = time.Now()
	s.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (s *MemStore) UpdateSessionFn(ctx context.Context, id string, mutate store.SessionMutator) (*simmodel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, serrors.NewStorageError(serrors.StorageNotFound, "UpdateSessionFn", fmt.Errorf("session %s not found", id))
	}
	working := cloneSession(session)
	if err := mutate(working); err != nil {
		return nil, err
	}
	working.LastUpdated = time.Now()
	s.sessions[id] = working
	return cloneSession(working), nil
}

func (s *MemStore) CreateDay(ctx context.Context, sessionID string, day int, period simmodel.TimePeriod, active, passive []string) (*simmodel.Day, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey{sessionID, day}
	if existing, ok := s.days[key]; ok {
		existing.TimePeriod = period
		existing.ActiveNPCs = append([]string{}, active...)
		existing.PassiveNPCs = append([]string{}, passive...)
		return cloneDay(existing), nil
	}

	d := &simmodel.Day{
		SessionID:   sessionID,
		Day:         day,
		StartedAt:   time.Now(),
		TimePeriod:  period,
		ActiveNPCs:  append([]string{}, active...),
		PassiveNPCs: append([]string{}, passive...),
	}
	s.days[key] = d
	return cloneDay(d), nil
}

func (s *MemStore) GetDay(ctx context.Context, sessionID string, day int) (*simmodel.Day, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.days[dayKey{sessionID, day}]
	if !ok {
		return nil, serrors.NewStorageError(serrors.StorageNotFound, "GetDay", fmt.Errorf("day %d of session %s not found", day, sessionID))
	}
	return cloneDay(d), nil
}

func (s *MemStore) UpdateDay(ctx context.Context, day *simmodel.Day) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey{day.SessionID, day.Day}
	if _, ok := s.days[key]; !ok {
		return serrors.NewStorageError(serrors.StorageNotFound, "UpdateDay", fmt.Errorf("day %d of session %s not found", day.Day, day.SessionID))
	}
	s.days[key] = cloneDay(day)
	return nil
}

func (s *MemStore) UpdateDayFn(ctx context.Context, sessionID string, day int, mutate store.DayMutator) (*simmodel.Day, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey{sessionID, day}
	existing, ok := s.days[key]
	if !ok {
		return nil, serrors.NewStorageError(serrors.StorageNotFound, "UpdateDayFn", fmt.Errorf("day %d of session %s not found", day, sessionID))
	}
	working := cloneDay(existing)
	if err := mutate(working); err != nil {
		return nil, err
	}
	s.days[key] = working
	return cloneDay(working), nil
}

func (s *MemStore) CreateDialogue(ctx context.Context, sessionID, initiator, receiver string, day int, period simmodel.TimePeriod, location string) (*simmodel.Dialogue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.counters[simmodel.EntityDialogues]
	s.counters[simmodel.EntityDialogues] = next + 1

	dlg := &simmodel.Dialogue{
		DialogueID: next,
		SessionID:  sessionID,
		Initiator:  initiator,
		Receiver:   receiver,
		Day:        day,
		Location:   location,
		TimePeriod: period,
		StartedAt:  time.Now(),
	}
	s.dialogues[next] = dlg

	if session, ok := s.sessions[sessionID]; ok {
		session.DialogueIDs = append(session.DialogueIDs, next)
		session.LastUpdated = time.Now()
	}
	if d, ok := s.days[dayKey{sessionID, day}]; ok {
		d.DialogueIDs = append(d.DialogueIDs, next)
	}

	return cloneDialogue(dlg), nil
}

func (s *MemStore) GetDialogue(ctx context.Context, dialogueID int64) (*simmodel.Dialogue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dlg, ok := s.dialogues[dialogueID]
	if !ok {
		return nil, serrors.NewStorageError(serrors.StorageNotFound, "GetDialogue", fmt.Errorf("dialogue %d not found", dialogueID))
	}
	return cloneDialogue(dlg), nil
}

func (s *MemStore) AppendMessage(ctx context.Context, dialogueID int64, sender, receiver, text string) (*simmodel.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dlg, ok := s.dialogues[dialogueID]
	if !ok {
		return nil, serrors.NewStorageError(serrors.StorageNotFound, "AppendMessage", fmt.Errorf("dialogue %d not found", dialogueID))
	}
	if dlg.EndedAt != nil {
		return nil, serrors.NewStorageError(serrors.StorageConflict, "AppendMessage", fmt.Errorf("dialogue %d already ended", dialogueID))
	}

	next := s.counters[simmodel.EntityMessages]
	s.counters[simmodel.EntityMessages] = next + 1

	msg := &simmodel.Message{
		MessageID:   next,
		DialogueID:  dialogueID,
		Sender:      sender,
		Receiver:    receiver,
		MessageText: text,
		Timestamp:   time.Now(),
	}
	s.messages[next] = msg
	dlg.MessageIDs = append(dlg.MessageIDs, next)
	dlg.TotalTextLength += len(text)

	return cloneMessage(msg), nil
}

func (s *MemStore) EndDialogue(ctx context.Context, dialogueID int64, summary string) (*simmodel.Dialogue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dlg, ok := s.dialogues[dialogueID]
	if !ok {
		return nil, serrors.NewStorageError(serrors.StorageNotFound, "EndDialogue", fmt.Errorf("dialogue %d not found", dialogueID))
	}
	if dlg.EndedAt != nil {
		return nil, serrors.NewDialogueStateError(fmt.Sprintf("%d", dialogueID), "already ended")
	}

	now := time.Now()
	dlg.EndedAt = &now
	dlg.Summary = summary
	return cloneDialogue(dlg), nil
}

func (s *MemStore) GetMessages(ctx context.Context, dialogueID int64) ([]*simmodel.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dlg, ok := s.dialogues[dialogueID]
	if !ok {
		return nil, serrors.NewStorageError(serrors.StorageNotFound, "GetMessages", fmt.Errorf("dialogue %d not found", dialogueID))
	}
	out := make([]*simmodel.Message, 0, len(dlg.MessageIDs))
	for _, id := range dlg.MessageIDs {
		if m, ok := s.messages[id]; ok {
			out = append(out, cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })
	return out, nil
}

func (s *MemStore) UpsertNPCMemory(ctx context.Context, mem *simmodel.NPCMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := npcKey{mem.NPCName, mem.SessionID}
	s.npcMems[key] = cloneNPCMemory(mem)
	return nil
}

func (s *MemStore) GetNPCMemory(ctx context.Context, npcName, sessionID string) (*simmodel.NPCMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mem, ok := s.npcMems[npcKey{npcName, sessionID}]
	if !ok {
		return nil, serrors.NewStorageError(serrors.StorageNotFound, "GetNPCMemory", fmt.Errorf("npc memory %s/%s not found", npcName, sessionID))
	}
	return cloneNPCMemory(mem), nil
}

func (s *MemStore) DeleteSessionData(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, dlg := range s.dialogues {
		if dlg.SessionID != sessionID {
			continue
		}
		for _, mid := range dlg.MessageIDs {
			delete(s.messages, mid)
		}
		delete(s.dialogues, id)
	}

	for key := range s.days {
		if key.sessionID == sessionID {
			delete(s.days, key)
		}
	}

	for key := range s.npcMems {
		if key.sessionID == sessionID {
			delete(s.npcMems, key)
		}
	}

	delete(s.sessions, sessionID)
	return nil
}

func (s *MemStore) Close() error { return nil }

func cloneSession(s *simmodel.Session) *simmodel.Session {
	cp := *s
	cp.Reputations = cloneStringMap(s.Reputations)
	cp.ActiveNPCs = append([]string{}, s.ActiveNPCs...)
	cp.DialogueIDs = append([]int64{}, s.DialogueIDs...)
	cp.GameSettings.CharacterList = append([]simmodel.CharacterProperties{}, s.GameSettings.CharacterList...)
	return &cp
}

func cloneDay(d *simmodel.Day) *simmodel.Day {
	cp := *d
	cp.ActiveNPCs = append([]string{}, d.ActiveNPCs...)
	cp.PassiveNPCs = append([]string{}, d.PassiveNPCs...)
	cp.DialogueIDs = append([]int64{}, d.DialogueIDs...)
	return &cp
}

func cloneDialogue(d *simmodel.Dialogue) *simmodel.Dialogue {
	cp := *d
	cp.MessageIDs = append([]int64{}, d.MessageIDs...)
	return &cp
}

func cloneMessage(m *simmodel.Message) *simmodel.Message {
	cp := *m
	return &cp
}

func cloneNPCMemory(m *simmodel.NPCMemory) *simmodel.NPCMemory {
	cp := *m
	cp.DialogueIDs = append([]int64{}, m.DialogueIDs...)
	cp.OpinionOnNPCs = cloneStringMap(m.OpinionOnNPCs)
	cp.SocialStance = cloneStringMap(m.SocialStance)
	cp.WorldKnowledge = make(map[string]any, len(m.WorldKnowledge))
	for k, v := range m.WorldKnowledge {
		cp.WorldKnowledge[k] = v
	}
	return &cp
}

func cloneStringMap(m map[string]string) map[string]string {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
