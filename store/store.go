// Package store defines the persistence contract (C1) for the simulation
// engine: sessions, days, dialogues, messages, NPC memories, and the
// monotone ID counters that back them. Concrete backends live in
// store/memstore (in-process) and store/pgstore (PostgreSQL).
package store

import (
	"context"

	"github.com/skumyol/npcworld/simmodel"
)

// SessionMutator mutates a Session in place; used by UpdateSessionFn so
// callers never have to hand-roll read-modify-write races around the
// store's write lock.
type SessionMutator func(*simmodel.Session) error

// DayMutator mutates a Day in place, used the same way as SessionMutator.
type DayMutator func(*simmodel.Day) error

// Store is the sole writer/reader of durable simulation state. All
// mutating operations are serialized by a single-writer discipline;
// readers may proceed concurrently. Implementations must never perform
// LLM I/O while holding the write lock.
type Store interface {
	// AllocateID atomically returns the next id for entity and increments
	// the counter. The first call for a never-seen entity aligns the
	// counter to max(existing ids)+1.
	AllocateID(ctx context.Context, entity string) (int64, error)

	CreateSession(ctx context.Context, id string, settings simmodel.GameSettings) (*simmodel.Session, error)
	GetSession(ctx context.Context, id string) (*simmodel.Session, error)
	UpdateSession(ctx context.Context, session *simmodel.Session) error
	UpdateSessionFn(ctx context.Context, id string, mutate SessionMutator) (*simmodel.Session, error)

	CreateDay(ctx context.Context, sessionID string, day int, period simmodel.TimePeriod, active, passive []string) (*simmodel.Day, error)
	GetDay(ctx context.Context, sessionID string, day int) (*simmodel.Day, error)
	UpdateDay(ctx context.Context, day *simmodel.Day) error
	UpdateDayFn(ctx context.Context, sessionID string, day int, mutate DayMutator) (*simmodel.Day, error)

	CreateDialogue(ctx context.Context, sessionID, initiator, receiver string, day int, period simmodel.TimePeriod, location string) (*simmodel.Dialogue, error)
	GetDialogue(ctx context.Context, dialogueID int64) (*simmodel.Dialogue, error)
	AppendMessage(ctx context.Context, dialogueID int64, sender, receiver, text string) (*simmodel.Message, error)
	EndDialogue(ctx context.Context, dialogueID int64, summary string) (*simmodel.Dialogue, error)
	GetMessages(ctx context.Context, dialogueID int64) ([]*simmodel.Message, error)

	UpsertNPCMemory(ctx context.Context, mem *simmodel.NPCMemory) error
	GetNPCMemory(ctx context.Context, npcName, sessionID string) (*simmodel.NPCMemory, error)

	DeleteSessionData(ctx context.Context, sessionID string) error

	Close() error
}
