// Package simmodel defines the durable data model for the simulation
// engine: sessions, days, dialogues, messages, and per-NPC memory rows.
// Types here are plain structs; the Store owns all mutation discipline.
package simmodel

import "time"

// TimePeriod is one ordered slot of a simulated day.
type TimePeriod string

const (
	PeriodMorning   TimePeriod = "morning"
	PeriodNoon      TimePeriod = "noon"
	PeriodAfternoon TimePeriod = "afternoon"
	PeriodEvening   TimePeriod = "evening"
	PeriodNight     TimePeriod = "night"
)

// DefaultPeriods is the fixed ordered list of phases in a day.
func DefaultPeriods() []TimePeriod {
	return []TimePeriod{PeriodMorning, PeriodNoon, PeriodAfternoon, PeriodEvening, PeriodNight}
}

// IsHomePeriod reports whether an NPC's current location should be "home"
// for the given period (morning/evening), as opposed to "work".
func IsHomePeriod(p TimePeriod) bool {
	return p == PeriodMorning || p == PeriodEvening
}

// Entity names used for IdCounter allocation.
const (
	EntitySessions  = "sessions"
	EntityDialogues = "dialogues"
	EntityMessages  = "messages"
)

// Session is the top-level durable record for one simulated world run.
type Session struct {
	SessionID     string
	CreatedAt     time.Time
	LastUpdated   time.Time
	CurrentDay    int
	CurrentPeriod TimePeriod
	GameSettings  GameSettings
	Reputations   map[string]string
	SessionSummary string
	ActiveNPCs    []string
	DialogueIDs   []int64
}

// GameSettings is the opaque configuration blob carried on a Session:
// the character roster, world definition, and optional experiment metadata.
type GameSettings struct {
	CharacterList []CharacterProperties
	World         string
	Experiment    map[string]any
}

// CharacterProperties is the immutable base description of an NPC.
type CharacterProperties struct {
	Name          string
	Type          string // "npc" or "player"
	Role          string
	Story         string
	Personality   string
	LocationHome  string
	LocationWork  string
	Titles        []string
	Abilities     []string
	SpeechMotifs  []string
	LifeCycle     string // "active" or "passive"
}

// Day is the per-(session, day) record of who was active/passive and what
// happened.
type Day struct {
	SessionID   string
	Day         int
	StartedAt   time.Time
	EndedAt     *time.Time
	TimePeriod  TimePeriod
	ActiveNPCs  []string
	PassiveNPCs []string
	DialogueIDs []int64
	DaySummary  string
}

// Dialogue is one bounded back-and-forth between two NPCs in one phase.
type Dialogue struct {
	DialogueID      int64
	SessionID       string
	Initiator       string
	Receiver        string
	Day             int
	Location        string
	TimePeriod      TimePeriod
	StartedAt       time.Time
	EndedAt         *time.Time
	MessageIDs      []int64
	Summary         string
	TotalTextLength int
}

// Message is one immutable turn within a Dialogue.
type Message struct {
	MessageID       int64
	DialogueID      int64
	Sender          string
	Receiver        string
	MessageText     string
	Timestamp       time.Time
	SenderOpinion   string
	ReceiverOpinion string
}

// NPCMemory is the per-(npc, session) rolling memory row.
type NPCMemory struct {
	NPCName               string
	SessionID             string
	CharacterProperties    CharacterProperties
	DialogueIDs            []int64
	MessagesSummary        string
	MessagesSummaryLength  int
	LastSummarized         *time.Time
	OpinionOnNPCs          map[string]string
	WorldKnowledge         map[string]any
	SocialStance           map[string]string
}

// NewNPCMemory creates an empty memory row for an NPC newly referenced in a
// session, seeding its immutable character properties.
func NewNPCMemory(npcName, sessionID string, props CharacterProperties) *NPCMemory {
	return &NPCMemory{
		NPCName:             npcName,
		SessionID:           sessionID,
		CharacterProperties: props,
		OpinionOnNPCs:       make(map[string]string),
		WorldKnowledge:      make(map[string]any),
		SocialStance:        make(map[string]string),
	}
}
