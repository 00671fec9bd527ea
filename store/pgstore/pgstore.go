// Package pgstore is the PostgreSQL-backed implementation of store.Store,
// grounded on the same database/sql + lib/pq idiom core/multiagent's
// postgres-backed ledger uses: parameterized queries, JSON-marshaled opaque
// columns, and explicit transactions where a read-modify-write needs
// atomicity across statements.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	serrors "github.com/skumyol/npcworld/errors"
	"github.com/skumyol/npcworld/simmodel"
	"github.com/skumyol/npcworld/store"
)

// Config configures the connection to a PostgreSQL instance.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns sane defaults for a local development database.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		User:            "npcworld",
		Database:        "npcworld",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// Store is the PostgreSQL implementation of store.Store.
type Store struct {
	db *sql.DB
}

// New opens a connection pool and runs schema migrations.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "Open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, serrors.NewStorageError(serrors.StorageIO, "Ping", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS id_counters (
	entity TEXT PRIMARY KEY,
	value  BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id     TEXT PRIMARY KEY,
	created_at     TIMESTAMPTZ NOT NULL,
	last_updated   TIMESTAMPTZ NOT NULL,
	current_day    INT NOT NULL,
	current_period TEXT NOT NULL,
	game_settings  JSONB NOT NULL DEFAULT '{}',
	reputations    JSONB NOT NULL DEFAULT '{}',
	session_summary TEXT NOT NULL DEFAULT '',
	active_npcs    JSONB NOT NULL DEFAULT '[]',
	dialogue_ids   JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS days (
	session_id   TEXT NOT NULL,
	day          INT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	ended_at     TIMESTAMPTZ,
	time_period  TEXT NOT NULL,
	active_npcs  JSONB NOT NULL DEFAULT '[]',
	passive_npcs JSONB NOT NULL DEFAULT '[]',
	dialogue_ids JSONB NOT NULL DEFAULT '[]',
	day_summary  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (session_id, day)
);

CREATE TABLE IF NOT EXISTS dialogues (
	dialogue_id       BIGINT PRIMARY KEY,
	session_id        TEXT NOT NULL,
	initiator         TEXT NOT NULL,
	receiver          TEXT NOT NULL,
	day               INT NOT NULL,
	location          TEXT NOT NULL,
	time_period       TEXT NOT NULL,
	started_at        TIMESTAMPTZ NOT NULL,
	ended_at          TIMESTAMPTZ,
	message_ids       JSONB NOT NULL DEFAULT '[]',
	summary           TEXT NOT NULL DEFAULT '',
	total_text_length INT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_dialogues_session ON dialogues (session_id);

CREATE TABLE IF NOT EXISTS messages (
	message_id      BIGINT PRIMARY KEY,
	dialogue_id     BIGINT NOT NULL,
	sender          TEXT NOT NULL,
	receiver        TEXT NOT NULL,
	message_text    TEXT NOT NULL,
	ts              TIMESTAMPTZ NOT NULL,
	sender_opinion  TEXT NOT NULL DEFAULT '',
	receiver_opinion TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_dialogue ON messages (dialogue_id);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender);
CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages (receiver);

CREATE TABLE IF NOT EXISTS npc_memories (
	npc_name              TEXT NOT NULL,
	session_id            TEXT NOT NULL,
	character_properties  JSONB NOT NULL DEFAULT '{}',
	dialogue_ids          JSONB NOT NULL DEFAULT '[]',
	messages_summary      TEXT NOT NULL DEFAULT '',
	messages_summary_length INT NOT NULL DEFAULT 0,
	last_summarized       TIMESTAMPTZ,
	opinion_on_npcs       JSONB NOT NULL DEFAULT '{}',
	world_knowledge       JSONB NOT NULL DEFAULT '{}',
	social_stance         JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (npc_name, session_id)
);
CREATE INDEX IF NOT EXISTS idx_npc_memories_session ON npc_memories (session_id);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return serrors.NewStorageError(serrors.StorageIO, "migrate", err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)

func (s *Store) AllocateID(ctx context.Context, entity string) (int64, error) {
	// A never-seen counter starts at max(existing id)+1 so imported rows are
	// never handed out again.
	var start int64
	var err error
	switch entity {
	case simmodel.EntityDialogues:
		err = s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(dialogue_id) + 1, 0) FROM dialogues`).Scan(&start)
	case simmodel.EntityMessages:
		err = s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(message_id) + 1, 0) FROM messages`).Scan(&start)
	}
	if err != nil {
		return 0, serrors.NewStorageError(serrors.StorageIO, "AllocateID", err)
	}
	var next int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO id_counters (entity, value) VALUES ($1, $2::bigint + 1)
		ON CONFLICT (entity) DO UPDATE SET value = id_counters.value + 1
		RETURNING value - 1
	`, entity, start).Scan(&next)
	if err != nil {
		return 0, serrors.NewStorageError(serrors.StorageIO, "AllocateID", err)
	}
	return next, nil
}

func (s *Store) CreateSession(ctx context.Context, id string, settings simmodel.GameSettings) (*simmodel.Session, error) {
	if id == "" {
		next, err := s.AllocateID(ctx, simmodel.EntitySessions)
		if err != nil {
			return nil, err
		}
		id = fmt.Sprintf("%d", next)
	}

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "CreateSession", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, created_at, last_updated, current_day, current_period, game_settings, reputations, active_npcs, dialogue_ids)
		VALUES ($1, $2, $3, $4, $5, $6, '{}', '[]', '[]')
	`, id, now, now, 1, simmodel.PeriodMorning, settingsJSON)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, serrors.NewStorageError(serrors.StorageConflict, "CreateSession", err)
		}
		return nil, serrors.NewStorageError(serrors.StorageIO, "CreateSession", err)
	}

	return s.GetSession(ctx, id)
}

func (s *Store) GetSession(ctx context.Context, id string) (*simmodel.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, created_at, last_updated, current_day, current_period,
		       game_settings, reputations, session_summary, active_npcs, dialogue_ids
		FROM sessions WHERE session_id = $1
	`, id)

	session, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, serrors.NewStorageError(serrors.StorageNotFound, "GetSession", fmt.Errorf("session %s not found", id))
		}
		return nil, serrors.NewStorageError(serrors.StorageIO, "GetSession", err)
	}
	return session, nil
}

func (s *Store) UpdateSession(ctx context.Context, session *simmodel.Session) error {
	settingsJSON, err := json.Marshal(session.GameSettings)
	if err != nil {
		return serrors.NewStorageError(serrors.StorageIO, "UpdateSession", err)
	}
	reputationsJSON, _ := json.Marshal(session.Reputations)
	activeNPCsJSON, _ := json.Marshal(session.ActiveNPCs)
	dialogueIDsJSON, _ := json.Marshal(session.DialogueIDs)

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			last_updated = $2, current_day = $3, current_period = $4,
			game_settings = $5, reputations = $6, session_summary = $7,
			active_npcs = $8, dialogue_ids = $9
		WHERE session_id = $1
	`, session.SessionID, time.Now(), session.CurrentDay, session.CurrentPeriod,
		settingsJSON, reputationsJSON, session.SessionSummary, activeNPCsJSON, dialogueIDsJSON)
	if err != nil {
		return serrors.NewStorageError(serrors.StorageIO, "UpdateSession", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return serrors.NewStorageError(serrors.StorageNotFound, "UpdateSession", fmt.Errorf("session %s not found", session.SessionID))
	}
	return nil
}

func (s *Store) UpdateSessionFn(ctx context.Context, id string, mutate store.SessionMutator) (*simmodel.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "UpdateSessionFn", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT session_id, created_at, last_updated, current_day, current_period,
		       game_settings, reputations, session_summary, active_npcs, dialogue_ids
		FROM sessions WHERE session_id = $1 FOR UPDATE
	`, id)
	session, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, serrors.NewStorageError(serrors.StorageNotFound, "UpdateSessionFn", fmt.Errorf("session %s not found", id))
		}
		return nil, serrors.NewStorageError(serrors.StorageIO, "UpdateSessionFn", err)
	}

	if err := mutate(session); err != nil {
		return nil, err
	}

	settingsJSON, _ := json.Marshal(session.GameSettings)
	reputationsJSON, _ := json.Marshal(session.Reputations)
	activeNPCsJSON, _ := json.Marshal(session.ActiveNPCs)
	dialogueIDsJSON, _ := json.Marshal(session.DialogueIDs)

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET
			last_updated = $2, current_day = $3, current_period = $4,
			game_settings = $5, reputations = $6, session_summary = $7,
			active_npcs = $8, dialogue_ids = $9
		WHERE session_id = $1
	`, id, time.Now(), session.CurrentDay, session.CurrentPeriod,
		settingsJSON, reputationsJSON, session.SessionSummary, activeNPCsJSON, dialogueIDsJSON)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "UpdateSessionFn", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "UpdateSessionFn", err)
	}

	return s.GetSession(ctx, id)
}

func (s *Store) CreateDay(ctx context.Context, sessionID string, day int, period simmodel.TimePeriod, active, passive []string) (*simmodel.Day, error) {
	activeJSON, _ := json.Marshal(active)
	passiveJSON, _ := json.Marshal(passive)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO days (session_id, day, started_at, time_period, active_npcs, passive_npcs, dialogue_ids)
		VALUES ($1, $2, $3, $4, $5, $6, '[]')
		ON CONFLICT (session_id, day) DO UPDATE SET
			time_period = $4, active_npcs = $5, passive_npcs = $6
	`, sessionID, day, time.Now(), period, activeJSON, passiveJSON)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "CreateDay", err)
	}

	return s.GetDay(ctx, sessionID, day)
}

func (s *Store) GetDay(ctx context.Context, sessionID string, day int) (*simmodel.Day, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, day, started_at, ended_at, time_period, active_npcs, passive_npcs, dialogue_ids, day_summary
		FROM days WHERE session_id = $1 AND day = $2
	`, sessionID, day)

	d, err := scanDay(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, serrors.NewStorageError(serrors.StorageNotFound, "GetDay", fmt.Errorf("day %d of session %s not found", day, sessionID))
		}
		return nil, serrors.NewStorageError(serrors.StorageIO, "GetDay", err)
	}
	return d, nil
}

func (s *Store) UpdateDay(ctx context.Context, day *simmodel.Day) error {
	activeJSON, _ := json.Marshal(day.ActiveNPCs)
	passiveJSON, _ := json.Marshal(day.PassiveNPCs)
	dialogueIDsJSON, _ := json.Marshal(day.DialogueIDs)

	res, err := s.db.ExecContext(ctx, `
		UPDATE days SET ended_at = $3, time_period = $4, active_npcs = $5,
			passive_npcs = $6, dialogue_ids = $7, day_summary = $8
		WHERE session_id = $1 AND day = $2
	`, day.SessionID, day.Day, day.EndedAt, day.TimePeriod, activeJSON, passiveJSON, dialogueIDsJSON, day.DaySummary)
	if err != nil {
		return serrors.NewStorageError(serrors.StorageIO, "UpdateDay", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return serrors.NewStorageError(serrors.StorageNotFound, "UpdateDay", fmt.Errorf("day %d of session %s not found", day.Day, day.SessionID))
	}
	return nil
}

func (s *Store) UpdateDayFn(ctx context.Context, sessionID string, day int, mutate store.DayMutator) (*simmodel.Day, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "UpdateDayFn", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT session_id, day, started_at, ended_at, time_period, active_npcs, passive_npcs, dialogue_ids, day_summary
		FROM days WHERE session_id = $1 AND day = $2 FOR UPDATE
	`, sessionID, day)
	d, err := scanDay(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, serrors.NewStorageError(serrors.StorageNotFound, "UpdateDayFn", fmt.Errorf("day %d of session %s not found", day, sessionID))
		}
		return nil, serrors.NewStorageError(serrors.StorageIO, "UpdateDayFn", err)
	}

	if err := mutate(d); err != nil {
		return nil, err
	}

	activeJSON, _ := json.Marshal(d.ActiveNPCs)
	passiveJSON, _ := json.Marshal(d.PassiveNPCs)
	dialogueIDsJSON, _ := json.Marshal(d.DialogueIDs)

	_, err = tx.ExecContext(ctx, `
		UPDATE days SET ended_at = $3, time_period = $4, active_npcs = $5,
			passive_npcs = $6, dialogue_ids = $7, day_summary = $8
		WHERE session_id = $1 AND day = $2
	`, sessionID, day, d.EndedAt, d.TimePeriod, activeJSON, passiveJSON, dialogueIDsJSON, d.DaySummary)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "UpdateDayFn", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "UpdateDayFn", err)
	}

	return s.GetDay(ctx, sessionID, day)
}

func (s *Store) CreateDialogue(ctx context.Context, sessionID, initiator, receiver string, day int, period simmodel.TimePeriod, location string) (*simmodel.Dialogue, error) {
	id, err := s.AllocateID(ctx, simmodel.EntityDialogues)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "CreateDialogue", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dialogues (dialogue_id, session_id, initiator, receiver, day, location, time_period, started_at, message_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '[]')
	`, id, sessionID, initiator, receiver, day, location, period, now)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "CreateDialogue", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET dialogue_ids = dialogue_ids || to_jsonb($2::bigint), last_updated = $3
		WHERE session_id = $1
	`, sessionID, id, now)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "CreateDialogue", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE days SET dialogue_ids = dialogue_ids || to_jsonb($3::bigint)
		WHERE session_id = $1 AND day = $2
	`, sessionID, day, id)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "CreateDialogue", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "CreateDialogue", err)
	}

	return s.GetDialogue(ctx, id)
}

func (s *Store) GetDialogue(ctx context.Context, dialogueID int64) (*simmodel.Dialogue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT dialogue_id, session_id, initiator, receiver, day, location, time_period,
		       started_at, ended_at, message_ids, summary, total_text_length
		FROM dialogues WHERE dialogue_id = $1
	`, dialogueID)

	d, err := scanDialogue(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, serrors.NewStorageError(serrors.StorageNotFound, "GetDialogue", fmt.Errorf("dialogue %d not found", dialogueID))
		}
		return nil, serrors.NewStorageError(serrors.StorageIO, "GetDialogue", err)
	}
	return d, nil
}

func (s *Store) AppendMessage(ctx context.Context, dialogueID int64, sender, receiver, text string) (*simmodel.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "AppendMessage", err)
	}
	defer tx.Rollback()

	var endedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT ended_at FROM dialogues WHERE dialogue_id = $1 FOR UPDATE`, dialogueID).Scan(&endedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, serrors.NewStorageError(serrors.StorageNotFound, "AppendMessage", fmt.Errorf("dialogue %d not found", dialogueID))
		}
		return nil, serrors.NewStorageError(serrors.StorageIO, "AppendMessage", err)
	}
	if endedAt.Valid {
		return nil, serrors.NewStorageError(serrors.StorageConflict, "AppendMessage", fmt.Errorf("dialogue %d already ended", dialogueID))
	}

	id, err := s.AllocateID(ctx, simmodel.EntityMessages)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (message_id, dialogue_id, sender, receiver, message_text, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, dialogueID, sender, receiver, text, now)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "AppendMessage", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE dialogues SET message_ids = message_ids || to_jsonb($2::bigint),
			total_text_length = total_text_length + $3
		WHERE dialogue_id = $1
	`, dialogueID, id, len(text))
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "AppendMessage", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "AppendMessage", err)
	}

	return &simmodel.Message{
		MessageID:   id,
		DialogueID:  dialogueID,
		Sender:      sender,
		Receiver:    receiver,
		MessageText: text,
		Timestamp:   now,
	}, nil
}

func (s *Store) EndDialogue(ctx context.Context, dialogueID int64, summary string) (*simmodel.Dialogue, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "EndDialogue", err)
	}
	defer tx.Rollback()

	var endedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT ended_at FROM dialogues WHERE dialogue_id = $1 FOR UPDATE`, dialogueID).Scan(&endedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, serrors.NewStorageError(serrors.StorageNotFound, "EndDialogue", fmt.Errorf("dialogue %d not found", dialogueID))
		}
		return nil, serrors.NewStorageError(serrors.StorageIO, "EndDialogue", err)
	}
	if endedAt.Valid {
		return nil, serrors.NewDialogueStateError(fmt.Sprintf("%d", dialogueID), "already ended")
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE dialogues SET ended_at = $2, summary = $3 WHERE dialogue_id = $1
	`, dialogueID, time.Now(), summary)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "EndDialogue", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "EndDialogue", err)
	}

	return s.GetDialogue(ctx, dialogueID)
}

func (s *Store) GetMessages(ctx context.Context, dialogueID int64) ([]*simmodel.Message, error) {
	if _, err := s.GetDialogue(ctx, dialogueID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, dialogue_id, sender, receiver, message_text, ts, sender_opinion, receiver_opinion
		FROM messages WHERE dialogue_id = $1 ORDER BY message_id ASC
	`, dialogueID)
	if err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "GetMessages", err)
	}
	defer rows.Close()

	var out []*simmodel.Message
	for rows.Next() {
		m := &simmodel.Message{}
		if err := rows.Scan(&m.MessageID, &m.DialogueID, &m.Sender, &m.Receiver, &m.MessageText, &m.Timestamp, &m.SenderOpinion, &m.ReceiverOpinion); err != nil {
			return nil, serrors.NewStorageError(serrors.StorageIO, "GetMessages", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, serrors.NewStorageError(serrors.StorageIO, "GetMessages", err)
	}
	return out, nil
}

func (s *Store) UpsertNPCMemory(ctx context.Context, mem *simmodel.NPCMemory) error {
	propsJSON, _ := json.Marshal(mem.CharacterProperties)
	dialogueIDsJSON, _ := json.Marshal(mem.DialogueIDs)
	opinionJSON, _ := json.Marshal(mem.OpinionOnNPCs)
	knowledgeJSON, _ := json.Marshal(mem.WorldKnowledge)
	stanceJSON, _ := json.Marshal(mem.SocialStance)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO npc_memories (npc_name, session_id, character_properties, dialogue_ids,
			messages_summary, messages_summary_length, last_summarized, opinion_on_npcs, world_knowledge, social_stance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (npc_name, session_id) DO UPDATE SET
			character_properties = $3, dialogue_ids = $4, messages_summary = $5,
			messages_summary_length = $6, last_summarized = $7, opinion_on_npcs = $8,
			world_knowledge = $9, social_stance = $10
	`, mem.NPCName, mem.SessionID, propsJSON, dialogueIDsJSON,
		mem.MessagesSummary, mem.MessagesSummaryLength, mem.LastSummarized, opinionJSON, knowledgeJSON, stanceJSON)
	if err != nil {
		return serrors.NewStorageError(serrors.StorageIO, "UpsertNPCMemory", err)
	}
	return nil
}

func (s *Store) GetNPCMemory(ctx context.Context, npcName, sessionID string) (*simmodel.NPCMemory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT npc_name, session_id, character_properties, dialogue_ids, messages_summary,
		       messages_summary_length, last_summarized, opinion_on_npcs, world_knowledge, social_stance
		FROM npc_memories WHERE npc_name = $1 AND session_id = $2
	`, npcName, sessionID)

	mem, err := scanNPCMemory(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, serrors.NewStorageError(serrors.StorageNotFound, "GetNPCMemory", fmt.Errorf("npc memory %s/%s not found", npcName, sessionID))
		}
		return nil, serrors.NewStorageError(serrors.StorageIO, "GetNPCMemory", err)
	}
	return mem, nil
}

func (s *Store) DeleteSessionData(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return serrors.NewStorageError(serrors.StorageIO, "DeleteSessionData", err)
	}
	defer tx.Rollback()

	statements := []string{
		`DELETE FROM messages WHERE dialogue_id IN (SELECT dialogue_id FROM dialogues WHERE session_id = $1)`,
		`DELETE FROM dialogues WHERE session_id = $1`,
		`DELETE FROM days WHERE session_id = $1`,
		`DELETE FROM npc_memories WHERE session_id = $1`,
		`DELETE FROM sessions WHERE session_id = $1`,
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, sessionID); err != nil {
			return serrors.NewStorageError(serrors.StorageIO, "DeleteSessionData", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return serrors.NewStorageError(serrors.StorageIO, "DeleteSessionData", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*simmodel.Session, error) {
	s := &simmodel.Session{}
	var settingsJSON, reputationsJSON, activeNPCsJSON, dialogueIDsJSON []byte

	err := row.Scan(&s.SessionID, &s.CreatedAt, &s.LastUpdated, &s.CurrentDay, &s.CurrentPeriod,
		&settingsJSON, &reputationsJSON, &s.SessionSummary, &activeNPCsJSON, &dialogueIDsJSON)
	if err != nil {
		return nil, err
	}

	json.Unmarshal(settingsJSON, &s.GameSettings)
	s.Reputations = make(map[string]string)
	json.Unmarshal(reputationsJSON, &s.Reputations)
	json.Unmarshal(activeNPCsJSON, &s.ActiveNPCs)
	json.Unmarshal(dialogueIDsJSON, &s.DialogueIDs)
	return s, nil
}

func scanDay(row scanner) (*simmodel.Day, error) {
	d := &simmodel.Day{}
	var endedAt sql.NullTime
	var activeJSON, passiveJSON, dialogueIDsJSON []byte

	err := row.Scan(&d.SessionID, &d.Day, &d.StartedAt, &endedAt, &d.TimePeriod,
		&activeJSON, &passiveJSON, &dialogueIDsJSON, &d.DaySummary)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		d.EndedAt = &endedAt.Time
	}
	json.Unmarshal(activeJSON, &d.ActiveNPCs)
	json.Unmarshal(passiveJSON, &d.PassiveNPCs)
	json.Unmarshal(dialogueIDsJSON, &d.DialogueIDs)
	return d, nil
}

func scanDialogue(row scanner) (*simmodel.Dialogue, error) {
	d := &simmodel.Dialogue{}
	var endedAt sql.NullTime
	var messageIDsJSON []byte

	err := row.Scan(&d.DialogueID, &d.SessionID, &d.Initiator, &d.Receiver, &d.Day, &d.Location,
		&d.TimePeriod, &d.StartedAt, &endedAt, &messageIDsJSON, &d.Summary, &d.TotalTextLength)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		d.EndedAt = &endedAt.Time
	}
	json.Unmarshal(messageIDsJSON, &d.MessageIDs)
	return d, nil
}

func scanNPCMemory(row scanner) (*simmodel.NPCMemory, error) {
	m := &simmodel.NPCMemory{}
	var lastSummarized sql.NullTime
	var propsJSON, dialogueIDsJSON, opinionJSON, knowledgeJSON, stanceJSON []byte

	err := row.Scan(&m.NPCName, &m.SessionID, &propsJSON, &dialogueIDsJSON, &m.MessagesSummary,
		&m.MessagesSummaryLength, &lastSummarized, &opinionJSON, &knowledgeJSON, &stanceJSON)
	if err != nil {
		return nil, err
	}

	if lastSummarized.Valid {
		m.LastSummarized = &lastSummarized.Time
	}
	json.Unmarshal(propsJSON, &m.CharacterProperties)
	json.Unmarshal(dialogueIDsJSON, &m.DialogueIDs)
	m.OpinionOnNPCs = make(map[string]string)
	json.Unmarshal(opinionJSON, &m.OpinionOnNPCs)
	m.WorldKnowledge = make(map[string]any)
	json.Unmarshal(knowledgeJSON, &m.WorldKnowledge)
	m.SocialStance = make(map[string]string)
	json.Unmarshal(stanceJSON, &m.SocialStance)
	return m, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "unique constraint")
}
