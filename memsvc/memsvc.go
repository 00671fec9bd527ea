// Package memsvc is the background summarization subsystem (C2): it keeps
// three always-growing, size-bounded text buffers — per-NPC, per-day, and
// per-session — and rewrites any buffer that outgrows its threshold by
// calling an LLM off the scheduling path. Adapted from
// memory.ConversationSummaryMemory's summarize-on-save idiom, but the write
// lock here is only ever held to commit an already-computed summary: the
// LLM call itself runs outside any lock, the way core/multiagent's worker
// pool runs job bodies outside its bookkeeping mutex.
package memsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/skumyol/npcworld/llmclient"
	"github.com/skumyol/npcworld/observability"
	"github.com/skumyol/npcworld/simmodel"
	"github.com/skumyol/npcworld/store"
)

// Config bounds the compression behavior.
type Config struct {
	// ThresholdChars is the buffer length, in characters, past which a
	// compression job is enqueued.
	ThresholdChars int
	// TargetChars is the system prompt's requested upper bound for the
	// rewritten summary.
	TargetChars int
	// Timeout bounds each compression LLM call.
	Timeout time.Duration
	// Provider/Model select the summarizing LLM.
	Provider string
	Model    string
	// MaxConcurrentJobs bounds how many compression jobs run at once.
	MaxConcurrentJobs int
	// DistributedLockBackend selects the in-flight job lock: "memory" (the
	// default, one process) or "redis" (several simulate processes sharing
	// one pgstore database).
	DistributedLockBackend string
	// RedisAddr is the Redis address used when DistributedLockBackend is
	// "redis".
	RedisAddr string
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() Config {
	return Config{
		ThresholdChars:    4000,
		TargetChars:       1200,
		Timeout:           30 * time.Second,
		MaxConcurrentJobs: 4,
	}
}

const compressionSystemPrompt = "Merge duplicate or redundant content, keep specific names/facts/events, and rewrite the following as a single coherent summary of no more than %d characters."

// Service is the compression subsystem. One Service instance is shared by
// all dialogues in a simulation run.
type Service struct {
	store store.Store
	llm   llmclient.Client
	cfg   Config
	obs   *observability.Observability

	lock locker
	sem  chan struct{}
}

// New creates a memsvc.Service backed by st for persistence and llm for
// summarization calls. The in-flight job lock is chosen from cfg's
// DistributedLockBackend field: "redis" with a non-empty RedisAddr shares it
// across processes, anything else keeps it local to this one.
func New(st store.Store, llm llmclient.Client, cfg Config, obs *observability.Observability) *Service {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 4
	}
	var lk locker
	if cfg.DistributedLockBackend == "redis" && cfg.RedisAddr != "" {
		lk = newRedisLocker(cfg.RedisAddr, cfg.Timeout*4)
	} else {
		lk = newMemLocker()
	}
	return &Service{
		store: st,
		llm:   llm,
		cfg:   cfg,
		obs:   obs,
		lock:  lk,
		sem:   make(chan struct{}, cfg.MaxConcurrentJobs),
	}
}

func npcKey(npcName, sessionID string) string    { return "npc:" + sessionID + ":" + npcName }
func dayKey(sessionID string, day int) string     { return fmt.Sprintf("day:%s:%d", sessionID, day) }
func sessionKey(sessionID string) string          { return "session:" + sessionID }

func stampedLine(day int, period simmodel.TimePeriod, sender, receiver, text string) string {
	return fmt.Sprintf("[Day %d %s] %s -> %s: %s", day, period, sender, receiver, text)
}

// RecordMessage appends one stamped line to the sender's NPC buffer, the
// receiver's NPC buffer, the day buffer, and the session buffer, then
// enqueues a compression job for any buffer that crossed the threshold and
// has no job already in flight.
func (s *Service) RecordMessage(ctx context.Context, sessionID string, day int, period simmodel.TimePeriod, sender, receiver, text string) error {
	line := stampedLine(day, period, sender, receiver, text)

	if err := s.appendNPCBuffer(ctx, sessionID, sender, line); err != nil {
		return err
	}
	if receiver != sender {
		if err := s.appendNPCBuffer(ctx, sessionID, receiver, line); err != nil {
			return err
		}
	}
	if err := s.appendDayBuffer(ctx, sessionID, day, line); err != nil {
		return err
	}
	return s.appendSessionBuffer(ctx, sessionID, line)
}

func (s *Service) appendNPCBuffer(ctx context.Context, sessionID, npcName, line string) error {
	mem, err := s.store.GetNPCMemory(ctx, npcName, sessionID)
	if err != nil {
		mem = simmodel.NewNPCMemory(npcName, sessionID, simmodel.CharacterProperties{Name: npcName})
	}
	mem.MessagesSummary = appendLine(mem.MessagesSummary, line)
	mem.MessagesSummaryLength = len(mem.MessagesSummary)
	if err := s.store.UpsertNPCMemory(ctx, mem); err != nil {
		return err
	}

	key := npcKey(npcName, sessionID)
	if len(mem.MessagesSummary) > s.cfg.ThresholdChars {
		s.maybeEnqueue(key, func() { s.compressNPC(context.Background(), sessionID, npcName, key) })
	}
	return nil
}

func (s *Service) appendDayBuffer(ctx context.Context, sessionID string, day int, line string) error {
	d, err := s.store.GetDay(ctx, sessionID, day)
	if err != nil {
		return err
	}
	d.DaySummary = appendLine(d.DaySummary, line)
	if err := s.store.UpdateDay(ctx, d); err != nil {
		return err
	}

	key := dayKey(sessionID, day)
	if len(d.DaySummary) > s.cfg.ThresholdChars {
		s.maybeEnqueue(key, func() { s.compressDay(context.Background(), sessionID, day, key) })
	}
	return nil
}

func (s *Service) appendSessionBuffer(ctx context.Context, sessionID, line string) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.SessionSummary = appendLine(sess.SessionSummary, line)
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return err
	}

	key := sessionKey(sessionID)
	if len(sess.SessionSummary) > s.cfg.ThresholdChars {
		s.maybeEnqueue(key, func() { s.compressSession(context.Background(), sessionID, key) })
	}
	return nil
}

func appendLine(buffer, line string) string {
	if buffer == "" {
		return line
	}
	return buffer + "\n" + line
}

// maybeEnqueue marks key in-flight and launches job in a goroutine bounded
// by the job semaphore, unless key is already in flight.
func (s *Service) maybeEnqueue(key string, job func()) {
	acquired, err := s.lock.tryLock(context.Background(), key)
	if err != nil || !acquired {
		return
	}

	go func() {
		s.sem <- struct{}{}
		defer func() { <-s.sem }()
		defer s.lock.unlock(context.Background(), key)
		job()
	}()
}

func (s *Service) summarize(ctx context.Context, buffer string) (string, error) {
	system := fmt.Sprintf(compressionSystemPrompt, s.cfg.TargetChars)
	return s.llm.Call(ctx, llmclient.CallRequest{
		Provider:    s.cfg.Provider,
		Model:       s.cfg.Model,
		System:      system,
		User:        buffer,
		Temperature: 0.2,
		Timeout:     s.cfg.Timeout,
	})
}

func (s *Service) compressNPC(ctx context.Context, sessionID, npcName, key string) {
	mem, err := s.store.GetNPCMemory(ctx, npcName, sessionID)
	if err != nil {
		return
	}
	summary, err := s.summarize(ctx, mem.MessagesSummary)
	if err != nil {
		s.logFailure("npc", key, err)
		return
	}

	mem, err = s.store.GetNPCMemory(ctx, npcName, sessionID)
	if err != nil {
		return
	}
	now := time.Now()
	mem.MessagesSummary = summary
	mem.MessagesSummaryLength = len(summary)
	mem.LastSummarized = &now
	s.store.UpsertNPCMemory(ctx, mem)
}

func (s *Service) compressDay(ctx context.Context, sessionID string, day int, key string) {
	d, err := s.store.GetDay(ctx, sessionID, day)
	if err != nil {
		return
	}
	summary, err := s.summarize(ctx, d.DaySummary)
	if err != nil {
		s.logFailure("day", key, err)
		return
	}
	s.store.UpdateDayFn(ctx, sessionID, day, func(d *simmodel.Day) error {
		d.DaySummary = summary
		return nil
	})
}

func (s *Service) compressSession(ctx context.Context, sessionID, key string) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return
	}
	summary, err := s.summarize(ctx, sess.SessionSummary)
	if err != nil {
		s.logFailure("session", key, err)
		return
	}
	s.store.UpdateSessionFn(ctx, sessionID, func(sess *simmodel.Session) error {
		sess.SessionSummary = summary
		return nil
	})
}

func (s *Service) logFailure(kind, key string, err error) {
	if s.obs == nil {
		return
	}
	s.obs.GetLogger(context.Background()).Warn("compression job failed, buffer left unchanged",
		observability.String("kind", kind), observability.String("key", key), observability.Err(err))
}
