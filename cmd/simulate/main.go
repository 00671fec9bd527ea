// Command simulate is the CLI entry point for the NPC world simulation
// engine: load configuration, construct the Store/LLM/domain stack, and
// run SimulationLoop.RunDays until completion or a SIGINT/SIGTERM cancel
// signal. The load-config-then-construct-then-run shape and the
// validate-required-fields discipline at each constructor mirror the
// wiring pattern used throughout the domain packages this command
// assembles.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/skumyol/npcworld/config"
	"github.com/skumyol/npcworld/dialogue"
	"github.com/skumyol/npcworld/events"
	"github.com/skumyol/npcworld/health"
	"github.com/skumyol/npcworld/llm"
	"github.com/skumyol/npcworld/llmclient"
	"github.com/skumyol/npcworld/memsvc"
	"github.com/skumyol/npcworld/observability"
	"github.com/skumyol/npcworld/scheduler"
	"github.com/skumyol/npcworld/simloop"
	"github.com/skumyol/npcworld/simmodel"
	"github.com/skumyol/npcworld/social"
	"github.com/skumyol/npcworld/speaker"
	"github.com/skumyol/npcworld/store"
	"github.com/skumyol/npcworld/store/memstore"
	"github.com/skumyol/npcworld/store/pgstore"
)

func main() {
	sessionID := flag.String("session", "", "session id to run or resume (a new uuid is generated if omitted)")
	numDays := flag.Int("days", 1, "number of days to simulate")
	world := flag.String("world", "a small town", "world description for a freshly created session")
	flag.Parse()

	id := *sessionID
	if id == "" {
		id = uuid.NewString()
	}

	if err := run(id, *world, *numDays); err != nil {
		fmt.Fprintln(os.Stderr, "simulate:", err)
		os.Exit(1)
	}
}

func run(sessionID, world string, numDays int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	obs, err := observability.New(cfg)
	if err != nil {
		return fmt.Errorf("initializing observability: %w", err)
	}
	defer func() {
		_ = obs.Close(context.Background())
	}()

	if err := obs.StartMetricsServer(); err != nil {
		obs.Logger.Error("failed to start metrics server", observability.Err(err))
	}

	st, closeStore, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("constructing store: %w", err)
	}
	defer closeStore()

	router := buildLLMRouter(cfg)

	checker := health.NewChecker()
	checker.RegisterFunc("llm", router.HealthCheck, true)
	checker.RegisterFunc("store", storePingCheck(st), true)

	var pub *events.Publisher
	if cfg.Events.Enabled {
		pub, err = events.NewPublisher(context.Background(), cfg.Events.Brokers, cfg.Events.Topic)
		if err != nil {
			obs.Logger.Warn("events publisher disabled: could not connect", observability.Err(err))
			pub = nil
		} else {
			defer pub.Close()
		}
	}

	mem := memsvc.New(st, router, memsvc.Config{
		ThresholdChars:         cfg.Dialogue.MaxContextLength,
		TargetChars:            cfg.Memory.SummaryTargetLength,
		Timeout:                cfg.Memory.CompressionTimeout,
		DistributedLockBackend: cfg.Memory.DistributedLockBackend,
		RedisAddr:              cfg.Memory.RedisAddr,
	}, obs)

	opinionAgent, err := social.NewOpinionAgent(cfg.Social.OpinionEnabled, cfg.LLM.Social.Provider, cfg.LLM.Social.Model, cfg.Social.ReputationUpdateTimeout, router)
	if err != nil {
		return fmt.Errorf("constructing opinion agent: %w", err)
	}
	stanceAgent, err := social.NewStanceAgent(cfg.Social.StanceEnabled, cfg.LLM.Social.Provider, cfg.LLM.Social.Model, cfg.Social.ReputationUpdateTimeout, router)
	if err != nil {
		return fmt.Errorf("constructing stance agent: %w", err)
	}
	knowledgeAgent, err := social.NewKnowledgeAgent(cfg.Social.KnowledgeEnabled, cfg.LLM.Social.Provider, cfg.LLM.Social.Model, cfg.Social.ReputationUpdateTimeout, router)
	if err != nil {
		return fmt.Errorf("constructing knowledge agent: %w", err)
	}
	reputationAgent, err := social.NewReputationAgent(cfg.Social.ReputationEnabled, cfg.LLM.Social.Provider, cfg.LLM.Social.Model, cfg.Social.ReputationUpdateTimeout, router)
	if err != nil {
		return fmt.Errorf("constructing reputation agent: %w", err)
	}

	sp := speaker.New(router, cfg.LLM.Speaker.Provider, cfg.LLM.Speaker.Model, cfg.Dialogue.MessageTimeout)

	dlgCfg := dialogue.Config{
		MaxMessages:             cfg.Dialogue.MaxMessagesPerDialogue,
		MaxTokens:               cfg.Dialogue.MaxTokensPerDialogue,
		GoodbyeThreshold:        cfg.Dialogue.GoodbyeThreshold,
		AvgCharsPerToken:        cfg.Dialogue.AvgCharsPerToken,
		MessageTimeout:          cfg.Dialogue.MessageTimeout,
		PacingDelay:             cfg.Scheduler.InterDialogueDelay,
		ReputationUpdateTimeout: cfg.Social.ReputationUpdateTimeout,
	}
	engine := dialogue.New(st, mem, sp, dlgCfg, opinionAgent, stanceAgent, knowledgeAgent, reputationAgent)

	schedCfg := scheduler.Config{
		Provider:           cfg.LLM.Default.Provider,
		Model:              cfg.LLM.Default.Model,
		BloomCapacity:      cfg.Social.IntroductionBloomCapacity,
		BloomFalsePositive: cfg.Social.IntroductionBloomFalsePositive,
	}
	sched := scheduler.New(st, router, schedCfg)

	periods := parsePeriods(cfg.Scheduler.Phases)
	loop := simloop.New(st, sched, engine, periods).WithEvents(pub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if status, results := checker.OverallStatus(ctx); status != health.StatusHealthy {
		obs.Logger.Warn("starting with a degraded health check", observability.String("status", string(status)), observability.Int("failing", countFailing(results)))
	}

	settings := simmodel.GameSettings{World: world}
	if err := loop.RunDays(ctx, sessionID, settings, numDays); err != nil {
		return fmt.Errorf("running simulation: %w", err)
	}

	obs.Logger.Info("simulation run complete", observability.String("session_id", sessionID))
	return nil
}

func buildStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "postgres", "hybrid":
		pgCfg := &pgstore.Config{
			Host:            cfg.Store.Host,
			Port:            cfg.Store.Port,
			User:            cfg.Store.User,
			Password:        cfg.Store.Password,
			Database:        cfg.Store.Name,
			SSLMode:         cfg.Store.SSLMode,
			MaxOpenConns:    cfg.Store.MaxConnections,
			MaxIdleConns:    cfg.Store.MaxIdleConnections,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		}
		st, err := pgstore.New(context.Background(), pgCfg)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	default:
		st := memstore.New()
		return st, func() { _ = st.Close() }, nil
	}
}

func buildLLMRouter(cfg *config.Config) *llmclient.Router {
	router := llmclient.NewRouter()
	registerProvider(router, "openai", llm.ProviderConfig{Type: llm.ProviderTypeOpenAI, APIKey: cfg.LLM.OpenAI.APIKey})
	registerProvider(router, "anthropic", llm.ProviderConfig{Type: llm.ProviderTypeAnthropic, APIKey: cfg.LLM.Anthropic.APIKey})
	registerProvider(router, "tupleleap", llm.ProviderConfig{Type: llm.ProviderTypeTupleLeap, APIKey: cfg.LLM.TupleLeap.APIKey, BaseURL: cfg.LLM.TupleLeap.BaseURL})
	if cfg.LLM.OfflineModel != "" {
		// OfflineModel names the local model tag; Ollama itself is assumed
		// reachable at its default localhost address.
		router.SetOfflineFallback(llm.NewOllama(""))
	}
	return router
}

// registerProvider builds a provider via ProviderFactory and registers it
// under name, skipping silently when pc has no API key configured.
func registerProvider(router *llmclient.Router, name string, pc llm.ProviderConfig) {
	if pc.APIKey == "" {
		return
	}
	provider, err := llm.NewProviderFactory(&pc).CreateProvider()
	if err != nil {
		return
	}
	router.Register(name, provider)
}

func storePingCheck(st store.Store) health.Check {
	return func(ctx context.Context) error {
		_, err := st.AllocateID(ctx, "health_check")
		return err
	}
}

func parsePeriods(names []string) []simmodel.TimePeriod {
	if len(names) == 0 {
		return simmodel.DefaultPeriods()
	}
	out := make([]simmodel.TimePeriod, 0, len(names))
	for _, n := range names {
		out = append(out, simmodel.TimePeriod(n))
	}
	return out
}

func countFailing(results map[string]health.CheckResult) int {
	n := 0
	for _, r := range results {
		if r.Status != health.StatusHealthy {
			n++
		}
	}
	return n
}
