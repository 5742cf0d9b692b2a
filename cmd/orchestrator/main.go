package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/signalforge/core/internal/adapters"
	"github.com/signalforge/core/internal/agents"
	"github.com/signalforge/core/internal/alerts"
	"github.com/signalforge/core/internal/config"
	"github.com/signalforge/core/internal/db"
	"github.com/signalforge/core/internal/domain"
	"github.com/signalforge/core/internal/ensemble"
	"github.com/signalforge/core/internal/learning"
	"github.com/signalforge/core/internal/llm"
	"github.com/signalforge/core/internal/market"
	"github.com/signalforge/core/internal/metrics"
	"github.com/signalforge/core/internal/reliability"
	"github.com/signalforge/core/internal/risk"
	"github.com/signalforge/core/internal/scheduler"
	"github.com/signalforge/core/internal/signals"
)

func main() {
	verifyKeys := flag.Bool("verify-keys", false, "Verify configuration and secrets, then exit")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if *verifyKeys {
		os.Exit(verifyConfiguration(*configPath))
	}

	log.Info().Msg("starting signalforge orchestrator")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	config.InitLogger(cfg.App.LogLevel, "console")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vaultCfg := config.GetVaultConfigFromEnv()
	if err := config.LoadSecretsFromVault(ctx, cfg, vaultCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load secrets from vault")
	}

	database, err := db.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	learningStore := db.NewLearningStore(database.Pool(), cfg.Watchlist.Tickers)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	cache := market.NewCache(redisClient, 10*time.Minute)

	breakers := reliability.NewRegistry(5, 30*time.Second)

	historySource := adapters.NewStaticHistorySource()
	quoteSource := adapters.NewStaticQuoteSource()
	indicatorSource := adapters.NewLocalIndicatorSource(historySource)
	sentimentSource := adapters.NewStaticSentimentSource()

	llmClient := buildLLMClient(cfg.LLM)

	ensembleAgents := []agents.AnalyzerAgent{
		agents.NewRuleBasedAgent("rule_based", 1.0, log.Logger),
		agents.NewLLMAgent(agents.LLMAgentConfig{
			Name:         "llm_analyst",
			Weight:       1.0,
			Model:        cfg.LLM.PrimaryModel,
			SystemPrompt: "You are a pragmatic equity analyst. Weigh momentum, valuation, and sentiment evenly.",
			MaxTokens:    cfg.LLM.MaxTokens,
			Temperature:  cfg.LLM.Temperature,
			Timeout:      cfg.Scheduler.PerAgentDeadline,
		}, llmClient, breakers.Get("llm:llm_analyst"), log.Logger),
		agents.NewLLMAgent(agents.LLMAgentConfig{
			Name:         "llm_contrarian",
			Weight:       0.8,
			Model:        cfg.LLM.PrimaryModel,
			SystemPrompt: "You are a skeptical contrarian analyst. Actively look for reasons the crowd's momentum read is wrong.",
			MaxTokens:    cfg.LLM.MaxTokens,
			Temperature:  cfg.LLM.Temperature,
			Timeout:      cfg.Scheduler.PerAgentDeadline,
		}, llmClient, breakers.Get("llm:llm_contrarian"), log.Logger),
	}

	consensusEngine := ensemble.New(ensembleAgents, log.Logger)

	translator := risk.NewTranslator()
	translate := func(signal domain.ConsensusSignal, entryPrice, portfolioValue float64) scheduler.TradePlan {
		plan := translator.Translate(signal, entryPrice, portfolioValue)
		return scheduler.TradePlan{
			SignalType:        plan.SignalType,
			ConfidenceBucket:  plan.ConfidenceBucket,
			EntryPrice:        plan.EntryPrice,
			TargetPrice:       plan.TargetPrice,
			StopLoss:          plan.StopLoss,
			ShareCount:        plan.ShareCount,
			PositionSizeClass: plan.PositionSizeClass,
		}
	}

	alertChannels := []alerts.Alerter{alerts.NewLogAlerter(), alerts.NewConsoleAlerter()}
	if natsAlerter, err := alerts.NewNATSAlerter(cfg.NATS.URL, cfg.NATS.AlertSubject); err != nil {
		log.Warn().Err(err).Msg("NATS alert channel unavailable, continuing with log/console alerts only")
	} else {
		defer natsAlerter.Close()
		alertChannels = append(alertChannels, natsAlerter)
	}
	alertSink := alerts.NewSink(alertChannels...)

	signalStore := signals.NewStore(database.Pool(), alertSink, log.Logger)

	learningLoop := learning.NewLoop(learningStore, alertSink, toTimeframeWeights(cfg.Learning.TimeframeWeights), log.Logger)

	jobs := &scheduler.Jobs{
		Tickers: cfg.Watchlist.Tickers,

		Quotes:     quoteSource,
		History:    historySource,
		Indicators: indicatorSource,
		Sentiment:  sentimentSource,
		Cache:      cache,

		Ensemble:    consensusEngine,
		Translate:   translate,
		Signals:     signalStore,
		Learning:    learningLoop,
		Outcomes:    learningStore,
		Regimes:     learningStore,
		BiasData:    learningStore,
		AgentStatus: database,

		Alerts: alertSink,

		DefaultPortfolioValue: cfg.Risk.DefaultPortfolioValue,
		Log:                   log.Logger,
	}

	sched, err := scheduler.New(scheduler.Config{
		Timezone:             cfg.Scheduler.Timezone,
		Tickers:              cfg.Watchlist.Tickers,
		PerAgentDeadline:     cfg.Scheduler.PerAgentDeadline,
		JobWallClockDeadline: cfg.Scheduler.JobWallClockDeadline,
	}, jobs, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build scheduler")
	}

	if err := sched.SetupControlSubscription(cfg.NATS.URL, cfg.NATS.ControlSubject); err != nil {
		log.Warn().Err(err).Msg("NATS control subscription unavailable, continuing without pause/resume control")
	}

	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	metricsServer := metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
	if err := metricsServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start metrics server")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	sched.Stop()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down metrics server")
	}

	log.Info().Msg("orchestrator shutdown complete")
}

// buildLLMClient wires a FallbackClient that tries cfg.PrimaryModel and
// falls back to cfg.FallbackModel through the same Bifrost gateway
// endpoint, satisfying adapters.LLMClient for every LLM-backed agent. With
// no fallback model configured, a plain Client is used instead.
func buildLLMClient(cfg config.LLMConfig) adapters.LLMClient {
	base := llm.ClientConfig{
		Endpoint:    cfg.Endpoint,
		Model:       cfg.PrimaryModel,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.GetTimeout(),
	}

	if cfg.FallbackModel == "" {
		return llm.NewClient(base)
	}

	fallback := base
	fallback.Model = cfg.FallbackModel

	return llm.NewFallbackClient(llm.FallbackConfig{
		PrimaryConfig:        base,
		PrimaryName:          cfg.PrimaryModel,
		FallbackConfigs:      []llm.ClientConfig{fallback},
		FallbackNames:        []string{cfg.FallbackModel},
		CircuitBreakerConfig: llm.DefaultCircuitBreakerConfig(),
	})
}

// toTimeframeWeights converts config's string-keyed ("7"/"30"/"90")
// timeframe weights into learning.TimeframeWeights' int-keyed shape.
func toTimeframeWeights(cfg map[string]float64) learning.TimeframeWeights {
	if len(cfg) == 0 {
		return nil
	}
	lc := config.LearningConfig{TimeframeWeights: cfg}
	out := make(learning.TimeframeWeights, len(cfg))
	for k, w := range lc.TimeframeWeightsAsInts() {
		out[k] = w
	}
	return out
}

// verifyConfiguration checks that the pieces an operator must supply
// before a production run (database credentials, LLM gateway target) are
// present, without making a live connection to either. There is no
// exchange-credential section to verify here: signalforge has no
// per-exchange API keys, only the adapter/LLM/alert interfaces behind
// internal/adapters.
func verifyConfiguration(configPath string) int {
	log.Info().Msg("verifying configuration...")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return 1
	}

	allValid := true

	log.Info().Msg("checking LLM configuration...")
	if cfg.LLM.Endpoint == "" {
		log.Error().Msg("LLM endpoint not configured")
		allValid = false
	} else if cfg.LLM.Gateway == "" {
		log.Error().Msg("LLM gateway not configured")
		allValid = false
	} else if cfg.LLM.PrimaryModel == "" {
		log.Error().Msg("LLM primary model not configured")
		allValid = false
	} else {
		log.Info().
			Str("gateway", cfg.LLM.Gateway).
			Str("endpoint", cfg.LLM.Endpoint).
			Str("model", cfg.LLM.PrimaryModel).
			Msg("LLM configuration present")
	}

	log.Info().Msg("checking database configuration...")
	if cfg.Database.Host == "" || cfg.Database.Database == "" {
		log.Error().Msg("database host/name not configured")
		allValid = false
	} else {
		if cfg.App.Environment != "development" {
			if errs := config.ValidateProductionSecrets(cfg); len(errs) > 0 {
				for _, e := range errs {
					log.Error().Str("field", e.Field).Msg(e.Message)
				}
				allValid = false
			}
		}
		if allValid {
			log.Info().
				Str("host", cfg.Database.Host).
				Str("database", cfg.Database.Database).
				Str("ssl_mode", cfg.Database.SSLMode).
				Msg("database configuration present")
		}
	}

	if allValid {
		log.Info().Msg("configuration verified successfully")
		return 0
	}
	log.Error().Msg("configuration has missing or invalid fields")
	return 1
}
