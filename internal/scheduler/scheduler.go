// Package scheduler realizes the job table and concurrency model in
// §4.7/§5: a single cooperative cron loop driving the seven named jobs,
// cross-process pause/resume over a NATS control subject (grounded on the
// teacher's internal/agents/base.go SetupControlSubscription pattern),
// per-ticker failure isolation, and a soft wall-clock job deadline after
// which remaining per-ticker work is logged SKIPPED rather than run.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/signalforge/core/internal/config"
)

// Config controls cadence and deadlines; populated from
// config.SchedulerConfig and config.WatchlistConfig at the composition
// root.
type Config struct {
	Timezone             string
	Tickers              []string
	PerAgentDeadline     time.Duration
	JobWallClockDeadline time.Duration
}

// Scheduler owns the cron loop, the NATS control subscription, and the
// seven job implementations in jobs.go.
type Scheduler struct {
	cfg  Config
	loc  *time.Location
	cron *cron.Cron
	jobs *Jobs
	log  zerolog.Logger

	natsConn   *nats.Conn
	controlSub *nats.Subscription

	pausedMu sync.RWMutex
	paused   bool
}

// New builds a Scheduler. The cron instance runs in cfg.Timezone (default
// America/New_York per §4.7's "local" times) so 09:00/12:00/16:30/00:00/
// 08:30 entries match market-hours wall-clock expectations.
func New(cfg Config, jobs *Jobs, log zerolog.Logger) (*Scheduler, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("loading scheduler timezone %q: %w", tz, err)
	}

	s := &Scheduler{
		cfg:  cfg,
		loc:  loc,
		cron: cron.New(cron.WithLocation(loc)),
		jobs: jobs,
		log:  config.NewLogger(log, "scheduler"),
	}
	return s, nil
}

// Start registers every cadence entry from §4.7's job table and starts
// the cron loop. It does not block.
func (s *Scheduler) Start() error {
	entries := []struct {
		spec string
		run  func(context.Context)
	}{
		{"@every 5m", s.runGuarded("fetch_market_data", s.jobs.FetchMarketData)},
		{"@every 30m", s.runGuarded("fetch_sentiment", s.jobs.FetchSentiment)},
		{"0 9 * * *", s.runGuarded("generate_daily_signals", s.jobs.GenerateDailySignals)},
		{"0 12 * * *", s.runGuarded("generate_daily_signals", s.jobs.GenerateDailySignals)},
		{"30 16 * * *", s.runGuarded("analyze_signal_performance", s.jobs.AnalyzeSignalPerformance)},
		{"0 0 * * *", s.runGuarded("optimize_agent_weights", s.jobs.OptimizeAgentWeights)},
		{"30 8 * * *", s.runGuarded("send_daily_summary", s.jobs.SendDailySummary)},
	}

	for _, e := range entries {
		spec := e.spec
		run := e.run
		if _, err := s.cron.AddFunc(spec, func() { run(context.Background()) }); err != nil {
			return fmt.Errorf("scheduling cron entry %q: %w", spec, err)
		}
	}

	s.cron.Start()
	s.log.Info().Int("entry_count", len(entries)).Str("timezone", s.loc.String()).Msg("scheduler started")
	return nil
}

// Stop drains the cron loop and closes the NATS control connection.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()

	if s.controlSub != nil {
		if err := s.controlSub.Unsubscribe(); err != nil {
			s.log.Warn().Err(err).Msg("failed to unsubscribe from control subject")
		}
	}
	if s.natsConn != nil {
		s.natsConn.Close()
	}
	s.log.Info().Msg("scheduler stopped")
}

// RunCheckCriticalBiases runs the on-demand bias-detector job (§4.7); it
// is invoked directly by a caller (e.g. the HTTP surface in §6) rather
// than by a cron entry.
func (s *Scheduler) RunCheckCriticalBiases(ctx context.Context) error {
	return s.jobs.CheckCriticalBiases(ctx)
}

// SetupControlSubscription connects to NATS and subscribes to the
// orchestrator's pause/resume control subject, mirroring the teacher's
// BaseAgent.SetupControlSubscription.
func (s *Scheduler) SetupControlSubscription(natsURL, controlSubject string) error {
	if s.natsConn == nil {
		nc, err := nats.Connect(natsURL)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		s.natsConn = nc
	}

	sub, err := s.natsConn.Subscribe(controlSubject, s.handleControlEvent)
	if err != nil {
		return fmt.Errorf("subscribing to control subject %q: %w", controlSubject, err)
	}
	s.controlSub = sub

	s.log.Info().Str("subject", controlSubject).Msg("subscribed to scheduler control events")
	return nil
}

func (s *Scheduler) handleControlEvent(msg *nats.Msg) {
	var event struct {
		Event  string `json:"event"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.log.Error().Err(err).Msg("failed to unmarshal scheduler control event")
		return
	}

	switch event.Event {
	case "scheduler_paused":
		s.pausedMu.Lock()
		s.paused = true
		s.pausedMu.Unlock()
		s.log.Info().Str("reason", event.Reason).Msg("scheduler paused by control event")
	case "scheduler_resumed":
		s.pausedMu.Lock()
		s.paused = false
		s.pausedMu.Unlock()
		s.log.Info().Msg("scheduler resumed by control event")
	default:
		s.log.Debug().Str("event", event.Event).Msg("unknown scheduler control event")
	}
}

// IsPaused reports whether a control event has paused job execution.
func (s *Scheduler) IsPaused() bool {
	s.pausedMu.RLock()
	defer s.pausedMu.RUnlock()
	return s.paused
}

// runGuarded wraps a job function with the pause check and the soft
// wall-clock deadline from §5: a job that exceeds
// cfg.JobWallClockDeadline has its context cancelled and any remaining
// per-ticker work inside the job observes ctx.Err() and logs SKIPPED.
func (s *Scheduler) runGuarded(name string, fn func(ctx context.Context)) func(context.Context) {
	return func(parent context.Context) {
		if s.IsPaused() {
			s.log.Debug().Str("job", name).Msg("scheduler paused, skipping run")
			return
		}

		deadline := s.cfg.JobWallClockDeadline
		if deadline <= 0 {
			deadline = 5 * time.Minute
		}
		ctx, cancel := context.WithTimeout(parent, deadline)
		defer cancel()

		start := time.Now()
		s.log.Info().Str("job", name).Msg("job started")
		fn(ctx)
		s.log.Info().Str("job", name).Dur("elapsed", time.Since(start)).Msg("job finished")
	}
}
