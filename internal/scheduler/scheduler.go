package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtzanidakis/swarmchat/internal/config"
	"github.com/mtzanidakis/swarmchat/internal/generator"
)

// Dispatcher is the slice of *dispatch.Orchestrator the scheduler drives.
type Dispatcher interface {
	SweepQueue() int
	ShouldInteract() bool
	Interact(ctx context.Context) ([]generator.Response, error)
}

// Publisher receives the turns of each autonomous round.
// *gateway.Gateway satisfies it.
type Publisher interface {
	PublishAutonomous(responses []generator.Response)
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler sweeps expired queue entries on every tick and, when enabled,
// runs autonomous interaction rounds.
type Scheduler struct {
	orch         Dispatcher
	pub          Publisher
	enabled      bool
	cron         string
	pollInterval time.Duration
	now          func() time.Time

	nextCron time.Time
}

func New(orch Dispatcher, pub Publisher, cfg config.InteractionConfig, opts ...Option) (*Scheduler, error) {
	if cfg.Cron != "" {
		if err := ValidateCron(cfg.Cron); err != nil {
			return nil, err
		}
	}
	s := &Scheduler{
		orch:         orch,
		pub:          pub,
		enabled:      cfg.Enabled,
		cron:         cfg.Cron,
		pollInterval: cfg.PollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pollInterval <= 0 {
		s.pollInterval = 5 * time.Second
	}
	return s, nil
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.pollInterval, "interaction", s.enabled, "cron", s.cron)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduler pass.
func (s *Scheduler) Tick(ctx context.Context) {
	if n := s.orch.SweepQueue(); n > 0 {
		slog.Info("expired queue entries removed", "count", n)
	}

	if !s.enabled || !s.cronDue() {
		return
	}
	if !s.orch.ShouldInteract() {
		return
	}
	s.advanceCron()

	responses, err := s.orch.Interact(ctx)
	if err != nil {
		slog.Error("autonomous round failed", "error", err)
		return
	}
	if len(responses) == 0 {
		slog.Debug("autonomous round skipped, not enough idle agents")
		return
	}
	slog.Info("autonomous round finished", "turns", len(responses))
	s.pub.PublishAutonomous(responses)
}

func (s *Scheduler) cronDue() bool {
	if s.cron == "" {
		return true
	}
	now := s.now()
	if s.nextCron.IsZero() {
		s.advanceCron()
		return false
	}
	return !now.Before(s.nextCron)
}

func (s *Scheduler) advanceCron() {
	if s.cron == "" {
		return
	}
	next, err := NextCronTick(s.cron, s.now())
	if err != nil {
		slog.Error("cron schedule failed", "cron", s.cron, "error", err)
		return
	}
	s.nextCron = next
}
