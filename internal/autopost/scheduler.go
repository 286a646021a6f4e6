package autopost

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/mkmanabu122003/x-autopilot-sub001/pkg/logging"
)

// Scheduler drives the orchestrator from a minute tick. Ticks that arrive
// while a pass is still running are skipped rather than queued, which together
// with the orchestrator's own run lock keeps slot execution serialized.
type Scheduler struct {
	cron         *cron.Cron
	orchestrator *Orchestrator
	logger       logging.Logger
}

func NewScheduler(orchestrator *Orchestrator, logger logging.Logger) *Scheduler {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	return &Scheduler{
		cron:         c,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc("* * * * *", func() {
		s.orchestrator.RunDue(context.Background())
	})
	if err != nil {
		return fmt.Errorf("register automation tick: %w", err)
	}
	s.cron.Start()
	s.logger.Info("Automation scheduler started")
	return nil
}

// Stop halts the tick and waits for an in-flight pass to finish, bounded by
// the given context.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.logger.Info("Automation scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("Automation scheduler stop timed out with a pass still running")
	}
}
