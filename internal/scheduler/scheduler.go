// Package scheduler runs the periodic escalation sweep and assignment retry.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"treeadopt/internal/config"
	"treeadopt/internal/model"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	// AssignmentRetryBatch caps orders retried per run.
	AssignmentRetryBatch = 100

	jobTimeout = 30 * time.Minute
)

// Escalator runs one escalation sweep.
type Escalator interface {
	RunEscalation(ctx context.Context) (model.SweepResult, error)
}

// AssignmentRetrier assigns paid orders that are still waiting for a wellwisher.
type AssignmentRetrier interface {
	RetryAssignments(ctx context.Context, limit int) (int, error)
}

// Scheduler wraps a cron runner. Overlapping runs of the same job are skipped;
// the sweep itself stays safe when several replicas run it concurrently.
type Scheduler struct {
	cron      *cron.Cron
	escalator Escalator
	retrier   AssignmentRetrier
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New registers the escalation and assignment-retry jobs.
func New(cfg config.SchedulerConfig, escalator Escalator, retrier AssignmentRetrier, logger zerolog.Logger) (*Scheduler, error) {
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger: logger}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		escalator: escalator,
		retrier:   retrier,
		logger:    logger,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(cfg.EscalationSpec, s.RunEscalation); err != nil {
		return nil, fmt.Errorf("invalid escalation schedule %q: %w", cfg.EscalationSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.AssignmentRetrySpec, s.RetryAssignments); err != nil {
		return nil, fmt.Errorf("invalid assignment retry schedule %q: %w", cfg.AssignmentRetrySpec, err)
	}

	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info().Int("entry", int(e.ID)).Time("next", e.Next).Msg("job scheduled")
	}
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// RunEscalation runs one escalation sweep.
func (s *Scheduler) RunEscalation() {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.escalator.RunEscalation(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("escalation sweep failed")
		return
	}
	s.logger.Info().
		Int("escalated", result.Escalated).
		Int("failed", result.Failed).
		Dur("duration", time.Since(start)).
		Msg("escalation job done")
}

// RetryAssignments retries deferred order assignments.
func (s *Scheduler) RetryAssignments() {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	n, err := s.retrier.RetryAssignments(ctx, AssignmentRetryBatch)
	if err != nil {
		s.logger.Error().Err(err).Msg("assignment retry failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int("assigned", n).Msg("assignment retry job done")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
