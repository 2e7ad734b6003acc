package service

import (
	"context"
	"fmt"

	"treeadopt/internal/cache"
	"treeadopt/internal/metrics"
	"treeadopt/internal/model"
	"treeadopt/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// escalationBatch bounds how many candidates one sweep query returns.
const escalationBatch = 500

type taskKey struct {
	orderID uuid.UUID
	taskID  string
}

// escalationService implements EscalationService.
type escalationService struct {
	taskRepo repository.TaskRepository
	stats    cache.StatsCache
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      clock
}

// NewEscalationService creates a new escalation service.
func NewEscalationService(taskRepo repository.TaskRepository, stats cache.StatsCache, m *metrics.Metrics, logger zerolog.Logger) EscalationService {
	return &escalationService{
		taskRepo: taskRepo,
		stats:    stats,
		metrics:  m,
		logger:   logger.With().Str("service", "escalation").Logger(),
		now:      systemClock,
	}
}

// RunEscalation moves every task completed at least EscalationAge ago into
// updating. A failure on one task is counted and the sweep carries on.
// Concurrent sweeps are safe: the conditional write lets only one of them
// escalate a given task and the other counts it as skipped.
func (s *escalationService) RunEscalation(ctx context.Context) (model.SweepResult, error) {
	now := s.now()
	cutoff := now.Add(-model.EscalationAge)

	var result model.SweepResult
	attempted := make(map[taskKey]struct{})
	for {
		candidates, err := s.taskRepo.ListEscalationCandidates(ctx, cutoff, escalationBatch)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to list escalation candidates")
			return result, fmt.Errorf("failed to list escalation candidates: %w", err)
		}
		fresh, escalated := 0, 0
		for _, task := range candidates {
			// Failed tasks stay completed and come back in the next batch.
			key := taskKey{orderID: task.OrderID, taskID: task.TaskID}
			if _, seen := attempted[key]; seen {
				continue
			}
			attempted[key] = struct{}{}
			fresh++
			result.Scanned++

			if err := ctx.Err(); err != nil {
				s.record(result)
				return result, err
			}

			applied, err := s.taskRepo.Escalate(ctx, task.OrderID, task.TaskID, cutoff, now)
			switch {
			case err != nil:
				result.Failed++
				s.logger.Error().Err(err).
					Str("order_id", task.OrderID.String()).
					Str("task_id", task.TaskID).
					Msg("failed to escalate task")
			case !applied:
				result.Skipped++
			default:
				escalated++
				s.metrics.Transition(string(model.TaskCompleted), string(model.TaskUpdating))
				invalidate(ctx, s.stats, task.WellwisherID, s.logger)
			}
		}
		result.Escalated += escalated

		// A short batch means the candidate set is drained. A batch with no
		// progress would return the same rows again.
		if len(candidates) < escalationBatch || fresh == 0 || escalated == 0 {
			break
		}
	}

	s.record(result)
	s.logger.Info().
		Int("scanned", result.Scanned).
		Int("escalated", result.Escalated).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("escalation sweep finished")

	return result, nil
}

func (s *escalationService) record(result model.SweepResult) {
	s.metrics.SweepOutcome("escalated", result.Escalated)
	s.metrics.SweepOutcome("skipped", result.Skipped)
	s.metrics.SweepOutcome("failed", result.Failed)
}
