package service

import (
	"context"
	"fmt"

	"treeadopt/internal/auth"
	"treeadopt/internal/cache"
	"treeadopt/internal/model"
	"treeadopt/internal/projection"
	"treeadopt/internal/repository"

	"github.com/rs/zerolog"
)

// statsService implements StatsService with a read-through cache.
type statsService struct {
	taskRepo repository.TaskRepository
	cache    cache.StatsCache
	logger   zerolog.Logger
	now      clock
}

// NewStatsService creates a new stats service.
func NewStatsService(taskRepo repository.TaskRepository, c cache.StatsCache, logger zerolog.Logger) StatsService {
	return &statsService{
		taskRepo: taskRepo,
		cache:    c,
		logger:   logger.With().Str("service", "stats").Logger(),
		now:      systemClock,
	}
}

// GetStats returns the caller's dashboard projection.
func (s *statsService) GetStats(ctx context.Context, caller *auth.Principal) (*model.WorkerStats, error) {
	if caller == nil {
		return nil, model.ErrUnauthorised
	}

	cached, err := s.cache.Get(ctx, caller.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("wellwisher_id", caller.ID.String()).Msg("stats cache read failed")
	}
	if cached != nil {
		return cached, nil
	}

	tasks, err := s.taskRepo.ListAllByWellwisher(ctx, caller.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("wellwisher_id", caller.ID.String()).Msg("failed to load tasks for stats")
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	stats := projection.Build(tasks, s.now(), projection.DefaultRecentLimit)
	if err := s.cache.Set(ctx, caller.ID, stats); err != nil {
		s.logger.Warn().Err(err).Str("wellwisher_id", caller.ID.String()).Msg("stats cache write failed")
	}
	return &stats, nil
}
