package service

import (
	"context"
	"fmt"
	"strings"

	"treeadopt/internal/auth"
	"treeadopt/internal/blob"
	"treeadopt/internal/cache"
	"treeadopt/internal/metrics"
	"treeadopt/internal/model"
	"treeadopt/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// growthService implements GrowthService.
type growthService struct {
	taskRepo repository.TaskRepository
	store    blob.Store
	stats    cache.StatsCache
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      clock
}

// NewGrowthService creates a new growth-update service.
func NewGrowthService(
	taskRepo repository.TaskRepository,
	store blob.Store,
	stats cache.StatsCache,
	m *metrics.Metrics,
	logger zerolog.Logger,
) GrowthService {
	return &growthService{
		taskRepo: taskRepo,
		store:    store,
		stats:    stats,
		metrics:  m,
		logger:   logger.With().Str("service", "growth").Logger(),
		now:      systemClock,
	}
}

// SubmitGrowthUpdate appends a dated photo update to a planted task and
// pushes its next due date 30 days out.
func (s *growthService) SubmitGrowthUpdate(ctx context.Context, caller *auth.Principal, req model.GrowthUpdateRequest) (*model.GrowthUpdate, error) {
	if req.OrderID == uuid.Nil || strings.TrimSpace(req.TaskID) == "" {
		return nil, model.Validation(model.ErrCodeMissingField, "orderId and taskId are required")
	}
	if len(req.Images) < model.MinImages || len(req.Images) > model.MaxImages {
		return nil, model.ErrImageCount
	}

	task, err := loadOwnedTask(ctx, s.taskRepo, caller, req.OrderID, req.TaskID, s.logger)
	if err != nil {
		return nil, err
	}
	if !task.Status.HasPlanting() || task.Planting == nil {
		return nil, model.ErrNoPlantingDetails
	}

	prefix := fmt.Sprintf("growth/%s/%s", task.OrderCode, task.TaskID)
	objects, err := blob.UploadAll(ctx, s.store, prefix, req.Images, s.logger)
	if err != nil {
		s.logger.Error().Err(err).
			Str("order_id", task.OrderID.String()).
			Str("task_id", task.TaskID).
			Msg("growth image upload failed")
		return nil, model.Upstream("Image upload failed, please retry")
	}

	now := s.now()
	update := model.GrowthUpdate{
		ID:                uuid.New(),
		UploadedAt:        now,
		Images:            toImages(objects, nil, now),
		Notes:             strings.TrimSpace(req.Notes),
		DaysSincePlanting: model.DaysSince(task.Planting.CompletedAt, now),
	}

	applied, err := s.taskRepo.AppendGrowthUpdate(ctx, task.OrderID, task.TaskID, task.Status, update, now.Add(model.GrowthUpdateInterval))
	if err != nil || !applied {
		blob.DeleteAll(context.WithoutCancel(ctx), s.store, objects, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to record growth update: %w", err)
		}
		s.metrics.Conflict("growth_update")
		return nil, model.ErrStaleTask
	}

	s.metrics.Transition(string(task.Status), string(model.TaskUpdating))
	invalidate(ctx, s.stats, task.WellwisherID, s.logger)
	s.logger.Info().
		Str("order_id", task.OrderID.String()).
		Str("task_id", task.TaskID).
		Int("days_since_planting", update.DaysSincePlanting).
		Msg("growth update recorded")

	return &update, nil
}
