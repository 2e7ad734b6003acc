package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"treeadopt/internal/auth"
	"treeadopt/internal/blob"
	"treeadopt/internal/cache"
	"treeadopt/internal/metrics"
	"treeadopt/internal/model"
	"treeadopt/internal/repository"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

const (
	defaultTaskPageLimit = 20
	maxTaskPageLimit     = 100
)

// taskService implements TaskService.
type taskService struct {
	taskRepo  repository.TaskRepository
	orderRepo repository.OrderRepository
	store     blob.Store
	stats     cache.StatsCache
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       clock
}

// NewTaskService creates a new task service.
func NewTaskService(
	taskRepo repository.TaskRepository,
	orderRepo repository.OrderRepository,
	store blob.Store,
	stats cache.StatsCache,
	m *metrics.Metrics,
	logger zerolog.Logger,
) TaskService {
	return &taskService{
		taskRepo:  taskRepo,
		orderRepo: orderRepo,
		store:     store,
		stats:     stats,
		metrics:   m,
		logger:    logger.With().Str("service", "task").Logger(),
		now:       systemClock,
	}
}

// ListTasks returns a page of the caller's tasks.
func (s *taskService) ListTasks(ctx context.Context, caller *auth.Principal, filter model.TaskFilter) (*model.TaskPage, error) {
	if caller == nil {
		return nil, model.ErrUnauthorised
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, model.Validation(model.ErrCodeValidation, fmt.Sprintf("Unknown status %q", filter.Status))
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultTaskPageLimit
	}
	if filter.Limit > maxTaskPageLimit {
		filter.Limit = maxTaskPageLimit
	}

	tasks, total, err := s.taskRepo.ListByWellwisher(ctx, caller.ID, filter, s.now())
	if err != nil {
		s.logger.Error().Err(err).Str("wellwisher_id", caller.ID.String()).Msg("failed to list tasks")
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return &model.TaskPage{
		Tasks: tasks,
		Pagination: model.Pagination{
			Page:       filter.Page,
			Limit:      filter.Limit,
			Total:      total,
			TotalPages: (total + filter.Limit - 1) / filter.Limit,
		},
	}, nil
}

// UpdateStatus applies a status change requested through the task listing.
// Only starting a task is allowed here; completion requires planting
// evidence and growth updates go through their own operation.
func (s *taskService) UpdateStatus(ctx context.Context, caller *auth.Principal, req model.TaskStatusRequest) (*model.Task, error) {
	if req.OrderID == uuid.Nil || strings.TrimSpace(req.TaskID) == "" {
		return nil, model.Validation(model.ErrCodeMissingField, "orderId and taskId are required")
	}
	if !req.Status.Valid() {
		return nil, model.Validation(model.ErrCodeValidation, fmt.Sprintf("Unknown status %q", req.Status))
	}

	task, err := loadOwnedTask(ctx, s.taskRepo, caller, req.OrderID, req.TaskID, s.logger)
	if err != nil {
		return nil, err
	}

	if task.Status == req.Status {
		s.metrics.Conflict("start")
		return nil, model.ErrStaleTask
	}
	if !model.CanTransition(task.Status, req.Status) {
		return nil, model.ErrInvalidTransition
	}
	if req.Status != model.TaskInProgress {
		return nil, model.Validation(model.ErrCodeInvalidTransition, fmt.Sprintf("Status %s cannot be set directly", req.Status))
	}

	now := s.now()
	applied, err := s.taskRepo.Start(ctx, task.OrderID, task.TaskID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to start task: %w", err)
	}
	if !applied {
		s.metrics.Conflict("start")
		return nil, model.ErrStaleTask
	}

	s.metrics.Transition(string(task.Status), string(model.TaskInProgress))
	invalidate(ctx, s.stats, task.WellwisherID, s.logger)
	s.logger.Info().
		Str("order_id", task.OrderID.String()).
		Str("task_id", task.TaskID).
		Msg("task started")

	task.Status = model.TaskInProgress
	task.StartedAt = &now
	task.UpdatedAt = now
	return task, nil
}

// CompletePlanting uploads planting photos and completes the task. Photos
// are removed again when the task could not be written.
func (s *taskService) CompletePlanting(ctx context.Context, caller *auth.Principal, req model.PlantingRequest) (*model.Task, error) {
	if req.OrderID == uuid.Nil || strings.TrimSpace(req.TaskID) == "" {
		return nil, model.Validation(model.ErrCodeMissingField, "orderId and taskId are required")
	}
	if len(req.Images) < model.MinImages || len(req.Images) > model.MaxImages {
		return nil, model.ErrImageCount
	}
	if req.Location != nil && !validPoint(*req.Location) {
		return nil, model.Validation(model.ErrCodeInvalidCoordinates, "Latitude must be within ±90 and longitude within ±180")
	}

	task, err := loadOwnedTask(ctx, s.taskRepo, caller, req.OrderID, req.TaskID, s.logger)
	if err != nil {
		return nil, err
	}
	switch task.Status {
	case model.TaskInProgress:
	case model.TaskPending:
		return nil, model.Validation(model.ErrCodeInvalidTransition, "Task must be started before planting is recorded")
	default:
		s.metrics.Conflict("complete")
		return nil, model.Conflict("Task planting is already recorded")
	}

	objects, err := blob.UploadAll(ctx, s.store, "planting/"+task.OrderCode, req.Images, s.logger)
	if err != nil {
		s.logger.Error().Err(err).
			Str("order_id", task.OrderID.String()).
			Str("task_id", task.TaskID).
			Msg("planting image upload failed")
		return nil, model.Upstream("Image upload failed, please retry")
	}

	now := s.now()
	details := model.PlantingDetails{
		PlantedAt:   now,
		Location:    req.Location,
		Accuracy:    req.Accuracy,
		Altitude:    req.Altitude,
		Heading:     req.Heading,
		Speed:       req.Speed,
		Images:      toImages(objects, req.Captions, now),
		Notes:       strings.TrimSpace(req.Notes),
		CompletedAt: now,
	}
	nextDue := now.Add(model.GrowthUpdateInterval)

	applied, err := s.taskRepo.CompletePlanting(ctx, task.OrderID, task.TaskID, details, nextDue)
	if err != nil || !applied {
		blob.DeleteAll(context.WithoutCancel(ctx), s.store, objects, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to complete planting: %w", err)
		}
		s.metrics.Conflict("complete")
		return nil, model.ErrStaleTask
	}

	s.metrics.Transition(string(model.TaskInProgress), string(model.TaskCompleted))
	invalidate(ctx, s.stats, task.WellwisherID, s.logger)
	s.logger.Info().
		Str("order_id", task.OrderID.String()).
		Str("task_id", task.TaskID).
		Int("image_count", len(objects)).
		Msg("planting completed")

	if status, err := s.orderRepo.RollupStatus(ctx, task.OrderID, now); err != nil {
		s.logger.Warn().Err(err).Str("order_id", task.OrderID.String()).Msg("order status rollup failed")
	} else {
		s.logger.Debug().Str("order_id", task.OrderID.String()).Str("status", string(status)).Msg("order status rolled up")
	}

	task.Status = model.TaskCompleted
	task.Planting = &details
	task.CompletedAt = &details.CompletedAt
	task.NextGrowthUpdateDue = &nextDue
	task.UpdatedAt = now
	return task, nil
}

// loadOwnedTask fetches a task the caller may act on. Admins may act on any task.
func loadOwnedTask(ctx context.Context, repo repository.TaskRepository, caller *auth.Principal, orderID uuid.UUID, taskID string, logger zerolog.Logger) (*model.Task, error) {
	if caller == nil {
		return nil, model.ErrUnauthorised
	}

	task, err := repo.Get(ctx, orderID, taskID)
	if err != nil {
		logger.Error().Err(err).
			Str("order_id", orderID.String()).
			Str("task_id", taskID).
			Msg("failed to get task")
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil {
		return nil, model.ErrTaskNotFound
	}
	if !caller.IsAdmin() && task.WellwisherID != caller.ID {
		logger.Warn().
			Str("order_id", orderID.String()).
			Str("task_id", taskID).
			Str("caller_id", caller.ID.String()).
			Msg("task belongs to another wellwisher")
		return nil, model.ErrForbidden
	}
	return task, nil
}

func toImages(objects []blob.Object, captions []string, now time.Time) []model.Image {
	images := make([]model.Image, len(objects))
	for i, obj := range objects {
		images[i] = model.Image{URL: obj.URL, ExternalID: obj.ExternalID, UploadedAt: now}
		if i < len(captions) {
			images[i].Caption = strings.TrimSpace(captions[i])
		}
	}
	return images
}

func validPoint(p orb.Point) bool {
	return p.Lon() >= -180 && p.Lon() <= 180 && p.Lat() >= -90 && p.Lat() <= 90
}

func invalidate(ctx context.Context, stats cache.StatsCache, wellwisherID uuid.UUID, logger zerolog.Logger) {
	if err := stats.Invalidate(ctx, wellwisherID); err != nil {
		logger.Warn().Err(err).Str("wellwisher_id", wellwisherID.String()).Msg("failed to invalidate stats cache")
	}
}
