package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"treeadopt/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const taskColumns = `
	t.id, t.order_id, t.task_id, t.wellwisher_id, o.code, t.description, t.tree_name,
	t.quantity, t.scheduled_date, t.priority, t.status, t.location, t.planting,
	t.growth_updates, t.next_growth_update_due, t.started_at, t.completed_at,
	t.created_at, t.updated_at`

const taskFrom = ` FROM tasks t JOIN orders o ON o.id = t.order_id`

// taskRepository implements the TaskRepository interface using PostgreSQL.
type taskRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewTaskRepository creates a new PostgreSQL-backed task repository.
func NewTaskRepository(pool *pgxpool.Pool, logger zerolog.Logger) TaskRepository {
	return &taskRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "task").Logger(),
	}
}

func scanTask(row pgx.Row) (model.Task, error) {
	var (
		task     model.Task
		planting []byte
		updates  []byte
	)
	err := row.Scan(
		&task.ID, &task.OrderID, &task.TaskID, &task.WellwisherID, &task.OrderCode,
		&task.Description, &task.TreeName, &task.Quantity, &task.ScheduledDate,
		&task.Priority, &task.Status, &task.Location, &planting, &updates,
		&task.NextGrowthUpdateDue, &task.StartedAt, &task.CompletedAt,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return task, err
	}
	if len(planting) > 0 {
		task.Planting = &model.PlantingDetails{}
		if err := json.Unmarshal(planting, task.Planting); err != nil {
			return task, fmt.Errorf("failed to decode planting details: %w", err)
		}
	}
	task.GrowthUpdates = []model.GrowthUpdate{}
	if len(updates) > 0 {
		if err := json.Unmarshal(updates, &task.GrowthUpdates); err != nil {
			return task, fmt.Errorf("failed to decode growth updates: %w", err)
		}
	}
	return task, nil
}

func (r *taskRepository) collect(rows pgx.Rows) ([]model.Task, error) {
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan task row")
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating task rows")
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// CreateTasks inserts tasks within the provided transaction.
func (r *taskRepository) CreateTasks(ctx context.Context, tx pgx.Tx, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	query := `
		INSERT INTO tasks (
			id, order_id, task_id, wellwisher_id, description, tree_name, quantity,
			scheduled_date, priority, status, location, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	batch := &pgx.Batch{}
	for _, t := range tasks {
		batch.Queue(query,
			t.ID, t.OrderID, t.TaskID, t.WellwisherID, t.Description, t.TreeName, t.Quantity,
			t.ScheduledDate, t.Priority, t.Status, t.Location, t.CreatedAt, t.UpdatedAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := range tasks {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", tasks[i].OrderID.String()).
				Str("task_id", tasks[i].TaskID).
				Msg("failed to create task")
			return fmt.Errorf("failed to create task: %w", err)
		}
	}

	r.logger.Debug().Int("count", len(tasks)).Msg("tasks created successfully")

	return nil
}

// Get retrieves one task of an order.
func (r *taskRepository) Get(ctx context.Context, orderID uuid.UUID, taskID string) (*model.Task, error) {
	query := `SELECT` + taskColumns + taskFrom + ` WHERE t.order_id = $1 AND t.task_id = $2`

	task, err := scanTask(r.pool.QueryRow(ctx, query, orderID, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().
				Str("order_id", orderID.String()).
				Str("task_id", taskID).
				Msg("task not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Str("task_id", taskID).Msg("failed to query task")
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	return &task, nil
}

// ListByOrder retrieves all tasks of an order in schedule order.
func (r *taskRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Task, error) {
	query := `SELECT` + taskColumns + taskFrom + ` WHERE t.order_id = $1 ORDER BY t.scheduled_date, t.task_id`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to query order tasks")
		return nil, fmt.Errorf("failed to query order tasks: %w", err)
	}

	return r.collect(rows)
}

// ListByWellwisher retrieves a filtered page of a wellwisher's tasks and the total match count.
func (r *taskRepository) ListByWellwisher(ctx context.Context, wellwisherID uuid.UUID, filter model.TaskFilter, now time.Time) ([]model.Task, int, error) {
	conds := []string{"t.wellwisher_id = $1"}
	args := []any{wellwisherID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("t.status = $%d", len(args)))
	}
	if filter.NeedsGrowthUpdate {
		args = append(args, model.GrowthDueBefore(now))
		conds = append(conds, fmt.Sprintf(
			"t.status IN ('completed', 'updating') AND t.next_growth_update_due < $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+taskFrom+where, args...).Scan(&total); err != nil {
		r.logger.Error().Err(err).Str("wellwisher_id", wellwisherID.String()).Msg("failed to count tasks")
		return nil, 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	limit := filter.Limit
	offset := (filter.Page - 1) * filter.Limit
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query := `SELECT` + taskColumns + taskFrom + where +
		fmt.Sprintf(` ORDER BY t.scheduled_date, t.task_id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("wellwisher_id", wellwisherID.String()).Msg("failed to query tasks")
		return nil, 0, fmt.Errorf("failed to query tasks: %w", err)
	}

	tasks, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// ListAllByWellwisher retrieves every task owned by a wellwisher.
func (r *taskRepository) ListAllByWellwisher(ctx context.Context, wellwisherID uuid.UUID) ([]model.Task, error) {
	query := `SELECT` + taskColumns + taskFrom + ` WHERE t.wellwisher_id = $1 ORDER BY t.scheduled_date, t.task_id`

	rows, err := r.pool.Query(ctx, query, wellwisherID)
	if err != nil {
		r.logger.Error().Err(err).Str("wellwisher_id", wellwisherID.String()).Msg("failed to query tasks")
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	return r.collect(rows)
}

// ListEscalationCandidates returns completed tasks whose completion is at or before cutoff.
func (r *taskRepository) ListEscalationCandidates(ctx context.Context, cutoff time.Time, limit int) ([]model.Task, error) {
	query := `SELECT` + taskColumns + taskFrom + `
		WHERE t.status = 'completed' AND t.completed_at <= $1
		ORDER BY t.completed_at
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		r.logger.Error().Err(err).Time("cutoff", cutoff).Msg("failed to query escalation candidates")
		return nil, fmt.Errorf("failed to query escalation candidates: %w", err)
	}

	return r.collect(rows)
}

// Start moves pending → in_progress.
func (r *taskRepository) Start(ctx context.Context, orderID uuid.UUID, taskID string, now time.Time) (bool, error) {
	query := `
		UPDATE tasks
		SET status = 'in_progress', started_at = $3, updated_at = $3
		WHERE order_id = $1 AND task_id = $2 AND status = 'pending'
	`

	return r.execConditional(ctx, "start", orderID, taskID, query, orderID, taskID, now)
}

// CompletePlanting moves in_progress → completed and stores planting details.
func (r *taskRepository) CompletePlanting(ctx context.Context, orderID uuid.UUID, taskID string, details model.PlantingDetails, nextDue time.Time) (bool, error) {
	payload, err := json.Marshal(details)
	if err != nil {
		return false, fmt.Errorf("failed to encode planting details: %w", err)
	}

	query := `
		UPDATE tasks
		SET status = 'completed',
		    planting = $3::jsonb,
		    completed_at = $4,
		    next_growth_update_due = $5,
		    updated_at = $4
		WHERE order_id = $1 AND task_id = $2 AND status = 'in_progress'
	`

	return r.execConditional(ctx, "complete", orderID, taskID, query,
		orderID, taskID, string(payload), details.CompletedAt, nextDue)
}

// AppendGrowthUpdate appends an update, resets the due date and sets status updating.
func (r *taskRepository) AppendGrowthUpdate(ctx context.Context, orderID uuid.UUID, taskID string, expected model.TaskStatus, update model.GrowthUpdate, nextDue time.Time) (bool, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return false, fmt.Errorf("failed to encode growth update: %w", err)
	}

	query := `
		UPDATE tasks
		SET status = 'updating',
		    growth_updates = growth_updates || jsonb_build_array($4::jsonb),
		    next_growth_update_due = $5,
		    updated_at = $6
		WHERE order_id = $1 AND task_id = $2 AND status = $3
	`

	return r.execConditional(ctx, "append growth update", orderID, taskID, query,
		orderID, taskID, expected, string(payload), nextDue, update.UploadedAt)
}

// Escalate moves completed → updating when completion is at or before cutoff.
func (r *taskRepository) Escalate(ctx context.Context, orderID uuid.UUID, taskID string, cutoff, now time.Time) (bool, error) {
	query := `
		UPDATE tasks
		SET status = 'updating', updated_at = $4
		WHERE order_id = $1 AND task_id = $2 AND status = 'completed' AND completed_at <= $3
	`

	return r.execConditional(ctx, "escalate", orderID, taskID, query, orderID, taskID, cutoff, now)
}

// DeletePending removes an order's pending tasks within the provided transaction.
func (r *taskRepository) DeletePending(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM tasks WHERE order_id = $1 AND status = 'pending'`, orderID)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to delete pending tasks")
		return 0, fmt.Errorf("failed to delete pending tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByOrder counts an order's tasks within the provided transaction.
func (r *taskRepository) CountByOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (int, error) {
	var n int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE order_id = $1`, orderID).Scan(&n); err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to count tasks")
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

func (r *taskRepository) execConditional(ctx context.Context, op string, orderID uuid.UUID, taskID, query string, args ...any) (bool, error) {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", orderID.String()).
			Str("task_id", taskID).
			Str("op", op).
			Msg("task update failed")
		return false, fmt.Errorf("failed to %s task: %w", op, err)
	}

	applied := tag.RowsAffected() > 0
	if !applied {
		r.logger.Debug().
			Str("order_id", orderID.String()).
			Str("task_id", taskID).
			Str("op", op).
			Msg("conditional task update matched no row")
	}
	return applied, nil
}
