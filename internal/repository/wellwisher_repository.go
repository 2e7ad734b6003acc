package repository

import (
	"context"
	"errors"
	"fmt"

	"treeadopt/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type wellwisherRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewWellwisherRepository creates a new PostgreSQL-backed wellwisher repository.
func NewWellwisherRepository(pool *pgxpool.Pool, logger zerolog.Logger) WellwisherRepository {
	return &wellwisherRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "wellwisher").Logger(),
	}
}

// Create registers a wellwisher.
func (r *wellwisherRepository) Create(ctx context.Context, w *model.Wellwisher) error {
	query := `
		INSERT INTO wellwishers (id, name, email, active, registered_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.pool.Exec(ctx, query, w.ID, w.Name, w.Email, w.Active, w.RegisteredAt); err != nil {
		r.logger.Error().Err(err).Str("email", w.Email).Msg("failed to create wellwisher")
		return fmt.Errorf("failed to create wellwisher: %w", err)
	}
	return nil
}

// GetByID retrieves a wellwisher.
func (r *wellwisherRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Wellwisher, error) {
	query := `SELECT id, name, email, active, registered_at FROM wellwishers WHERE id = $1`

	var w model.Wellwisher
	err := r.pool.QueryRow(ctx, query, id).Scan(&w.ID, &w.Name, &w.Email, &w.Active, &w.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("wellwisher_id", id.String()).Msg("failed to query wellwisher")
		return nil, fmt.Errorf("failed to query wellwisher: %w", err)
	}
	return &w, nil
}

// ListActiveLoads returns active wellwishers with their unfinished task counts.
func (r *wellwisherRepository) ListActiveLoads(ctx context.Context) ([]model.WorkerLoad, error) {
	query := `
		SELECT w.id,
		       COUNT(t.id) FILTER (WHERE t.status IN ('pending', 'in_progress')) AS active_tasks,
		       w.registered_at
		FROM wellwishers w
		LEFT JOIN tasks t ON t.wellwisher_id = w.id
		WHERE w.active
		GROUP BY w.id, w.registered_at
		ORDER BY w.registered_at, w.id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query wellwisher loads")
		return nil, fmt.Errorf("failed to query wellwisher loads: %w", err)
	}
	defer rows.Close()

	loads := []model.WorkerLoad{}
	for rows.Next() {
		var l model.WorkerLoad
		if err := rows.Scan(&l.WellwisherID, &l.ActiveTasks, &l.RegisteredAt); err != nil {
			r.logger.Error().Err(err).Msg("failed to scan wellwisher load row")
			return nil, fmt.Errorf("failed to scan wellwisher load: %w", err)
		}
		loads = append(loads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wellwisher loads: %w", err)
	}

	return loads, nil
}
