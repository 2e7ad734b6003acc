package repository

import (
	"context"
	"errors"
	"fmt"

	"treeadopt/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const treeColumns = `id, name, species, image_url, price, oxygen_yield, created_at`

// treeRepository implements the TreeRepository interface using PostgreSQL.
type treeRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewTreeRepository creates a new PostgreSQL-backed tree catalogue repository.
func NewTreeRepository(pool *pgxpool.Pool, logger zerolog.Logger) TreeRepository {
	return &treeRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "tree").Logger(),
	}
}

func scanTree(row pgx.Row, t *model.Tree) error {
	return row.Scan(&t.ID, &t.Name, &t.Species, &t.ImageURL, &t.Price, &t.OxygenYield, &t.CreatedAt)
}

// GetAll retrieves catalogue trees with pagination support.
func (r *treeRepository) GetAll(ctx context.Context, limit, offset int) ([]model.Tree, error) {
	query := `SELECT ` + treeColumns + ` FROM trees ORDER BY name LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error().Err(err).
			Int("limit", limit).
			Int("offset", offset).
			Msg("failed to query trees")
		return nil, fmt.Errorf("failed to query trees: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// GetByID retrieves a single tree by its ID.
func (r *treeRepository) GetByID(ctx context.Context, id string) (*model.Tree, error) {
	query := `SELECT ` + treeColumns + ` FROM trees WHERE id = $1`

	var t model.Tree
	if err := scanTree(r.pool.QueryRow(ctx, query, id), &t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("tree_id", id).Msg("tree not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("tree_id", id).Msg("failed to query tree")
		return nil, fmt.Errorf("failed to query tree: %w", err)
	}

	return &t, nil
}

// GetByIDs retrieves multiple trees by their IDs.
func (r *treeRepository) GetByIDs(ctx context.Context, ids []string) ([]model.Tree, error) {
	if len(ids) == 0 {
		return []model.Tree{}, nil
	}

	query := `SELECT ` + treeColumns + ` FROM trees WHERE id = ANY($1) ORDER BY name`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		r.logger.Error().Err(err).Int("count", len(ids)).Msg("failed to query trees by IDs")
		return nil, fmt.Errorf("failed to query trees by IDs: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

func (r *treeRepository) collect(rows pgx.Rows) ([]model.Tree, error) {
	trees := []model.Tree{}
	for rows.Next() {
		var t model.Tree
		if err := scanTree(rows, &t); err != nil {
			r.logger.Error().Err(err).Msg("failed to scan tree row")
			return nil, fmt.Errorf("failed to scan tree: %w", err)
		}
		trees = append(trees, t)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating tree rows")
		return nil, fmt.Errorf("error iterating trees: %w", err)
	}

	return trees, nil
}
