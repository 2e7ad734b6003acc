package service

import (
	"context"
	"fmt"

	"treeadopt/internal/model"
	"treeadopt/internal/repository"

	"github.com/rs/zerolog"
)

// treeService implements TreeService.
type treeService struct {
	repo   repository.TreeRepository
	logger zerolog.Logger
}

// NewTreeService creates a new catalogue service.
func NewTreeService(repo repository.TreeRepository, logger zerolog.Logger) TreeService {
	return &treeService{
		repo:   repo,
		logger: logger.With().Str("service", "tree").Logger(),
	}
}

// GetAll retrieves catalogue trees with pagination.
func (s *treeService) GetAll(ctx context.Context, limit, offset int) ([]model.Tree, error) {
	trees, err := s.repo.GetAll(ctx, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Int("limit", limit).Int("offset", offset).Msg("failed to get trees")
		return nil, fmt.Errorf("failed to get trees: %w", err)
	}
	return trees, nil
}

// GetByID retrieves a single tree by ID.
func (s *treeService) GetByID(ctx context.Context, id string) (*model.Tree, error) {
	tree, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("tree_id", id).Msg("failed to get tree")
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	if tree == nil {
		return nil, model.NewDomainError(model.KindNotFound, model.ErrCodeTreeNotFound, "Tree not found")
	}
	return tree, nil
}
