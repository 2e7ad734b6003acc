// Package assignment picks the wellwisher that receives a newly paid order.
package assignment

import (
	"context"
	"fmt"

	"treeadopt/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LoadSource lists the active worker pool with current workloads.
type LoadSource interface {
	ListActiveLoads(ctx context.Context) ([]model.WorkerLoad, error)
}

// Pick returns the worker with the fewest active tasks. Ties go to the
// earliest registration, then to the lowest id. The second result is false
// when the pool is empty.
func Pick(loads []model.WorkerLoad) (uuid.UUID, bool) {
	if len(loads) == 0 {
		return uuid.Nil, false
	}

	best := loads[0]
	for _, l := range loads[1:] {
		if less(l, best) {
			best = l
		}
	}
	return best.WellwisherID, true
}

func less(a, b model.WorkerLoad) bool {
	if a.ActiveTasks != b.ActiveTasks {
		return a.ActiveTasks < b.ActiveTasks
	}
	if !a.RegisteredAt.Equal(b.RegisteredAt) {
		return a.RegisteredAt.Before(b.RegisteredAt)
	}
	return a.WellwisherID.String() < b.WellwisherID.String()
}

// Balancer selects a wellwisher from the live pool.
//
// Loads are read without a lock, so two orders paid at the same moment may
// both land on the same worker.
type Balancer struct {
	source LoadSource
	logger zerolog.Logger
}

// NewBalancer creates a Balancer reading workloads from source.
func NewBalancer(source LoadSource, logger zerolog.Logger) *Balancer {
	return &Balancer{
		source: source,
		logger: logger.With().Str("component", "balancer").Logger(),
	}
}

// Assign returns the chosen wellwisher, or false when nobody is available
// and the assignment must be deferred.
func (b *Balancer) Assign(ctx context.Context) (uuid.UUID, bool, error) {
	loads, err := b.source.ListActiveLoads(ctx)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to load worker pool: %w", err)
	}

	id, ok := Pick(loads)
	if !ok {
		b.logger.Warn().Msg("no active wellwishers, assignment deferred")
		return uuid.Nil, false, nil
	}

	b.logger.Debug().
		Str("wellwisher_id", id.String()).
		Int("pool_size", len(loads)).
		Msg("wellwisher selected")

	return id, true, nil
}
