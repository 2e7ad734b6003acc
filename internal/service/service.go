package service

import (
	"context"
	"time"

	"treeadopt/internal/auth"
	"treeadopt/internal/model"

	"github.com/google/uuid"
)

// TreeService defines read operations on the tree catalogue.
type TreeService interface {
	// GetAll retrieves catalogue trees with pagination.
	GetAll(ctx context.Context, limit, offset int) ([]model.Tree, error)

	// GetByID retrieves a single tree by ID.
	GetByID(ctx context.Context, id string) (*model.Tree, error)
}

// OrderService defines the order lifecycle: creation, payment, assignment and cancellation.
type OrderService interface {
	// CreateOrder creates an unpaid order for the calling buyer. The boolean is
	// false when an identical recent order was returned instead.
	CreateOrder(ctx context.Context, caller *auth.Principal, req *model.OrderRequest) (*model.Order, bool, error)

	// GetByCode retrieves an order with its items and tasks.
	GetByCode(ctx context.Context, caller *auth.Principal, code string) (*model.Order, error)

	// MarkPaid records a trusted payment and assigns the order if possible.
	MarkPaid(ctx context.Context, event model.PaymentEvent) (*model.Order, error)

	// Cancel cancels an order whose tasks have not started.
	Cancel(ctx context.Context, caller *auth.Principal, orderID uuid.UUID) (*model.Order, error)

	// UpdateNotes replaces the admin notes of an order.
	UpdateNotes(ctx context.Context, orderID uuid.UUID, notes string) (*model.Order, error)

	// RetryAssignments assigns paid orders that were deferred for lack of workers.
	RetryAssignments(ctx context.Context, limit int) (int, error)
}

// TaskService defines the wellwisher task lifecycle.
type TaskService interface {
	// ListTasks returns a page of the caller's tasks.
	ListTasks(ctx context.Context, caller *auth.Principal, filter model.TaskFilter) (*model.TaskPage, error)

	// UpdateStatus applies a status change requested by the caller.
	UpdateStatus(ctx context.Context, caller *auth.Principal, req model.TaskStatusRequest) (*model.Task, error)

	// CompletePlanting stores planting evidence and completes the task.
	CompletePlanting(ctx context.Context, caller *auth.Principal, req model.PlantingRequest) (*model.Task, error)
}

// GrowthService records periodic growth updates for planted trees.
type GrowthService interface {
	SubmitGrowthUpdate(ctx context.Context, caller *auth.Principal, req model.GrowthUpdateRequest) (*model.GrowthUpdate, error)
}

// StatsService serves the wellwisher dashboard.
type StatsService interface {
	GetStats(ctx context.Context, caller *auth.Principal) (*model.WorkerStats, error)
}

// EscalationService moves long-dormant completed tasks into the growth-update cycle.
type EscalationService interface {
	RunEscalation(ctx context.Context) (model.SweepResult, error)
}

// Assigner picks a wellwisher for a paid order.
type Assigner interface {
	Assign(ctx context.Context) (uuid.UUID, bool, error)
}

// clock is swapped in tests.
type clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
