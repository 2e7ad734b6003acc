package repository

import (
	"context"
	"time"

	"treeadopt/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// TreeRepository defines the interface for tree catalogue data access operations.
type TreeRepository interface {
	// GetAll retrieves catalogue trees with pagination support.
	GetAll(ctx context.Context, limit, offset int) ([]model.Tree, error)

	// GetByID retrieves a single tree by its ID. Returns nil when absent.
	GetByID(ctx context.Context, id string) (*model.Tree, error)

	// GetByIDs retrieves multiple trees by their IDs.
	GetByIDs(ctx context.Context, ids []string) ([]model.Tree, error)
}

// OrderRepository defines the interface for order data access operations.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// CreateOrder inserts a new order within the provided transaction.
	CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error

	// CreateOrderItems inserts the order's items within the provided transaction.
	CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error

	// GetByID retrieves an order with its items. Tasks are not loaded. Returns nil when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// GetByCode retrieves an order with its items by its public code. Returns nil when absent.
	GetByCode(ctx context.Context, code string) (*model.Order, error)

	// FindRecentDuplicate returns a payment-pending order of the same buyer with the
	// same item fingerprint and total created at or after since, or nil.
	FindRecentDuplicate(ctx context.Context, buyerID uuid.UUID, fingerprint string, total decimal.Decimal, since time.Time) (*model.Order, error)

	// MarkPaid moves a pending or failed payment to paid and confirms the order.
	// Returns false when the order was not in a payable state.
	MarkPaid(ctx context.Context, id uuid.UUID, paymentRef string, now time.Time) (bool, error)

	// ClaimAssignment sets the assigned wellwisher if none is set yet.
	// Returns false when another writer already assigned the order.
	ClaimAssignment(ctx context.Context, tx pgx.Tx, id, wellwisherID uuid.UUID, now time.Time) (bool, error)

	// MarkCancelled cancels an order that has not been planted yet.
	MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) (bool, error)

	// RollupStatus derives planted/completed from the order's tasks.
	RollupStatus(ctx context.Context, id uuid.UUID, now time.Time) (model.OrderStatus, error)

	// UpdateNotes replaces the admin notes of an order.
	UpdateNotes(ctx context.Context, id uuid.UUID, notes string, now time.Time) (bool, error)

	// ListUnassignedPaid returns ids of paid orders still waiting for a wellwisher.
	ListUnassignedPaid(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// TaskRepository defines the interface for wellwisher task data access.
// Every state-changing method is a conditional write on the expected
// current status and reports false when no row matched.
type TaskRepository interface {
	// CreateTasks inserts tasks within the provided transaction.
	CreateTasks(ctx context.Context, tx pgx.Tx, tasks []model.Task) error

	// Get retrieves one task of an order. Returns nil when absent.
	Get(ctx context.Context, orderID uuid.UUID, taskID string) (*model.Task, error)

	// ListByOrder retrieves all tasks of an order in schedule order.
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Task, error)

	// ListByWellwisher retrieves a filtered page of a wellwisher's tasks and the total match count.
	ListByWellwisher(ctx context.Context, wellwisherID uuid.UUID, filter model.TaskFilter, now time.Time) ([]model.Task, int, error)

	// ListAllByWellwisher retrieves every task owned by a wellwisher.
	ListAllByWellwisher(ctx context.Context, wellwisherID uuid.UUID) ([]model.Task, error)

	// ListEscalationCandidates returns completed tasks whose completion is at or before cutoff.
	ListEscalationCandidates(ctx context.Context, cutoff time.Time, limit int) ([]model.Task, error)

	// Start moves pending → in_progress.
	Start(ctx context.Context, orderID uuid.UUID, taskID string, now time.Time) (bool, error)

	// CompletePlanting moves in_progress → completed and stores planting details.
	CompletePlanting(ctx context.Context, orderID uuid.UUID, taskID string, details model.PlantingDetails, nextDue time.Time) (bool, error)

	// AppendGrowthUpdate appends an update, resets the due date and sets status
	// updating, provided the task is still in the expected status.
	AppendGrowthUpdate(ctx context.Context, orderID uuid.UUID, taskID string, expected model.TaskStatus, update model.GrowthUpdate, nextDue time.Time) (bool, error)

	// Escalate moves completed → updating when completion is at or before cutoff.
	Escalate(ctx context.Context, orderID uuid.UUID, taskID string, cutoff, now time.Time) (bool, error)

	// DeletePending removes an order's pending tasks within the provided transaction.
	DeletePending(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (int64, error)

	// CountByOrder counts an order's tasks within the provided transaction.
	CountByOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (int, error)
}

// WellwisherRepository defines data access for field workers.
type WellwisherRepository interface {
	// Create registers a wellwisher.
	Create(ctx context.Context, w *model.Wellwisher) error

	// GetByID retrieves a wellwisher. Returns nil when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Wellwisher, error)

	// ListActiveLoads returns every active wellwisher with their count of
	// pending and in-progress tasks.
	ListActiveLoads(ctx context.Context) ([]model.WorkerLoad, error)
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}
