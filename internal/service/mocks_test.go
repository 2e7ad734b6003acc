package service

import (
	"context"
	"time"

	"treeadopt/internal/auth"
	"treeadopt/internal/blob"
	"treeadopt/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockTreeRepository is a mock implementation of TreeRepository.
type MockTreeRepository struct {
	mock.Mock
}

func (m *MockTreeRepository) GetAll(ctx context.Context, limit, offset int) ([]model.Tree, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Tree), args.Error(1)
}

func (m *MockTreeRepository) GetByID(ctx context.Context, id string) (*model.Tree, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tree), args.Error(1)
}

func (m *MockTreeRepository) GetByIDs(ctx context.Context, ids []string) ([]model.Tree, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Tree), args.Error(1)
}

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	// Return a MockTx interface value, not a pointer
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	args := m.Called(ctx, tx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	args := m.Called(ctx, tx, items)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByCode(ctx context.Context, code string) (*model.Order, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) FindRecentDuplicate(ctx context.Context, buyerID uuid.UUID, fingerprint string, total decimal.Decimal, since time.Time) (*model.Order, error) {
	args := m.Called(ctx, buyerID, fingerprint, total, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) MarkPaid(ctx context.Context, id uuid.UUID, paymentRef string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, paymentRef, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) ClaimAssignment(ctx context.Context, tx pgx.Tx, id, wellwisherID uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, tx, id, wellwisherID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, tx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) RollupStatus(ctx context.Context, id uuid.UUID, now time.Time) (model.OrderStatus, error) {
	args := m.Called(ctx, id, now)
	return args.Get(0).(model.OrderStatus), args.Error(1)
}

func (m *MockOrderRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, notes, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) ListUnassignedPaid(ctx context.Context, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockTaskRepository is a mock implementation of TaskRepository.
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) CreateTasks(ctx context.Context, tx pgx.Tx, tasks []model.Task) error {
	args := m.Called(ctx, tx, tasks)
	return args.Error(0)
}

func (m *MockTaskRepository) Get(ctx context.Context, orderID uuid.UUID, taskID string) (*model.Task, error) {
	args := m.Called(ctx, orderID, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Task), args.Error(1)
}

func (m *MockTaskRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Task, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Task), args.Error(1)
}

func (m *MockTaskRepository) ListByWellwisher(ctx context.Context, wellwisherID uuid.UUID, filter model.TaskFilter, now time.Time) ([]model.Task, int, error) {
	args := m.Called(ctx, wellwisherID, filter, now)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]model.Task), args.Int(1), args.Error(2)
}

func (m *MockTaskRepository) ListAllByWellwisher(ctx context.Context, wellwisherID uuid.UUID) ([]model.Task, error) {
	args := m.Called(ctx, wellwisherID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Task), args.Error(1)
}

func (m *MockTaskRepository) ListEscalationCandidates(ctx context.Context, cutoff time.Time, limit int) ([]model.Task, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Task), args.Error(1)
}

func (m *MockTaskRepository) Start(ctx context.Context, orderID uuid.UUID, taskID string, now time.Time) (bool, error) {
	args := m.Called(ctx, orderID, taskID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskRepository) CompletePlanting(ctx context.Context, orderID uuid.UUID, taskID string, details model.PlantingDetails, nextDue time.Time) (bool, error) {
	args := m.Called(ctx, orderID, taskID, details, nextDue)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskRepository) AppendGrowthUpdate(ctx context.Context, orderID uuid.UUID, taskID string, expected model.TaskStatus, update model.GrowthUpdate, nextDue time.Time) (bool, error) {
	args := m.Called(ctx, orderID, taskID, expected, update, nextDue)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskRepository) Escalate(ctx context.Context, orderID uuid.UUID, taskID string, cutoff, now time.Time) (bool, error) {
	args := m.Called(ctx, orderID, taskID, cutoff, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskRepository) DeletePending(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tx, orderID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTaskRepository) CountByOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (int, error) {
	args := m.Called(ctx, tx, orderID)
	return args.Int(0), args.Error(1)
}

// MockAssigner is a mock implementation of Assigner.
type MockAssigner struct {
	mock.Mock
}

func (m *MockAssigner) Assign(ctx context.Context) (uuid.UUID, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(uuid.UUID), args.Bool(1), args.Error(2)
}

// MockStore is a mock implementation of blob.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Upload(ctx context.Context, key, contentType string, data []byte) (blob.Object, error) {
	args := m.Called(ctx, key, contentType, data)
	return args.Get(0).(blob.Object), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, externalID string) error {
	args := m.Called(ctx, externalID)
	return args.Error(0)
}

// MockStatsCache is a mock implementation of cache.StatsCache.
type MockStatsCache struct {
	mock.Mock
}

func (m *MockStatsCache) Get(ctx context.Context, wellwisherID uuid.UUID) (*model.WorkerStats, error) {
	args := m.Called(ctx, wellwisherID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WorkerStats), args.Error(1)
}

func (m *MockStatsCache) Set(ctx context.Context, wellwisherID uuid.UUID, stats model.WorkerStats) error {
	args := m.Called(ctx, wellwisherID, stats)
	return args.Error(0)
}

func (m *MockStatsCache) Invalidate(ctx context.Context, wellwisherID uuid.UUID) error {
	args := m.Called(ctx, wellwisherID)
	return args.Error(0)
}

// MockTx is a minimal mock implementation of pgx.Tx for testing.
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Stub methods to satisfy pgx.Tx interface - these are not used in our tests
func (m *MockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (m *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (m *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (m *MockTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (m *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error) {
	return
}
func (m *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (m *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (m *MockTx) Conn() *pgx.Conn                                               { return nil }

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func wellwisher(id uuid.UUID) *auth.Principal {
	return &auth.Principal{ID: id, Role: auth.RoleWellwisher}
}
