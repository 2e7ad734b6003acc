package handler

import (
	"context"
	"net/http"

	"treeadopt/internal/auth"
	"treeadopt/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockTreeService is a mock implementation of TreeService.
type MockTreeService struct {
	mock.Mock
}

func (m *MockTreeService) GetAll(ctx context.Context, limit, offset int) ([]model.Tree, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Tree), args.Error(1)
}

func (m *MockTreeService) GetByID(ctx context.Context, id string) (*model.Tree, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tree), args.Error(1)
}

// MockOrderService is a mock implementation of OrderService.
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, caller *auth.Principal, req *model.OrderRequest) (*model.Order, bool, error) {
	args := m.Called(ctx, caller, req)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*model.Order), args.Bool(1), args.Error(2)
}

func (m *MockOrderService) GetByCode(ctx context.Context, caller *auth.Principal, code string) (*model.Order, error) {
	args := m.Called(ctx, caller, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) MarkPaid(ctx context.Context, event model.PaymentEvent) (*model.Order, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) Cancel(ctx context.Context, caller *auth.Principal, orderID uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, caller, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) UpdateNotes(ctx context.Context, orderID uuid.UUID, notes string) (*model.Order, error) {
	args := m.Called(ctx, orderID, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) RetryAssignments(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

// MockTaskService is a mock implementation of TaskService.
type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) ListTasks(ctx context.Context, caller *auth.Principal, filter model.TaskFilter) (*model.TaskPage, error) {
	args := m.Called(ctx, caller, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TaskPage), args.Error(1)
}

func (m *MockTaskService) UpdateStatus(ctx context.Context, caller *auth.Principal, req model.TaskStatusRequest) (*model.Task, error) {
	args := m.Called(ctx, caller, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Task), args.Error(1)
}

func (m *MockTaskService) CompletePlanting(ctx context.Context, caller *auth.Principal, req model.PlantingRequest) (*model.Task, error) {
	args := m.Called(ctx, caller, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Task), args.Error(1)
}

// MockGrowthService is a mock implementation of GrowthService.
type MockGrowthService struct {
	mock.Mock
}

func (m *MockGrowthService) SubmitGrowthUpdate(ctx context.Context, caller *auth.Principal, req model.GrowthUpdateRequest) (*model.GrowthUpdate, error) {
	args := m.Called(ctx, caller, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GrowthUpdate), args.Error(1)
}

// MockStatsService is a mock implementation of StatsService.
type MockStatsService struct {
	mock.Mock
}

func (m *MockStatsService) GetStats(ctx context.Context, caller *auth.Principal) (*model.WorkerStats, error) {
	args := m.Called(ctx, caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WorkerStats), args.Error(1)
}

// MockEscalationService is a mock implementation of EscalationService.
type MockEscalationService struct {
	mock.Mock
}

func (m *MockEscalationService) RunEscalation(ctx context.Context) (model.SweepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.SweepResult), args.Error(1)
}

// as attaches an authenticated caller to the request.
func as(req *http.Request, p *auth.Principal) *http.Request {
	if p == nil {
		return req
	}
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}
