package integration

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"treeadopt/internal/assignment"
	"treeadopt/internal/auth"
	"treeadopt/internal/blob"
	"treeadopt/internal/cache"
	"treeadopt/internal/handler"
	"treeadopt/internal/metrics"
	"treeadopt/internal/model"
	"treeadopt/internal/repository"
	"treeadopt/internal/router"
	"treeadopt/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "integration-secret"
	testAPIKey = "test-api-key"
)

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func setupTestServer(t *testing.T, testDB *TestDB) http.Handler {
	t.Helper()

	logger := zerolog.Nop()
	m := metrics.New()
	stats := cache.Noop{}

	store, err := blob.NewLocalStore(t.TempDir(), "/uploads", logger)
	require.NoError(t, err)

	// Initialize repositories
	treeRepo := repository.NewTreeRepository(testDB.Pool, logger)
	orderRepo := repository.NewOrderRepository(testDB.Pool, logger)
	taskRepo := repository.NewTaskRepository(testDB.Pool, logger)
	wellwisherRepo := repository.NewWellwisherRepository(testDB.Pool, logger)

	// Initialize services
	orders := service.NewOrderService(orderRepo, taskRepo, treeRepo, assignment.NewBalancer(wellwisherRepo, logger), stats, m, logger)
	tasks := service.NewTaskService(taskRepo, orderRepo, store, stats, m, logger)
	growth := service.NewGrowthService(taskRepo, store, stats, m, logger)

	// Create router
	return router.New(router.Handlers{
		Trees:    handler.NewTreeHandler(service.NewTreeService(treeRepo, logger), logger),
		Orders:   handler.NewOrderHandler(orders, logger),
		Tasks:    handler.NewTaskHandler(tasks, growth, service.NewStatsService(taskRepo, stats, logger), 10<<20, logger),
		Payments: handler.NewPaymentHandler(orders, m, logger),
		Admin:    handler.NewAdminHandler(service.NewEscalationService(taskRepo, stats, m, logger), orders, logger),
	}, router.Auth{JWTSecret: testSecret, APIKey: testAPIKey}, m, logger)
}

func token(t *testing.T, id uuid.UUID, role auth.Role) string {
	t.Helper()
	tok, err := auth.Issue(auth.Principal{ID: id, Role: role}, testSecret, time.Hour, time.Now())
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(t *testing.T, server http.Handler, req *http.Request, out any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		require.NoError(t, json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(out))
	}
	return w
}

func jsonRequest(t *testing.T, method, path, bearer string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	return req
}

func formRequest(t *testing.T, path, bearer string, fields map[string]string, images int) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for range images {
		fw, err := mw.CreateFormFile("images", "photo.jpg")
		require.NoError(t, err)
		_, err = fw.Write(jpeg)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", bearer)
	return req
}

func TestTreeAPI_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	server := setupTestServer(t, testDB)
	CleanupDB(t, testDB.Pool)
	SeedTrees(t, testDB.Pool)

	t.Run("GET /api/trees returns the catalogue", func(t *testing.T) {
		var trees []model.Tree
		w := do(t, server, httptest.NewRequest(http.MethodGet, "/api/trees", nil), &trees)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, trees, 3)
	})

	t.Run("GET /api/trees/{id} returns 404 for unknown trees", func(t *testing.T) {
		w := do(t, server, httptest.NewRequest(http.MethodGet, "/api/trees/baobab", nil), nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestFulfilmentFlow_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	server := setupTestServer(t, testDB)
	CleanupDB(t, testDB.Pool)
	SeedTrees(t, testDB.Pool)

	asha := SeedWellwisher(t, testDB.Pool, "asha", time.Now().Add(-48*time.Hour))
	ravi := SeedWellwisher(t, testDB.Pool, "ravi", time.Now().Add(-24*time.Hour))

	buyerID := uuid.New()
	buyer := token(t, buyerID, auth.RoleBuyer)
	admin := token(t, uuid.New(), auth.RoleAdmin)

	orderReq := model.OrderRequest{
		BuyerType: model.BuyerIndividual,
		BuyerName: "Meera",
		Email:     "meera@example.com",
		Items: []model.OrderItemRequest{
			{TreeID: "oak", Quantity: 2},
			{TreeID: "teak", Quantity: 1, AdoptionType: model.AdoptionGift, RecipientName: "Kiran"},
		},
	}

	var order model.Order
	t.Run("buyer creates an order", func(t *testing.T) {
		w := do(t, server, jsonRequest(t, http.MethodPost, "/api/orders", buyer, orderReq), &order)

		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "1300", order.TotalAmount.String())
		assert.Equal(t, model.PaymentPending, order.PaymentStatus)
		assert.Empty(t, order.Tasks)
	})

	t.Run("resubmitting the same order returns it", func(t *testing.T) {
		var again model.Order
		w := do(t, server, jsonRequest(t, http.MethodPost, "/api/orders", buyer, orderReq), &again)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, order.ID, again.ID)
	})

	t.Run("payment event requires the API key", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/api/payments/events", "", model.PaymentEvent{OrderID: order.ID, PaymentRef: "pay_1"})
		w := do(t, server, req, nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	var assignee uuid.UUID
	t.Run("payment assigns the order and creates tasks", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/api/payments/events", "", model.PaymentEvent{OrderID: order.ID, PaymentRef: "pay_1"})
		req.Header.Set("X-API-Key", testAPIKey)

		var paid model.Order
		w := do(t, server, req, &paid)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, model.PaymentPaid, paid.PaymentStatus)
		assert.Equal(t, model.OrderConfirmed, paid.Status)
		require.NotNil(t, paid.AssignedWellwisher)
		// Neither worker has tasks yet, so the earlier registration wins.
		assert.Equal(t, asha.ID, *paid.AssignedWellwisher)
		assignee = *paid.AssignedWellwisher

		require.Len(t, paid.Tasks, 2)
		assert.Equal(t, "task-1", paid.Tasks[0].TaskID)
		assert.Equal(t, "Gift for Kiran", paid.Tasks[1].Location)
	})

	t.Run("duplicate payment event is a no-op", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/api/payments/events", "", model.PaymentEvent{OrderID: order.ID, PaymentRef: "pay_1"})
		req.Header.Set("X-API-Key", testAPIKey)

		var paid model.Order
		w := do(t, server, req, &paid)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, paid.Tasks, 2)
	})

	worker := token(t, assignee, auth.RoleWellwisher)
	other := token(t, ravi.ID, auth.RoleWellwisher)

	t.Run("wellwisher lists their pending tasks", func(t *testing.T) {
		var page model.TaskPage
		w := do(t, server, jsonRequest(t, http.MethodGet, "/api/wellwisher/tasks?status=pending", worker, nil), &page)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, page.Tasks, 2)
		assert.Equal(t, 2, page.Pagination.Total)
	})

	t.Run("another wellwisher cannot start the task", func(t *testing.T) {
		body := model.TaskStatusRequest{TaskID: "task-1", OrderID: order.ID, Status: model.TaskInProgress}
		w := do(t, server, jsonRequest(t, http.MethodPut, "/api/wellwisher/tasks", other, body), nil)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("planting before starting is rejected", func(t *testing.T) {
		req := formRequest(t, "/api/wellwisher/planting", worker,
			map[string]string{"taskId": "task-1", "orderId": order.ID.String()}, 1)
		w := do(t, server, req, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("starting twice conflicts", func(t *testing.T) {
		body := model.TaskStatusRequest{TaskID: "task-1", OrderID: order.ID, Status: model.TaskInProgress}

		w := do(t, server, jsonRequest(t, http.MethodPut, "/api/wellwisher/tasks", worker, body), nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = do(t, server, jsonRequest(t, http.MethodPut, "/api/wellwisher/tasks", worker, body), nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("buyer can no longer cancel", func(t *testing.T) {
		w := do(t, server, jsonRequest(t, http.MethodPost, "/api/orders/"+order.ID.String()+"/cancel", buyer, nil), nil)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("planting completes the task", func(t *testing.T) {
		req := formRequest(t, "/api/wellwisher/planting", worker, map[string]string{
			"taskId":  "task-1",
			"orderId": order.ID.String(),
			"lat":     "12.97",
			"lng":     "77.59",
			"notes":   "by the school gate",
		}, 2)

		var task model.Task
		w := do(t, server, req, &task)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, model.TaskCompleted, task.Status)
		require.NotNil(t, task.Planting)
		assert.Len(t, task.Planting.Images, 2)
		require.NotNil(t, task.Planting.Location)
		assert.InDelta(t, 77.59, task.Planting.Location.Lon(), 1e-9)
		require.NotNil(t, task.NextGrowthUpdateDue)
	})

	t.Run("buyer sees the order as planted", func(t *testing.T) {
		var got model.Order
		w := do(t, server, jsonRequest(t, http.MethodGet, "/api/orders/"+order.Code, buyer, nil), &got)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, model.OrderPlanted, got.Status)
		require.Len(t, got.Tasks, 2)
		assert.Equal(t, model.TaskCompleted, got.Tasks[0].Status)
	})

	t.Run("growth update moves the task to updating", func(t *testing.T) {
		req := formRequest(t, "/api/wellwisher/growth-update", worker,
			map[string]string{"taskId": "task-1", "orderId": order.ID.String(), "notes": "first leaves"}, 1)

		var update model.GrowthUpdate
		w := do(t, server, req, &update)

		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, 0, update.DaysSincePlanting)
		assert.Len(t, update.Images, 1)
	})

	t.Run("growth update needs planting details", func(t *testing.T) {
		req := formRequest(t, "/api/wellwisher/growth-update", worker,
			map[string]string{"taskId": "task-2", "orderId": order.ID.String()}, 1)
		w := do(t, server, req, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("stats reflect the planted trees", func(t *testing.T) {
		var stats model.WorkerStats
		w := do(t, server, jsonRequest(t, http.MethodGet, "/api/wellwisher/stats", worker, nil), &stats)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 2, stats.TotalTasks)
		assert.Equal(t, 2, stats.TreesPlanted)
		assert.Equal(t, 1, stats.GrowthUpdatesTotal)
	})

	t.Run("escalation leaves recently planted tasks alone", func(t *testing.T) {
		var result model.SweepResult
		w := do(t, server, jsonRequest(t, http.MethodPost, "/api/admin/sweeps/escalation", admin, nil), &result)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, result.Escalated)
	})

	t.Run("admin updates notes", func(t *testing.T) {
		var got model.Order
		w := do(t, server, jsonRequest(t, http.MethodPut, "/api/admin/orders/"+order.ID.String()+"/notes", admin,
			model.NotesRequest{Notes: "call before visiting"}), &got)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "call before visiting", got.AdminNotes)
	})
}

func TestDeferredAssignment_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	server := setupTestServer(t, testDB)
	CleanupDB(t, testDB.Pool)
	SeedTrees(t, testDB.Pool)

	buyer := token(t, uuid.New(), auth.RoleBuyer)
	admin := token(t, uuid.New(), auth.RoleAdmin)

	var order model.Order
	w := do(t, server, jsonRequest(t, http.MethodPost, "/api/orders", buyer, model.OrderRequest{
		BuyerType: model.BuyerIndividual,
		Email:     "solo@example.com",
		Items:     []model.OrderItemRequest{{TreeID: "neem", Quantity: 1}},
	}), &order)
	require.Equal(t, http.StatusCreated, w.Code)

	// Nobody is registered yet, so payment succeeds without an assignee.
	req := jsonRequest(t, http.MethodPost, "/api/payments/events", "", model.PaymentEvent{OrderID: order.ID, PaymentRef: "pay_2"})
	req.Header.Set("X-API-Key", testAPIKey)
	var paid model.Order
	w = do(t, server, req, &paid)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, paid.AssignedWellwisher)
	assert.Empty(t, paid.Tasks)

	SeedWellwisher(t, testDB.Pool, "late", time.Now())

	var retried map[string]int
	w = do(t, server, jsonRequest(t, http.MethodPost, "/api/admin/sweeps/assignment", admin, nil), &retried)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, retried["assigned"])

	var got model.Order
	w = do(t, server, jsonRequest(t, http.MethodGet, "/api/orders/"+order.Code, buyer, nil), &got)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, got.AssignedWellwisher)
	assert.Len(t, got.Tasks, 1)
}
