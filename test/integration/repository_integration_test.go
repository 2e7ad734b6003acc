package integration

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"treeadopt/internal/assignment"
	"treeadopt/internal/auth"
	"treeadopt/internal/cache"
	"treeadopt/internal/model"
	"treeadopt/internal/repository"
	"treeadopt/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const racers = 8

func TestConcurrentWrites_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	logger := zerolog.Nop()
	ctx := context.Background()

	treeRepo := repository.NewTreeRepository(testDB.Pool, logger)
	orderRepo := repository.NewOrderRepository(testDB.Pool, logger)
	taskRepo := repository.NewTaskRepository(testDB.Pool, logger)
	wellwisherRepo := repository.NewWellwisherRepository(testDB.Pool, logger)
	orders := service.NewOrderService(orderRepo, taskRepo, treeRepo,
		assignment.NewBalancer(wellwisherRepo, logger), cache.Noop{}, nil, logger)

	newPaidOrder := func(t *testing.T) *model.Order {
		t.Helper()
		buyer := &auth.Principal{ID: uuid.New(), Role: auth.RoleBuyer}
		order, created, err := orders.CreateOrder(ctx, buyer, &model.OrderRequest{
			BuyerType: model.BuyerIndividual,
			Email:     "race@example.com",
			Items: []model.OrderItemRequest{
				{TreeID: "oak", Quantity: 1},
				{TreeID: "teak", Quantity: 3},
			},
		})
		require.NoError(t, err)
		require.True(t, created)
		return order
	}

	t.Run("concurrent payment events create one task set", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedTrees(t, testDB.Pool)
		SeedWellwisher(t, testDB.Pool, "asha", time.Now().Add(-time.Hour))
		SeedWellwisher(t, testDB.Pool, "ravi", time.Now())

		order := newPaidOrder(t)

		var g errgroup.Group
		for range racers {
			g.Go(func() error {
				_, err := orders.MarkPaid(ctx, model.PaymentEvent{OrderID: order.ID, PaymentRef: "pay_race"})
				return err
			})
		}
		require.NoError(t, g.Wait())

		tasks, err := taskRepo.ListByOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.Len(t, tasks, 2)
		for _, task := range tasks {
			assert.Equal(t, tasks[0].WellwisherID, task.WellwisherID)
		}
	})

	t.Run("only one start wins", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedTrees(t, testDB.Pool)
		SeedWellwisher(t, testDB.Pool, "asha", time.Now())

		order := newPaidOrder(t)
		_, err := orders.MarkPaid(ctx, model.PaymentEvent{OrderID: order.ID, PaymentRef: "pay_start"})
		require.NoError(t, err)

		var wins atomic.Int32
		var g errgroup.Group
		for range racers {
			g.Go(func() error {
				applied, err := taskRepo.Start(ctx, order.ID, "task-1", time.Now())
				if applied {
					wins.Add(1)
				}
				return err
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, int32(1), wins.Load())

		task, err := taskRepo.Get(ctx, order.ID, "task-1")
		require.NoError(t, err)
		assert.Equal(t, model.TaskInProgress, task.Status)
	})

	t.Run("cancel races with start", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedTrees(t, testDB.Pool)
		SeedWellwisher(t, testDB.Pool, "asha", time.Now())

		order := newPaidOrder(t)
		_, err := orders.MarkPaid(ctx, model.PaymentEvent{OrderID: order.ID, PaymentRef: "pay_cancel"})
		require.NoError(t, err)

		var g errgroup.Group
		var started bool
		var cancelErr error
		g.Go(func() error {
			var err error
			started, err = taskRepo.Start(ctx, order.ID, "task-2", time.Now())
			return err
		})
		g.Go(func() error {
			_, cancelErr = orders.Cancel(ctx, &auth.Principal{ID: uuid.New(), Role: auth.RoleAdmin}, order.ID)
			return nil
		})
		require.NoError(t, g.Wait())

		got, err := orderRepo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		tasks, err := taskRepo.ListByOrder(ctx, order.ID)
		require.NoError(t, err)

		// Either the cancellation removed every task, or the start survived
		// and the order is still live.
		if cancelErr == nil {
			assert.False(t, started)
			assert.Equal(t, model.OrderCancelled, got.Status)
			assert.Empty(t, tasks)
		} else {
			assert.True(t, started)
			assert.NotEqual(t, model.OrderCancelled, got.Status)
			assert.Len(t, tasks, 2)
		}
	})

	t.Run("cancel waits for an in-flight assignment", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedTrees(t, testDB.Pool)

		// No wellwisher yet, so payment leaves the order unassigned.
		order := newPaidOrder(t)
		_, err := orders.MarkPaid(ctx, model.PaymentEvent{OrderID: order.ID, PaymentRef: "pay_assign"})
		require.NoError(t, err)
		worker := SeedWellwisher(t, testDB.Pool, "asha", time.Now())

		tx, err := orderRepo.BeginTx(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		now := time.Now()
		claimed, err := orderRepo.ClaimAssignment(ctx, tx, order.ID, worker.ID, now)
		require.NoError(t, err)
		require.True(t, claimed)
		require.NoError(t, taskRepo.CreateTasks(ctx, tx, []model.Task{
			{
				ID:            uuid.New(),
				OrderID:       order.ID,
				TaskID:        "task-1",
				WellwisherID:  worker.ID,
				OrderCode:     order.Code,
				Description:   "Plant 1 Oak for order " + order.Code,
				TreeName:      "Oak",
				Quantity:      1,
				ScheduledDate: now.Add(24 * time.Hour),
				Priority:      model.PriorityMedium,
				Status:        model.TaskPending,
				GrowthUpdates: []model.GrowthUpdate{},
				CreatedAt:     now,
				UpdatedAt:     now,
			},
		}))

		done := make(chan error, 1)
		go func() {
			_, err := orders.Cancel(ctx, &auth.Principal{ID: uuid.New(), Role: auth.RoleAdmin}, order.ID)
			done <- err
		}()

		// Cancel blocks on the order row held by the assignment.
		select {
		case err := <-done:
			t.Fatalf("cancel finished while assignment held the order: %v", err)
		case <-time.After(300 * time.Millisecond):
		}
		require.NoError(t, tx.Commit(ctx))
		require.NoError(t, <-done)

		got, err := orderRepo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OrderCancelled, got.Status)
		assert.Equal(t, model.PaymentRefunded, got.PaymentStatus)

		tasks, err := taskRepo.ListByOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})
}
