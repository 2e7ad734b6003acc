package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"treeadopt/internal/auth"
	"treeadopt/internal/cache"
	"treeadopt/internal/metrics"
	"treeadopt/internal/model"
	"treeadopt/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// orderService implements OrderService.
type orderService struct {
	orderRepo repository.OrderRepository
	taskRepo  repository.TaskRepository
	treeRepo  repository.TreeRepository
	assigner  Assigner
	stats     cache.StatsCache
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       clock
}

// NewOrderService creates a new order service.
func NewOrderService(
	orderRepo repository.OrderRepository,
	taskRepo repository.TaskRepository,
	treeRepo repository.TreeRepository,
	assigner Assigner,
	stats cache.StatsCache,
	m *metrics.Metrics,
	logger zerolog.Logger,
) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		taskRepo:  taskRepo,
		treeRepo:  treeRepo,
		assigner:  assigner,
		stats:     stats,
		metrics:   m,
		logger:    logger.With().Str("service", "order").Logger(),
		now:       systemClock,
	}
}

// CreateOrder creates an unpaid order, or returns an identical one submitted
// by the same buyer within DuplicateOrderWindow.
func (s *orderService) CreateOrder(ctx context.Context, caller *auth.Principal, req *model.OrderRequest) (*model.Order, bool, error) {
	if caller == nil {
		return nil, false, model.ErrUnauthorised
	}
	if err := s.validateOrderRequest(req); err != nil {
		return nil, false, err
	}

	items, err := s.snapshotItems(ctx, req.Items)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	order := &model.Order{
		ID:   uuid.New(),
		Code: model.NewOrderCode(),
		Buyer: model.Buyer{
			ID:    caller.ID,
			Email: strings.TrimSpace(req.Email),
			Name:  strings.TrimSpace(req.BuyerName),
			Type:  req.BuyerType,
		},
		TotalAmount:     model.SumItems(items),
		PaymentStatus:   model.PaymentPending,
		Status:          model.OrderPending,
		ItemFingerprint: model.ItemFingerprint(items),
		Tasks:           []model.Task{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Gift != nil {
		order.Gift = *req.Gift
	}
	for i := range items {
		items[i].OrderID = order.ID
		if items[i].AdoptionType == model.AdoptionGift {
			order.Gift.IsGift = true
		}
	}
	order.Items = items

	dup, err := s.orderRepo.FindRecentDuplicate(ctx, order.Buyer.ID, order.ItemFingerprint, order.TotalAmount, now.Add(-model.DuplicateOrderWindow))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to check for duplicate order")
		return nil, false, fmt.Errorf("failed to create order: %w", err)
	}
	if dup != nil {
		s.logger.Info().
			Str("order_id", dup.ID.String()).
			Str("buyer_id", caller.ID.String()).
			Msg("duplicate order submission, returning existing order")
		dup.Tasks = []model.Task{}
		return dup, false, nil
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, false, fmt.Errorf("failed to create order: %w", err)
	}

	// Ensure transaction is rolled back on error
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	if err = s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		return nil, false, fmt.Errorf("failed to create order: %w", err)
	}

	if err = s.orderRepo.CreateOrderItems(ctx, tx, order.Items); err != nil {
		return nil, false, fmt.Errorf("failed to create order items: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to commit transaction")
		return nil, false, fmt.Errorf("failed to create order: %w", err)
	}

	s.metrics.OrderCreated()
	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("code", order.Code).
		Int("item_count", len(order.Items)).
		Str("total", order.TotalAmount.StringFixed(2)).
		Msg("order created successfully")

	return order, true, nil
}

// snapshotItems copies catalogue data into order items, in request order.
func (s *orderService) snapshotItems(ctx context.Context, reqItems []model.OrderItemRequest) ([]model.OrderItem, error) {
	ids := make([]string, 0, len(reqItems))
	seen := make(map[string]bool, len(reqItems))
	for _, item := range reqItems {
		if !seen[item.TreeID] {
			seen[item.TreeID] = true
			ids = append(ids, item.TreeID)
		}
	}

	trees, err := s.treeRepo.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Int("tree_count", len(ids)).Msg("failed to load trees")
		return nil, fmt.Errorf("failed to load trees: %w", err)
	}
	byID := make(map[string]model.Tree, len(trees))
	for _, t := range trees {
		byID[t.ID] = t
	}

	items := make([]model.OrderItem, len(reqItems))
	for i, req := range reqItems {
		tree, ok := byID[req.TreeID]
		if !ok {
			s.logger.Warn().Str("tree_id", req.TreeID).Msg("unknown tree in order")
			return nil, model.ErrTreeNotFound
		}
		adoption := req.AdoptionType
		if adoption == "" {
			adoption = model.AdoptionSelf
		}
		items[i] = model.OrderItem{
			ID:             uuid.New(),
			Position:       i,
			TreeID:         tree.ID,
			Name:           tree.Name,
			ImageURL:       tree.ImageURL,
			Quantity:       req.Quantity,
			Price:          tree.Price,
			OxygenYield:    tree.OxygenYield,
			AdoptionType:   adoption,
			RecipientName:  strings.TrimSpace(req.RecipientName),
			RecipientEmail: strings.TrimSpace(req.RecipientEmail),
		}
	}
	return items, nil
}

// validateOrderRequest validates the order request and fills defaults.
func (s *orderService) validateOrderRequest(req *model.OrderRequest) error {
	if req == nil {
		return model.Validation(model.ErrCodeValidation, "Order request is required")
	}

	if len(req.Items) == 0 {
		return model.Validation(model.ErrCodeMissingField, "Order must contain at least one item")
	}

	if req.BuyerType == "" {
		req.BuyerType = model.BuyerIndividual
	}
	if req.BuyerType != model.BuyerIndividual && req.BuyerType != model.BuyerCompany {
		return model.Validation(model.ErrCodeValidation, "buyerType must be individual or company")
	}

	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		return model.Validation(model.ErrCodeValidation, "A valid email is required")
	}

	for i, item := range req.Items {
		if item.TreeID == "" {
			return model.Validation(model.ErrCodeMissingField, fmt.Sprintf("Item %d: treeId is required", i))
		}

		if item.Quantity <= 0 {
			s.logger.Warn().
				Int("item_index", i).
				Str("tree_id", item.TreeID).
				Int("quantity", item.Quantity).
				Msg("invalid quantity")
			return model.ErrInvalidQuantity
		}

		switch item.AdoptionType {
		case "", model.AdoptionSelf:
		case model.AdoptionGift:
			if strings.TrimSpace(item.RecipientName) == "" {
				return model.Validation(model.ErrCodeMissingField, fmt.Sprintf("Item %d: recipientName is required for gifts", i))
			}
		default:
			return model.Validation(model.ErrCodeValidation, fmt.Sprintf("Item %d: adoptionType must be self or gift", i))
		}
	}

	return nil
}

// GetByCode retrieves an order with its items and tasks.
func (s *orderService) GetByCode(ctx context.Context, caller *auth.Principal, code string) (*model.Order, error) {
	order, err := s.orderRepo.GetByCode(ctx, code)
	if err != nil {
		s.logger.Error().Err(err).Str("code", code).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if !canView(caller, order) {
		return nil, model.ErrForbidden
	}

	if err := s.loadTasks(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func canView(caller *auth.Principal, order *model.Order) bool {
	switch {
	case caller == nil:
		return false
	case caller.IsAdmin():
		return true
	case caller.Role == auth.RoleBuyer:
		return order.Buyer.ID == caller.ID
	case caller.Role == auth.RoleWellwisher:
		return order.AssignedWellwisher != nil && *order.AssignedWellwisher == caller.ID
	}
	return false
}

func (s *orderService) loadTasks(ctx context.Context, order *model.Order) error {
	tasks, err := s.taskRepo.ListByOrder(ctx, order.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to load order tasks")
		return fmt.Errorf("failed to load order tasks: %w", err)
	}
	order.Tasks = tasks
	return nil
}

func (s *orderService) getWithTasks(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if err := s.loadTasks(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// MarkPaid records a payment. Repeated events for a paid order are no-ops;
// cancelled and refunded orders are rejected.
func (s *orderService) MarkPaid(ctx context.Context, event model.PaymentEvent) (*model.Order, error) {
	if event.OrderID == uuid.Nil || strings.TrimSpace(event.PaymentRef) == "" {
		return nil, model.Validation(model.ErrCodeMissingField, "orderId and paymentRef are required")
	}

	order, err := s.orderRepo.GetByID(ctx, event.OrderID)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", event.OrderID.String()).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}

	if order.PaymentStatus != model.PaymentPaid {
		if !payable(order) {
			return nil, model.ErrNotPayable
		}

		applied, err := s.orderRepo.MarkPaid(ctx, order.ID, event.PaymentRef, s.now())
		if err != nil {
			return nil, fmt.Errorf("failed to mark order paid: %w", err)
		}
		if applied {
			s.logger.Info().
				Str("order_id", order.ID.String()).
				Str("payment_ref", event.PaymentRef).
				Msg("order paid")
		}

		// Either way the stored state decides what happens next.
		if order, err = s.orderRepo.GetByID(ctx, order.ID); err != nil {
			return nil, fmt.Errorf("failed to get order: %w", err)
		}
		if order == nil || order.PaymentStatus != model.PaymentPaid {
			return nil, model.ErrNotPayable
		}
	}

	if order.AssignedWellwisher == nil && order.Status != model.OrderCancelled {
		if _, err := s.assign(ctx, order); err != nil {
			// The payment is recorded; the retry job picks the order up later.
			s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("assignment failed")
		}
	}

	return s.getWithTasks(ctx, order.ID)
}

func payable(order *model.Order) bool {
	if order.Status == model.OrderCancelled {
		return false
	}
	return order.PaymentStatus == model.PaymentPending || order.PaymentStatus == model.PaymentFailed
}

type assignOutcome string

const (
	outcomeAssigned assignOutcome = "assigned"
	outcomeDeferred assignOutcome = "deferred"
	outcomeRaced    assignOutcome = "raced"
)

// assign picks a wellwisher and materializes one pending task per item in a
// single transaction guarded by the order still being unassigned.
func (s *orderService) assign(ctx context.Context, order *model.Order) (assignOutcome, error) {
	wellwisherID, ok, err := s.assigner.Assign(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		s.metrics.Assignment(string(outcomeDeferred))
		s.logger.Warn().Str("order_id", order.ID.String()).Msg("no wellwisher available, assignment deferred")
		return outcomeDeferred, nil
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to assign order: %w", err)
	}

	// Ensure transaction is rolled back unless committed
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	now := s.now()
	claimed, err := s.orderRepo.ClaimAssignment(ctx, tx, order.ID, wellwisherID, now)
	if err != nil {
		return "", fmt.Errorf("failed to assign order: %w", err)
	}
	if !claimed {
		s.metrics.Assignment(string(outcomeRaced))
		s.logger.Debug().Str("order_id", order.ID.String()).Msg("order already assigned")
		return outcomeRaced, nil
	}

	tasks := buildTasks(order, wellwisherID, now)
	if err := s.taskRepo.CreateTasks(ctx, tx, tasks); err != nil {
		return "", fmt.Errorf("failed to create tasks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit assignment: %w", err)
	}
	committed = true

	invalidate(ctx, s.stats, wellwisherID, s.logger)
	s.metrics.Assignment(string(outcomeAssigned))
	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("wellwisher_id", wellwisherID.String()).
		Int("task_count", len(tasks)).
		Msg("order assigned")

	return outcomeAssigned, nil
}

// buildTasks creates one pending task per item, scheduled one day apart
// starting tomorrow.
func buildTasks(order *model.Order, wellwisherID uuid.UUID, now time.Time) []model.Task {
	tasks := make([]model.Task, len(order.Items))
	for i, item := range order.Items {
		location := ""
		if item.AdoptionType == model.AdoptionGift && item.RecipientName != "" {
			location = "Gift for " + item.RecipientName
		}
		tasks[i] = model.Task{
			ID:            uuid.New(),
			OrderID:       order.ID,
			TaskID:        fmt.Sprintf("task-%d", i+1),
			WellwisherID:  wellwisherID,
			OrderCode:     order.Code,
			Description:   fmt.Sprintf("Plant %d %s for order %s", item.Quantity, item.Name, order.Code),
			TreeName:      item.Name,
			Quantity:      item.Quantity,
			ScheduledDate: now.Add(time.Duration(i+1) * 24 * time.Hour),
			Priority:      model.PriorityMedium,
			Status:        model.TaskPending,
			Location:      location,
			GrowthUpdates: []model.GrowthUpdate{},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	return tasks
}

// Cancel cancels an order while none of its tasks has started. Pending tasks
// are removed in the same transaction.
func (s *orderService) Cancel(ctx context.Context, caller *auth.Principal, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if caller == nil || !(caller.IsAdmin() || (caller.Role == auth.RoleBuyer && order.Buyer.ID == caller.ID)) {
		return nil, model.ErrForbidden
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	// Ensure transaction is rolled back on error
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	// Cancelling first locks the order row, so an assignment still in flight
	// commits its tasks before they are counted below.
	cancelled, err := s.orderRepo.MarkCancelled(ctx, tx, orderID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	if !cancelled {
		err = model.ErrNotCancellable
		return nil, err
	}

	if _, err = s.taskRepo.DeletePending(ctx, tx, orderID); err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	remaining, err := s.taskRepo.CountByOrder(ctx, tx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	if remaining > 0 {
		err = model.ErrNotCancellable
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	s.logger.Info().Str("order_id", orderID.String()).Msg("order cancelled")

	// Reload: an assignment may have landed while the cancel waited.
	cancelledOrder, loadErr := s.getWithTasks(ctx, orderID)
	if loadErr != nil {
		return nil, loadErr
	}
	if cancelledOrder.AssignedWellwisher != nil {
		invalidate(ctx, s.stats, *cancelledOrder.AssignedWellwisher, s.logger)
	}
	return cancelledOrder, nil
}

// UpdateNotes replaces the admin notes of an order.
func (s *orderService) UpdateNotes(ctx context.Context, orderID uuid.UUID, notes string) (*model.Order, error) {
	ok, err := s.orderRepo.UpdateNotes(ctx, orderID, strings.TrimSpace(notes), s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to update notes: %w", err)
	}
	if !ok {
		return nil, model.ErrOrderNotFound
	}
	return s.getWithTasks(ctx, orderID)
}

// RetryAssignments assigns up to limit deferred orders, oldest first. It
// stops early when the worker pool is empty.
func (s *orderService) RetryAssignments(ctx context.Context, limit int) (int, error) {
	ids, err := s.orderRepo.ListUnassignedPaid(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list unassigned orders: %w", err)
	}

	assigned := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return assigned, err
		}

		order, err := s.orderRepo.GetByID(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to load unassigned order")
			continue
		}
		if order == nil {
			continue
		}

		outcome, err := s.assign(ctx, order)
		if err != nil {
			s.logger.Error().Err(err).Str("order_id", id.String()).Msg("assignment retry failed")
			continue
		}
		if outcome == outcomeDeferred {
			break
		}
		if outcome == outcomeAssigned {
			assigned++
		}
	}

	if len(ids) > 0 {
		s.logger.Info().Int("candidates", len(ids)).Int("assigned", assigned).Msg("assignment retry finished")
	}
	return assigned, nil
}
