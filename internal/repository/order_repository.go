package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"treeadopt/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const orderColumns = `
	id, code, buyer_id, buyer_email, buyer_name, buyer_type, total_amount, gift,
	payment_status, payment_ref, order_status, assigned_wellwisher, admin_notes,
	item_fingerprint, created_at, updated_at`

// orderRepository implements the OrderRepository interface using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *orderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// CreateOrder inserts a new order within the provided transaction.
func (r *orderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	gift, err := json.Marshal(order.Gift)
	if err != nil {
		return fmt.Errorf("failed to encode gift info: %w", err)
	}

	query := `
		INSERT INTO orders (
			id, code, buyer_id, buyer_email, buyer_name, buyer_type, total_amount, gift,
			payment_status, order_status, admin_notes, item_fingerprint, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12, $13, $14)
	`

	_, err = tx.Exec(ctx, query,
		order.ID, order.Code, order.Buyer.ID, order.Buyer.Email, order.Buyer.Name, order.Buyer.Type,
		order.TotalAmount, string(gift), order.PaymentStatus, order.Status, order.AdminNotes,
		order.ItemFingerprint, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", order.ID.String()).
			Msg("failed to create order")
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Debug().
		Str("order_id", order.ID.String()).
		Str("code", order.Code).
		Msg("order created successfully")

	return nil
}

// CreateOrderItems inserts multiple order items within the provided transaction.
func (r *orderRepository) CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_items (
			id, order_id, position, tree_id, name, image_url, quantity, price,
			oxygen_yield, adoption_type, recipient_name, recipient_email
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(query,
			item.ID, item.OrderID, item.Position, item.TreeID, item.Name, item.ImageURL,
			item.Quantity, item.Price, item.OxygenYield, item.AdoptionType,
			item.RecipientName, item.RecipientEmail,
		)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(items); i++ {
		if _, err := results.Exec(); err != nil {
			r.logger.Error().
				Err(err).
				Str("order_id", items[i].OrderID.String()).
				Str("tree_id", items[i].TreeID).
				Msg("failed to create order item")
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	r.logger.Debug().
		Int("count", len(items)).
		Msg("order items created successfully")

	return nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		order model.Order
		gift  []byte
	)
	err := row.Scan(
		&order.ID, &order.Code, &order.Buyer.ID, &order.Buyer.Email, &order.Buyer.Name,
		&order.Buyer.Type, &order.TotalAmount, &gift, &order.PaymentStatus, &order.PaymentRef,
		&order.Status, &order.AssignedWellwisher, &order.AdminNotes, &order.ItemFingerprint,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(gift) > 0 {
		if err := json.Unmarshal(gift, &order.Gift); err != nil {
			return nil, fmt.Errorf("failed to decode gift info: %w", err)
		}
	}
	return &order, nil
}

// GetByID retrieves an order by its ID along with its items.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.getOne(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, id, id.String())
}

// GetByCode retrieves an order by its public code along with its items.
func (r *orderRepository) GetByCode(ctx context.Context, code string) (*model.Order, error) {
	return r.getOne(ctx, `SELECT`+orderColumns+` FROM orders WHERE code = $1`, code, code)
}

func (r *orderRepository) getOne(ctx context.Context, query string, arg any, ref string) (*model.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("order_ref", ref).Msg("order not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_ref", ref).Msg("failed to query order")
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	items, err := r.listItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) listItems(ctx context.Context, orderID uuid.UUID) ([]model.OrderItem, error) {
	query := `
		SELECT id, order_id, position, tree_id, name, image_url, quantity, price,
		       oxygen_yield, adoption_type, recipient_name, recipient_email
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("order_id", orderID.String()).
			Msg("failed to query order items")
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	items := []model.OrderItem{}
	for rows.Next() {
		var item model.OrderItem
		err := rows.Scan(
			&item.ID, &item.OrderID, &item.Position, &item.TreeID, &item.Name, &item.ImageURL,
			&item.Quantity, &item.Price, &item.OxygenYield, &item.AdoptionType,
			&item.RecipientName, &item.RecipientEmail,
		)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order item row")
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating order item rows")
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return items, nil
}

// FindRecentDuplicate returns the newest unpaid order of the buyer with the same items and total.
func (r *orderRepository) FindRecentDuplicate(ctx context.Context, buyerID uuid.UUID, fingerprint string, total decimal.Decimal, since time.Time) (*model.Order, error) {
	query := `SELECT` + orderColumns + `
		FROM orders
		WHERE buyer_id = $1
		  AND item_fingerprint = $2
		  AND total_amount = $3
		  AND payment_status = 'pending'
		  AND created_at >= $4
		ORDER BY created_at DESC
		LIMIT 1
	`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, buyerID, fingerprint, total, since))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("buyer_id", buyerID.String()).Msg("failed to query duplicate order")
		return nil, fmt.Errorf("failed to query duplicate order: %w", err)
	}

	items, err := r.listItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// MarkPaid moves a pending or failed payment to paid and confirms the order.
func (r *orderRepository) MarkPaid(ctx context.Context, id uuid.UUID, paymentRef string, now time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET payment_status = 'paid',
		    payment_ref = $2,
		    order_status = CASE WHEN order_status = 'pending' THEN 'confirmed' ELSE order_status END,
		    updated_at = $3
		WHERE id = $1
		  AND payment_status IN ('pending', 'failed')
		  AND order_status <> 'cancelled'
	`

	return r.execConditional(ctx, r.pool, "mark paid", id, query, id, paymentRef, now)
}

// ClaimAssignment sets the assigned wellwisher if none is set yet.
func (r *orderRepository) ClaimAssignment(ctx context.Context, tx pgx.Tx, id, wellwisherID uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET assigned_wellwisher = $2, updated_at = $3
		WHERE id = $1
		  AND assigned_wellwisher IS NULL
		  AND payment_status = 'paid'
	`

	return r.execConditional(ctx, tx, "claim assignment", id, query, id, wellwisherID, now)
}

// MarkCancelled cancels an order that has not been planted yet.
func (r *orderRepository) MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET order_status = 'cancelled',
		    payment_status = CASE WHEN payment_status = 'paid' THEN 'refunded' ELSE payment_status END,
		    updated_at = $2
		WHERE id = $1
		  AND order_status IN ('pending', 'confirmed')
	`

	return r.execConditional(ctx, tx, "cancel", id, query, id, now)
}

// UpdateNotes replaces the admin notes of an order.
func (r *orderRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string, now time.Time) (bool, error) {
	query := `UPDATE orders SET admin_notes = $2, updated_at = $3 WHERE id = $1`

	return r.execConditional(ctx, r.pool, "update notes", id, query, id, notes, now)
}

func (r *orderRepository) execConditional(ctx context.Context, db execer, op string, id uuid.UUID, query string, args ...any) (bool, error) {
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Str("op", op).Msg("order update failed")
		return false, fmt.Errorf("failed to %s order: %w", op, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RollupStatus derives planted/completed from the order's tasks and returns
// the resulting order status.
func (r *orderRepository) RollupStatus(ctx context.Context, id uuid.UUID, now time.Time) (model.OrderStatus, error) {
	query := `
		UPDATE orders o
		SET order_status = CASE
		        WHEN NOT EXISTS (
		            SELECT 1 FROM tasks t
		            WHERE t.order_id = o.id AND t.status IN ('pending', 'in_progress')
		        ) THEN 'completed'
		        ELSE 'planted'
		    END,
		    updated_at = $2
		WHERE o.id = $1
		  AND o.order_status IN ('confirmed', 'planted')
		  AND EXISTS (
		      SELECT 1 FROM tasks t
		      WHERE t.order_id = o.id AND t.status IN ('completed', 'updating')
		  )
		RETURNING o.order_status
	`

	var status model.OrderStatus
	err := r.pool.QueryRow(ctx, query, id, now).Scan(&status)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to roll up order status")
		return "", fmt.Errorf("failed to roll up order status: %w", err)
	}

	err = r.pool.QueryRow(ctx, `SELECT order_status FROM orders WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to query order status: %w", err)
	}
	return status, nil
}

// ListUnassignedPaid returns ids of paid orders still waiting for a wellwisher, oldest first.
func (r *orderRepository) ListUnassignedPaid(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM orders
		WHERE payment_status = 'paid'
		  AND assigned_wellwisher IS NULL
		  AND order_status <> 'cancelled'
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query unassigned orders")
		return nil, fmt.Errorf("failed to query unassigned orders: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan unassigned orders: %w", err)
	}
	return ids, nil
}
