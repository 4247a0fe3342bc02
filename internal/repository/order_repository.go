package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/workmanhq/workman-bot/internal/domain"
)

// OrderRepository defines persistence operations for orders.
type OrderRepository interface {
	Create(ctx context.Context, serviceID, userID int64) (*domain.Order, error)
	FindByID(ctx context.Context, id int64) (*domain.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
}

type orderRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewOrderRepository creates a new SQL-backed order repository.
func NewOrderRepository(db *sql.DB, log *slog.Logger) OrderRepository {
	return &orderRepository{
		db:  db,
		log: log,
	}
}

// Create inserts a fresh order in pending status and returns it with its identifier.
func (r *orderRepository) Create(ctx context.Context, serviceID, userID int64) (*domain.Order, error) {
	const query = `
		INSERT INTO orders (service_id, user_id, status, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	order := &domain.Order{
		ServiceID: serviceID,
		UserID:    userID,
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := r.db.QueryRowContext(
		ctx,
		query,
		order.ServiceID,
		order.UserID,
		order.Status,
		order.CreatedAt,
	).Scan(&order.ID); err != nil {
		if r.log != nil {
			r.log.Error("failed to create order",
				slog.Int64("service_id", serviceID),
				slog.Int64("user_id", userID),
				slog.Any("error", err),
			)
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	return order, nil
}

// FindByID retrieves an order by its identifier.
func (r *orderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	const query = `
		SELECT id, service_id, user_id, status, created_at
		FROM orders
		WHERE id = $1
	`

	var order domain.Order
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.ServiceID,
		&order.UserID,
		&order.Status,
		&order.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}

		if r.log != nil {
			r.log.Error("failed to fetch order", slog.Int64("order_id", id), slog.Any("error", err))
		}
		return nil, fmt.Errorf("select order by id: %w", err)
	}

	return &order, nil
}

// ListByUser returns all orders placed by the given user, newest first.
func (r *orderRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	const query = `
		SELECT id, service_id, user_id, status, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to list orders", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return nil, fmt.Errorf("select orders by user: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(
			&order.ID,
			&order.ServiceID,
			&order.UserID,
			&order.Status,
			&order.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}
