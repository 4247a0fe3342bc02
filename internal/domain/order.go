package domain

import "time"

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFulfilled OrderStatus = "fulfilled"
)

// Order represents a placed service order.
type Order struct {
	ID        int64
	ServiceID int64
	UserID    int64
	Status    OrderStatus
	CreatedAt time.Time
}
