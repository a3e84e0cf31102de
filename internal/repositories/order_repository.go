package repositories

import (
	"context"
	"time"

	"cardapio/internal/models"
)

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	// CreateOrder inserts the order header and sets its ID and CreatedAt.
	CreateOrder(ctx context.Context, order *models.Order) error
	// CreateOrderItems inserts all items in one request.
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	DeleteOrder(ctx context.Context, id int64) error
	// ListByUser returns the user's orders with their items, newest first.
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	// ListOrphaned returns orders created before olderThan that have no items.
	ListOrphaned(ctx context.Context, olderThan time.Time) ([]models.Order, error)
}

// AtomicOrderWriter is implemented by backends that can store an order and
// its items as a single unit.
type AtomicOrderWriter interface {
	PlaceOrder(ctx context.Context, order *models.Order) error
}
