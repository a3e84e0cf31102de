package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cardapio/internal/models"
)

// Operation names passed to MockOrderRepository.Hook.
const (
	OpCreateOrder      = "create_order"
	OpCreateOrderItems = "create_order_items"
	OpDeleteOrder      = "delete_order"
)

// MockOrderRepository is an in-memory implementation of OrderRepository.
// Hook, when set, runs before every write and its error is returned as the
// write's error, which lets tests inject failures and stalls.
type MockOrderRepository struct {
	Hook func(ctx context.Context, op string) error

	orders     map[int64]models.Order
	nextID     int64
	nextItemID int64
	calls      map[string]int
	now        func() time.Time
	mu         sync.RWMutex
}

// NewMockOrderRepository creates a new instance of MockOrderRepository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[int64]models.Order),
		calls:  make(map[string]int),
		now:    time.Now,
	}
}

// SetClock replaces the clock used for CreatedAt.
func (r *MockOrderRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Calls returns how many times op was attempted.
func (r *MockOrderRepository) Calls(op string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls[op]
}

// Orders returns a snapshot of every stored order, ordered by ID.
func (r *MockOrderRepository) Orders() []models.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orderList := make([]models.Order, 0, len(r.orders))
	for _, order := range r.orders {
		order.Items = append([]models.OrderItem(nil), order.Items...)
		orderList = append(orderList, order)
	}
	sort.Slice(orderList, func(i, j int) bool { return orderList[i].ID < orderList[j].ID })
	return orderList
}

func (r *MockOrderRepository) before(ctx context.Context, op string) error {
	r.mu.Lock()
	r.calls[op]++
	hook := r.Hook
	r.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, op); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// CreateOrder stores the order header.
func (r *MockOrderRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := r.before(ctx, OpCreateOrder); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	order.ID = r.nextID
	order.CreatedAt = r.now()
	stored := *order
	stored.Items = nil
	r.orders[order.ID] = stored
	return nil
}

// CreateOrderItems attaches items to their orders.
func (r *MockOrderRepository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if err := r.before(ctx, OpCreateOrderItems); err != nil {
		return fmt.Errorf("failed to create order items: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, it := range items {
		if _, ok := r.orders[it.OrderID]; !ok {
			return fmt.Errorf("failed to create order items: order %d: %w", it.OrderID, ErrNotFound)
		}
	}
	for i := range items {
		r.nextItemID++
		items[i].ID = r.nextItemID
		order := r.orders[items[i].OrderID]
		order.Items = append(order.Items, items[i])
		r.orders[order.ID] = order
	}
	return nil
}

// DeleteOrder removes an order and its items.
func (r *MockOrderRepository) DeleteOrder(ctx context.Context, id int64) error {
	if err := r.before(ctx, OpDeleteOrder); err != nil {
		return fmt.Errorf("failed to delete order %d: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	delete(r.orders, id)
	return nil
}

// ListByUser returns the user's orders, newest first.
func (r *MockOrderRepository) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	var out []models.Order
	for _, order := range r.Orders() {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// ListOrphaned returns orders older than olderThan without items.
func (r *MockOrderRepository) ListOrphaned(_ context.Context, olderThan time.Time) ([]models.Order, error) {
	var out []models.Order
	for _, order := range r.Orders() {
		if len(order.Items) == 0 && order.CreatedAt.Before(olderThan) {
			out = append(out, order)
		}
	}
	return out, nil
}
