package repositories

import (
	"context"
	"fmt"
	"time"

	"cardapio/internal/models"
	"cardapio/pkg/supabase"
)

const (
	ordersTable     = "orders"
	orderItemsTable = "order_items"
)

// SupabaseOrderRepository stores orders through PostgREST. Every call runs
// with the access token found in ctx, so row level security applies.
type SupabaseOrderRepository struct {
	client *supabase.Client
}

// NewSupabaseOrderRepository creates a new instance of SupabaseOrderRepository.
func NewSupabaseOrderRepository(client *supabase.Client) *SupabaseOrderRepository {
	return &SupabaseOrderRepository{client: client}
}

// CreateOrder inserts the order header and reads back id and created_at.
func (r *SupabaseOrderRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	payload := orderPayload{
		UserID:     order.UserID,
		TotalPrice: order.TotalPrice.StringFixed(2),
	}
	resp, err := r.client.From(ordersTable).Single().ExecuteInsert(ctx, payload)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	row, err := decodeRow[orderRow](ordersTable, resp.Body)
	if err != nil {
		return err
	}
	order.ID = row.ID
	order.CreatedAt = row.CreatedAt
	return nil
}

// CreateOrderItems bulk inserts items in one request.
func (r *SupabaseOrderRepository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	resp, err := r.client.From(orderItemsTable).ExecuteInsert(ctx, newOrderItemPayloads(items))
	if err != nil {
		return fmt.Errorf("failed to create order items: %w", err)
	}

	rows, err := decodeRows[orderItemRow](orderItemsTable, resp.Body)
	if err != nil {
		return err
	}
	for i := range rows {
		if i < len(items) {
			items[i].ID = rows[i].ID
		}
	}
	return nil
}

// DeleteOrder deletes the order. order_items rows go with it through the
// ON DELETE CASCADE foreign key.
func (r *SupabaseOrderRepository) DeleteOrder(ctx context.Context, id int64) error {
	resp, err := r.client.From(ordersTable).Eq("id", id).ExecuteDelete(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete order %d: %w", id, err)
	}

	rows, err := decodeRows[orderRow](ordersTable, resp.Body)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListByUser returns the user's orders with items, newest first.
func (r *SupabaseOrderRepository) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	resp, err := r.client.From(ordersTable).
		Select("id,user_id,total_price,created_at,order_items(id,order_id,menu_item_id,quantity,price)").
		Eq("user_id", userID).
		Order("created_at", false).
		Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders of user %s: %w", userID, err)
	}

	return r.decodeOrders(resp.Body)
}

// ListOrphaned returns orders older than olderThan without any item.
func (r *SupabaseOrderRepository) ListOrphaned(ctx context.Context, olderThan time.Time) ([]models.Order, error) {
	resp, err := r.client.From(ordersTable).
		Select("id,user_id,total_price,created_at,order_items(id,order_id,menu_item_id,quantity,price)").
		Is("order_items", "null").
		Lt("created_at", olderThan.UTC().Format(time.RFC3339)).
		Order("id", true).
		Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned orders: %w", err)
	}

	return r.decodeOrders(resp.Body)
}

func (r *SupabaseOrderRepository) decodeOrders(body []byte) ([]models.Order, error) {
	rows, err := decodeRows[orderRow](ordersTable, body)
	if err != nil {
		return nil, err
	}
	orders := make([]models.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.model())
	}
	return orders, nil
}

// SupabaseRPCOrderRepository adds an atomic PlaceOrder backed by a stored
// procedure that inserts the order and its items in one transaction. The
// procedure receives {user_id, total_price, items[]} and returns the order row.
type SupabaseRPCOrderRepository struct {
	*SupabaseOrderRepository
	fn string
}

// NewSupabaseRPCOrderRepository wraps repo with the named procedure.
func NewSupabaseRPCOrderRepository(repo *SupabaseOrderRepository, fn string) *SupabaseRPCOrderRepository {
	return &SupabaseRPCOrderRepository{SupabaseOrderRepository: repo, fn: fn}
}

type placeOrderParams struct {
	UserID     string             `json:"user_id"`
	TotalPrice string             `json:"total_price"`
	Items      []orderItemPayload `json:"items"`
}

// PlaceOrder calls the procedure and copies the returned ids onto order.
func (r *SupabaseRPCOrderRepository) PlaceOrder(ctx context.Context, order *models.Order) error {
	params := placeOrderParams{
		UserID:     order.UserID,
		TotalPrice: order.TotalPrice.StringFixed(2),
		Items:      newOrderItemPayloads(order.Items),
	}
	resp, err := r.client.RPC(ctx, r.fn, params)
	if err != nil {
		return fmt.Errorf("failed to place order: %w", err)
	}

	row, err := decodeRow[orderRow](ordersTable, resp.Body)
	if err != nil {
		return err
	}
	order.ID = row.ID
	order.CreatedAt = row.CreatedAt
	for i := range order.Items {
		order.Items[i].OrderID = row.ID
		if i < len(row.Items) {
			order.Items[i].ID = row.Items[i].ID
		}
	}
	return nil
}
