package repositories

import (
	"encoding/json"
	"time"

	"cardapio/internal/models"
	"cardapio/internal/validation"

	"github.com/shopspring/decimal"
)

// Rows as PostgREST returns them. Prices arrive as JSON numbers or
// strings depending on the column type; decimal.Decimal accepts both.

type menuItemRow struct {
	ID          int64            `json:"id" validate:"required,gt=0"`
	Name        string           `json:"name" validate:"required"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	ImageURL    *string          `json:"image_url"`
	CreatedAt   time.Time        `json:"created_at"`
}

func (r menuItemRow) model() models.MenuItem {
	return models.MenuItem{
		ID:          r.ID,
		Name:        r.Name,
		Description: deref(r.Description),
		Price:       r.Price.Round(2),
		ImageURL:    deref(r.ImageURL),
		CreatedAt:   r.CreatedAt,
	}
}

type orderItemRow struct {
	ID         int64            `json:"id" validate:"required,gt=0"`
	OrderID    int64            `json:"order_id" validate:"required,gt=0"`
	MenuItemID int64            `json:"menu_item_id" validate:"required,gt=0"`
	Quantity   int              `json:"quantity" validate:"gt=0"`
	Price      *decimal.Decimal `json:"price" validate:"required"`
}

func (r orderItemRow) model() models.OrderItem {
	return models.OrderItem{
		ID:         r.ID,
		OrderID:    r.OrderID,
		MenuItemID: r.MenuItemID,
		Quantity:   r.Quantity,
		Price:      r.Price.Round(2),
	}
}

type orderRow struct {
	ID         int64            `json:"id" validate:"required,gt=0"`
	UserID     string           `json:"user_id" validate:"required"`
	TotalPrice *decimal.Decimal `json:"total_price" validate:"required"`
	CreatedAt  time.Time        `json:"created_at"`
	Items      []orderItemRow   `json:"order_items" validate:"dive"`
}

func (r orderRow) model() models.Order {
	o := models.Order{
		ID:         r.ID,
		UserID:     r.UserID,
		TotalPrice: r.TotalPrice.Round(2),
		CreatedAt:  r.CreatedAt,
	}
	for _, it := range r.Items {
		o.Items = append(o.Items, it.model())
	}
	return o
}

// Payloads sent on writes. Money goes out as a fixed two decimal string.

type menuItemPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	ImageURL    string `json:"image_url,omitempty"`
}

func newMenuItemPayload(item *models.MenuItem) menuItemPayload {
	return menuItemPayload{
		Name:        item.Name,
		Description: item.Description,
		Price:       item.Price.StringFixed(2),
		ImageURL:    item.ImageURL,
	}
}

type orderPayload struct {
	UserID     string `json:"user_id"`
	TotalPrice string `json:"total_price"`
}

type orderItemPayload struct {
	OrderID    int64  `json:"order_id,omitempty"`
	MenuItemID int64  `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
	Price      string `json:"price"`
}

func newOrderItemPayloads(items []models.OrderItem) []orderItemPayload {
	out := make([]orderItemPayload, 0, len(items))
	for _, it := range items {
		out = append(out, orderItemPayload{
			OrderID:    it.OrderID,
			MenuItemID: it.MenuItemID,
			Quantity:   it.Quantity,
			Price:      it.Price.StringFixed(2),
		})
	}
	return out
}

var rowValidator = validation.New()

// decodeRows unmarshals a JSON array and validates every element.
func decodeRows[T any](entity string, body []byte) ([]T, error) {
	var rows []T
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &DecodeError{Entity: entity, Err: err}
	}
	for i := range rows {
		if err := rowValidator.Struct(rows[i]); err != nil {
			return nil, &DecodeError{Entity: entity, Err: err}
		}
	}
	return rows, nil
}

// decodeRow unmarshals and validates a single JSON object.
func decodeRow[T any](entity string, body []byte) (T, error) {
	var row T
	if err := json.Unmarshal(body, &row); err != nil {
		return row, &DecodeError{Entity: entity, Err: err}
	}
	if err := rowValidator.Struct(row); err != nil {
		return row, &DecodeError{Entity: entity, Err: err}
	}
	return row, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
