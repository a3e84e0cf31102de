package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem represents a single line of a placed order.
type OrderItem struct {
	ID         int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID    int64           `json:"order_id" gorm:"index;not null"`
	MenuItemID int64           `json:"menu_item_id" gorm:"not null"`
	Quantity   int             `json:"quantity" gorm:"not null"`
	Price      decimal.Decimal `json:"price" gorm:"type:numeric(10,2);not null"` // Price at the time of order
}

// Order represents a customer order.
type Order struct {
	ID         int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID     string          `json:"user_id" gorm:"type:varchar(36);index;not null"`
	TotalPrice decimal.Decimal `json:"total_price" gorm:"type:numeric(10,2);not null"`
	Items      []OrderItem     `json:"items,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time       `json:"created_at"`
}
