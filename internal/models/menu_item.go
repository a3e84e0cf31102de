package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MenuItem represents a dish or drink on the restaurant menu.
type MenuItem struct {
	ID          int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string          `json:"name" gorm:"type:varchar(100);not null" validate:"required,max=100"`
	Description string          `json:"description" validate:"omitempty,max=500"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(10,2);not null" validate:"gte=0"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MenuItemFields is the writable subset of a MenuItem.
type MenuItemFields struct {
	Name        string          `json:"name" validate:"required,max=100"`
	Description string          `json:"description" validate:"omitempty,max=500"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
}

// Apply copies the writable fields onto item.
func (f MenuItemFields) Apply(item *MenuItem) {
	item.Name = f.Name
	item.Description = f.Description
	item.Price = f.Price.Round(2)
}
