package repositories

import (
	"context"

	"cardapio/internal/models"
)

// MenuRepository defines the interface for menu item data access.
type MenuRepository interface {
	List(ctx context.Context) ([]models.MenuItem, error)
	GetByID(ctx context.Context, id int64) (*models.MenuItem, error)
	Create(ctx context.Context, item *models.MenuItem) error
	Update(ctx context.Context, item *models.MenuItem) error
}
