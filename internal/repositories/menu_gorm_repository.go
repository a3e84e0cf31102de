package repositories

import (
	"context"
	"errors"
	"fmt"

	"cardapio/internal/models"

	"gorm.io/gorm"
)

// GORMMenuRepository is a GORM implementation of MenuRepository.
type GORMMenuRepository struct {
	db *gorm.DB
}

// NewGORMMenuRepository creates a new instance of GORMMenuRepository.
func NewGORMMenuRepository(db *gorm.DB) *GORMMenuRepository {
	return &GORMMenuRepository{
		db: db,
	}
}

// List retrieves every menu item, oldest first.
func (r *GORMMenuRepository) List(ctx context.Context) ([]models.MenuItem, error) {
	var items []models.MenuItem
	if err := r.db.WithContext(ctx).Order("id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list menu items: %w", err)
	}
	return items, nil
}

// GetByID retrieves a single menu item.
func (r *GORMMenuRepository) GetByID(ctx context.Context, id int64) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("menu item %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get menu item %d: %w", id, err)
	}
	return &item, nil
}

// Create inserts item and fills in its ID and CreatedAt.
func (r *GORMMenuRepository) Create(ctx context.Context, item *models.MenuItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to create menu item: %w", err)
	}
	return nil
}

// Update writes the editable columns of an existing item.
func (r *GORMMenuRepository) Update(ctx context.Context, item *models.MenuItem) error {
	res := r.db.WithContext(ctx).Model(&models.MenuItem{}).
		Where("id = ?", item.ID).
		Select("name", "description", "price", "image_url").
		Updates(item)
	if res.Error != nil {
		return fmt.Errorf("failed to update menu item %d: %w", item.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Updates reports no error for a missing row.
		return fmt.Errorf("menu item %d: %w", item.ID, ErrNotFound)
	}
	return nil
}
