package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cardapio/internal/models"
)

// MockMenuRepository is an in-memory implementation of MenuRepository.
type MockMenuRepository struct {
	items  map[int64]models.MenuItem
	nextID int64
	mu     sync.RWMutex
}

// NewMockMenuRepository creates a new instance of MockMenuRepository.
func NewMockMenuRepository() *MockMenuRepository {
	return &MockMenuRepository{
		items: make(map[int64]models.MenuItem),
	}
}

// List returns all menu items ordered by ID.
func (r *MockMenuRepository) List(_ context.Context) ([]models.MenuItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	itemList := make([]models.MenuItem, 0, len(r.items))
	for _, item := range r.items {
		itemList = append(itemList, item)
	}
	sort.Slice(itemList, func(i, j int) bool { return itemList[i].ID < itemList[j].ID })
	return itemList, nil
}

// GetByID returns a menu item by its ID.
func (r *MockMenuRepository) GetByID(_ context.Context, id int64) (*models.MenuItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("menu item %d: %w", id, ErrNotFound)
	}
	return &item, nil
}

// Create adds a new menu item.
func (r *MockMenuRepository) Create(_ context.Context, item *models.MenuItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	item.ID = r.nextID
	item.CreatedAt = time.Now()
	r.items[item.ID] = *item
	return nil
}

// Update modifies an existing menu item.
func (r *MockMenuRepository) Update(_ context.Context, item *models.MenuItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[item.ID]
	if !ok {
		return fmt.Errorf("menu item %d: %w", item.ID, ErrNotFound)
	}
	item.CreatedAt = existing.CreatedAt
	r.items[item.ID] = *item
	return nil
}
