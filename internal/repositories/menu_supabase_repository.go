package repositories

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cardapio/internal/models"
	"cardapio/pkg/supabase"
)

const menuItemsTable = "menu_items"

// SupabaseMenuRepository reads and writes menu_items through PostgREST.
type SupabaseMenuRepository struct {
	client *supabase.Client
}

// NewSupabaseMenuRepository creates a new instance of SupabaseMenuRepository.
func NewSupabaseMenuRepository(client *supabase.Client) *SupabaseMenuRepository {
	return &SupabaseMenuRepository{client: client}
}

// List retrieves every menu item, oldest first.
func (r *SupabaseMenuRepository) List(ctx context.Context) ([]models.MenuItem, error) {
	resp, err := r.client.From(menuItemsTable).Select("*").Order("id", true).Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list menu items: %w", err)
	}

	rows, err := decodeRows[menuItemRow](menuItemsTable, resp.Body)
	if err != nil {
		return nil, err
	}

	items := make([]models.MenuItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.model())
	}
	return items, nil
}

// GetByID retrieves a single menu item.
func (r *SupabaseMenuRepository) GetByID(ctx context.Context, id int64) (*models.MenuItem, error) {
	resp, err := r.client.From(menuItemsTable).Select("*").Eq("id", id).Single().Execute(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("menu item %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get menu item %d: %w", id, err)
	}

	row, err := decodeRow[menuItemRow](menuItemsTable, resp.Body)
	if err != nil {
		return nil, err
	}
	item := row.model()
	return &item, nil
}

// Create inserts item and fills in the columns assigned by the database.
func (r *SupabaseMenuRepository) Create(ctx context.Context, item *models.MenuItem) error {
	resp, err := r.client.From(menuItemsTable).Single().ExecuteInsert(ctx, newMenuItemPayload(item))
	if err != nil {
		return fmt.Errorf("failed to create menu item: %w", err)
	}

	row, err := decodeRow[menuItemRow](menuItemsTable, resp.Body)
	if err != nil {
		return err
	}
	*item = row.model()
	return nil
}

// Update writes the editable columns of an existing item.
func (r *SupabaseMenuRepository) Update(ctx context.Context, item *models.MenuItem) error {
	resp, err := r.client.From(menuItemsTable).Eq("id", item.ID).ExecuteUpdate(ctx, newMenuItemPayload(item))
	if err != nil {
		return fmt.Errorf("failed to update menu item %d: %w", item.ID, err)
	}

	rows, err := decodeRows[menuItemRow](menuItemsTable, resp.Body)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("menu item %d: %w", item.ID, ErrNotFound)
	}
	*item = rows[0].model()
	return nil
}

// isNoRows reports the PostgREST answer to a single-object request that
// matched nothing.
func isNoRows(err error) bool {
	var apiErr *supabase.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotAcceptable || apiErr.Code == "PGRST116"
}
