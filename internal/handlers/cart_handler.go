package handlers

import (
	"cardapio/internal/cart"
	"cardapio/internal/middleware"
	"cardapio/internal/models"
	"cardapio/internal/services"
	"cardapio/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/currency"
)

// CartHandler exposes the cart of the caller's session.
type CartHandler struct {
	menu     *services.MenuService
	unit     currency.Unit
	validate *validator.Validate
	log      *logrus.Entry
}

// NewCartHandler creates a new CartHandler. Items are looked up in menu so
// the cart snapshots the current name and price.
func NewCartHandler(menu *services.MenuService, unit currency.Unit, log *logrus.Entry) *CartHandler {
	return &CartHandler{
		menu:     menu,
		unit:     unit,
		validate: validation.New(),
		log:      log,
	}
}

// RegisterRoutes registers the cart routes with the Fiber app.
func (h *CartHandler) RegisterRoutes(router fiber.Router) {
	cartRoutes := router.Group("/cart")
	cartRoutes.Get("/", h.HandleGetCart)
	cartRoutes.Post("/items", h.HandleAddItem)
	cartRoutes.Delete("/items/:id", h.HandleRemoveItem)
	cartRoutes.Delete("/", h.HandleClearCart)
}

// AddItemRequest is the body of POST /cart/items.
type AddItemRequest struct {
	MenuItemID int64 `json:"menu_item_id" validate:"required,gt=0"`
	Quantity   int   `json:"quantity" validate:"omitempty,gte=1,lte=99"`
}

type cartLine struct {
	MenuItemID int64  `json:"menu_item_id"`
	Name       string `json:"name"`
	UnitPrice  string `json:"unit_price"`
	Quantity   int    `json:"quantity"`
	Subtotal   string `json:"subtotal"`
}

type cartResponse struct {
	Lines   []cartLine `json:"lines"`
	Total   string     `json:"total"`
	Display string     `json:"display"`
}

func (h *CartHandler) render(snap cart.Snapshot) cartResponse {
	resp := cartResponse{
		Lines:   make([]cartLine, 0, len(snap.Lines)),
		Total:   snap.Total.StringFixed(2),
		Display: models.NewMoney(snap.Total, h.unit).String(),
	}
	for _, l := range snap.Lines {
		resp.Lines = append(resp.Lines, cartLine{
			MenuItemID: l.ItemID,
			Name:       l.Name,
			UnitPrice:  l.UnitPrice.StringFixed(2),
			Quantity:   l.Quantity,
			Subtotal:   l.Subtotal().StringFixed(2),
		})
	}
	return resp
}

// HandleGetCart returns the cart contents and total.
func (h *CartHandler) HandleGetCart(c *fiber.Ctx) error {
	return c.JSON(h.render(middleware.Session(c).Cart.Snapshot()))
}

// HandleAddItem adds units of a menu item to the cart.
func (h *CartHandler) HandleAddItem(c *fiber.Ctx) error {
	var req AddItemRequest
	if handled, err := parseBody(c, h.validate, &req); handled {
		return err
	}

	item, err := h.menu.GetMenuItem(c.UserContext(), req.MenuItemID)
	if err != nil {
		return writeError(c, h.log, "Menu item not available", err)
	}

	crt := middleware.Session(c).Cart
	crt.Add(*item, req.Quantity)
	return c.JSON(h.render(crt.Snapshot()))
}

// HandleRemoveItem removes the line of a menu item. An item that is not in
// the cart leaves it unchanged.
func (h *CartHandler) HandleRemoveItem(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Menu item ID must be a positive integer",
		})
	}

	crt := middleware.Session(c).Cart
	crt.Remove(int64(id))
	return c.JSON(h.render(crt.Snapshot()))
}

// HandleClearCart empties the cart.
func (h *CartHandler) HandleClearCart(c *fiber.Ctx) error {
	crt := middleware.Session(c).Cart
	crt.Clear()
	return c.JSON(h.render(crt.Snapshot()))
}
