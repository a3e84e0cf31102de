package handlers

import (
	"cardapio/internal/models"
	"cardapio/internal/services"
	"cardapio/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// MenuHandler handles HTTP requests for menu items.
type MenuHandler struct {
	service  *services.MenuService
	validate *validator.Validate
	log      *logrus.Entry
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(service *services.MenuService, log *logrus.Entry) *MenuHandler {
	return &MenuHandler{
		service:  service,
		validate: validation.New(),
		log:      log,
	}
}

// RegisterRoutes registers the menu routes with the Fiber app.
func (h *MenuHandler) RegisterRoutes(router fiber.Router) {
	menuRoutes := router.Group("/menu")
	menuRoutes.Get("/", h.HandleGetMenu)
	menuRoutes.Get("/:id", h.HandleGetMenuItem)
	menuRoutes.Post("/", h.HandleCreateMenuItem)
	menuRoutes.Put("/:id", h.HandleUpdateMenuItem)
}

// MenuItemRequest is the body of create and update. Price accepts a JSON
// number or string; the image is optional and sent base64 encoded.
type MenuItemRequest struct {
	Name        string           `json:"name" validate:"required,max=100"`
	Description string           `json:"description" validate:"omitempty,max=500"`
	Price       *decimal.Decimal `json:"price"`
	ImageBase64 string           `json:"image_base64"`
	ImageName   string           `json:"image_name" validate:"required_with=ImageBase64"`
}

// missingPrice writes the 400 for a body without price. A zero price is a
// valid price, so this is checked here rather than with a required tag.
func missingPrice(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation failed",
		"errors":  fiber.Map{"price": "Field 'price' failed on the 'required' tag"},
	})
}

func (r MenuItemRequest) fields() models.MenuItemFields {
	return models.MenuItemFields{Name: r.Name, Description: r.Description, Price: *r.Price}
}

func (r MenuItemRequest) image() *services.ImageUpload {
	if r.ImageBase64 == "" {
		return nil
	}
	return &services.ImageUpload{Base64: r.ImageBase64, FileName: r.ImageName}
}

// HandleGetMenu retrieves the whole menu.
func (h *MenuHandler) HandleGetMenu(c *fiber.Ctx) error {
	items, err := h.service.ListMenuItems(c.UserContext())
	if err != nil {
		return writeError(c, h.log, "Could not retrieve menu", err)
	}
	if items == nil {
		items = []models.MenuItem{}
	}
	return c.JSON(items)
}

// HandleGetMenuItem retrieves a single menu item by its ID.
func (h *MenuHandler) HandleGetMenuItem(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Menu item ID must be a positive integer",
		})
	}

	item, err := h.service.GetMenuItem(c.UserContext(), int64(id))
	if err != nil {
		return writeError(c, h.log, "Could not retrieve menu item", err)
	}
	return c.JSON(item)
}

// HandleCreateMenuItem creates a menu item, uploading its picture first.
func (h *MenuHandler) HandleCreateMenuItem(c *fiber.Ctx) error {
	var req MenuItemRequest
	if handled, err := parseBody(c, h.validate, &req); handled {
		return err
	}
	if req.Price == nil {
		return missingPrice(c)
	}

	item, err := h.service.CreateMenuItem(c.UserContext(), req.fields(), req.image())
	if err != nil {
		return writeError(c, h.log, "Could not create menu item", err)
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

// HandleUpdateMenuItem replaces the editable fields of a menu item.
func (h *MenuHandler) HandleUpdateMenuItem(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Menu item ID must be a positive integer",
		})
	}

	var req MenuItemRequest
	if handled, err := parseBody(c, h.validate, &req); handled {
		return err
	}
	if req.Price == nil {
		return missingPrice(c)
	}

	item, err := h.service.UpdateMenuItem(c.UserContext(), int64(id), req.fields(), req.image())
	if err != nil {
		return writeError(c, h.log, "Could not update menu item", err)
	}
	return c.JSON(item)
}
