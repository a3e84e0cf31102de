package handlers

import (
	"cardapio/internal/middleware"
	"cardapio/internal/models"
	"cardapio/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service *services.OrderService
	log     *logrus.Entry
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, log *logrus.Entry) *OrderHandler {
	return &OrderHandler{
		service: service,
		log:     log,
	}
}

// RegisterRoutes registers the order routes with the Fiber app.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", h.HandleGetOrders)
	orderRoutes.Post("/", h.HandleCreateOrder)
}

// HandleGetOrders lists the caller's orders, newest first.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	entry := middleware.Session(c)
	orders, err := h.service.ListOrders(c.UserContext(), entry.Session.User.ID)
	if err != nil {
		return writeError(c, h.log, "Could not retrieve orders", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return c.JSON(orders)
}

// HandleCreateOrder places an order from the caller's cart. The cart is
// emptied only when the order and all of its items were stored.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	entry := middleware.Session(c)

	order, err := h.service.Submit(c.UserContext(), entry.Cart, entry.Session.User.ID)
	if err != nil {
		return writeError(c, h.log, "Could not place order", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Order placed",
		"order":   order,
		"total":   h.service.Money(order.TotalPrice).String(),
	})
}
