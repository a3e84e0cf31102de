package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cardapio/internal/cart"
	"cardapio/internal/metrics"
	"cardapio/internal/models"
	"cardapio/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/currency"
)

// SubmitState is a step of an order submission.
type SubmitState int

const (
	StateIdle SubmitState = iota
	StateValidating
	StateEmptyCart
	StateCreatingOrder
	StateOrderCreationFailed
	StateCreatingItems
	StateItemsFailed
	StateCompleted
)

var submitStateNames = [...]string{
	"Idle", "Validating", "EmptyCart", "CreatingOrder",
	"OrderCreationFailed", "CreatingItems", "ItemsFailed", "Completed",
}

func (s SubmitState) String() string {
	if int(s) < len(submitStateNames) {
		return submitStateNames[s]
	}
	return fmt.Sprintf("SubmitState(%d)", int(s))
}

// IsTerminal reports whether the submission ends in s.
func (s SubmitState) IsTerminal() bool {
	switch s {
	case StateEmptyCart, StateOrderCreationFailed, StateItemsFailed, StateCompleted:
		return true
	}
	return false
}

// StateObserver is called synchronously on every state transition.
type StateObserver func(c *cart.Cart, state SubmitState)

// EventPublisher delivers integration events.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// OrderPlacedRoutingKey is the routing key of OrderPlacedEvent.
const OrderPlacedRoutingKey = "order.placed"

// OrderPlacedEvent is published after an order and its items are stored.
type OrderPlacedEvent struct {
	OrderID    int64              `json:"order_id"`
	UserID     string             `json:"user_id"`
	TotalPrice string             `json:"total_price"`
	Currency   string             `json:"currency"`
	Items      []models.OrderItem `json:"items"`
	PlacedAt   time.Time          `json:"placed_at"`
}

// OrderConfig tunes OrderService.
type OrderConfig struct {
	// StepTimeout bounds every remote call of a submission.
	StepTimeout time.Duration
	// Compensate deletes an order whose items could not be stored.
	Compensate bool
	Currency   currency.Unit
}

// OrderService turns carts into orders.
type OrderService struct {
	orders    repositories.OrderRepository
	publisher EventPublisher
	cfg       OrderConfig
	log       *logrus.Entry

	inflight sync.Map // *cart.Cart -> struct{}

	mu        sync.RWMutex
	observers []StateObserver
}

// NewOrderService creates a new OrderService. publisher may be nil.
func NewOrderService(orders repositories.OrderRepository, publisher EventPublisher, cfg OrderConfig, log *logrus.Entry) *OrderService {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 15 * time.Second
	}
	return &OrderService{
		orders:    orders,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// Observe registers fn for state transitions of every submission.
func (s *OrderService) Observe(fn StateObserver) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Submit stores the contents of c as an order of userID and, on success,
// takes the submitted lines out of the cart. On any failure the cart is
// left untouched. Only one submission per cart runs at a time; a second
// one fails with ErrSubmissionInProgress.
func (s *OrderService) Submit(ctx context.Context, c *cart.Cart, userID string) (*models.Order, error) {
	if _, busy := s.inflight.LoadOrStore(c, struct{}{}); busy {
		return nil, ErrSubmissionInProgress
	}
	defer s.inflight.Delete(c)

	s.transition(c, StateValidating)

	snap := c.Snapshot()
	if len(snap.Lines) == 0 {
		s.finish(c, StateEmptyCart)
		return nil, ErrEmptyCart
	}

	order := &models.Order{UserID: userID, TotalPrice: snap.Total}
	for _, l := range snap.Lines {
		order.Items = append(order.Items, models.OrderItem{
			MenuItemID: l.ItemID,
			Quantity:   l.Quantity,
			Price:      l.UnitPrice,
		})
	}
	log := s.log.WithField("user_id", userID)

	if atomic, ok := s.orders.(repositories.AtomicOrderWriter); ok {
		s.transition(c, StateCreatingOrder)
		err := s.step(ctx, "place_order", func(ctx context.Context) error {
			return atomic.PlaceOrder(ctx, order)
		})
		if err != nil {
			log.WithError(err).WithField("step", "place_order").Error("order creation failed")
			s.finish(c, StateOrderCreationFailed)
			return nil, &RemoteWriteError{Kind: KindOrderCreation, Err: err}
		}
		return s.complete(ctx, c, snap, order, log)
	}

	items := order.Items
	order.Items = nil

	s.transition(c, StateCreatingOrder)
	err := s.step(ctx, "create_order", func(ctx context.Context) error {
		return s.orders.CreateOrder(ctx, order)
	})
	if err != nil {
		log.WithError(err).WithField("step", "create_order").Error("order creation failed")
		s.finish(c, StateOrderCreationFailed)
		return nil, &RemoteWriteError{Kind: KindOrderCreation, Err: err}
	}

	for i := range items {
		items[i].OrderID = order.ID
	}

	s.transition(c, StateCreatingItems)
	err = s.step(ctx, "create_order_items", func(ctx context.Context) error {
		return s.orders.CreateOrderItems(ctx, items)
	})
	if err != nil {
		log = log.WithField("order_id", order.ID)
		log.WithError(err).WithField("step", "create_order_items").Error("order items insert failed")
		werr := &RemoteWriteError{Kind: KindOrderItemsPersist, OrderID: order.ID, Orphaned: true, Err: err}
		if s.cfg.Compensate && s.compensate(ctx, order.ID, log) {
			werr.Orphaned = false
		}
		s.finish(c, StateItemsFailed)
		return nil, werr
	}

	order.Items = items
	return s.complete(ctx, c, snap, order, log)
}

// ListOrders returns the orders of userID, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

func (s *OrderService) complete(ctx context.Context, c *cart.Cart, snap cart.Snapshot, order *models.Order, log *logrus.Entry) (*models.Order, error) {
	c.Subtract(snap.Lines)
	s.finish(c, StateCompleted)
	log.WithField("order_id", order.ID).WithField("total", order.TotalPrice.StringFixed(2)).Info("order placed")
	s.publish(ctx, order, log)
	return order, nil
}

// step runs fn with the per-step timeout.
func (s *OrderService) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	metrics.ObserveOrderStep(name, time.Since(start))
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s: %w", name, s.cfg.StepTimeout, err)
	}
	return err
}

// compensate deletes an order left without items and reports success.
// It uses its own deadline so a cancelled request still cleans up.
func (s *OrderService) compensate(ctx context.Context, orderID int64, log *logrus.Entry) bool {
	err := s.step(context.WithoutCancel(ctx), "delete_order", func(ctx context.Context) error {
		return s.orders.DeleteOrder(ctx, orderID)
	})
	if err != nil {
		log.WithError(err).Warn("compensating delete failed; order left for reconciliation")
		return false
	}
	metrics.RecordOrphansDeleted(1)
	log.Info("orphaned order deleted")
	return true
}

func (s *OrderService) publish(ctx context.Context, order *models.Order, log *logrus.Entry) {
	if s.publisher == nil {
		return
	}

	body, err := json.Marshal(OrderPlacedEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		TotalPrice: order.TotalPrice.StringFixed(2),
		Currency:   s.cfg.Currency.String(),
		Items:      order.Items,
		PlacedAt:   order.CreatedAt,
	})
	if err != nil {
		log.WithError(err).Warn("failed to marshal order placed event")
		return
	}

	err = s.step(context.WithoutCancel(ctx), "publish", func(ctx context.Context) error {
		return s.publisher.Publish(ctx, OrderPlacedRoutingKey, body)
	})
	if err != nil {
		log.WithError(err).Warn("failed to publish order placed event")
	}
}

func (s *OrderService) transition(c *cart.Cart, state SubmitState) {
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()

	for _, fn := range observers {
		fn(c, state)
	}
}

func (s *OrderService) finish(c *cart.Cart, state SubmitState) {
	s.transition(c, state)
	metrics.RecordSubmission(state.String())
}

// Money returns amount in the configured currency.
func (s *OrderService) Money(amount decimal.Decimal) models.Money {
	return models.NewMoney(amount, s.cfg.Currency)
}
