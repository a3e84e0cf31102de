package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// OrderPlacedHandler returns a consumer for OrderPlacedEvent messages that
// hands each placed order to the kitchen log. Other routing keys are acked
// and ignored.
func OrderPlacedHandler(log *logrus.Entry) func(ctx context.Context, routingKey string, body []byte) error {
	return func(_ context.Context, routingKey string, body []byte) error {
		if routingKey != OrderPlacedRoutingKey {
			return nil
		}

		var ev OrderPlacedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", routingKey, err)
		}
		if ev.OrderID == 0 {
			return fmt.Errorf("decode %s: missing order_id", routingKey)
		}

		units := 0
		for _, it := range ev.Items {
			units += it.Quantity
		}
		log.WithFields(logrus.Fields{
			"order_id": ev.OrderID,
			"user_id":  ev.UserID,
			"lines":    len(ev.Items),
			"units":    units,
			"total":    ev.Currency + " " + ev.TotalPrice,
		}).Info("order received by kitchen")
		return nil
	}
}
