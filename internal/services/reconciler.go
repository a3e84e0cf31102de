package services

import (
	"context"
	"fmt"
	"time"

	"cardapio/internal/metrics"
	"cardapio/internal/repositories"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Reconciler deletes orders that were created but never received their
// items. Orders younger than the grace period are left alone because their
// submission may still be running.
type Reconciler struct {
	orders repositories.OrderRepository
	grace  time.Duration
	log    *logrus.Entry
	now    func() time.Time
}

// NewReconciler creates a new Reconciler.
func NewReconciler(orders repositories.OrderRepository, grace time.Duration, log *logrus.Entry) *Reconciler {
	return &Reconciler{orders: orders, grace: grace, log: log, now: time.Now}
}

// Sweep deletes orphaned orders older than the grace period and returns
// how many were removed. It keeps going past individual delete failures.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	orphans, err := r.orders.ListOrphaned(ctx, r.now().Add(-r.grace))
	if err != nil {
		return 0, fmt.Errorf("list orphaned orders: %w", err)
	}

	deleted := 0
	var firstErr error
	for _, o := range orphans {
		if err := r.orders.DeleteOrder(ctx, o.ID); err != nil {
			r.log.WithError(err).WithField("order_id", o.ID).Warn("failed to delete orphaned order")
			if firstErr == nil {
				firstErr = fmt.Errorf("delete order %d: %w", o.ID, err)
			}
			continue
		}
		deleted++
		r.log.WithFields(logrus.Fields{
			"order_id": o.ID,
			"user_id":  o.UserID,
		}).Info("orphaned order deleted")
	}

	metrics.RecordOrphansDeleted(deleted)
	return deleted, firstErr
}

// Schedule registers Sweep on c with spec, e.g. "@every 5m". Each run is
// bounded by timeout.
func (r *Reconciler) Schedule(c *cron.Cron, spec string, timeout time.Duration) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		n, err := r.Sweep(ctx)
		if err != nil {
			r.log.WithError(err).Error("reconciliation sweep failed")
			return
		}
		if n > 0 {
			r.log.WithField("deleted", n).Info("reconciliation sweep finished")
		}
	})
	if err != nil {
		return 0, fmt.Errorf("schedule reconciler %q: %w", spec, err)
	}
	return id, nil
}
