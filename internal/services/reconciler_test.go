package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cardapio/internal/models"
	"cardapio/internal/repositories"
	"cardapio/internal/services"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrder(t *testing.T, repo *repositories.MockOrderRepository, at time.Time, withItems bool) int64 {
	t.Helper()
	repo.SetClock(func() time.Time { return at })

	order := &models.Order{UserID: "user-1", TotalPrice: decimal.RequireFromString("10.00")}
	require.NoError(t, repo.CreateOrder(context.Background(), order))
	if withItems {
		require.NoError(t, repo.CreateOrderItems(context.Background(), []models.OrderItem{
			{OrderID: order.ID, MenuItemID: 1, Quantity: 1, Price: decimal.RequireFromString("10.00")},
		}))
	}
	return order.ID
}

func TestReconciler_Sweep(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	now := time.Now()

	oldOrphan := seedOrder(t, repo, now.Add(-time.Hour), false)
	freshOrphan := seedOrder(t, repo, now.Add(-time.Minute), false)
	complete := seedOrder(t, repo, now.Add(-time.Hour), true)

	r := services.NewReconciler(repo, 10*time.Minute, testLog())
	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var ids []int64
	for _, o := range repo.Orders() {
		ids = append(ids, o.ID)
	}
	assert.NotContains(t, ids, oldOrphan)
	assert.ElementsMatch(t, []int64{freshOrphan, complete}, ids)
}

func TestReconciler_SweepContinuesPastFailures(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	now := time.Now()
	first := seedOrder(t, repo, now.Add(-2*time.Hour), false)
	seedOrder(t, repo, now.Add(-time.Hour), false)

	repo.Hook = func(_ context.Context, op string) error {
		if op == repositories.OpDeleteOrder && repo.Calls(repositories.OpDeleteOrder) == 1 {
			return errors.New("statement timeout")
		}
		return nil
	}

	n, err := services.NewReconciler(repo, time.Minute, testLog()).Sweep(context.Background())

	assert.Error(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, repo.Orders(), 1)
	assert.Equal(t, first, repo.Orders()[0].ID)
}

func TestReconciler_Schedule(t *testing.T) {
	r := services.NewReconciler(repositories.NewMockOrderRepository(), time.Minute, testLog())
	c := cron.New()

	id, err := r.Schedule(c, "@every 5m", time.Second)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, c.Entries(), 1)

	_, err = r.Schedule(c, "not a schedule", time.Second)
	assert.Error(t, err)
}
