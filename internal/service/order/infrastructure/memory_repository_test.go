package infrastructure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-order/internal/service/order/domain"
)

func newPendingOrder(t *testing.T, customerID int64) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder(customerID, 3, 100)
	require.NoError(t, err)
	return o
}

func TestMemoryOrderRepository_CRUD(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()

	o := newPendingOrder(t, 7)
	require.NoError(t, repo.Create(ctx, o))
	assert.Equal(t, int64(1), o.ID)

	got, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	got.Amount = 1 // 返回的是副本
	again, _ := repo.FindByID(ctx, 1)
	assert.Equal(t, int64(100), again.Amount)

	updated, err := repo.Update(ctx, 1, func(o *domain.Order) error {
		o.Status = domain.StatePaid
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatePaid, updated.Status)

	require.NoError(t, repo.Delete(ctx, 1))
	_, err = repo.FindByID(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, 1), domain.ErrOrderNotFound)
}

func TestMemoryOrderRepository_UpdateRejectsInvalidState(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newPendingOrder(t, 7)))

	_, err := repo.Update(ctx, 1, func(o *domain.Order) error {
		o.Status = "shipped"
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	got, _ := repo.FindByID(ctx, 1)
	assert.Equal(t, domain.StatePending, got.Status)

	_, err = repo.Update(ctx, 42, func(*domain.Order) error { return nil })
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestMemoryOrderRepository_FindByCustomer(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()
	for _, c := range []int64{7, 8, 7} {
		require.NoError(t, repo.Create(ctx, newPendingOrder(t, c)))
	}

	orders, err := repo.FindByCustomer(ctx, 7)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, int64(1), orders[0].ID)
	assert.Equal(t, int64(3), orders[1].ID)

	none, err := repo.FindByCustomer(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryOrderRepository_RestoreKeepsID(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()
	o := newPendingOrder(t, 7)
	require.NoError(t, repo.Create(ctx, o))
	snapshot := o.Clone()

	require.NoError(t, repo.Delete(ctx, o.ID))
	require.NoError(t, repo.Restore(ctx, snapshot))

	got, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Amount, got.Amount)

	// 恢复后新建的订单不能复用已存在的 ID
	next := newPendingOrder(t, 8)
	require.NoError(t, repo.Create(ctx, next))
	assert.NotEqual(t, o.ID, next.ID)
}
