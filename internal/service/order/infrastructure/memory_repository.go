// internal/service/order/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"nexus-order/internal/service/order/domain"
)

// MemoryOrderRepository 是进程内的订单存储，用于本地开发（STORE_DRIVER=memory）和测试。
// 所有读写都在同一把锁下完成，读者不会看到部分写入的订单。
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	nextID int64
	orders map[int64]*domain.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[int64]*domain.Order)}
}

func (r *MemoryOrderRepository) Create(_ context.Context, order *domain.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now()
	order.ID = r.nextID
	order.CreatedAt, order.UpdatedAt = now, now
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *MemoryOrderRepository) FindByID(_ context.Context, id int64) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrOrderNotFound, "order %d", id)
	}
	return o.Clone(), nil
}

func (r *MemoryOrderRepository) Update(_ context.Context, id int64, mutate func(*domain.Order) error) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrOrderNotFound, "order %d", id)
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.ID = id
	next.CustomerID = current.CustomerID
	next.UpdatedAt = time.Now()
	r.orders[id] = next
	return next.Clone(), nil
}

func (r *MemoryOrderRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %d", id)
	}
	delete(r.orders, id)
	return nil
}

func (r *MemoryOrderRepository) FindByCustomer(_ context.Context, customerID int64) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryOrderRepository) Restore(_ context.Context, order *domain.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.ID <= 0 {
		r.nextID++
		order.ID = r.nextID
	} else if order.ID > r.nextID {
		r.nextID = order.ID
	}
	r.orders[order.ID] = order.Clone()
	return nil
}
