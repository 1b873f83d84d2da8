// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"nexus-order/internal/service/order/domain"
)

// GormOrderRepository 是 domain.OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository 创建一个新的 GORM 仓储实例
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	model := FromDomainOrder(order)
	model.ID = 0
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return storageError(err, "create order")
	}
	order.ID = model.ID
	order.CreatedAt = model.CreatedAt
	order.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrOrderNotFound, "order %d", id)
		}
		return nil, storageError(err, "find order")
	}
	return ToDomainOrder(&model), nil
}

// Update 在事务中以 SELECT ... FOR UPDATE 锁住行，执行 mutate 后整体保存，
// 并发读者只会看到修改前或修改后的完整记录。
func (r *GormOrderRepository) Update(ctx context.Context, id int64, mutate func(*domain.Order) error) (*domain.Order, error) {
	var (
		updated *domain.Order
		inner   error
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, inner = r.updateLocked(tx, id, mutate)
		return inner
	})
	if err != nil {
		if inner == nil {
			// BEGIN 或 COMMIT 失败，gorm 返回的是驱动原始错误
			return nil, storageError(err, "update order")
		}
		return nil, inner
	}
	return updated, nil
}

func (r *GormOrderRepository) updateLocked(tx *gorm.DB, id int64, mutate func(*domain.Order) error) (*domain.Order, error) {
	var model OrderModel
	if err := lockRow(tx, id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrOrderNotFound, "order %d", id)
		}
		return nil, storageError(err, "lock order")
	}

	order := ToDomainOrder(&model)
	if err := mutate(order); err != nil {
		return nil, err
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}

	next := FromDomainOrder(order)
	next.ID = id
	next.CustomerID = model.CustomerID // customerId 创建后不可变
	if err := tx.Save(next).Error; err != nil {
		return nil, storageError(err, "save order")
	}
	return ToDomainOrder(next), nil
}

func (r *GormOrderRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&OrderModel{}, "id = ?", id)
	if result.Error != nil {
		return storageError(result.Error, "delete order")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %d", id)
	}
	return nil
}

func (r *GormOrderRepository) FindByCustomer(ctx context.Context, customerID int64) ([]*domain.Order, error) {
	var models []*OrderModel
	if err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).Order("id").Find(&models).Error; err != nil {
		return nil, storageError(err, "find orders by customer")
	}
	orders := make([]*domain.Order, len(models))
	for i, m := range models {
		orders[i] = ToDomainOrder(m)
	}
	return orders, nil
}

// Restore 以快照中的 ID 执行 upsert：行存在则覆盖全部字段，被删除则重新插入
func (r *GormOrderRepository) Restore(ctx context.Context, order *domain.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	if err := upsert(r.db.WithContext(ctx)).Create(FromDomainOrder(order)).Error; err != nil {
		return storageError(err, "restore order")
	}
	return nil
}

// restoreColumns 是 upsert 冲突时用快照覆盖的列，id 和 created_at 不变
var restoreColumns = []string{"customer_id", "product_id", "amount", "status", "updated_at"}

func upsert(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(restoreColumns),
	})
}

func lockRow(tx *gorm.DB, id int64) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).Where("id = ?", id)
}

func storageError(err error, op string) error {
	return errors.Wrapf(domain.ErrStorage, "%s: %v", op, err)
}
