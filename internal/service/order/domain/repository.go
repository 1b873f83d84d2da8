// internal/service/order/domain/repository.go
package domain

import "context"

// OrderRepository 定义了订单聚合的持久化接口。
// 它位于领域层，但由基础设施层实现；存储层错误统一包装为 ErrStorage。
type OrderRepository interface {
	// Create 持久化一个新订单，并回填生成的 ID。
	Create(ctx context.Context, order *Order) error

	// FindByID 根据 ID 查找一个订单，不存在时返回 ErrOrderNotFound。
	FindByID(ctx context.Context, id int64) (*Order, error)

	// Update 在单个订单的原子范围内执行 mutate 并保存结果。
	Update(ctx context.Context, id int64, mutate func(*Order) error) (*Order, error)

	// Delete 删除订单，不存在时返回 ErrOrderNotFound。
	Delete(ctx context.Context, id int64) error

	// FindByCustomer 返回某个客户的全部订单。
	FindByCustomer(ctx context.Context, customerID int64) ([]*Order, error)

	// Restore 按快照中的 ID 整体写回订单（存在则覆盖，不存在则重新插入），供补偿使用。
	Restore(ctx context.Context, order *Order) error
}
