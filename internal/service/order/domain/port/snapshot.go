package port

import (
	"context"

	"nexus-order/internal/service/order/domain"
)

// SnapshotStore 保存订单在高风险变更前的最后已知正确状态，仅用于补偿回滚。
type SnapshotStore interface {
	// Save 覆盖该订单之前的快照。
	Save(ctx context.Context, order *domain.Order) error

	// Load 读取快照，不存在或已过期时返回 domain.ErrSnapshotNotFound。
	Load(ctx context.Context, orderID int64) (*domain.Order, error)

	// Discard 在快照被消费后删除它。
	Discard(ctx context.Context, orderID int64) error
}
