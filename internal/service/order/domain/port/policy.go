package port

import (
	"context"

	"nexus-order/internal/service/order/domain"
)

// UpdatePolicy 对更新命令做业务层面的准入判断（例如限制运维改写状态）。
type UpdatePolicy interface {
	// Allow 拒绝时返回包装了 domain.ErrPolicyRejected 的错误。
	Allow(ctx context.Context, current, proposed *domain.Order) error
}
