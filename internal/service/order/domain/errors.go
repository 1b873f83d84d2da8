package domain

import "github.com/pkg/errors"

// 订单领域的错误分类，上层通过 errors.Is 判断类别并映射为对外的错误码。
var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrOrderNotFound     = errors.New("order not found")
	ErrStorage           = errors.New("order storage failure")
	ErrEventBus          = errors.New("event bus failure")
	ErrSnapshotNotFound  = errors.New("order snapshot not found")
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrPolicyRejected    = errors.New("order update rejected by policy")

	// ErrRolledBack 表示变更失败，但订单已经从快照恢复到变更前的状态
	ErrRolledBack = errors.New("mutation failed, rolled back to previous state")
	// ErrRollbackFailed 比 ErrRolledBack 更严重：快照缺失/损坏或恢复写入失败
	ErrRollbackFailed = errors.New("rollback failed, order state may be inconsistent")
)
