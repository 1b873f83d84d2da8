package port

import "context"

// OrderLocker 串行化同一订单 ID 上的 快照-变更-回滚 临界区。
type OrderLocker interface {
	// Lock 阻塞直到获得锁或 ctx 结束，返回的 unlock 必须被调用且只调用一次。
	Lock(ctx context.Context, orderID int64) (unlock func(), err error)
}
