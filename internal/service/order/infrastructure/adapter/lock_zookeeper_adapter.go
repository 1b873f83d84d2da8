package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"

	"nexus-order/internal/pkg/logger"
	"nexus-order/internal/zookeeper"
)

// ZookeeperOrderLocker 在多实例部署时跨进程串行化同一订单的变更
type ZookeeperOrderLocker struct {
	conn    *zk.Conn
	timeout time.Duration
}

func NewZookeeperOrderLocker(conn *zk.Conn, timeout time.Duration) *ZookeeperOrderLocker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ZookeeperOrderLocker{conn: conn, timeout: timeout}
}

func orderLockResource(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

func (l *ZookeeperOrderLocker) Lock(ctx context.Context, orderID int64) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, orderLockResource(orderID))
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx, l.timeout); err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("order_id", orderID).Msg("Failed to release order lock")
		}
	}, nil
}
