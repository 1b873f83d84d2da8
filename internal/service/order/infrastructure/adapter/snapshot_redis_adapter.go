package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"nexus-order/internal/service/order/domain"
)

const snapshotKeyPrefix = "order_snapshot:"

// snapshotRecord 是快照在 Redis 中的 JSON 形态
type snapshotRecord struct {
	ID         int64        `json:"id"`
	CustomerID int64        `json:"customerId"`
	ProductID  int64        `json:"productId"`
	Amount     int64        `json:"amount"`
	Status     domain.State `json:"status"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// SnapshotRedisAdapter 实现了 port.SnapshotStore 接口。
// 每个订单只保留一份快照，键为 order_snapshot:{id}，带 TTL 防止残留。
type SnapshotRedisAdapter struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewSnapshotRedisAdapter ttl <= 0 表示快照不过期
func NewSnapshotRedisAdapter(client *goredis.Client, ttl time.Duration) *SnapshotRedisAdapter {
	if ttl < 0 {
		ttl = 0
	}
	return &SnapshotRedisAdapter{client: client, ttl: ttl}
}

func snapshotKey(orderID int64) string {
	return fmt.Sprintf("%s%d", snapshotKeyPrefix, orderID)
}

func (a *SnapshotRedisAdapter) Save(ctx context.Context, order *domain.Order) error {
	data, err := json.Marshal(snapshotRecord{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		ProductID:  order.ProductID,
		Amount:     order.Amount,
		Status:     order.Status,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "marshal order snapshot")
	}
	if err := a.client.Set(ctx, snapshotKey(order.ID), data, a.ttl).Err(); err != nil {
		return errors.Wrapf(domain.ErrStorage, "save snapshot for order %d: %v", order.ID, err)
	}
	return nil
}

func (a *SnapshotRedisAdapter) Load(ctx context.Context, orderID int64) (*domain.Order, error) {
	data, err := a.client.Get(ctx, snapshotKey(orderID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, errors.Wrapf(domain.ErrSnapshotNotFound, "order %d", orderID)
		}
		return nil, errors.Wrapf(domain.ErrStorage, "load snapshot for order %d: %v", orderID, err)
	}

	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, "corrupt snapshot for order %d", orderID)
	}
	return &domain.Order{
		ID:         rec.ID,
		CustomerID: rec.CustomerID,
		ProductID:  rec.ProductID,
		Amount:     rec.Amount,
		Status:     rec.Status,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}

func (a *SnapshotRedisAdapter) Discard(ctx context.Context, orderID int64) error {
	if err := a.client.Del(ctx, snapshotKey(orderID)).Err(); err != nil {
		return errors.Wrapf(domain.ErrStorage, "discard snapshot for order %d: %v", orderID, err)
	}
	return nil
}
