package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"nexus-order/internal/service/order/domain"
	"nexus-order/internal/service/order/domain/port"
)

// 事件元数据随消息头传递，消息体只包含业务负载，与外部生产者的格式保持一致
const (
	HeaderEventID    = "event-id"
	HeaderEventTopic = "event-topic"
	HeaderOccurredAt = "occurred-at"
)

func encodeEvent(event domain.DomainEvent) ([]byte, map[string]string, error) {
	value, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "marshal %s payload", event.Topic)
	}
	headers := map[string]string{
		HeaderEventID:    event.ID,
		HeaderEventTopic: event.Topic,
		HeaderOccurredAt: event.OccurredAt.Format(time.RFC3339Nano),
	}
	return value, headers, nil
}

// safeHandle 调用处理器并把 panic 转换为错误，监听循环因此不会被单条消息打断
func safeHandle(ctx context.Context, handler port.MessageHandler, msg port.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("handler panic on topic %s: %v", msg.Topic, r)
		}
	}()
	return handler(ctx, msg)
}

// newReconnectBackOff 连接失败时的退避策略：无限重试，最长间隔 30s
func newReconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// sleepBackOff 等待下一次重试，ctx 结束或策略放弃时返回 false
func sleepBackOff(ctx context.Context, b backoff.BackOff) bool {
	wait := b.NextBackOff()
	if wait == backoff.Stop {
		return false
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
