package adapter

import (
	"context"
	"sort"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"nexus-order/internal/pkg/logger"
	"nexus-order/internal/service/order/domain"
	"nexus-order/internal/service/order/domain/port"
)

// RedisEventBus 基于 Redis pub/sub 的事件总线，适合没有 Kafka 的部署。
// 所有主题共用一个订阅连接并按顺序分发；断线期间发布的消息会丢失。
type RedisEventBus struct {
	client     *goredis.Client
	newBackOff func() backoff.BackOff

	mu       sync.Mutex
	handlers map[string]port.MessageHandler
	pubsub   *goredis.PubSub
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewRedisEventBus(client *goredis.Client) *RedisEventBus {
	return &RedisEventBus{
		client:     client,
		newBackOff: newReconnectBackOff,
		handlers:   make(map[string]port.MessageHandler),
	}
}

func (b *RedisEventBus) Publish(ctx context.Context, event domain.DomainEvent) error {
	value, _, err := encodeEvent(event)
	if err != nil {
		return errors.Wrap(domain.ErrEventBus, err.Error())
	}
	if err := b.client.Publish(ctx, event.Topic, value).Err(); err != nil {
		return errors.Wrapf(domain.ErrEventBus, "publish to %s: %v", event.Topic, err)
	}
	return nil
}

func (b *RedisEventBus) Subscribe(topic string, handler port.MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
}

func (b *RedisEventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return errors.New("redis event bus already started")
	}
	if len(b.handlers) == 0 {
		return nil
	}

	channels := make([]string, 0, len(b.handlers))
	for topic := range b.handlers {
		channels = append(channels, topic)
	}
	sort.Strings(channels)

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.wg.Add(1)
	go b.listen(runCtx, channels)
	return nil
}

// Stop 关闭订阅连接以唤醒阻塞中的读取，并等待当前消息处理完成
func (b *RedisEventBus) Stop(ctx context.Context) {
	b.mu.Lock()
	cancel := b.cancel
	pubsub := b.pubsub
	b.stopped = true
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if pubsub != nil {
		_ = pubsub.Close()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Ctx(ctx).Info().Msg("✅ Redis event bus stopped.")
	case <-ctx.Done():
		logger.Ctx(ctx).Warn().Msg("Timed out waiting for redis listener to finish")
	}
}

func (b *RedisEventBus) listen(ctx context.Context, channels []string) {
	defer b.wg.Done()

	bo := b.newBackOff()
	for {
		pubsub := b.client.Subscribe(ctx, channels...)
		if !b.setPubSub(pubsub) {
			// Stop 已经执行，它看不到这个新连接，只能由这里关闭
			_ = pubsub.Close()
			return
		}

		// 等待订阅确认，确认之后发布的消息才能收到
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Ctx(ctx).Warn().Err(err).Strs("channels", channels).Msg("Redis subscribe failed, retrying")
			if !sleepBackOff(ctx, bo) {
				return
			}
			continue
		}
		bo.Reset()
		logger.Ctx(ctx).Info().Strs("channels", channels).Msg("✅ Redis listener subscribed")

		err := b.receive(ctx, pubsub)
		_ = pubsub.Close()
		if ctx.Err() != nil {
			logger.Ctx(ctx).Info().Msg("🛑 Redis listener shutting down.")
			return
		}
		logger.Ctx(ctx).Warn().Err(err).Msg("Redis subscription lost, resubscribing")
		if !sleepBackOff(ctx, bo) {
			return
		}
	}
}

func (b *RedisEventBus) receive(ctx context.Context, pubsub *goredis.PubSub) error {
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}

		b.mu.Lock()
		handler := b.handlers[msg.Channel]
		b.mu.Unlock()
		if handler == nil {
			continue
		}

		msgCtx := context.WithoutCancel(ctx)
		if err := safeHandle(msgCtx, handler, port.Message{Topic: msg.Channel, Value: []byte(msg.Payload)}); err != nil {
			logger.Ctx(msgCtx).Error().Err(err).Str("topic", msg.Channel).Msg("Message processing failed")
		}
	}
}

// setPubSub 记录当前订阅连接供 Stop 关闭；总线已停止时返回 false
func (b *RedisEventBus) setPubSub(p *goredis.PubSub) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return false
	}
	b.pubsub = p
	return true
}
