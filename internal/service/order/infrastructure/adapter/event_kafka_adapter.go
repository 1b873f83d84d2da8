package adapter

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"nexus-order/internal/pkg/logger"
	"nexus-order/internal/pkg/mq"
	"nexus-order/internal/service/order/domain"
	"nexus-order/internal/service/order/domain/port"
)

// messageReader 是 *kafka.Reader 中监听循环用到的部分
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventBus 同时实现了 port.EventPublisher 和 port.EventSubscriber。
// 每个订阅的主题使用独立的 Reader 和监听循环；处理失败的消息转入死信主题后提交 offset。
type KafkaEventBus struct {
	writer     mq.MessageWriter
	failures   *mq.FailureHandler
	newReader  func(topic string) messageReader
	newBackOff func() backoff.BackOff

	mu       sync.Mutex
	handlers map[string]port.MessageHandler
	readers  []messageReader
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewKafkaEventBus 创建 Kafka 事件总线。dltTopic 为空时失败消息只记录日志。
func NewKafkaEventBus(writer *kafka.Writer, brokers []string, groupID, dltTopic string) *KafkaEventBus {
	return &KafkaEventBus{
		writer:   writer,
		failures: mq.NewFailureHandler(writer, dltTopic),
		newReader: func(topic string) messageReader {
			return mq.NewKafkaReader(brokers, topic, groupID)
		},
		newBackOff: newReconnectBackOff,
		handlers:   make(map[string]port.MessageHandler),
	}
}

// Publish 以事件的 Key 作为分区键写入事件所属主题
func (b *KafkaEventBus) Publish(ctx context.Context, event domain.DomainEvent) error {
	value, meta, err := encodeEvent(event)
	if err != nil {
		return errors.Wrap(domain.ErrEventBus, err.Error())
	}
	headers := make([]kafka.Header, 0, len(meta))
	for k, v := range meta {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if err := mq.ProduceMessage(ctx, b.writer, event.Topic, []byte(event.Key), value, headers...); err != nil {
		return errors.Wrapf(domain.ErrEventBus, "publish to %s: %v", event.Topic, err)
	}
	return nil
}

func (b *KafkaEventBus) Subscribe(topic string, handler port.MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
}

func (b *KafkaEventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return errors.New("kafka event bus already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	for topic, handler := range b.handlers {
		reader := b.newReader(topic)
		b.readers = append(b.readers, reader)
		b.wg.Add(1)
		go b.consume(runCtx, topic, reader, handler)
	}
	return nil
}

// Stop 停止拉取新消息，等待正在处理的消息完成后关闭 Reader
func (b *KafkaEventBus) Stop(ctx context.Context) {
	b.mu.Lock()
	cancel := b.cancel
	readers := b.readers
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Ctx(ctx).Warn().Msg("Timed out waiting for kafka listeners to finish")
	}

	for _, r := range readers {
		if err := r.Close(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("Failed to close kafka reader")
		}
	}
	logger.Ctx(ctx).Info().Msg("✅ Kafka event bus stopped.")
}

func (b *KafkaEventBus) consume(ctx context.Context, topic string, reader messageReader, handler port.MessageHandler) {
	defer b.wg.Done()
	logger.Ctx(ctx).Info().Str("topic", topic).Msg("✅ Kafka listener started")

	bo := b.newBackOff()
	for {
		// 使用 FetchMessage 而不是 ReadMessage，处理完成后再显式提交
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Str("topic", topic).Msg("🛑 Kafka listener shutting down.")
				return
			}
			logger.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("Could not fetch message, retrying")
			if !sleepBackOff(ctx, bo) {
				return
			}
			continue
		}
		bo.Reset()

		// 已取出的消息不受停止信号影响，保证处理与提交完整
		msgCtx := mq.ExtractTraceContext(context.WithoutCancel(ctx), msg.Headers)
		if err := safeHandle(msgCtx, handler, port.Message{
			Topic:   msg.Topic,
			Key:     msg.Key,
			Value:   msg.Value,
			Headers: mq.HeadersToMap(msg.Headers),
		}); err != nil {
			b.failures.Handle(msgCtx, msg, err)
		}

		if err := reader.CommitMessages(msgCtx, msg); err != nil {
			logger.Ctx(msgCtx).Error().Err(err).Str("topic", topic).Int64("offset", msg.Offset).Msg("Failed to commit message")
		}
	}
}
