// internal/pkg/mq/failure_handler.go
package mq

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"nexus-order/internal/pkg/logger"
)

// 死信消息携带的原始位置信息与异常信息
const (
	HeaderOriginalTopic     = "dlt-original-topic"
	HeaderOriginalPartition = "dlt-original-partition"
	HeaderOriginalOffset    = "dlt-original-offset"
	HeaderExceptionFqcn     = "dlt-exception-fqcn"
	HeaderExceptionMessage  = "dlt-exception-message"
)

// FailureHandler 把处理失败的消息转入死信主题，保证监听循环可以继续前进。
type FailureHandler struct {
	writer   MessageWriter
	dltTopic string
}

// NewFailureHandler writer 为 nil 或 dltTopic 为空时只记录日志。
func NewFailureHandler(writer MessageWriter, dltTopic string) *FailureHandler {
	return &FailureHandler{writer: writer, dltTopic: dltTopic}
}

// Handle 记录失败原因，并尽力把原始消息写入死信主题。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	logger.Ctx(ctx).Error().Err(cause).
		Str("topic", msg.Topic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("Message processing failed")

	if h == nil || h.writer == nil || h.dltTopic == "" {
		return
	}

	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderExceptionFqcn, Value: []byte(fmt.Sprintf("%T", cause))},
		kafka.Header{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
	)
	if err := ProduceMessage(ctx, h.writer, h.dltTopic, msg.Key, msg.Value, headers...); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("dlt_topic", h.dltTopic).Msg("🚨 Failed to forward message to dead letter topic")
	}
}
