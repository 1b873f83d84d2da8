// internal/service/order/interfaces/dlt_handler.go
package interfaces

import (
	"context"

	"nexus-order/internal/pkg/logger"
	"nexus-order/internal/pkg/mq"
	"nexus-order/internal/service/order/domain/port"
)

// NewDeadLetterHandler 返回死信主题的处理器：只记录日志，消息随后被提交
func NewDeadLetterHandler() port.MessageHandler {
	return func(ctx context.Context, msg port.Message) error {
		logDeadLetter(ctx, msg)
		return nil
	}
}

func logDeadLetter(ctx context.Context, msg port.Message) {
	// 使用结构化日志记录，便于后续分析
	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", msg.Headers[mq.HeaderOriginalTopic]).
		Str("original_partition", msg.Headers[mq.HeaderOriginalPartition]).
		Str("original_offset", msg.Headers[mq.HeaderOriginalOffset]).
		Str("exception_fqcn", msg.Headers[mq.HeaderExceptionFqcn]).
		Str("exception_message", msg.Headers[mq.HeaderExceptionMessage]).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("🚨 CRITICAL: Dead letter message received")
}
