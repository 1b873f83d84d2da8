package interfaces

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"nexus-order/internal/pkg/logger"
	"nexus-order/internal/service/order/domain"
	"nexus-order/internal/service/order/domain/port"
)

// PaymentStatusProcessor 是支付事件监听器依赖的用例
type PaymentStatusProcessor interface {
	HandlePaymentStatus(ctx context.Context, event *domain.PaymentStatusChanged) error
}

// NewPaymentStatusHandler 返回 payment_status 主题的处理器：解码消息后交给生命周期引擎。
// 无法解码的消息返回错误，由总线记录或转入死信主题。
func NewPaymentStatusHandler(processor PaymentStatusProcessor) port.MessageHandler {
	return func(ctx context.Context, msg port.Message) error {
		var event domain.PaymentStatusChanged
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("topic", msg.Topic).Bytes("value", msg.Value).Msg("Malformed payment event")
			return errors.Wrap(err, "decode payment status event")
		}
		return processor.HandlePaymentStatus(ctx, &event)
	}
}
