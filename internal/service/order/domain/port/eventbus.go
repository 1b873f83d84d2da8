package port

import (
	"context"

	"nexus-order/internal/service/order/domain"
)

// EventPublisher 是事件总线的出站端口。
// 传输层保证至少一次投递，发布失败由调用方决定是否影响主流程。
type EventPublisher interface {
	Publish(ctx context.Context, event domain.DomainEvent) error
}

// Message 是从总线上收到的一条原始消息，与具体传输实现无关
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// MessageHandler 处理一条消息。返回的错误只会被记录（或转入死信），不会中断监听循环。
type MessageHandler func(ctx context.Context, msg Message) error

// EventSubscriber 是事件总线的入站端口，后台监听循环的生命周期由 Start/Stop 显式管理。
type EventSubscriber interface {
	// Subscribe 为主题注册处理器，必须在 Start 之前调用。
	Subscribe(topic string, handler MessageHandler)

	// Start 为每个已订阅主题启动后台监听循环后立即返回。
	Start(ctx context.Context) error

	// Stop 停止读取新消息，并等待正在处理的消息完成。
	Stop(ctx context.Context)
}
