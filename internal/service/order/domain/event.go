// internal/service/order/domain/event.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// 订单服务发布与订阅的主题
const (
	TopicOrderCreated          = "order_created"
	TopicPaymentStatus         = "payment_status"
	TopicOrderStatusOverridden = "order_status_overridden"
)

// DomainEvent 是发布到事件总线上的不可变消息
type DomainEvent struct {
	ID         string    `json:"eventId"`
	Topic      string    `json:"topic"`
	Key        string    `json:"-"` // 分区键，保证同一订单的事件在主题内有序
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// NewDomainEvent 为负载生成一个带唯一 ID 的事件
func NewDomainEvent(topic, key string, payload any) DomainEvent {
	return DomainEvent{
		ID:         uuid.New().String(),
		Topic:      topic,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// OrderCreated 是订单创建成功后发布的事件负载。
// New 仅供下游（例如通知服务）判断是否为新客户，不影响订单状态。
type OrderCreated struct {
	OrderID    int64 `json:"orderId"`
	CustomerID int64 `json:"customerId"`
	Amount     int64 `json:"amount"`
	ProductID  int64 `json:"productId"`
	New        bool  `json:"new"`
}

// OrderStatusOverridden 记录一次通过更新命令绕过支付事件的状态改写
type OrderStatusOverridden struct {
	OrderID    int64 `json:"orderId"`
	CustomerID int64 `json:"customerId"`
	From       State `json:"from"`
	To         State `json:"to"`
}

// PaymentStatusChanged 是支付服务发布到 payment_status 主题的消息
type PaymentStatusChanged struct {
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`

	// 兼容旧版支付服务使用的 snake_case 字段
	LegacyOrderID int64 `json:"order_id,omitempty"`
}

// ResolvedOrderID 优先使用 orderId，缺省时回退到 order_id
func (e PaymentStatusChanged) ResolvedOrderID() int64 {
	if e.OrderID != 0 {
		return e.OrderID
	}
	return e.LegacyOrderID
}
