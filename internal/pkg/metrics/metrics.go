// internal/pkg/metrics/metrics.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics 汇总订单服务暴露给 /metrics 的计数器
type OrderMetrics struct {
	OrdersCreated prometheus.Counter
	OrdersFailed  *prometheus.CounterVec // label: operation
	PaymentEvents *prometheus.CounterVec // label: outcome
	Rollbacks     *prometheus.CounterVec // label: result
	PublishErrors *prometheus.CounterVec // label: topic
}

// NewOrderMetrics 创建并注册所有计数器。reg 为 nil 时使用默认注册表。
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &OrderMetrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Number of orders successfully created.",
		}),
		OrdersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_failed_total",
			Help: "Number of order commands that failed.",
		}, []string{"operation"}),
		PaymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_events_total",
			Help: "Payment status events processed, by outcome.",
		}, []string{"outcome"}),
		Rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_rollbacks_total",
			Help: "Compensating rollbacks executed, by result.",
		}, []string{"result"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_event_publish_errors_total",
			Help: "Domain events that could not be published.",
		}, []string{"topic"}),
	}
	reg.MustRegister(m.OrdersCreated, m.OrdersFailed, m.PaymentEvents, m.Rollbacks, m.PublishErrors)
	return m
}
