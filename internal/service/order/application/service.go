// internal/service/order/application/service.go
package application

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nexus-order/internal/pkg/logger"
	"nexus-order/internal/pkg/metrics"
	"nexus-order/internal/service/order/application/saga"
	"nexus-order/internal/service/order/domain"
	"nexus-order/internal/service/order/domain/port"
)

// OrderApplicationService 是订单生命周期引擎：它是订单存储的唯一写入方，
// 负责把 HTTP 命令和支付事件转换为合法的状态迁移，并在失败时执行补偿。
type OrderApplicationService struct {
	orderRepo domain.OrderRepository
	snapshots port.SnapshotStore
	publisher port.EventPublisher
	locker    port.OrderLocker
	policy    port.UpdatePolicy
	metrics   *metrics.OrderMetrics
	tracer    trace.Tracer
}

// NewOrderApplicationService 组装引擎。policy 为 nil 时不做额外的更新准入检查。
func NewOrderApplicationService(
	orderRepo domain.OrderRepository,
	snapshots port.SnapshotStore,
	publisher port.EventPublisher,
	locker port.OrderLocker,
	policy port.UpdatePolicy,
	m *metrics.OrderMetrics,
	tracer trace.Tracer,
) *OrderApplicationService {
	return &OrderApplicationService{
		orderRepo: orderRepo,
		snapshots: snapshots,
		publisher: publisher,
		locker:    locker,
		policy:    policy,
		metrics:   m,
		tracer:    tracer,
	}
}

// CreateOrder 创建一个 pending 订单，并发布带有新老客户标记的 order_created 事件。
// 事件发布失败只记录日志，不影响已经提交的订单。
func (s *OrderApplicationService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateOrder")
	defer span.End()

	if req.CustomerID == nil || req.ProductID == nil || req.Amount == nil {
		err := errors.Wrap(domain.ErrInvalidOrder, "customerId, productId and amount are required")
		s.recordFailure(span, "create", err)
		return nil, err
	}

	order, err := domain.NewOrder(*req.CustomerID, *req.ProductID, *req.Amount)
	if err != nil {
		s.recordFailure(span, "create", err)
		return nil, err
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		s.recordFailure(span, "create", err)
		logger.Ctx(ctx).Error().Err(err).Int64("customer_id", order.CustomerID).Msg("Failed to persist new order")
		return nil, err
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID), attribute.Int64("customer.id", order.CustomerID))
	s.metrics.OrdersCreated.Inc()

	// 插入之后统计该客户的订单数：超过一单即为老客户
	isNew := false
	if orders, err := s.orderRepo.FindByCustomer(ctx, order.CustomerID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("customer_id", order.CustomerID).
			Msg("Could not count customer orders, publishing order_created with new=false")
	} else {
		isNew = len(orders) <= 1
	}

	s.publish(ctx, domain.NewDomainEvent(domain.TopicOrderCreated, orderKey(order.ID), domain.OrderCreated{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Amount:     order.Amount,
		ProductID:  order.ProductID,
		New:        isNew,
	}))

	logger.Ctx(ctx).Info().Int64("order_id", order.ID).Int64("customer_id", order.CustomerID).Bool("new_customer", isNew).
		Msg("Order created with status pending")
	return &CreateOrderResponse{OrderDTO: *ToOrderDTO(order), New: isNew}, nil
}

// GetOrder 读取订单
func (s *OrderApplicationService) GetOrder(ctx context.Context, id int64) (*OrderDTO, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return ToOrderDTO(order), nil
}

// CustomerExists 判断客户是否下过单
func (s *OrderApplicationService) CustomerExists(ctx context.Context, customerID int64) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "app.CustomerExists", trace.WithAttributes(attribute.Int64("customer.id", customerID)))
	defer span.End()

	orders, err := s.orderRepo.FindByCustomer(ctx, customerID)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return len(orders) > 0, nil
}

// UpdateOrder 在快照保护下应用部分更新。
// 通过更新命令改变状态属于运维越权迁移，会单独记录并发布 order_status_overridden。
func (s *OrderApplicationService) UpdateOrder(ctx context.Context, id int64, req *UpdateOrderRequest) (*OrderDTO, error) {
	ctx, span := s.tracer.Start(ctx, "app.UpdateOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	unlock, err := s.lock(ctx, id)
	if err != nil {
		s.recordFailure(span, "update", err)
		return nil, err
	}
	defer unlock()

	current, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		s.recordFailure(span, "update", err)
		return nil, err
	}

	patch := req.ToPatch()
	proposed := current.Clone()
	overridden, err := patch.Apply(proposed)
	if err != nil {
		s.recordFailure(span, "update", err)
		return nil, err
	}
	if s.policy != nil {
		if err := s.policy.Allow(ctx, current, proposed); err != nil {
			s.recordFailure(span, "update", err)
			return nil, err
		}
	}

	var updated *domain.Order
	tx := &saga.Transaction{
		Name:    "update-order",
		OrderID: id,
		SavePoint: func(ctx context.Context) error {
			return s.snapshots.Save(ctx, current)
		},
		Action: func(ctx context.Context) error {
			var err error
			updated, err = s.orderRepo.Update(ctx, id, func(o *domain.Order) error {
				_, err := patch.Apply(o)
				return err
			})
			return err
		},
		Rollback: func(ctx context.Context) error {
			return s.restoreFromSnapshot(ctx, id)
		},
	}
	if err := tx.Execute(ctx); err != nil {
		s.recordRollback(err)
		s.recordFailure(span, "update", err)
		return nil, err
	}

	if overridden {
		logger.Ctx(ctx).Warn().
			Str("transition", "admin_override").
			Int64("order_id", id).
			Str("from", string(current.Status)).
			Str("to", string(updated.Status)).
			Msg("Order status overridden by update command")
		s.publish(ctx, domain.NewDomainEvent(domain.TopicOrderStatusOverridden, orderKey(id), domain.OrderStatusOverridden{
			OrderID:    id,
			CustomerID: updated.CustomerID,
			From:       current.Status,
			To:         updated.Status,
		}))
	}

	return ToOrderDTO(updated), nil
}

// DeleteOrder 在快照保护下删除订单，失败时从快照重新插入
func (s *OrderApplicationService) DeleteOrder(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "app.DeleteOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	unlock, err := s.lock(ctx, id)
	if err != nil {
		s.recordFailure(span, "delete", err)
		return err
	}
	defer unlock()

	current, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		s.recordFailure(span, "delete", err)
		return err
	}

	tx := &saga.Transaction{
		Name:    "delete-order",
		OrderID: id,
		SavePoint: func(ctx context.Context) error {
			return s.snapshots.Save(ctx, current)
		},
		Action: func(ctx context.Context) error {
			return s.orderRepo.Delete(ctx, id)
		},
		Rollback: func(ctx context.Context) error {
			return s.restoreFromSnapshot(ctx, id)
		},
	}
	if err := tx.Execute(ctx); err != nil {
		s.recordRollback(err)
		s.recordFailure(span, "delete", err)
		return err
	}

	logger.Ctx(ctx).Info().Int64("order_id", id).Msg("Order deleted")
	return nil
}

// HandlePaymentStatus 把支付结果映射为状态迁移。
// 对重复投递幂等；未知订单、乱序或矛盾的事件只记录日志并丢弃（返回 nil）。
// 只有存储层错误会返回给调用方。
func (s *OrderApplicationService) HandlePaymentStatus(ctx context.Context, event *domain.PaymentStatusChanged) error {
	ctx, span := s.tracer.Start(ctx, "app.HandlePaymentStatus", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	id := event.ResolvedOrderID()
	log := logger.Ctx(ctx).With().Int64("order_id", id).Str("payment_status", event.Status).Logger()
	span.SetAttributes(attribute.Int64("order.id", id), attribute.String("payment.status", event.Status))

	if id <= 0 {
		log.Warn().Msg("Payment event without order id, dropped")
		s.metrics.PaymentEvents.WithLabelValues("dropped").Inc()
		return nil
	}

	outcome, recognized := domain.ParsePaymentOutcome(event.Status)
	if !recognized {
		log.Warn().Msg("Unrecognized payment status, treating as UNKNOWN")
	}

	unlock, err := s.lock(ctx, id)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer unlock()

	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			log.Warn().Msg("Payment event references unknown order, dropped")
			s.metrics.PaymentEvents.WithLabelValues("dropped").Inc()
			return nil
		}
		span.RecordError(err)
		return err
	}

	changed, err := order.Clone().ApplyPayment(outcome)
	if err != nil {
		log.Warn().Err(err).Str("current_status", string(order.Status)).Msg("Contradictory payment event ignored")
		s.metrics.PaymentEvents.WithLabelValues("ignored").Inc()
		return nil
	}
	if !changed {
		log.Debug().Str("current_status", string(order.Status)).Msg("Duplicate payment event, order already up to date")
		s.metrics.PaymentEvents.WithLabelValues("duplicate").Inc()
		return nil
	}

	updated, err := s.orderRepo.Update(ctx, id, func(o *domain.Order) error {
		_, err := o.ApplyPayment(outcome)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrInvalidTransition) {
			log.Warn().Err(err).Msg("Order changed while applying payment event, dropped")
			s.metrics.PaymentEvents.WithLabelValues("ignored").Inc()
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to apply payment event")
		return err
	}

	s.metrics.PaymentEvents.WithLabelValues(string(updated.Status)).Inc()
	log.Info().Str("from", string(order.Status)).Str("to", string(updated.Status)).Msg("Payment event applied")
	return nil
}

// restoreFromSnapshot 读取变更前的快照并整体写回存储，成功后丢弃快照
func (s *OrderApplicationService) restoreFromSnapshot(ctx context.Context, id int64) error {
	snapshot, err := s.snapshots.Load(ctx, id)
	if err != nil {
		return errors.Wrap(err, "load snapshot")
	}
	if err := s.orderRepo.Restore(ctx, snapshot); err != nil {
		return errors.Wrap(err, "restore order from snapshot")
	}
	if err := s.snapshots.Discard(ctx, id); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("order_id", id).Msg("Failed to discard consumed snapshot")
	}
	return nil
}

func (s *OrderApplicationService) lock(ctx context.Context, id int64) (func(), error) {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrStorage, "acquire lock for order %d: %v", id, err)
	}
	return unlock, nil
}

func (s *OrderApplicationService) publish(ctx context.Context, event domain.DomainEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.metrics.PublishErrors.WithLabelValues(event.Topic).Inc()
		logger.Ctx(ctx).Error().Err(err).Str("topic", event.Topic).Str("event_id", event.ID).
			Msg("Failed to publish domain event after commit")
	}
}

func (s *OrderApplicationService) recordFailure(span trace.Span, operation string, err error) {
	s.metrics.OrdersFailed.WithLabelValues(operation).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (s *OrderApplicationService) recordRollback(err error) {
	switch {
	case errors.Is(err, domain.ErrRolledBack):
		s.metrics.Rollbacks.WithLabelValues("restored").Inc()
	case errors.Is(err, domain.ErrRollbackFailed):
		s.metrics.Rollbacks.WithLabelValues("failed").Inc()
	}
}

func orderKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
