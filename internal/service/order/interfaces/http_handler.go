package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"nexus-order/internal/pkg/logger"
	"nexus-order/internal/service/order/application"
	"nexus-order/internal/service/order/domain"
)

const bannerText = "Orders Microservice is running!"

// 错误响应中的分类码
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeStorage        = "STORAGE_ERROR"
	CodeRolledBack     = "ROLLED_BACK"
	CodeRollbackFailed = "ROLLBACK_FAILED"
	CodePolicyRejected = "POLICY_REJECTED"
)

// OrderService 是 HTTP 层依赖的用例集合，由 application.OrderApplicationService 实现
type OrderService interface {
	CreateOrder(ctx context.Context, req *application.CreateOrderRequest) (*application.CreateOrderResponse, error)
	GetOrder(ctx context.Context, id int64) (*application.OrderDTO, error)
	UpdateOrder(ctx context.Context, id int64, req *application.UpdateOrderRequest) (*application.OrderDTO, error)
	DeleteOrder(ctx context.Context, id int64) error
	CustomerExists(ctx context.Context, customerID int64) (bool, error)
}

// OrderHandler 封装了订单服务的 HTTP 处理器
type OrderHandler struct {
	service  OrderService
	gatherer prometheus.Gatherer
	tracer   trace.Tracer
}

// NewOrderHandler 创建一个新的 HTTP 处理器实例，gatherer 为 nil 时使用默认注册表
func NewOrderHandler(service OrderService, gatherer prometheus.Gatherer) *OrderHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &OrderHandler{
		service:  service,
		gatherer: gatherer,
		tracer:   otel.Tracer("order-service/http"),
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /{$}", h.banner)
	mux.HandleFunc("POST /orders", h.createOrder)
	mux.HandleFunc("GET /orders/{id}", h.getOrder)
	mux.HandleFunc("PUT /orders/{id}", h.updateOrder)
	mux.HandleFunc("DELETE /orders/{id}", h.deleteOrder)
	mux.HandleFunc("GET /user-exists/{customerId}", h.userExists)
}

func (h *OrderHandler) banner(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(bannerText))
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.CreateOrder")
	defer span.End()

	var req application.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, errors.Wrapf(domain.ErrInvalidOrder, "invalid request body: %v", err))
		return
	}
	resp, err := h.service.CreateOrder(ctx, &req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.GetOrder")
	defer span.End()

	id, err := pathID(r, "id")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	order, err := h.service.GetOrder(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.UpdateOrder")
	defer span.End()

	id, err := pathID(r, "id")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var req application.UpdateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, errors.Wrapf(domain.ErrInvalidOrder, "invalid request body: %v", err))
		return
	}
	order, err := h.service.UpdateOrder(ctx, id, &req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.DeleteOrder")
	defer span.End()

	id, err := pathID(r, "id")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.service.DeleteOrder(ctx, id); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Order deleted"})
}

func (h *OrderHandler) userExists(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.UserExists")
	defer span.End()

	customerID, err := pathID(r, "customerId")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	exists, err := h.service.CustomerExists(ctx, customerID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	status := http.StatusOK
	if !exists {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]bool{"exists": exists})
}

// startSpan 从请求头恢复上游链路，并开启一个服务端 span
func (h *OrderHandler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return h.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(domain.ErrInvalidOrder, "invalid %s %q", name, raw)
	}
	return id, nil
}

type errorResponse struct {
	Code   string `json:"code"`
	Error  string `json:"error"`
	Exists *bool  `json:"exists,omitempty"` // 仅 NOT_FOUND 时输出 false
}

// statusFor 把领域错误映射为 HTTP 状态码和分类码
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidOrder):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrPolicyRejected):
		return http.StatusUnprocessableEntity, CodePolicyRejected
	case errors.Is(err, domain.ErrRollbackFailed):
		return http.StatusInternalServerError, CodeRollbackFailed
	case errors.Is(err, domain.ErrRolledBack):
		return http.StatusInternalServerError, CodeRolledBack
	default:
		return http.StatusInternalServerError, CodeStorage
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Ctx(ctx).Error().Err(err).Str("code", code).Msg("Request failed")
	}
	body := errorResponse{Code: code, Error: err.Error()}
	if code == CodeNotFound {
		exists := false
		body.Exists = &exists
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
