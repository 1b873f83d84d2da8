// internal/service/order/application/dto.go
package application

import (
	"time"

	"nexus-order/internal/service/order/domain"
)

// CreateOrderRequest 是创建订单用例的输入数据。
// 字段使用指针以区分"未传"和"零值"，缺失必填字段在任何写入之前被拒绝。
type CreateOrderRequest struct {
	CustomerID *int64 `json:"customerId"`
	ProductID  *int64 `json:"productId"`
	Amount     *int64 `json:"amount"`
}

// UpdateOrderRequest 是更新订单用例的输入数据，nil 字段保持不变
type UpdateOrderRequest struct {
	CustomerID *int64  `json:"customerId,omitempty"`
	ProductID  *int64  `json:"productId,omitempty"`
	Status     *string `json:"status,omitempty"`
	Amount     *int64  `json:"amount,omitempty"`
}

// ToPatch 从应用层请求DTO转换为领域补丁
func (req *UpdateOrderRequest) ToPatch() domain.OrderPatch {
	return domain.OrderPatch{
		CustomerID: req.CustomerID,
		ProductID:  req.ProductID,
		Status:     req.Status,
		Amount:     req.Amount,
	}
}

// OrderDTO 是对外暴露的订单视图
type OrderDTO struct {
	ID         int64        `json:"id"`
	CustomerID int64        `json:"customerId"`
	ProductID  int64        `json:"productId"`
	Amount     int64        `json:"amount"`
	Status     domain.State `json:"status"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// CreateOrderResponse 是创建订单用例的输出数据
type CreateOrderResponse struct {
	OrderDTO
	New bool `json:"new"`
}

// ToOrderDTO 把领域对象转换为输出 DTO
func ToOrderDTO(o *domain.Order) *OrderDTO {
	return &OrderDTO{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		ProductID:  o.ProductID,
		Amount:     o.Amount,
		Status:     o.Status,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}
