// internal/service/order/domain/order.go
package domain

import (
	"time"

	"github.com/pkg/errors"
)

// Order 是订单聚合的根实体
type Order struct {
	ID         int64
	CustomerID int64
	ProductID  int64
	Amount     int64 // 以最小货币单位存储的整数金额
	Status     State
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// 工厂函数: NewOrder 用于创建一个新的订单实例，初始状态固定为 pending
func NewOrder(customerID, productID, amount int64) (*Order, error) {
	if customerID <= 0 {
		return nil, errors.Wrap(ErrInvalidOrder, "customerId is required")
	}
	if productID <= 0 {
		return nil, errors.Wrap(ErrInvalidOrder, "productId is required")
	}
	if amount < 0 {
		return nil, errors.Wrap(ErrInvalidOrder, "amount must not be negative")
	}

	now := time.Now()
	return &Order{
		CustomerID: customerID,
		ProductID:  productID,
		Amount:     amount,
		Status:     StatePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Clone 返回订单的一个独立副本
func (o *Order) Clone() *Order {
	c := *o
	return &c
}

// Validate 检查持久化前必须满足的不变量
func (o *Order) Validate() error {
	if o.CustomerID <= 0 {
		return errors.Wrap(ErrInvalidOrder, "customerId is required")
	}
	if o.Amount < 0 {
		return errors.Wrap(ErrInvalidOrder, "amount must not be negative")
	}
	if _, err := ParseState(string(o.Status)); err != nil {
		return err
	}
	return nil
}

// ApplyPayment 根据支付结果推进状态。
// 只有 pending 订单会发生迁移；已处于目标状态时返回 changed=false 且无错误（重复投递）；
// 其余情况返回 ErrInvalidTransition。
func (o *Order) ApplyPayment(outcome PaymentOutcome) (changed bool, err error) {
	target := outcome.TargetState()
	if o.Status == target {
		return false, nil
	}
	if o.Status != StatePending {
		return false, errors.Wrapf(ErrInvalidTransition, "order %d is %s, cannot apply %s", o.ID, o.Status, outcome)
	}
	o.Status = target
	o.UpdatedAt = time.Now()
	return true, nil
}

// OrderPatch 描述一次运维/客户端的部分更新，nil 字段保持不变
type OrderPatch struct {
	CustomerID *int64
	ProductID  *int64
	Status     *string
	Amount     *int64
}

// Apply 把补丁应用到订单上。customerId 在创建后不可变，只允许传入与当前相同的值。
// 返回值 overridden 表示状态被显式改写（运维越权迁移）。
func (p OrderPatch) Apply(o *Order) (overridden bool, err error) {
	if p.CustomerID != nil && *p.CustomerID != o.CustomerID {
		return false, errors.Wrap(ErrInvalidOrder, "customerId is immutable")
	}
	if p.ProductID != nil {
		if *p.ProductID <= 0 {
			return false, errors.Wrap(ErrInvalidOrder, "productId must be positive")
		}
		o.ProductID = *p.ProductID
	}
	if p.Amount != nil {
		if *p.Amount < 0 {
			return false, errors.Wrap(ErrInvalidOrder, "amount must not be negative")
		}
		o.Amount = *p.Amount
	}
	if p.Status != nil {
		st, err := ParseState(*p.Status)
		if err != nil {
			return false, err
		}
		overridden = st != o.Status
		o.Status = st
	}
	o.UpdatedAt = time.Now()
	return overridden, nil
}
