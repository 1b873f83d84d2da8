// internal/service/order/domain/state.go
package domain

import "github.com/pkg/errors"

// State 定义了订单的生命周期状态
type State string

const (
	StatePending       State = "pending"        // 订单已创建，等待支付结果
	StatePaid          State = "paid"           // 支付成功
	StatePaymentFailed State = "payment_failed" // 支付失败（余额不足、超时或未知结果）
)

// ParseState 校验并转换外部传入的状态字符串，只接受枚举内的值。
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StatePending, StatePaid, StatePaymentFailed:
		return st, nil
	default:
		return "", errors.Wrapf(ErrInvalidOrder, "unknown status %q", s)
	}
}

// PaymentOutcome 是支付服务在 payment_status 主题上发布的结果
type PaymentOutcome string

const (
	PaymentSuccess          PaymentOutcome = "SUCCESS"
	PaymentInsufficientFund PaymentOutcome = "INSUFFICIENT_FUND"
	PaymentTimeout          PaymentOutcome = "TIMEOUT"
	PaymentUnknown          PaymentOutcome = "UNKNOWN"
)

// ParsePaymentOutcome 无法识别的结果一律按 UNKNOWN 处理
func ParsePaymentOutcome(s string) (outcome PaymentOutcome, recognized bool) {
	switch o := PaymentOutcome(s); o {
	case PaymentSuccess, PaymentInsufficientFund, PaymentTimeout, PaymentUnknown:
		return o, true
	default:
		return PaymentUnknown, false
	}
}

// TargetState 返回支付结果对应的订单目标状态
func (o PaymentOutcome) TargetState() State {
	if o == PaymentSuccess {
		return StatePaid
	}
	return StatePaymentFailed
}
