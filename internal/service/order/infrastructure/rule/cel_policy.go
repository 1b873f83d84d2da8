// internal/service/order/infrastructure/rule/cel_policy.go
package rule

import (
	"context"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"nexus-order/internal/service/order/domain"
)

// CELUpdatePolicy 是 port.UpdatePolicy 的 CEL 实现。
// 表达式可以引用 current 和 proposed 两个变量（字段名与 JSON 一致），结果为 true 时放行，例如：
//
//	current.status == proposed.status || current.status == "pending"
type CELUpdatePolicy struct {
	expr    string
	program cel.Program
}

// NewCELUpdatePolicy 编译表达式；空表达式等价于 "true"
func NewCELUpdatePolicy(expr string) (*CELUpdatePolicy, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = "true"
	}

	env, err := cel.NewEnv(
		cel.Variable("current", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("proposed", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel environment")
	}

	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile update policy %q", expr)
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, errors.Errorf("update policy %q must evaluate to bool, got %s", expr, out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build update policy program %q", expr)
	}
	return &CELUpdatePolicy{expr: expr, program: prg}, nil
}

// Allow 实现了 port.UpdatePolicy 接口
func (p *CELUpdatePolicy) Allow(ctx context.Context, current, proposed *domain.Order) error {
	out, _, err := p.program.ContextEval(ctx, map[string]any{
		"current":  orderFact(current),
		"proposed": orderFact(proposed),
	})
	if err != nil {
		return errors.Wrapf(domain.ErrPolicyRejected, "evaluate update policy: %v", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return errors.Wrapf(domain.ErrPolicyRejected, "update policy returned %T", out.Value())
	}
	if !allowed {
		return errors.Wrapf(domain.ErrPolicyRejected, "order %d: %s", current.ID, p.expr)
	}
	return nil
}

// orderFact 把订单转换为表达式可访问的 map
func orderFact(o *domain.Order) map[string]any {
	return map[string]any{
		"id":         o.ID,
		"customerId": o.CustomerID,
		"productId":  o.ProductID,
		"amount":     o.Amount,
		"status":     string(o.Status),
	}
}
