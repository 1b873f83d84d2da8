package rule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-order/internal/service/order/domain"
)

func TestCELUpdatePolicy(t *testing.T) {
	current := &domain.Order{ID: 1, CustomerID: 7, ProductID: 3, Amount: 100, Status: domain.StatePaid}

	tests := []struct {
		name     string
		expr     string
		proposed domain.Order
		allowed  bool
	}{
		{"empty expression allows", "", domain.Order{ID: 1, CustomerID: 7, Amount: 1, Status: domain.StatePending}, true},
		{"status freeze allows same status", "current.status == proposed.status", domain.Order{ID: 1, CustomerID: 7, Amount: 120, Status: domain.StatePaid}, true},
		{"status freeze rejects change", "current.status == proposed.status", domain.Order{ID: 1, CustomerID: 7, Amount: 100, Status: domain.StatePending}, false},
		{"paid orders cannot change amount", `current.status != "paid" || proposed.amount == current.amount`, domain.Order{ID: 1, CustomerID: 7, Amount: 200, Status: domain.StatePaid}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			policy, err := NewCELUpdatePolicy(tc.expr)
			require.NoError(t, err)

			proposed := tc.proposed
			err = policy.Allow(context.Background(), current, &proposed)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrPolicyRejected)
			}
		})
	}
}

func TestNewCELUpdatePolicy_InvalidExpression(t *testing.T) {
	_, err := NewCELUpdatePolicy("current.status ==")
	assert.Error(t, err)

	_, err = NewCELUpdatePolicy(`"not a bool"`)
	assert.Error(t, err)
}
