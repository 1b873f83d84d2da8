// internal/service/order/application/saga/transaction.go
package saga

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"nexus-order/internal/pkg/logger"
	"nexus-order/internal/service/order/domain"
)

// Transaction 是一次 保存点-动作-回滚 的补偿事务。
// 它不是两阶段提交：进程在保存点与回滚之间崩溃时，以存储中的数据为准。
type Transaction struct {
	Name    string
	OrderID int64

	// SavePoint 在任何变更之前执行，失败时不会执行 Action
	SavePoint func(ctx context.Context) error
	// Action 是真正的变更及其直接后果
	Action func(ctx context.Context) error
	// Rollback 在 Action 失败后执行，把订单恢复到保存点时的状态
	Rollback func(ctx context.Context) error
}

// Execute 执行事务，返回值的语义：
//   - nil：变更已完整提交
//   - 包装 domain.ErrStorage：保存点失败，未发生任何变更
//   - 包装 domain.ErrRolledBack：变更失败，已恢复到变更前的状态
//   - 包装 domain.ErrRollbackFailed：变更失败且恢复也失败
func (t *Transaction) Execute(ctx context.Context) error {
	log := logger.Ctx(ctx).With().Str("tx", t.Name).Int64("order_id", t.OrderID).Logger()

	if t.SavePoint != nil {
		if err := t.SavePoint(ctx); err != nil {
			log.Error().Err(err).Msg("Save point failed, mutation skipped")
			return errors.Wrapf(domain.ErrStorage, "%s: save point: %v", t.Name, err)
		}
	}

	actionErr := t.runAction(ctx)
	if actionErr == nil {
		log.Debug().Msg("Transaction committed")
		return nil
	}

	log.Warn().Err(actionErr).Msg("Mutation failed, rolling back to save point")
	if t.Rollback == nil {
		return errors.Wrapf(domain.ErrRollbackFailed, "%s: %v (no rollback defined)", t.Name, actionErr)
	}
	if err := t.Rollback(ctx); err != nil {
		log.Error().Err(err).Bool("critical", true).Msg("Rollback failed, order state may be inconsistent")
		return errors.Wrapf(domain.ErrRollbackFailed, "%s: %v; rollback: %v", t.Name, actionErr, err)
	}

	log.Info().Msg("Rolled back to previous state")
	return errors.Wrapf(domain.ErrRolledBack, "%s: %v", t.Name, actionErr)
}

// runAction 把 Action 中的 panic 转换为错误，保证回滚一定有机会执行
func (t *Transaction) runAction(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()
	return t.Action(ctx)
}
