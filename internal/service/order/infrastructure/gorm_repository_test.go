package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nexus-order/internal/service/order/domain"
)

// openOfflineDB 打开一个不会主动连接数据库的 gorm 实例
func openOfflineDB(t *testing.T, dsn string, dryRun bool) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       dsn,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               dryRun,
		DisableAutomaticPing: true,
		Logger:               gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestGormOrderRepository_LockRowSelectsForUpdate(t *testing.T) {
	db := openOfflineDB(t, "root:root@tcp(127.0.0.1:3306)/orders?parseTime=true", true)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var model OrderModel
		return lockRow(tx, 5).First(&model)
	})

	assert.Contains(t, sql, "FROM `orders` WHERE id = 5")
	assert.Regexp(t, `LIMIT 1 FOR UPDATE$`, sql)
}

func TestGormOrderRepository_UpsertOverwritesSnapshotColumns(t *testing.T) {
	db := openOfflineDB(t, "root:root@tcp(127.0.0.1:3306)/orders?parseTime=true", true)

	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	snapshot := &domain.Order{
		ID: 9, CustomerID: 7, ProductID: 3, Amount: 100, Status: domain.StatePending,
		CreatedAt: created, UpdatedAt: created.Add(time.Minute),
	}
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return upsert(tx).Create(FromDomainOrder(snapshot))
	})

	assert.Contains(t, sql, "INSERT INTO `orders`")
	assert.Contains(t, sql, "ON DUPLICATE KEY UPDATE "+
		"`customer_id`=VALUES(`customer_id`),"+
		"`product_id`=VALUES(`product_id`),"+
		"`amount`=VALUES(`amount`),"+
		"`status`=VALUES(`status`),"+
		"`updated_at`=VALUES(`updated_at`)")
	assert.NotContains(t, sql, "`created_at`=VALUES")
	assert.NotContains(t, sql, "`id`=VALUES")
	// 被删除的行以快照中的 ID 重新插入
	assert.Contains(t, sql, "VALUES (7,3,100,'pending','2024-05-01 08:00:00','2024-05-01 08:01:00',9)")
}

func TestGormOrderRepository_ValidatesBeforeTouchingDatabase(t *testing.T) {
	repo := NewGormOrderRepository(openOfflineDB(t, "root:root@tcp(127.0.0.1:1)/orders?timeout=200ms", false))
	ctx := context.Background()

	err := repo.Create(ctx, &domain.Order{CustomerID: 0, ProductID: 3, Amount: 10, Status: domain.StatePending})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	err = repo.Restore(ctx, &domain.Order{ID: 1, CustomerID: 7, ProductID: 3, Amount: 10, Status: "lost"})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestGormOrderRepository_UnreachableDatabaseIsStorageError(t *testing.T) {
	repo := NewGormOrderRepository(openOfflineDB(t, "root:root@tcp(127.0.0.1:1)/orders?timeout=200ms", false))
	ctx := context.Background()

	err := repo.Create(ctx, newPendingOrder(t, 7))
	assert.ErrorIs(t, err, domain.ErrStorage)

	_, err = repo.FindByID(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrStorage)

	// BEGIN 失败时 mutate 不会执行
	called := false
	_, err = repo.Update(ctx, 1, func(*domain.Order) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.False(t, called)

	err = repo.Delete(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrStorage)

	_, err = repo.FindByCustomer(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrStorage)

	snapshot := newPendingOrder(t, 7)
	snapshot.ID = 1
	assert.ErrorIs(t, repo.Restore(ctx, snapshot), domain.ErrStorage)
}
