package infrastructure

import "time"

// OrderModel 对应数据库中的 orders 表
type OrderModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	CustomerID int64  `gorm:"not null;index"`
	ProductID  int64  `gorm:"not null;default:0"`
	Amount     int64  `gorm:"not null"`
	Status     string `gorm:"type:varchar(50);not null;default:pending"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName 指定 GORM 应该使用的表名
func (OrderModel) TableName() string {
	return "orders"
}
