package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book 图书（以 ISBN 唯一标识）
// 库存 Stock 任何时候都不能小于 0，只能通过 BookRepository.AdjustStock 修改
type Book struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ISBN        string          `gorm:"column:isbn;type:varchar(20);uniqueIndex;not null" json:"isbn"`
	Title       string          `gorm:"type:varchar(200);not null" json:"title"`
	Author      string          `gorm:"type:varchar(100);not null;default:''" json:"author"`
	Publisher   string          `gorm:"type:varchar(100);not null;default:''" json:"publisher"`
	RetailPrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"retail_price"`
	Stock       int             `gorm:"not null;default:0;index" json:"stock"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Book) TableName() string {
	return "book"
}

// CanAdjust 判断库存变化后是否仍然 >= 0
func (b *Book) CanAdjust(delta int) bool {
	return b.Stock+delta >= 0
}
