package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleRecord 销售记录，创建后除备注外不可修改
type SaleRecord struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SaleNo      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"sale_no"`
	BookID      int64           `gorm:"index;not null" json:"book_id"`
	SellerID    int64           `gorm:"index;not null" json:"seller_id"`
	Quantity    int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	SalePrice   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"sale_price"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	Remark      string          `gorm:"type:varchar(500);not null;default:''" json:"remark"`
	SaleTime    time.Time       `gorm:"index;not null" json:"sale_time"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (SaleRecord) TableName() string {
	return "sale_record"
}
