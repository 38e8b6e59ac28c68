package model

import (
	"time"
)

// 库存变动原因
const (
	StockReasonInitial          = "INITIAL"
	StockReasonPurchasePaid     = "PURCHASE_PAID"
	StockReasonPurchaseReturned = "PURCHASE_RETURNED"
	StockReasonSale             = "SALE"
	StockReasonManual           = "MANUAL"
)

// StockLog 库存变动日志
// 只追加，不修改；每次 AdjustStock 写一条，记录变动前后库存
type StockLog struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BookID      int64     `gorm:"index;not null" json:"book_id"`
	Delta       int       `gorm:"not null" json:"delta"` // 正数入库，负数出库
	BeforeStock int       `gorm:"not null" json:"before_stock"`
	AfterStock  int       `gorm:"not null" json:"after_stock"`
	Reason      string    `gorm:"type:varchar(32);not null" json:"reason"`
	RefID       int64     `gorm:"index" json:"ref_id"` // 关联进货单/销售记录 ID
	OperatorID  int64     `gorm:"not null" json:"operator_id"`
	Remark      string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (StockLog) TableName() string {
	return "stock_log"
}
