package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 进货单状态
const (
	PurchaseStatusUnpaid    = "UNPAID"    // 未付款
	PurchaseStatusPaid      = "PAID"      // 已付款，库存已入
	PurchaseStatusReturned  = "RETURNED"  // 已退货（终态）
	PurchaseStatusCancelled = "CANCELLED" // 已取消（终态）
)

// ValidStatusTransitions 进货单状态流转
//
//	UNPAID -> PAID -> RETURNED
//	UNPAID -> CANCELLED
var ValidStatusTransitions = map[string][]string{
	PurchaseStatusUnpaid: {PurchaseStatusPaid, PurchaseStatusCancelled},
	PurchaseStatusPaid:   {PurchaseStatusReturned},
}

// CanTransitionTo 检查状态是否可以流转
func CanTransitionTo(from, to string) bool {
	for _, s := range ValidStatusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidPurchaseStatus 判断是否为已知状态
func ValidPurchaseStatus(status string) bool {
	switch status {
	case PurchaseStatusUnpaid, PurchaseStatusPaid, PurchaseStatusReturned, PurchaseStatusCancelled:
		return true
	}
	return false
}

// PurchaseOrder 进货单，独占其明细（删除时级联删除）
type PurchaseOrder struct {
	ID          int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo     string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	CreatorID   int64            `gorm:"index;not null" json:"creator_id"`
	Status      string           `gorm:"type:varchar(20);index;not null;default:UNPAID" json:"status"`
	TotalAmount decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	Remark      string           `gorm:"type:varchar(500);not null;default:''" json:"remark"`
	PaidBy      *int64           `json:"paid_by"`
	PaidAt      *time.Time       `json:"paid_at"`
	ReturnedBy  *int64           `json:"returned_by"`
	ReturnedAt  *time.Time       `json:"returned_at"`
	CreatedAt   time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	Details     []PurchaseDetail `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"details"`
}

func (PurchaseOrder) TableName() string {
	return "purchase_order"
}

// CalculateTotal 按明细计算总金额 Σ(数量 × 进货价)
func (o *PurchaseOrder) CalculateTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range o.Details {
		total = total.Add(o.Details[i].Subtotal())
	}
	return total
}

// PurchaseDetail 进货明细
// BookID 为空表示尚未入库的新书，ISBN/书名/作者/出版社冗余保存在明细上；
// 付款时新书会被挂到目录里的图书上，BookID 回填，IsNewBook 保持 true
type PurchaseDetail struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID       int64           `gorm:"index;not null" json:"order_id"`
	BookID        *int64          `gorm:"index" json:"book_id"`
	ISBN          string          `gorm:"column:isbn;type:varchar(20);not null;default:''" json:"isbn"`
	Title         string          `gorm:"type:varchar(200);not null;default:''" json:"title"`
	Author        string          `gorm:"type:varchar(100);not null;default:''" json:"author"`
	Publisher     string          `gorm:"type:varchar(100);not null;default:''" json:"publisher"`
	Quantity      int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	PurchasePrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"purchase_price"`
	IsNewBook     bool            `gorm:"not null;default:false" json:"is_new_book"`
}

func (PurchaseDetail) TableName() string {
	return "purchase_detail"
}

func (d *PurchaseDetail) Subtotal() decimal.Decimal {
	return d.PurchasePrice.Mul(decimal.NewFromInt(int64(d.Quantity)))
}

// Resolved 明细是否已关联目录中的图书
func (d *PurchaseDetail) Resolved() bool {
	return d.BookID != nil
}
