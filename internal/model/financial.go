package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 收支类型，金额恒为非负，方向由类型决定
const (
	FinancialTypeIncome  = "INCOME"
	FinancialTypeExpense = "EXPENSE"
)

// 来源类型
const (
	SourceTypePurchase = "PURCHASE"
	SourceTypeSale     = "SALE"
	SourceTypeOther    = "OTHER" // 手工记账
)

func ValidFinancialType(t string) bool {
	return t == FinancialTypeIncome || t == FinancialTypeExpense
}

func ValidSourceType(t string) bool {
	switch t {
	case SourceTypePurchase, SourceTypeSale, SourceTypeOther:
		return true
	}
	return false
}

// FinancialRecord 财务流水（只追加，除描述外不修改）
// SourceID 是对进货单/销售记录的弱引用，不建外键
type FinancialRecord struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RecordNo    string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"record_no"`
	Type        string          `gorm:"type:varchar(10);index;not null" json:"type"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	SourceType  string          `gorm:"type:varchar(20);index;not null" json:"source_type"`
	SourceID    int64           `gorm:"index;not null;default:0" json:"source_id"`
	OperatorID  int64           `gorm:"index;not null" json:"operator_id"`
	RecordTime  time.Time       `gorm:"index;not null" json:"record_time"`
	Description string          `gorm:"type:varchar(500);not null;default:''" json:"description"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (FinancialRecord) TableName() string {
	return "financial_record"
}

// FinancialSummary 每日财务汇总快照
// 完全由当天的 FinancialRecord 推导，可随时重新生成，不作为独立数据源
type FinancialSummary struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SummaryDate     string          `gorm:"type:varchar(10);uniqueIndex;not null" json:"summary_date"` // YYYY-MM-DD
	TotalIncome     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_income"`
	TotalExpense    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_expense"`
	SaleIncome      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"sale_income"`
	PurchaseExpense decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"purchase_expense"`
	PurchaseIncome  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"purchase_income"`
	OtherIncome     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"other_income"`
	OtherExpense    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"other_expense"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FinancialSummary) TableName() string {
	return "financial_summary"
}

func (s *FinancialSummary) NetProfit() decimal.Decimal {
	return s.TotalIncome.Sub(s.TotalExpense)
}
