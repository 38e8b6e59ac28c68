package handler

import (
	"encoding/json"
	"time"

	"bookstore/internal/model"
	"bookstore/internal/repository"
	"bookstore/internal/service"

	"github.com/shopspring/decimal"
)

const timeLayout = "2006-01-02 15:04:05"

// money 金额统一保留两位小数输出
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(time.Local).Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

type pageDTO struct {
	List    interface{} `json:"list"`
	Total   int64       `json:"total"`
	Page    int         `json:"page"`
	PerPage int         `json:"per_page"`
	Pages   int64       `json:"pages"`
}

func newPage(list interface{}, total int64, page, perPage int) pageDTO {
	page, perPage = repository.NormalizePage(page, perPage)
	return pageDTO{
		List:    list,
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   (total + int64(perPage) - 1) / int64(perPage),
	}
}

type userDTO struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	RealName   string `json:"real_name"`
	EmployeeID string `json:"employee_id"`
	Gender     string `json:"gender"`
	Age        *int   `json:"age"`
	Role       string `json:"role"`
	CreatedAt  string `json:"created_at"`
}

func toUserDTO(u *model.User) userDTO {
	return userDTO{
		ID:         u.ID,
		Username:   u.Username,
		RealName:   u.RealName,
		EmployeeID: u.EmployeeID,
		Gender:     u.Gender,
		Age:        u.Age,
		Role:       u.Role,
		CreatedAt:  formatTime(u.CreatedAt),
	}
}

type bookDTO struct {
	ID          int64   `json:"id"`
	ISBN        string  `json:"isbn"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Publisher   string  `json:"publisher"`
	RetailPrice float64 `json:"retail_price"`
	Stock       int     `json:"stock"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func toBookDTO(b *model.Book) bookDTO {
	return bookDTO{
		ID:          b.ID,
		ISBN:        b.ISBN,
		Title:       b.Title,
		Author:      b.Author,
		Publisher:   b.Publisher,
		RetailPrice: money(b.RetailPrice),
		Stock:       b.Stock,
		CreatedAt:   formatTime(b.CreatedAt),
		UpdatedAt:   formatTime(b.UpdatedAt),
	}
}

func toBookDTOs(books []*model.Book) []bookDTO {
	out := make([]bookDTO, 0, len(books))
	for _, b := range books {
		out = append(out, toBookDTO(b))
	}
	return out
}

type stockLogDTO struct {
	ID          int64  `json:"id"`
	BookID      int64  `json:"book_id"`
	Delta       int    `json:"delta"`
	BeforeStock int    `json:"before_stock"`
	AfterStock  int    `json:"after_stock"`
	Reason      string `json:"reason"`
	RefID       int64  `json:"ref_id"`
	OperatorID  int64  `json:"operator_id"`
	Remark      string `json:"remark"`
	CreatedAt   string `json:"created_at"`
}

func toStockLogDTOs(logs []*model.StockLog) []stockLogDTO {
	out := make([]stockLogDTO, 0, len(logs))
	for _, l := range logs {
		out = append(out, stockLogDTO{
			ID:          l.ID,
			BookID:      l.BookID,
			Delta:       l.Delta,
			BeforeStock: l.BeforeStock,
			AfterStock:  l.AfterStock,
			Reason:      l.Reason,
			RefID:       l.RefID,
			OperatorID:  l.OperatorID,
			Remark:      l.Remark,
			CreatedAt:   formatTime(l.CreatedAt),
		})
	}
	return out
}

type purchaseDetailDTO struct {
	ID            int64   `json:"id"`
	BookID        *int64  `json:"book_id"`
	ISBN          string  `json:"isbn"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	Publisher     string  `json:"publisher"`
	Quantity      int     `json:"quantity"`
	PurchasePrice float64 `json:"purchase_price"`
	Subtotal      float64 `json:"subtotal"`
	IsNewBook     bool    `json:"is_new_book"`
}

type purchaseDTO struct {
	ID          int64               `json:"id"`
	OrderNo     string              `json:"order_no"`
	CreatorID   int64               `json:"creator_id"`
	Status      string              `json:"status"`
	TotalAmount float64             `json:"total_amount"`
	Remark      string              `json:"remark"`
	PaidBy      *int64              `json:"paid_by"`
	PaidAt      *string             `json:"paid_at"`
	ReturnedBy  *int64              `json:"returned_by"`
	ReturnedAt  *string             `json:"returned_at"`
	CreatedAt   string              `json:"created_at"`
	Details     []purchaseDetailDTO `json:"details"`
}

func toPurchaseDTO(o *model.PurchaseOrder) purchaseDTO {
	details := make([]purchaseDetailDTO, 0, len(o.Details))
	for i := range o.Details {
		d := &o.Details[i]
		details = append(details, purchaseDetailDTO{
			ID:            d.ID,
			BookID:        d.BookID,
			ISBN:          d.ISBN,
			Title:         d.Title,
			Author:        d.Author,
			Publisher:     d.Publisher,
			Quantity:      d.Quantity,
			PurchasePrice: money(d.PurchasePrice),
			Subtotal:      money(d.Subtotal()),
			IsNewBook:     d.IsNewBook,
		})
	}
	return purchaseDTO{
		ID:          o.ID,
		OrderNo:     o.OrderNo,
		CreatorID:   o.CreatorID,
		Status:      o.Status,
		TotalAmount: money(o.TotalAmount),
		Remark:      o.Remark,
		PaidBy:      o.PaidBy,
		PaidAt:      formatTimePtr(o.PaidAt),
		ReturnedBy:  o.ReturnedBy,
		ReturnedAt:  formatTimePtr(o.ReturnedAt),
		CreatedAt:   formatTime(o.CreatedAt),
		Details:     details,
	}
}

type saleDTO struct {
	ID          int64   `json:"id"`
	SaleNo      string  `json:"sale_no"`
	BookID      int64   `json:"book_id"`
	SellerID    int64   `json:"seller_id"`
	Quantity    int     `json:"quantity"`
	SalePrice   float64 `json:"sale_price"`
	TotalAmount float64 `json:"total_amount"`
	Remark      string  `json:"remark"`
	SaleTime    string  `json:"sale_time"`
}

func toSaleDTO(s *model.SaleRecord) saleDTO {
	return saleDTO{
		ID:          s.ID,
		SaleNo:      s.SaleNo,
		BookID:      s.BookID,
		SellerID:    s.SellerID,
		Quantity:    s.Quantity,
		SalePrice:   money(s.SalePrice),
		TotalAmount: money(s.TotalAmount),
		Remark:      s.Remark,
		SaleTime:    formatTime(s.SaleTime),
	}
}

type bookSaleStatDTO struct {
	BookID        int64   `json:"book_id"`
	Title         string  `json:"title"`
	ISBN          string  `json:"isbn"`
	TotalQuantity int64   `json:"total_quantity"`
	TotalAmount   float64 `json:"total_amount"`
}

func toBookSaleStatDTOs(stats []*repository.BookSaleStat) []bookSaleStatDTO {
	out := make([]bookSaleStatDTO, 0, len(stats))
	for _, s := range stats {
		out = append(out, bookSaleStatDTO{
			BookID:        s.BookID,
			Title:         s.Title,
			ISBN:          s.ISBN,
			TotalQuantity: s.TotalQuantity,
			TotalAmount:   money(s.TotalAmount),
		})
	}
	return out
}

type sellerSaleStatDTO struct {
	SellerID      int64   `json:"seller_id"`
	Username      string  `json:"username"`
	RealName      string  `json:"real_name"`
	TotalRecords  int64   `json:"total_records"`
	TotalQuantity int64   `json:"total_quantity"`
	TotalAmount   float64 `json:"total_amount"`
}

func toSellerSaleStatDTOs(stats []*repository.SellerSaleStat) []sellerSaleStatDTO {
	out := make([]sellerSaleStatDTO, 0, len(stats))
	for _, s := range stats {
		out = append(out, sellerSaleStatDTO{
			SellerID:      s.SellerID,
			Username:      s.Username,
			RealName:      s.RealName,
			TotalRecords:  s.TotalRecords,
			TotalQuantity: s.TotalQuantity,
			TotalAmount:   money(s.TotalAmount),
		})
	}
	return out
}

type financialRecordDTO struct {
	ID          int64   `json:"id"`
	RecordNo    string  `json:"record_no"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	SourceType  string  `json:"source_type"`
	SourceID    int64   `json:"source_id"`
	OperatorID  int64   `json:"operator_id"`
	RecordTime  string  `json:"record_time"`
	Description string  `json:"description"`
}

func toFinancialRecordDTO(r *model.FinancialRecord) financialRecordDTO {
	return financialRecordDTO{
		ID:          r.ID,
		RecordNo:    r.RecordNo,
		Type:        r.Type,
		Amount:      money(r.Amount),
		SourceType:  r.SourceType,
		SourceID:    r.SourceID,
		OperatorID:  r.OperatorID,
		RecordTime:  formatTime(r.RecordTime),
		Description: r.Description,
	}
}

type totalsDTO struct {
	TotalIncome     float64 `json:"total_income"`
	TotalExpense    float64 `json:"total_expense"`
	NetProfit       float64 `json:"net_profit"`
	SaleIncome      float64 `json:"sale_income"`
	PurchaseExpense float64 `json:"purchase_expense"`
	PurchaseIncome  float64 `json:"purchase_income"`
	OtherIncome     float64 `json:"other_income"`
	OtherExpense    float64 `json:"other_expense"`
}

func toTotalsDTO(t *service.Totals) totalsDTO {
	return totalsDTO{
		TotalIncome:     money(t.TotalIncome),
		TotalExpense:    money(t.TotalExpense),
		NetProfit:       money(t.NetProfit()),
		SaleIncome:      money(t.SaleIncome),
		PurchaseExpense: money(t.PurchaseExpense),
		PurchaseIncome:  money(t.PurchaseIncome),
		OtherIncome:     money(t.OtherIncome),
		OtherExpense:    money(t.OtherExpense),
	}
}

type periodDTO struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type periodSummaryDTO struct {
	totalsDTO
	Period periodDTO `json:"period"`
}

type financialSummaryDTO struct {
	ID          int64  `json:"id"`
	SummaryDate string `json:"summary_date"`
	totalsDTO
	UpdatedAt string `json:"updated_at"`
}

func toFinancialSummaryDTO(s *model.FinancialSummary) financialSummaryDTO {
	return financialSummaryDTO{
		ID:          s.ID,
		SummaryDate: s.SummaryDate,
		totalsDTO: totalsDTO{
			TotalIncome:     money(s.TotalIncome),
			TotalExpense:    money(s.TotalExpense),
			NetProfit:       money(s.NetProfit()),
			SaleIncome:      money(s.SaleIncome),
			PurchaseExpense: money(s.PurchaseExpense),
			PurchaseIncome:  money(s.PurchaseIncome),
			OtherIncome:     money(s.OtherIncome),
			OtherExpense:    money(s.OtherExpense),
		},
		UpdatedAt: formatTime(s.UpdatedAt),
	}
}

func toFinancialSummaryDTOs(list []*model.FinancialSummary) []financialSummaryDTO {
	out := make([]financialSummaryDTO, 0, len(list))
	for _, s := range list {
		out = append(out, toFinancialSummaryDTO(s))
	}
	return out
}

type outboxMessageDTO struct {
	ID         int64           `json:"id"`
	MessageKey string          `json:"message_key"`
	EventType  string          `json:"event_type"`
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload"`
	RetryCount int             `json:"retry_count"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

func toOutboxMessageDTOs(list []*model.OutboxMessage) []outboxMessageDTO {
	out := make([]outboxMessageDTO, 0, len(list))
	for _, m := range list {
		out = append(out, outboxMessageDTO{
			ID:         m.ID,
			MessageKey: m.MessageKey,
			EventType:  m.EventType,
			Topic:      m.Topic,
			Payload:    json.RawMessage(m.Payload),
			RetryCount: m.RetryCount,
			CreatedAt:  formatTime(m.CreatedAt),
			UpdatedAt:  formatTime(m.UpdatedAt),
		})
	}
	return out
}
