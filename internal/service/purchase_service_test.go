package service

import (
	"errors"
	"testing"

	"bookstore/internal/apperrors"
	"bookstore/internal/model"
	"bookstore/internal/repository"

	"github.com/stretchr/testify/suite"
)

type purchaseSuite struct {
	serviceSuite
}

func TestPurchaseService(t *testing.T) {
	suite.Run(t, new(purchaseSuite))
}

func (s *purchaseSuite) ledgerRecords(sourceID int64) []*model.FinancialRecord {
	var records []*model.FinancialRecord
	s.Require().NoError(s.db.
		Where("source_type = ? AND source_id = ?", model.SourceTypePurchase, sourceID).
		Order("id ASC").
		Find(&records).Error)
	return records
}

// 目录中已有 ISBN=111、库存 0 的书：进货 5 本付款后库存 5，退货后回到 0
func (s *purchaseSuite) TestPayThenReturnScenario() {
	book := s.createBook("111", "X", "15.00", 0)

	order, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
		Items: []LineItem{
			NewTitleLine{ISBN: "111", Title: "X", Quantity: 5, PurchasePrice: dec("10.00")},
		},
	})
	s.Require().NoError(err)
	s.Equal(model.PurchaseStatusUnpaid, order.Status)
	s.assertMoney("50.00", order.TotalAmount)
	s.Require().Len(order.Details, 1)
	s.Require().NotNil(order.Details[0].BookID)
	s.Equal(book.ID, *order.Details[0].BookID)

	paid, err := s.purchases.Pay(s.ctx, order.ID, s.operator.ID)
	s.Require().NoError(err)
	s.Equal(model.PurchaseStatusPaid, paid.Status)
	s.Require().NotNil(paid.PaidAt)
	s.Equal(5, s.stockOf(book.ID))

	records := s.ledgerRecords(order.ID)
	s.Require().Len(records, 1)
	s.Equal(model.FinancialTypeExpense, records[0].Type)
	s.assertMoney("50.00", records[0].Amount)

	returned, err := s.purchases.ReturnOrder(s.ctx, order.ID, s.operator.ID)
	s.Require().NoError(err)
	s.Equal(model.PurchaseStatusReturned, returned.Status)
	s.Require().NotNil(returned.ReturnedAt)
	s.Equal(0, s.stockOf(book.ID))

	records = s.ledgerRecords(order.ID)
	s.Require().Len(records, 2)
	s.Equal(model.FinancialTypeIncome, records[1].Type)
	s.assertMoney("50.00", records[1].Amount)

	day := DayStart(s.clock)
	totals, err := s.ledger.Summary(s.ctx, day, day.AddDate(0, 0, 1))
	s.Require().NoError(err)
	s.True(totals.NetProfit().IsZero())
	s.assertMoney("50.00", totals.PurchaseExpense)
	s.assertMoney("50.00", totals.PurchaseIncome)
}

func (s *purchaseSuite) TestPayRoundTripRestoresStock() {
	a := s.createBook("9780000000001", "Go 语言", "59.00", 3)
	b := s.createBook("9780000000002", "数据库系统", "88.00", 7)

	order, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
		Items: []LineItem{
			ExistingBookLine{BookID: a.ID, Quantity: 4, PurchasePrice: dec("30.50")},
			&ExistingBookLine{BookID: b.ID, Quantity: 2, PurchasePrice: dec("45.25")},
			ExistingBookLine{BookID: a.ID, Quantity: 1, PurchasePrice: dec("30.50")},
		},
	})
	s.Require().NoError(err)
	s.assertMoney("243.00", order.TotalAmount)

	_, err = s.purchases.Pay(s.ctx, order.ID, s.operator.ID)
	s.Require().NoError(err)
	s.Equal(8, s.stockOf(a.ID))
	s.Equal(9, s.stockOf(b.ID))

	_, err = s.purchases.ReturnOrder(s.ctx, order.ID, s.operator.ID)
	s.Require().NoError(err)
	s.Equal(3, s.stockOf(a.ID))
	s.Equal(7, s.stockOf(b.ID))
}

func (s *purchaseSuite) TestPayCreatesNewTitle() {
	order, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
		Remark: "首批进货",
		Items: []LineItem{
			NewTitleLine{ISBN: " 9787111111111 ", Title: "新书", Author: "张三", Publisher: "机械工业", Quantity: 6, PurchasePrice: dec("20.00")},
		},
	})
	s.Require().NoError(err)
	s.Equal("首批进货", order.Remark)
	s.Nil(order.Details[0].BookID)
	s.True(order.Details[0].IsNewBook)
	s.Equal("9787111111111", order.Details[0].ISBN)

	paid, err := s.purchases.Pay(s.ctx, order.ID, s.operator.ID)
	s.Require().NoError(err)
	s.Require().NotNil(paid.Details[0].BookID)

	book, err := s.books.Get(s.ctx, *paid.Details[0].BookID)
	s.Require().NoError(err)
	s.Equal("9787111111111", book.ISBN)
	s.Equal("新书", book.Title)
	s.Equal("张三", book.Author)
	s.Equal(6, book.Stock)
	s.assertMoney("26.00", book.RetailPrice)

	// 新书入库同样写库存日志
	logs, total, err := s.books.StockLogs(s.ctx, book.ID, 1, 10)
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Equal(model.StockReasonPurchasePaid, logs[0].Reason)
	s.Equal(order.ID, logs[0].RefID)
}

// 同一 ISBN 的新书在付款前被其他进货单入库，付款时挂到已有图书上
func (s *purchaseSuite) TestPayAttachesNewTitleCatalogedMeanwhile() {
	first, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
		Items: []LineItem{NewTitleLine{ISBN: "222", Title: "Y", Quantity: 2, PurchasePrice: dec("8.00")}},
	})
	s.Require().NoError(err)
	second, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
		Items: []LineItem{NewTitleLine{ISBN: "222", Title: "Y", Quantity: 3, PurchasePrice: dec("9.00")}},
	})
	s.Require().NoError(err)

	_, err = s.purchases.Pay(s.ctx, first.ID, s.operator.ID)
	s.Require().NoError(err)
	paid, err := s.purchases.Pay(s.ctx, second.ID, s.operator.ID)
	s.Require().NoError(err)

	s.EqualValues(1, s.count(&model.Book{}, "isbn = ?", "222"))
	s.Equal(5, s.stockOf(*paid.Details[0].BookID))
}

func (s *purchaseSuite) TestCreateOrderEmptyItems() {
	_, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{})
	s.Require().Error(err)
	s.True(errors.Is(err, apperrors.ErrValidation))

	var verr *apperrors.ValidationError
	s.Require().True(errors.As(err, &verr))
	s.Equal("items", verr.Fields[0].Field)
	s.EqualValues(0, s.count(&model.PurchaseOrder{}, ""))
}

func (s *purchaseSuite) TestCreateOrderLineValidation() {
	book := s.createBook("333", "Z", "10.00", 0)

	_, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
		Items: []LineItem{
			ExistingBookLine{BookID: book.ID, Quantity: 0, PurchasePrice: dec("5.00")},
			NewTitleLine{ISBN: "444", Quantity: 1, PurchasePrice: dec("5.00")},
			ExistingBookLine{BookID: book.ID, Quantity: 1, PurchasePrice: dec("-1")},
		},
	})
	var verr *apperrors.ValidationError
	s.Require().True(errors.As(err, &verr))

	fields := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	s.Contains(fields, "items[0].quantity")
	s.Contains(fields, "items[1].title")
	s.Contains(fields, "items[2].purchase_price")
	s.EqualValues(0, s.count(&model.PurchaseOrder{}, ""))
}

func (s *purchaseSuite) TestCreateOrderUnknownBook() {
	_, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
		Items: []LineItem{ExistingBookLine{BookID: 999, Quantity: 1, PurchasePrice: dec("5.00")}},
	})
	var verr *apperrors.ValidationError
	s.Require().True(errors.As(err, &verr))
	s.Equal("items[0].book_id", verr.Fields[0].Field)
	s.EqualValues(0, s.count(&model.PurchaseOrder{}, ""))
	s.EqualValues(0, s.count(&model.PurchaseDetail{}, ""))
}

func (s *purchaseSuite) TestPayTwice() {
	book := s.createBook("555", "W", "12.00", 1)
	order, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
		Items: []LineItem{ExistingBookLine{BookID: book.ID, Quantity: 4, PurchasePrice: dec("6.00")}},
	})
	s.Require().NoError(err)

	_, err = s.purchases.Pay(s.ctx, order.ID, s.operator.ID)
	s.Require().NoError(err)
	s.Equal(5, s.stockOf(book.ID))

	_, err = s.purchases.Pay(s.ctx, order.ID, s.operator.ID)
	s.Require().Error(err)
	s.True(errors.Is(err, apperrors.ErrInvalidState))
	s.True(errors.Is(err, repository.ErrPurchaseStatusInvalid))
	s.Equal(5, s.stockOf(book.ID))
	s.Len(s.ledgerRecords(order.ID), 1)
}

func (s *purchaseSuite) TestReturnRequiresPaid() {
	book := s.createBook("666", "V", "12.00", 10)
	order, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
		Items: []LineItem{ExistingBookLine{BookID: book.ID, Quantity: 2, PurchasePrice: dec("6.00")}},
	})
	s.Require().NoError(err)

	_, err = s.purchases.ReturnOrder(s.ctx, order.ID, s.operator.ID)
	s.True(errors.Is(err, apperrors.ErrInvalidState))
	s.Equal(10, s.stockOf(book.ID))
}

// 任何一行库存不足都整体失败，不留下部分修改
func (s *purchaseSuite) TestReturnInsufficientStockIsAtomic() {
	a := s.createBook("777", "A", "10.00", 0)
	b := s.createBook("888", "B", "10.00", 0)
	order, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
		Items: []LineItem{
			ExistingBookLine{BookID: a.ID, Quantity: 3, PurchasePrice: dec("5.00")},
			ExistingBookLine{BookID: b.ID, Quantity: 3, PurchasePrice: dec("5.00")},
		},
	})
	s.Require().NoError(err)
	_, err = s.purchases.Pay(s.ctx, order.ID, s.operator.ID)
	s.Require().NoError(err)

	// 卖掉 B 的 2 本，B 只剩 1 本，退货需要 3 本
	_, err = s.sales.CreateSale(s.ctx, s.operator.ID, &CreateSaleRequest{BookID: b.ID, Quantity: 2, SalePrice: decPtr("10.00")})
	s.Require().NoError(err)

	_, err = s.purchases.ReturnOrder(s.ctx, order.ID, s.operator.ID)
	s.Require().Error(err)
	s.True(errors.Is(err, apperrors.ErrInsufficientStock))

	s.Equal(3, s.stockOf(a.ID))
	s.Equal(1, s.stockOf(b.ID))
	got, err := s.purchases.Get(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(model.PurchaseStatusPaid, got.Status)
	s.Len(s.ledgerRecords(order.ID), 1)
}

// 同一本书分多行时按合计数量检查库存
func (s *purchaseSuite) TestReturnChecksAggregatedQuantity() {
	book := s.createBook("999", "C", "10.00", 0)
	order, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
		Items: []LineItem{
			ExistingBookLine{BookID: book.ID, Quantity: 2, PurchasePrice: dec("5.00")},
			ExistingBookLine{BookID: book.ID, Quantity: 2, PurchasePrice: dec("5.00")},
		},
	})
	s.Require().NoError(err)
	_, err = s.purchases.Pay(s.ctx, order.ID, s.operator.ID)
	s.Require().NoError(err)
	_, err = s.sales.CreateSale(s.ctx, s.operator.ID, &CreateSaleRequest{BookID: book.ID, Quantity: 1, SalePrice: decPtr("10.00")})
	s.Require().NoError(err)

	_, err = s.purchases.ReturnOrder(s.ctx, order.ID, s.operator.ID)
	s.True(errors.Is(err, apperrors.ErrInsufficientStock))
	s.Equal(3, s.stockOf(book.ID))
}

func (s *purchaseSuite) TestCancel() {
	book := s.createBook("1010", "D", "10.00", 2)
	order, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
		Items: []LineItem{ExistingBookLine{BookID: book.ID, Quantity: 2, PurchasePrice: dec("5.00")}},
	})
	s.Require().NoError(err)

	cancelled, err := s.purchases.Cancel(s.ctx, order.ID, s.operator.ID)
	s.Require().NoError(err)
	s.Equal(model.PurchaseStatusCancelled, cancelled.Status)

	_, err = s.purchases.Pay(s.ctx, order.ID, s.operator.ID)
	s.True(errors.Is(err, apperrors.ErrInvalidState))
	_, err = s.purchases.Cancel(s.ctx, order.ID, s.operator.ID)
	s.True(errors.Is(err, apperrors.ErrInvalidState))
	s.Equal(2, s.stockOf(book.ID))
	s.Empty(s.ledgerRecords(order.ID))
}

func (s *purchaseSuite) TestZeroTotalOrderSkipsLedger() {
	book := s.createBook("1111", "赠书", "10.00", 0)
	order, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
		Items: []LineItem{ExistingBookLine{BookID: book.ID, Quantity: 3, PurchasePrice: dec("0")}},
	})
	s.Require().NoError(err)

	_, err = s.purchases.Pay(s.ctx, order.ID, s.operator.ID)
	s.Require().NoError(err)
	s.Equal(3, s.stockOf(book.ID))
	s.Empty(s.ledgerRecords(order.ID))
}

func (s *purchaseSuite) TestNotFound() {
	_, err := s.purchases.Pay(s.ctx, 12345, s.operator.ID)
	s.True(errors.Is(err, apperrors.ErrNotFound))
	_, err = s.purchases.Get(s.ctx, 12345)
	s.True(errors.Is(err, apperrors.ErrNotFound))
}

func (s *purchaseSuite) TestWritesOutboxEvents() {
	book := s.createBook("1212", "E", "10.00", 0)
	order, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
		Items: []LineItem{ExistingBookLine{BookID: book.ID, Quantity: 1, PurchasePrice: dec("5.00")}},
	})
	s.Require().NoError(err)
	_, err = s.purchases.Pay(s.ctx, order.ID, s.operator.ID)
	s.Require().NoError(err)

	var messages []*model.OutboxMessage
	s.Require().NoError(s.db.Where("message_key = ?", order.OrderNo).Order("id ASC").Find(&messages).Error)
	s.Require().Len(messages, 2)
	s.Equal(model.EventPurchaseCreated, messages[0].EventType)
	s.Equal(model.EventPurchasePaid, messages[1].EventType)
	s.Equal("bookstore.events", messages[1].Topic)
	s.Equal(model.OutboxStatusPending, messages[1].Status)
	s.Contains(string(messages[1].Payload), `"status":"PAID"`)
}

func (s *purchaseSuite) TestListAndRemark() {
	book := s.createBook("1313", "F", "10.00", 0)
	for i := 0; i < 3; i++ {
		_, err := s.purchases.CreateOrder(s.ctx, s.operator.ID, &CreatePurchaseRequest{
			Items: []LineItem{ExistingBookLine{BookID: book.ID, Quantity: 1, PurchasePrice: dec("5.00")}},
		})
		s.Require().NoError(err)
	}

	orders, total, err := s.purchases.List(s.ctx, repository.PurchaseFilter{Status: model.PurchaseStatusUnpaid, Page: 1, PageSize: 2})
	s.Require().NoError(err)
	s.EqualValues(3, total)
	s.Len(orders, 2)
	s.Len(orders[0].Details, 1)

	_, _, err = s.purchases.List(s.ctx, repository.PurchaseFilter{Status: "SHIPPED"})
	s.True(errors.Is(err, apperrors.ErrValidation))

	updated, err := s.purchases.UpdateRemark(s.ctx, orders[0].ID, "已联系供应商")
	s.Require().NoError(err)
	s.Equal("已联系供应商", updated.Remark)
}
