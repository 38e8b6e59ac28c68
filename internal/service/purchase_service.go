package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bookstore/internal/apperrors"
	"bookstore/internal/config"
	"bookstore/internal/infrastructure/lock"
	"bookstore/internal/model"
	"bookstore/internal/repository"
	"bookstore/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LineItem 进货明细：已有图书 或 目录中还没有的新书
type LineItem interface {
	lineQuantity() int
	linePrice() decimal.Decimal
}

// ExistingBookLine 按图书 ID 进货
type ExistingBookLine struct {
	BookID        int64           `json:"book_id" validate:"required,gt=0"`
	Quantity      int             `json:"quantity" validate:"required,gt=0"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
}

func (l ExistingBookLine) lineQuantity() int { return l.Quantity }
func (l ExistingBookLine) linePrice() decimal.Decimal { return l.PurchasePrice }

// NewTitleLine 新书，书目信息随明细提交
type NewTitleLine struct {
	ISBN          string          `json:"isbn" validate:"required,max=20"`
	Title         string          `json:"title" validate:"required,max=200"`
	Author        string          `json:"author" validate:"max=100"`
	Publisher     string          `json:"publisher" validate:"max=100"`
	Quantity      int             `json:"quantity" validate:"required,gt=0"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
}

func (l NewTitleLine) lineQuantity() int { return l.Quantity }
func (l NewTitleLine) linePrice() decimal.Decimal { return l.PurchasePrice }

type CreatePurchaseRequest struct {
	Remark string
	Items  []LineItem
}

type PurchaseService struct {
	db           *gorm.DB
	locker       lock.Locker
	cfg          *config.Config
	markup       decimal.Decimal
	purchaseRepo *repository.PurchaseRepository
	bookRepo     *repository.BookRepository
	ledger       *FinancialService
	events       *eventWriter
	now          func() time.Time
}

func NewPurchaseService(db *gorm.DB, locker lock.Locker, cfg *config.Config) *PurchaseService {
	markup, err := decimal.NewFromString(cfg.Business.RetailMarkup)
	if err != nil || !markup.IsPositive() {
		slog.Warn("business.retail_markup 配置无效，使用 1.3", "value", cfg.Business.RetailMarkup)
		markup = decimal.RequireFromString("1.3")
	}
	return &PurchaseService{
		db:           db,
		locker:       locker,
		cfg:          cfg,
		markup:       markup,
		purchaseRepo: repository.NewPurchaseRepository(db),
		bookRepo:     repository.NewBookRepository(db),
		ledger:       NewFinancialService(db, cfg),
		events: &eventWriter{
			repo:    repository.NewOutboxRepository(db),
			topic:   cfg.Kafka.Topic.Events,
			enabled: cfg.Kafka.Enabled,
		},
		now: time.Now,
	}
}

// RetailPrice 新书零售价 = 进货价 × 加价率，保留两位小数
func (s *PurchaseService) RetailPrice(purchasePrice decimal.Decimal) decimal.Decimal {
	return purchasePrice.Mul(s.markup).Round(2)
}

func validateLine(i int, item LineItem) error {
	prefix := fmt.Sprintf("items[%d].", i)
	switch line := item.(type) {
	case ExistingBookLine:
		if err := validateStruct(line, prefix); err != nil {
			return err
		}
	case *ExistingBookLine:
		return validateLine(i, *line)
	case NewTitleLine:
		line.ISBN = strings.TrimSpace(line.ISBN)
		line.Title = strings.TrimSpace(line.Title)
		if err := validateStruct(line, prefix); err != nil {
			return err
		}
	case *NewTitleLine:
		return validateLine(i, *line)
	default:
		return apperrors.NewValidationError(prefix+"type", "未知的明细类型")
	}
	if item.linePrice().IsNegative() {
		return apperrors.NewValidationError(prefix+"purchase_price", "不能小于 0")
	}
	return nil
}

// CreateOrder 创建未付款进货单，总金额由明细计算
// 新书明细的 ISBN 如果已在目录中，直接关联到该图书
func (s *PurchaseService) CreateOrder(ctx context.Context, creatorID int64, req *CreatePurchaseRequest) (*model.PurchaseOrder, error) {
	if len(req.Items) == 0 {
		return nil, apperrors.NewValidationError("items", "进货明细不能为空")
	}

	verr := &apperrors.ValidationError{}
	for i, item := range req.Items {
		if err := validateLine(i, item); err != nil {
			var v *apperrors.ValidationError
			if errors.As(err, &v) {
				verr.Fields = append(verr.Fields, v.Fields...)
				continue
			}
			return nil, err
		}
	}
	if verr.HasErrors() {
		return nil, verr
	}

	order := &model.PurchaseOrder{
		OrderNo:   idgen.PurchaseNo(),
		CreatorID: creatorID,
		Status:    model.PurchaseStatusUnpaid,
		Remark:    strings.TrimSpace(req.Remark),
		CreatedAt: s.now(),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for i, item := range req.Items {
			detail, err := s.buildDetail(ctx, tx, i, item)
			if err != nil {
				return err
			}
			order.Details = append(order.Details, *detail)
		}
		order.TotalAmount = order.CalculateTotal().Round(2)

		if err := s.purchaseRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("创建进货单失败: %w", err)
		}

		return s.events.write(ctx, tx, model.EventPurchaseCreated, order.OrderNo, orderEvent(order))
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "创建进货单",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"items", len(order.Details),
		"total_amount", order.TotalAmount.StringFixed(2),
	)
	return order, nil
}

func (s *PurchaseService) buildDetail(ctx context.Context, tx *gorm.DB, i int, item LineItem) (*model.PurchaseDetail, error) {
	switch line := item.(type) {
	case *ExistingBookLine:
		return s.buildDetail(ctx, tx, i, *line)
	case *NewTitleLine:
		return s.buildDetail(ctx, tx, i, *line)
	case ExistingBookLine:
		book, err := s.bookRepo.GetByID(ctx, tx, line.BookID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.NewValidationError(fmt.Sprintf("items[%d].book_id", i), "图书不存在")
			}
			return nil, err
		}
		return &model.PurchaseDetail{
			BookID:        &book.ID,
			ISBN:          book.ISBN,
			Title:         book.Title,
			Author:        book.Author,
			Publisher:     book.Publisher,
			Quantity:      line.Quantity,
			PurchasePrice: line.PurchasePrice.Round(2),
		}, nil
	case NewTitleLine:
		detail := &model.PurchaseDetail{
			ISBN:          strings.TrimSpace(line.ISBN),
			Title:         strings.TrimSpace(line.Title),
			Author:        strings.TrimSpace(line.Author),
			Publisher:     strings.TrimSpace(line.Publisher),
			Quantity:      line.Quantity,
			PurchasePrice: line.PurchasePrice.Round(2),
			IsNewBook:     true,
		}
		existing, err := s.bookRepo.GetByISBN(ctx, tx, detail.ISBN)
		if err != nil {
			return nil, fmt.Errorf("查询图书失败: %w", err)
		}
		if existing != nil {
			detail.BookID = &existing.ID
			detail.IsNewBook = false
		}
		return detail, nil
	}
	return nil, apperrors.NewValidationError(fmt.Sprintf("items[%d].type", i), "未知的明细类型")
}

// Pay 付款：UNPAID -> PAID，入库并记一笔支出
// 新书明细付款时按 ISBN 挂到已有图书，没有则新建图书（零售价按加价率计算）
func (s *PurchaseService) Pay(ctx context.Context, orderID, operatorID int64) (*model.PurchaseOrder, error) {
	release, err := s.locker.Acquire(ctx, lock.PurchaseLockKey(orderID))
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.purchaseRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != model.PurchaseStatusUnpaid {
			return fmt.Errorf("%w: 当前状态 %s，只有未付款的进货单可以付款", repository.ErrPurchaseStatusInvalid, order.Status)
		}

		for i := range order.Details {
			detail := &order.Details[i]
			bookID, err := s.resolveBook(ctx, tx, detail)
			if err != nil {
				return err
			}
			_, err = s.bookRepo.AdjustStock(ctx, tx, repository.StockChange{
				BookID:     bookID,
				Delta:      detail.Quantity,
				Reason:     model.StockReasonPurchasePaid,
				RefID:      order.ID,
				OperatorID: operatorID,
				Remark:     order.OrderNo,
			})
			if err != nil {
				return err
			}
		}

		if err := s.purchaseRepo.UpdateStatus(ctx, tx, order.ID, model.PurchaseStatusUnpaid, model.PurchaseStatusPaid, operatorID, now); err != nil {
			return err
		}

		// 金额为 0 的进货单不记账
		if order.TotalAmount.IsPositive() {
			_, err := s.ledger.PostTx(ctx, tx, &PostRequest{
				Type:        model.FinancialTypeExpense,
				Amount:      order.TotalAmount,
				SourceType:  model.SourceTypePurchase,
				SourceID:    order.ID,
				OperatorID:  operatorID,
				Description: fmt.Sprintf("进货单 %s 付款", order.OrderNo),
				RecordTime:  now,
			})
			if err != nil {
				return err
			}
		}

		order.Status = model.PurchaseStatusPaid
		return s.events.write(ctx, tx, model.EventPurchasePaid, order.OrderNo, orderEvent(order))
	})
	if err != nil {
		return nil, err
	}

	order, err := s.purchaseRepo.GetByID(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "进货单付款成功",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"total_amount", order.TotalAmount.StringFixed(2),
		"operator_id", operatorID,
	)
	return order, nil
}

// resolveBook 返回明细对应的图书 ID，新书在这里入目录（库存 0，随后由 AdjustStock 入库）
func (s *PurchaseService) resolveBook(ctx context.Context, tx *gorm.DB, detail *model.PurchaseDetail) (int64, error) {
	if detail.BookID != nil {
		return *detail.BookID, nil
	}

	book, err := s.bookRepo.GetByISBN(ctx, tx, detail.ISBN)
	if err != nil {
		return 0, fmt.Errorf("查询图书失败: %w", err)
	}
	if book == nil {
		book = &model.Book{
			ISBN:        detail.ISBN,
			Title:       detail.Title,
			Author:      detail.Author,
			Publisher:   detail.Publisher,
			RetailPrice: s.RetailPrice(detail.PurchasePrice),
		}
		if err := s.bookRepo.Create(ctx, tx, book); err != nil {
			return 0, fmt.Errorf("新书入库失败: %w", err)
		}
	}

	if err := s.purchaseRepo.ResolveDetail(ctx, tx, detail.ID, book.ID); err != nil {
		return 0, fmt.Errorf("关联进货明细失败: %w", err)
	}
	detail.BookID = &book.ID
	return book.ID, nil
}

// ReturnOrder 退货：PAID -> RETURNED，出库并记一笔收入
// 先检查所有明细的库存是否足够，任何一行不够都不做任何修改
func (s *PurchaseService) ReturnOrder(ctx context.Context, orderID, operatorID int64) (*model.PurchaseOrder, error) {
	release, err := s.locker.Acquire(ctx, lock.PurchaseLockKey(orderID))
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.purchaseRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != model.PurchaseStatusPaid {
			return fmt.Errorf("%w: 当前状态 %s，只有已付款的进货单可以退货", repository.ErrPurchaseStatusInvalid, order.Status)
		}

		// 同一本书可能出现在多行明细里，按书汇总后再检查
		need := make(map[int64]int)
		var bookIDs []int64
		for _, d := range order.Details {
			if !d.Resolved() {
				continue
			}
			if _, ok := need[*d.BookID]; !ok {
				bookIDs = append(bookIDs, *d.BookID)
			}
			need[*d.BookID] += d.Quantity
		}
		for _, id := range bookIDs {
			book, err := s.bookRepo.GetByID(ctx, tx, id)
			if err != nil {
				return err
			}
			if book.Stock < need[id] {
				return fmt.Errorf("%w: 《%s》当前库存 %d，退货需要 %d", repository.ErrInsufficientStock, book.Title, book.Stock, need[id])
			}
		}

		for _, d := range order.Details {
			if !d.Resolved() {
				continue
			}
			_, err := s.bookRepo.AdjustStock(ctx, tx, repository.StockChange{
				BookID:     *d.BookID,
				Delta:      -d.Quantity,
				Reason:     model.StockReasonPurchaseReturned,
				RefID:      order.ID,
				OperatorID: operatorID,
				Remark:     order.OrderNo,
			})
			if err != nil {
				return err
			}
		}

		if err := s.purchaseRepo.UpdateStatus(ctx, tx, order.ID, model.PurchaseStatusPaid, model.PurchaseStatusReturned, operatorID, now); err != nil {
			return err
		}

		if order.TotalAmount.IsPositive() {
			_, err := s.ledger.PostTx(ctx, tx, &PostRequest{
				Type:        model.FinancialTypeIncome,
				Amount:      order.TotalAmount,
				SourceType:  model.SourceTypePurchase,
				SourceID:    order.ID,
				OperatorID:  operatorID,
				Description: fmt.Sprintf("进货单 %s 退货", order.OrderNo),
				RecordTime:  now,
			})
			if err != nil {
				return err
			}
		}

		order.Status = model.PurchaseStatusReturned
		return s.events.write(ctx, tx, model.EventPurchaseReturned, order.OrderNo, orderEvent(order))
	})
	if err != nil {
		return nil, err
	}

	order, err := s.purchaseRepo.GetByID(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "进货单退货成功",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"total_amount", order.TotalAmount.StringFixed(2),
		"operator_id", operatorID,
	)
	return order, nil
}

// Cancel 取消未付款的进货单，没有库存和财务影响
func (s *PurchaseService) Cancel(ctx context.Context, orderID, operatorID int64) (*model.PurchaseOrder, error) {
	release, err := s.locker.Acquire(ctx, lock.PurchaseLockKey(orderID))
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.purchaseRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != model.PurchaseStatusUnpaid {
			return fmt.Errorf("%w: 当前状态 %s，只有未付款的进货单可以取消", repository.ErrPurchaseStatusInvalid, order.Status)
		}
		if err := s.purchaseRepo.UpdateStatus(ctx, tx, order.ID, model.PurchaseStatusUnpaid, model.PurchaseStatusCancelled, operatorID, s.now()); err != nil {
			return err
		}
		order.Status = model.PurchaseStatusCancelled
		return s.events.write(ctx, tx, model.EventPurchaseCancelled, order.OrderNo, orderEvent(order))
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "进货单已取消", "order_id", orderID, "operator_id", operatorID)
	return s.purchaseRepo.GetByID(ctx, nil, orderID)
}

func (s *PurchaseService) Get(ctx context.Context, id int64) (*model.PurchaseOrder, error) {
	return s.purchaseRepo.GetByID(ctx, nil, id)
}

func (s *PurchaseService) List(ctx context.Context, f repository.PurchaseFilter) ([]*model.PurchaseOrder, int64, error) {
	if f.Status != "" && !model.ValidPurchaseStatus(f.Status) {
		return nil, 0, apperrors.NewValidationError("status", "必须是以下值之一: UNPAID PAID RETURNED CANCELLED")
	}
	return s.purchaseRepo.List(ctx, f)
}

// UpdateRemark 任何状态下都可以修改备注
func (s *PurchaseService) UpdateRemark(ctx context.Context, id int64, remark string) (*model.PurchaseOrder, error) {
	if len([]rune(remark)) > 500 {
		return nil, apperrors.NewValidationError("remark", "长度不能超过 500")
	}
	if _, err := s.purchaseRepo.GetByID(ctx, nil, id); err != nil {
		return nil, err
	}
	if err := s.purchaseRepo.UpdateRemark(ctx, nil, id, remark); err != nil {
		return nil, err
	}
	return s.purchaseRepo.GetByID(ctx, nil, id)
}

func orderEvent(order *model.PurchaseOrder) map[string]interface{} {
	return map[string]interface{}{
		"order_id":     order.ID,
		"order_no":     order.OrderNo,
		"status":       order.Status,
		"total_amount": order.TotalAmount.StringFixed(2),
		"items":        len(order.Details),
	}
}
