package service

import (
	"context"
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

const topBooksLimit = 10

type SaleService struct {
	db       *gorm.DB
	locker   lock.Locker
	cfg      *config.Config
	saleRepo *repository.SaleRepository
	bookRepo *repository.BookRepository
	ledger   *FinancialService
	events   *eventWriter
	now      func() time.Time
}

func NewSaleService(db *gorm.DB, locker lock.Locker, cfg *config.Config) *SaleService {
	return &SaleService{
		db:       db,
		locker:   locker,
		cfg:      cfg,
		saleRepo: repository.NewSaleRepository(db),
		bookRepo: repository.NewBookRepository(db),
		ledger:   NewFinancialService(db, cfg),
		events: &eventWriter{
			repo:    repository.NewOutboxRepository(db),
			topic:   cfg.Kafka.Topic.Events,
			enabled: cfg.Kafka.Enabled,
		},
		now: time.Now,
	}
}

// CreateSaleRequest 成交单价必须由收银员给出
type CreateSaleRequest struct {
	BookID    int64            `json:"book_id" validate:"required,gt=0"`
	Quantity  int              `json:"quantity" validate:"required,gt=0"`
	SalePrice *decimal.Decimal `json:"sale_price"`
	Remark    string           `json:"remark" validate:"max=500"`
}

// CreateSale 销售出库：扣库存、写销售记录、记一笔收入，三者在同一个事务里
func (s *SaleService) CreateSale(ctx context.Context, sellerID int64, req *CreateSaleRequest) (*model.SaleRecord, error) {
	if err := validateStruct(req, ""); err != nil {
		return nil, err
	}
	if req.SalePrice == nil {
		return nil, apperrors.NewValidationError("sale_price", "不能为空")
	}
	if req.SalePrice.IsNegative() {
		return nil, apperrors.NewValidationError("sale_price", "不能小于 0")
	}

	release, err := s.locker.Acquire(ctx, lock.BookLockKey(req.BookID))
	if err != nil {
		return nil, err
	}
	defer release()

	sale := &model.SaleRecord{
		SaleNo:   idgen.SaleNo(),
		BookID:   req.BookID,
		SellerID: sellerID,
		Quantity: req.Quantity,
		Remark:   strings.TrimSpace(req.Remark),
		SaleTime: s.now(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByID(ctx, tx, req.BookID)
		if err != nil {
			return err
		}
		if book.Stock < req.Quantity {
			return fmt.Errorf("%w: 《%s》当前库存 %d，需要 %d", repository.ErrInsufficientStock, book.Title, book.Stock, req.Quantity)
		}

		sale.SalePrice = req.SalePrice.Round(2)
		sale.TotalAmount = sale.SalePrice.Mul(decimal.NewFromInt(int64(req.Quantity))).Round(2)

		if err := s.saleRepo.Create(ctx, tx, sale); err != nil {
			return fmt.Errorf("创建销售记录失败: %w", err)
		}

		_, err = s.bookRepo.AdjustStock(ctx, tx, repository.StockChange{
			BookID:     book.ID,
			Delta:      -req.Quantity,
			Reason:     model.StockReasonSale,
			RefID:      sale.ID,
			OperatorID: sellerID,
			Remark:     sale.SaleNo,
		})
		if err != nil {
			return err
		}

		if sale.TotalAmount.IsPositive() {
			_, err := s.ledger.PostTx(ctx, tx, &PostRequest{
				Type:        model.FinancialTypeIncome,
				Amount:      sale.TotalAmount,
				SourceType:  model.SourceTypeSale,
				SourceID:    sale.ID,
				OperatorID:  sellerID,
				Description: fmt.Sprintf("销售《%s》%d 本", book.Title, req.Quantity),
				RecordTime:  sale.SaleTime,
			})
			if err != nil {
				return err
			}
		}

		return s.events.write(ctx, tx, model.EventSaleCreated, sale.SaleNo, map[string]interface{}{
			"sale_id":      sale.ID,
			"sale_no":      sale.SaleNo,
			"book_id":      sale.BookID,
			"quantity":     sale.Quantity,
			"total_amount": sale.TotalAmount.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "销售成功",
		"sale_id", sale.ID,
		"book_id", sale.BookID,
		"quantity", sale.Quantity,
		"total_amount", sale.TotalAmount.StringFixed(2),
		"seller_id", sellerID,
	)
	return sale, nil
}

func (s *SaleService) Get(ctx context.Context, id int64) (*model.SaleRecord, error) {
	return s.saleRepo.GetByID(ctx, id)
}

func (s *SaleService) List(ctx context.Context, f repository.SaleFilter) ([]*model.SaleRecord, int64, error) {
	return s.saleRepo.List(ctx, f)
}

func (s *SaleService) UpdateRemark(ctx context.Context, id int64, remark string) (*model.SaleRecord, error) {
	if len([]rune(remark)) > 500 {
		return nil, apperrors.NewValidationError("remark", "长度不能超过 500")
	}
	sale, err := s.saleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.saleRepo.UpdateRemark(ctx, id, remark); err != nil {
		return nil, err
	}
	sale.Remark = remark
	return sale, nil
}

// SaleStats 区间销售统计
type SaleStats struct {
	Totals   *repository.SaleTotals
	TopBooks []*repository.BookSaleStat
}

// StatsByPeriod 只读聚合，start/end 为空表示不限
func (s *SaleService) StatsByPeriod(ctx context.Context, start, end *time.Time) (*SaleStats, error) {
	f := repository.SaleFilter{Start: start, End: end}
	totals, err := s.saleRepo.Totals(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("统计销售数据失败: %w", err)
	}
	top, err := s.saleRepo.TopBooks(ctx, f, topBooksLimit)
	if err != nil {
		return nil, fmt.Errorf("统计图书销量失败: %w", err)
	}
	return &SaleStats{Totals: totals, TopBooks: top}, nil
}
