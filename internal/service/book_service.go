package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bookstore/internal/apperrors"
	"bookstore/internal/config"
	"bookstore/internal/infrastructure/lock"
	"bookstore/internal/model"
	"bookstore/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BookService struct {
	db       *gorm.DB
	locker   lock.Locker
	cfg      *config.Config
	bookRepo *repository.BookRepository
}

func NewBookService(db *gorm.DB, locker lock.Locker, cfg *config.Config) *BookService {
	return &BookService{
		db:       db,
		locker:   locker,
		cfg:      cfg,
		bookRepo: repository.NewBookRepository(db),
	}
}

// BookRequest 新建/修改图书
type BookRequest struct {
	ISBN        string          `json:"isbn" validate:"required,max=20"`
	Title       string          `json:"title" validate:"required,max=200"`
	Author      string          `json:"author" validate:"max=100"`
	Publisher   string          `json:"publisher" validate:"max=100"`
	RetailPrice decimal.Decimal `json:"retail_price"`
	Stock       int             `json:"stock" validate:"gte=0"`
}

func (r *BookRequest) normalize() {
	r.ISBN = strings.TrimSpace(r.ISBN)
	r.Title = strings.TrimSpace(r.Title)
	r.Author = strings.TrimSpace(r.Author)
	r.Publisher = strings.TrimSpace(r.Publisher)
}

func (r *BookRequest) validate() error {
	r.normalize()
	if err := validateStruct(r, ""); err != nil {
		return err
	}
	if r.RetailPrice.IsNegative() {
		return apperrors.NewValidationError("retail_price", "不能小于 0")
	}
	return nil
}

// Create 新建图书，ISBN 重复返回 Conflict；初始库存通过 AdjustStock 写入
func (s *BookService) Create(ctx context.Context, operatorID int64, req *BookRequest) (*model.Book, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	book := &model.Book{
		ISBN:        req.ISBN,
		Title:       req.Title,
		Author:      req.Author,
		Publisher:   req.Publisher,
		RetailPrice: req.RetailPrice.Round(2),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.bookRepo.GetByISBN(ctx, tx, req.ISBN)
		if err != nil {
			return fmt.Errorf("查询图书失败: %w", err)
		}
		if existing != nil {
			return repository.ErrBookISBNExists
		}

		if err := s.bookRepo.Create(ctx, tx, book); err != nil {
			return err
		}

		if req.Stock > 0 {
			adjusted, err := s.bookRepo.AdjustStock(ctx, tx, repository.StockChange{
				BookID:     book.ID,
				Delta:      req.Stock,
				Reason:     model.StockReasonInitial,
				OperatorID: operatorID,
			})
			if err != nil {
				return err
			}
			book.Stock = adjusted.Stock
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "新建图书", "book_id", book.ID, "isbn", book.ISBN, "stock", book.Stock)
	return book, nil
}

func (s *BookService) Get(ctx context.Context, id int64) (*model.Book, error) {
	return s.bookRepo.GetByID(ctx, nil, id)
}

// Update 修改基本信息，库存字段忽略（库存只能通过 AdjustStock 修改）
func (s *BookService) Update(ctx context.Context, id int64, req *BookRequest) (*model.Book, error) {
	req.Stock = 0
	if err := req.validate(); err != nil {
		return nil, err
	}

	var book *model.Book
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		book, err = s.bookRepo.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}

		if req.ISBN != book.ISBN {
			existing, err := s.bookRepo.GetByISBN(ctx, tx, req.ISBN)
			if err != nil {
				return fmt.Errorf("查询图书失败: %w", err)
			}
			if existing != nil {
				return repository.ErrBookISBNExists
			}
		}

		book.ISBN = req.ISBN
		book.Title = req.Title
		book.Author = req.Author
		book.Publisher = req.Publisher
		book.RetailPrice = req.RetailPrice.Round(2)
		return s.bookRepo.UpdateInfo(ctx, tx, book)
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// Delete 被进货明细或销售记录引用时返回 Conflict
func (s *BookService) Delete(ctx context.Context, id int64) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.bookRepo.GetByID(ctx, tx, id); err != nil {
			return err
		}
		referenced, err := s.bookRepo.IsReferenced(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("检查图书引用失败: %w", err)
		}
		if referenced {
			return repository.ErrBookReferenced
		}
		return s.bookRepo.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "删除图书", "book_id", id)
	return nil
}

// AdjustStockRequest 手工调整库存（盘点等）
type AdjustStockRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Remark string `json:"remark" validate:"max=256"`
}

func (s *BookService) AdjustStock(ctx context.Context, bookID, operatorID int64, req *AdjustStockRequest) (*model.Book, error) {
	if err := validateStruct(req, ""); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.BookLockKey(bookID))
	if err != nil {
		return nil, err
	}
	defer release()

	var book *model.Book
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		book, err = s.bookRepo.AdjustStock(ctx, tx, repository.StockChange{
			BookID:     bookID,
			Delta:      req.Delta,
			Reason:     model.StockReasonManual,
			OperatorID: operatorID,
			Remark:     req.Remark,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "手工调整库存", "book_id", bookID, "delta", req.Delta, "stock", book.Stock, "operator_id", operatorID)
	return book, nil
}

func (s *BookService) Search(ctx context.Context, f repository.BookFilter) ([]*model.Book, int64, error) {
	return s.bookRepo.Search(ctx, f)
}

// LowStock threshold <= 0 时使用配置的默认阈值
func (s *BookService) LowStock(ctx context.Context, threshold int) ([]*model.Book, error) {
	if threshold <= 0 {
		threshold = s.cfg.Business.LowStockThreshold
	}
	return s.bookRepo.LowStock(ctx, threshold)
}

func (s *BookService) StockLogs(ctx context.Context, bookID int64, page, pageSize int) ([]*model.StockLog, int64, error) {
	if _, err := s.bookRepo.GetByID(ctx, nil, bookID); err != nil {
		return nil, 0, err
	}
	return s.bookRepo.ListStockLogs(ctx, bookID, page, pageSize)
}
