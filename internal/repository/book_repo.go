package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bookstore/internal/apperrors"
	"bookstore/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBookNotFound      = fmt.Errorf("图书不存在: %w", apperrors.ErrNotFound)
	ErrBookISBNExists    = fmt.Errorf("ISBN 已存在: %w", apperrors.ErrConflict)
	ErrBookReferenced    = fmt.Errorf("图书已被进货或销售记录引用，不能删除: %w", apperrors.ErrConflict)
	ErrInsufficientStock = fmt.Errorf("图书库存不足: %w", apperrors.ErrInsufficientStock)
)

// StockChange 一次库存变动
type StockChange struct {
	BookID     int64
	Delta      int
	Reason     string
	RefID      int64
	OperatorID int64
	Remark     string
}

// BookFilter 图书查询条件
type BookFilter struct {
	Search   string
	MinStock *int
	MaxStock *int
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string // title|price|stock|created_at，前缀 - 表示倒序
	Page     int
	PageSize int
}

var bookSortColumns = map[string]string{
	"title":      "title",
	"price":      "retail_price",
	"stock":      "stock",
	"created_at": "created_at",
}

type BookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) *BookRepository {
	return &BookRepository{db: db}
}

func (r *BookRepository) Create(ctx context.Context, tx *gorm.DB, book *model.Book) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(book).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrBookISBNExists
	}
	return err
}

func (r *BookRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Book, error) {
	if tx == nil {
		tx = r.db
	}
	var book model.Book
	err := tx.WithContext(ctx).First(&book, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return &book, nil
}

// GetByISBN 查询不到时返回 nil, nil
func (r *BookRepository) GetByISBN(ctx context.Context, tx *gorm.DB, isbn string) (*model.Book, error) {
	if tx == nil {
		tx = r.db
	}
	var book model.Book
	err := tx.WithContext(ctx).Where("isbn = ?", isbn).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &book, nil
}

// UpdateInfo 修改图书基本信息，库存不在这里改
func (r *BookRepository) UpdateInfo(ctx context.Context, tx *gorm.DB, book *model.Book) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).
		Model(&model.Book{}).
		Where("id = ?", book.ID).
		Updates(map[string]interface{}{
			"isbn":         book.ISBN,
			"title":        book.Title,
			"author":       book.Author,
			"publisher":    book.Publisher,
			"retail_price": book.RetailPrice,
		}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrBookISBNExists
	}
	return err
}

// AdjustStock 修改库存的唯一入口
//
// 先加行锁读出当前库存，再用 stock + delta >= 0 作为条件更新，
// 即使隔离级别较弱也不会把库存改成负数。每次变动写一条 StockLog。
func (r *BookRepository) AdjustStock(ctx context.Context, tx *gorm.DB, change StockChange) (*model.Book, error) {
	if tx == nil {
		tx = r.db
	}

	var book model.Book
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, change.BookID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}

	if !book.CanAdjust(change.Delta) {
		return nil, fmt.Errorf("%w: 《%s》当前库存 %d，变动 %d", ErrInsufficientStock, book.Title, book.Stock, change.Delta)
	}

	result := tx.WithContext(ctx).
		Model(&model.Book{}).
		Where("id = ? AND stock + ? >= 0", change.BookID, change.Delta).
		UpdateColumn("stock", gorm.Expr("stock + ?", change.Delta))
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: 《%s》", ErrInsufficientStock, book.Title)
	}

	log := &model.StockLog{
		BookID:      book.ID,
		Delta:       change.Delta,
		BeforeStock: book.Stock,
		AfterStock:  book.Stock + change.Delta,
		Reason:      change.Reason,
		RefID:       change.RefID,
		OperatorID:  change.OperatorID,
		Remark:      change.Remark,
	}
	if err := tx.WithContext(ctx).Create(log).Error; err != nil {
		return nil, err
	}

	book.Stock += change.Delta
	return &book, nil
}

// IsReferenced 是否被进货明细或销售记录引用
func (r *BookRepository) IsReferenced(ctx context.Context, tx *gorm.DB, bookID int64) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	if err := tx.WithContext(ctx).Model(&model.SaleRecord{}).Where("book_id = ?", bookID).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	if err := tx.WithContext(ctx).Model(&model.PurchaseDetail{}).Where("book_id = ?", bookID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Delete 删除图书及其库存日志，调用方需先确认没有被引用
func (r *BookRepository) Delete(ctx context.Context, tx *gorm.DB, bookID int64) error {
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(ctx).Where("book_id = ?", bookID).Delete(&model.StockLog{}).Error; err != nil {
		return err
	}
	result := tx.WithContext(ctx).Delete(&model.Book{}, bookID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

// Search 按书名/作者/出版社/ISBN 模糊查询（不区分大小写）并分页
func (r *BookRepository) Search(ctx context.Context, f BookFilter) ([]*model.Book, int64, error) {
	var books []*model.Book
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Book{})

	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where(
			"LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR LOWER(publisher) LIKE ? OR LOWER(isbn) LIKE ?",
			like, like, like, like,
		)
	}
	if f.MinStock != nil {
		query = query.Where("stock >= ?", *f.MinStock)
	}
	if f.MaxStock != nil {
		query = query.Where("stock <= ?", *f.MaxStock)
	}
	if f.MinPrice != nil {
		query = query.Where("retail_price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		query = query.Where("retail_price <= ?", *f.MaxPrice)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := paginate(query.Order(bookOrder(f.Sort)), f.Page, f.PageSize).Find(&books).Error
	return books, total, err
}

// LowStock 库存低于阈值的图书，库存少的在前
func (r *BookRepository) LowStock(ctx context.Context, threshold int) ([]*model.Book, error) {
	var books []*model.Book
	err := r.db.WithContext(ctx).
		Where("stock < ?", threshold).
		Order("stock ASC").
		Order("id ASC").
		Find(&books).Error
	return books, err
}

// InventoryStats 图书种数、总库存、低库存种数
type InventoryStats struct {
	TotalTitles   int64
	TotalStock    int64
	LowStockCount int64
}

func (r *BookRepository) InventoryStats(ctx context.Context, threshold int) (*InventoryStats, error) {
	var row struct {
		TotalTitles int64
		TotalStock  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Book{}).
		Select("COUNT(*) AS total_titles, COALESCE(SUM(stock), 0) AS total_stock").
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	stats := &InventoryStats{TotalTitles: row.TotalTitles, TotalStock: row.TotalStock}
	err = r.db.WithContext(ctx).Model(&model.Book{}).Where("stock < ?", threshold).Count(&stats.LowStockCount).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *BookRepository) ListStockLogs(ctx context.Context, bookID int64, page, pageSize int) ([]*model.StockLog, int64, error) {
	var logs []*model.StockLog
	var total int64

	query := r.db.WithContext(ctx).Model(&model.StockLog{}).Where("book_id = ?", bookID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := paginate(query.Order("id DESC"), page, pageSize).Find(&logs).Error
	return logs, total, err
}

func bookOrder(sort string) string {
	desc := strings.HasPrefix(sort, "-")
	col, ok := bookSortColumns[strings.TrimPrefix(sort, "-")]
	if !ok {
		return "id ASC"
	}
	if desc {
		return col + " DESC, id DESC"
	}
	return col + " ASC, id ASC"
}
