package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookstore/internal/apperrors"
	"bookstore/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrSaleNotFound = fmt.Errorf("销售记录不存在: %w", apperrors.ErrNotFound)

// SaleFilter 销售记录查询条件，时间区间左闭右开
type SaleFilter struct {
	BookID   int64
	SellerID int64
	Start    *time.Time
	End      *time.Time
	Page     int
	PageSize int
}

// SaleTotals 区间销售合计
type SaleTotals struct {
	TotalAmount   decimal.Decimal
	TotalQuantity int64
	TotalRecords  int64
}

// BookSaleStat 单本图书销售统计
type BookSaleStat struct {
	BookID        int64
	Title         string
	ISBN          string
	TotalQuantity int64
	TotalAmount   decimal.Decimal
}

// SellerSaleStat 店员销售统计
type SellerSaleStat struct {
	SellerID      int64
	Username      string
	RealName      string
	TotalRecords  int64
	TotalQuantity int64
	TotalAmount   decimal.Decimal
}

type SaleRepository struct {
	db *gorm.DB
}

func NewSaleRepository(db *gorm.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

func (r *SaleRepository) Create(ctx context.Context, tx *gorm.DB, sale *model.SaleRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(sale).Error
}

func (r *SaleRepository) GetByID(ctx context.Context, id int64) (*model.SaleRecord, error) {
	var sale model.SaleRecord
	err := r.db.WithContext(ctx).First(&sale, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSaleNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (r *SaleRepository) UpdateRemark(ctx context.Context, id int64, remark string) error {
	return r.db.WithContext(ctx).
		Model(&model.SaleRecord{}).
		Where("id = ?", id).
		Update("remark", remark).Error
}

func (r *SaleRepository) filtered(ctx context.Context, f SaleFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&model.SaleRecord{})
	if f.BookID > 0 {
		query = query.Where("sale_record.book_id = ?", f.BookID)
	}
	if f.SellerID > 0 {
		query = query.Where("sale_record.seller_id = ?", f.SellerID)
	}
	if f.Start != nil {
		query = query.Where("sale_record.sale_time >= ?", *f.Start)
	}
	if f.End != nil {
		query = query.Where("sale_record.sale_time < ?", *f.End)
	}
	return query
}

func (r *SaleRepository) List(ctx context.Context, f SaleFilter) ([]*model.SaleRecord, int64, error) {
	var sales []*model.SaleRecord
	var total int64

	query := r.filtered(ctx, f)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := paginate(query.Order("sale_time DESC").Order("id DESC"), f.Page, f.PageSize).Find(&sales).Error
	return sales, total, err
}

func (r *SaleRepository) Totals(ctx context.Context, f SaleFilter) (*SaleTotals, error) {
	var row struct {
		TotalAmount   decimal.Decimal
		TotalQuantity int64
		TotalRecords  int64
	}
	err := r.filtered(ctx, f).
		Select("COALESCE(SUM(sale_record.total_amount), 0) AS total_amount, " +
			"COALESCE(SUM(sale_record.quantity), 0) AS total_quantity, " +
			"COUNT(*) AS total_records").
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &SaleTotals{
		TotalAmount:   row.TotalAmount,
		TotalQuantity: row.TotalQuantity,
		TotalRecords:  row.TotalRecords,
	}, nil
}

// TopBooks 按销量倒序的图书排行
func (r *SaleRepository) TopBooks(ctx context.Context, f SaleFilter, limit int) ([]*BookSaleStat, error) {
	var stats []*BookSaleStat
	err := r.filtered(ctx, f).
		Select("sale_record.book_id AS book_id, book.title AS title, book.isbn AS isbn, " +
			"SUM(sale_record.quantity) AS total_quantity, SUM(sale_record.total_amount) AS total_amount").
		Joins("JOIN book ON book.id = sale_record.book_id").
		Group("sale_record.book_id, book.title, book.isbn").
		Order("total_quantity DESC").
		Order("sale_record.book_id ASC").
		Limit(limit).
		Scan(&stats).Error
	return stats, err
}

// TopSellers 按销售额倒序的店员排行
func (r *SaleRepository) TopSellers(ctx context.Context, f SaleFilter, limit int) ([]*SellerSaleStat, error) {
	var stats []*SellerSaleStat
	err := r.filtered(ctx, f).
		Select("sale_record.seller_id AS seller_id, users.username AS username, users.real_name AS real_name, " +
			"COUNT(*) AS total_records, SUM(sale_record.quantity) AS total_quantity, SUM(sale_record.total_amount) AS total_amount").
		Joins("JOIN users ON users.id = sale_record.seller_id").
		Group("sale_record.seller_id, users.username, users.real_name").
		Order("total_amount DESC").
		Order("sale_record.seller_id ASC").
		Limit(limit).
		Scan(&stats).Error
	return stats, err
}
