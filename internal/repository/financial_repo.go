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
	"gorm.io/gorm/clause"
)

var (
	ErrFinancialRecordNotFound  = fmt.Errorf("财务记录不存在: %w", apperrors.ErrNotFound)
	ErrFinancialSummaryNotFound = fmt.Errorf("财务汇总不存在: %w", apperrors.ErrNotFound)
)

// FinancialFilter 财务记录查询条件，时间区间左闭右开
type FinancialFilter struct {
	Type       string
	SourceType string
	OperatorID int64
	Start      *time.Time
	End        *time.Time
	Page       int
	PageSize   int
}

// SourceTotal 按收支类型+来源分组的合计
type SourceTotal struct {
	Type       string
	SourceType string
	Total      decimal.Decimal
}

// LedgerEntry 趋势统计用的精简流水
type LedgerEntry struct {
	Type       string
	Amount     decimal.Decimal
	RecordTime time.Time
}

type FinancialRepository struct {
	db *gorm.DB
}

func NewFinancialRepository(db *gorm.DB) *FinancialRepository {
	return &FinancialRepository{db: db}
}

func (r *FinancialRepository) Create(ctx context.Context, tx *gorm.DB, record *model.FinancialRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

func (r *FinancialRepository) GetByID(ctx context.Context, id int64) (*model.FinancialRecord, error) {
	var record model.FinancialRecord
	err := r.db.WithContext(ctx).First(&record, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFinancialRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// UpdateDescription 流水只允许修改描述
func (r *FinancialRepository) UpdateDescription(ctx context.Context, id int64, description string) error {
	return r.db.WithContext(ctx).
		Model(&model.FinancialRecord{}).
		Where("id = ?", id).
		Update("description", description).Error
}

func (r *FinancialRepository) filtered(ctx context.Context, f FinancialFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&model.FinancialRecord{})
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.SourceType != "" {
		query = query.Where("source_type = ?", f.SourceType)
	}
	if f.OperatorID > 0 {
		query = query.Where("operator_id = ?", f.OperatorID)
	}
	if f.Start != nil {
		query = query.Where("record_time >= ?", *f.Start)
	}
	if f.End != nil {
		query = query.Where("record_time < ?", *f.End)
	}
	return query
}

func (r *FinancialRepository) List(ctx context.Context, f FinancialFilter) ([]*model.FinancialRecord, int64, error) {
	var records []*model.FinancialRecord
	var total int64

	query := r.filtered(ctx, f)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := paginate(query.Order("record_time DESC").Order("id DESC"), f.Page, f.PageSize).Find(&records).Error
	return records, total, err
}

// ListAll 不分页，最多返回 limit 条（导出用）
func (r *FinancialRepository) ListAll(ctx context.Context, f FinancialFilter, limit int) ([]*model.FinancialRecord, error) {
	var records []*model.FinancialRecord
	err := r.filtered(ctx, f).
		Order("record_time ASC").
		Order("id ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// SumBySource [start, end) 区间内按收支类型和来源分组求和，没有记录时返回空切片
func (r *FinancialRepository) SumBySource(ctx context.Context, tx *gorm.DB, start, end time.Time) ([]SourceTotal, error) {
	if tx == nil {
		tx = r.db
	}
	var rows []SourceTotal
	err := tx.WithContext(ctx).
		Model(&model.FinancialRecord{}).
		Select("type, source_type, COALESCE(SUM(amount), 0) AS total").
		Where("record_time >= ? AND record_time < ?", start, end).
		Group("type, source_type").
		Scan(&rows).Error
	return rows, err
}

// ListEntries [start, end) 区间内的流水（只取类型、金额、时间）
func (r *FinancialRepository) ListEntries(ctx context.Context, start, end time.Time) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := r.db.WithContext(ctx).
		Model(&model.FinancialRecord{}).
		Select("type, amount, record_time").
		Where("record_time >= ? AND record_time < ?", start, end).
		Order("record_time ASC").
		Scan(&entries).Error
	return entries, err
}

// UpsertSummary 按日期写入汇总，已存在则覆盖
func (r *FinancialRepository) UpsertSummary(ctx context.Context, tx *gorm.DB, summary *model.FinancialSummary) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "summary_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_income",
				"total_expense",
				"sale_income",
				"purchase_expense",
				"purchase_income",
				"other_income",
				"other_expense",
				"updated_at",
			}),
		}).
		Create(summary).Error
}

func (r *FinancialRepository) GetSummaryByDate(ctx context.Context, tx *gorm.DB, date string) (*model.FinancialSummary, error) {
	if tx == nil {
		tx = r.db
	}
	var summary model.FinancialSummary
	err := tx.WithContext(ctx).Where("summary_date = ?", date).First(&summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFinancialSummaryNotFound
		}
		return nil, err
	}
	return &summary, nil
}

// ListSummaries 日期闭区间 [startDate, endDate]，空字符串表示不限
func (r *FinancialRepository) ListSummaries(ctx context.Context, startDate, endDate string) ([]*model.FinancialSummary, error) {
	var summaries []*model.FinancialSummary
	query := r.db.WithContext(ctx).Model(&model.FinancialSummary{})
	if startDate != "" {
		query = query.Where("summary_date >= ?", startDate)
	}
	if endDate != "" {
		query = query.Where("summary_date <= ?", endDate)
	}
	err := query.Order("summary_date DESC").Find(&summaries).Error
	return summaries, err
}
