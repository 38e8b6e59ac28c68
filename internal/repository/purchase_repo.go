package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookstore/internal/apperrors"
	"bookstore/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPurchaseNotFound      = fmt.Errorf("进货单不存在: %w", apperrors.ErrNotFound)
	ErrPurchaseStatusInvalid = fmt.Errorf("进货单状态不允许该操作: %w", apperrors.ErrInvalidState)
)

// PurchaseFilter 进货单查询条件，时间区间左闭右开
type PurchaseFilter struct {
	Status    string
	CreatorID int64
	Start     *time.Time
	End       *time.Time
	Page      int
	PageSize  int
}

type PurchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// Create 同时写入进货单和明细
func (r *PurchaseRepository) Create(ctx context.Context, tx *gorm.DB, order *model.PurchaseOrder) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *PurchaseRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.PurchaseOrder, error) {
	if tx == nil {
		tx = r.db
	}
	var order model.PurchaseOrder
	err := tx.WithContext(ctx).
		Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetForUpdate 加行锁读取进货单及明细，只能在事务内使用
func (r *PurchaseRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.PurchaseOrder, error) {
	var order model.PurchaseOrder
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	err = tx.WithContext(ctx).
		Where("order_id = ?", id).
		Order("id ASC").
		Find(&order.Details).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus 条件更新状态：只有当前状态等于 fromStatus 时才会更新
func (r *PurchaseRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string, operatorID int64, at time.Time) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrPurchaseStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}

	switch toStatus {
	case model.PurchaseStatusPaid:
		updates["paid_at"] = at
		updates["paid_by"] = operatorID
	case model.PurchaseStatusReturned:
		updates["returned_at"] = at
		updates["returned_by"] = operatorID
	}

	result := tx.WithContext(ctx).
		Model(&model.PurchaseOrder{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrPurchaseStatusInvalid
	}

	return nil
}

func (r *PurchaseRepository) UpdateRemark(ctx context.Context, tx *gorm.DB, id int64, remark string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.PurchaseOrder{}).
		Where("id = ?", id).
		Update("remark", remark).Error
}

// ResolveDetail 新书明细挂到目录中的图书上
func (r *PurchaseRepository) ResolveDetail(ctx context.Context, tx *gorm.DB, detailID, bookID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.PurchaseDetail{}).
		Where("id = ?", detailID).
		Update("book_id", bookID).Error
}

func (r *PurchaseRepository) List(ctx context.Context, f PurchaseFilter) ([]*model.PurchaseOrder, int64, error) {
	var orders []*model.PurchaseOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PurchaseOrder{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.CreatorID > 0 {
		query = query.Where("creator_id = ?", f.CreatorID)
	}
	if f.Start != nil {
		query = query.Where("created_at >= ?", *f.Start)
	}
	if f.End != nil {
		query = query.Where("created_at < ?", *f.End)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := paginate(query.Order("created_at DESC").Order("id DESC"), f.Page, f.PageSize).
		Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Find(&orders).Error
	return orders, total, err
}
