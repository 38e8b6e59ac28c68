package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bookstore/internal/apperrors"
	"bookstore/internal/model"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound   = fmt.Errorf("用户不存在: %w", apperrors.ErrNotFound)
	ErrUsernameExists = fmt.Errorf("用户名已存在: %w", apperrors.ErrConflict)
	ErrUserReferenced = fmt.Errorf("用户已有进货、销售或财务记录，不能删除: %w", apperrors.ErrConflict)
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, tx *gorm.DB, user *model.User) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrUsernameExists
	}
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByUsername 查询不到时返回 nil, nil
func (r *UserRepository) GetByUsername(ctx context.Context, tx *gorm.DB, username string) (*model.User, error) {
	if tx == nil {
		tx = r.db
	}
	var user model.User
	err := tx.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Count(&count).Error
	return count, err
}

func (r *UserRepository) List(ctx context.Context, search, role string, page, pageSize int) ([]*model.User, int64, error) {
	var users []*model.User
	var total int64

	query := r.db.WithContext(ctx).Model(&model.User{})
	if term := strings.TrimSpace(search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(real_name) LIKE ? OR LOWER(employee_id) LIKE ?", like, like, like)
	}
	if role != "" {
		query = query.Where("role = ?", role)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := paginate(query.Order("id ASC"), page, pageSize).Find(&users).Error
	return users, total, err
}

// UpdateProfile 修改资料和角色
func (r *UserRepository) UpdateProfile(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"real_name":   user.RealName,
			"employee_id": user.EmployeeID,
			"gender":      user.Gender,
			"age":         user.Age,
			"role":        user.Role,
		}).Error
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Update("password_hash", passwordHash).Error
}

// IsReferenced 是否被进货单、销售记录或财务记录引用
func (r *UserRepository) IsReferenced(ctx context.Context, tx *gorm.DB, userID int64) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	checks := []struct {
		model  interface{}
		column string
	}{
		{&model.PurchaseOrder{}, "creator_id"},
		{&model.SaleRecord{}, "seller_id"},
		{&model.FinancialRecord{}, "operator_id"},
	}
	for _, c := range checks {
		var count int64
		if err := tx.WithContext(ctx).Model(c.model).Where(c.column+" = ?", userID).Count(&count).Error; err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (r *UserRepository) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Delete(&model.User{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
