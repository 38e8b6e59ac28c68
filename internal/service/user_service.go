package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bookstore/internal/apperrors"
	"bookstore/internal/auth"
	"bookstore/internal/config"
	"bookstore/internal/model"
	"bookstore/internal/repository"

	"gorm.io/gorm"
)

var ErrInvalidCredentials = fmt.Errorf("用户名或密码错误: %w", apperrors.ErrUnauthorized)

type UserService struct {
	db       *gorm.DB
	cfg      *config.Config
	tokens   *auth.TokenManager
	userRepo *repository.UserRepository
}

func NewUserService(db *gorm.DB, tokens *auth.TokenManager, cfg *config.Config) *UserService {
	return &UserService{
		db:       db,
		cfg:      cfg,
		tokens:   tokens,
		userRepo: repository.NewUserRepository(db),
	}
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Token     string
	ExpiresIn int64 // 秒
	User      *model.User
}

func (s *UserService) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	if err := validateStruct(req, ""); err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByUsername(ctx, nil, strings.TrimSpace(req.Username))
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		slog.WarnContext(ctx, "登录失败", "username", req.Username)
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "登录成功", "user_id", user.ID, "role", user.Role)
	return &LoginResult{
		Token:     token,
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
		User:      user,
	}, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, search, role string, page, pageSize int) ([]*model.User, int64, error) {
	if role != "" && !model.ValidRole(role) {
		return nil, 0, apperrors.NewValidationError("role", "必须是以下值之一: NONE ADMIN SUPER_ADMIN")
	}
	return s.userRepo.List(ctx, search, role, page, pageSize)
}

type CreateUserRequest struct {
	Username   string `json:"username" validate:"required,min=3,max=50"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
	RealName   string `json:"real_name" validate:"max=255"`
	EmployeeID string `json:"employee_id" validate:"max=20"`
	Gender     string `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	Age        *int   `json:"age" validate:"omitempty,gte=0,lte=150"`
	Role       string `json:"role" validate:"omitempty,oneof=NONE ADMIN SUPER_ADMIN"`
}

// Create 用户名重复返回 Conflict
func (s *UserService) Create(ctx context.Context, req *CreateUserRequest) (*model.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := validateStruct(req, ""); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("密码加密失败: %w", err)
	}

	role := req.Role
	if role == "" {
		role = model.RoleNone
	}
	user := &model.User{
		Username:     req.Username,
		PasswordHash: hash,
		RealName:     req.RealName,
		EmployeeID:   req.EmployeeID,
		Gender:       req.Gender,
		Age:          req.Age,
		Role:         role,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.userRepo.GetByUsername(ctx, tx, user.Username)
		if err != nil {
			return err
		}
		if existing != nil {
			return repository.ErrUsernameExists
		}
		return s.userRepo.Create(ctx, tx, user)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "创建用户", "user_id", user.ID, "username", user.Username, "role", user.Role)
	return user, nil
}

type UpdateUserRequest struct {
	RealName   *string `json:"real_name" validate:"omitempty,max=255"`
	EmployeeID *string `json:"employee_id" validate:"omitempty,max=20"`
	Gender     *string `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	Age        *int    `json:"age" validate:"omitempty,gte=0,lte=150"`
	Role       *string `json:"role" validate:"omitempty,oneof=NONE ADMIN SUPER_ADMIN"`
	Password   *string `json:"password" validate:"omitempty,min=6,max=72"`
}

// Update 只修改请求里出现的字段
func (s *UserService) Update(ctx context.Context, id int64, req *UpdateUserRequest) (*model.User, error) {
	if err := validateStruct(req, ""); err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.RealName != nil {
		user.RealName = *req.RealName
	}
	if req.EmployeeID != nil {
		user.EmployeeID = *req.EmployeeID
	}
	if req.Gender != nil {
		user.Gender = *req.Gender
	}
	if req.Age != nil {
		user.Age = req.Age
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}

	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return nil, fmt.Errorf("密码加密失败: %w", err)
		}
		if err := s.userRepo.UpdatePassword(ctx, id, hash); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// Delete 不能删除自己，被业务记录引用时返回 Conflict
func (s *UserService) Delete(ctx context.Context, id, operatorID int64) error {
	if id == operatorID {
		return fmt.Errorf("不能删除当前登录用户: %w", apperrors.ErrConflict)
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		referenced, err := s.userRepo.IsReferenced(ctx, tx, id)
		if err != nil {
			return err
		}
		if referenced {
			return repository.ErrUserReferenced
		}
		return s.userRepo.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "删除用户", "user_id", id, "operator_id", operatorID)
	return nil
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=72"`
}

func (s *UserService) ChangePassword(ctx context.Context, userID int64, req *ChangePasswordRequest) error {
	if err := validateStruct(req, ""); err != nil {
		return err
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(user.PasswordHash, req.OldPassword) {
		return apperrors.NewValidationError("old_password", "原密码错误")
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("密码加密失败: %w", err)
	}
	return s.userRepo.UpdatePassword(ctx, userID, hash)
}

// EnsureBootstrapAdmin 用户表为空时创建超级管理员
func (s *UserService) EnsureBootstrapAdmin(ctx context.Context) error {
	count, err := s.userRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("统计用户失败: %w", err)
	}
	if count > 0 {
		return nil
	}
	if s.cfg.Auth.BootstrapPassword == "" {
		slog.WarnContext(ctx, "用户表为空且未配置 auth.bootstrap_password，跳过初始化管理员")
		return nil
	}

	_, err = s.Create(ctx, &CreateUserRequest{
		Username: s.cfg.Auth.BootstrapUsername,
		Password: s.cfg.Auth.BootstrapPassword,
		RealName: "超级管理员",
		Role:     model.RoleSuperAdmin,
	})
	if err != nil {
		return fmt.Errorf("初始化超级管理员失败: %w", err)
	}
	return nil
}
