package model

import (
	"time"
)

// 角色：NONE 为普通员工，只能登录、查询和录入销售
const (
	RoleNone       = "NONE"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
)

var roleRank = map[string]int{
	RoleNone:       0,
	RoleAdmin:      1,
	RoleSuperAdmin: 2,
}

// ValidRole 判断角色是否合法
func ValidRole(role string) bool {
	_, ok := roleRank[role]
	return ok
}

// RoleSatisfies 判断 role 是否满足 required 的权限要求（超级管理员满足管理员要求）
func RoleSatisfies(role, required string) bool {
	have, ok := roleRank[role]
	if !ok {
		return false
	}
	return have >= roleRank[required]
}

// User 系统用户（店员/管理员）
// 被进货单、销售记录、财务记录引用，但不拥有它们
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"type:varchar(100);not null" json:"-"` // bcrypt
	RealName     string    `gorm:"type:varchar(255);not null;default:''" json:"real_name"`
	EmployeeID   string    `gorm:"type:varchar(20);not null;default:''" json:"employee_id"`
	Gender       string    `gorm:"type:varchar(10);not null;default:''" json:"gender"`
	Age          *int      `json:"age"`
	Role         string    `gorm:"type:varchar(20);not null;default:NONE" json:"role"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
