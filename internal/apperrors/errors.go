package apperrors

import (
	"errors"
	"strings"
)

// 错误分类，handler 层按分类映射 HTTP 状态码
var (
	ErrValidation        = errors.New("参数校验失败")
	ErrNotFound          = errors.New("资源不存在")
	ErrConflict          = errors.New("资源冲突")
	ErrInvalidState      = errors.New("当前状态不允许该操作")
	ErrInsufficientStock = errors.New("库存不足")
	ErrUnauthorized      = errors.New("未登录或登录已过期")
	ErrForbidden         = errors.New("权限不足")
)

// FieldError 字段级校验错误
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError 携带字段明细的校验错误，errors.Is(err, ErrValidation) 为 true
type ValidationError struct {
	Fields []FieldError
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
