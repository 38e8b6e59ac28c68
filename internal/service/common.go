package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"bookstore/internal/apperrors"
	"bookstore/internal/model"
	"bookstore/internal/repository"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DateLayout = "2006-01-02"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 错误字段名使用 json tag
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct 把 validator 的错误转换成 apperrors.ValidationError，prefix 用于列表元素
func validateStruct(s interface{}, prefix string) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	verr := &apperrors.ValidationError{}
	for _, fe := range ves {
		verr.Add(prefix+fe.Field(), fieldMessage(fe))
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "不能为空"
	case "gt":
		return "必须大于 " + fe.Param()
	case "gte":
		return "不能小于 " + fe.Param()
	case "lte":
		return "不能大于 " + fe.Param()
	case "min":
		return "长度不能小于 " + fe.Param()
	case "max":
		return "长度不能超过 " + fe.Param()
	case "oneof":
		return "必须是以下值之一: " + fe.Param()
	default:
		return "格式不正确"
	}
}

// eventWriter 在业务事务内写本地消息表，未启用 Kafka 时不写
type eventWriter struct {
	repo    *repository.OutboxRepository
	topic   string
	enabled bool
}

func (w *eventWriter) write(ctx context.Context, tx *gorm.DB, eventType, key string, payload interface{}) error {
	if w == nil || !w.enabled {
		return nil
	}
	body, err := json.Marshal(map[string]interface{}{
		"event": eventType,
		"data":  payload,
	})
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}
	msg := &model.OutboxMessage{
		MessageKey: key,
		EventType:  eventType,
		Topic:      w.topic,
		Payload:    datatypes.JSON(body),
		Status:     model.OutboxStatusPending,
	}
	if err := w.repo.Append(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}

// DayStart 当天 0 点（本地时区）
func DayStart(t time.Time) time.Time {
	y, m, d := t.In(time.Local).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

// ParseDate 解析 YYYY-MM-DD，返回当天 0 点
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(field, "日期格式不正确，应为 YYYY-MM-DD")
	}
	return t, nil
}

// ParseDateRange 解析可选的日期区间，返回 [start, end+1天)；end 早于 start 时报错
func ParseDateRange(startDate, endDate string) (*time.Time, *time.Time, error) {
	var start, end *time.Time
	if startDate != "" {
		t, err := ParseDate("start_date", startDate)
		if err != nil {
			return nil, nil, err
		}
		start = &t
	}
	if endDate != "" {
		t, err := ParseDate("end_date", endDate)
		if err != nil {
			return nil, nil, err
		}
		t = t.AddDate(0, 0, 1)
		end = &t
	}
	if start != nil && end != nil && !end.After(*start) {
		return nil, nil, apperrors.NewValidationError("end_date", "结束日期不能早于开始日期")
	}
	return start, end, nil
}
