package service

import (
	"context"
	"log/slog"

	"bookstore/internal/apperrors"
	"bookstore/internal/model"
	"bookstore/internal/repository"

	"gorm.io/gorm"
)

const maxFailedListLimit = 500

// OutboxService 运维用：查看投递失败的业务事件并重新入队
type OutboxService struct {
	repo *repository.OutboxRepository
}

func NewOutboxService(db *gorm.DB) *OutboxService {
	return &OutboxService{repo: repository.NewOutboxRepository(db)}
}

func checkEventType(eventType string) error {
	if eventType != "" && !model.ValidEventType(eventType) {
		return apperrors.NewValidationError("event_type", "不支持的事件类型")
	}
	return nil
}

// Failed limit 不传时取 50
func (s *OutboxService) Failed(ctx context.Context, eventType string, limit int) ([]*model.OutboxMessage, error) {
	if err := checkEventType(eventType); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > maxFailedListLimit {
		return nil, apperrors.NewValidationError("limit", "不能超过 500")
	}
	return s.repo.ListFailed(ctx, repository.OutboxFilter{EventType: eventType}, limit)
}

type RequeueRequest struct {
	EventType string  `json:"event_type"`
	IDs       []int64 `json:"ids" validate:"omitempty,dive,gt=0"`
}

// Requeue 不带条件时重放全部失败消息
func (s *OutboxService) Requeue(ctx context.Context, req *RequeueRequest) (int64, error) {
	if err := validateStruct(req, ""); err != nil {
		return 0, err
	}
	if err := checkEventType(req.EventType); err != nil {
		return 0, err
	}
	n, err := s.repo.Requeue(ctx, repository.OutboxFilter{EventType: req.EventType, IDs: req.IDs})
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "失败消息重新入队", "count", n, "event", req.EventType, "ids", req.IDs)
	return n, nil
}

func (s *OutboxService) Stats(ctx context.Context) (map[string]int64, error) {
	return s.repo.CountByStatus(ctx)
}
