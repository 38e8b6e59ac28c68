package repository

import (
	"context"

	"bookstore/internal/model"

	"gorm.io/gorm"
)

// OutboxRepository 本地消息表。进货、销售事件与业务数据同事务写入，
// 由 OutboxSender 异步投递到 Kafka
type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// OutboxFilter 失败消息查询条件，零值表示不限
type OutboxFilter struct {
	EventType string
	IDs       []int64
}

func (f OutboxFilter) apply(q *gorm.DB) *gorm.DB {
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	return q
}

// Append 必须传入业务事务，保证事件和单据一起提交或回滚
func (r *OutboxRepository) Append(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(msg).Error
}

// ListPending 按写入顺序取待投递消息，同一单据的事件保持先后
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// MarkSent 只把 PENDING 改成 SENT，并发的重放不会把已发送的消息改回去
func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Update("status", model.OutboxStatusSent).Error
}

// RecordFailure 重试次数加一，exhausted 时同一条语句里置为 FAILED
func (r *OutboxRepository) RecordFailure(ctx context.Context, id int64, exhausted bool) error {
	updates := map[string]interface{}{
		"retry_count": gorm.Expr("retry_count + 1"),
	}
	if exhausted {
		updates["status"] = model.OutboxStatusFailed
	}
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Updates(updates).Error
}

// ListFailed 最近失败的消息在前
func (r *OutboxRepository) ListFailed(ctx context.Context, filter OutboxFilter, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	q := r.db.WithContext(ctx).Where("status = ?", model.OutboxStatusFailed)
	err := filter.apply(q).
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// Requeue 把 FAILED 消息重新放回待投递队列并清零重试次数，返回影响条数
func (r *OutboxRepository) Requeue(ctx context.Context, filter OutboxFilter) (int64, error) {
	q := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("status = ?", model.OutboxStatusFailed)
	result := filter.apply(q).Updates(map[string]interface{}{
		"status":      model.OutboxStatusPending,
		"retry_count": 0,
	})
	return result.RowsAffected, result.Error
}

// CountByStatus 各状态的消息数，没有消息的状态为 0
func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := map[string]int64{
		model.OutboxStatusPending: 0,
		model.OutboxStatusSent:    0,
		model.OutboxStatusFailed:  0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
