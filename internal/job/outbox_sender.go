package job

import (
	"context"
	"log/slog"
	"time"

	"bookstore/internal/config"
	"bookstore/internal/infrastructure/mq"
	"bookstore/internal/model"
	"bookstore/internal/repository"

	"gorm.io/gorm"
)

// OutboxSender 轮询 outbox_message 表，把待发送的业务事件投递到消息队列
type OutboxSender struct {
	outboxRepo    *repository.OutboxRepository
	publisher     mq.Publisher
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
	maxRetryCount int
	logger        *slog.Logger
}

func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, cfg *config.JobConfig) *OutboxSender {
	s := &OutboxSender{
		outboxRepo:    repository.NewOutboxRepository(db),
		publisher:     publisher,
		stopCh:        make(chan struct{}),
		interval:      cfg.OutboxInterval,
		batchSize:     cfg.OutboxBatchSize,
		maxRetryCount: cfg.MaxRetryCount,
		logger:        slog.Default().With("job", "OutboxSender"),
	}
	if s.interval <= 0 {
		s.interval = 500 * time.Millisecond
	}
	if s.batchSize <= 0 {
		s.batchSize = 100
	}
	if s.maxRetryCount <= 0 {
		s.maxRetryCount = 5
	}
	return s
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("消息发送任务启动", "interval", s.interval, "batch_size", s.batchSize)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.logger.Info("任务停止")
			return
		case <-ticker.C:
			s.ProcessPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessPendingMessages 处理一批待发送消息，返回发送成功的条数
func (s *OutboxSender) ProcessPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.ListPending(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("查询消息失败", "error", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.MarkSent(ctx, msg.ID); updateErr != nil {
			s.logger.Error("更新消息状态失败", "id", msg.ID, "error", updateErr)
			return false
		}
		s.logger.Debug("消息发送成功", "id", msg.ID, "topic", msg.Topic, "key", msg.MessageKey, "event", msg.EventType)
		return true
	}

	s.logger.Warn("消息发送失败", "id", msg.ID, "retry_count", msg.RetryCount, "error", err)

	exhausted := msg.RetryCount+1 >= s.maxRetryCount
	if err := s.outboxRepo.RecordFailure(ctx, msg.ID, exhausted); err != nil {
		s.logger.Error("记录发送失败出错", "id", msg.ID, "error", err)
		return false
	}
	if exhausted {
		s.logger.Error("消息超过最大重试次数，标记为失败", "id", msg.ID, "event", msg.EventType, "key", msg.MessageKey)
	}
	return false
}

