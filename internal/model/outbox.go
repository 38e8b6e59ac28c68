package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 业务事件类型
const (
	EventPurchaseCreated   = "purchase.created"
	EventPurchasePaid      = "purchase.paid"
	EventPurchaseReturned  = "purchase.returned"
	EventPurchaseCancelled = "purchase.cancelled"
	EventSaleCreated       = "sale.created"
)

func ValidEventType(t string) bool {
	switch t {
	case EventPurchaseCreated, EventPurchasePaid, EventPurchaseReturned, EventPurchaseCancelled, EventSaleCreated:
		return true
	}
	return false
}

// OutboxMessage 本地消息表，与业务数据在同一事务内写入，由 OutboxSender 异步投递
type OutboxMessage struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string         `gorm:"type:varchar(64);not null" json:"message_key"`
	EventType  string         `gorm:"type:varchar(64);index;not null" json:"event_type"`
	Topic      string         `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    datatypes.JSON `gorm:"not null" json:"payload"`
	Status     string         `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int            `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}
