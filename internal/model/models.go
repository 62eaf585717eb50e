package model

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// 广播流水状态
const (
	TxStatusBroadcast = "BROADCAST"
	TxStatusConfirmed = "CONFIRMED"
	TxStatusReverted  = "REVERTED"
	TxStatusTimeout   = "TIMEOUT"
	TxStatusDropped   = "DROPPED"
)

// TxRecord 广播流水表，只做审计，不作为业务状态来源 (业务状态以链上为准)
type TxRecord struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Account     string    `gorm:"type:varchar(42);not null;index:idx_account_nonce" json:"account"`
	Method      string    `gorm:"type:varchar(64);not null" json:"method"`
	Nonce       uint64    `gorm:"not null;index:idx_account_nonce" json:"nonce"`
	TxHash      string    `gorm:"type:varchar(66);not null;uniqueIndex" json:"tx_hash"`
	Status      string    `gorm:"type:varchar(16);not null;default:'BROADCAST';index" json:"status"`
	BlockNumber *uint64   `json:"block_number,omitempty"`
	GasUsed     *uint64   `json:"gas_used,omitempty"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (TxRecord) TableName() string {
	return "tx_records"
}

// OutboxMessage 本地消息表 (Transactional Outbox)
type OutboxMessage struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Topic     string         `gorm:"type:varchar(255);not null" json:"topic"`
	Key       string         `gorm:"type:varchar(255);not null;default:''" json:"key"` // 分区键 (账户地址)，保证同一账户的事件有序
	Payload   []byte         `gorm:"type:text;not null" json:"payload"`
	Status    string         `gorm:"type:varchar(50);not null;default:'PENDING';index" json:"status"` // PENDING, SENT
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// CreateOutboxMessage 在同一个事务中创建业务数据和 Outbox 消息
func CreateOutboxMessage(tx *gorm.DB, topic, key string, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := OutboxMessage{
		Topic:   topic,
		Key:     key,
		Payload: payloadBytes,
		Status:  "PENDING",
	}
	return tx.Create(&msg).Error
}
