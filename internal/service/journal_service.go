package service

import (
	"context"
	"log"
	"strings"
	"time"

	"ledger-core/internal/model"
	"ledger-core/pkg/ledger"

	"gorm.io/gorm"
)

// ReceiptEvent 写入 outbox 的回执事件
type ReceiptEvent struct {
	Account     string    `json:"account"`
	Method      string    `json:"method"`
	Nonce       uint64    `json:"nonce"`
	TxHash      string    `json:"txHash"`
	Stage       string    `json:"stage"`
	BlockNumber *uint64   `json:"blockNumber,omitempty"`
	GasUsed     *uint64   `json:"gasUsed,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// journalStore 流水与 outbox 的持久化，生产环境是 gormJournalStore
type journalStore interface {
	CreateTxRecord(ctx context.Context, rec *model.TxRecord) error
	// SettleTxRecord 更新流水终态，并在同一个数据库事务中写入 outbox 消息
	SettleTxRecord(ctx context.Context, txHash string, updates map[string]interface{}, topic, key string, payload interface{}) error
}

type gormJournalStore struct {
	db *gorm.DB
}

func (s *gormJournalStore) CreateTxRecord(ctx context.Context, rec *model.TxRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *gormJournalStore) SettleTxRecord(ctx context.Context, txHash string, updates map[string]interface{}, topic, key string, payload interface{}) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 更新流水状态
		if err := tx.Model(&model.TxRecord{}).Where("tx_hash = ?", txHash).Updates(updates).Error; err != nil {
			return err
		}
		// 2. 同一事务写 outbox，由 RelayService 投递
		return model.CreateOutboxMessage(tx, topic, key, payload)
	})
}

// JournalService 实现 ledger.Journal: 广播流水落库，终态变化与 outbox 消息在同一个事务中写入
type JournalService struct {
	store journalStore
	topic string
	now   func() time.Time
}

var _ ledger.Journal = (*JournalService)(nil)

func NewJournalService(db *gorm.DB, topic string) *JournalService {
	return newJournalService(&gormJournalStore{db: db}, topic)
}

func newJournalService(store journalStore, topic string) *JournalService {
	return &JournalService{store: store, topic: topic, now: time.Now}
}

// Record 写库失败只记日志，不影响链上交易的结果
func (s *JournalService) Record(ctx context.Context, entry ledger.JournalEntry) {
	event := newReceiptEvent(entry, s.now())

	if entry.Stage == ledger.StageBroadcast {
		rec := model.TxRecord{
			Account: event.Account,
			Method:  event.Method,
			Nonce:   event.Nonce,
			TxHash:  event.TxHash,
			Status:  model.TxStatusBroadcast,
		}
		if err := s.store.CreateTxRecord(ctx, &rec); err != nil {
			log.Printf("[Journal] 写入广播记录失败 tx=%s: %v", event.TxHash, err)
		}
		return
	}

	updates := map[string]interface{}{
		"status":       event.Stage,
		"block_number": event.BlockNumber,
		"gas_used":     event.GasUsed,
		"error":        event.Error,
	}
	if err := s.store.SettleTxRecord(ctx, event.TxHash, updates, s.topic, event.Account, event); err != nil {
		log.Printf("[Journal] 更新流水失败 tx=%s stage=%s: %v", event.TxHash, event.Stage, err)
	}
}

func newReceiptEvent(entry ledger.JournalEntry, at time.Time) ReceiptEvent {
	event := ReceiptEvent{
		Account: strings.ToLower(entry.Account.Hex()),
		Method:  entry.Method,
		Nonce:   entry.Nonce,
		TxHash:  entry.TxHash.Hex(),
		Stage:   string(entry.Stage),
		At:      at.UTC(),
	}
	if r := entry.Receipt; r != nil {
		gas := r.GasUsed
		event.GasUsed = &gas
		if r.BlockNumber != nil {
			block := r.BlockNumber.Uint64()
			event.BlockNumber = &block
		}
	}
	if entry.Err != nil {
		event.Error = entry.Err.Error()
	}
	return event
}
