package service

import (
	"context"
	"log"
	"time"

	"ledger-core/internal/model"
	"ledger-core/internal/service/mq"
	"ledger-core/pkg/monitor"

	"gorm.io/gorm"
)

// outboxStore 本地消息表的读取与状态更新
type outboxStore interface {
	PendingOutbox(ctx context.Context, limit int) ([]model.OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, id uint64) error
}

type gormOutboxStore struct {
	db *gorm.DB
}

// PendingOutbox 按 ID 顺序取一批 PENDING 消息，保证同一账户的事件按写入顺序投递
func (s *gormOutboxStore) PendingOutbox(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	var messages []model.OutboxMessage
	err := s.db.WithContext(ctx).Where("status = ?", "PENDING").Order("id").Limit(limit).Find(&messages).Error
	return messages, err
}

func (s *gormOutboxStore) MarkOutboxSent(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Model(&model.OutboxMessage{}).Where("id = ?", id).Update("status", "SENT").Error
}

// RelayService 负责将本地消息表的消息搬运到 MQ
type RelayService struct {
	store    outboxStore
	producer mq.Producer
	interval time.Duration
	batch    int
}

func NewRelayService(db *gorm.DB, producer mq.Producer) *RelayService {
	return newRelayService(&gormOutboxStore{db: db}, producer)
}

func newRelayService(store outboxStore, producer mq.Producer) *RelayService {
	return &RelayService{
		store:    store,
		producer: producer,
		interval: 500 * time.Millisecond,
		batch:    50,
	}
}

func (s *RelayService) Start(ctx context.Context) {
	log.Println("[Relay] 启动消息中继服务...")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Relay] 停止服务")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *RelayService) processPendingMessages(ctx context.Context) {
	// 1. 取一批待投递消息
	messages, err := s.store.PendingOutbox(ctx, s.batch)
	if err != nil {
		log.Printf("[Relay] 查询消息失败: %v", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	for _, msg := range messages {
		// 2. 发送 MQ
		if err := s.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			log.Printf("[Relay] 发送消息 ID=%d 失败: %v", msg.ID, err)
			monitor.OutboxPublished("error")
			// 同一批后续消息可能属于同一账户，停止本轮以保持顺序
			return
		}
		monitor.OutboxPublished("sent")

		// 3. 发送成功再更新状态 => At-least-once，消费方需要按 txHash+stage 幂等
		if err := s.store.MarkOutboxSent(ctx, msg.ID); err != nil {
			log.Printf("[Relay] 更新状态 ID=%d 失败: %v", msg.ID, err)
		}
	}
}
