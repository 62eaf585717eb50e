package mq

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisProducer 基于 Redis Streams 的 Producer
type RedisProducer struct {
	client redis.Cmdable
	maxLen int64
}

func NewRedisProducer(client redis.Cmdable) *RedisProducer {
	return &RedisProducer{client: client, maxLen: 100_000}
}

// Publish XADD 到 stream，key 作为字段保存
func (p *RedisProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"key":     key,
			"payload": payload,
		},
	}).Err()
	if err != nil {
		log.Printf("[MQ] Publish Error: %v", err)
		return fmt.Errorf("redis xadd error: %w", err)
	}
	return nil
}

// RedisConsumer 基于消费者组的 Consumer
type RedisConsumer struct {
	client *redis.Client
	group  string
	name   string
}

func NewRedisConsumer(client *redis.Client, group, name string) *RedisConsumer {
	return &RedisConsumer{client: client, group: group, name: name}
}

// Subscribe 阻塞读取直到 ctx 结束
func (c *RedisConsumer) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	// 1. 创建 Consumer Group (如果不存在)
	err := c.client.XGroupCreateMkStream(ctx, topic, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("创建消费者组失败: %w", err)
	}
	log.Printf("[Redis MQ] 开始监听主题: %s (Group: %s)", topic, c.group)

	for {
		if ctx.Err() != nil {
			return nil
		}

		// 2. 阻塞读取
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{topic, ">"},
			Count:    10,
			Block:    2 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[Redis MQ] 读取消息错误: %v", err)
			time.Sleep(time.Second)
			continue
		}

		// 3. 处理
		for _, stream := range streams {
			for _, x := range stream.Messages {
				msg := decodeStreamMessage(topic, x)
				if msg == nil {
					log.Printf("[Redis MQ] 消息格式错误: payload 缺失 (id=%s)", x.ID)
					c.client.XAck(ctx, topic, c.group, x.ID)
					continue
				}
				if err := handler(msg); err != nil {
					log.Printf("[Redis MQ] 消息处理失败: %v", err)
					continue
				}
				c.client.XAck(ctx, topic, c.group, x.ID)
			}
		}
	}
}

func (c *RedisConsumer) Close() error {
	return c.client.Close()
}

func decodeStreamMessage(topic string, x redis.XMessage) *Message {
	payload, ok := x.Values["payload"].(string)
	if !ok {
		return nil
	}
	key, _ := x.Values["key"].(string)
	return &Message{ID: x.ID, Topic: topic, Key: key, Payload: []byte(payload)}
}
