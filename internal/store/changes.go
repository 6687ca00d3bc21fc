package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ChangeStream 定义变更的 Redis Stream 名称
const ChangeStream = "fallguard:definitions:changes"

// RedisChangeNotifier 将定义变更追加到 Redis Stream（XADD）
type RedisChangeNotifier struct {
	client  *redis.Client
	stream  string
	timeout time.Duration
	maxLen  int64
}

// NewRedisChangeNotifier 创建 Redis 变更通知器
func NewRedisChangeNotifier(client *redis.Client) *RedisChangeNotifier {
	return &RedisChangeNotifier{
		client:  client,
		stream:  ChangeStream,
		timeout: 2 * time.Second,
		maxLen:  1000,
	}
}

// NotifyChange 实现 ChangeNotifier
func (n *RedisChangeNotifier) NotifyChange(namespace Namespace, id string, op Op) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Values: map[string]interface{}{
			"namespace": string(namespace),
			"id":        id,
			"op":        string(op),
			"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}
