package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/charging-platform/chargeamps-bridge/internal/cache"
	"github.com/charging-platform/chargeamps-bridge/internal/config"
)

// DefaultPrefix 快照键前缀
const DefaultPrefix = "chargeamps:snapshot:"

// RedisStorage 使用 Redis 镜像充电桩快照，供其他服务只读查询
type RedisStorage struct {
	Client *redis.Client
	Prefix string
}

// NewRedisStorage 创建一个新的 RedisStorage 实例
func NewRedisStorage(cfg config.RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStorage{Client: client, Prefix: prefix}, nil
}

// Key 返回充电桩快照的键
func (r *RedisStorage) Key(chargePointID string) string {
	return r.Prefix + chargePointID
}

// SaveSnapshot 以 JSON 写入快照
func (r *RedisStorage) SaveSnapshot(ctx context.Context, chargePointID string, snapshot cache.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", chargePointID, err)
	}
	return r.Client.Set(ctx, r.Key(chargePointID), string(data), ttl).Err()
}

// DeleteSnapshot 删除快照
func (r *RedisStorage) DeleteSnapshot(ctx context.Context, chargePointID string) error {
	return r.Client.Del(ctx, r.Key(chargePointID)).Err()
}

// Close 关闭与存储后端的连接
func (r *RedisStorage) Close() error {
	return r.Client.Close()
}
