package storage

import (
	"context"
	"time"

	"github.com/charging-platform/chargeamps-bridge/internal/cache"
)

// SnapshotStorage 定义了充电桩状态快照的镜像存储接口
type SnapshotStorage interface {
	// SaveSnapshot 写入充电桩快照
	// ttl: 键的过期时间，桥接进程停止后快照自动失效
	SaveSnapshot(ctx context.Context, chargePointID string, snapshot cache.Snapshot, ttl time.Duration) error

	// DeleteSnapshot 删除快照（例如充电桩不再属于当前账号）
	DeleteSnapshot(ctx context.Context, chargePointID string) error

	// Close 关闭与存储后端的连接
	Close() error
}

var _ SnapshotStorage = (*RedisStorage)(nil)
