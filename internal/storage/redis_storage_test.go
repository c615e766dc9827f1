package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/chargeamps-bridge/internal/cache"
	"github.com/charging-platform/chargeamps-bridge/internal/config"
	"github.com/charging-platform/chargeamps-bridge/internal/domain/device"
	"github.com/charging-platform/chargeamps-bridge/internal/storage"
)

func sampleSnapshot() cache.Snapshot {
	kwh := 3.01
	return cache.Snapshot{
		Info: device.ChargePoint{
			ID:   "CP001",
			Name: "Garage",
			Connectors: []device.Connector{
				{ChargePointID: "CP001", ConnectorID: 1, Type: device.ConnectorTypeCharger},
			},
		},
		Status: &device.ChargePointStatus{ID: "CP001", Status: device.ChargePointOnline},
		Settings: &device.ChargePointSettings{
			ID:     "CP001",
			Dimmer: device.DimmerLow,
		},
		ConnectorSettings: []device.ConnectorSettings{},
		TotalEnergy:       &kwh,
		RefreshedAt:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNewRedisStorage_Unreachable(t *testing.T) {
	_, err := storage.NewRedisStorage(config.RedisConfig{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
	})
	assert.Error(t, err)
}

func TestRedisStorage_SaveAndDeleteSnapshot(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rdb := &storage.RedisStorage{Client: db, Prefix: storage.DefaultPrefix}
	ctx := context.Background()

	snap := sampleSnapshot()
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	key := "chargeamps:snapshot:CP001"
	ttl := 90 * time.Second

	mock.ExpectSet(key, string(data), ttl).SetVal("OK")
	require.NoError(t, rdb.SaveSnapshot(ctx, "CP001", snap, ttl))

	var stored cache.Snapshot
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, "Garage", stored.Info.Name)
	require.NotNil(t, stored.TotalEnergy)
	assert.Equal(t, 3.01, *stored.TotalEnergy)
	assert.Equal(t, device.DimmerLow, stored.Settings.Dimmer)
	assert.True(t, stored.RefreshedAt.Equal(snap.RefreshedAt))

	mock.ExpectDel(key).SetVal(1)
	require.NoError(t, rdb.DeleteSnapshot(ctx, "CP001"))

	mock.ExpectDel(key).SetVal(0)
	require.NoError(t, rdb.DeleteSnapshot(ctx, "CP001"), "deleting a missing key is not an error")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorage_Errors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rdb := &storage.RedisStorage{Client: db, Prefix: "test:"}
	ctx := context.Background()
	redisErr := errors.New("connection refused")

	mock.ExpectSet("test:CP002", string(mustJSON(t, sampleSnapshot())), time.Minute).SetErr(redisErr)
	err := rdb.SaveSnapshot(ctx, "CP002", sampleSnapshot(), time.Minute)
	assert.ErrorIs(t, err, redisErr)

	mock.ExpectDel("test:CP002").SetErr(redisErr)
	err = rdb.DeleteSnapshot(ctx, "CP002")
	assert.ErrorIs(t, err, redisErr)
	assert.NotErrorIs(t, err, redis.Nil)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
