package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/config"
	"github.com/karthiksai109/healthguard/internal/models"
)

func setupCacheTest(t *testing.T) (*miniredis.Miniredis, *redis.Client, *config.Config) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{}
	cfg.Cache.AlertKeyPrefix = "healthguard:patient:"
	cfg.Cache.AlertSuffix = ":alerts"
	cfg.Cache.AlertTTL = 300
	cfg.Cache.StateKeyPrefix = "healthguard:loop:"

	return mr, client, cfg
}

func TestAlertCache_UpdateAndGet(t *testing.T) {
	mr, client, cfg := setupCacheTest(t)
	cache := NewAlertCache(cfg, client, zap.NewNop())
	ctx := context.Background()

	alerts := []models.AlertRecord{
		{ID: "a1", Severity: 1, Message: "CRITICAL: SpO2 85% ≤ 90. Severe hypoxia.", ActionTaken: "telegram_alert"},
	}

	require.NoError(t, cache.UpdateActiveAlerts(ctx, "hash-1", alerts))

	// 键格式：前缀 + 患者哈希 + 后缀
	assert.True(t, mr.Exists("healthguard:patient:hash-1:alerts"))

	got, err := cache.GetActiveAlerts(ctx, "hash-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, 1, got[0].Severity)
}

func TestAlertCache_MissReturnsEmpty(t *testing.T) {
	_, client, cfg := setupCacheTest(t)
	cache := NewAlertCache(cfg, client, zap.NewNop())

	got, err := cache.GetActiveAlerts(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAlertCache_TTLSet(t *testing.T) {
	mr, client, cfg := setupCacheTest(t)
	cache := NewAlertCache(cfg, client, zap.NewNop())

	require.NoError(t, cache.UpdateActiveAlerts(context.Background(), "hash-2", nil))

	ttl := mr.TTL("healthguard:patient:hash-2:alerts")
	assert.Equal(t, 300*time.Second, ttl)
}

func TestLoopState_RecordAndGet(t *testing.T) {
	_, client, cfg := setupCacheTest(t)
	state := NewLoopState(cfg, client, zap.NewNop())
	ctx := context.Background()

	decision := models.LoopDecision{Action: "idle", Reason: "stable vitals", Severity: 3}
	require.NoError(t, state.RecordSweep(ctx, "hash-3", decision))

	got, err := state.GetState(ctx, "hash-3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.SweepCount)
	assert.Equal(t, "idle", got.LastDecision.Action)
	assert.False(t, got.LastSweepAt.IsZero())
}

func TestLoopState_SweepCountIncrements(t *testing.T) {
	_, client, cfg := setupCacheTest(t)
	state := NewLoopState(cfg, client, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, state.RecordSweep(ctx, "hash-4", models.LoopDecision{Action: "idle"}))
	}

	got, err := state.GetState(ctx, "hash-4")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.SweepCount)
}

func TestLoopState_UnknownPatient(t *testing.T) {
	_, client, cfg := setupCacheTest(t)
	state := NewLoopState(cfg, client, zap.NewNop())

	got, err := state.GetState(context.Background(), "never-swept")
	require.NoError(t, err)
	assert.Nil(t, got)
}
