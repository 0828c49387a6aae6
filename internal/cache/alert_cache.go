package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/config"
	"github.com/karthiksai109/healthguard/internal/models"
)

// AlertCache 活跃报警缓存
// 读端（看板等外部消费者）查活跃报警走缓存，不压数据库
type AlertCache struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewAlertCache 创建活跃报警缓存
func NewAlertCache(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *AlertCache {
	return &AlertCache{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// key 构建缓存键：<prefix><patient_id_hash><suffix>
func (c *AlertCache) key(patientIDHash string) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Cache.AlertKeyPrefix,
		patientIDHash,
		c.config.Cache.AlertSuffix,
	)
}

// UpdateActiveAlerts 写入患者当前活跃报警（带 TTL）
func (c *AlertCache) UpdateActiveAlerts(ctx context.Context, patientIDHash string, alerts []models.AlertRecord) error {
	jsonData, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	ttl := time.Duration(c.config.Cache.AlertTTL) * time.Second
	if err := c.redisClient.Set(ctx, c.key(patientIDHash), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to update alert cache: %w", err)
	}

	c.logger.Debug("alert cache updated",
		zap.String("patient_id_hash", patientIDHash),
		zap.Int("count", len(alerts)))
	return nil
}

// GetActiveAlerts 读取患者当前活跃报警，缓存未命中返回空列表
func (c *AlertCache) GetActiveAlerts(ctx context.Context, patientIDHash string) ([]models.AlertRecord, error) {
	val, err := c.redisClient.Get(ctx, c.key(patientIDHash)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert cache: %w", err)
	}

	var alerts []models.AlertRecord
	if err := json.Unmarshal([]byte(val), &alerts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached alerts: %w", err)
	}
	return alerts, nil
}
