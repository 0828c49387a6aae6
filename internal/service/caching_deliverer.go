package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/models"
)

// Deliverer 投递引擎抽象（装饰用）
type Deliverer interface {
	Deliver(ctx context.Context, patientID string, decision models.FusedDecision) (models.DeliveryReceipt, error)
}

// AlertReader 最近报警查询（缓存刷新用）
type AlertReader interface {
	GetAlerts(ctx context.Context, patientID string, limit int) ([]models.AlertRecord, error)
}

// AlertCacheWriter 活跃报警缓存写入
type AlertCacheWriter interface {
	UpdateActiveAlerts(ctx context.Context, patientIDHash string, alerts []models.AlertRecord) error
}

// cachingDeliverer 投递成功后刷新患者活跃报警缓存
// 缓存刷新失败只记日志，投递结果不受影响
type cachingDeliverer struct {
	next   Deliverer
	alerts AlertReader
	cache  AlertCacheWriter
	hashFn func(string) string
	logger *zap.Logger
}

func newCachingDeliverer(next Deliverer, alerts AlertReader, cache AlertCacheWriter, hashFn func(string) string, logger *zap.Logger) *cachingDeliverer {
	return &cachingDeliverer{
		next:   next,
		alerts: alerts,
		cache:  cache,
		hashFn: hashFn,
		logger: logger,
	}
}

func (d *cachingDeliverer) Deliver(ctx context.Context, patientID string, decision models.FusedDecision) (models.DeliveryReceipt, error) {
	receipt, err := d.next.Deliver(ctx, patientID, decision)
	if err != nil {
		return receipt, err
	}

	active, err := d.alerts.GetAlerts(ctx, patientID, 10)
	if err != nil {
		d.logger.Warn("failed to load alerts for cache refresh", zap.Error(err))
		return receipt, nil
	}
	if err := d.cache.UpdateActiveAlerts(ctx, d.hashFn(patientID), active); err != nil {
		d.logger.Warn("failed to refresh alert cache", zap.Error(err))
	}
	return receipt, nil
}
