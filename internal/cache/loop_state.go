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

// LoopState 自主巡检状态
// 记录每个患者最近一次巡检的时间与决策，巡检重启后可续
type LoopState struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// PatientLoopState 单个患者的巡检状态
type PatientLoopState struct {
	LastSweepAt  time.Time            `json:"last_sweep_at"`
	LastDecision *models.LoopDecision `json:"last_decision,omitempty"`
	SweepCount   int64                `json:"sweep_count"`
}

// NewLoopState 创建巡检状态管理器
func NewLoopState(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *LoopState {
	return &LoopState{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// stateKey 构建状态键：<prefix><patient_id_hash>
func (s *LoopState) stateKey(patientIDHash string) string {
	return s.config.Cache.StateKeyPrefix + patientIDHash
}

// RecordSweep 记录一次巡检结果
func (s *LoopState) RecordSweep(ctx context.Context, patientIDHash string, decision models.LoopDecision) error {
	prev, err := s.GetState(ctx, patientIDHash)
	if err != nil {
		return err
	}

	state := PatientLoopState{
		LastSweepAt:  time.Now().UTC(),
		LastDecision: &decision,
		SweepCount:   1,
	}
	if prev != nil {
		state.SweepCount = prev.SweepCount + 1
	}

	jsonData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal loop state: %w", err)
	}
	if err := s.redisClient.Set(ctx, s.stateKey(patientIDHash), jsonData, 0).Err(); err != nil {
		return fmt.Errorf("failed to set loop state: %w", err)
	}
	return nil
}

// GetState 读取患者巡检状态，不存在返回 nil
func (s *LoopState) GetState(ctx context.Context, patientIDHash string) (*PatientLoopState, error) {
	val, err := s.redisClient.Get(ctx, s.stateKey(patientIDHash)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get loop state: %w", err)
	}

	var state PatientLoopState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal loop state: %w", err)
	}
	return &state, nil
}
