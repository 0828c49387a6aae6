package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/models"
)

// LogsRepository 分析日志仓库（摘要字段加密存储）
type LogsRepository struct {
	db         *sql.DB
	encryption *Encryptor
	logger     *zap.Logger
}

// NewLogsRepository 创建分析日志仓库
func NewLogsRepository(db *sql.DB, encryption *Encryptor, logger *zap.Logger) *LogsRepository {
	return &LogsRepository{
		db:         db,
		encryption: encryption,
		logger:     logger,
	}
}

// RecordLog 记录一条分析日志
func (r *LogsRepository) RecordLog(ctx context.Context, log models.AnalysisLog) (string, error) {
	logID := uuid.New().String()

	summaryEnc, err := r.encryption.Encrypt(log.Summary)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt log summary: %w", err)
	}

	query := `
		INSERT INTO logs (id, patient_id, session_id, input_type, summary_encrypted,
			decision, reason, action_taken, model_used, anomaly_score, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, query,
		logID, log.PatientID, log.SessionID, log.InputType, summaryEnc,
		log.Decision, log.Reason, log.ActionTaken, log.ModelUsed, log.AnomalyScore,
		time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to record log: %w", err)
	}

	r.logger.Info("analysis log recorded",
		zap.String("session_id", log.SessionID),
		zap.String("input_type", log.InputType),
		zap.String("decision", log.Decision))
	return logID, nil
}

// GetLogs 最近的分析日志，按时间倒序
func (r *LogsRepository) GetLogs(ctx context.Context, patientID string, limit int) ([]models.AnalysisLog, error) {
	query := `
		SELECT id, patient_id, session_id, input_type, summary_encrypted,
			decision, reason, action_taken, model_used, anomaly_score, timestamp
		FROM logs
		WHERE patient_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var logs []models.AnalysisLog
	for rows.Next() {
		var l models.AnalysisLog
		var summaryEnc string
		if err := rows.Scan(&l.ID, &l.PatientID, &l.SessionID, &l.InputType, &summaryEnc,
			&l.Decision, &l.Reason, &l.ActionTaken, &l.ModelUsed, &l.AnomalyScore, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		if summary, err := r.encryption.Decrypt(summaryEnc); err == nil {
			l.Summary = summary
		} else {
			l.Summary = "[decryption failed]"
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
