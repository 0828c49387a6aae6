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

// AlertsRepository 报警记录仓库
type AlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertsRepository 创建报警记录仓库
func NewAlertsRepository(db *sql.DB, logger *zap.Logger) *AlertsRepository {
	return &AlertsRepository{
		db:     db,
		logger: logger,
	}
}

// RecordAlert 记录一条报警
func (r *AlertsRepository) RecordAlert(ctx context.Context, alert models.AlertRecord) (string, error) {
	alertID := uuid.New().String()

	query := `
		INSERT INTO alerts (id, patient_id, severity, message, action_taken, channel_reply, tts_generated, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		alertID, alert.PatientID, alert.Severity, alert.Message,
		alert.ActionTaken, alert.ChannelReply, alert.TTSGenerated, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to record alert: %w", err)
	}

	r.logger.Info("alert recorded",
		zap.Int("severity", alert.Severity),
		zap.String("action_taken", alert.ActionTaken))
	return alertID, nil
}

// GetAlerts 最近报警，按时间倒序
func (r *AlertsRepository) GetAlerts(ctx context.Context, patientID string, limit int) ([]models.AlertRecord, error) {
	query := `
		SELECT id, patient_id, severity, message, action_taken, channel_reply, tts_generated, timestamp
		FROM alerts
		WHERE patient_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertRecord
	for rows.Next() {
		var a models.AlertRecord
		if err := rows.Scan(&a.ID, &a.PatientID, &a.Severity, &a.Message,
			&a.ActionTaken, &a.ChannelReply, &a.TTSGenerated, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
