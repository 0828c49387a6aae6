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

// VitalsRepository 体征读数仓库（记录后不可变）
type VitalsRepository struct {
	db         *sql.DB
	encryption *Encryptor
	logger     *zap.Logger
}

// NewVitalsRepository 创建体征读数仓库
func NewVitalsRepository(db *sql.DB, encryption *Encryptor, logger *zap.Logger) *VitalsRepository {
	return &VitalsRepository{
		db:         db,
		encryption: encryption,
		logger:     logger,
	}
}

// RecordVital 记录一条体征读数，备注加密存储
func (r *VitalsRepository) RecordVital(ctx context.Context, patientID, metricType string, value float64, unit, note, source string) (string, error) {
	vitalID := uuid.New().String()

	noteEnc := ""
	if note != "" {
		var err error
		noteEnc, err = r.encryption.Encrypt(note)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt vital note: %w", err)
		}
	}

	query := `
		INSERT INTO vitals (id, patient_id, metric_type, value, unit, note_encrypted, timestamp, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		vitalID, patientID, metricType, value, unit, noteEnc, time.Now().UTC(), source)
	if err != nil {
		return "", fmt.Errorf("failed to record vital: %w", err)
	}

	r.logger.Info("vital recorded",
		zap.String("metric_type", metricType),
		zap.Float64("value", value),
		zap.String("source", source))
	return vitalID, nil
}

// GetVitals 最近 days 天的体征历史，按时间倒序
func (r *VitalsRepository) GetVitals(ctx context.Context, patientID string, days int) ([]models.VitalReading, error) {
	query := `
		SELECT id, patient_id, metric_type, value, unit, note_encrypted, timestamp, source
		FROM vitals
		WHERE patient_id = $1
		  AND timestamp >= $2
		ORDER BY timestamp DESC
	`
	since := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := r.db.QueryContext(ctx, query, patientID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query vitals: %w", err)
	}
	defer rows.Close()

	var readings []models.VitalReading
	for rows.Next() {
		var v models.VitalReading
		var noteEnc string
		if err := rows.Scan(&v.ID, &v.PatientID, &v.MetricType, &v.Value, &v.Unit, &noteEnc, &v.Timestamp, &v.Source); err != nil {
			return nil, fmt.Errorf("failed to scan vital: %w", err)
		}
		if noteEnc != "" {
			// 解密失败按空备注处理，不中断整批读取
			if note, err := r.encryption.Decrypt(noteEnc); err == nil {
				v.Note = note
			}
		}
		readings = append(readings, v)
	}
	return readings, rows.Err()
}

// GetLatestVitals 每种指标的最新读数（规则引擎入参快照）
func (r *VitalsRepository) GetLatestVitals(ctx context.Context, patientID string) (models.VitalsSnapshot, error) {
	query := `
		SELECT DISTINCT ON (metric_type) metric_type, value, unit, timestamp
		FROM vitals
		WHERE patient_id = $1
		ORDER BY metric_type, timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest vitals: %w", err)
	}
	defer rows.Close()

	snapshot := models.VitalsSnapshot{}
	for rows.Next() {
		var metricType, unit string
		var value float64
		var ts time.Time
		if err := rows.Scan(&metricType, &value, &unit, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan latest vital: %w", err)
		}
		snapshot[metricType] = models.VitalValue{
			Value:     value,
			Unit:      unit,
			Timestamp: ts.Format(time.RFC3339),
		}
	}
	return snapshot, rows.Err()
}
