package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/models"
)

// AuditRepository 审计仓库
// append-only：条目写入后不更新不删除，擦除请求只做匿名化墓碑
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository 创建审计仓库
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append 追加一条审计条目
// payload 为任意可序列化结构，落库为 JSONB
func (r *AuditRepository) Append(ctx context.Context, entryType, patientIDHash string, payload interface{}) (string, error) {
	actionID := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO audit_entries (action_id, type, patient_id_hash, payload, timestamp)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.db.ExecContext(ctx, query,
		actionID, entryType, patientIDHash, payloadJSON, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to append audit entry: %w", err)
	}

	r.logger.Info("audit entry appended",
		zap.String("action_id", actionID),
		zap.String("type", entryType))
	return actionID, nil
}

// Recent 最近的审计条目，按时间倒序
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	query := `
		SELECT action_id, type, patient_id_hash, payload, timestamp
		FROM audit_entries
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var payload []byte
		if err := rows.Scan(&e.ActionID, &e.Type, &e.PatientIDHash, &payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Payload = string(payload)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AnonymizePatient 擦除请求：历史条目替换为匿名墓碑，再追加一条擦除记录
// 条目本身不删除，数量不变
func (r *AuditRepository) AnonymizePatient(ctx context.Context, patientIDHash string) (int64, error) {
	query := `
		UPDATE audit_entries
		SET patient_id_hash = 'anonymized', payload = '{}'::jsonb
		WHERE patient_id_hash = $1
	`
	result, err := r.db.ExecContext(ctx, query, patientIDHash)
	if err != nil {
		return 0, fmt.Errorf("failed to anonymize audit entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count anonymized entries: %w", err)
	}

	if _, err := r.Append(ctx, "erasure_request", "anonymized",
		map[string]interface{}{"tombstoned_entries": affected}); err != nil {
		return affected, err
	}

	r.logger.Info("audit entries anonymized", zap.Int64("count", affected))
	return affected, nil
}
