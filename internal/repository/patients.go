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

// PatientRepository 患者仓库
type PatientRepository struct {
	db         *sql.DB
	encryption *Encryptor
	logger     *zap.Logger
}

// NewPatientRepository 创建患者仓库
func NewPatientRepository(db *sql.DB, encryption *Encryptor, logger *zap.Logger) *PatientRepository {
	return &PatientRepository{
		db:         db,
		encryption: encryption,
		logger:     logger,
	}
}

// CreatePatient 创建患者，姓名加密存储，返回患者ID
func (r *PatientRepository) CreatePatient(ctx context.Context, name string) (string, error) {
	patientID := uuid.New().String()
	nameEnc, err := r.encryption.Encrypt(name)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt patient name: %w", err)
	}

	query := `
		INSERT INTO patients (id, name_encrypted, key_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.db.ExecContext(ctx, query,
		patientID, nameEnc, HashPatientID(patientID), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to create patient: %w", err)
	}

	r.logger.Info("patient created", zap.String("patient_id_hash", HashPatientID(patientID)))
	return patientID, nil
}

// GetPatient 获取单个患者
func (r *PatientRepository) GetPatient(ctx context.Context, patientID string) (*models.Patient, error) {
	query := `SELECT id, created_at FROM patients WHERE id = $1`

	var p models.Patient
	err := r.db.QueryRowContext(ctx, query, patientID).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("patient not found: %s", HashPatientID(patientID))
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &p, nil
}

// ListPatientIDs 全部患者ID（自主巡检遍历用）
func (r *PatientRepository) ListPatientIDs(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM patients ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan patient id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
