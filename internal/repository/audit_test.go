package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockAuditDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AuditRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewAuditRepository(db, zap.NewNop())
}

func TestAuditAppend_Success(t *testing.T) {
	db, mock, repo := setupMockAuditDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO audit_entries`).
		WithArgs(sqlmock.AnyArg(), "alert_delivered", "abc123def4567890", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	actionID, err := repo.Append(context.Background(), "alert_delivered", "abc123def4567890",
		map[string]interface{}{"severity": 1})

	require.NoError(t, err)
	assert.Len(t, actionID, 8)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRecent_ReturnsEntries(t *testing.T) {
	db, mock, repo := setupMockAuditDB(t)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"action_id", "type", "patient_id_hash", "payload", "timestamp"}).
		AddRow("a1b2c3d4", "alert_delivered", "hash1", []byte(`{"severity":1}`), now).
		AddRow("e5f6a7b8", "item_processed", "hash2", []byte(`{}`), now.Add(-time.Minute))

	mock.ExpectQuery(`SELECT .+ FROM audit_entries`).
		WithArgs(50).
		WillReturnRows(rows)

	entries, err := repo.Recent(context.Background(), 50)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alert_delivered", entries[0].Type)
	assert.Equal(t, `{"severity":1}`, entries[0].Payload)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnonymizePatient_TombstonesAndAppends(t *testing.T) {
	db, mock, repo := setupMockAuditDB(t)
	defer db.Close()

	// 条目不删除，逐条替换为匿名墓碑，再追加一条擦除记录
	mock.ExpectExec(`UPDATE audit_entries`).
		WithArgs("deadbeefcafe0123").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO audit_entries`).
		WithArgs(sqlmock.AnyArg(), "erasure_request", "anonymized", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.AnonymizePatient(context.Background(), "deadbeefcafe0123")

	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}
