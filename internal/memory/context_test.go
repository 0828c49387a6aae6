package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/models"
)

// stubStore 仓库桩，三个读接口一并实现
type stubStore struct {
	history []models.VitalReading
	latest  models.VitalsSnapshot
	logs    []models.AnalysisLog
	alerts  []models.AlertRecord
}

func (s *stubStore) GetVitals(ctx context.Context, patientID string, days int) ([]models.VitalReading, error) {
	return s.history, nil
}

func (s *stubStore) GetLatestVitals(ctx context.Context, patientID string) (models.VitalsSnapshot, error) {
	return s.latest, nil
}

func (s *stubStore) GetLogs(ctx context.Context, patientID string, limit int) ([]models.AnalysisLog, error) {
	return s.logs, nil
}

func (s *stubStore) GetAlerts(ctx context.Context, patientID string, limit int) ([]models.AlertRecord, error) {
	return s.alerts, nil
}

func newLoader(store *stubStore) *ContextLoader {
	return NewContextLoader(store, store, store, zap.NewNop())
}

func TestLoadContext_AssemblesAllSections(t *testing.T) {
	store := &stubStore{
		history: []models.VitalReading{{MetricType: "heart_rate", Value: 80}},
		latest:  models.VitalsSnapshot{"heart_rate": {Value: 80, Unit: "bpm"}},
		logs:    []models.AnalysisLog{{Decision: "normal", Reason: "stable"}},
		alerts:  []models.AlertRecord{{Severity: 2, Message: "WARNING: elevated"}},
	}

	pc, err := newLoader(store).LoadContext(context.Background(), "patient-1", 7)

	require.NoError(t, err)
	assert.True(t, pc.HasData())
	assert.Len(t, pc.VitalsHistory, 1)
	assert.Len(t, pc.RecentLogs, 1)
	assert.Len(t, pc.RecentAlerts, 1)
}

func TestFormatForAI_NoPatientIdentifier(t *testing.T) {
	store := &stubStore{
		latest: models.VitalsSnapshot{
			"bp_systolic": {Value: 150, Unit: "mmHg"},
			"heart_rate":  {Value: 90, Unit: "bpm"},
		},
		history: []models.VitalReading{
			{MetricType: "bp_systolic", Value: 150, Timestamp: time.Now(), PatientID: "patient-1"},
		},
	}
	loader := newLoader(store)

	pc, err := loader.LoadContext(context.Background(), "patient-1", 7)
	require.NoError(t, err)

	text := loader.FormatForAI(pc)

	assert.Contains(t, text, "Current vitals: bp_systolic=150mmHg, heart_rate=90bpm")
	assert.Contains(t, text, "Vitals history (1 readings last 7 days)")
	// 患者标识绝不出现在推理侧文本里
	assert.NotContains(t, text, "patient-1")
}

func TestFormatForAI_Empty(t *testing.T) {
	loader := newLoader(&stubStore{})

	text := loader.FormatForAI(models.PatientContext{})

	assert.Equal(t, "No patient data available yet.", text)
}

func TestFormatForAI_DeterministicMetricOrder(t *testing.T) {
	pc := models.PatientContext{
		LatestVitals: models.VitalsSnapshot{
			"temperature": {Value: 98.6},
			"glucose":     {Value: 100},
			"heart_rate":  {Value: 70},
		},
	}
	loader := newLoader(&stubStore{})

	first := loader.FormatForAI(pc)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, loader.FormatForAI(pc))
	}
	assert.Contains(t, first, "glucose=100, heart_rate=70, temperature=98.6")
}

func TestFormatVitalsSummary(t *testing.T) {
	loader := newLoader(&stubStore{})

	assert.Equal(t, "No vitals recorded.", loader.FormatVitalsSummary(nil))

	summary := loader.FormatVitalsSummary([]models.VitalReading{
		{MetricType: "glucose", Value: 110, Unit: "mg/dL"},
		{MetricType: "heart_rate", Value: 72, Unit: "bpm"},
	})
	assert.Equal(t, "glucose=110mg/dL; heart_rate=72bpm", summary)
}

func TestFormatVitalsSummary_CapsAtFifteen(t *testing.T) {
	loader := newLoader(&stubStore{})

	var history []models.VitalReading
	for i := 0; i < 30; i++ {
		history = append(history, models.VitalReading{MetricType: "heart_rate", Value: float64(60 + i)})
	}

	summary := loader.FormatVitalsSummary(history)
	assert.Equal(t, 15, len(splitSemicolons(summary)))
}

func splitSemicolons(s string) []string {
	var out []string
	start := 0
	for i := 0; i+1 < len(s); i++ {
		if s[i] == ';' && s[i+1] == ' ' {
			out = append(out, s[start:i])
			start = i + 2
		}
	}
	return append(out, s[start:])
}
