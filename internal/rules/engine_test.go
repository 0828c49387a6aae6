package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/models"
)

func snapshot(pairs map[string]float64) models.VitalsSnapshot {
	s := models.VitalsSnapshot{}
	for k, v := range pairs {
		s[k] = models.VitalValue{Value: v}
	}
	return s
}

func TestEvaluate_CriticalHighSystolic(t *testing.T) {
	engine := NewEngine(zap.NewNop())

	triggers := engine.Evaluate(snapshot(map[string]float64{"bp_systolic": 185}))

	require.Len(t, triggers, 1)
	assert.Equal(t, models.SeverityCritical, triggers[0].Severity)
	assert.Equal(t, "bp_systolic", triggers[0].Metric)
	assert.Equal(t, 185.0, triggers[0].Value)
	assert.Equal(t, 180.0, triggers[0].Threshold)
	assert.Equal(t, "CRITICAL: Systolic BP 185 mmHg ≥ 180. Hypertensive crisis.", triggers[0].Message)
}

func TestEvaluate_LowOxygen(t *testing.T) {
	engine := NewEngine(zap.NewNop())

	// 危急低氧
	triggers := engine.Evaluate(snapshot(map[string]float64{"oxygen_saturation": 85}))
	require.Len(t, triggers, 1)
	assert.Equal(t, models.SeverityCritical, triggers[0].Severity)
	assert.Equal(t, "CRITICAL: SpO2 85% ≤ 90. Severe hypoxia.", triggers[0].Message)

	// 警告级低氧
	triggers = engine.Evaluate(snapshot(map[string]float64{"oxygen_saturation": 92}))
	require.Len(t, triggers, 1)
	assert.Equal(t, models.SeverityWarning, triggers[0].Severity)
	assert.Equal(t, "WARNING: SpO2 92% ≤ 93. Low oxygen.", triggers[0].Message)
}

func TestEvaluate_ThresholdBoundaries(t *testing.T) {
	engine := NewEngine(zap.NewNop())

	tests := []struct {
		name     string
		metric   string
		value    float64
		severity int // 0 表示不触发
	}{
		{"systolic exactly critical", "bp_systolic", 180, 1},
		{"systolic just below critical", "bp_systolic", 179, 2},
		{"systolic normal", "bp_systolic", 120, 0},
		{"systolic hypotension", "bp_systolic", 80, 1},
		{"diastolic critical", "bp_diastolic", 120, 1},
		{"diastolic warning", "bp_diastolic", 100, 2},
		{"diastolic normal low", "bp_diastolic", 50, 0},
		{"glucose emergency", "glucose", 400, 1},
		{"glucose hyperglycemia", "glucose", 250, 2},
		{"glucose low warning", "glucose", 70, 2},
		{"glucose severe hypoglycemia", "glucose", 50, 1},
		{"glucose normal", "glucose", 110, 0},
		{"heart rate tachycardia", "heart_rate", 150, 1},
		{"heart rate elevated", "heart_rate", 120, 2},
		{"heart rate low", "heart_rate", 50, 2},
		{"heart rate bradycardia", "heart_rate", 40, 1},
		{"temperature high fever", "temperature", 104.0, 1},
		{"temperature fever", "temperature", 101.5, 2},
		{"temperature low", "temperature", 96.5, 2},
		{"temperature hypothermia", "temperature", 95.0, 1},
		{"temperature normal", "temperature", 98.6, 0},
		{"pain critical", "pain_level", 9, 1},
		{"pain warning", "pain_level", 7, 2},
		{"pain normal", "pain_level", 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			triggers := engine.Evaluate(snapshot(map[string]float64{tt.metric: tt.value}))
			if tt.severity == 0 {
				assert.Empty(t, triggers)
			} else {
				require.Len(t, triggers, 1)
				assert.Equal(t, tt.severity, triggers[0].Severity)
			}
		})
	}
}

func TestEvaluate_SortedBySeverity(t *testing.T) {
	engine := NewEngine(zap.NewNop())

	// 警告 + 危急混合，危急必须排在最前
	triggers := engine.Evaluate(snapshot(map[string]float64{
		"bp_systolic":       155, // warning
		"oxygen_saturation": 88,  // critical
		"heart_rate":        125, // warning
	}))

	require.Len(t, triggers, 3)
	assert.Equal(t, models.SeverityCritical, triggers[0].Severity)
	assert.Equal(t, "oxygen_saturation", triggers[0].Metric)
	assert.Equal(t, models.SeverityWarning, triggers[1].Severity)
	assert.Equal(t, models.SeverityWarning, triggers[2].Severity)
}

func TestEvaluate_Deterministic(t *testing.T) {
	engine := NewEngine(zap.NewNop())

	vitals := snapshot(map[string]float64{
		"bp_systolic":  185,
		"bp_diastolic": 105,
		"glucose":      260,
		"heart_rate":   45,
		"temperature":  102.0,
	})

	first := engine.Evaluate(vitals)
	// 同一快照重复评估，结果必须完全一致
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, engine.Evaluate(vitals))
	}
}

func TestEvaluate_EmptySnapshot(t *testing.T) {
	engine := NewEngine(zap.NewNop())

	assert.Empty(t, engine.Evaluate(models.VitalsSnapshot{}))
	assert.Empty(t, engine.Evaluate(nil))
}

func TestEvaluate_UnknownMetricIgnored(t *testing.T) {
	engine := NewEngine(zap.NewNop())

	triggers := engine.Evaluate(snapshot(map[string]float64{"respiration_rate": 40}))
	assert.Empty(t, triggers)
}

func TestEvaluate_FractionalValueFormatting(t *testing.T) {
	engine := NewEngine(zap.NewNop())

	triggers := engine.Evaluate(snapshot(map[string]float64{"temperature": 104.2}))
	require.Len(t, triggers, 1)
	assert.Equal(t, "CRITICAL: Temperature 104.2°F ≥ 104. High fever.", triggers[0].Message)
}
