package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/models"
)

// noDataText 上下文为空时的占位文本（巡检据此跳过无数据患者）
const noDataText = "No patient data available yet."

// VitalsReader 体征读取
type VitalsReader interface {
	GetVitals(ctx context.Context, patientID string, days int) ([]models.VitalReading, error)
	GetLatestVitals(ctx context.Context, patientID string) (models.VitalsSnapshot, error)
}

// LogsReader 分析日志读取
type LogsReader interface {
	GetLogs(ctx context.Context, patientID string, limit int) ([]models.AnalysisLog, error)
}

// AlertsReader 报警记录读取
type AlertsReader interface {
	GetAlerts(ctx context.Context, patientID string, limit int) ([]models.AlertRecord, error)
}

// ContextLoader 患者上下文装配器
// 为 AI 分析与自主巡检装配近期历史，产出文本不含任何患者标识
type ContextLoader struct {
	vitals VitalsReader
	logs   LogsReader
	alerts AlertsReader
	logger *zap.Logger
}

// NewContextLoader 创建上下文装配器
func NewContextLoader(vitals VitalsReader, logs LogsReader, alerts AlertsReader, logger *zap.Logger) *ContextLoader {
	return &ContextLoader{
		vitals: vitals,
		logs:   logs,
		alerts: alerts,
		logger: logger,
	}
}

// LoadContext 装配患者近 days 天上下文
func (m *ContextLoader) LoadContext(ctx context.Context, patientID string, days int) (models.PatientContext, error) {
	history, err := m.vitals.GetVitals(ctx, patientID, days)
	if err != nil {
		return models.PatientContext{}, fmt.Errorf("failed to load vitals history: %w", err)
	}
	latest, err := m.vitals.GetLatestVitals(ctx, patientID)
	if err != nil {
		return models.PatientContext{}, fmt.Errorf("failed to load latest vitals: %w", err)
	}
	logs, err := m.logs.GetLogs(ctx, patientID, 10)
	if err != nil {
		return models.PatientContext{}, fmt.Errorf("failed to load recent logs: %w", err)
	}
	alerts, err := m.alerts.GetAlerts(ctx, patientID, 5)
	if err != nil {
		return models.PatientContext{}, fmt.Errorf("failed to load recent alerts: %w", err)
	}

	return models.PatientContext{
		LatestVitals:  latest,
		VitalsHistory: history,
		RecentLogs:    logs,
		RecentAlerts:  alerts,
	}, nil
}

// FormatForAI 把上下文格式化为推理侧输入文本
// 只有指标与时间，没有患者姓名或标识
func (m *ContextLoader) FormatForAI(pc models.PatientContext) string {
	var parts []string

	if len(pc.LatestVitals) > 0 {
		metrics := make([]string, 0, len(pc.LatestVitals))
		for k := range pc.LatestVitals {
			metrics = append(metrics, k)
		}
		sort.Strings(metrics)
		pairs := make([]string, 0, len(metrics))
		for _, k := range metrics {
			v := pc.LatestVitals[k]
			pairs = append(pairs, fmt.Sprintf("%s=%v%s", k, v.Value, v.Unit))
		}
		parts = append(parts, "Current vitals: "+strings.Join(pairs, ", "))
	}

	if len(pc.VitalsHistory) > 0 {
		parts = append(parts, fmt.Sprintf("Vitals history (%d readings last 7 days)", len(pc.VitalsHistory)))
		for _, v := range limitVitals(pc.VitalsHistory, 5) {
			parts = append(parts, fmt.Sprintf("  %s=%v at %s", v.MetricType, v.Value, v.Timestamp.Format("2006-01-02 15:04")))
		}
	}

	if len(pc.RecentLogs) > 0 {
		parts = append(parts, fmt.Sprintf("Recent analysis (%d logs):", len(pc.RecentLogs)))
		for _, l := range limitLogs(pc.RecentLogs, 3) {
			parts = append(parts, fmt.Sprintf("  [%s] %s", l.Decision, truncate(l.Reason, 80)))
		}
	}

	if len(pc.RecentAlerts) > 0 {
		parts = append(parts, fmt.Sprintf("Recent alerts (%d):", len(pc.RecentAlerts)))
		for _, a := range limitAlerts(pc.RecentAlerts, 3) {
			parts = append(parts, fmt.Sprintf("  [sev%d] %s", a.Severity, truncate(a.Message, 80)))
		}
	}

	if len(parts) == 0 {
		return noDataText
	}
	return strings.Join(parts, "\n")
}

// FormatVitalsSummary 体征历史单行摘要（喂给 SOAP / 分析提示）
func (m *ContextLoader) FormatVitalsSummary(history []models.VitalReading) string {
	if len(history) == 0 {
		return "No vitals recorded."
	}
	pairs := make([]string, 0, 15)
	for _, v := range limitVitals(history, 15) {
		pairs = append(pairs, fmt.Sprintf("%s=%v%s", v.MetricType, v.Value, v.Unit))
	}
	return strings.Join(pairs, "; ")
}

func limitVitals(v []models.VitalReading, n int) []models.VitalReading {
	if len(v) > n {
		return v[:n]
	}
	return v
}

func limitLogs(l []models.AnalysisLog, n int) []models.AnalysisLog {
	if len(l) > n {
		return l[:n]
	}
	return l
}

func limitAlerts(a []models.AlertRecord, n int) []models.AlertRecord {
	if len(a) > n {
		return a[:n]
	}
	return a
}

// truncate 在符文边界截断，多字节字符不会被切半
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
