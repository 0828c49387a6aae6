package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/models"
)

// VitalsReader 周报取数：体征历史
type VitalsReader interface {
	GetVitals(ctx context.Context, patientID string, days int) ([]models.VitalReading, error)
}

// LogsReader 周报取数：分析日志
type LogsReader interface {
	GetLogs(ctx context.Context, patientID string, limit int) ([]models.AnalysisLog, error)
}

// AlertsReader 周报取数：告警记录
type AlertsReader interface {
	GetAlerts(ctx context.Context, patientID string, limit int) ([]models.AlertRecord, error)
}

// Summarizer 周报摘要生成
type Summarizer interface {
	WeeklySummary(ctx context.Context, weekData string) (models.WeeklySummary, error)
}

// CardRenderer 报告卡（信息图）与语音摘要生成
type CardRenderer interface {
	GenerateImage(ctx context.Context, summary string) ([]byte, error)
	Synthesize(ctx context.Context, text string) []byte
}

// AuditAppender 周报生成审计
type AuditAppender interface {
	Append(ctx context.Context, entryType, patientIDHash string, payload interface{}) (string, error)
}

// Generator 周报生成器
// 汇总最近一周数据 → AI 摘要 → 指标统计 → 报告卡 → 语音摘要 → Excel 导出
type Generator struct {
	vitals VitalsReader
	logs   LogsReader
	alerts AlertsReader
	akash  Summarizer
	venice CardRenderer
	audit  AuditAppender
	hashFn func(string) string
	logger *zap.Logger
}

// NewGenerator 创建周报生成器
func NewGenerator(vitals VitalsReader, logs LogsReader, alerts AlertsReader, akash Summarizer, venice CardRenderer, audit AuditAppender, hashFn func(string) string, logger *zap.Logger) *Generator {
	return &Generator{
		vitals: vitals,
		logs:   logs,
		alerts: alerts,
		akash:  akash,
		venice: venice,
		audit:  audit,
		hashFn: hashFn,
		logger: logger,
	}
}

// Generate 生成指定患者的周报
// AI 摘要失败直接返回错误；报告卡与语音摘要失败只记日志不影响主流程
func (g *Generator) Generate(ctx context.Context, patientID string) (models.WeeklyReport, error) {
	report := models.WeeklyReport{
		PatientIDHash: g.hashFn(patientID),
	}

	vitals, err := g.vitals.GetVitals(ctx, patientID, 7)
	if err != nil {
		return report, fmt.Errorf("failed to load weekly vitals: %w", err)
	}
	logs, err := g.logs.GetLogs(ctx, patientID, 50)
	if err != nil {
		return report, fmt.Errorf("failed to load weekly logs: %w", err)
	}
	alerts, err := g.alerts.GetAlerts(ctx, patientID, 20)
	if err != nil {
		return report, fmt.Errorf("failed to load weekly alerts: %w", err)
	}

	report.VitalsCount = len(vitals)
	report.AlertsCount = len(alerts)
	report.MetricStats = computeMetricStats(vitals)

	weekData := formatWeekData(vitals, logs, alerts)
	summary, err := g.akash.WeeklySummary(ctx, weekData)
	if err != nil {
		return report, fmt.Errorf("failed to generate weekly summary: %w", err)
	}
	report.Summary = summary

	cardPrompt := summary.OverallStatus
	if len(summary.KeyFindings) > 0 {
		n := len(summary.KeyFindings)
		if n > 3 {
			n = 3
		}
		cardPrompt += " - " + strings.Join(summary.KeyFindings[:n], ", ")
	}
	card, err := g.venice.GenerateImage(ctx, cardPrompt)
	if err != nil {
		g.logger.Warn("report card generation failed", zap.Error(err))
	} else {
		report.ReportCard = card
	}

	spoken := fmt.Sprintf("Your weekly health summary. Overall status: %s. %s",
		summary.OverallStatus, strings.Join(summary.KeyFindings, ". "))
	report.SpokenSummary = g.venice.Synthesize(ctx, spoken)

	if _, err := g.audit.Append(ctx, "weekly_report", report.PatientIDHash, map[string]interface{}{
		"vitals_count":   report.VitalsCount,
		"alerts_count":   report.AlertsCount,
		"overall_status": summary.OverallStatus,
		"card_generated": len(report.ReportCard) > 0,
	}); err != nil {
		g.logger.Error("failed to audit weekly report", zap.Error(err))
	}

	g.logger.Info("weekly report generated",
		zap.String("patient_hash", report.PatientIDHash),
		zap.Int("vitals_count", report.VitalsCount),
		zap.Int("alerts_count", report.AlertsCount))
	return report, nil
}

// ExportExcel 周报导出为 Excel 文件字节流
func (g *Generator) ExportExcel(report models.WeeklyReport) ([]byte, error) {
	f := excelize.NewFile()

	sheetName := "Weekly Report"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 概览区
	overview := [][]interface{}{
		{"Patient", report.PatientIDHash},
		{"Generated", time.Now().Format("2006-01-02 15:04")},
		{"Overall Status", report.Summary.OverallStatus},
		{"Vitals Recorded", report.VitalsCount},
		{"Alerts", report.AlertsCount},
	}
	for row, pair := range overview {
		if err := setCell(f, sheetName, 1, row+1, pair[0]); err != nil {
			f.Close()
			return nil, err
		}
		if err := setCell(f, sheetName, 2, row+1, pair[1]); err != nil {
			f.Close()
			return nil, err
		}
	}

	// 指标统计表
	statsRow := len(overview) + 2
	statHeaders := []string{"Metric", "Count", "Min", "Max", "Avg", "Unit"}
	for col, h := range statHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, statsRow)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}
	for i, stat := range report.MetricStats {
		row := statsRow + 1 + i
		values := []interface{}{stat.MetricType, stat.Count, stat.Min, stat.Max, stat.Avg, stat.Unit}
		for col, v := range values {
			if err := setCell(f, sheetName, col+1, row, v); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	// 发现与建议
	findingsRow := statsRow + len(report.MetricStats) + 2
	if err := setCell(f, sheetName, 1, findingsRow, "Key Findings"); err != nil {
		f.Close()
		return nil, err
	}
	for i, finding := range report.Summary.KeyFindings {
		if err := setCell(f, sheetName, 2, findingsRow+i, finding); err != nil {
			f.Close()
			return nil, err
		}
	}
	recRow := findingsRow + len(report.Summary.KeyFindings) + 1
	if err := setCell(f, sheetName, 1, recRow, "Recommendations"); err != nil {
		f.Close()
		return nil, err
	}
	for i, rec := range report.Summary.Recommendations {
		if err := setCell(f, sheetName, 2, recRow+i, rec); err != nil {
			f.Close()
			return nil, err
		}
	}

	for col, width := range map[string]float64{"A": 20, "B": 40, "C": 10, "D": 10, "E": 10, "F": 10} {
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write excel buffer: %w", err)
	}
	f.Close()
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, sheet string, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("failed to set cell %s: %w", cell, err)
	}
	return nil
}

// computeMetricStats 按指标聚合最近一周读数
func computeMetricStats(vitals []models.VitalReading) []models.MetricStat {
	type agg struct {
		count int
		min   float64
		max   float64
		sum   float64
		unit  string
	}
	byMetric := make(map[string]*agg)
	for _, v := range vitals {
		a, ok := byMetric[v.MetricType]
		if !ok {
			a = &agg{min: math.MaxFloat64, max: -math.MaxFloat64}
			byMetric[v.MetricType] = a
		}
		a.count++
		a.sum += v.Value
		if v.Value < a.min {
			a.min = v.Value
		}
		if v.Value > a.max {
			a.max = v.Value
		}
		if v.Unit != "" {
			a.unit = v.Unit
		}
	}

	metrics := make([]string, 0, len(byMetric))
	for m := range byMetric {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	stats := make([]models.MetricStat, 0, len(metrics))
	for _, m := range metrics {
		a := byMetric[m]
		stats = append(stats, models.MetricStat{
			MetricType: m,
			Count:      a.count,
			Min:        a.min,
			Max:        a.max,
			Avg:        math.Round(a.sum/float64(a.count)*10) / 10,
			Unit:       a.unit,
		})
	}
	return stats
}

// formatWeekData 拼装给摘要模型的一周数据文本
func formatWeekData(vitals []models.VitalReading, logs []models.AnalysisLog, alerts []models.AlertRecord) string {
	var sections []string

	if len(vitals) > 0 {
		parts := make([]string, 0, len(vitals))
		for _, v := range vitals {
			parts = append(parts, fmt.Sprintf("%s=%v%s", v.MetricType, v.Value, v.Unit))
		}
		sections = append(sections, "Vitals: "+strings.Join(parts, "; "))
	} else {
		sections = append(sections, "Vitals: none recorded")
	}

	if len(logs) > 0 {
		parts := make([]string, 0, len(logs))
		for _, l := range logs {
			parts = append(parts, fmt.Sprintf("%s: %s", l.Decision, truncate(l.Reason, 50)))
		}
		sections = append(sections, "Analysis: "+strings.Join(parts, "; "))
	}

	if len(alerts) > 0 {
		parts := make([]string, 0, len(alerts))
		for _, a := range alerts {
			parts = append(parts, fmt.Sprintf("sev%d: %s", a.Severity, truncate(a.Message, 50)))
		}
		sections = append(sections, "Alerts: "+strings.Join(parts, "; "))
	}

	return strings.Join(sections, "\n")
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
