package models

// WeeklySummary 周报摘要（AI 产出）
type WeeklySummary struct {
	OverallStatus   string   `json:"overall_status"` // stable|improving|declining|concerning
	KeyFindings     []string `json:"key_findings"`
	VitalsTrends    string   `json:"vitals_trends"`
	Recommendations []string `json:"recommendations"`
}

// WeeklyReport 周报（摘要 + 数据统计 + 导出文件路径）
type WeeklyReport struct {
	PatientIDHash string        `json:"patient_id_hash"`
	Summary       WeeklySummary `json:"summary"`
	VitalsCount   int           `json:"vitals_count"`
	AlertsCount   int           `json:"alerts_count"`
	MetricStats   []MetricStat  `json:"metric_stats"`
	ReportCard    []byte        `json:"-"` // 可视化卡片（可选）
	SpokenSummary []byte        `json:"-"` // 语音摘要（可选）
	ExportPath    string        `json:"export_path,omitempty"`
}

// MetricStat 单指标周统计
type MetricStat struct {
	MetricType string  `json:"metric_type"`
	Count      int     `json:"count"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Avg        float64 `json:"avg"`
	Unit       string  `json:"unit"`
}
