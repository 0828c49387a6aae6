package rules

import (
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/models"
)

// 硬编码临床阈值（安全规则，AI 不可覆盖）
type thresholds struct {
	criticalHigh *float64
	warningHigh  *float64
	warningLow   *float64
	criticalLow  *float64
}

func f(v float64) *float64 { return &v }

// ruleTable 各指标阈值
// 数值为临床约定值，调整需医务侧确认
var ruleTable = map[string]thresholds{
	"bp_systolic":       {criticalHigh: f(180), warningHigh: f(150), criticalLow: f(80)},
	"bp_diastolic":      {criticalHigh: f(120), warningHigh: f(100)},
	"glucose":           {criticalHigh: f(400), warningHigh: f(250), warningLow: f(70), criticalLow: f(50)},
	"heart_rate":        {criticalHigh: f(150), warningHigh: f(120), warningLow: f(50), criticalLow: f(40)},
	"temperature":       {criticalHigh: f(104.0), warningHigh: f(101.5), warningLow: f(96.5), criticalLow: f(95.0)},
	"oxygen_saturation": {warningLow: f(93), criticalLow: f(90)},
	"pain_level":        {criticalHigh: f(9), warningHigh: f(7)},
}

// metricOrder 评估顺序固定，保证同一快照的触发列表可复现
var metricOrder = []string{
	"bp_systolic",
	"bp_diastolic",
	"glucose",
	"heart_rate",
	"temperature",
	"oxygen_saturation",
	"pain_level",
}

// Engine 规则引擎（第一层决策：确定性阈值评估）
type Engine struct {
	logger *zap.Logger
}

// NewEngine 创建规则引擎
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// Evaluate 对体征快照做确定性阈值评估
// 返回触发列表，按严重级别升序排列（1 最紧急）
// 相同输入永远产出相同结果
func (e *Engine) Evaluate(vitals models.VitalsSnapshot) []models.RuleTrigger {
	var triggers []models.RuleTrigger

	for _, metric := range metricOrder {
		reading, ok := vitals[metric]
		if !ok {
			continue
		}
		if t := checkMetric(metric, reading.Value); t != nil {
			triggers = append(triggers, *t)
		}
	}

	sort.SliceStable(triggers, func(i, j int) bool {
		return triggers[i].Severity < triggers[j].Severity
	})

	if len(triggers) > 0 && e.logger != nil {
		e.logger.Info("rules triggered",
			zap.Int("count", len(triggers)),
			zap.Int("worst_severity", triggers[0].Severity))
	}
	return triggers
}

// checkMetric 单指标阈值判定，高危优先于警告
func checkMetric(metric string, v float64) *models.RuleTrigger {
	r, ok := ruleTable[metric]
	if !ok {
		return nil
	}

	switch {
	case r.criticalHigh != nil && v >= *r.criticalHigh:
		return trigger(models.SeverityCritical, metric, v, *r.criticalHigh, criticalHighMessage(metric, v))
	case r.criticalLow != nil && v <= *r.criticalLow:
		return trigger(models.SeverityCritical, metric, v, *r.criticalLow, criticalLowMessage(metric, v))
	case r.warningHigh != nil && v >= *r.warningHigh:
		return trigger(models.SeverityWarning, metric, v, *r.warningHigh, warningHighMessage(metric, v))
	case r.warningLow != nil && v <= *r.warningLow:
		return trigger(models.SeverityWarning, metric, v, *r.warningLow, warningLowMessage(metric, v))
	}
	return nil
}

func trigger(severity int, metric string, value, threshold float64, message string) *models.RuleTrigger {
	return &models.RuleTrigger{
		Severity:  severity,
		Metric:    metric,
		Value:     value,
		Threshold: threshold,
		Message:   message,
	}
}

// fv 数值格式化：整数不带小数位，小数保留原样
func fv(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func criticalHighMessage(metric string, v float64) string {
	switch metric {
	case "bp_systolic":
		return fmt.Sprintf("CRITICAL: Systolic BP %s mmHg ≥ 180. Hypertensive crisis.", fv(v))
	case "bp_diastolic":
		return fmt.Sprintf("CRITICAL: Diastolic BP %s mmHg ≥ 120.", fv(v))
	case "glucose":
		return fmt.Sprintf("CRITICAL: Blood glucose %s mg/dL ≥ 400. Diabetic emergency.", fv(v))
	case "heart_rate":
		return fmt.Sprintf("CRITICAL: Heart rate %s bpm ≥ 150. Tachycardia.", fv(v))
	case "temperature":
		return fmt.Sprintf("CRITICAL: Temperature %s°F ≥ 104. High fever.", fv(v))
	case "pain_level":
		return fmt.Sprintf("CRITICAL: Pain level %s/10. Severe pain.", fv(v))
	}
	return fmt.Sprintf("CRITICAL: %s %s exceeds critical threshold.", metric, fv(v))
}

func criticalLowMessage(metric string, v float64) string {
	switch metric {
	case "bp_systolic":
		return fmt.Sprintf("CRITICAL: Systolic BP %s mmHg ≤ 80. Hypotension.", fv(v))
	case "glucose":
		return fmt.Sprintf("CRITICAL: Blood glucose %s mg/dL ≤ 50. Severe hypoglycemia.", fv(v))
	case "heart_rate":
		return fmt.Sprintf("CRITICAL: Heart rate %s bpm ≤ 40. Bradycardia.", fv(v))
	case "temperature":
		return fmt.Sprintf("CRITICAL: Temperature %s°F ≤ 95. Hypothermia.", fv(v))
	case "oxygen_saturation":
		return fmt.Sprintf("CRITICAL: SpO2 %s%% ≤ 90. Severe hypoxia.", fv(v))
	}
	return fmt.Sprintf("CRITICAL: %s %s below critical threshold.", metric, fv(v))
}

func warningHighMessage(metric string, v float64) string {
	switch metric {
	case "bp_systolic":
		return fmt.Sprintf("WARNING: Systolic BP %s mmHg ≥ 150. Elevated.", fv(v))
	case "bp_diastolic":
		return fmt.Sprintf("WARNING: Diastolic BP %s mmHg ≥ 100.", fv(v))
	case "glucose":
		return fmt.Sprintf("WARNING: Blood glucose %s mg/dL ≥ 250. Hyperglycemia.", fv(v))
	case "heart_rate":
		return fmt.Sprintf("WARNING: Heart rate %s bpm ≥ 120.", fv(v))
	case "temperature":
		return fmt.Sprintf("WARNING: Temperature %s°F ≥ 101.5. Fever.", fv(v))
	case "pain_level":
		return fmt.Sprintf("WARNING: Pain level %s/10. Significant pain.", fv(v))
	}
	return fmt.Sprintf("WARNING: %s %s exceeds warning threshold.", metric, fv(v))
}

func warningLowMessage(metric string, v float64) string {
	switch metric {
	case "glucose":
		return fmt.Sprintf("WARNING: Blood glucose %s mg/dL ≤ 70. Low glucose.", fv(v))
	case "heart_rate":
		return fmt.Sprintf("WARNING: Heart rate %s bpm ≤ 50. Bradycardia risk.", fv(v))
	case "temperature":
		return fmt.Sprintf("WARNING: Temperature %s°F ≤ 96.5. Low temperature.", fv(v))
	case "oxygen_saturation":
		return fmt.Sprintf("WARNING: SpO2 %s%% ≤ 93. Low oxygen.", fv(v))
	}
	return fmt.Sprintf("WARNING: %s %s below warning threshold.", metric, fv(v))
}
