package decision

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/models"
)

// Fusion 决策融合（规则 + AI 合成最终决策）
// 安全规则永远优先：任何一级触发都不会被 AI 降级
type Fusion struct {
	escalateScore float64 // AI 异常分超过此值升级，默认 0.7
	monitorScore  float64 // AI 异常分超过此值进入观察，默认 0.4
	logger        *zap.Logger
}

// NewFusion 创建决策融合器
// escalateScore / monitorScore 为策略常量，三种模态共用
func NewFusion(escalateScore, monitorScore float64, logger *zap.Logger) *Fusion {
	return &Fusion{
		escalateScore: escalateScore,
		monitorScore:  monitorScore,
		logger:        logger,
	}
}

// Combine 合成最终决策
// 规则一级触发 → 必定 alert/severity 1，AI 只做记录
// 规则二级触发 → AI 异常分 > escalateScore 时升级为一级
// 无规则触发 → 仅由 AI 异常分决定 alert / monitor / normal
func (f *Fusion) Combine(triggers []models.RuleTrigger, ai models.Classification) models.FusedDecision {
	worst := worstSeverity(triggers)
	aiAgreed := ai.Decision == models.DecisionAlert || ai.Decision == models.DecisionEscalate

	var fused models.FusedDecision

	switch {
	case worst == models.SeverityCritical:
		fused = models.FusedDecision{
			FinalDecision: models.DecisionAlert,
			FinalSeverity: models.SeverityCritical,
			Reason:        triggers[0].Message,
			Source:        models.SourceRuleEngine,
			AIAgreed:      aiAgreed,
			RuleTriggers:  triggers,
			AI:            ai,
		}

	case worst == models.SeverityWarning:
		severity := models.SeverityWarning
		if ai.AnomalyScore > f.escalateScore {
			severity = models.SeverityCritical
		}
		reason := triggers[0].Message
		source := models.SourceRuleEngine
		if ai.AnomalyScore > f.monitorScore {
			reason += fmt.Sprintf(" (AI anomaly score: %v)", ai.AnomalyScore)
			source = models.SourceRuleEngineWithAI
		}
		fused = models.FusedDecision{
			FinalDecision: models.DecisionAlert,
			FinalSeverity: severity,
			Reason:        reason,
			Source:        source,
			AIAgreed:      aiAgreed,
			RuleTriggers:  triggers,
			AI:            ai,
		}

	case ai.AnomalyScore > f.escalateScore:
		fused = models.FusedDecision{
			FinalDecision: models.DecisionAlert,
			FinalSeverity: models.SeverityWarning,
			Reason:        reasonOrDefault(ai, "AI detected anomaly pattern"),
			Source:        models.SourceAIEngine,
			AIAgreed:      true,
			AI:            ai,
		}

	case ai.AnomalyScore > f.monitorScore:
		fused = models.FusedDecision{
			FinalDecision: models.DecisionMonitor,
			FinalSeverity: models.SeverityInfo,
			Reason:        reasonOrDefault(ai, "Mild anomaly detected"),
			Source:        models.SourceAIEngine,
			AIAgreed:      true,
			AI:            ai,
		}

	default:
		fused = models.FusedDecision{
			FinalDecision: models.DecisionNormal,
			FinalSeverity: models.SeverityInfo,
			Reason:        "All vitals within normal range. No anomalies detected.",
			Source:        models.SourceCombined,
			AIAgreed:      true,
			AI:            ai,
		}
	}

	// AI 退化信息对读端可见
	if ai.Degraded && ai.DegradedCause != "" {
		fused.Reason += fmt.Sprintf(" [AI degraded: %s]", ai.DegradedCause)
	}

	if f.logger != nil {
		f.logger.Info("decision fused",
			zap.String("final_decision", fused.FinalDecision),
			zap.Int("final_severity", fused.FinalSeverity),
			zap.String("source", fused.Source),
			zap.Bool("ai_degraded", ai.Degraded))
	}
	return fused
}

// worstSeverity 触发列表中最紧急的级别，空列表返回 0
func worstSeverity(triggers []models.RuleTrigger) int {
	if len(triggers) == 0 {
		return 0
	}
	worst := triggers[0].Severity
	for _, t := range triggers[1:] {
		if t.Severity < worst {
			worst = t.Severity
		}
	}
	return worst
}

func reasonOrDefault(ai models.Classification, fallback string) string {
	if ai.Reason != "" {
		return ai.Reason
	}
	return fallback
}
