package models

// 严重级别（数值越小越紧急）
const (
	SeverityCritical = 1
	SeverityWarning  = 2
	SeverityInfo     = 3
)

// 最终决策
const (
	DecisionNormal   = "normal"
	DecisionMonitor  = "monitor"
	DecisionAlert    = "alert"
	DecisionEscalate = "escalate"
)

// 决策来源
const (
	SourceRuleEngine       = "rule_engine"
	SourceRuleEngineWithAI = "rule_engine+ai"
	SourceAIEngine         = "ai_engine"
	SourceCombined         = "combined"
	SourceAutonomousLoop   = "ai_autonomous_loop"
)

// AI 分类结果的退化原因
const (
	DegradedUnavailable = "collaborator_unavailable"
	DegradedParseError  = "parse_error"
)

// RuleTrigger 单条阈值触发（每次评估新建，不单独持久化）
type RuleTrigger struct {
	Severity  int     `json:"severity"` // 1=critical, 2=warning, 3=info
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// Classification AI 分类结果
// 退化（网络失败 / 解析失败）不抛错，而是显式标记在结果上
type Classification struct {
	Decision      string  `json:"decision"`
	AnomalyScore  float64 `json:"anomaly_score"`
	Reason        string  `json:"reason"`
	Urgency       string  `json:"urgency,omitempty"`
	Model         string  `json:"model,omitempty"`
	Degraded      bool    `json:"degraded,omitempty"`
	DegradedCause string  `json:"degraded_cause,omitempty"`
}

// SafeDefaultClassification 退化时的安全默认值
func SafeDefaultClassification(cause string, score float64) Classification {
	return Classification{
		Decision:      DecisionMonitor,
		AnomalyScore:  score,
		Reason:        "classification degraded",
		Degraded:      true,
		DegradedCause: cause,
	}
}

// FusedDecision 规则 + AI 融合后的最终决策（创建后不可变）
type FusedDecision struct {
	FinalDecision string         `json:"final_decision"`
	FinalSeverity int            `json:"final_severity"`
	Reason        string         `json:"reason"`
	Source        string         `json:"source"`
	AIAgreed      bool           `json:"ai_agreed"`
	RuleTriggers  []RuleTrigger  `json:"rule_triggers"`
	AI            Classification `json:"ai_decision"`
}

// AlertWorthy 是否需要走投递引擎
func (d *FusedDecision) AlertWorthy() bool {
	return d.FinalDecision == DecisionAlert || d.FinalDecision == DecisionEscalate
}

// SOAPNote 语音/文字主诉结构化结果
type SOAPNote struct {
	Subjective    string   `json:"subjective"`
	Objective     string   `json:"objective"`
	Assessment    string   `json:"assessment"`
	Plan          string   `json:"plan"`
	KeySymptoms   []string `json:"key_symptoms,omitempty"`
	Urgency       string   `json:"urgency"` // routine|soon|urgent|emergency
	PainLevel     *float64 `json:"pain_level,omitempty"`
	Degraded      bool     `json:"-"`
	DegradedCause string   `json:"-"`
}

// VisionAnalysis 图像分析结果（Venice Vision 产出）
type VisionAnalysis struct {
	ImageType      string  `json:"image_type,omitempty"`
	Observations   string  `json:"observations"`
	Severity       string  `json:"severity,omitempty"`
	InfectionRisk  string  `json:"infection_risk,omitempty"`
	Confidence     float64 `json:"confidence"`
	PrimaryConcern string  `json:"primary_concern,omitempty"`
	Degraded       bool    `json:"-"`
	DegradedCause  string  `json:"-"`
}

// LoopDecision 自主巡检决策（每 K 个 tick 针对每个患者执行一次）
type LoopDecision struct {
	Action        string  `json:"action"` // idle|alert_patient|alert_doctor
	Reason        string  `json:"reason"`
	Severity      int     `json:"severity"`
	Confidence    float64 `json:"confidence"`
	Degraded      bool    `json:"-"`
	DegradedCause string  `json:"-"`
}

// RequestsAlert 巡检决策是否要求报警
func (d *LoopDecision) RequestsAlert() bool {
	return d.Action == "alert_patient" || d.Action == "alert_doctor"
}
