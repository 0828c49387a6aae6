package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/decision"
	"github.com/karthiksai109/healthguard/internal/models"
	"github.com/karthiksai109/healthguard/internal/queue"
	"github.com/karthiksai109/healthguard/internal/rules"
)

// ContextLoader 患者上下文装配
type ContextLoader interface {
	LoadContext(ctx context.Context, patientID string, days int) (models.PatientContext, error)
	FormatForAI(pc models.PatientContext) string
	FormatVitalsSummary(history []models.VitalReading) string
}

// VisionProvider 图像分析
type VisionProvider interface {
	AnalyzeImage(ctx context.Context, imageBytes []byte) models.VisionAnalysis
}

// Transcriber 语音转写
type Transcriber interface {
	Transcribe(ctx context.Context, audioBytes []byte) (string, error)
}

// Classifier 结构化推理（分析 / SOAP / 巡检决策）
type Classifier interface {
	Analyze(ctx context.Context, structuredInput, vitalsSummary, recentLogs string) models.Classification
	SOAPNote(ctx context.Context, transcript, vitalsContext string) models.SOAPNote
	LoopDecision(ctx context.Context, contextText string) models.LoopDecision
}

// Deliverer 投递引擎
type Deliverer interface {
	Deliver(ctx context.Context, patientID string, decision models.FusedDecision) (models.DeliveryReceipt, error)
}

// VitalRecorder 体征落库
type VitalRecorder interface {
	RecordVital(ctx context.Context, patientID, metricType string, value float64, unit, note, source string) (string, error)
}

// LogRecorder 分析日志落库
type LogRecorder interface {
	RecordLog(ctx context.Context, log models.AnalysisLog) (string, error)
}

// PatientLister 患者遍历（自主巡检用）
type PatientLister interface {
	ListPatientIDs(ctx context.Context) ([]string, error)
}

// EphemeralRegistry 临时文件登记表
type EphemeralRegistry interface {
	DeleteImmediately(path string)
	Sweep() int
	Count() int
}

// SweepRecorder 巡检状态记录（可选，nil 时跳过）
type SweepRecorder interface {
	RecordSweep(ctx context.Context, patientIDHash string, decision models.LoopDecision) error
}

// Metrics 调度器实例持有的计数器，随状态一并返回
// 只由调度协程写入，读取经 Status 加锁拷贝
type Metrics struct {
	EventsProcessed int64 `json:"events_processed"`
	EventsFailed    int64 `json:"events_failed"`
	VeniceCalls     int64 `json:"venice_calls"`
	AkashCalls      int64 `json:"akash_calls"`
	AlertsDelivered int64 `json:"alerts_delivered"`
	SweepsDeleted   int64 `json:"sweeps_deleted"`
	LoopDecisions   int64 `json:"loop_decisions"`
}

// Status 调度器运行状态
type Status struct {
	Running        bool    `json:"running"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	TickCount      int64   `json:"tick_count"`
	QueueSize      int     `json:"queue_size"`
	EphemeralCount int     `json:"ephemeral_count"`
	Stats          Metrics `json:"stats"`
}

// Orchestrator 调度器
// 单协程持有全部 tick：排空队列 → 逐条顺序处理 → 清理过期文件 →
// 每 K 个 tick 对全部患者做一次自主巡检
// 两个 tick 绝不并发，tick 内条目绝不并发，审计顺序即排空顺序
type Orchestrator struct {
	cfg struct {
		interval        time.Duration
		autonomousEvery int64
		contextDays     int
		hashFn          func(string) string
		model           string
	}

	queue    *queue.EventQueue
	registry EphemeralRegistry

	memory    ContextLoader
	vision    VisionProvider
	stt       Transcriber
	akash     Classifier
	rules     *rules.Engine
	fusion    *decision.Fusion
	delivery  Deliverer
	vitals    VitalRecorder
	logs      LogRecorder
	patients  PatientLister
	loopState SweepRecorder

	logger *zap.Logger

	mu        sync.Mutex
	running   bool
	startTime time.Time
	tickCount int64
	metrics   Metrics
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Deps 调度器依赖集合
type Deps struct {
	Queue     *queue.EventQueue
	Registry  EphemeralRegistry
	Memory    ContextLoader
	Vision    VisionProvider
	STT       Transcriber
	Akash     Classifier
	Rules     *rules.Engine
	Fusion    *decision.Fusion
	Delivery  Deliverer
	Vitals    VitalRecorder
	Logs      LogRecorder
	Patients  PatientLister
	LoopState SweepRecorder
	HashFn    func(string) string
	Model     string
	Logger    *zap.Logger
}

// NewOrchestrator 创建调度器
// interval 为 tick 间隔；autonomousEvery 为自主巡检周期（每 K 个 tick 一次）
func NewOrchestrator(interval time.Duration, autonomousEvery int, contextDays int, deps Deps) *Orchestrator {
	if autonomousEvery <= 0 {
		autonomousEvery = 5
	}
	if contextDays <= 0 {
		contextDays = 7
	}
	o := &Orchestrator{
		queue:     deps.Queue,
		registry:  deps.Registry,
		memory:    deps.Memory,
		vision:    deps.Vision,
		stt:       deps.STT,
		akash:     deps.Akash,
		rules:     deps.Rules,
		fusion:    deps.Fusion,
		delivery:  deps.Delivery,
		vitals:    deps.Vitals,
		logs:      deps.Logs,
		patients:  deps.Patients,
		loopState: deps.LoopState,
		logger:    deps.Logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	o.cfg.interval = interval
	o.cfg.autonomousEvery = int64(autonomousEvery)
	o.cfg.contextDays = contextDays
	o.cfg.hashFn = deps.HashFn
	o.cfg.model = deps.Model
	return o
}

// Push 入队一个已摄取条目（非阻塞）
func (o *Orchestrator) Push(item models.IngestedItem) bool {
	return o.queue.Push(item)
}

// Start 启动调度循环
// tick 一旦开始必定跑完，Stop 只阻止下一个 tick 的调度
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.startTime = time.Now()
	o.mu.Unlock()

	o.logger.Info("orchestrator started",
		zap.Duration("interval", o.cfg.interval),
		zap.Int64("autonomous_every", o.cfg.autonomousEvery))

	go func() {
		defer close(o.doneCh)
		ticker := time.NewTicker(o.cfg.interval)
		defer ticker.Stop()

		for {
			o.Tick(ctx)
			select {
			case <-ticker.C:
			case <-o.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop 停止调度，等待当前 tick 结束
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	close(o.stopCh)
	<-o.doneCh
	o.logger.Info("orchestrator stopped")
}

// Tick 执行一次完整 tick：排空 → 逐条处理 → 清扫 → （每 K 次）自主巡检
// 任何残余异常在此兜底，循环无条件进入下一个间隔
func (o *Orchestrator) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("tick recovered from panic", zap.Any("panic", r))
		}
	}()

	o.mu.Lock()
	o.tickCount++
	tick := o.tickCount
	o.mu.Unlock()

	// 1. 原子排空队列，tick 中途入队的条目属于下一个 tick
	items := o.queue.Drain()
	for _, item := range items {
		o.logger.Info("processing event",
			zap.String("session_id", item.SessionID),
			zap.String("input_type", item.InputType))
		o.ProcessEvent(ctx, item)
	}

	// 2. 清理过期临时文件（覆盖崩溃管线的遗留）
	if deleted := o.registry.Sweep(); deleted > 0 {
		o.addMetric(func(m *Metrics) { m.SweepsDeleted += int64(deleted) })
		o.logger.Info("ephemeral cleanup", zap.Int("deleted", deleted))
	}

	// 3. 自主巡检永远排在本 tick 全部条目之后，审计顺序因果一致
	if tick%o.cfg.autonomousEvery == 0 {
		o.autonomousSweep(ctx)
	}

	o.logger.Debug("tick complete",
		zap.Int64("tick", tick),
		zap.Int("events", len(items)),
		zap.Int("queue_size", o.queue.Size()))
}

// ProcessEvent 单条目全管线，队列排空与测试共用
// 条目级故障边界：任何意外都记录在该条目结果上，原始文件强制删除，tick 不中断
func (o *Orchestrator) ProcessEvent(ctx context.Context, item models.IngestedItem) (result models.ProcessResult) {
	result = models.ProcessResult{
		SessionID: item.SessionID,
		InputType: item.InputType,
		Status:    models.ItemProcessing,
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("event processing panicked",
				zap.String("session_id", item.SessionID),
				zap.Any("panic", r))
			result.Status = models.ItemFailed
			result.Error = fmt.Sprintf("pipeline panic: %v", r)
			o.addMetric(func(m *Metrics) { m.EventsFailed++ })
		}
		// 终态无条件删除原始文件，成功失败一视同仁
		if item.FilePath != "" {
			o.registry.DeleteImmediately(item.FilePath)
			result.RawDeleted = true
		}
	}()

	pc, err := o.memory.LoadContext(ctx, item.PatientID, o.cfg.contextDays)
	if err != nil {
		o.logger.Error("failed to load context",
			zap.String("session_id", item.SessionID),
			zap.Error(err))
		result.Status = models.ItemFailed
		result.Error = err.Error()
		o.addMetric(func(m *Metrics) { m.EventsFailed++ })
		return result
	}
	vitalsSummary := o.memory.FormatVitalsSummary(pc.VitalsHistory)

	switch {
	case item.InputType == models.InputPhoto && len(item.RawBytes) > 0:
		o.processPhoto(ctx, item, pc, vitalsSummary, &result)
	case item.InputType == models.InputVoice && len(item.RawBytes) > 0:
		o.processVoice(ctx, item, pc, vitalsSummary, &result)
	case item.InputType == models.InputText && item.Text != "":
		o.processText(ctx, item, pc, vitalsSummary, &result)
	case item.InputType == models.InputVital && item.Text != "":
		o.processVital(ctx, item, pc, &result)
	default:
		result.Status = models.ItemFailed
		result.Error = fmt.Sprintf("unsupported or empty input: %s", item.InputType)
		o.addMetric(func(m *Metrics) { m.EventsFailed++ })
		return result
	}

	if result.Status != models.ItemFailed {
		result.Status = models.ItemCompleted
		o.addMetric(func(m *Metrics) { m.EventsProcessed++ })
	}
	return result
}

// processPhoto 照片管线：Vision → 结构化分析 → 规则 → 融合 → 投递
func (o *Orchestrator) processPhoto(ctx context.Context, item models.IngestedItem, pc models.PatientContext, vitalsSummary string, result *models.ProcessResult) {
	vision := o.vision.AnalyzeImage(ctx, item.RawBytes)
	o.addMetric(func(m *Metrics) { m.VeniceCalls++ })

	visionJSON, _ := json.Marshal(vision)
	recentLogs := formatRecentLogs(pc.RecentLogs)
	ai := o.akash.Analyze(ctx, string(visionJSON), vitalsSummary, recentLogs)
	o.addMetric(func(m *Metrics) { m.AkashCalls++ })

	triggers := o.rules.Evaluate(pc.LatestVitals)
	fused := o.fusion.Combine(triggers, ai)
	result.Decision = &fused

	o.deliverIfWorthy(ctx, item.PatientID, fused, result)
	o.recordLog(ctx, item, "Vision: "+truncate(vision.Observations, 200), fused, result, ai.AnomalyScore)
}

// processVoice 语音管线：STT → SOAP → 规则 → 融合 → 投递
// 主诉里提到的疼痛等级落库为体征并参与本次规则评估
func (o *Orchestrator) processVoice(ctx context.Context, item models.IngestedItem, pc models.PatientContext, vitalsSummary string, result *models.ProcessResult) {
	transcript, err := o.stt.Transcribe(ctx, item.RawBytes)
	o.addMetric(func(m *Metrics) { m.VeniceCalls++ })
	result.Transcript = transcript

	if transcript == "" {
		result.Status = models.ItemFailed
		result.Error = "STT returned empty"
		if err != nil {
			result.Error = fmt.Sprintf("STT failed: %v", err)
		}
		o.addMetric(func(m *Metrics) { m.EventsFailed++ })
		return
	}

	soap := o.akash.SOAPNote(ctx, transcript, vitalsSummary)
	o.addMetric(func(m *Metrics) { m.AkashCalls++ })

	o.recordPainLevel(ctx, item, soap, &pc, models.InputVoice)

	ai := classificationFromSOAP(soap, 0.7, 0.3)
	triggers := o.rules.Evaluate(pc.LatestVitals)
	fused := o.fusion.Combine(triggers, ai)
	result.Decision = &fused

	o.deliverIfWorthy(ctx, item.PatientID, fused, result)
	o.recordLog(ctx, item,
		fmt.Sprintf("SOAP: S=%s A=%s", soap.Subjective, soap.Assessment),
		fused, result, ai.AnomalyScore)
}

// processText 文字管线：SOAP → 规则 → 融合 → 投递
func (o *Orchestrator) processText(ctx context.Context, item models.IngestedItem, pc models.PatientContext, vitalsSummary string, result *models.ProcessResult) {
	soap := o.akash.SOAPNote(ctx, item.Text, vitalsSummary)
	o.addMetric(func(m *Metrics) { m.AkashCalls++ })

	o.recordPainLevel(ctx, item, soap, &pc, models.InputText)

	ai := classificationFromSOAP(soap, 0.6, 0.2)
	triggers := o.rules.Evaluate(pc.LatestVitals)
	fused := o.fusion.Combine(triggers, ai)
	result.Decision = &fused

	o.deliverIfWorthy(ctx, item.PatientID, fused, result)
	o.recordLog(ctx, item, truncate(item.Text, 300), fused, result, ai.AnomalyScore)
}

// processVital 体征管线：落库 → 规则 → 融合 → 投递
func (o *Orchestrator) processVital(ctx context.Context, item models.IngestedItem, pc models.PatientContext, result *models.ProcessResult) {
	metric, value, unit, ok := parseVitalText(item.Text)
	if ok {
		if _, err := o.vitals.RecordVital(ctx, item.PatientID, metric, value, unit, "", "manual"); err != nil {
			o.logger.Error("failed to record vital", zap.Error(err))
		}
		if pc.LatestVitals == nil {
			pc.LatestVitals = models.VitalsSnapshot{}
		}
		pc.LatestVitals[metric] = models.VitalValue{Value: value, Unit: unit}
	}

	ai := models.Classification{Decision: models.DecisionNormal, AnomalyScore: 0.0, Reason: "vital recorded"}
	triggers := o.rules.Evaluate(pc.LatestVitals)
	fused := o.fusion.Combine(triggers, ai)
	result.Decision = &fused

	o.deliverIfWorthy(ctx, item.PatientID, fused, result)
	o.recordLog(ctx, item, item.Text, fused, result, 0.0)
}

// autonomousSweep 自主巡检：对每个有历史数据的患者跑一次独立巡检决策
// 决策要求报警时直接构造合成决策进投递引擎（无新条目，不过规则引擎）
func (o *Orchestrator) autonomousSweep(ctx context.Context) {
	patientIDs, err := o.patients.ListPatientIDs(ctx)
	if err != nil {
		o.logger.Error("failed to list patients for sweep", zap.Error(err))
		return
	}

	for _, patientID := range patientIDs {
		pc, err := o.memory.LoadContext(ctx, patientID, o.cfg.contextDays)
		if err != nil {
			o.logger.Error("sweep context load failed", zap.Error(err))
			continue
		}
		contextText := o.memory.FormatForAI(pc)
		if !pc.HasData() {
			continue
		}

		loopDecision := o.akash.LoopDecision(ctx, contextText)
		o.addMetric(func(m *Metrics) { m.AkashCalls++; m.LoopDecisions++ })

		if o.loopState != nil {
			if err := o.loopState.RecordSweep(ctx, o.cfg.hashFn(patientID), loopDecision); err != nil {
				o.logger.Warn("failed to record sweep state", zap.Error(err))
			}
		}

		if !loopDecision.RequestsAlert() {
			continue
		}

		severity := loopDecision.Severity
		if severity < models.SeverityCritical || severity > models.SeverityInfo {
			severity = models.SeverityWarning
		}
		reason := loopDecision.Reason
		if reason == "" {
			reason = "Autonomous loop alert"
		}
		synthetic := models.FusedDecision{
			FinalDecision: models.DecisionAlert,
			FinalSeverity: severity,
			Reason:        reason,
			Source:        models.SourceAutonomousLoop,
			AI: models.Classification{
				Decision:      loopDecision.Action,
				AnomalyScore:  loopDecision.Confidence,
				Reason:        loopDecision.Reason,
				Model:         o.cfg.model,
				Degraded:      loopDecision.Degraded,
				DegradedCause: loopDecision.DegradedCause,
			},
		}
		if _, err := o.delivery.Deliver(ctx, patientID, synthetic); err != nil {
			o.logger.Error("sweep delivery failed", zap.Error(err))
			continue
		}
		o.addMetric(func(m *Metrics) { m.AlertsDelivered++ })
	}
}

// GetStatus 当前运行状态快照
func (o *Orchestrator) GetStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	uptime := 0.0
	if !o.startTime.IsZero() {
		uptime = time.Since(o.startTime).Seconds()
	}
	return Status{
		Running:        o.running,
		UptimeSeconds:  uptime,
		TickCount:      o.tickCount,
		QueueSize:      o.queue.Size(),
		EphemeralCount: o.registry.Count(),
		Stats:          o.metrics,
	}
}

func (o *Orchestrator) addMetric(fn func(*Metrics)) {
	o.mu.Lock()
	fn(&o.metrics)
	o.mu.Unlock()
}

// deliverIfWorthy 只有 alert/escalate 进投递引擎
func (o *Orchestrator) deliverIfWorthy(ctx context.Context, patientID string, fused models.FusedDecision, result *models.ProcessResult) {
	if !fused.AlertWorthy() {
		return
	}
	receipt, err := o.delivery.Deliver(ctx, patientID, fused)
	if err != nil {
		o.logger.Error("delivery failed",
			zap.String("session_id", result.SessionID),
			zap.Error(err))
		result.Delivery = &receipt
		return
	}
	result.Delivery = &receipt
	o.addMetric(func(m *Metrics) { m.AlertsDelivered++ })
}

// recordPainLevel SOAP 提到的疼痛等级作为体征落库并进入当前快照
func (o *Orchestrator) recordPainLevel(ctx context.Context, item models.IngestedItem, soap models.SOAPNote, pc *models.PatientContext, source string) {
	if soap.PainLevel == nil {
		return
	}
	if _, err := o.vitals.RecordVital(ctx, item.PatientID, "pain_level", *soap.PainLevel, "/10", "", source); err != nil {
		o.logger.Error("failed to record pain level", zap.Error(err))
	}
	if pc.LatestVitals == nil {
		pc.LatestVitals = models.VitalsSnapshot{}
	}
	pc.LatestVitals["pain_level"] = models.VitalValue{Value: *soap.PainLevel, Unit: "/10"}
}

func (o *Orchestrator) recordLog(ctx context.Context, item models.IngestedItem, summary string, fused models.FusedDecision, result *models.ProcessResult, anomalyScore float64) {
	actionTaken := "logged"
	if result.Delivery != nil {
		actionTaken = strings.Join(result.Delivery.ActionNames(), ", ")
	}
	if _, err := o.logs.RecordLog(ctx, models.AnalysisLog{
		PatientID:    item.PatientID,
		SessionID:    item.SessionID,
		InputType:    item.InputType,
		Summary:      summary,
		Decision:     fused.FinalDecision,
		Reason:       truncate(fused.Reason, 300),
		ActionTaken:  actionTaken,
		ModelUsed:    o.cfg.model,
		AnomalyScore: anomalyScore,
	}); err != nil {
		o.logger.Error("failed to record analysis log",
			zap.String("session_id", item.SessionID),
			zap.Error(err))
	}
}

// classificationFromSOAP SOAP 紧急度映射为分类结果
// urgent/emergency 取高分，其余取低分（语音与文字取值不同）
func classificationFromSOAP(soap models.SOAPNote, highScore, lowScore float64) models.Classification {
	score := lowScore
	if soap.Urgency == "urgent" || soap.Urgency == "emergency" {
		score = highScore
	}
	return models.Classification{
		Decision:      soap.Urgency,
		AnomalyScore:  score,
		Reason:        soap.Assessment,
		Degraded:      soap.Degraded,
		DegradedCause: soap.DegradedCause,
	}
}

// parseVitalText 解析 "metric_type: value unit" 形式的体征文本
func parseVitalText(text string) (metric string, value float64, unit string, ok bool) {
	parts := strings.SplitN(text, ":", 2)
	if len(parts) != 2 {
		return "", 0, "", false
	}
	metric = strings.TrimSpace(parts[0])
	fields := strings.Fields(strings.TrimSpace(parts[1]))
	if metric == "" || len(fields) == 0 {
		return "", 0, "", false
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return "", 0, "", false
	}
	if len(fields) > 1 {
		unit = fields[1]
	}
	return metric, value, unit, true
}

func formatRecentLogs(logs []models.AnalysisLog) string {
	var parts []string
	for i, l := range logs {
		if i >= 3 {
			break
		}
		parts = append(parts, fmt.Sprintf("%s: %s", l.Decision, truncate(l.Reason, 40)))
	}
	return strings.Join(parts, "; ")
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
