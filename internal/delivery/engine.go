package delivery

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/models"
	"github.com/karthiksai109/healthguard/internal/notify"
	"github.com/karthiksai109/healthguard/internal/repository"
)

// Notifier 通知通道（患者与医生共用同一通道，生产环境应拆分）
type Notifier interface {
	Send(ctx context.Context, text string) notify.SendResult
	SendAudio(ctx context.Context, audioBytes []byte, caption string) notify.SendResult
}

// Synthesizer 语音合成，失败返回 nil
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) []byte
}

// AlertRecorder 报警落库
type AlertRecorder interface {
	RecordAlert(ctx context.Context, alert models.AlertRecord) (string, error)
}

// AuditAppender 审计追加
type AuditAppender interface {
	Append(ctx context.Context, entryType, patientIDHash string, payload interface{}) (string, error)
}

// Engine 投递引擎
// 按严重级别执行动作集，每次调用产出一份回执：
//
//	一级：患者即时通知 + 医生通知 + 语音合成（成功则随通知投递音频）
//	二级：低紧急度患者通知
//	三级：仅记录，无外发动作
//
// 各动作彼此独立，单个动作失败不阻断其余动作，
// 也不阻断必产的报警记录与审计条目（每次调用恰好各一条）
type Engine struct {
	notifier Notifier
	synth    Synthesizer
	alerts   AlertRecorder
	audit    AuditAppender
	logger   *zap.Logger
}

// NewEngine 创建投递引擎
func NewEngine(notifier Notifier, synth Synthesizer, alerts AlertRecorder, audit AuditAppender, logger *zap.Logger) *Engine {
	return &Engine{
		notifier: notifier,
		synth:    synth,
		alerts:   alerts,
		audit:    audit,
		logger:   logger,
	}
}

// Deliver 执行投递并产出回执
// 外发动作即发即忘：失败记录在回执里，不自动重试
func (e *Engine) Deliver(ctx context.Context, patientID string, decision models.FusedDecision) (models.DeliveryReceipt, error) {
	patientIDHash := repository.HashPatientID(patientID)

	receipt := models.DeliveryReceipt{
		ReceiptID:       uuid.New().String(),
		PatientIDHash:   patientIDHash,
		Severity:        decision.FinalSeverity,
		Source:          decision.Source,
		RawDataRetained: false,
		CreatedAt:       time.Now().UTC(),
	}

	var channelReply string
	switch decision.FinalSeverity {
	case models.SeverityCritical:
		channelReply = e.deliverCritical(ctx, patientIDHash, decision.Reason, &receipt)
	case models.SeverityWarning:
		channelReply = e.deliverWarning(ctx, patientIDHash, decision.Reason, &receipt)
	default:
		receipt.Actions = append(receipt.Actions, models.ActionResult{
			Name:      models.ActionLoggedOnly,
			Attempted: true,
			OK:        true,
		})
	}

	// 动作无论成败，报警记录与审计条目必须各写一条
	persistErr := e.persist(ctx, patientID, patientIDHash, decision, receipt, channelReply)

	e.logger.Info("delivery complete",
		zap.Int("severity", decision.FinalSeverity),
		zap.Strings("actions", receipt.ActionNames()))
	return receipt, persistErr
}

// deliverCritical 一级：患者通知 + 语音 + 医生通知
func (e *Engine) deliverCritical(ctx context.Context, patientIDHash, reason string, receipt *models.DeliveryReceipt) string {
	patientMsg := fmt.Sprintf(
		"🚨 <b>CRITICAL ALERT</b>\n\n%s\n\nPatient: %s\nAction required immediately.",
		reason, patientIDHash)
	patientResult := e.notifier.Send(ctx, patientMsg)
	receipt.Actions = append(receipt.Actions, models.ActionResult{
		Name:       models.ActionPatientAlert,
		Attempted:  true,
		OK:         patientResult.OK,
		StatusCode: patientResult.StatusCode,
	})

	// 语音合成；成功才尝试投递音频
	ttsText := fmt.Sprintf(
		"Critical health alert. %s. Please seek immediate medical attention or contact your doctor.",
		reason)
	audio := e.synth.Synthesize(ctx, ttsText)
	receipt.Actions = append(receipt.Actions, models.ActionResult{
		Name:      models.ActionTTSAlert,
		Attempted: true,
		OK:        audio != nil,
	})
	if audio != nil {
		caption := "🚨 Critical Alert Audio — " + truncate(reason, 100)
		audioResult := e.notifier.SendAudio(ctx, audio, caption)
		receipt.Actions = append(receipt.Actions, models.ActionResult{
			Name:       models.ActionAudioDelivery,
			Attempted:  true,
			OK:         audioResult.OK,
			StatusCode: audioResult.StatusCode,
		})
	}

	doctorMsg := fmt.Sprintf(
		"👨‍⚕️ <b>DOCTOR NOTIFICATION</b>\n\nPatient %s requires immediate review.\n\n%s",
		patientIDHash, reason)
	doctorResult := e.notifier.Send(ctx, doctorMsg)
	receipt.Actions = append(receipt.Actions, models.ActionResult{
		Name:       models.ActionDoctorNotify,
		Attempted:  true,
		OK:         doctorResult.OK,
		StatusCode: doctorResult.StatusCode,
	})

	return patientResult.String()
}

// deliverWarning 二级：仅低紧急度患者通知
func (e *Engine) deliverWarning(ctx context.Context, patientIDHash, reason string, receipt *models.DeliveryReceipt) string {
	msg := fmt.Sprintf(
		"⚠️ <b>WARNING</b>\n\n%s\n\nPatient: %s\nMonitor closely.",
		reason, patientIDHash)
	result := e.notifier.Send(ctx, msg)
	receipt.Actions = append(receipt.Actions, models.ActionResult{
		Name:       models.ActionPatientWarning,
		Attempted:  true,
		OK:         result.OK,
		StatusCode: result.StatusCode,
	})
	return result.String()
}

// persist 必产的报警记录 + 审计条目
func (e *Engine) persist(ctx context.Context, patientID, patientIDHash string, decision models.FusedDecision, receipt models.DeliveryReceipt, channelReply string) error {
	actions := receipt.ActionNames()

	if _, err := e.alerts.RecordAlert(ctx, models.AlertRecord{
		PatientID:    patientID,
		Severity:     decision.FinalSeverity,
		Message:      decision.Reason,
		ActionTaken:  joinActions(actions),
		ChannelReply: channelReply,
		TTSGenerated: receipt.ActionOK(models.ActionTTSAlert),
	}); err != nil {
		e.logger.Error("failed to record alert", zap.Error(err))
		return fmt.Errorf("failed to record alert: %w", err)
	}

	model := decision.AI.Model
	if model == "" {
		model = "rule_engine"
	}
	if _, err := e.audit.Append(ctx, fmt.Sprintf("severity_%d_delivery", decision.FinalSeverity), patientIDHash,
		map[string]interface{}{
			"receipt_id":        receipt.ReceiptID,
			"severity":          decision.FinalSeverity,
			"reason":            truncate(decision.Reason, 200),
			"source":            decision.Source,
			"model_used":        model,
			"anomaly_score":     decision.AI.AnomalyScore,
			"actions_taken":     actions,
			"raw_data_retained": false,
		}); err != nil {
		e.logger.Error("failed to append delivery audit", zap.Error(err))
		return fmt.Errorf("failed to append delivery audit: %w", err)
	}
	return nil
}

func joinActions(actions []string) string {
	out := ""
	for i, a := range actions {
		if i > 0 {
			out += ", "
		}
		out += a
	}
	return out
}

// truncate 在符文边界截断，阈值消息里的 ≥/°F 不会被切成半个字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
