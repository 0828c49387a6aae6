package models

import "time"

// 投递动作名
const (
	ActionPatientAlert   = "telegram_alert"
	ActionPatientWarning = "telegram_warning"
	ActionDoctorNotify   = "doctor_notify"
	ActionTTSAlert       = "tts_alert"
	ActionAudioDelivery  = "audio_delivery"
	ActionLoggedOnly     = "logged_only"
)

// ActionResult 单个投递动作的结果
type ActionResult struct {
	Name       string `json:"name"`
	Attempted  bool   `json:"attempted"`
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code,omitempty"`
}

// DeliveryReceipt 投递回执（每次投递引擎调用产出一份）
// RawDataRetained 恒为 false：投递侧不保留任何原始数据
type DeliveryReceipt struct {
	ReceiptID       string         `json:"receipt_id"`
	PatientIDHash   string         `json:"patient_id_hash"`
	Severity        int            `json:"severity"`
	Source          string         `json:"source"`
	Actions         []ActionResult `json:"actions"`
	RawDataRetained bool           `json:"raw_data_retained"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ActionNames 已尝试动作名列表（用于持久化与审计）
func (r *DeliveryReceipt) ActionNames() []string {
	names := make([]string, 0, len(r.Actions))
	for _, a := range r.Actions {
		names = append(names, a.Name)
	}
	return names
}

// ActionOK 指定动作是否尝试且成功
func (r *DeliveryReceipt) ActionOK(name string) bool {
	for _, a := range r.Actions {
		if a.Name == name {
			return a.Attempted && a.OK
		}
	}
	return false
}

// AlertRecord 报警记录（对应 alerts 表）
type AlertRecord struct {
	ID           string    `json:"id" db:"id"`
	PatientID    string    `json:"patient_id" db:"patient_id"`
	Severity     int       `json:"severity" db:"severity"`
	Message      string    `json:"message" db:"message"`
	ActionTaken  string    `json:"action_taken" db:"action_taken"`
	ChannelReply string    `json:"channel_reply" db:"channel_reply"`
	TTSGenerated bool      `json:"tts_generated" db:"tts_generated"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// AnalysisLog 分析日志（对应 logs 表，摘要字段加密存储）
type AnalysisLog struct {
	ID           string    `json:"id" db:"id"`
	PatientID    string    `json:"patient_id" db:"patient_id"`
	SessionID    string    `json:"session_id" db:"session_id"`
	InputType    string    `json:"input_type" db:"input_type"`
	Summary      string    `json:"summary" db:"-"` // 加密存储
	Decision     string    `json:"decision" db:"decision"`
	Reason       string    `json:"reason" db:"reason"`
	ActionTaken  string    `json:"action_taken" db:"action_taken"`
	ModelUsed    string    `json:"model_used" db:"model_used"`
	AnomalyScore float64   `json:"anomaly_score" db:"anomaly_score"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// AuditEntry 审计条目（append-only，只增不改）
type AuditEntry struct {
	ActionID      string    `json:"action_id" db:"action_id"`
	Type          string    `json:"type" db:"type"`
	PatientIDHash string    `json:"patient_id_hash" db:"patient_id_hash"`
	Payload       string    `json:"payload" db:"payload"` // JSONB
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
}

// Patient 患者（仅决策管线所需的最小投影）
type Patient struct {
	ID        string    `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
