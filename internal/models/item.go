package models

import "time"

// 输入类型
const (
	InputPhoto = "photo"
	InputVoice = "voice"
	InputText  = "text"
	InputVital = "vital"
)

// 条目状态
const (
	ItemQueued     = "queued"
	ItemProcessing = "processing"
	ItemCompleted  = "completed"
	ItemFailed     = "failed"
)

// IngestedItem 已摄取条目（进入事件队列等待处理）
// SessionID 是临时会话标识，对 AI 侧永远不暴露患者标识
type IngestedItem struct {
	SessionID string    `json:"session_id"`
	InputType string    `json:"input_type"` // photo, voice, text, vital
	PatientID string    `json:"patient_id"`
	FilePath  string    `json:"file_path,omitempty"` // 临时原始文件路径
	RawBytes  []byte    `json:"-"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProcessResult 单条目处理结果
type ProcessResult struct {
	SessionID  string           `json:"session_id"`
	InputType  string           `json:"input_type"`
	Status     string           `json:"status"`
	Decision   *FusedDecision   `json:"decision,omitempty"`
	Delivery   *DeliveryReceipt `json:"delivery,omitempty"`
	Transcript string           `json:"transcript,omitempty"`
	RawDeleted bool             `json:"raw_deleted"`
	Error      string           `json:"error,omitempty"`
}
