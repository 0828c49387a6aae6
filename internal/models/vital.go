package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// VitalValue 归一化后的体征值（数值 + 单位）
// 上游可能提供裸数值或 {value, unit} 包装，两种形状在反序列化时统一为本类型
type VitalValue struct {
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// UnmarshalJSON 同时接受裸数值和 {value, unit} 两种形状
func (v *VitalValue) UnmarshalJSON(data []byte) error {
	// 先尝试裸数值
	var bare float64
	if err := json.Unmarshal(data, &bare); err == nil {
		v.Value = bare
		v.Unit = ""
		return nil
	}

	// 再尝试包装对象
	type wrapped VitalValue
	var w wrapped
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("vital value must be a number or {value, unit}: %w", err)
	}
	*v = VitalValue(w)
	return nil
}

// VitalsSnapshot 当前体征快照（metric_type -> 归一化体征值）
type VitalsSnapshot map[string]VitalValue

// VitalReading 体征读数（对应 vitals 表，记录后不可变）
type VitalReading struct {
	ID         string    `json:"id" db:"id"`
	PatientID  string    `json:"patient_id" db:"patient_id"`
	MetricType string    `json:"metric_type" db:"metric_type"`
	Value      float64   `json:"value" db:"value"`
	Unit       string    `json:"unit" db:"unit"`
	Note       string    `json:"note,omitempty" db:"-"` // 加密存储
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	Source     string    `json:"source" db:"source"` // manual, voice, text, mqtt
}

// PatientContext 患者上下文（Context Loader 的装配结果）
type PatientContext struct {
	LatestVitals  VitalsSnapshot `json:"latest_vitals"`
	VitalsHistory []VitalReading `json:"vitals_history"`
	RecentLogs    []AnalysisLog  `json:"recent_logs"`
	RecentAlerts  []AlertRecord  `json:"recent_alerts"`
}

// HasData 上下文中是否有任何患者数据
func (c *PatientContext) HasData() bool {
	return len(c.LatestVitals) > 0 || len(c.VitalsHistory) > 0 ||
		len(c.RecentLogs) > 0 || len(c.RecentAlerts) > 0
}
