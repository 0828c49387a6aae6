package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/config"
	"github.com/karthiksai109/healthguard/internal/models"
)

// AkashML 只接收结构化文本：脱敏后的体征摘要与分析 JSON
// 原始照片、音频、患者姓名永远不出这道边界

const analyzePrompt = `Clinical decision AI. Return ONLY JSON:
{"decision":"normal|monitor|alert|escalate","anomaly_score":0.0-1.0,"reason":"explanation","urgency":"none|within_week|within_24_hours|immediate","recommended_actions":["action1"]}
Score>0.7=escalate, >0.4=alert.`

const soapPrompt = `Convert to SOAP note. Return ONLY JSON:
{"subjective":"reported","objective":"observations","assessment":"assessment","plan":"next steps","key_symptoms":["s1"],"urgency":"routine|soon|urgent|emergency","pain_level":0-10}`

const loopDecisionPrompt = `Health monitoring agent. Return ONLY JSON:
{"action":"idle|alert_patient|alert_doctor","reason":"why","severity":1-3,"confidence":0.0-1.0}`

const weeklyPrompt = `Weekly health summary. Return ONLY JSON:
{"overall_status":"stable|improving|declining|concerning","key_findings":["f1"],"vitals_trends":"trends","recommendations":["r1"]}`

// AkashClient AkashML 结构化推理客户端
type AkashClient struct {
	httpClient *resty.Client
	model      string
	logger     *zap.Logger
}

// NewAkashClient 创建 AkashML 客户端
func NewAkashClient(cfg *config.Config, logger *zap.Logger) *AkashClient {
	client := resty.New().
		SetBaseURL(cfg.AkashML.BaseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+cfg.AkashML.APIKey)

	return &AkashClient{
		httpClient: client,
		model:      cfg.AkashML.PrimaryModel,
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chat 单轮对话，返回模型原始输出
func (c *AkashClient) chat(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	request := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	var response chatResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("failed to call AkashML API: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("AkashML API error: status %d", resp.StatusCode())
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("AkashML returned no choices")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// extractJSON 剥离 markdown 代码围栏
func extractJSON(raw string) string {
	if !strings.Contains(raw, "```") {
		return strings.TrimSpace(raw)
	}
	parts := strings.Split(raw, "```")
	if len(parts) < 2 {
		return strings.TrimSpace(raw)
	}
	body := parts[1]
	body = strings.TrimPrefix(body, "json")
	return strings.TrimSpace(body)
}

// Analyze 结合体征历史分析结构化输入，产出分类结果
// 失败不抛错：网络失败与解析失败都退化为安全默认值，原因显式标记
func (c *AkashClient) Analyze(ctx context.Context, structuredInput, vitalsSummary, recentLogs string) models.Classification {
	content := fmt.Sprintf("Input analysis: %s\n\nVitals history: %s", structuredInput, vitalsSummary)
	if recentLogs != "" {
		content += "\n\nRecent analysis logs: " + recentLogs
	}

	raw, err := c.chat(ctx, analyzePrompt, content, 300, 0.1)
	if err != nil {
		c.logger.Error("akashml analyze failed", zap.Error(err))
		return models.SafeDefaultClassification(models.DegradedUnavailable, 0.0)
	}

	var result models.Classification
	if err := json.Unmarshal([]byte(extractJSON(raw)), &result); err != nil {
		c.logger.Warn("akashml analyze parse failed", zap.String("raw", truncate(raw, 200)))
		return models.SafeDefaultClassification(models.DegradedParseError, 0.3)
	}
	result.Model = c.model

	c.logger.Info("akashml analyze ok",
		zap.String("decision", result.Decision),
		zap.Float64("anomaly_score", result.AnomalyScore))
	return result
}

// SOAPNote 把语音转写或文字主诉结构化为 SOAP 记录
// 失败退化：主诉原文进 subjective，urgency=routine
func (c *AkashClient) SOAPNote(ctx context.Context, transcript, vitalsContext string) models.SOAPNote {
	content := "Patient transcript: " + transcript
	if vitalsContext != "" {
		content += "\n\nRecent vitals context: " + vitalsContext
	}

	raw, err := c.chat(ctx, soapPrompt, content, 300, 0.1)
	if err != nil {
		c.logger.Error("akashml soap failed", zap.Error(err))
		return models.SOAPNote{
			Subjective:    transcript,
			Urgency:       "routine",
			Degraded:      true,
			DegradedCause: models.DegradedUnavailable,
		}
	}

	var note models.SOAPNote
	if err := json.Unmarshal([]byte(extractJSON(raw)), &note); err != nil {
		c.logger.Warn("akashml soap parse failed", zap.String("raw", truncate(raw, 200)))
		return models.SOAPNote{
			Subjective:    transcript,
			Assessment:    raw,
			Urgency:       "routine",
			Degraded:      true,
			DegradedCause: models.DegradedParseError,
		}
	}

	c.logger.Info("akashml soap ok", zap.String("urgency", note.Urgency))
	return note
}

// LoopDecision 自主巡检决策
// 失败退化为 idle，不产生任何报警
func (c *AkashClient) LoopDecision(ctx context.Context, contextText string) models.LoopDecision {
	raw, err := c.chat(ctx, loopDecisionPrompt, contextText, 150, 0.1)
	if err != nil {
		c.logger.Error("akashml loop failed", zap.Error(err))
		return models.LoopDecision{
			Action:        "idle",
			Reason:        "decision error: " + err.Error(),
			Severity:      models.SeverityInfo,
			Degraded:      true,
			DegradedCause: models.DegradedUnavailable,
		}
	}

	var decision models.LoopDecision
	if err := json.Unmarshal([]byte(extractJSON(raw)), &decision); err != nil {
		c.logger.Warn("akashml loop parse failed", zap.String("raw", truncate(raw, 200)))
		return models.LoopDecision{
			Action:        "idle",
			Reason:        "decision parse error",
			Severity:      models.SeverityInfo,
			Degraded:      true,
			DegradedCause: models.DegradedParseError,
		}
	}

	c.logger.Info("akashml loop ok",
		zap.String("action", decision.Action),
		zap.Int("severity", decision.Severity))
	return decision
}

// WeeklySummary 周报摘要
func (c *AkashClient) WeeklySummary(ctx context.Context, weekData string) (models.WeeklySummary, error) {
	raw, err := c.chat(ctx, weeklyPrompt, weekData, 300, 0.2)
	if err != nil {
		return models.WeeklySummary{OverallStatus: "unknown"}, err
	}

	var summary models.WeeklySummary
	if err := json.Unmarshal([]byte(extractJSON(raw)), &summary); err != nil {
		return models.WeeklySummary{OverallStatus: "unknown"}, fmt.Errorf("failed to parse weekly summary: %w", err)
	}
	return summary, nil
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
