package notify

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/config"
)

// SendResult 单次发送结果（可核验回执的原材料）
type SendResult struct {
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code"`
	Reason     string `json:"reason,omitempty"`
}

// TelegramClient Telegram Bot 通知通道
// 未配置 token/chat_id 时所有发送都是 no-op，返回 ok=false 不报错
type TelegramClient struct {
	httpClient  *resty.Client
	audioClient *resty.Client // 语音上传超时更长
	chatID      string
	enabled     bool
	logger      *zap.Logger
}

// NewTelegramClient 创建 Telegram 通知通道
func NewTelegramClient(cfg *config.Config, logger *zap.Logger) *TelegramClient {
	enabled := cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != ""

	var httpClient, audioClient *resty.Client
	if enabled {
		apiBase := cfg.Telegram.APIBase
		if apiBase == "" {
			apiBase = "https://api.telegram.org"
		}
		baseURL := apiBase + "/bot" + cfg.Telegram.BotToken
		httpClient = resty.New().SetBaseURL(baseURL).SetTimeout(10 * time.Second)
		audioClient = resty.New().SetBaseURL(baseURL).SetTimeout(15 * time.Second)
	}

	if !enabled {
		logger.Warn("telegram not configured, notifications will be no-ops")
	}
	return &TelegramClient{
		httpClient:  httpClient,
		audioClient: audioClient,
		chatID:      cfg.Telegram.ChatID,
		enabled:     enabled,
		logger:      logger,
	}
}

// Enabled 通道是否已配置
func (c *TelegramClient) Enabled() bool {
	return c.enabled
}

// Send 发送文字通知
func (c *TelegramClient) Send(ctx context.Context, text string) SendResult {
	if !c.enabled {
		return SendResult{OK: false, Reason: "telegram_not_configured"}
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    c.chatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		Post("/sendMessage")
	if err != nil {
		c.logger.Error("telegram send failed", zap.Error(err))
		return SendResult{OK: false, Reason: err.Error()}
	}

	result := SendResult{
		OK:         resp.StatusCode() == 200,
		StatusCode: resp.StatusCode(),
	}
	c.logger.Info("telegram message sent",
		zap.Bool("ok", result.OK),
		zap.Int("status_code", result.StatusCode))
	return result
}

// SendAudio 发送语音通知
func (c *TelegramClient) SendAudio(ctx context.Context, audioBytes []byte, caption string) SendResult {
	if !c.enabled {
		return SendResult{OK: false, Reason: "telegram_not_configured"}
	}
	if len(caption) > 1024 {
		caption = caption[:1024]
	}

	resp, err := c.audioClient.R().
		SetContext(ctx).
		SetFileReader("voice", "alert.mp3", bytes.NewReader(audioBytes)).
		SetFormData(map[string]string{
			"chat_id": c.chatID,
			"caption": caption,
		}).
		Post("/sendVoice")
	if err != nil {
		c.logger.Error("telegram audio send failed", zap.Error(err))
		return SendResult{OK: false, Reason: err.Error()}
	}

	result := SendResult{
		OK:         resp.StatusCode() == 200,
		StatusCode: resp.StatusCode(),
	}
	c.logger.Info("telegram audio sent",
		zap.Bool("ok", result.OK),
		zap.Int("status_code", result.StatusCode),
		zap.Int("bytes", len(audioBytes)))
	return result
}

// String 回执中记录的通道应答摘要
func (r SendResult) String() string {
	return fmt.Sprintf("%d %t", r.StatusCode, r.OK)
}
