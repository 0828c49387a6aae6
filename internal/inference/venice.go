package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/config"
	"github.com/karthiksai109/healthguard/internal/models"
)

// Venice 多模态推理：STT / Vision / TTS / ImgGen
// Venice 处理完即忘，零保留；入参只带会话标识，不带患者身份

const visionPrompt = `Medical image triage AI. Analyze image and return ONLY JSON:
{"image_type":"wound|burn|rash|bruise|skin_lesion|other","observations":"what you see","severity":"mild|moderate|severe|critical","infection_risk":"low|moderate|high","confidence":0.0-1.0,"primary_concern":"main finding"}
Be specific. Reassure if mild, be direct if serious.`

// VeniceClient Venice 多模态推理客户端
type VeniceClient struct {
	httpClient  *resty.Client
	imageClient *resty.Client // 图像生成耗时更长，单独超时
	cfg         *config.Config
	logger      *zap.Logger
}

// NewVeniceClient 创建 Venice 客户端
func NewVeniceClient(cfg *config.Config, logger *zap.Logger) *VeniceClient {
	base := func(timeout time.Duration) *resty.Client {
		return resty.New().
			SetBaseURL(cfg.Venice.BaseURL).
			SetTimeout(timeout).
			SetHeader("Authorization", "Bearer "+cfg.Venice.APIKey)
	}

	return &VeniceClient{
		httpClient:  base(30 * time.Second),
		imageClient: base(45 * time.Second),
		cfg:         cfg,
		logger:      logger,
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe 语音转写（Whisper）
// 失败返回空转写，由上层按退化处理
func (c *VeniceClient) Transcribe(ctx context.Context, audioBytes []byte) (string, error) {
	var result transcriptionResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFileReader("file", "voice.wav", bytes.NewReader(audioBytes)).
		SetFormData(map[string]string{"model": c.cfg.Venice.STTModel}).
		SetResult(&result).
		Post("/audio/transcriptions")
	if err != nil {
		c.logger.Error("venice stt failed", zap.Error(err))
		return "", fmt.Errorf("failed to call Venice STT: %w", err)
	}
	if resp.IsError() {
		c.logger.Error("venice stt error", zap.Int("status_code", resp.StatusCode()))
		return "", fmt.Errorf("Venice STT error: status %d", resp.StatusCode())
	}

	c.logger.Info("venice stt ok", zap.Int("chars", len(result.Text)))
	return result.Text, nil
}

// AnalyzeImage 图像分析（Vision）
// 失败不抛错：退化结果带显式原因
func (c *VeniceClient) AnalyzeImage(ctx context.Context, imageBytes []byte) models.VisionAnalysis {
	b64 := base64.StdEncoding.EncodeToString(imageBytes)
	dataURL := fmt.Sprintf("data:%s;base64,%s", detectMIME(imageBytes), b64)

	request := map[string]interface{}{
		"model": c.cfg.Venice.VisionModel,
		"messages": []map[string]interface{}{
			{"role": "system", "content": visionPrompt},
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
					{"type": "text", "text": "Analyze this health image. Return JSON only."},
				},
			},
		},
		"max_tokens":  400,
		"temperature": 0.1,
	}

	var response chatResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request).
		SetResult(&response).
		Post("/chat/completions")
	if err != nil || resp.IsError() || len(response.Choices) == 0 {
		c.logger.Error("venice vision failed", zap.Error(err))
		return models.VisionAnalysis{
			Observations:  "vision analysis failed",
			Degraded:      true,
			DegradedCause: models.DegradedUnavailable,
		}
	}

	raw := strings.TrimSpace(response.Choices[0].Message.Content)
	var analysis models.VisionAnalysis
	if err := json.Unmarshal([]byte(extractJSON(raw)), &analysis); err != nil {
		c.logger.Warn("venice vision parse failed", zap.String("raw", truncate(raw, 200)))
		return models.VisionAnalysis{
			Observations:  raw,
			Degraded:      true,
			DegradedCause: models.DegradedParseError,
		}
	}

	c.logger.Info("venice vision ok",
		zap.String("image_type", analysis.ImageType),
		zap.Float64("confidence", analysis.Confidence))
	return analysis
}

// Synthesize 语音合成（TTS）
// 失败返回 nil，投递侧按动作失败记录
func (c *VeniceClient) Synthesize(ctx context.Context, text string) []byte {
	if len(text) > 4000 {
		text = text[:4000]
	}
	request := map[string]interface{}{
		"model": c.cfg.Venice.AudioModel,
		"input": text,
		"voice": "af_heart",
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request).
		Post("/audio/speech")
	if err != nil {
		c.logger.Error("venice tts failed", zap.Error(err))
		return nil
	}
	if resp.IsError() {
		c.logger.Error("venice tts error", zap.Int("status_code", resp.StatusCode()))
		return nil
	}

	c.logger.Info("venice tts ok",
		zap.Int("chars", len(text)),
		zap.Int("bytes", len(resp.Body())))
	return resp.Body()
}

type imageGenResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// GenerateImage 生成可视化健康卡片（ImgGen）
// 入参只有干净的摘要文字，绝不含原始数据
func (c *VeniceClient) GenerateImage(ctx context.Context, summary string) ([]byte, error) {
	if len(summary) > 200 {
		summary = summary[:200]
	}
	prompt := fmt.Sprintf(
		"Clean medical infographic dashboard card. Dark background, teal and white accents. "+
			"Shows health metrics summary: %s. "+
			"Professional healthcare design. Data visualization style. No photorealism. "+
			"Modern, minimal, clinical aesthetic.", summary)

	request := map[string]interface{}{
		"model":           c.cfg.Venice.ImageModel,
		"prompt":          prompt,
		"n":               1,
		"size":            "512x512",
		"response_format": "b64_json",
	}

	var response imageGenResponse
	resp, err := c.imageClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request).
		SetResult(&response).
		Post("/images/generations")
	if err != nil {
		return nil, fmt.Errorf("failed to call Venice image generation: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("Venice image generation error: status %d", resp.StatusCode())
	}
	if len(response.Data) == 0 || response.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("Venice image generation returned no image")
	}

	imgBytes, err := base64.StdEncoding.DecodeString(response.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode generated image: %w", err)
	}

	c.logger.Info("venice imggen ok", zap.Int("size", len(imgBytes)))
	return imgBytes, nil
}

// detectMIME 从魔数判断图片类型
func detectMIME(data []byte) string {
	switch {
	case len(data) >= 8 && bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("GIF8")):
		return "image/gif"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
