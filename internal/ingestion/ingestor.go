package ingestion

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/models"
)

// Ingestor 摄取层
// 接收患者数据（照片 / 语音 / 文字 / 体征），分配临时会话标识
// 图片在落盘前剥离全部元数据（GPS、设备信息、时间戳）
type Ingestor struct {
	dataDir  string
	ttl      time.Duration
	registry *Registry
	logger   *zap.Logger
}

// NewIngestor 创建摄取层
func NewIngestor(dataDir string, ttl time.Duration, registry *Registry, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		dataDir:  dataDir,
		ttl:      ttl,
		registry: registry,
		logger:   logger,
	}
}

// GenerateSessionID 生成临时会话标识
// 推理侧只见此标识，永远不见患者姓名或病历号
func GenerateSessionID() string {
	return "session_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// StripEXIF 剥离图片全部元数据
// 通过解码后重新编码实现，元数据段不参与像素编码
// 解码失败时原样返回（不是图片或格式不识别）
func StripEXIF(imageBytes []byte, logger *zap.Logger) []byte {
	img, format, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		if logger != nil {
			logger.Warn("exif strip failed", zap.Error(err))
		}
		return imageBytes
	}

	clean := image.NewRGBA(img.Bounds())
	draw.Draw(clean, clean.Bounds(), img, img.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, clean, &jpeg.Options{Quality: 95})
	default:
		err = png.Encode(&buf, clean)
	}
	if err != nil {
		if logger != nil {
			logger.Warn("exif strip failed", zap.Error(err))
		}
		return imageBytes
	}

	if logger != nil {
		logger.Info("exif stripped",
			zap.Int("original_size", len(imageBytes)),
			zap.Int("clean_size", buf.Len()))
	}
	return buf.Bytes()
}

// IngestPhoto 照片摄取：剥离元数据 → 临时落盘 → 登记 TTL
func (g *Ingestor) IngestPhoto(imageBytes []byte, patientID string) (models.IngestedItem, error) {
	sessionID := GenerateSessionID()
	clean := StripEXIF(imageBytes, g.logger)

	path, err := g.saveEphemeral(clean, ".png")
	if err != nil {
		return models.IngestedItem{}, err
	}

	g.logger.Info("photo ingested",
		zap.String("session_id", sessionID),
		zap.Int("size", len(clean)))

	return models.IngestedItem{
		SessionID: sessionID,
		InputType: models.InputPhoto,
		PatientID: patientID,
		FilePath:  path,
		RawBytes:  clean,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IngestVoice 语音摄取：临时落盘 → 登记 TTL → 交给 STT
func (g *Ingestor) IngestVoice(audioBytes []byte, patientID string) (models.IngestedItem, error) {
	sessionID := GenerateSessionID()

	path, err := g.saveEphemeral(audioBytes, ".wav")
	if err != nil {
		return models.IngestedItem{}, err
	}

	g.logger.Info("voice ingested",
		zap.String("session_id", sessionID),
		zap.Int("size", len(audioBytes)))

	return models.IngestedItem{
		SessionID: sessionID,
		InputType: models.InputVoice,
		PatientID: patientID,
		FilePath:  path,
		RawBytes:  audioBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IngestText 文字症状记录，无需落盘
func (g *Ingestor) IngestText(text, patientID string) models.IngestedItem {
	sessionID := GenerateSessionID()

	g.logger.Info("text ingested",
		zap.String("session_id", sessionID),
		zap.Int("chars", len(text)))

	return models.IngestedItem{
		SessionID: sessionID,
		InputType: models.InputText,
		PatientID: patientID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// IngestVital 结构化体征录入，无需落盘
func (g *Ingestor) IngestVital(patientID, metricType string, value float64, unit string) models.IngestedItem {
	sessionID := GenerateSessionID()

	g.logger.Info("vital ingested",
		zap.String("session_id", sessionID),
		zap.String("metric", metricType),
		zap.Float64("value", value))

	return models.IngestedItem{
		SessionID: sessionID,
		InputType: models.InputVital,
		PatientID: patientID,
		Text:      fmt.Sprintf("%s: %v %s", metricType, value, unit),
		CreatedAt: time.Now().UTC(),
	}
}

// saveEphemeral 落盘并登记自动删除
func (g *Ingestor) saveEphemeral(data []byte, suffix string) (string, error) {
	dir := filepath.Join(g.dataDir, "ephemeral")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create ephemeral dir: %w", err)
	}

	name := fmt.Sprintf("%s_%d%s",
		strings.ReplaceAll(uuid.New().String(), "-", "")[:8],
		time.Now().Unix(), suffix)
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write ephemeral file: %w", err)
	}
	g.registry.Register(path, g.ttl)

	g.logger.Info("ephemeral saved",
		zap.String("path", name),
		zap.Duration("ttl", g.ttl),
		zap.Int("size", len(data)))
	return path, nil
}
