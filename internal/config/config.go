package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config 监测服务配置
type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Database string
		SSLMode  string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	MQTT struct {
		Enabled  bool
		Broker   string
		ClientID string
		Username string
		Password string
		Topic    string // 体征读数订阅主题
		QoS      byte
	}

	// Venice 多模态推理（STT / Vision / TTS / ImgGen）
	Venice struct {
		APIKey      string
		BaseURL     string
		VisionModel string
		AudioModel  string
		STTModel    string
		ImageModel  string
	}

	// AkashML 结构化推理（分析、SOAP、巡检决策）
	AkashML struct {
		APIKey       string
		BaseURL      string
		PrimaryModel string
	}

	Telegram struct {
		BotToken string
		ChatID   string
		APIBase  string
	}

	Agent struct {
		Interval        int // tick 间隔（秒），默认 60
		AutonomousEvery int // 每 K 个 tick 执行一次自主巡检，默认 5
		QueueCapacity   int // 事件队列容量
		ContextDays     int // 上下文加载天数
	}

	Ephemeral struct {
		DataDir string
		TTL     int // 原始文件最长存活（秒），默认 60
	}

	// 融合决策边界（策略常量，三种模态共用）
	Decision struct {
		EscalateScore float64 // 默认 0.7
		MonitorScore  float64 // 默认 0.4
	}

	Cache struct {
		AlertKeyPrefix string
		AlertSuffix    string
		AlertTTL       int // 秒
		StateKeyPrefix string
	}

	Encryption struct {
		Passphrase string
		Salt       string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置（带默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "healthguard")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.Enabled = cfg.MQTT.Broker != ""
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "healthguard")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_VITALS_TOPIC", "healthguard/vitals/+")
	cfg.MQTT.QoS = 1

	cfg.Venice.APIKey = getEnv("VENICE_API_KEY", "")
	cfg.Venice.BaseURL = getEnv("VENICE_BASE_URL", "https://api.venice.ai/api/v1")
	cfg.Venice.VisionModel = getEnv("VENICE_VISION_MODEL", "qwen3-vl-235b-a22b")
	cfg.Venice.AudioModel = getEnv("VENICE_AUDIO_MODEL", "tts-kokoro")
	cfg.Venice.STTModel = getEnv("VENICE_STT_MODEL", "whisper-large-v3")
	cfg.Venice.ImageModel = getEnv("VENICE_IMAGE_MODEL", "fluently-xl")

	cfg.AkashML.APIKey = getEnv("AKASHML_API_KEY", "")
	cfg.AkashML.BaseURL = getEnv("AKASHML_BASE_URL", "https://api.akashml.com/v1")
	cfg.AkashML.PrimaryModel = getEnv("AKASHML_PRIMARY_MODEL", "Meta-Llama-3-3-70B-Instruct")

	cfg.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.Telegram.ChatID = getEnv("TELEGRAM_CHAT_ID", "")
	cfg.Telegram.APIBase = getEnv("TELEGRAM_API_BASE", "https://api.telegram.org")

	cfg.Agent.Interval = getEnvInt("AGENT_INTERVAL", 60)
	cfg.Agent.AutonomousEvery = getEnvInt("AGENT_AUTONOMOUS_EVERY", 5)
	cfg.Agent.QueueCapacity = getEnvInt("AGENT_QUEUE_CAPACITY", 1024)
	cfg.Agent.ContextDays = getEnvInt("AGENT_CONTEXT_DAYS", 7)

	cfg.Ephemeral.DataDir = getEnv("DATA_DIR", "/data")
	cfg.Ephemeral.TTL = getEnvInt("RAW_FILE_TTL", 60)

	cfg.Decision.EscalateScore = getEnvFloat("DECISION_ESCALATE_SCORE", 0.7)
	cfg.Decision.MonitorScore = getEnvFloat("DECISION_MONITOR_SCORE", 0.4)

	cfg.Cache.AlertKeyPrefix = getEnv("CACHE_ALERT_PREFIX", "healthguard:patient:")
	cfg.Cache.AlertSuffix = ":alerts"
	cfg.Cache.AlertTTL = getEnvInt("CACHE_ALERT_TTL", 300)
	cfg.Cache.StateKeyPrefix = getEnv("CACHE_STATE_PREFIX", "healthguard:loop:")

	cfg.Encryption.Passphrase = getEnv("ENCRYPTION_PASSPHRASE", "healthguard_patient_key")
	cfg.Encryption.Salt = getEnv("ENCRYPTION_SALT", "healthguard_default_salt_change_me")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if cfg.Agent.Interval <= 0 {
		return nil, fmt.Errorf("AGENT_INTERVAL must be positive, got %d", cfg.Agent.Interval)
	}
	if cfg.Agent.AutonomousEvery <= 0 {
		return nil, fmt.Errorf("AGENT_AUTONOMOUS_EVERY must be positive, got %d", cfg.Agent.AutonomousEvery)
	}
	if cfg.Ephemeral.TTL <= 0 {
		return nil, fmt.Errorf("RAW_FILE_TTL must be positive, got %d", cfg.Ephemeral.TTL)
	}

	return cfg, nil
}

// GetDSN 构建数据库连接字符串
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
