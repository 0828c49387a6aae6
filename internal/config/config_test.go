package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "healthguard", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "healthguard/vitals/+", cfg.MQTT.Topic)

	assert.Equal(t, 60, cfg.Agent.Interval)
	assert.Equal(t, 5, cfg.Agent.AutonomousEvery)
	assert.Equal(t, 1024, cfg.Agent.QueueCapacity)
	assert.Equal(t, 7, cfg.Agent.ContextDays)

	assert.Equal(t, 60, cfg.Ephemeral.TTL)
	assert.Equal(t, "/data", cfg.Ephemeral.DataDir)

	assert.Equal(t, 0.7, cfg.Decision.EscalateScore)
	assert.Equal(t, 0.4, cfg.Decision.MonitorScore)

	assert.Equal(t, "healthguard:patient:", cfg.Cache.AlertKeyPrefix)
	assert.Equal(t, ":alerts", cfg.Cache.AlertSuffix)
	assert.Equal(t, 300, cfg.Cache.AlertTTL)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("MQTT_BROKER", "tcp://broker:1883")
	os.Setenv("AGENT_INTERVAL", "10")
	os.Setenv("RAW_FILE_TTL", "30")
	os.Setenv("DECISION_ESCALATE_SCORE", "0.8")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	// 验证环境变量覆盖
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, 10, cfg.Agent.Interval)
	assert.Equal(t, 30, cfg.Ephemeral.TTL)
	assert.Equal(t, 0.8, cfg.Decision.EscalateScore)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 清理环境变量
	os.Clearenv()
}

func TestLoad_InvalidInterval(t *testing.T) {
	os.Clearenv()
	os.Setenv("AGENT_INTERVAL", "-1")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "AGENT_INTERVAL")

	os.Clearenv()
}

func TestGetEnvInt_Invalid(t *testing.T) {
	os.Setenv("TEST_INT_KEY", "not-a-number")
	value := getEnvInt("TEST_INT_KEY", 42)
	assert.Equal(t, 42, value)
	os.Unsetenv("TEST_INT_KEY")
}
