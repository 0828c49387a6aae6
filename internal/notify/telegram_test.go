package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/config"
)

func telegramConfig(apiBase string) *config.Config {
	cfg := &config.Config{}
	cfg.Telegram.BotToken = "test-token"
	cfg.Telegram.ChatID = "12345"
	cfg.Telegram.APIBase = apiBase
	return cfg
}

func TestSend_Unconfigured(t *testing.T) {
	cfg := &config.Config{}
	client := NewTelegramClient(cfg, zap.NewNop())

	// 未配置通道是 no-op，不报错
	assert.False(t, client.Enabled())

	result := client.Send(context.Background(), "hello")
	assert.False(t, result.OK)
	assert.Equal(t, "telegram_not_configured", result.Reason)
	assert.Equal(t, 0, result.StatusCode)

	result = client.SendAudio(context.Background(), []byte{1, 2}, "caption")
	assert.False(t, result.OK)
	assert.Equal(t, "telegram_not_configured", result.Reason)
}

func TestSend_Success(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)

	client := NewTelegramClient(telegramConfig(server.URL), zap.NewNop())
	require.True(t, client.Enabled())

	result := client.Send(context.Background(), "⚠️ WARNING\n\ntest message")

	assert.True(t, result.OK)
	assert.Equal(t, 200, result.StatusCode)
	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
}

func TestSend_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client := NewTelegramClient(telegramConfig(server.URL), zap.NewNop())
	result := client.Send(context.Background(), "test")

	assert.False(t, result.OK)
	assert.Equal(t, 401, result.StatusCode)
}

func TestSendAudio_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/sendVoice", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "12345", r.FormValue("chat_id"))
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)

	client := NewTelegramClient(telegramConfig(server.URL), zap.NewNop())
	result := client.SendAudio(context.Background(), []byte{0x01}, "alert audio")

	assert.True(t, result.OK)
}

func TestSendResult_String(t *testing.T) {
	assert.Equal(t, "200 true", SendResult{OK: true, StatusCode: 200}.String())
	assert.Equal(t, "0 false", SendResult{}.String())
}
