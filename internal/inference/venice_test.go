package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/config"
	"github.com/karthiksai109/healthguard/internal/models"
)

func newVeniceClient(serverURL string) *VeniceClient {
	cfg := &config.Config{}
	cfg.Venice.BaseURL = serverURL
	cfg.Venice.APIKey = "test-key"
	cfg.Venice.STTModel = "whisper-large-v3"
	cfg.Venice.VisionModel = "qwen3-vl-235b-a22b"
	cfg.Venice.AudioModel = "tts-kokoro"
	cfg.Venice.ImageModel = "fluently-xl"

	return NewVeniceClient(cfg, zap.NewNop())
}

func TestTranscribe_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-large-v3", r.FormValue("model"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": "my head hurts badly"})
	}))
	t.Cleanup(server.Close)

	client := newVeniceClient(server.URL)
	text, err := client.Transcribe(context.Background(), []byte("fake-audio"))

	require.NoError(t, err)
	assert.Equal(t, "my head hurts badly", text)
}

func TestTranscribe_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client := newVeniceClient(server.URL)
	text, err := client.Transcribe(context.Background(), []byte("fake-audio"))

	assert.Error(t, err)
	assert.Empty(t, text)
}

func TestAnalyzeImage_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// 图片以 data URL 形式内嵌，不落第三方磁盘
		raw, _ := json.Marshal(req["messages"])
		assert.Contains(t, string(raw), "data:image/")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{
					"content": `{"image_type":"wound","observations":"shallow laceration","severity":"mild","confidence":0.85}`,
				}},
			},
		})
	}))
	t.Cleanup(server.Close)

	client := newVeniceClient(server.URL)
	analysis := client.AnalyzeImage(context.Background(), []byte("raw-image"))

	assert.Equal(t, "wound", analysis.ImageType)
	assert.Equal(t, 0.85, analysis.Confidence)
	assert.False(t, analysis.Degraded)
}

func TestAnalyzeImage_UnavailableDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newVeniceClient(server.URL)
	analysis := client.AnalyzeImage(context.Background(), []byte("raw-image"))

	assert.True(t, analysis.Degraded)
	assert.Equal(t, models.DegradedUnavailable, analysis.DegradedCause)
	assert.Equal(t, "vision analysis failed", analysis.Observations)
}

func TestSynthesize_Success(t *testing.T) {
	audio := []byte{0x01, 0x02, 0x03}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		w.Write(audio)
	}))
	t.Cleanup(server.Close)

	client := newVeniceClient(server.URL)
	got := client.Synthesize(context.Background(), "CRITICAL: SpO2 85% ≤ 90.")

	assert.Equal(t, audio, got)
}

func TestSynthesize_FailureReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := newVeniceClient(server.URL)
	assert.Nil(t, client.Synthesize(context.Background(), "alert text"))
}

func TestGenerateImage_Success(t *testing.T) {
	imgBytes := []byte("png-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{
				{"b64_json": base64.StdEncoding.EncodeToString(imgBytes)},
			},
		})
	}))
	t.Cleanup(server.Close)

	client := newVeniceClient(server.URL)
	got, err := client.GenerateImage(context.Background(), "weekly vitals stable")

	require.NoError(t, err)
	assert.Equal(t, imgBytes, got)
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "image/png", detectMIME([]byte("\x89PNG\r\n\x1a\nrest")))
	assert.Equal(t, "image/gif", detectMIME([]byte("GIF89a")))
	assert.Equal(t, "image/webp", detectMIME([]byte("RIFF\x00\x00\x00\x00WEBPdata")))
	assert.Equal(t, "image/jpeg", detectMIME([]byte{0xFF, 0xD8, 0xFF}))
}
