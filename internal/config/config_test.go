package config

import (
	"os"
	"testing"
	"time"

	"github.com/shouni/go-comic-kit/pkg/pipeline"

	"github.com/stretchr/testify/assert"
)

var envKeys = []string{
	"GEMINI_API_KEY", "GEMINI_MODEL", "IMAGE_GEMINI_MODEL", "IMAGE_PROMPT_SUFFIX",
	"IMAGE_RATE_INTERVAL", "SCENE_MODE", "REDIS_ADDR", "CHECKPOINT_DIR",
	"SERVER_ADDR", "CORS_ORIGINS",
}

// clearEnv はテスト中だけ環境変数を未設定にします。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		old, ok := os.LookupEnv(key)
		os.Unsetenv(key)
		if ok {
			t.Cleanup(func() { os.Setenv(key, old) })
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("環境変数がない場合はデフォルト値になること", func(t *testing.T) {
		clearEnv(t)
		cfg := LoadConfig()

		assert.Equal(t, DefaultModel, cfg.GeminiModel)
		assert.Equal(t, DefaultImageModel, cfg.GeminiImageModel)
		assert.Equal(t, DefaultImagePromptSuffix, cfg.ImagePromptSuffix)
		assert.Equal(t, DefaultRateInterval, cfg.ImageRateInterval)
		assert.Equal(t, pipeline.SceneModeSingle, cfg.SceneMode)
		assert.Equal(t, DefaultCheckpointDir, cfg.CheckpointDir)
		assert.Equal(t, DefaultServerAddr, cfg.ServerAddr)
		assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
		assert.Empty(t, cfg.RedisAddr)
	})

	t.Run("環境変数の値が反映されること", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "key")
		t.Setenv("GEMINI_MODEL", "text-model")
		t.Setenv("IMAGE_RATE_INTERVAL", "2s")
		t.Setenv("SCENE_MODE", "FULL")
		t.Setenv("REDIS_ADDR", "localhost:6379")
		t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example ,")

		cfg := LoadConfig()
		assert.Equal(t, "key", cfg.GeminiAPIKey)
		assert.Equal(t, "text-model", cfg.GeminiModel)
		assert.Equal(t, 2*time.Second, cfg.ImageRateInterval)
		assert.Equal(t, pipeline.SceneModeFull, cfg.SceneMode)
		assert.Equal(t, "localhost:6379", cfg.RedisAddr)
		assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
	})

	t.Run("解釈できない値はデフォルト値になること", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("IMAGE_RATE_INTERVAL", "soon")
		t.Setenv("SCENE_MODE", "panorama")

		cfg := LoadConfig()
		assert.Equal(t, DefaultRateInterval, cfg.ImageRateInterval)
		assert.Equal(t, pipeline.SceneModeSingle, cfg.SceneMode)
	})
}

func TestPipelineConfig(t *testing.T) {
	cfg := &Config{SceneMode: pipeline.SceneModeFull}
	pc := cfg.PipelineConfig()
	assert.Equal(t, pipeline.SceneModeFull, pc.SceneMode)
	assert.True(t, pc.PolishDialogue)
	assert.Equal(t, pipeline.MaxAttempts, pc.MaxAttempts)

	cfg.Options.SkipPolish = true
	assert.False(t, cfg.PipelineConfig().PolishDialogue)
}
