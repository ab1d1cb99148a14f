package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landreg/transcript-worker/internal/engine"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, "transcripts", cfg.QueueName)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 300, cfg.RenderDPI)
	assert.Equal(t, 0.5, cfg.QualityThreshold)
	assert.Equal(t, 5*time.Minute, cfg.ProcessingTimeout)
	assert.True(t, cfg.TesseractEnabled)
	assert.Equal(t, "zh-TW", cfg.Language)

	require.Len(t, cfg.EngineRoster, 6)
	assert.Equal(t, engine.ProviderDeepSeek, cfg.EngineRoster[0].Provider)
	assert.Equal(t, "deepseek-chat", cfg.EngineRoster[0].Model)
	assert.Equal(t, engine.ProviderDashScope, cfg.EngineRoster[5].Provider)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("PROCESSING_TIMEOUT", "90s")
	t.Setenv("MAX_FILE_SIZE", "1048576")
	t.Setenv("TESSERACT_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.WorkerConcurrency)
	assert.Equal(t, 90*time.Second, cfg.ProcessingTimeout)
	assert.EqualValues(t, 1048576, cfg.MaxFileSize)
	assert.False(t, cfg.TesseractEnabled)
}

func TestLoadConfigTimeoutMilliseconds(t *testing.T) {
	t.Setenv("PROCESSING_TIMEOUT", "300000")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.ProcessingTimeout)
}

func TestValidateRejectsBadConcurrency(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "500")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestRosterFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	content := `engines:
  - provider: anthropic
    model: claude-3-5-sonnet-20240620
  - provider: deepseek
    model: deepseek-chat
    credential_env: MY_DEEPSEEK_KEY
    base_url: https://deepseek.internal.example.com
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("ENGINE_ROSTER_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.EngineRoster, 2)
	assert.Equal(t, engine.ProviderAnthropic, cfg.EngineRoster[0].Provider)
	assert.Equal(t, "MY_DEEPSEEK_KEY", cfg.EngineRoster[1].CredentialEnv)
	assert.Equal(t, "https://deepseek.internal.example.com", cfg.EngineRoster[1].BaseURL)
}

func TestRosterFileMissing(t *testing.T) {
	t.Setenv("ENGINE_ROSTER_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestRosterFileRejectsIncompleteEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engines:\n  - provider: openai\n"), 0o600))
	t.Setenv("ENGINE_ROSTER_FILE", path)
	_, err := LoadConfig()
	assert.Error(t, err)
}
