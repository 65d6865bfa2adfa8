package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/paper-video/internal/domain"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, domain.DefaultEncodingParams(), cfg.EncodingParams())
	assert.Equal(t, 2, cfg.Explanation.MaxConcurrency)
	assert.Equal(t, OnFailureAbort, cfg.Explanation.OnFailure)
	assert.Equal(t, "research_explanation.mp4", cfg.Video.OutputName)
	assert.Equal(t, 0.7, cfg.Explanation.Temperature)
	assert.False(t, cfg.Explanation.ContextFromAbstract)
	assert.Equal(t, 1000, cfg.Explanation.ContextMaxRunes)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paper-video.yaml")
	yml := `
video:
  frame_rate: 30
  frame_size:
    width: 1280
    height: 720
explanation:
  on_failure: skip
  max_concurrency: 4
  initial_backoff: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Video.FrameRate)
	assert.Equal(t, 1280, cfg.Video.FrameSize.Width)
	assert.Equal(t, OnFailureSkip, cfg.Explanation.OnFailure)
	assert.Equal(t, 4, cfg.Explanation.MaxConcurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Explanation.InitialBackoff)
	// untouched sections keep defaults
	assert.Equal(t, float64(48), cfg.Captions.TitleFontSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("LLM_MODEL", "some/vision-model")
	t.Setenv("REDIS_URL", "redis://cache:6379")
	t.Setenv("DATABASE_URL", "sqlite:/tmp/runs.db")
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("PAPER_VIDEO_FONT", "/fonts/x.ttf")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Explanation.APIKey)
	assert.Equal(t, "some/vision-model", cfg.Explanation.Model)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "cache:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, "sqlite", cfg.History.Driver)
	assert.Equal(t, "/tmp/runs.db", cfg.HistoryDSN())
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "/fonts/x.ttf", cfg.Captions.FontPath)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad policy", func(c *Config) { c.Explanation.OnFailure = "retry-forever" }},
		{"zero concurrency", func(c *Config) { c.Explanation.MaxConcurrency = 0 }},
		{"zero fps", func(c *Config) { c.Video.FrameRate = 0 }},
		{"odd frame width", func(c *Config) { c.Video.FrameSize.Width = 801 }},
		{"odd frame height", func(c *Config) { c.Video.FrameSize.Height = 601 }},
		{"bad tts backend", func(c *Config) { c.Narration.Backend = "festival" }},
		{"empty locale", func(c *Config) { c.Narration.Locale = "" }},
		{"bad cache", func(c *Config) { c.Cache.Driver = "memcached" }},
		{"bad history", func(c *Config) { c.History.Driver = "mysql" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"zero caption font", func(c *Config) { c.Captions.CaptionFontSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
		})
	}
}

func TestResolveRelativePath(t *testing.T) {
	assert.Equal(t, "/etc/pv/font.ttf", ResolveRelativePath("/etc/pv/config.yaml", "font.ttf"))
	assert.Equal(t, "/abs/font.ttf", ResolveRelativePath("/etc/pv/config.yaml", "/abs/font.ttf"))
	assert.Equal(t, "font.ttf", ResolveRelativePath("", "font.ttf"))
}
