// Package config provides configuration loading for paper-video.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spherical/paper-video/internal/domain"
)

// Failure policies for figures whose explanation cannot be obtained.
const (
	OnFailureAbort = "abort"
	OnFailureSkip  = "skip"
)

// DefaultOutputName is the file name used when no output path is given.
const DefaultOutputName = "research_explanation.mp4"

// Config holds all configuration for paper-video.
type Config struct {
	Video         VideoConfig         `yaml:"video"`
	Captions      CaptionConfig       `yaml:"captions"`
	Narration     NarrationConfig     `yaml:"narration"`
	Explanation   ExplanationConfig   `yaml:"explanation"`
	Cache         CacheConfig         `yaml:"cache"`
	History       HistoryConfig       `yaml:"history"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
	WorkDir       string              `yaml:"work_dir"`
}

// VideoConfig holds encoding settings.
type VideoConfig struct {
	FrameRate   int       `yaml:"frame_rate"`
	FrameSize   FrameSize `yaml:"frame_size"`
	FFmpegPath  string    `yaml:"ffmpeg_path"`
	FFprobePath string    `yaml:"ffprobe_path"`
	Preset      string    `yaml:"preset"`
	OutputName  string    `yaml:"output_name"`
}

// FrameSize is the video frame size in pixels.
type FrameSize struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// CaptionConfig holds caption rendering settings.
type CaptionConfig struct {
	FontPath        string  `yaml:"font_path"`
	BodyFontSize    float64 `yaml:"body_font_size"`
	TitleFontSize   float64 `yaml:"title_font_size"`
	CaptionFontSize float64 `yaml:"caption_font_size"`
}

// NarrationConfig holds text-to-speech settings.
type NarrationConfig struct {
	Backend    string        `yaml:"backend"` // openai or espeak
	Locale     string        `yaml:"locale"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"-"`
	Model      string        `yaml:"model"`
	Voice      string        `yaml:"voice"`
	Timeout    time.Duration `yaml:"timeout"`
	EspeakPath string        `yaml:"espeak_path"`
}

// ExplanationConfig holds vision explanation service settings.
type ExplanationConfig struct {
	BaseURL             string        `yaml:"base_url"`
	APIKey              string        `yaml:"-"`
	Model               string        `yaml:"model"`
	Temperature         float64       `yaml:"temperature"`
	MaxTokens           int           `yaml:"max_tokens"`
	Timeout             time.Duration `yaml:"timeout"`
	Stream              bool          `yaml:"stream"`
	MaxRetries          int           `yaml:"max_retries"`
	InitialBackoff      time.Duration `yaml:"initial_backoff"`
	MaxBackoff          time.Duration `yaml:"max_backoff"`
	MaxConcurrency      int           `yaml:"max_concurrency"`
	OnFailure           string        `yaml:"on_failure"` // abort or skip
	// ContextFromAbstract sends the abstract along with each figure. Off by
	// default so the prompt holds only the figure.
	ContextFromAbstract bool          `yaml:"context_from_abstract"`
	ContextMaxRunes     int           `yaml:"context_max_runes"`
}

// CacheConfig holds explanation cache settings.
type CacheConfig struct {
	Driver string        `yaml:"driver"` // none, memory or redis
	TTL    time.Duration `yaml:"ttl"`
	Redis  RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// HistoryConfig holds run history settings.
type HistoryConfig struct {
	Driver   string `yaml:"driver"` // none, sqlite or postgres
	SQLite   string `yaml:"sqlite_path"`
	Postgres string `yaml:"postgres_dsn"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	MaxConcurrent    int           `yaml:"max_concurrent_runs"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file, loads .env, and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ConfigError("read config file", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError("parse config file", err)
		}

		cfg.Captions.FontPath = ResolveRelativePath(path, cfg.Captions.FontPath)
	}

	if err := loadDotEnv(); err != nil {
		return nil, domain.ConfigError("load .env", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDotEnv loads .env from the working directory when present.
// Variables already set in the environment win.
func loadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// DefaultConfig returns a configuration with the defaults of the original tool.
func DefaultConfig() *Config {
	return &Config{
		Video: VideoConfig{
			FrameRate: domain.DefaultFrameRate,
			FrameSize: FrameSize{
				Width:  domain.DefaultWidth,
				Height: domain.DefaultHeight,
			},
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
			Preset:      "veryfast",
			OutputName:  DefaultOutputName,
		},
		Captions: CaptionConfig{
			FontPath:        "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
			BodyFontSize:    32,
			TitleFontSize:   48,
			CaptionFontSize: 24,
		},
		Narration: NarrationConfig{
			Backend:    "openai",
			Locale:     "en",
			BaseURL:    "https://api.openai.com/v1",
			Model:      "tts-1",
			Voice:      "alloy",
			Timeout:    60 * time.Second,
			EspeakPath: "espeak-ng",
		},
		Explanation: ExplanationConfig{
			BaseURL:         "https://openrouter.ai/api/v1",
			Model:           "meta-llama/llama-3.2-90b-vision-instruct",
			Temperature:     0.7,
			MaxTokens:       1024,
			Timeout:         120 * time.Second,
			MaxRetries:      3,
			InitialBackoff:  1 * time.Second,
			MaxBackoff:      30 * time.Second,
			MaxConcurrency:  2,
			OnFailure:       OnFailureAbort,
			ContextMaxRunes: 1000,
		},
		Cache: CacheConfig{
			Driver: "memory",
			TTL:    24 * time.Hour,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		History: HistoryConfig{
			Driver: "none",
			SQLite: "paper-video.db",
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     30 * time.Minute,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			MaxUploadBytes:   64 << 20,
			MaxConcurrent:    2,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
		WorkDir: os.TempDir(),
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.EncodingParams().Validate(); err != nil {
		return domain.ConfigError("invalid video settings", err)
	}

	if c.Captions.BodyFontSize <= 0 || c.Captions.TitleFontSize <= 0 || c.Captions.CaptionFontSize <= 0 {
		return domain.ConfigError("caption font sizes must be positive", nil)
	}

	switch c.Narration.Backend {
	case "openai", "espeak":
	default:
		return domain.ConfigError(fmt.Sprintf("invalid narration backend: %s", c.Narration.Backend), nil)
	}

	if c.Narration.Locale == "" {
		return domain.ConfigError("narration locale is required", nil)
	}

	if c.Explanation.OnFailure != OnFailureAbort && c.Explanation.OnFailure != OnFailureSkip {
		return domain.ConfigError(fmt.Sprintf("invalid on_failure policy: %s", c.Explanation.OnFailure), nil)
	}

	if c.Explanation.MaxConcurrency < 1 {
		return domain.ConfigError("explanation max_concurrency must be at least 1", nil)
	}

	if c.Explanation.MaxRetries < 0 {
		return domain.ConfigError("explanation max_retries cannot be negative", nil)
	}

	switch c.Cache.Driver {
	case "none", "memory", "redis":
	default:
		return domain.ConfigError(fmt.Sprintf("invalid cache driver: %s", c.Cache.Driver), nil)
	}

	switch c.History.Driver {
	case "none", "sqlite", "postgres":
	default:
		return domain.ConfigError(fmt.Sprintf("invalid history driver: %s", c.History.Driver), nil)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return domain.ConfigError(fmt.Sprintf("invalid server port: %d", c.Server.Port), nil)
	}

	return nil
}

// EncodingParams returns the video encoding parameters.
func (c *Config) EncodingParams() domain.EncodingParams {
	return domain.EncodingParams{
		FrameRate: c.Video.FrameRate,
		Width:     c.Video.FrameSize.Width,
		Height:    c.Video.FrameSize.Height,
	}
}

// HistoryDSN returns the connection string for the configured history driver.
func (c *Config) HistoryDSN() string {
	if c.History.Driver == "postgres" {
		return c.History.Postgres
	}
	return c.History.SQLite
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Explanation.APIKey = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Explanation.Model = v
	}

	if v := os.Getenv("TTS_API_KEY"); v != "" {
		cfg.Narration.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Narration.APIKey == "" {
		cfg.Narration.APIKey = v
	}

	if v := os.Getenv("TTS_BACKEND"); v != "" {
		cfg.Narration.Backend = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.History.Driver = "sqlite"
			cfg.History.SQLite = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.History.Driver = "postgres"
			cfg.History.Postgres = v
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("PAPER_VIDEO_FONT"); v != "" {
		cfg.Captions.FontPath = v
	}

	if v := os.Getenv("FFMPEG_PATH"); v != "" {
		cfg.Video.FFmpegPath = v
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if targetPath == "" || filepath.IsAbs(targetPath) || configPath == "" {
		return targetPath
	}
	return filepath.Join(filepath.Dir(configPath), targetPath)
}
