package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	GeminiAPIKey          string  `yaml:"gemini_api_key"`
	GeminiModel           string  `yaml:"gemini_model"`
	GeminiTransport       string  `yaml:"gemini_transport"` // sdk | rest
	GeminiBaseURL         string  `yaml:"gemini_base_url"`
	GeminiTemperature     float32 `yaml:"gemini_temperature"`
	GeminiMaxOutputTokens int32   `yaml:"gemini_max_output_tokens"`

	CacheTTLSeconds int    `yaml:"ai_cache_ttl_seconds"`
	CacheDriver     string `yaml:"cache_driver"` // memory | postgres | sqlite
	DatabaseURL     string `yaml:"database_url"`
	SQLitePath      string `yaml:"sqlite_path"`

	PromptDir string `yaml:"prompt_dir"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json | console

	HTTPTimeoutSeconds int `yaml:"http_timeout_seconds"`
}

func Default() *Config {
	return &Config{
		Port:                  "8000",
		GeminiModel:           "gemini-2.5-flash",
		GeminiTransport:       "sdk",
		GeminiTemperature:     0.1,
		GeminiMaxOutputTokens: 4096,
		CacheTTLSeconds:       86400,
		CacheDriver:           "memory",
		SQLitePath:            "insights-cache.db",
		LogLevel:              "info",
		LogFormat:             "json",
		HTTPTimeoutSeconds:    180,
	}
}

// Load reads CONFIG_FILE when set, then lets the environment override it. A missing API key is not an
// error here; the generation client reports it on first use.
func Load() (*Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", c.GeminiAPIKey))
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.GeminiTransport = strings.ToLower(getEnv("GEMINI_TRANSPORT", c.GeminiTransport))
	c.GeminiBaseURL = getEnv("GEMINI_BASE_URL", c.GeminiBaseURL)
	c.CacheDriver = strings.ToLower(getEnv("CACHE_DRIVER", c.CacheDriver))
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.PromptDir = getEnv("PROMPT_DIR", c.PromptDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	if v := os.Getenv("GEMINI_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("GEMINI_TEMPERATURE: %w", err)
		}
		c.GeminiTemperature = float32(f)
	}
	if v := os.Getenv("GEMINI_MAX_OUTPUT_TOKENS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("GEMINI_MAX_OUTPUT_TOKENS: %w", err)
		}
		c.GeminiMaxOutputTokens = int32(n)
	}
	var err error
	if c.CacheTTLSeconds, err = getEnvInt("AI_CACHE_TTL_SECONDS", c.CacheTTLSeconds); err != nil {
		return err
	}
	if c.HTTPTimeoutSeconds, err = getEnvInt("HTTP_TIMEOUT_SECONDS", c.HTTPTimeoutSeconds); err != nil {
		return err
	}

	switch c.GeminiTransport {
	case "sdk", "rest":
	default:
		return fmt.Errorf("GEMINI_TRANSPORT: want sdk or rest, got %q", c.GeminiTransport)
	}
	switch c.CacheDriver {
	case "memory", "postgres", "sqlite":
	default:
		return fmt.Errorf("CACHE_DRIVER: want memory, postgres or sqlite, got %q", c.CacheDriver)
	}
	return nil
}

func (c *Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSeconds) * time.Second }

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}
