package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken   string        `yaml:"discord_token"`
	ClientID       string        `yaml:"client_id"`
	DataPath       string        `yaml:"data_path"`
	LogLevel       string        `yaml:"log_level"`
	PersonaName    string        `yaml:"persona_name"`
	WarnTTLMillis  int           `yaml:"warn_ttl_ms"`
	AuditChannelID string        `yaml:"audit_channel"`
	Cleanup        CleanupConfig `yaml:"cleanup"`
	Health         HealthConfig  `yaml:"health"`
}

type CleanupConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func DefaultConfig() Config {
	return Config{
		DataPath:      "data.json",
		LogLevel:      "info",
		PersonaName:   "Bloz",
		WarnTTLMillis: 6000,
		Cleanup:       CleanupConfig{DefaultLimit: 50, MaxLimit: 100},
		Health:        HealthConfig{Enabled: false, Addr: ":8080"},
	}
}

// WarnTTL is how long a warning reply stays up before it is retracted.
func (c Config) WarnTTL() time.Duration {
	if c.WarnTTLMillis <= 0 {
		return 6 * time.Second
	}
	return time.Duration(c.WarnTTLMillis) * time.Millisecond
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}

	if strings.TrimSpace(cfg.PersonaName) == "" {
		cfg.PersonaName = "Bloz"
	}
	if cfg.Cleanup.MaxLimit <= 0 || cfg.Cleanup.MaxLimit > 100 {
		cfg.Cleanup.MaxLimit = 100
	}
	if cfg.Cleanup.DefaultLimit <= 0 || cfg.Cleanup.DefaultLimit > cfg.Cleanup.MaxLimit {
		cfg.Cleanup.DefaultLimit = cfg.Cleanup.MaxLimit
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.ClientID = envString("DISCORD_CLIENT_ID", cfg.ClientID)
	cfg.DataPath = envString("DATA_PATH", cfg.DataPath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.PersonaName = envString("BOT_PERSONA_NAME", cfg.PersonaName)
	cfg.WarnTTLMillis = envInt("WARN_TTL_MS", cfg.WarnTTLMillis)
	cfg.AuditChannelID = envString("AUDIT_CHANNEL_ID", cfg.AuditChannelID)
	cfg.Cleanup.DefaultLimit = envInt("CLEANUP_DEFAULT_LIMIT", cfg.Cleanup.DefaultLimit)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
