package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderRemote = "remote"
	ProviderMock   = "mock"
)

// Config contains all runtime settings for the character connector service.
type Config struct {
	BindAddr                 string        `yaml:"bind_addr"`
	ShutdownTimeout          time.Duration `yaml:"shutdown_timeout"`
	SessionInactivityTimeout time.Duration `yaml:"session_inactivity_timeout"`
	FlushInterval            time.Duration `yaml:"flush_interval"`
	MetricsNamespace         string        `yaml:"metrics_namespace"`
	AllowAnyOrigin           bool          `yaml:"allow_any_origin"`
	LogLevel                 string        `yaml:"log_level"`
	LogFormat                string        `yaml:"log_format"`

	Inworld InworldConfig `yaml:"inworld"`

	TranscriptURL       string `yaml:"transcript_url"`
	TranscriptQueueSize int    `yaml:"transcript_queue_size"`
}

type InworldConfig struct {
	Key             string        `yaml:"key"`
	Secret          string        `yaml:"secret"`
	Scene           string        `yaml:"scene"`
	Character       string        `yaml:"character"`
	PlayerName      string        `yaml:"player_name"`
	ServerID        string        `yaml:"server_id"`
	ProviderMode    string        `yaml:"provider_mode"`
	GatewayURL      string        `yaml:"gateway_url"`
	TokenURL        string        `yaml:"token_url"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxDialAttempts int           `yaml:"max_dial_attempts"`
}

func defaults() Config {
	return Config{
		BindAddr:                 ":8080",
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
		FlushInterval:            100 * time.Millisecond,
		MetricsNamespace:         "charlink",
		LogLevel:                 "info",
		LogFormat:                "console",
		Inworld: InworldConfig{
			ProviderMode:    ProviderRemote,
			DialTimeout:     5 * time.Second,
			RequestTimeout:  10 * time.Second,
			MaxDialAttempts: 3,
		},
		TranscriptQueueSize: 256,
	}
}

// Load reads .env (if present), the optional YAML file named by
// CHARLINK_CONFIG_FILE, then environment variables, later sources winning.
func Load() (Config, error) {
	envFile := envOrDefault("CHARLINK_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := defaults()
	if path := stringsTrimSpace("CHARLINK_CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LogLevel = envOrDefault("APP_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOrDefault("APP_LOG_FORMAT", cfg.LogFormat)

	in := &cfg.Inworld
	in.Key = envOrDefault("INWORLD_KEY", in.Key)
	in.Secret = envOrDefault("INWORLD_SECRET", in.Secret)
	in.Scene = envOrDefault("INWORLD_SCENE", in.Scene)
	in.Character = envOrDefault("INWORLD_CHARACTER", in.Character)
	in.PlayerName = envOrDefault("INWORLD_PLAYER_NAME", in.PlayerName)
	in.ServerID = envOrDefault("INWORLD_SERVER_ID", in.ServerID)
	in.ProviderMode = strings.ToLower(envOrDefault("INWORLD_PROVIDER_MODE", in.ProviderMode))
	in.GatewayURL = envOrDefault("INWORLD_GATEWAY_URL", in.GatewayURL)
	in.TokenURL = envOrDefault("INWORLD_TOKEN_URL", in.TokenURL)

	cfg.TranscriptURL = envOrDefault("TRANSCRIPT_URL", cfg.TranscriptURL)

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.FlushInterval, err = durationFromEnv("APP_FLUSH_INTERVAL", cfg.FlushInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	in.DialTimeout, err = durationFromEnv("INWORLD_DIAL_TIMEOUT", in.DialTimeout)
	if err != nil {
		return Config{}, err
	}
	in.RequestTimeout, err = durationFromEnv("INWORLD_REQUEST_TIMEOUT", in.RequestTimeout)
	if err != nil {
		return Config{}, err
	}
	in.MaxDialAttempts, err = intFromEnv("INWORLD_MAX_DIAL_ATTEMPTS", in.MaxDialAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.TranscriptQueueSize, err = intFromEnv("TRANSCRIPT_QUEUE_SIZE", cfg.TranscriptQueueSize)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.FlushInterval < 10*time.Millisecond {
		return fmt.Errorf("APP_FLUSH_INTERVAL must be at least 10ms")
	}
	if c.TranscriptQueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_QUEUE_SIZE must be positive")
	}
	if c.Inworld.MaxDialAttempts <= 0 {
		return fmt.Errorf("INWORLD_MAX_DIAL_ATTEMPTS must be positive")
	}
	switch c.Inworld.ProviderMode {
	case ProviderMock:
	case ProviderRemote:
		if c.Inworld.Key == "" || c.Inworld.Secret == "" {
			return fmt.Errorf("INWORLD_KEY and INWORLD_SECRET are required when INWORLD_PROVIDER_MODE=remote")
		}
		if c.Inworld.Scene == "" {
			return fmt.Errorf("INWORLD_SCENE is required when INWORLD_PROVIDER_MODE=remote")
		}
	default:
		return fmt.Errorf("INWORLD_PROVIDER_MODE must be %q or %q", ProviderRemote, ProviderMock)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
