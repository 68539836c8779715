package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/skirmish-net/skirmish/internal/shared"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ServerSection struct {
	Port                  int      `json:"port" env:"SKIRMISH_PORT"`
	WSPath                string   `json:"ws_path" env:"SKIRMISH_WS_PATH"`
	AllowedOrigins        []string `json:"allowed_origins" env:"SKIRMISH_ALLOWED_ORIGINS" envSeparator:","`
	HeartbeatIntervalSec  int      `json:"heartbeat_interval_sec" env:"SKIRMISH_HEARTBEAT_INTERVAL_SEC"`
	HeartbeatTimeoutCount int      `json:"heartbeat_timeout_count" env:"SKIRMISH_HEARTBEAT_TIMEOUT_COUNT"`
	MaxViolations         int      `json:"max_violations" env:"SKIRMISH_MAX_VIOLATIONS"`
	MaxMessageBytes       int64    `json:"max_message_bytes" env:"SKIRMISH_MAX_MESSAGE_BYTES"`
}

type ProtocolConfig struct {
	SchemaPath string `json:"schema_path" env:"SKIRMISH_SCHEMA_PATH"`
	RulesPath  string `json:"rules_path" env:"SKIRMISH_RULES_PATH"`
	// Version is the strict protocol version peers must announce in CONNECT.
	Version float64 `json:"version" env:"SKIRMISH_PROTOCOL_VERSION"`
	// SchemaVersion is compared permissively; a mismatch is only logged.
	SchemaVersion string `json:"schema_version" env:"SKIRMISH_SCHEMA_VERSION"`
}

type DatabaseConfig struct {
	Path          string `json:"path" env:"SKIRMISH_DB_PATH"`
	RetentionDays int    `json:"retention_days" env:"SKIRMISH_DB_RETENTION_DAYS"`
}

type LoggingConfig struct {
	Level       string `json:"level" env:"SKIRMISH_LOG_LEVEL"`
	Development bool   `json:"development" env:"SKIRMISH_LOG_DEVELOPMENT"`
}

type ServerConfig struct {
	Server   ServerSection  `json:"server"`
	Protocol ProtocolConfig `json:"protocol"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
}

const (
	defaultWSPath                = "/ws"
	defaultHeartbeatIntervalSec  = 30
	defaultHeartbeatTimeoutCount = 3
	defaultMaxViolations         = 5
	defaultMaxMessageBytes       = 65536
	defaultRetentionDays         = 30
	defaultLogLevel              = "info"
)

// LoadServerConfig reads the JSON config at path, applies SKIRMISH_*
// environment overrides, then validates and fills defaults.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ServerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env overrides: %w", err)
	}

	if err := validateServerConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("validation error: server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.WSPath == "" {
		cfg.Server.WSPath = defaultWSPath
	}
	if !strings.HasPrefix(cfg.Server.WSPath, "/") {
		return fmt.Errorf("validation error: server.ws_path must start with '/', got %q", cfg.Server.WSPath)
	}
	if cfg.Server.HeartbeatIntervalSec < 0 {
		return fmt.Errorf("validation error: server.heartbeat_interval_sec must be positive, got %d", cfg.Server.HeartbeatIntervalSec)
	}
	if cfg.Server.HeartbeatIntervalSec == 0 {
		cfg.Server.HeartbeatIntervalSec = defaultHeartbeatIntervalSec
	}
	if cfg.Server.HeartbeatTimeoutCount < 0 {
		return fmt.Errorf("validation error: server.heartbeat_timeout_count must be positive, got %d", cfg.Server.HeartbeatTimeoutCount)
	}
	if cfg.Server.HeartbeatTimeoutCount == 0 {
		cfg.Server.HeartbeatTimeoutCount = defaultHeartbeatTimeoutCount
	}
	if cfg.Server.MaxViolations <= 0 {
		cfg.Server.MaxViolations = defaultMaxViolations
	}
	if cfg.Server.MaxMessageBytes <= 0 {
		cfg.Server.MaxMessageBytes = defaultMaxMessageBytes
	}

	if cfg.Protocol.Version < 0 {
		return fmt.Errorf("validation error: protocol.version must be positive, got %v", cfg.Protocol.Version)
	}
	if cfg.Protocol.Version == 0 {
		cfg.Protocol.Version = shared.ProtocolVersion
	}
	if cfg.Protocol.SchemaVersion == "" {
		cfg.Protocol.SchemaVersion = shared.SchemaVersion
	}

	if cfg.Database.RetentionDays <= 0 {
		cfg.Database.RetentionDays = defaultRetentionDays
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if _, err := zapcore.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("validation error: logging.level %q is not a valid level", cfg.Logging.Level)
	}

	return nil
}

// NewLogger builds the process logger described by the logging section.
func (c LoggingConfig) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Level != "" {
		level, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}
