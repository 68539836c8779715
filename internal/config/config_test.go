package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skirmish-net/skirmish/internal/shared"
	"go.uber.org/zap/zapcore"
)

func TestLoadServerConfigExample(t *testing.T) {
	examplePath := filepath.Join("..", "..", "server.config.example.json")
	cfg, err := LoadServerConfig(examplePath)
	if err != nil {
		t.Fatalf("failed to load example server config: %v", err)
	}
	if cfg.Server.Port != 7350 {
		t.Errorf("expected port 7350, got %d", cfg.Server.Port)
	}
	if cfg.Protocol.SchemaPath == "" {
		t.Error("expected schema_path to be set")
	}
	if cfg.Protocol.Version != shared.ProtocolVersion {
		t.Errorf("expected protocol version %v, got %v", shared.ProtocolVersion, cfg.Protocol.Version)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig(writeConfig(t, `{"server":{"port":9000}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.WSPath != "/ws" {
		t.Errorf("expected default ws path, got %q", cfg.Server.WSPath)
	}
	if cfg.Server.HeartbeatIntervalSec != defaultHeartbeatIntervalSec {
		t.Errorf("expected default heartbeat interval, got %d", cfg.Server.HeartbeatIntervalSec)
	}
	if cfg.Server.MaxViolations != defaultMaxViolations {
		t.Errorf("expected default max violations, got %d", cfg.Server.MaxViolations)
	}
	if cfg.Server.MaxMessageBytes != defaultMaxMessageBytes {
		t.Errorf("expected default max message bytes, got %d", cfg.Server.MaxMessageBytes)
	}
	if cfg.Protocol.SchemaVersion != shared.SchemaVersion {
		t.Errorf("expected default schema version, got %q", cfg.Protocol.SchemaVersion)
	}
	if cfg.Database.Path != "" {
		t.Errorf("database must stay disabled unless configured, got %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %q", cfg.Logging.Level)
	}
}

func TestServerConfigEnvOverrides(t *testing.T) {
	t.Setenv("SKIRMISH_PORT", "9100")
	t.Setenv("SKIRMISH_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("SKIRMISH_DB_PATH", "/tmp/override.db")
	t.Setenv("SKIRMISH_PROTOCOL_VERSION", "0.030")

	cfg, err := LoadServerConfig(writeConfig(t, `{"server":{"port":9000},"database":{"path":"./file.db"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("expected env port 9100, got %d", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("expected env db path, got %q", cfg.Database.Path)
	}
	if cfg.Protocol.Version != 0.030 {
		t.Errorf("expected env protocol version, got %v", cfg.Protocol.Version)
	}
}

func TestServerConfigEnvOverrideInvalid(t *testing.T) {
	t.Setenv("SKIRMISH_PORT", "not-a-port")

	_, err := LoadServerConfig(writeConfig(t, `{"server":{"port":9000}}`))
	if err == nil {
		t.Fatal("expected error for invalid env override, got nil")
	}
	if !strings.Contains(err.Error(), "failed to parse env overrides") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestServerConfigValidationInvalidPort(t *testing.T) {
	cfg := &ServerConfig{}
	cfg.Server.Port = 0

	err := validateServerConfig(cfg)
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
	if err.Error() != "validation error: server.port must be between 1 and 65535, got 0" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestServerConfigValidationWSPath(t *testing.T) {
	cfg := &ServerConfig{}
	cfg.Server.Port = 7350
	cfg.Server.WSPath = "ws"

	err := validateServerConfig(cfg)
	if err == nil {
		t.Fatal("expected error for relative ws path, got nil")
	}
	if err.Error() != `validation error: server.ws_path must start with '/', got "ws"` {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestServerConfigValidationNegativeHeartbeat(t *testing.T) {
	cfg := &ServerConfig{}
	cfg.Server.Port = 7350
	cfg.Server.HeartbeatIntervalSec = -1

	err := validateServerConfig(cfg)
	if err == nil {
		t.Fatal("expected error for negative heartbeat interval, got nil")
	}
	if err.Error() != "validation error: server.heartbeat_interval_sec must be positive, got -1" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestServerConfigValidationLogLevel(t *testing.T) {
	cfg := &ServerConfig{}
	cfg.Server.Port = 7350
	cfg.Logging.Level = "loud"

	err := validateServerConfig(cfg)
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if err.Error() != `validation error: logging.level "loud" is not a valid level` {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadServerConfigMissingFile(t *testing.T) {
	_, err := LoadServerConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoggingConfigNewLogger(t *testing.T) {
	logger, err := LoggingConfig{Level: "debug", Development: true}.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug level to be enabled")
	}

	if _, err := (LoggingConfig{Level: "nope"}).NewLogger(); err == nil {
		t.Error("expected error for invalid level")
	}
}
