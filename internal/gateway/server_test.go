package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/skirmish-net/skirmish/internal/config"
	"github.com/skirmish-net/skirmish/internal/rules"
	"github.com/skirmish-net/skirmish/internal/schema"
	"github.com/skirmish-net/skirmish/internal/shared"
	"github.com/skirmish-net/skirmish/internal/storage"
	"go.uber.org/zap"
)

func testConfig() *config.ServerConfig {
	cfg := &config.ServerConfig{}
	cfg.Server.WSPath = "/ws"
	cfg.Server.HeartbeatIntervalSec = 30
	cfg.Server.HeartbeatTimeoutCount = 3
	cfg.Server.MaxViolations = 5
	cfg.Server.MaxMessageBytes = 65536
	cfg.Protocol.Version = shared.ProtocolVersion
	cfg.Protocol.SchemaVersion = shared.SchemaVersion
	cfg.Database.RetentionDays = 30
	return cfg
}

func TestServerHealthEndpoints(t *testing.T) {
	srv := NewServer(testConfig(), nil, nil, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		var result HealthCheckResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode %s: %v", path, err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK || result.Status != HealthHealthy {
			t.Errorf("%s: status %d %s", path, resp.StatusCode, result.Status)
		}
		if path == "/readyz" {
			if result.Components["database"].Status != StatusDisabled {
				t.Errorf("expected database disabled, got %+v", result.Components["database"])
			}
			if result.Components["schema"].Status != StatusDisabled {
				t.Errorf("expected schema disabled, got %+v", result.Components["schema"])
			}
		}
	}
}

func TestServerReadinessReportsSchemaDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message_ids.json")
	writeFile(t, path, `{"protocol_version":0.020,"schema_version":"0.1.0","messages":{"CONNECT":0,"MOVE":7}}`)
	validator := shared.NewValidator(schema.Load(path, nil), nil)

	store, err := storage.Open(filepath.Join(t.TempDir(), "ready.db"))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	srv := NewServer(testConfig(), validator, nil, zap.NewNop())
	srv.SetStorage(store)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz failed: %v", err)
	}
	defer resp.Body.Close()
	var result HealthCheckResult
	json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("drift must not fail readiness, got %d", resp.StatusCode)
	}
	if result.Components["database"].Status != StatusOK {
		t.Errorf("expected database ok, got %+v", result.Components["database"])
	}
	if !strings.Contains(result.Components["schema"].Detail, "MOVE") {
		t.Errorf("expected MOVE drift in detail, got %q", result.Components["schema"].Detail)
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	srv := NewServer(testConfig(), nil, nil, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	InitMetrics().RecordConnection("accepted")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "skirmish_connections_total") {
		t.Error("expected skirmish metrics in /metrics output")
	}
}

func TestServerStartStop(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = 0

	r := rules.Defaults()
	r.Movement.MaxRadius = 80
	srv := NewServer(cfg, nil, &r, zap.NewNop())

	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !srv.IsRunning() {
		t.Error("expected server to be running")
	}
	if err := srv.Start(); err == nil {
		t.Error("expected second Start to fail")
	}

	url := fmt.Sprintf("ws://%s/ws", srv.Addr().String())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	ack := handshake(t, conn, connectAlice)
	bounds, _ := ack.MapBounds.AsObject()
	if radius, _ := bounds.Get("max_radius"); radius.Literal() != "80" {
		t.Errorf("expected max_radius from rules, got %v", ack.MapBounds)
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	conn.Close()
	if srv.IsRunning() {
		t.Error("expected server to be stopped")
	}
	if err := srv.Stop(); err == nil {
		t.Error("expected second Stop to fail")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
