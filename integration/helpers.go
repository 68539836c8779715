package integration

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skirmish-net/skirmish/internal/config"
	"github.com/skirmish-net/skirmish/internal/gateway"
	"github.com/skirmish-net/skirmish/internal/rules"
	"github.com/skirmish-net/skirmish/internal/schema"
	"github.com/skirmish-net/skirmish/internal/shared"
	"github.com/skirmish-net/skirmish/internal/storage"
	"go.uber.org/zap"
)

type serverHarness struct {
	t      *testing.T
	cfg    *config.ServerConfig
	dbPath string
	store  *storage.Storage
	srv    *gateway.Server

	mu       sync.Mutex
	inbound  []gateway.InboundMessage
	stopOnce sync.Once
	done     chan struct{}
}

// newServerHarness starts a gateway from the example config, schema and
// rules in the repository root, on a random port and a temp database.
func newServerHarness(t *testing.T, mutate func(*config.ServerConfig)) *serverHarness {
	t.Helper()

	cfg, err := config.LoadServerConfig(filepath.Join("..", "server.config.example.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Server.Port = 0
	cfg.Database.Path = filepath.Join(t.TempDir(), "skirmish.db")
	if mutate != nil {
		mutate(cfg)
	}

	h := &serverHarness{t: t, cfg: cfg, dbPath: cfg.Database.Path}
	h.start()
	t.Cleanup(h.stop)
	return h
}

func (h *serverHarness) start() {
	h.t.Helper()

	r, err := rules.Load(filepath.Join("..", "rules.example.json"))
	if err != nil {
		h.t.Fatalf("load rules: %v", err)
	}
	artifact := schema.Load(filepath.Join("..", "message_ids.json"), zap.NewNop())
	if !artifact.Loaded() {
		h.t.Fatal("example schema did not load")
	}
	validator := shared.NewValidator(artifact, zap.NewNop())

	store, err := storage.Open(h.dbPath)
	if err != nil {
		h.t.Fatalf("open storage: %v", err)
	}

	srv := gateway.NewServer(h.cfg, validator, r, zap.NewNop())
	srv.SetStorage(store)
	if err := srv.Start(); err != nil {
		store.Close()
		h.t.Fatalf("start server: %v", err)
	}

	h.store = store
	h.srv = srv
	h.done = make(chan struct{})
	h.stopOnce = sync.Once{}
	go h.collect(srv.Hub(), h.done)
}

func (h *serverHarness) collect(hub *gateway.Hub, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-hub.Inbound():
			h.mu.Lock()
			h.inbound = append(h.inbound, msg)
			h.mu.Unlock()
		}
	}
}

func (h *serverHarness) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.srv.Stop()
		h.store.Close()
	})
}

func (h *serverHarness) restart() {
	h.t.Helper()
	h.stop()
	h.start()
}

func (h *serverHarness) wsURL() string {
	return fmt.Sprintf("ws://%s%s", h.srv.Addr().String(), h.cfg.Server.WSPath)
}

func (h *serverHarness) inboundFor(peerID string) []gateway.InboundMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []gateway.InboundMessage
	for _, msg := range h.inbound {
		if msg.PeerID == peerID {
			out = append(out, msg)
		}
	}
	return out
}

func (h *serverHarness) violations(peerID string) []storage.Violation {
	h.t.Helper()
	entries, err := storage.NewViolationLog(h.store.DB(), nil).QueryByPeer(peerID, 0)
	if err != nil {
		h.t.Fatalf("query violations: %v", err)
	}
	return entries
}

type client struct {
	t      *testing.T
	conn   *websocket.Conn
	seq    int64
	peerID string
}

func dialClient(t *testing.T, h *serverHarness) *client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

// sendPayload sends a message with the client's next sequence number.
func (c *client) sendPayload(id int, payload string) {
	c.t.Helper()
	c.sendRaw(fmt.Sprintf(`{"id":%d,"seq":%d,"payload":%s}`, id, c.seq, payload))
	c.seq++
}

func (c *client) sendRaw(msg string) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *client) read() *shared.Envelope {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	env, err := shared.Decode(data)
	if err != nil {
		c.t.Fatalf("server sent invalid envelope %s: %v", data, err)
	}
	return env
}

func (c *client) join(username string) shared.HandshakeAckBody {
	c.t.Helper()
	c.sendPayload(0, fmt.Sprintf(`{"protocol_version":0.020,"username":%q,"client_id":"client-%s","schema_version":"0.1.0"}`, username, username))
	env := c.read()
	ack, ok := env.Body().(shared.HandshakeAckBody)
	if !ok {
		c.t.Fatalf("expected HANDSHAKE_ACK, got %s", env.Type())
	}
	c.peerID, _ = ack.PlayerID.AsString()
	return ack
}

func (c *client) expectError(code shared.ErrorCode) string {
	c.t.Helper()
	env := c.read()
	body, ok := env.Body().(shared.ErrorBody)
	if !ok || body.Code != code.String() {
		c.t.Fatalf("expected ERROR %s, got %s %#v", code, env.Type(), env.Body())
	}
	return body.Reason
}

// waitClosed reads until the server closes the connection.
func (c *client) waitClosed(timeout time.Duration) {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if strings.Contains(err.Error(), "timeout") {
				c.t.Fatalf("connection still open after %s", timeout)
			}
			return
		}
	}
}

func waitFor(t *testing.T, timeout time.Duration, fn func() bool, label string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", label)
}
