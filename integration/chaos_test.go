package integration

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skirmish-net/skirmish/internal/config"
	"github.com/skirmish-net/skirmish/internal/shared"
)

var garbage = []string{
	``,
	`null`,
	`[1,2,3]`,
	`{"id":"2","seq":0,"payload":{}}`,
	`{"id":2,"seq":-1,"payload":{}}`,
	`{"id":2,"seq":0,"payload":[]}`,
	`{"id":2,"seq":0,"payload":{"x":1,"x":2,"y":0}}`,
	`{"id":100,"seq":0,"payload":{}}`,
	`{"id":3,"seq":0,"payload":{"target_id":1e400}}`,
	"\xff\xfe",
}

func TestFloodOfMalformedInputIsRateLimited(t *testing.T) {
	h := newServerHarness(t, func(cfg *config.ServerConfig) {
		cfg.Server.MaxViolations = 4
	})

	const peers = 8
	var wg sync.WaitGroup
	errs := make(chan error, peers)
	for i := 0; i < peers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(h.wsURL(), nil)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()

			for j := 0; j < 4; j++ {
				conn.WriteMessage(websocket.TextMessage, []byte(garbage[(i+j)%len(garbage)]))
			}

			var codes []string
			conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					break
				}
				env, err := shared.Decode(data)
				if err != nil {
					errs <- fmt.Errorf("peer %d: invalid server envelope %s", i, data)
					return
				}
				body, ok := env.Body().(shared.ErrorBody)
				if !ok {
					errs <- fmt.Errorf("peer %d: unexpected %s", i, env.Type())
					return
				}
				codes = append(codes, body.Code)
			}
			if len(codes) != 5 || codes[4] != shared.ErrorCodeRateLimited.String() {
				errs <- fmt.Errorf("peer %d: codes %v, want 4 errors then RATE_LIMITED", i, codes)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	waitFor(t, 2*time.Second, func() bool { return h.srv.Hub().ClientCount() == 0 }, "all peers disconnected")

	// A well-behaved client is unaffected.
	c := dialClient(t, h)
	c.join("grace")
}

func TestOversizedMessageDisconnects(t *testing.T) {
	h := newServerHarness(t, func(cfg *config.ServerConfig) {
		cfg.Server.MaxMessageBytes = 512
	})

	c := dialClient(t, h)
	c.join("heidi")
	big := fmt.Sprintf(`{"id":6,"seq":1,"payload":{"reason":"%0600d"}}`, 0)
	c.sendRaw(big)
	c.waitClosed(2 * time.Second)
}

func TestHeartbeatTimeout(t *testing.T) {
	h := newServerHarness(t, func(cfg *config.ServerConfig) {
		cfg.Server.HeartbeatIntervalSec = 1
		cfg.Server.HeartbeatTimeoutCount = 1
	})

	c := dialClient(t, h)
	c.join("ivan")
	// Stay silent; the server drops the peer after interval * count.
	c.waitClosed(5 * time.Second)
	waitFor(t, 2*time.Second, func() bool { return h.srv.Hub().ClientCount() == 0 }, "peer removal")
}

func TestAuditSurvivesRestart(t *testing.T) {
	h := newServerHarness(t, nil)

	c := dialClient(t, h)
	c.join("judy")
	c.sendPayload(3, `{"target_id":-1}`)
	c.expectError(shared.ErrorCodeInvalidAttack)
	peerID := c.peerID

	h.restart()

	if entries := h.violations(peerID); len(entries) != 1 || entries[0].MessageType != "ATTACK" {
		t.Fatalf("violation lost across restart: %+v", entries)
	}

	again := dialClient(t, h)
	again.join("judy")
}
