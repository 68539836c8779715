// Package gateway accepts websocket peers, validates every inbound frame and
// answers protocol violations with ERROR envelopes.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skirmish-net/skirmish/internal/shared"
	"github.com/skirmish-net/skirmish/internal/storage"
	"go.uber.org/zap"
)

const (
	EventPeerConnected   = "peer.connected"
	EventPeerJoined      = "peer.joined"
	EventPeerLeft        = "peer.left"
	EventPeerRateLimited = "peer.rate_limited"
	EventPeerTimeout     = "peer.timeout"
)

type HubEvent struct {
	Type   string
	PeerID string
	Time   time.Time
}

// InboundMessage is a validated envelope from a peer that completed the
// CONNECT handshake.
type InboundMessage struct {
	PeerID     string
	Envelope   *shared.Envelope
	ReceivedAt time.Time
}

type HubOptions struct {
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	HeartbeatTimeout  int
	MaxViolations     int
	MaxMessageBytes   int64
	// ProtocolVersion is matched strictly against CONNECT.protocol_version.
	ProtocolVersion float64
	// SchemaVersion is compared permissively against CONNECT.schema_version.
	SchemaVersion string
	// MaxRadius is the map bound advertised in HANDSHAKE_ACK and enforced on
	// MOVE. It is capped at shared.MaxMoveRadius.
	MaxRadius float64
}

type player struct {
	PeerID   string
	Username string
}

// Hub owns every peer connection. Registration, removal and broadcast are
// serialised through Run.
type Hub struct {
	clients    map[string]*PeerConn
	players    map[string]player
	register   chan *PeerConn
	unregister chan *PeerConn
	broadcast  chan []byte
	events     chan HubEvent
	inbound    chan InboundMessage

	opts      HubOptions
	validator *shared.Validator

	violations *storage.ViolationLog
	sessions   *storage.SessionLog
	metrics    *Metrics

	upgrader websocket.Upgrader
	logger   *zap.Logger
	mu       sync.RWMutex
	ctx      context.Context
}

func NewHub(ctx context.Context, validator *shared.Validator, opts HubOptions, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 3
	}
	if opts.MaxViolations <= 0 {
		opts.MaxViolations = 5
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 65536
	}
	if opts.ProtocolVersion == 0 {
		opts.ProtocolVersion = shared.ProtocolVersion
	}
	if opts.SchemaVersion == "" {
		opts.SchemaVersion = shared.SchemaVersion
	}
	if opts.MaxRadius <= 0 || opts.MaxRadius > shared.MaxMoveRadius {
		opts.MaxRadius = shared.MaxMoveRadius
	}
	if validator == nil {
		validator = shared.NewValidator(nil, logger)
	}

	h := &Hub{
		clients:    make(map[string]*PeerConn),
		players:    make(map[string]player),
		register:   make(chan *PeerConn),
		unregister: make(chan *PeerConn),
		broadcast:  make(chan []byte, 256),
		events:     make(chan HubEvent, 64),
		inbound:    make(chan InboundMessage, 1024),
		opts:       opts,
		validator:  validator,
		logger:     logger,
		ctx:        ctx,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
	}
	return h
}

func (h *Hub) Run() {
	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for id, conn := range h.clients {
				conn.conn.Close()
				delete(h.clients, id)
				delete(h.players, id)
			}
			h.mu.Unlock()
			h.metrics.SetActiveConnections(0)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn.peerID] = conn
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetActiveConnections(count)
			h.logger.Info("peer registered",
				zap.String("peer_id", conn.peerID),
				zap.String("remote_addr", conn.remoteAddr),
			)
			h.emit(HubEvent{Type: EventPeerConnected, PeerID: conn.peerID, Time: time.Now()})

		case conn := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[conn.peerID]
			if ok {
				delete(h.clients, conn.peerID)
				delete(h.players, conn.peerID)
				close(conn.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			if ok {
				reason := conn.reason()
				h.metrics.SetActiveConnections(count)
				h.metrics.RecordDisconnect(reason)
				h.logger.Info("peer unregistered",
					zap.String("peer_id", conn.peerID),
					zap.String("reason", reason),
				)
				h.emit(HubEvent{Type: EventPeerLeft, PeerID: conn.peerID, Time: time.Now()})
			}

		case msg := <-h.broadcast:
			h.mu.Lock()
			for id, conn := range h.clients {
				if _, joined := h.players[id]; !joined {
					continue
				}
				select {
				case conn.send <- msg:
				default:
					h.logger.Warn("dropping slow peer", zap.String("peer_id", id))
					conn.setReason("slow consumer")
					conn.conn.Close()
				}
			}
			h.mu.Unlock()

		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

// ServeWS upgrades the request and starts the peer's read and write loops.
// Peers authenticate with their first message (CONNECT), not at upgrade time.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.RecordConnection("rejected")
		h.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	peer, err := newPeerConn(h, conn, uuid.NewString(), r.RemoteAddr)
	if err != nil {
		h.metrics.RecordConnection("rejected")
		h.logger.Error("failed to set up peer", zap.Error(err))
		conn.Close()
		return
	}

	select {
	case h.register <- peer:
	case <-h.ctx.Done():
		conn.Close()
		return
	}
	h.metrics.RecordConnection("accepted")

	go peer.writePump()
	go peer.readPump()
}

// Broadcast queues env for every peer that completed the handshake.
func (h *Hub) Broadcast(env *shared.Envelope) error {
	data, err := shared.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

func (h *Hub) Events() <-chan HubEvent {
	return h.events
}

// Inbound delivers validated envelopes for gameplay code. When the queue is
// full new messages are dropped and counted.
func (h *Hub) Inbound() <-chan InboundMessage {
	return h.inbound
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) PlayerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.players)
}

func (h *Hub) SetAllowedOrigins(origins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.AllowedOrigins = origins
}

func (h *Hub) SetViolationLog(l *storage.ViolationLog) {
	h.violations = l
}

func (h *Hub) SetSessionLog(l *storage.SessionLog) {
	h.sessions = l
}

func (h *Hub) SetMetrics(m *Metrics) {
	h.metrics = m
}

// join adds the peer to the player list and returns everyone already in it.
func (h *Hub) join(peerID, username string) []player {
	h.mu.Lock()
	defer h.mu.Unlock()

	existing := make([]player, 0, len(h.players))
	for id, p := range h.players {
		if id != peerID {
			existing = append(existing, p)
		}
	}
	h.players[peerID] = player{PeerID: peerID, Username: username}
	return existing
}

func (h *Hub) publish(msg InboundMessage) {
	select {
	case h.inbound <- msg:
	default:
		h.metrics.RecordInboundDropped()
		h.logger.Warn("inbound queue full, dropping message",
			zap.String("peer_id", msg.PeerID),
			zap.String("type", msg.Envelope.Type().String()),
		)
	}
}

func (h *Hub) emit(ev HubEvent) {
	select {
	case h.events <- ev:
	default:
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	h.mu.RLock()
	allowed := h.opts.AllowedOrigins
	h.mu.RUnlock()

	if len(allowed) == 0 {
		return true
	}
	// Native game clients send no Origin header.
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, pattern := range allowed {
		if MatchOrigin(origin, pattern) {
			return true
		}
	}
	h.logger.Warn("rejected connection from unauthorized origin", zap.String("origin", origin))
	return false
}

func (h *Hub) checkHeartbeats() {
	timeout := h.opts.HeartbeatInterval * time.Duration(h.opts.HeartbeatTimeout)
	now := time.Now()

	h.mu.RLock()
	var timedOut []*PeerConn
	for _, conn := range h.clients {
		if now.Sub(conn.lastSeenAt()) > timeout {
			timedOut = append(timedOut, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range timedOut {
		h.logger.Warn("peer heartbeat timeout", zap.String("peer_id", conn.peerID))
		h.emit(HubEvent{Type: EventPeerTimeout, PeerID: conn.peerID, Time: now})
		conn.setReason("heartbeat timeout")
		conn.conn.Close()
	}
}
