package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skirmish-net/skirmish/internal/schema"
	"github.com/skirmish-net/skirmish/internal/shared"
	"github.com/skirmish-net/skirmish/internal/storage"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second // 90% of pongWait
)

// Violation kind for session-rule failures on otherwise valid envelopes.
const violationKindSession = "session"

// PeerConn is one websocket peer. readPump is the only writer of the
// handshake, sequence and violation state.
type PeerConn struct {
	hub        *Hub
	conn       *websocket.Conn
	peerID     string
	remoteAddr string
	send       chan []byte
	ctx        context.Context

	seq        *seqTracker
	outSeq     int64
	violations int
	handshaken bool

	mu          sync.Mutex
	lastSeen    time.Time
	closeReason string
}

func newPeerConn(hub *Hub, conn *websocket.Conn, peerID, remoteAddr string) (*PeerConn, error) {
	tracker, err := newSeqTracker(defaultSeqWindow)
	if err != nil {
		return nil, err
	}
	return &PeerConn{
		hub:        hub,
		conn:       conn,
		peerID:     peerID,
		remoteAddr: remoteAddr,
		send:       make(chan []byte, 256),
		ctx:        shared.WithCorrelationID(shared.WithPeerID(hub.ctx, peerID), uuid.NewString()),
		seq:        tracker,
		lastSeen:   time.Now(),
	}, nil
}

func (c *PeerConn) readPump() {
	defer func() {
		c.setReason("peer closed")
		c.hub.sessions.Closed(c.peerID, c.reason())
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
			c.conn.Close()
		}
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				c.setReason("message too large")
				shared.LogWarnWithContext(c.ctx, c.hub.logger, "message exceeds read limit",
					zap.Int64("limit", c.hub.opts.MaxMessageBytes))
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure):
				shared.LogWarnWithContext(c.ctx, c.hub.logger, "unexpected close", zap.Error(err))
			}
			return
		}
		c.touch()

		start := time.Now()
		env, err := c.hub.validator.Validate(message)
		c.hub.metrics.RecordValidationDuration(time.Since(start).Seconds())
		if err != nil {
			if !c.reject(err) {
				c.setReason("rate limited")
				return
			}
			continue
		}
		c.hub.metrics.RecordEnvelope(env.Type().String(), "accepted")

		if keep := c.handleEnvelope(env); !keep {
			return
		}
	}
}

// handleEnvelope applies the session rules to a validated envelope and
// reports whether the connection stays open.
func (c *PeerConn) handleEnvelope(env *shared.Envelope) bool {
	c.trackSeq(env.Seq())

	switch body := env.Body().(type) {
	case shared.ConnectBody:
		return c.handleConnect(env, body)
	case shared.DisconnectBody:
		shared.LogWithContext(c.ctx, c.hub.logger, "peer requested disconnect", zap.String("reason", body.Reason))
		c.setReason("client disconnect")
		return false
	}

	if !c.handshaken {
		return c.violation(c.sessionViolation(env, "", shared.ErrorCodeUnauthorized, "first message must be CONNECT"))
	}

	// The validator caps MOVE at the compiled radius; the map advertised in
	// HANDSHAKE_ACK may be smaller.
	if move, ok := env.Body().(shared.MoveBody); ok {
		if d := math.Hypot(move.X, move.Y); d > c.hub.opts.MaxRadius {
			reason := fmt.Sprintf("position (%g, %g) exceeds map max_radius %.1f (distance=%.2f)", move.X, move.Y, c.hub.opts.MaxRadius, d)
			return c.violation(c.sessionViolation(env, "x", shared.ErrorCodeInvalidMove, reason))
		}
	}

	c.hub.publish(InboundMessage{PeerID: c.peerID, Envelope: env, ReceivedAt: time.Now()})
	return true
}

func (c *PeerConn) handleConnect(env *shared.Envelope, body shared.ConnectBody) bool {
	if c.handshaken {
		return c.violation(c.sessionViolation(env, "", shared.ErrorCodeUnauthorized, "already connected"))
	}

	if err := shared.CheckProtocolVersion(body.ProtocolVersion, c.hub.opts.ProtocolVersion); err != nil {
		shared.LogWarnWithContext(c.ctx, c.hub.logger, "protocol version mismatch",
			zap.String("announced", body.ProtocolVersion.Literal()),
			zap.String("expected", shared.FormatProtocolVersion(c.hub.opts.ProtocolVersion)),
		)
		v := c.sessionViolation(env, "protocol_version", shared.ErrorCodeProtocolVersionMismatch, err.Error())
		c.hub.violations.Record(v)
		c.sendError(v.Code, v.Reason)
		c.setReason("protocol version mismatch")
		return false
	}

	if body.SchemaVersion != "" {
		c.compareSchemaVersion(body.SchemaVersion)
	}

	c.handshaken = true
	existing := c.hub.join(c.peerID, body.Username)
	c.hub.sessions.Opened(storage.PeerSession{
		PeerID:        c.peerID,
		RemoteAddr:    c.remoteAddr,
		Username:      body.Username,
		ClientID:      body.ClientID,
		SchemaVersion: body.SchemaVersion,
	})
	shared.LogWithContext(c.ctx, c.hub.logger, "peer joined",
		zap.String("username", body.Username),
		zap.String("client_id", body.ClientID),
	)

	c.sendEnvelope(shared.MessageTypeHandshakeAck, c.handshakeAck(existing))
	c.hub.emit(HubEvent{Type: EventPeerJoined, PeerID: c.peerID, Time: time.Now()})
	c.hub.publish(InboundMessage{PeerID: c.peerID, Envelope: env, ReceivedAt: time.Now()})
	return true
}

// compareSchemaVersion never rejects; schema versions only inform.
func (c *PeerConn) compareSchemaVersion(remote string) {
	match, err := schema.CompareSchemaVersion(c.hub.opts.SchemaVersion, remote)
	fields := []zap.Field{
		zap.String("local", c.hub.opts.SchemaVersion),
		zap.String("remote", remote),
		zap.String("match", string(match)),
	}
	switch {
	case err != nil:
		shared.LogWarnWithContext(c.ctx, c.hub.logger, "unparseable schema version", append(fields, zap.Error(err))...)
	case match == schema.VersionMismatch:
		shared.LogWarnWithContext(c.ctx, c.hub.logger, "schema version mismatch", fields...)
	case match == schema.VersionCompatible:
		shared.LogWithContext(c.ctx, c.hub.logger, "schema version differs but is compatible", fields...)
	}
}

func (c *PeerConn) handshakeAck(existing []player) shared.Value {
	players := make([]shared.Value, 0, len(existing))
	for _, p := range existing {
		players = append(players, shared.NewObject(
			shared.Member{Key: "player_id", Value: shared.String(p.PeerID)},
			shared.Member{Key: "username", Value: shared.String(p.Username)},
		))
	}
	return shared.NewObject(
		shared.Member{Key: "player_id", Value: shared.String(c.peerID)},
		shared.Member{Key: "protocol_version", Value: shared.Number(c.hub.opts.ProtocolVersion)},
		shared.Member{Key: "schema_version", Value: shared.String(c.hub.opts.SchemaVersion)},
		shared.Member{Key: "map_bounds", Value: shared.NewObject(
			shared.Member{Key: "max_radius", Value: shared.Number(c.hub.opts.MaxRadius)},
		)},
		shared.Member{Key: "tick", Value: shared.Int(0)},
		shared.Member{Key: "existing_players", Value: shared.Array(players...)},
	)
}

// reject answers a frame that failed validation. It reports whether the
// connection stays open.
func (c *PeerConn) reject(err error) bool {
	v := storage.ViolationFromError(c.peerID, c.remoteAddr, err)
	c.hub.metrics.RecordValidationFailure(v.Kind)
	label := v.MessageType
	if label == "" {
		label = "unknown"
	}
	c.hub.metrics.RecordEnvelope(label, "rejected")
	shared.LogWarnWithContext(c.ctx, c.hub.logger, "envelope rejected", shared.ValidationFields(err)...)
	return c.violation(v)
}

func (c *PeerConn) sessionViolation(env *shared.Envelope, field string, code shared.ErrorCode, reason string) storage.Violation {
	seq := env.Seq()
	return storage.Violation{
		PeerID:      c.peerID,
		RemoteAddr:  c.remoteAddr,
		Kind:        violationKindSession,
		MessageType: env.Type().String(),
		Field:       field,
		Code:        code,
		Reason:      reason,
		Seq:         &seq,
	}
}

// violation records v, answers with an ERROR envelope and enforces the
// per-connection violation limit.
func (c *PeerConn) violation(v storage.Violation) bool {
	c.hub.violations.Record(v)
	c.sendError(v.Code, v.Reason)

	c.violations++
	if c.violations < c.hub.opts.MaxViolations {
		return true
	}

	shared.LogWarnWithContext(c.ctx, c.hub.logger, "peer exceeded violation limit",
		zap.Int("violations", c.violations),
		zap.Int("max_violations", c.hub.opts.MaxViolations),
	)
	c.sendError(shared.ErrorCodeRateLimited, fmt.Sprintf("too many protocol violations (%d)", c.violations))
	c.hub.emit(HubEvent{Type: EventPeerRateLimited, PeerID: c.peerID, Time: time.Now()})
	c.setReason("rate limited")
	return false
}

func (c *PeerConn) trackSeq(seq int64) {
	anomaly, expected := c.seq.observe(seq)
	if anomaly == seqInOrder {
		return
	}
	c.hub.metrics.RecordSeqAnomaly(anomaly.String())
	shared.LogWarnWithContext(c.ctx, c.hub.logger, "sequence anomaly",
		zap.String("kind", anomaly.String()),
		zap.Int64("seq", seq),
		zap.Int64("expected", expected),
	)
}

func (c *PeerConn) sendError(code shared.ErrorCode, reason string) {
	c.sendEnvelope(shared.MessageTypeError, shared.NewObject(
		shared.Member{Key: "code", Value: shared.String(code.String())},
		shared.Member{Key: "reason", Value: shared.String(reason)},
	))
}

func (c *PeerConn) sendEnvelope(t shared.MessageType, payload shared.Value) {
	env, err := shared.NewEnvelope(t, c.outSeq, payload)
	if err != nil {
		shared.LogErrorWithContext(c.ctx, c.hub.logger, "failed to build outbound envelope", err,
			zap.String("type", t.String()))
		return
	}
	data, err := shared.Marshal(env)
	if err != nil {
		shared.LogErrorWithContext(c.ctx, c.hub.logger, "failed to marshal outbound envelope", err,
			zap.String("type", t.String()))
		return
	}
	c.outSeq++

	select {
	case c.send <- data:
	default:
		shared.LogWarnWithContext(c.ctx, c.hub.logger, "send buffer full, dropping message",
			zap.String("type", t.String()))
	}
}

func (c *PeerConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.reason()))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.hub.ctx.Done():
			return
		}
	}
}

func (c *PeerConn) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *PeerConn) lastSeenAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// setReason keeps the first close reason given.
func (c *PeerConn) setReason(reason string) {
	c.mu.Lock()
	if c.closeReason == "" {
		c.closeReason = reason
	}
	c.mu.Unlock()
}

func (c *PeerConn) reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}
