package storage

import (
	"database/sql"
	"time"

	"go.uber.org/zap"
)

type PeerSession struct {
	PeerID           string
	RemoteAddr       string
	Username         string
	ClientID         string
	SchemaVersion    string
	ConnectedAt      time.Time
	DisconnectedAt   *time.Time
	DisconnectReason string
}

// SessionLog records accepted handshakes and the matching disconnects.
type SessionLog struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSessionLog(db *sql.DB, logger *zap.Logger) *SessionLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionLog{db: db, logger: logger}
}

func (l *SessionLog) Opened(s PeerSession) {
	if l == nil || l.db == nil {
		return
	}
	if s.ConnectedAt.IsZero() {
		s.ConnectedAt = time.Now().UTC()
	}
	_, err := l.db.Exec(`
		INSERT INTO peer_sessions (peer_id, remote_addr, username, client_id, schema_version, connected_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			username = excluded.username,
			client_id = excluded.client_id,
			schema_version = excluded.schema_version
	`, s.PeerID, s.RemoteAddr, s.Username, s.ClientID, s.SchemaVersion, s.ConnectedAt.Format(time.RFC3339Nano))
	if err != nil {
		l.logger.Warn("failed to record session", zap.String("peer_id", s.PeerID), zap.Error(err))
	}
}

func (l *SessionLog) Closed(peerID, reason string) {
	if l == nil || l.db == nil {
		return
	}
	_, err := l.db.Exec(`UPDATE peer_sessions SET disconnected_at = ?, disconnect_reason = ?
		WHERE peer_id = ? AND disconnected_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339Nano), reason, peerID)
	if err != nil {
		l.logger.Warn("failed to close session", zap.String("peer_id", peerID), zap.Error(err))
	}
}

func (l *SessionLog) Get(peerID string) (*PeerSession, error) {
	if l == nil || l.db == nil {
		return nil, sql.ErrNoRows
	}
	var (
		s            PeerSession
		connected    string
		disconnected sql.NullString
	)
	err := l.db.QueryRow(`SELECT peer_id, remote_addr, username, client_id, schema_version, connected_at, disconnected_at, disconnect_reason
		FROM peer_sessions WHERE peer_id = ?`, peerID).
		Scan(&s.PeerID, &s.RemoteAddr, &s.Username, &s.ClientID, &s.SchemaVersion, &connected, &disconnected, &s.DisconnectReason)
	if err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339Nano, connected); err == nil {
		s.ConnectedAt = t
	}
	if disconnected.Valid {
		if t, err := time.Parse(time.RFC3339Nano, disconnected.String); err == nil {
			s.DisconnectedAt = &t
		}
	}
	return &s, nil
}
