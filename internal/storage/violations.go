package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/skirmish-net/skirmish/internal/shared"
	"go.uber.org/zap"
)

type Violation struct {
	ID          string
	PeerID      string
	RemoteAddr  string
	Kind        string
	MessageType string
	Field       string
	Code        shared.ErrorCode
	Reason      string
	Seq         *int64
	CreatedAt   time.Time
}

// ViolationFromError describes a rejected inbound message. Errors that are
// not validation errors are recorded as syntax violations.
func ViolationFromError(peerID, remoteAddr string, err error) Violation {
	v := Violation{
		PeerID:     peerID,
		RemoteAddr: remoteAddr,
		Kind:       shared.KindSyntaxError.String(),
		Code:       shared.ErrorCodeProtocolVersionMismatch,
		Reason:     err.Error(),
	}
	var ve *shared.ValidationError
	if errors.As(err, &ve) {
		v.Kind = ve.Kind.String()
		v.Field = ve.Field
		v.Code = ve.Code()
		if ve.Kind == shared.KindPayloadValidationError {
			v.MessageType = ve.Type.String()
		}
	}
	return v
}

// ViolationLog is a write-mostly audit of rejected messages. A nil
// database turns every call into a no-op.
type ViolationLog struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewViolationLog(db *sql.DB, logger *zap.Logger) *ViolationLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViolationLog{db: db, logger: logger}
}

// Record stores v. Failures are logged, never returned: losing an audit row
// must not affect the connection that produced it.
func (l *ViolationLog) Record(v Violation) {
	if l == nil || l.db == nil {
		return
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	var seq sql.NullInt64
	if v.Seq != nil {
		seq = sql.NullInt64{Int64: *v.Seq, Valid: true}
	}

	_, err := l.db.Exec(`
		INSERT INTO protocol_violations (id, peer_id, remote_addr, kind, message_type, field, code, reason, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.PeerID, v.RemoteAddr, v.Kind, v.MessageType, v.Field, int(v.Code), v.Reason, seq,
		v.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		l.logger.Warn("failed to write violation entry",
			zap.String("peer_id", v.PeerID),
			zap.String("kind", v.Kind),
			zap.Error(err),
		)
	}
}

func (l *ViolationLog) QueryByPeer(peerID string, limit int) ([]Violation, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	return l.query(`SELECT id, peer_id, remote_addr, kind, message_type, field, code, reason, seq, created_at
		FROM protocol_violations WHERE peer_id = ? ORDER BY created_at DESC LIMIT ?`, peerID, limit)
}

func (l *ViolationLog) QueryByKind(kind string, limit int) ([]Violation, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	return l.query(`SELECT id, peer_id, remote_addr, kind, message_type, field, code, reason, seq, created_at
		FROM protocol_violations WHERE kind = ? ORDER BY created_at DESC LIMIT ?`, kind, limit)
}

func (l *ViolationLog) PurgeOlderThan(retentionDays int) (int64, error) {
	if l == nil || l.db == nil {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339Nano)
	result, err := l.db.Exec("DELETE FROM protocol_violations WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *ViolationLog) query(q string, args ...any) ([]Violation, error) {
	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Violation
	for rows.Next() {
		var (
			v    Violation
			code int
			seq  sql.NullInt64
			ts   string
		)
		if err := rows.Scan(&v.ID, &v.PeerID, &v.RemoteAddr, &v.Kind, &v.MessageType, &v.Field, &code, &v.Reason, &seq, &ts); err != nil {
			return nil, err
		}
		v.Code = shared.ErrorCode(code)
		if seq.Valid {
			s := seq.Int64
			v.Seq = &s
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			v.CreatedAt = t
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
