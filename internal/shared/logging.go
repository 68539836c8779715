package shared

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	peerIDKey        contextKey = "peer_id"
)

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// GetCorrelationID retrieves the correlation ID from context, or generates a new one if not present
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// WithPeerID tags the context with the connection a message arrived on.
func WithPeerID(ctx context.Context, peerID string) context.Context {
	return context.WithValue(ctx, peerIDKey, peerID)
}

func GetPeerID(ctx context.Context) string {
	id, _ := ctx.Value(peerIDKey).(string)
	return id
}

func contextFields(ctx context.Context, fields []zap.Field) []zap.Field {
	fields = append(fields, zap.String("correlation_id", GetCorrelationID(ctx)))
	if peer := GetPeerID(ctx); peer != "" {
		fields = append(fields, zap.String("peer_id", peer))
	}
	return fields
}

// LogWithContext logs a message with correlation and peer IDs from context
func LogWithContext(ctx context.Context, logger *zap.Logger, msg string, fields ...zap.Field) {
	if logger == nil {
		return
	}
	logger.Info(msg, contextFields(ctx, fields)...)
}

// LogWarnWithContext logs a warning with correlation and peer IDs from context
func LogWarnWithContext(ctx context.Context, logger *zap.Logger, msg string, fields ...zap.Field) {
	if logger == nil {
		return
	}
	logger.Warn(msg, contextFields(ctx, fields)...)
}

// LogErrorWithContext logs an error with correlation and peer IDs from context
func LogErrorWithContext(ctx context.Context, logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	if logger == nil {
		return
	}
	logger.Error(msg, contextFields(ctx, append(fields, zap.Error(err)))...)
}

// ValidationFields renders a validation failure as log fields.
func ValidationFields(err error) []zap.Field {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return []zap.Field{zap.Error(err)}
	}
	fields := []zap.Field{
		zap.String("kind", ve.Kind.String()),
		zap.String("reason", ve.Error()),
	}
	if ve.Field != "" {
		fields = append(fields, zap.String("field", ve.Field))
	}
	if ve.Kind == KindPayloadValidationError {
		fields = append(fields, zap.String("message_type", ve.Type.String()))
	}
	return fields
}
