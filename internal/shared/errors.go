package shared

import (
	"errors"
	"fmt"
)

// Sentinels for each class of validation failure. A *ValidationError matches
// the sentinel of its Kind under errors.Is.
var (
	ErrSyntax             = errors.New("syntax error")
	ErrEnvelopeShape      = errors.New("invalid envelope")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrPayloadInvalid     = errors.New("invalid payload")
)

// ErrorKind classifies a validation failure.
type ErrorKind int

const (
	KindSyntaxError ErrorKind = iota + 1
	KindEnvelopeShapeError
	KindUnknownMessageTypeError
	KindPayloadValidationError
)

func (k ErrorKind) String() string {
	switch k {
	case KindSyntaxError:
		return "syntax"
	case KindEnvelopeShapeError:
		return "envelope_shape"
	case KindUnknownMessageTypeError:
		return "unknown_message_type"
	case KindPayloadValidationError:
		return "payload"
	default:
		return fmt.Sprintf("error_kind(%d)", int(k))
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindSyntaxError:
		return ErrSyntax
	case KindEnvelopeShapeError:
		return ErrEnvelopeShape
	case KindUnknownMessageTypeError:
		return ErrUnknownMessageType
	case KindPayloadValidationError:
		return ErrPayloadInvalid
	}
	return nil
}

// ValidationError describes the first rule an inbound message violated.
type ValidationError struct {
	Kind ErrorKind
	// Type is set for payload failures only.
	Type  MessageType
	Field string
	Msg   string
	Err   error
}

func (e *ValidationError) Error() string {
	prefix := e.Kind.sentinel().Error()
	if e.Kind == KindPayloadValidationError {
		prefix = e.Type.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Msg)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Code maps the failure to the error code reported to the peer.
func (e *ValidationError) Code() ErrorCode {
	if e.Kind != KindPayloadValidationError {
		return ErrorCodeProtocolVersionMismatch
	}
	switch e.Type {
	case MessageTypeMove:
		return ErrorCodeInvalidMove
	case MessageTypeAttack:
		return ErrorCodeInvalidAttack
	case MessageTypeConnect:
		return ErrorCodeUnauthorized
	default:
		return ErrorCodeProtocolVersionMismatch
	}
}

func syntaxError(format string, args ...any) *ValidationError {
	return &ValidationError{Kind: KindSyntaxError, Msg: fmt.Sprintf(format, args...)}
}

func shapeError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: KindEnvelopeShapeError, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func payloadError(t MessageType, field, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: KindPayloadValidationError, Type: t, Field: field, Msg: fmt.Sprintf(format, args...)}
}
