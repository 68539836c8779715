package shared

import (
	"fmt"
	"strconv"
)

// Protocol versions compiled into this build. ProtocolVersion is strict: a
// peer announcing any other value is refused. SchemaVersion is permissive:
// a mismatch is only logged.
const (
	ProtocolVersion = 0.020
	SchemaVersion   = "0.1.0"
)

// Envelope bounds.
const (
	MinMessageID = 0
	MaxMessageID = 99
	MinSeq       = 0
)

// Payload bounds.
const (
	MinUsernameLength = 1
	MaxUsernameLength = 32
	MaxMoveRadius     = 100.0
	MaxMoveAxis       = 100.0
)

// MessageType is the numeric tag carried in the envelope id field.
type MessageType int

const (
	MessageTypeConnect MessageType = iota
	MessageTypeHandshakeAck
	MessageTypeMove
	MessageTypeAttack
	MessageTypeSnapshot
	MessageTypeError
	MessageTypeDisconnect

	messageTypeCount
)

var messageTypeNames = [messageTypeCount]string{
	MessageTypeConnect:      "CONNECT",
	MessageTypeHandshakeAck: "HANDSHAKE_ACK",
	MessageTypeMove:         "MOVE",
	MessageTypeAttack:       "ATTACK",
	MessageTypeSnapshot:     "SNAPSHOT",
	MessageTypeError:        "ERROR",
	MessageTypeDisconnect:   "DISCONNECT",
}

// MessageTypes lists every defined message type in id order.
func MessageTypes() []MessageType {
	types := make([]MessageType, 0, messageTypeCount)
	for t := MessageType(0); t < messageTypeCount; t++ {
		types = append(types, t)
	}
	return types
}

// MessageTypeFromID maps an envelope id to its message type.
func MessageTypeFromID(id int64) (MessageType, bool) {
	if id < 0 || id >= int64(messageTypeCount) {
		return 0, false
	}
	return MessageType(id), true
}

func (t MessageType) Valid() bool {
	return t >= 0 && t < messageTypeCount
}

func (t MessageType) String() string {
	if !t.Valid() {
		return "MessageType(" + strconv.Itoa(int(t)) + ")"
	}
	return messageTypeNames[t]
}

// ParseMessageType resolves a message type by its wire name, e.g. "MOVE".
func ParseMessageType(name string) (MessageType, error) {
	for t, n := range messageTypeNames {
		if n == name {
			return MessageType(t), nil
		}
	}
	return 0, fmt.Errorf("unknown message type name %q", name)
}

// ErrorCode is carried in ERROR payloads sent back to a peer.
type ErrorCode int

const (
	ErrorCodeProtocolVersionMismatch ErrorCode = 1001
	ErrorCodeUnauthorized            ErrorCode = 1002
	ErrorCodeInvalidMove             ErrorCode = 2001
	ErrorCodeInvalidAttack           ErrorCode = 2002
	ErrorCodeRateLimited             ErrorCode = 2003
	ErrorCodeInternalServerError     ErrorCode = 9999
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCodeProtocolVersionMismatch: "PROTOCOL_VERSION_MISMATCH",
	ErrorCodeUnauthorized:            "UNAUTHORIZED",
	ErrorCodeInvalidMove:             "INVALID_MOVE",
	ErrorCodeInvalidAttack:           "INVALID_ATTACK",
	ErrorCodeRateLimited:             "RATE_LIMITED",
	ErrorCodeInternalServerError:     "INTERNAL_SERVER_ERROR",
}

// ErrorCodes lists every defined error code in ascending order.
func ErrorCodes() []ErrorCode {
	return []ErrorCode{
		ErrorCodeProtocolVersionMismatch,
		ErrorCodeUnauthorized,
		ErrorCodeInvalidMove,
		ErrorCodeInvalidAttack,
		ErrorCodeRateLimited,
		ErrorCodeInternalServerError,
	}
}

func (c ErrorCode) Valid() bool {
	_, ok := errorCodeNames[c]
	return ok
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "ErrorCode(" + strconv.Itoa(int(c)) + ")"
}

// ParseErrorCode accepts either the symbolic name ("INVALID_MOVE") or the
// decimal code ("2001").
func ParseErrorCode(s string) (ErrorCode, error) {
	for c, name := range errorCodeNames {
		if name == s {
			return c, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && ErrorCode(n).Valid() {
		return ErrorCode(n), nil
	}
	return 0, fmt.Errorf("unknown error code %q", s)
}
