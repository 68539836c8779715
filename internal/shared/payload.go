package shared

import (
	"errors"
	"math"
	"unicode/utf8"
)

// Body is the typed view of a validated payload. It is implemented only by
// the *Body types in this package, one per MessageType.
type Body interface {
	MessageType() MessageType
	isBody()
}

type ConnectBody struct {
	// ProtocolVersion is carried as sent; only its presence is validated here.
	ProtocolVersion Value
	Username        string
	ClientID        string
	// SchemaVersion is optional and empty when absent or not a string.
	SchemaVersion string
}

type HandshakeAckBody struct {
	PlayerID        Value
	ProtocolVersion Value
	SchemaVersion   Value
	MapBounds       Value
	Tick            Value
	ExistingPlayers Value
}

type MoveBody struct {
	X, Y float64
}

type AttackBody struct {
	TargetID int64
}

type SnapshotBody struct {
	Tick    Value
	Players []Value
}

type ErrorBody struct {
	Code   string
	Reason string
}

type DisconnectBody struct {
	Reason string
}

func (ConnectBody) MessageType() MessageType      { return MessageTypeConnect }
func (HandshakeAckBody) MessageType() MessageType { return MessageTypeHandshakeAck }
func (MoveBody) MessageType() MessageType         { return MessageTypeMove }
func (AttackBody) MessageType() MessageType       { return MessageTypeAttack }
func (SnapshotBody) MessageType() MessageType     { return MessageTypeSnapshot }
func (ErrorBody) MessageType() MessageType        { return MessageTypeError }
func (DisconnectBody) MessageType() MessageType   { return MessageTypeDisconnect }

func (ConnectBody) isBody()      {}
func (HandshakeAckBody) isBody() {}
func (MoveBody) isBody()         {}
func (AttackBody) isBody()       {}
func (SnapshotBody) isBody()     {}
func (ErrorBody) isBody()        {}
func (DisconnectBody) isBody()   {}

type payloadValidator func(Object) (Body, *ValidationError)

// payloadValidators is indexed by MessageType. TestEveryMessageTypeHasValidator
// keeps it in step with the enumeration.
var payloadValidators = [messageTypeCount]payloadValidator{
	MessageTypeConnect:      validateConnect,
	MessageTypeHandshakeAck: validateHandshakeAck,
	MessageTypeMove:         validateMove,
	MessageTypeAttack:       validateAttack,
	MessageTypeSnapshot:     validateSnapshot,
	MessageTypeError:        validateError,
	MessageTypeDisconnect:   validateDisconnect,
}

// ValidatePayload runs the payload rules of a single message type.
func ValidatePayload(t MessageType, payload Object) (Body, error) {
	if !t.Valid() || payloadValidators[t] == nil {
		return nil, &ValidationError{Kind: KindUnknownMessageTypeError, Field: "id", Msg: "no payload validator for " + t.String()}
	}
	body, verr := payloadValidators[t](payload)
	if verr != nil {
		return nil, verr
	}
	return body, nil
}

func requireField(t MessageType, payload Object, field string) (Value, *ValidationError) {
	v, ok := payload.Get(field)
	if !ok {
		return Value{}, payloadError(t, field, "missing '%s'", field)
	}
	return v, nil
}

func requireString(t MessageType, payload Object, field string) (string, *ValidationError) {
	v, verr := requireField(t, payload, field)
	if verr != nil {
		return "", verr
	}
	s, err := v.AsString()
	if err != nil {
		return "", payloadError(t, field, "invalid '%s': %v", field, err)
	}
	return s, nil
}

func requireNumber(t MessageType, payload Object, field string) (Value, *ValidationError) {
	v, verr := requireField(t, payload, field)
	if verr != nil {
		return Value{}, verr
	}
	if v.Kind() != KindNumber {
		return Value{}, payloadError(t, field, "invalid '%s': %v", field, v.mismatch(KindNumber))
	}
	return v, nil
}

func validateConnect(p Object) (Body, *ValidationError) {
	const t = MessageTypeConnect

	version, verr := requireField(t, p, "protocol_version")
	if verr != nil {
		return nil, verr
	}
	username, verr := requireString(t, p, "username")
	if verr != nil {
		return nil, verr
	}
	clientID, verr := requireString(t, p, "client_id")
	if verr != nil {
		return nil, verr
	}

	if n := utf8.RuneCountInString(username); n < MinUsernameLength || n > MaxUsernameLength {
		return nil, payloadError(t, "username", "username must be %d-%d chars (got %d)", MinUsernameLength, MaxUsernameLength, n)
	}

	body := ConnectBody{ProtocolVersion: version, Username: username, ClientID: clientID}
	if sv, ok := p.Get("schema_version"); ok {
		body.SchemaVersion, _ = sv.AsString()
	}
	return body, nil
}

var handshakeAckFields = []string{"player_id", "protocol_version", "schema_version", "map_bounds", "tick", "existing_players"}

func validateHandshakeAck(p Object) (Body, *ValidationError) {
	values := make([]Value, len(handshakeAckFields))
	for i, field := range handshakeAckFields {
		v, verr := requireField(MessageTypeHandshakeAck, p, field)
		if verr != nil {
			return nil, verr
		}
		values[i] = v
	}
	return HandshakeAckBody{
		PlayerID:        values[0],
		ProtocolVersion: values[1],
		SchemaVersion:   values[2],
		MapBounds:       values[3],
		Tick:            values[4],
		ExistingPlayers: values[5],
	}, nil
}

// validateMove applies the radius gate and the per-axis gate independently.
func validateMove(p Object) (Body, *ValidationError) {
	const t = MessageTypeMove

	xv, verr := requireNumber(t, p, "x")
	if verr != nil {
		return nil, verr
	}
	yv, verr := requireNumber(t, p, "y")
	if verr != nil {
		return nil, verr
	}
	x, _ := xv.AsNumber()
	y, _ := yv.AsNumber()

	if d := math.Sqrt(x*x + y*y); d > MaxMoveRadius {
		return nil, payloadError(t, "x", "position (%s, %s) exceeds max_radius %.1f (distance=%.2f)", xv.Literal(), yv.Literal(), MaxMoveRadius, d)
	}
	if x < -MaxMoveAxis || x > MaxMoveAxis {
		return nil, payloadError(t, "x", "x=%s out of range [%.0f, %.0f]", xv.Literal(), -MaxMoveAxis, MaxMoveAxis)
	}
	if y < -MaxMoveAxis || y > MaxMoveAxis {
		return nil, payloadError(t, "y", "y=%s out of range [%.0f, %.0f]", yv.Literal(), -MaxMoveAxis, MaxMoveAxis)
	}
	return MoveBody{X: x, Y: y}, nil
}

func validateAttack(p Object) (Body, *ValidationError) {
	const t = MessageTypeAttack

	v, verr := requireNumber(t, p, "target_id")
	if verr != nil {
		return nil, verr
	}
	id, err := v.AsInt()
	if err != nil {
		if errors.Is(err, ErrNotInteger) {
			return nil, payloadError(t, "target_id", "target_id must be a positive integer (got %s)", v.Literal())
		}
		return nil, payloadError(t, "target_id", "invalid 'target_id': %v", err)
	}
	if id <= 0 {
		return nil, payloadError(t, "target_id", "target_id must be positive (got %d)", id)
	}
	return AttackBody{TargetID: id}, nil
}

func validateSnapshot(p Object) (Body, *ValidationError) {
	const t = MessageTypeSnapshot

	tick, verr := requireField(t, p, "tick")
	if verr != nil {
		return nil, verr
	}
	pv, verr := requireField(t, p, "players")
	if verr != nil {
		return nil, verr
	}
	players, err := pv.AsArray()
	if err != nil {
		return nil, payloadError(t, "players", "invalid 'players': %v", err)
	}
	return SnapshotBody{Tick: tick, Players: players}, nil
}

func validateError(p Object) (Body, *ValidationError) {
	code, verr := requireString(MessageTypeError, p, "code")
	if verr != nil {
		return nil, verr
	}
	reason, verr := requireString(MessageTypeError, p, "reason")
	if verr != nil {
		return nil, verr
	}
	return ErrorBody{Code: code, Reason: reason}, nil
}

func validateDisconnect(p Object) (Body, *ValidationError) {
	reason, verr := requireString(MessageTypeDisconnect, p, "reason")
	if verr != nil {
		return nil, verr
	}
	return DisconnectBody{Reason: reason}, nil
}
