package shared

import (
	"fmt"

	"github.com/tidwall/sjson"
)

const (
	fieldID      = "id"
	fieldSeq     = "seq"
	fieldPayload = "payload"
)

// Envelope is a validated protocol message: {"id": ..., "seq": ..., "payload": {...}}.
// It is a value; nothing in it refers to shared state.
type Envelope struct {
	typ     MessageType
	seq     int64
	payload Value
	body    Body
}

// NewEnvelope builds an outbound envelope, applying the same rules as Decode.
func NewEnvelope(t MessageType, seq int64, payload Value) (*Envelope, error) {
	if !t.Valid() {
		return nil, &ValidationError{Kind: KindUnknownMessageTypeError, Field: fieldID, Msg: fmt.Sprintf("unknown message type: %d", int(t))}
	}
	if seq < MinSeq {
		return nil, shapeError(fieldSeq, "invalid sequence number: %d (must be >=%d)", seq, MinSeq)
	}
	obj, err := payload.AsObject()
	if err != nil {
		return nil, shapeError(fieldPayload, "missing or invalid 'payload' field: %v", err)
	}
	body, err := ValidatePayload(t, obj)
	if err != nil {
		return nil, err
	}
	return &Envelope{typ: t, seq: seq, payload: payload, body: body}, nil
}

func (e *Envelope) ID() int { return int(e.typ) }

func (e *Envelope) Type() MessageType { return e.typ }

func (e *Envelope) Seq() int64 { return e.seq }

// Payload returns the payload exactly as received.
func (e *Envelope) Payload() Value { return e.payload }

// Body returns the typed payload; switch on its concrete type.
func (e *Envelope) Body() Body { return e.body }

func (e *Envelope) Equal(other *Envelope) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.typ == other.typ && e.seq == other.seq && e.payload.Equal(other.payload)
}

// Decode validates raw wire text and returns the envelope it carries. Checks
// run in a fixed order and the first failure is returned as a *ValidationError.
func Decode(data []byte) (*Envelope, error) {
	root, err := Parse(data)
	if err != nil {
		return nil, err
	}

	obj, err := root.AsObject()
	if err != nil {
		return nil, shapeError("", "envelope must be an object: %v", err)
	}
	for _, key := range obj.Keys() {
		if key != fieldID && key != fieldSeq && key != fieldPayload {
			return nil, shapeError(key, "unknown envelope field: %s", key)
		}
	}

	idv, ok := obj.Get(fieldID)
	if !ok {
		return nil, shapeError(fieldID, "missing 'id' field")
	}
	id, err := idv.AsInt()
	if err != nil {
		return nil, shapeError(fieldID, "invalid 'id' field %s: %v", idv.Literal(), err)
	}
	if id < MinMessageID || id > MaxMessageID {
		return nil, shapeError(fieldID, "invalid message ID: %d (must be %d-%d)", id, MinMessageID, MaxMessageID)
	}

	seqv, ok := obj.Get(fieldSeq)
	if !ok {
		return nil, shapeError(fieldSeq, "missing 'seq' field")
	}
	seq, err := seqv.AsInt()
	if err != nil {
		return nil, shapeError(fieldSeq, "invalid 'seq' field %s: %v", seqv.Literal(), err)
	}
	if seq < MinSeq {
		return nil, shapeError(fieldSeq, "invalid sequence number: %d (must be >=%d)", seq, MinSeq)
	}

	payload, ok := obj.Get(fieldPayload)
	if !ok {
		return nil, shapeError(fieldPayload, "missing 'payload' field")
	}
	payloadObj, err := payload.AsObject()
	if err != nil {
		return nil, shapeError(fieldPayload, "invalid 'payload' field: %v", err)
	}

	t, ok := MessageTypeFromID(id)
	if !ok {
		return nil, &ValidationError{Kind: KindUnknownMessageTypeError, Field: fieldID, Msg: fmt.Sprintf("unknown message type: %d", id)}
	}

	body, err := ValidatePayload(t, payloadObj)
	if err != nil {
		return nil, err
	}

	return &Envelope{typ: t, seq: seq, payload: payload, body: body}, nil
}

// Marshal renders the envelope as canonical wire text with the keys in the
// order id, seq, payload.
func Marshal(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("marshal envelope: nil envelope")
	}
	payload, err := env.payload.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	out, err := sjson.SetBytes([]byte("{}"), fieldID, env.ID())
	if err != nil {
		return nil, fmt.Errorf("marshal envelope id: %w", err)
	}
	if out, err = sjson.SetBytes(out, fieldSeq, env.seq); err != nil {
		return nil, fmt.Errorf("marshal envelope seq: %w", err)
	}
	if out, err = sjson.SetRawBytes(out, fieldPayload, payload); err != nil {
		return nil, fmt.Errorf("marshal envelope payload: %w", err)
	}
	return out, nil
}

func (e *Envelope) MarshalJSON() ([]byte, error) {
	return Marshal(e)
}
