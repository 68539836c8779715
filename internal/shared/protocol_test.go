package shared

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

var validPayloads = map[MessageType]string{
	MessageTypeConnect:      `{"protocol_version":0.020,"username":"alice","client_id":"client-1"}`,
	MessageTypeHandshakeAck: `{"player_id":7,"protocol_version":0.020,"schema_version":"0.1.0","map_bounds":{"max_radius":100},"tick":0,"existing_players":[]}`,
	MessageTypeMove:         `{"x":60,"y":60}`,
	MessageTypeAttack:       `{"target_id":1}`,
	MessageTypeSnapshot:     `{"tick":42,"players":[{"id":1,"x":0,"y":0}]}`,
	MessageTypeError:        `{"code":"INVALID_MOVE","reason":"out of bounds"}`,
	MessageTypeDisconnect:   `{"reason":"bye"}`,
}

func envelopeText(id int, seq int64, payload string) []byte {
	return []byte(fmt.Sprintf(`{"id":%d,"seq":%d,"payload":%s}`, id, seq, payload))
}

func mustDecode(t *testing.T, data []byte) *Envelope {
	t.Helper()
	env, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode(%s) failed: %v", data, err)
	}
	return env
}

func requireKind(t *testing.T, err error, kind ErrorKind) *ValidationError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if ve.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, ve.Kind, err)
	}
	return ve
}

func TestDecodeAcceptsEveryMessageType(t *testing.T) {
	for _, mt := range MessageTypes() {
		payload, ok := validPayloads[mt]
		if !ok {
			t.Fatalf("no fixture for %s", mt)
		}
		env := mustDecode(t, envelopeText(int(mt), 1, payload))
		if env.Type() != mt {
			t.Errorf("Type mismatch: got %s, want %s", env.Type(), mt)
		}
		if env.ID() != int(mt) {
			t.Errorf("ID mismatch: got %d, want %d", env.ID(), int(mt))
		}
		if env.Body() == nil || env.Body().MessageType() != mt {
			t.Errorf("Body for %s has wrong type: %#v", mt, env.Body())
		}
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	for _, mt := range MessageTypes() {
		orig := mustDecode(t, envelopeText(int(mt), 99, validPayloads[mt]))

		data, err := Marshal(orig)
		if err != nil {
			t.Fatalf("Marshal failed for %s: %v", mt, err)
		}
		again := mustDecode(t, data)
		if !again.Equal(orig) {
			t.Errorf("round trip mismatch for %s: %s", mt, data)
		}
	}
}

func TestEnvelopeRoundTripOverflowingNumber(t *testing.T) {
	text := `{"id":4,"seq":1,"payload":{"tick":1e400,"players":[]}}`
	orig := mustDecode(t, []byte(text))

	data, err := Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != text {
		t.Errorf("overflowing literal not preserved: got %s, want %s", data, text)
	}
	again := mustDecode(t, data)
	if !again.Equal(orig) {
		t.Errorf("round trip mismatch: %s", data)
	}

	other := mustDecode(t, []byte(`{"id":4,"seq":1,"payload":{"tick":2e400,"players":[]}}`))
	if other.Equal(orig) {
		t.Error("distinct overflowing literals compared equal")
	}
}

func TestMarshalCanonicalForm(t *testing.T) {
	env := mustDecode(t, []byte(`{ "payload" : { "y": 60, "x": 60 }, "seq": 7, "id": 2 }`))

	data, err := Marshal(env)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"id":2,"seq":7,"payload":{"y":60,"x":60}}`
	if string(data) != want {
		t.Errorf("canonical form mismatch: got %s, want %s", data, want)
	}
}

func TestMarshalPreservesPayloadAsIs(t *testing.T) {
	payload := `{"x":1.50,"y":-2e1,"note":"café","extra":[true,null,{}]}`
	env := mustDecode(t, envelopeText(2, 3, payload))

	data, err := Marshal(env)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"x":1.50,"y":-2e1`) {
		t.Errorf("number literals not preserved: %s", data)
	}
	if !strings.Contains(string(data), `"extra":[true,null,{}]`) {
		t.Errorf("extra payload field not preserved: %s", data)
	}
}

func TestDecodeMessageIDBounds(t *testing.T) {
	tests := []struct {
		id   int
		kind ErrorKind
	}{
		{-1, KindEnvelopeShapeError},
		{100, KindEnvelopeShapeError},
		{7, KindUnknownMessageTypeError},
		{50, KindUnknownMessageTypeError},
		{99, KindUnknownMessageTypeError},
	}
	for _, tt := range tests {
		_, err := Decode(envelopeText(tt.id, 1, `{}`))
		ve := requireKind(t, err, tt.kind)
		if ve.Field != "id" {
			t.Errorf("id %d: expected field id, got %q", tt.id, ve.Field)
		}
	}
}

func TestDecodeUnknownMessageTypeSentinel(t *testing.T) {
	_, err := Decode(envelopeText(7, 1, `{}`))
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("expected ErrUnknownMessageType, got %v", err)
	}
	if errors.Is(err, ErrEnvelopeShape) {
		t.Errorf("unknown type must not match ErrEnvelopeShape")
	}
}

func TestDecodeSequenceBounds(t *testing.T) {
	_, err := Decode(envelopeText(2, -1, `{"x":0,"y":0}`))
	requireKind(t, err, KindEnvelopeShapeError)

	for _, seq := range []int64{0, 2147483647} {
		env := mustDecode(t, envelopeText(2, seq, `{"x":0,"y":0}`))
		if env.Seq() != seq {
			t.Errorf("Seq mismatch: got %d, want %d", env.Seq(), seq)
		}
	}
}

func TestDecodeRejectsExtraTopLevelKey(t *testing.T) {
	_, err := Decode([]byte(`{"id":2,"seq":1,"payload":{},"extra":true}`))
	ve := requireKind(t, err, KindEnvelopeShapeError)
	if ve.Field != "extra" {
		t.Errorf("expected offending field extra, got %q", ve.Field)
	}

	// The closed-schema check runs before payload dispatch.
	_, err = Decode([]byte(`{"id":2,"seq":1,"payload":{"x":1,"y":1},"extra":true}`))
	requireKind(t, err, KindEnvelopeShapeError)
}

func TestDecodeEnvelopeShape(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"root array", `[1,2,3]`, ""},
		{"root string", `"hello"`, ""},
		{"missing id", `{"seq":1,"payload":{}}`, "id"},
		{"string id", `{"id":"2","seq":1,"payload":{}}`, "id"},
		{"fractional id", `{"id":2.5,"seq":1,"payload":{}}`, "id"},
		{"missing seq", `{"id":2,"payload":{}}`, "seq"},
		{"null seq", `{"id":2,"seq":null,"payload":{}}`, "seq"},
		{"fractional seq", `{"id":2,"seq":1.5,"payload":{}}`, "seq"},
		{"missing payload", `{"id":2,"seq":1}`, "payload"},
		{"array payload", `{"id":2,"seq":1,"payload":[]}`, "payload"},
		{"null payload", `{"id":2,"seq":1,"payload":null}`, "payload"},
		{"scalar payload", `{"id":2,"seq":1,"payload":5}`, "payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			ve := requireKind(t, err, KindEnvelopeShapeError)
			if ve.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ve.Field)
			}
			if !errors.Is(err, ErrEnvelopeShape) {
				t.Errorf("expected ErrEnvelopeShape, got %v", err)
			}
		})
	}
}

func TestDecodeIntegralFloatID(t *testing.T) {
	env := mustDecode(t, []byte(`{"id":2.0,"seq":1e1,"payload":{"x":0,"y":0}}`))
	if env.Type() != MessageTypeMove || env.Seq() != 10 {
		t.Errorf("unexpected envelope id=%d seq=%d", env.ID(), env.Seq())
	}
}

func TestDecodeSyntaxError(t *testing.T) {
	inputs := []string{
		``,
		`{`,
		`{"id":2,"seq":1,"payload":{}`,
		`{"id":2,"seq":1,"payload":{},}`,
		`not json`,
		`{"id":2,"id":3,"seq":1,"payload":{}}`,
		"{\"id\":6,\"seq\":1,\"payload\":{\"reason\":\"a\xffb\"}}",
	}
	for _, in := range inputs {
		_, err := Decode([]byte(in))
		requireKind(t, err, KindSyntaxError)
		if !errors.Is(err, ErrSyntax) {
			t.Errorf("input %q: expected ErrSyntax, got %v", in, err)
		}
	}
}

func TestDecodeShortCircuitOrder(t *testing.T) {
	// Bad id and bad seq: id is reported.
	_, err := Decode([]byte(`{"id":100,"seq":-1,"payload":{}}`))
	ve := requireKind(t, err, KindEnvelopeShapeError)
	if ve.Field != "id" {
		t.Errorf("expected id failure first, got %q", ve.Field)
	}

	// Unknown type and missing payload: payload shape is reported.
	_, err = Decode([]byte(`{"id":50,"seq":1}`))
	ve = requireKind(t, err, KindEnvelopeShapeError)
	if ve.Field != "payload" {
		t.Errorf("expected payload failure first, got %q", ve.Field)
	}
}

func TestNewEnvelope(t *testing.T) {
	payload := NewObject(
		Member{Key: "code", Value: String(ErrorCodeInvalidMove.String())},
		Member{Key: "reason", Value: String("too far")},
	)
	env, err := NewEnvelope(MessageTypeError, 12, payload)
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	data, err := Marshal(env)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"id":5,"seq":12,"payload":{"code":"INVALID_MOVE","reason":"too far"}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	if _, err := NewEnvelope(MessageTypeError, 1, NewObject()); !errors.Is(err, ErrPayloadInvalid) {
		t.Errorf("expected ErrPayloadInvalid for empty ERROR payload, got %v", err)
	}
	if _, err := NewEnvelope(MessageType(42), 1, NewObject()); !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("expected ErrUnknownMessageType, got %v", err)
	}
	if _, err := NewEnvelope(MessageTypeDisconnect, -3, payload); !errors.Is(err, ErrEnvelopeShape) {
		t.Errorf("expected ErrEnvelopeShape for negative seq, got %v", err)
	}
}

func TestMarshalNil(t *testing.T) {
	if _, err := Marshal(nil); err == nil {
		t.Fatal("Marshal(nil) should fail")
	}
}
