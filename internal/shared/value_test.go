package shared

import (
	"errors"
	"math"
	"testing"
)

func TestParseKinds(t *testing.T) {
	tests := []struct {
		input string
		kind  Kind
	}{
		{`null`, KindNull},
		{`true`, KindBool},
		{`false`, KindBool},
		{`-1.25e3`, KindNumber},
		{`"s"`, KindString},
		{`[]`, KindArray},
		{`{}`, KindObject},
		{`  {"a":[1,{"b":null}]}  `, KindObject},
	}
	for _, tt := range tests {
		v, err := Parse([]byte(tt.input))
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tt.input, err)
		}
		if v.Kind() != tt.kind {
			t.Errorf("Parse(%q) kind %s, want %s", tt.input, v.Kind(), tt.kind)
		}
	}
}

func TestAccessorsTypeMismatch(t *testing.T) {
	v := String("hello")

	if _, err := v.AsNumber(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("AsNumber on string: expected ErrTypeMismatch, got %v", err)
	}
	if _, err := v.AsInt(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("AsInt on string: expected ErrTypeMismatch, got %v", err)
	}
	if _, err := v.AsObject(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("AsObject on string: expected ErrTypeMismatch, got %v", err)
	}
	if _, err := v.AsArray(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("AsArray on string: expected ErrTypeMismatch, got %v", err)
	}
	if _, err := Null().AsBool(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("AsBool on null: expected ErrTypeMismatch, got %v", err)
	}

	var tm *TypeMismatchError
	_, err := Int(3).AsString()
	if !errors.As(err, &tm) {
		t.Fatalf("expected *TypeMismatchError, got %T", err)
	}
	if tm.Want != KindString || tm.Got != KindNumber {
		t.Errorf("unexpected mismatch detail: %+v", tm)
	}

	s, err := v.AsString()
	if err != nil || s != "hello" {
		t.Errorf("AsString = %q, %v", s, err)
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input string
		want  int64
		ok    bool
	}{
		{`0`, 0, true},
		{`-5`, -5, true},
		{`9223372036854775807`, 9223372036854775807, true},
		{`7.0`, 7, true},
		{`7e0`, 7, true},
		{`1.5`, 0, false},
		{`1e19`, 0, false},
		{`9223372036854775808`, 0, false},
	}
	for _, tt := range tests {
		v, err := Parse([]byte(tt.input))
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tt.input, err)
		}
		got, err := v.AsInt()
		if tt.ok {
			if err != nil || got != tt.want {
				t.Errorf("AsInt(%s) = %d, %v; want %d", tt.input, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrNotInteger) {
			t.Errorf("AsInt(%s): expected ErrNotInteger, got %d, %v", tt.input, got, err)
		}
	}
}

func TestObjectPreservesOrder(t *testing.T) {
	v, err := Parse([]byte(`{"z":1,"a":2,"m":3}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	obj, _ := v.AsObject()
	keys := obj.Keys()
	want := []string{"z", "a", "m"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys %v, want %v", keys, want)
		}
	}
	if !obj.Has("a") || obj.Has("b") {
		t.Errorf("Has reports wrong membership")
	}
	if got, ok := obj.Get("m"); !ok || got.Literal() != "3" {
		t.Errorf("Get(m) = %v, %v", got.Literal(), ok)
	}
}

func TestParseRejectsDuplicateKeysAtAnyDepth(t *testing.T) {
	_, err := Parse([]byte(`{"a":{"b":1,"b":2}}`))
	if !errors.Is(err, ErrSyntax) {
		t.Errorf("expected ErrSyntax for nested duplicate, got %v", err)
	}
}

func TestValueEqual(t *testing.T) {
	a, _ := Parse([]byte(`{"x":1.0,"list":[1,"a",null],"o":{"k":true}}`))
	b, _ := Parse([]byte(`{"o":{"k":true},"list":[1,"a",null],"x":1}`))
	c, _ := Parse([]byte(`{"o":{"k":false},"list":[1,"a",null],"x":1}`))

	if !a.Equal(b) {
		t.Error("expected equal values regardless of member order and number spelling")
	}
	if a.Equal(c) {
		t.Error("expected values to differ")
	}
	if Int(1).Equal(String("1")) {
		t.Error("number and string must differ")
	}
}

func TestMarshalValue(t *testing.T) {
	v := NewObject(
		Member{Key: "name", Value: String("a\"b")},
		Member{Key: "n", Value: Int(-4)},
		Member{Key: "f", Value: Number(0.5)},
		Member{Key: "list", Value: Array(Bool(true), Null())},
	)
	data, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	want := `{"name":"a\"b","n":-4,"f":0.5,"list":[true,null]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	back, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !back.Equal(v) {
		t.Error("marshalled value does not parse back to itself")
	}
}

func TestMarshalNonFiniteNumbers(t *testing.T) {
	built := Array(Number(math.Inf(1)), Number(math.NaN()))
	data, err := built.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	if string(data) != `[null,null]` {
		t.Errorf("built non-finite numbers: got %s, want [null,null]", data)
	}

	parsed, err := Parse([]byte(`[1e400,-1e400]`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	data, err = parsed.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	if string(data) != `[1e400,-1e400]` {
		t.Errorf("parsed literals: got %s, want [1e400,-1e400]", data)
	}
}

func TestParseRejectsInvalidUTF8(t *testing.T) {
	for _, in := range []string{"\"a\xffb\"", "{\"k\xc3\":1}", "[\"\xed\xa0\x80\"]"} {
		_, err := Parse([]byte(in))
		if !errors.Is(err, ErrSyntax) {
			t.Errorf("input %q: expected ErrSyntax, got %v", in, err)
		}
	}
}

func TestNewObjectRepeatedKeyKeepsLast(t *testing.T) {
	v := NewObject(Member{Key: "a", Value: Int(1)}, Member{Key: "b", Value: Int(2)}, Member{Key: "a", Value: Int(3)})
	obj, _ := v.AsObject()
	if obj.Len() != 2 {
		t.Fatalf("expected 2 members, got %d", obj.Len())
	}
	got, _ := obj.Get("a")
	if n, _ := got.AsInt(); n != 3 {
		t.Errorf("a = %d, want 3", n)
	}
}
