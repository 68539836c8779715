package shared

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var ErrTypeMismatch = errors.New("type mismatch")

// TypeMismatchError is returned by the As* accessors when the value holds a
// different kind than requested.
type TypeMismatchError struct {
	Want Kind
	Got  Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: want %s, got %s", ErrTypeMismatch, e.Want, e.Got)
}

func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// Value is an immutable parsed structured-text value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  float64
	lit  string // number literal, verbatim when wire is set
	wire bool
	str  string
	arr  []Value
	obj  Object
}

// Member is a single key/value pair of an object, in wire order.
type Member struct {
	Key   string
	Value Value
}

// Object is an ordered set of uniquely keyed members.
type Object struct {
	members []Member
	index   map[string]int
}

func Null() Value { return Value{} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func String(s string) Value { return Value{kind: KindString, str: s} }

// Number builds a numeric value. NaN and infinities have no wire form and
// are encoded as null by MarshalJSON.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f, lit: strconv.FormatFloat(f, 'g', -1, 64)}
}

func Int(i int64) Value {
	return Value{kind: KindNumber, num: float64(i), lit: strconv.FormatInt(i, 10)}
}

func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// NewObject builds an object value. A repeated key keeps the last value in
// the position of its first occurrence.
func NewObject(members ...Member) Value {
	obj := Object{index: make(map[string]int, len(members))}
	for _, m := range members {
		if i, ok := obj.index[m.Key]; ok {
			obj.members[i].Value = m.Value
			continue
		}
		obj.index[m.Key] = len(obj.members)
		obj.members = append(obj.members, m)
	}
	return Value{kind: KindObject, obj: obj}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) mismatch(want Kind) error {
	return &TypeMismatchError{Want: want, Got: v.kind}
}

func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, v.mismatch(KindBool)
	}
	return v.b, nil
}

func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", v.mismatch(KindString)
	}
	return v.str, nil
}

func (v Value) AsNumber() (float64, error) {
	if v.kind != KindNumber {
		return 0, v.mismatch(KindNumber)
	}
	return v.num, nil
}

var ErrNotInteger = errors.New("number is not an integer")

// AsInt returns the value as an int64. Any numeric literal whose value is
// integral and representable as int64 qualifies, so 7, 7.0 and 7e0 are all 7.
func (v Value) AsInt() (int64, error) {
	if v.kind != KindNumber {
		return 0, v.mismatch(KindNumber)
	}
	if i, err := strconv.ParseInt(v.lit, 10, 64); err == nil {
		return i, nil
	}
	if math.IsNaN(v.num) || math.IsInf(v.num, 0) || v.num != math.Trunc(v.num) {
		return 0, fmt.Errorf("%w: %s", ErrNotInteger, v.lit)
	}
	// 2^63 is exactly representable, anything at or beyond it is not an int64.
	if v.num >= 9223372036854775808.0 || v.num < -9223372036854775808.0 {
		return 0, fmt.Errorf("%w: %s out of range", ErrNotInteger, v.lit)
	}
	return int64(v.num), nil
}

func (v Value) AsArray() ([]Value, error) {
	if v.kind != KindArray {
		return nil, v.mismatch(KindArray)
	}
	return v.arr, nil
}

func (v Value) AsObject() (Object, error) {
	if v.kind != KindObject {
		return Object{}, v.mismatch(KindObject)
	}
	return v.obj, nil
}

// Literal returns the wire text of a number, or the rendered value otherwise.
// Used to quote offending values in error messages.
func (v Value) Literal() string {
	switch v.kind {
	case KindNumber:
		return v.lit
	case KindString:
		return strconv.Quote(v.str)
	default:
		data, err := v.MarshalJSON()
		if err != nil {
			return v.kind.String()
		}
		return string(data)
	}
}

func (o Object) Len() int { return len(o.members) }

func (o Object) Get(key string) (Value, bool) {
	i, ok := o.index[key]
	if !ok {
		return Value{}, false
	}
	return o.members[i].Value, true
}

func (o Object) Has(key string) bool {
	_, ok := o.index[key]
	return ok
}

func (o Object) Keys() []string {
	keys := make([]string, len(o.members))
	for i, m := range o.members {
		keys[i] = m.Key
	}
	return keys
}

func (o Object) Members() []Member {
	cp := make([]Member, len(o.members))
	copy(cp, o.members)
	return cp
}

// Equal reports structural equality. Numbers compare by value, objects by
// key set regardless of member order.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		if nonFinite(v.num) && nonFinite(other.num) {
			return v.lit == other.lit
		}
		return v.num == other.num
	case KindString:
		return v.str == other.str
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if v.obj.Len() != other.obj.Len() {
			return false
		}
		for _, m := range v.obj.members {
			ov, ok := other.obj.Get(m.Key)
			if !ok || !m.Value.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON emits compact wire text. Object members keep their order and
// numbers keep the literal they were parsed from.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		if !v.wire && nonFinite(v.num) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(v.lit)
	case KindString:
		return encodeString(buf, v.str)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, m := range v.obj.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, m.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("cannot encode %s", v.kind)
	}
	return nil
}

// nonFinite also covers parsed literals such as 1e400 that overflow float64.
func nonFinite(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

func encodeString(buf *bytes.Buffer, s string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// UnmarshalJSON parses wire text into the value, with the same rules as Parse.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Parse decodes structured text into a Value. Malformed input, text that is
// not UTF-8 and objects with a repeated key fail with a *ValidationError of
// KindSyntaxError.
func Parse(data []byte) (Value, error) {
	if !utf8.Valid(data) {
		return Value{}, syntaxError("input is not valid UTF-8")
	}
	if !gjson.ValidBytes(data) {
		return Value{}, syntaxError("malformed input")
	}
	return fromResult(gjson.ParseBytes(data))
}

func fromResult(r gjson.Result) (Value, error) {
	switch r.Type {
	case gjson.Null:
		return Null(), nil
	case gjson.False:
		return Bool(false), nil
	case gjson.True:
		return Bool(true), nil
	case gjson.Number:
		return Value{kind: KindNumber, num: r.Num, lit: r.Raw, wire: true}, nil
	case gjson.String:
		return String(r.Str), nil
	}

	if r.IsArray() {
		var (
			items []Value
			err   error
		)
		r.ForEach(func(_, item gjson.Result) bool {
			var v Value
			v, err = fromResult(item)
			if err != nil {
				return false
			}
			items = append(items, v)
			return true
		})
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindArray, arr: items}, nil
	}

	obj := Object{index: make(map[string]int)}
	var err error
	r.ForEach(func(key, item gjson.Result) bool {
		if _, dup := obj.index[key.Str]; dup {
			err = syntaxError("duplicate key %q", key.Str)
			return false
		}
		var v Value
		v, err = fromResult(item)
		if err != nil {
			return false
		}
		obj.index[key.Str] = len(obj.members)
		obj.members = append(obj.members, Member{Key: key.Str, Value: v})
		return true
	})
	if err != nil {
		return Value{}, err
	}
	return Value{kind: KindObject, obj: obj}, nil
}
