// Package jsontype maps the symbolic JSON type tags used in procedure
// signatures to the kinds of decoded JSON values they accept.
//
// A tag accepts a value when the value's kind is a member of the tag's
// accepted set. This is a membership test, not a comparison of Go types: the
// "num" tag accepts a json.Number, an int and a float64 alike.
//
//	jsontype.Num.Accepts(json.Number("1.5")) // true
//	jsontype.Str.Accepts(nil)                // false
//	jsontype.Any.Accepts(nil)                // true
package jsontype

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// TypeTag is a symbolic JSON type name.
type TypeTag string

const (
	Bit TypeTag = "bit"
	Num TypeTag = "num"
	Str TypeTag = "str"
	Arr TypeTag = "arr"
	Obj TypeTag = "obj"
	Nil TypeTag = "nil"
	Any TypeTag = "any"
)

// Kind classifies a decoded JSON value.
type Kind int

const (
	Invalid Kind = iota
	Bool
	Number
	String
	Array
	Object
	Null
)

var kindNames = [...]string{
	Invalid: "invalid",
	Bool:    "bool",
	Number:  "number",
	String:  "string",
	Array:   "array",
	Object:  "object",
	Null:    "null",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// tags lists every tag in canonical order.
var tags = []TypeTag{Bit, Num, Str, Arr, Obj, Nil, Any}

var accepted = map[TypeTag][]Kind{
	Bit: {Bool},
	Num: {Number},
	Str: {String},
	Arr: {Array},
	Obj: {Object},
	Nil: {Null},
	Any: {Bool, Number, String, Array, Object, Null},
}

// Tags returns all known tags in canonical order.
func Tags() []TypeTag {
	out := make([]TypeTag, len(tags))
	copy(out, tags)
	return out
}

// TagNames returns the canonical tag list joined with ", ", for messages.
func TagNames() string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// ParseTag returns the tag named by s.
func ParseTag(s string) (TypeTag, error) {
	t := TypeTag(s)
	if _, ok := accepted[t]; !ok {
		return "", fmt.Errorf("jsontype: invalid tag %q", s)
	}
	return t, nil
}

// Valid reports whether t is a known tag.
func (t TypeTag) Valid() bool {
	_, ok := accepted[t]
	return ok
}

// Kinds returns the set of value kinds accepted by t, or nil if t is unknown.
func (t TypeTag) Kinds() []Kind {
	ks := accepted[t]
	if ks == nil {
		return nil
	}
	out := make([]Kind, len(ks))
	copy(out, ks)
	return out
}

// Accepts reports whether the kind of v is a member of t's accepted set.
// Values of unsupported Go types are accepted by no tag.
func (t TypeTag) Accepts(v any) bool {
	k, ok := KindOf(v)
	if !ok {
		return false
	}
	return t.AcceptsKind(k)
}

// AcceptsKind reports whether k is in t's accepted set.
func (t TypeTag) AcceptsKind(k Kind) bool {
	for _, a := range accepted[t] {
		if a == k {
			return true
		}
	}
	return false
}

// TagOf returns the most specific tag for v. It never returns Any.
func TagOf(v any) (TypeTag, error) {
	k, ok := KindOf(v)
	if !ok {
		return "", fmt.Errorf("jsontype: %T is not a valid JSON type", v)
	}
	switch k {
	case Bool:
		return Bit, nil
	case Number:
		return Num, nil
	case String:
		return Str, nil
	case Array:
		return Arr, nil
	case Object:
		return Obj, nil
	default:
		return Nil, nil
	}
}

var (
	numberType = reflect.TypeFor[json.Number]()
	rawType    = reflect.TypeFor[json.RawMessage]()
)

// KindOf classifies v. Values produced by encoding/json decoding into an
// interface (with or without UseNumber) are always classified; other Go
// values are classified by their reflect kind. A json.RawMessage is
// classified by its first significant byte.
func KindOf(v any) (Kind, bool) {
	switch x := v.(type) {
	case nil:
		return Null, true
	case bool:
		return Bool, true
	case json.Number, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return Number, true
	case string:
		return String, true
	case []any:
		return Array, true
	case map[string]any:
		return Object, true
	case json.RawMessage:
		return rawKind(x)
	}
	return reflectKind(reflect.ValueOf(v))
}

func reflectKind(rv reflect.Value) (Kind, bool) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Null, true
		}
		rv = rv.Elem()
	}
	if rv.Type() == numberType {
		return Number, true
	}
	if rv.Type() == rawType {
		return rawKind(rv.Bytes())
	}
	switch rv.Kind() {
	case reflect.Bool:
		return Bool, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Number, true
	case reflect.String:
		return String, true
	case reflect.Slice:
		if rv.IsNil() {
			return Null, true
		}
		// encoding/json writes []byte as a base64 string.
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return String, true
		}
		return Array, true
	case reflect.Array:
		return Array, true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Invalid, false
		}
		if rv.IsNil() {
			return Null, true
		}
		return Object, true
	case reflect.Struct:
		return Object, true
	}
	return Invalid, false
}

func rawKind(b []byte) (Kind, bool) {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case 't', 'f':
			return Bool, true
		case 'n':
			return Null, true
		case '"':
			return String, true
		case '[':
			return Array, true
		case '{':
			return Object, true
		case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			return Number, true
		}
		return Invalid, false
	}
	return Invalid, false
}
