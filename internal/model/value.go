package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the field value types a revision can hold.
// Only Null, String, Int, Bool, List and Object implement it.
// There is no float variant: decimals travel as String so digests stay stable.
type Value interface {
	fieldValue()
}

// Null is an explicitly cleared field.
type Null struct{}

func (Null) fieldValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a text field value.
type String string

func (String) fieldValue() {}

// Int is an integer field value.
type Int int64

func (Int) fieldValue() {}

// Bool is a boolean field value.
type Bool bool

func (Bool) fieldValue() {}

// List is an ordered multi-value field (e.g. taxonomy references).
type List []Value

func (List) fieldValue() {}

// Object is a structured field value, and also the container for a revision's
// fields. Translatable fields are Objects keyed by language code.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) fieldValue() {}

// Pair is a key/value pair for typed Object construction.
type Pair struct {
	Key   string
	Value Value
}

// F is shorthand for Pair.
// Example: NewObject(F("title", String("Hello")), F("weight", Int(3)))
func F(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// NewObject creates an Object from typed pairs.
func NewObject(pairs ...Pair) Object {
	obj := make(Object, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// Get returns the value stored under key, or (nil, false).
func (obj Object) Get(key string) (Value, bool) {
	if obj == nil {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

// Clone returns a deep copy of the object.
func (obj Object) Clone() Object {
	if obj == nil {
		return Object{}
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue returns a deep copy of v. Scalars are returned as-is.
func CloneValue(v Value) Value {
	switch val := v.(type) {
	case List:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = CloneValue(elem)
		}
		return out
	case Object:
		return val.Clone()
	default:
		return v
	}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs for non-BMP keys.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*obj = make(Object, len(raw))
	for k, v := range raw {
		val, err := decodeValue(v)
		if err != nil {
			return fmt.Errorf("object key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for List.
func (l *List) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*l = make(List, len(raw))
	for i, v := range raw {
		val, err := decodeValue(v)
		if err != nil {
			return fmt.Errorf("list index %d: %w", i, err)
		}
		(*l)[i] = val
	}
	return nil
}

// MarshalJSON implements json.Marshaler for Object with sorted keys.
// This is NOT canonical marshaling (HTML escaping applies). Use MarshalCanonical
// for digests and equality.
func (obj Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for List.
func (l List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalValue marshals a Value to JSON bytes. A nil Value encodes as null.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Bool:
		return json.Marshal(bool(val))
	case List:
		return val.MarshalJSON()
	case Object:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// decodeValue decodes one JSON value into the matching Value type.
// null becomes Null; floats are rejected.
func decodeValue(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case 'n':
		return Null{}, nil

	case '[':
		var l List
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, err
		}
		return l, nil

	case '{':
		var obj Object
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return obj, nil

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		s := string(n)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are not allowed in field values: %s", s)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(i), nil
	}
}

// DecodeValue parses JSON into a Value.
func DecodeValue(data []byte) (Value, error) {
	return decodeValue(data)
}

// DecodeFields parses a JSON object into revision fields.
func DecodeFields(data []byte) (Object, error) {
	v, err := decodeValue(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("fields must be a JSON object, got %T", v)
	}
	return obj, nil
}

// FromAny converts decoded YAML/JSON Go values into a Value.
// int, int64 and uint64 in range are accepted; floats are accepted only when
// they hold an integral value (YAML decoders sometimes produce them).
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, fmt.Errorf("number out of int64 range: %d", val)
		}
		return Int(int64(val)), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are not allowed in field values: %v", val)
		}
		return Int(int64(val)), nil
	case []any:
		out := make(List, len(val))
		for i, elem := range val {
			fv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = fv
		}
		return out, nil
	case map[string]any:
		out := make(Object, len(val))
		for k, elem := range val {
			fv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = fv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
