package api

import (
	"encoding/json"
	"fmt"
)

// Value is a canonical dynamic JSON value: null, bool, number, string, list
// or map. Accessors report absence explicitly instead of panicking, which is
// what tool handlers need when they pick fields out of model-supplied
// argument objects.
type Value struct {
	v interface{}
}

func NewValue(v interface{}) Value { return Value{v: v} }

// ParseValue decodes a JSON document into a Value. Numbers decode as
// float64, objects as map[string]interface{}.
func ParseValue(data []byte) (Value, error) {
	if len(data) == 0 {
		return Value{}, nil
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return Value{}, fmt.Errorf("parsing value: %w", err)
	}
	return Value{v: v}, nil
}

func (v Value) IsNull() bool { return v.v == nil }

func (v Value) Raw() interface{} { return v.v }

func (v Value) Str() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

func (v Value) Num() (float64, bool) {
	switch n := v.v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func (v Value) Int() (int, bool) {
	f, ok := v.Num()
	if !ok {
		return 0, false
	}
	return int(f), true
}

func (v Value) Bool() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok
}

func (v Value) List() ([]Value, bool) {
	l, ok := v.v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]Value, len(l))
	for i, e := range l {
		out[i] = Value{v: e}
	}
	return out, true
}

func (v Value) Map() (map[string]Value, bool) {
	m, ok := v.v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	out := make(map[string]Value, len(m))
	for k, e := range m {
		out[k] = Value{v: e}
	}
	return out, true
}

// Get returns the value at a map key; the second return is false when the
// receiver is not a map or the key is absent.
func (v Value) Get(key string) (Value, bool) {
	m, ok := v.v.(map[string]interface{})
	if !ok {
		return Value{}, false
	}
	e, ok := m[key]
	if !ok {
		return Value{}, false
	}
	return Value{v: e}, true
}

// StrOr returns the string at key or the default.
func (v Value) StrOr(key, def string) string {
	e, ok := v.Get(key)
	if !ok {
		return def
	}
	s, ok := e.Str()
	if !ok {
		return def
	}
	return s
}

// IntOr returns the integer at key or the default.
func (v Value) IntOr(key string, def int) int {
	e, ok := v.Get(key)
	if !ok {
		return def
	}
	n, ok := e.Int()
	if !ok {
		return def
	}
	return n
}

func (v Value) MarshalJSON() ([]byte, error) { return json.Marshal(v.v) }

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.v = raw
	return nil
}
