package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ValueKind identifies which variant a Value holds.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "boolean"
	KindDate   ValueKind = "date"
	KindList   ValueKind = "list"
	KindMap    ValueKind = "map"
)

var ErrUnsupportedValue = errors.New("unsupported variable value")

// Value is a tagged variant holding one variable binding.
// The zero Value is the empty string.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	date time.Time
	list []Value
	m    *VariableScope
}

func String(s string) Value { return Value{kind: KindString, str: s} }

func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Date(t time.Time) Value { return Value{kind: KindDate, date: t.UTC()} }

func List(values ...Value) Value {
	list := make([]Value, len(values))
	copy(list, values)

	return Value{kind: KindList, list: list}
}

func Map(scope *VariableScope) Value {
	if scope == nil {
		scope = NewVariableScope()
	}

	return Value{kind: KindMap, m: scope}
}

func (v Value) Kind() ValueKind {
	if v.kind == "" {
		return KindString
	}

	return v.kind
}

func (v Value) AsString() (string, bool) { return v.str, v.Kind() == KindString }

func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsDate() (time.Time, bool) { return v.date, v.kind == KindDate }

func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

func (v Value) AsMap() (*VariableScope, bool) { return v.m, v.kind == KindMap }

// Any returns the plain Go representation used by expression evaluators.
func (v Value) Any() any {
	switch v.Kind() {
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindDate:
		return v.date
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Any()
		}

		return out
	case KindMap:
		return v.m.Map()
	default:
		return v.str
	}
}

func (v Value) String() string {
	switch v.Kind() {
	case KindString:
		return v.str
	case KindDate:
		return v.date.Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		return List(cloneValues(v.list)...)
	case KindMap:
		return Map(v.m.Clone())
	default:
		return v
	}
}

func cloneValues(values []Value) []Value {
	out := make([]Value, len(values))
	for i, item := range values {
		out[i] = item.Clone()
	}

	return out
}

// ValueOf converts a plain Go value into a Value.
func ValueOf(raw any) (Value, error) {
	switch typed := raw.(type) {
	case Value:
		return typed, nil
	case *VariableScope:
		return Map(typed.Clone()), nil
	case string:
		return String(typed), nil
	case bool:
		return Bool(typed), nil
	case int:
		return Number(float64(typed)), nil
	case int8:
		return Number(float64(typed)), nil
	case int16:
		return Number(float64(typed)), nil
	case int32:
		return Number(float64(typed)), nil
	case int64:
		return Number(float64(typed)), nil
	case uint:
		return Number(float64(typed)), nil
	case uint8:
		return Number(float64(typed)), nil
	case uint16:
		return Number(float64(typed)), nil
	case uint32:
		return Number(float64(typed)), nil
	case uint64:
		return Number(float64(typed)), nil
	case float32:
		return Number(float64(typed)), nil
	case float64:
		return Number(typed), nil
	case json.Number:
		n, err := typed.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %w", ErrUnsupportedValue, err)
		}

		return Number(n), nil
	case time.Time:
		return Date(typed), nil
	case *time.Time:
		if typed == nil {
			return Value{}, fmt.Errorf("%w: nil date", ErrUnsupportedValue)
		}

		return Date(*typed), nil
	case []Value:
		return List(cloneValues(typed)...), nil
	case []string:
		list := make([]Value, len(typed))
		for i, s := range typed {
			list[i] = String(s)
		}

		return List(list...), nil
	case []any:
		list := make([]Value, len(typed))

		for i, item := range typed {
			converted, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("list item %d: %w", i, err)
			}

			list[i] = converted
		}

		return List(list...), nil
	case map[string]string:
		scope := NewVariableScope()
		for _, key := range sortedKeys(typed) {
			scope.Set(key, String(typed[key]))
		}

		return Map(scope), nil
	case map[string]any:
		scope, err := ScopeFromMap(typed)
		if err != nil {
			return Value{}, err
		}

		return Map(scope), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, raw)
	}
}

type valueJSON struct {
	Type  ValueKind       `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	raw, err := v.encode()
	if err != nil {
		return nil, err
	}

	return json.Marshal(raw)
}

func (v Value) encode() (valueJSON, error) {
	var (
		payload []byte
		err     error
	)

	switch v.Kind() {
	case KindNumber:
		payload, err = json.Marshal(v.num)
	case KindBool:
		payload, err = json.Marshal(v.b)
	case KindDate:
		payload, err = json.Marshal(v.date.Format(time.RFC3339Nano))
	case KindList:
		list := v.list
		if list == nil {
			list = []Value{}
		}

		payload, err = json.Marshal(list)
	case KindMap:
		payload, err = json.Marshal(v.m)
	default:
		payload, err = json.Marshal(v.str)
	}

	if err != nil {
		return valueJSON{}, err
	}

	return valueJSON{Type: v.Kind(), Value: payload}, nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw valueJSON

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	return v.decode(raw)
}

func (v *Value) decode(raw valueJSON) error {
	var err error

	switch raw.Type {
	case KindString, "":
		var s string
		err = json.Unmarshal(raw.Value, &s)
		*v = String(s)
	case KindNumber:
		var n float64
		err = json.Unmarshal(raw.Value, &n)
		*v = Number(n)
	case KindBool:
		var b bool
		err = json.Unmarshal(raw.Value, &b)
		*v = Bool(b)
	case KindDate:
		var s string

		err = json.Unmarshal(raw.Value, &s)
		if err == nil {
			var t time.Time

			t, err = time.Parse(time.RFC3339Nano, s)
			*v = Date(t)
		}
	case KindList:
		var list []Value
		err = json.Unmarshal(raw.Value, &list)
		*v = List(list...)
	case KindMap:
		scope := NewVariableScope()
		err = json.Unmarshal(raw.Value, scope)
		*v = Map(scope)
	default:
		return fmt.Errorf("%w: kind %q", ErrUnsupportedValue, raw.Type)
	}

	return err
}
