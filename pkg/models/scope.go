package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// VariableScope is an ordered set of named variable bindings.
// Keys keep their first insertion position when overwritten.
type VariableScope struct {
	keys   []string
	values map[string]Value
}

func NewVariableScope() *VariableScope {
	return &VariableScope{values: make(map[string]Value)}
}

// ScopeFromMap builds a scope from plain Go values, keys in lexical order.
func ScopeFromMap(values map[string]any) (*VariableScope, error) {
	scope := NewVariableScope()

	for _, key := range sortedKeys(values) {
		err := scope.SetAny(key, values[key])
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", key, err)
		}
	}

	return scope, nil
}

func (s *VariableScope) Len() int {
	if s == nil {
		return 0
	}

	return len(s.keys)
}

func (s *VariableScope) Keys() []string {
	if s == nil {
		return nil
	}

	keys := make([]string, len(s.keys))
	copy(keys, s.keys)

	return keys
}

func (s *VariableScope) Get(key string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}

	value, ok := s.values[key]

	return value, ok
}

func (s *VariableScope) Set(key string, value Value) {
	if s.values == nil {
		s.values = make(map[string]Value)
	}

	if _, exists := s.values[key]; !exists {
		s.keys = append(s.keys, key)
	}

	s.values[key] = value
}

// SetAny converts raw with ValueOf and stores it. A nil raw deletes the key.
func (s *VariableScope) SetAny(key string, raw any) error {
	if raw == nil {
		s.Delete(key)

		return nil
	}

	value, err := ValueOf(raw)
	if err != nil {
		return err
	}

	s.Set(key, value)

	return nil
}

func (s *VariableScope) Delete(key string) {
	if s == nil {
		return
	}

	if _, exists := s.values[key]; !exists {
		return
	}

	delete(s.values, key)

	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)

			break
		}
	}
}

// Merge copies every binding of other into s, other winning on conflicts.
func (s *VariableScope) Merge(other *VariableScope) {
	if other == nil {
		return
	}

	for _, key := range other.keys {
		s.Set(key, other.values[key].Clone())
	}
}

func (s *VariableScope) Clone() *VariableScope {
	clone := NewVariableScope()
	clone.Merge(s)

	return clone
}

// Map returns the bindings as plain Go values.
func (s *VariableScope) Map() map[string]any {
	out := make(map[string]any, s.Len())
	if s == nil {
		return out
	}

	for _, key := range s.keys {
		out[key] = s.values[key].Any()
	}

	return out
}

type scopeEntry struct {
	Name  string          `json:"name"`
	Type  ValueKind       `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (s *VariableScope) MarshalJSON() ([]byte, error) {
	entries := make([]scopeEntry, 0, s.Len())

	if s != nil {
		for _, key := range s.keys {
			raw, err := s.values[key].encode()
			if err != nil {
				return nil, fmt.Errorf("variable %q: %w", key, err)
			}

			entries = append(entries, scopeEntry{Name: key, Type: raw.Type, Value: raw.Value})
		}
	}

	return json.Marshal(entries)
}

func (s *VariableScope) UnmarshalJSON(data []byte) error {
	var entries []scopeEntry

	err := json.Unmarshal(data, &entries)
	if err != nil {
		return err
	}

	s.keys = nil
	s.values = make(map[string]Value, len(entries))

	for _, entry := range entries {
		var value Value

		err := value.decode(valueJSON{Type: entry.Type, Value: entry.Value})
		if err != nil {
			return fmt.Errorf("variable %q: %w", entry.Name, err)
		}

		s.Set(entry.Name, value)
	}

	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
