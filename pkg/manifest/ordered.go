package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OrderedMap is a string-to-string map that remembers insertion order.
//
// JSON objects in package.json files and registry documents are ordered by
// declaration, and that order decides traversal order during installs, so
// plain Go maps are not enough. The zero value is an empty, ready-to-use map.
//
// Decoded entries whose value is not a JSON string are kept verbatim and
// written back in place, but Len, Get, Keys and Each do not report them.
type OrderedMap struct {
	keys   []string
	values map[string]string
	raw    map[string]json.RawMessage
}

// NewOrderedMap builds a map from alternating key/value pairs.
// It panics on an odd number of arguments.
func NewOrderedMap(kv ...string) *OrderedMap {
	if len(kv)%2 != 0 {
		panic("manifest.NewOrderedMap: odd number of arguments")
	}
	m := &OrderedMap{}
	for i := 0; i < len(kv); i += 2 {
		m.Set(kv[i], kv[i+1])
	}
	return m
}

// Len returns the number of string entries.
func (m *OrderedMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.values)
}

// Get returns the value stored under key.
func (m *OrderedMap) Get(key string) (string, bool) {
	if m == nil || m.values == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Set stores value under key. New keys go to the end; existing keys keep
// their position, including keys that held a non-string value.
func (m *OrderedMap) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if !m.present(key) {
		m.keys = append(m.keys, key)
	}
	delete(m.raw, key)
	m.values[key] = value
}

// setRaw stores a non-string value under key.
func (m *OrderedMap) setRaw(key string, value json.RawMessage) {
	if m.raw == nil {
		m.raw = make(map[string]json.RawMessage)
	}
	if !m.present(key) {
		m.keys = append(m.keys, key)
	}
	delete(m.values, key)
	m.raw[key] = value
}

func (m *OrderedMap) present(key string) bool {
	if _, ok := m.values[key]; ok {
		return true
	}
	_, ok := m.raw[key]
	return ok
}

// Delete removes key, whatever its value, and reports whether it was
// present.
func (m *OrderedMap) Delete(key string) bool {
	if m == nil || !m.present(key) {
		return false
	}
	delete(m.values, key)
	delete(m.raw, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys of string entries in insertion order.
func (m *OrderedMap) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.values))
	for _, k := range m.keys {
		if _, ok := m.values[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Each calls fn for every string entry in insertion order.
func (m *OrderedMap) Each(fn func(key, value string)) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if v, ok := m.values[k]; ok {
			fn(k, v)
		}
	}
}

// MarshalJSON encodes the map as a JSON object in insertion order.
func (m OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, ok := m.raw[k]
		if !ok {
			if val, err = json.Marshal(m.values[k]); err != nil {
				return nil, err
			}
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order. A JSON null
// yields an empty map. Entries whose value is not a string are kept raw.
func (m *OrderedMap) UnmarshalJSON(data []byte) error {
	*m = OrderedMap{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			m.setRaw(key, raw)
			continue
		}
		m.Set(key, value)
	}

	_, err = dec.Token()
	return err
}
