package frontmatter

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is a front-matter value: either a scalar string or a list of
// strings. The grammar produces no other shapes; numbers and booleans
// stay strings.
type Value struct {
	scalar string
	list   []string
	isList bool
}

// String returns a scalar Value.
func String(s string) Value {
	return Value{scalar: s}
}

// List returns a list Value.
func List(items ...string) Value {
	return Value{list: items, isList: true}
}

// IsList reports whether the value is a list.
func (v Value) IsList() bool {
	return v.isList
}

// Scalar returns the scalar form. Empty for list values.
func (v Value) Scalar() string {
	return v.scalar
}

// Items returns the list form. Nil for scalar values.
func (v Value) Items() []string {
	return v.list
}

// Equal reports structural equality.
func (v Value) Equal(o Value) bool {
	if v.isList != o.isList {
		return false
	}
	if !v.isList {
		return v.scalar == o.scalar
	}
	if len(v.list) != len(o.list) {
		return false
	}
	for i := range v.list {
		if v.list[i] != o.list[i] {
			return false
		}
	}
	return true
}

// MarshalJSON renders scalars as JSON strings and lists as JSON arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.isList {
		items := v.list
		if items == nil {
			items = []string{}
		}
		return json.Marshal(items)
	}
	return json.Marshal(v.scalar)
}

// UnmarshalJSON accepts a JSON string or an array of strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*v = List(items...)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = String(s)
	return nil
}

// Meta is an ordered mapping from front-matter key to Value. Iteration
// and serialization follow insertion order.
type Meta struct {
	keys   []string
	values map[string]Value
}

// Set stores a value, appending the key on first insert.
func (m *Meta) Set(key string, v Value) {
	if m.values == nil {
		m.values = make(map[string]Value)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Get returns the value for key.
func (m Meta) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order. The slice is shared; callers
// must not mutate it.
func (m Meta) Keys() []string {
	return m.keys
}

// Len returns the number of keys.
func (m Meta) Len() int {
	return len(m.keys)
}

// Equal reports structural equality including key order.
func (m Meta) Equal(o Meta) bool {
	if len(m.keys) != len(o.keys) {
		return false
	}
	for i, k := range m.keys {
		if o.keys[i] != k {
			return false
		}
		if !m.values[k].Equal(o.values[k]) {
			return false
		}
	}
	return true
}

// MarshalJSON renders the meta as a JSON object in insertion order.
func (m Meta) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, preserving its textual key order.
func (m *Meta) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("frontmatter: meta must be a JSON object")
	}
	*m = Meta{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("frontmatter: non-string meta key")
		}
		var v Value
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("frontmatter: meta value for %q: %w", key, err)
		}
		m.Set(key, v)
	}
	// Consume closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
