package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Row is a single schemaless record: an ordered mapping from string keys to
// JSON-like values (string, float64, bool, nil, []any, nested Row). Key order
// follows the originating sheet columns and survives JSON round-trips, which
// plain maps cannot guarantee.
//
// Rows are treated as read-only once handed to a store; mutate only during
// normalization.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow returns an empty row sized for n keys.
func NewRow(n int) Row {
	return Row{
		keys:   make([]string, 0, n),
		values: make(map[string]any, n),
	}
}

// Set assigns key to value, appending the key on first assignment and
// keeping its original position on reassignment.
func (r *Row) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value for a single key.
func (r Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Lookup resolves a dotted path ("address.city") through nested rows and
// maps. A missing segment returns (nil, false).
func (r Row) Lookup(path string) (any, bool) {
	segs := strings.Split(path, ".")
	var current any = r
	for _, seg := range segs {
		switch node := current.(type) {
		case Row:
			v, ok := node.Get(seg)
			if !ok {
				return nil, false
			}
			current = v
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	return current, true
}

// Keys returns the row's keys in insertion order. The slice is shared; do
// not modify it.
func (r Row) Keys() []string {
	return r.keys
}

// Len returns the number of keys.
func (r Row) Len() int {
	return len(r.keys)
}

// IsEmpty reports whether every value is nil or an empty string.
func (r Row) IsEmpty() bool {
	for _, k := range r.keys {
		switch v := r.values[k].(type) {
		case nil:
		case string:
			if v != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// MarshalJSON renders the row as a JSON object with keys in insertion order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal row key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order. Nested objects
// decode as Rows so order survives at every depth; numbers decode as float64.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("row: expected object, got %v", tok)
	}

	row, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*r = row
	return nil
}

// decodeObject consumes tokens after an opening '{' up to the matching '}'.
func decodeObject(dec *json.Decoder) (Row, error) {
	row := NewRow(0)
	for {
		tok, err := dec.Token()
		if err != nil {
			return row, err
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			return row, nil
		}
		key, ok := tok.(string)
		if !ok {
			return row, fmt.Errorf("row: expected object key, got %v", tok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return row, err
		}
		row.Set(key, val)
	}
}

// decodeValue consumes one JSON value from the decoder.
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch d := tok.(type) {
	case json.Delim:
		switch d {
		case '{':
			return decodeObject(dec)
		case '[':
			arr := []any{}
			for {
				if !dec.More() {
					// Consume the closing ']'
					if _, err := dec.Token(); err != nil {
						return nil, err
					}
					return arr, nil
				}
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
		default:
			return nil, fmt.Errorf("row: unexpected delimiter %v", d)
		}
	default:
		// string, float64, bool or nil
		return tok, nil
	}
}
