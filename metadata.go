package beanpipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Metadata is a string-keyed mapping of scalar values attached to a directive
// or a posting. Values are one of: string, bool, decimal.Decimal.
// Dates are carried as strings in ISO-8601 form.
type Metadata map[string]any

// Has reports whether the key is present.
func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// String returns the value of key if it is present and a string.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns the value of key if it is present and a bool.
func (m Metadata) Bool(key string) (bool, bool) {
	v, ok := m[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// SortedKeys returns the metadata keys in lexical order.
func (m Metadata) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON encodes the metadata with keys in lexical order so that the
// output is stable across runs.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	for _, k := range m.SortedKeys() {
		w.Append(k, m[k])
	}
	return w.MarshalJSON()
}

// UnmarshalJSON decodes the metadata, converting JSON numbers to
// decimal.Decimal to keep amounts exact.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	raw := make(map[string]any)
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	out := make(Metadata, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case json.Number:
			d, err := decimal.NewFromString(t.String())
			if err != nil {
				return fmt.Errorf("invalid number for metadata key %q: %w", k, err)
			}
			out[k] = d
		case string, bool, nil:
			out[k] = t
		default:
			return fmt.Errorf("metadata key %q has unsupported value type %T", k, v)
		}
	}
	*m = out
	return nil
}
