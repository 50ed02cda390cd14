package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/valueconv"
)

// Metadata is a free-form JSON document stored alongside lineage events and exceptions.
type Metadata map[string]interface{}

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(value interface{}) error {
	b, err := scanBytes(value, "Metadata")
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*m = Metadata{}
		return nil
	}
	out := Metadata{}
	if err := decodeJSON(b, &out); err != nil {
		return fmt.Errorf("failed to unmarshal Metadata JSON: %w", err)
	}
	NormalizeJSONValue(out)
	*m = out
	return nil
}

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// GetString returns the value under key if it is a string.
func (m Metadata) GetString(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt returns the value under key as an int, accepting any numeric representation.
func (m Metadata) GetInt(key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	i, err := valueconv.ToInt(v)
	if err != nil {
		return 0, false
	}
	return int(i), true
}

// scanBytes accepts the []byte or string a driver hands to Scan.
func scanBytes(value interface{}, typeName string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported Scan type for %s: %T", typeName, value)
	}
}

// decodeJSON decodes with UseNumber so integers survive a round trip.
func decodeJSON(data []byte, target interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(target)
}

// NormalizeJSONValue converts json.Number leaves produced by decodeJSON into int64/float64.
func NormalizeJSONValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, child := range t {
			t[k] = NormalizeJSONValue(child)
		}
		return t
	case Metadata:
		for k, child := range t {
			t[k] = NormalizeJSONValue(child)
		}
		return t
	case []interface{}:
		for i, child := range t {
			t[i] = NormalizeJSONValue(child)
		}
		return t
	default:
		return valueconv.Normalize(v)
	}
}

// DecodeJSONValue decodes an arbitrary JSON document keeping integers as int64.
func DecodeJSONValue(data []byte) (interface{}, error) {
	var v interface{}
	if err := decodeJSON(data, &v); err != nil {
		return nil, err
	}
	return NormalizeJSONValue(v), nil
}
