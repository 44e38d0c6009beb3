// Package document defines the opaque Reader document record.
//
// A Document is a JSON object whose shape is owned by the Readwise API. The
// exporter never interprets field values; it only needs the field order (for
// CSV headers and stable JSONL lines) and value equality for deduplication.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is a JSON object that remembers the order of its fields.
// Values are stored as compact raw JSON.
type Document struct {
	keys   []string
	values map[string]json.RawMessage
}

// Field is a single name/value pair used to build documents in code.
type Field struct {
	Name  string
	Value any
}

// New builds a document from fields, in the given order.
// Values are marshalled with encoding/json.
func New(fields ...Field) (Document, error) {
	var d Document
	for _, f := range fields {
		raw, err := json.Marshal(f.Value)
		if err != nil {
			return Document{}, fmt.Errorf("marshal field %q: %w", f.Name, err)
		}
		d.set(f.Name, raw)
	}
	return d, nil
}

// Parse decodes a single JSON object into a Document.
func Parse(data []byte) (Document, error) {
	var d Document
	if err := d.UnmarshalJSON(data); err != nil {
		return Document{}, err
	}
	return d, nil
}

// Len returns the number of fields.
func (d Document) Len() int {
	return len(d.keys)
}

// Keys returns field names in document order.
func (d Document) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Get returns the raw JSON value of a field.
func (d Document) Get(key string) (json.RawMessage, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Text renders a field as a flat string for tabular output.
// Strings are unquoted, null and missing fields are empty, everything else
// is the compact JSON text of the value.
func (d Document) Text(key string) string {
	raw, ok := d.values[key]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// MarshalJSON encodes the document on a single line, preserving field order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(d.values[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping field order.
// A repeated key keeps its first position and its last value.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode document: expected object, got %v", tok)
	}

	*d = Document{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode document key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decode document: unexpected key token %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode field %q: %w", key, err)
		}

		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return fmt.Errorf("compact field %q: %w", key, err)
		}
		d.set(key, compact.Bytes())
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode document end: %w", err)
	}
	return nil
}

func (d *Document) set(key string, raw json.RawMessage) {
	if d.values == nil {
		d.values = make(map[string]json.RawMessage)
	}
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = raw
}
