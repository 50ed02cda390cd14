package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/valueconv"
)

// DocumentKind discriminates the Document variants.
type DocumentKind string

const (
	DocumentTabular      DocumentKind = "tabular"
	DocumentHierarchical DocumentKind = "hierarchical"
	DocumentRaw          DocumentKind = "raw"
)

// ErrUnknownDocumentKind is returned when a persisted document carries an unknown kind tag.
var ErrUnknownDocumentKind = errors.New("unknown document kind")

// Document is the payload carried by a job: a table, a JSON tree or raw bytes.
// The set of implementations is closed to this package.
type Document interface {
	Kind() DocumentKind
	isDocument()
}

// Row is one record of a Table keyed by column name.
type Row map[string]interface{}

// Table is an in-memory tabular dataset with an explicit column order.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// NewTable creates a table with the given columns and no rows.
func NewTable(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...), Rows: []Row{}}
}

// TableFromRecords builds a table from JSON-like records. Column order follows first appearance.
func TableFromRecords(records []map[string]interface{}) *Table {
	t := NewTable()
	seen := map[string]bool{}
	for _, rec := range records {
		row := make(Row, len(rec))
		for k, v := range rec {
			row[k] = valueconv.Normalize(v)
		}
		t.Rows = append(t.Rows, row)
	}
	// map iteration is random, so collect keys per record in a stable order
	for _, rec := range records {
		for _, k := range sortedKeys(rec) {
			if !seen[k] {
				seen[k] = true
				t.Columns = append(t.Columns, k)
			}
		}
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether name is one of the table's columns.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Column returns the values of one column in row order.
func (t *Table) Column(name string) []interface{} {
	out := make([]interface{}, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[name]
	}
	return out
}

// Clone deep-copies rows so rules can mutate the result freely.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{Columns: append([]string(nil), t.Columns...), Rows: make([]Row, len(t.Rows))}
	for i, r := range t.Rows {
		nr := make(Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		out.Rows[i] = nr
	}
	return out
}

// Records returns the rows as plain maps.
func (t *Table) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = map[string]interface{}(r)
	}
	return out
}

// Head returns at most n rows as records.
func (t *Table) Head(n int) []map[string]interface{} {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Clone().Records()[:n]
}

// TabularDocument wraps a Table.
type TabularDocument struct {
	Table *Table
}

func (TabularDocument) Kind() DocumentKind { return DocumentTabular }
func (TabularDocument) isDocument()        {}

// HierarchicalDocument wraps a decoded JSON value (object, array or primitive).
type HierarchicalDocument struct {
	Value interface{}
}

func (HierarchicalDocument) Kind() DocumentKind { return DocumentHierarchical }
func (HierarchicalDocument) isDocument()        {}

// DataEnvelopeKey is the object key under which API payloads carry their records.
const DataEnvelopeKey = "data"

// ErrNotTabular is returned when a hierarchical value cannot be read as records.
var ErrNotTabular = errors.New("hierarchical value is not tabular")

// Records reads the value as tabular records. An object whose "data" key holds an array is
// unwrapped to that array, an array must hold objects only and any other object is one record.
func (d HierarchicalDocument) Records() ([]map[string]interface{}, error) {
	switch v := d.Value.(type) {
	case map[string]interface{}:
		if inner, ok := v[DataEnvelopeKey].([]interface{}); ok {
			return objectsOf(inner)
		}
		return []map[string]interface{}{v}, nil
	case []interface{}:
		return objectsOf(v)
	}
	return nil, fmt.Errorf("%w: value of type %T", ErrNotTabular, d.Value)
}

func objectsOf(items []interface{}) ([]map[string]interface{}, error) {
	records := make([]map[string]interface{}, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %T, not an object", ErrNotTabular, i, item)
		}
		records = append(records, obj)
	}
	return records, nil
}

// RawFormat declares how RawDocument bytes are encoded.
type RawFormat string

const (
	RawCSV   RawFormat = "csv"
	RawJSON  RawFormat = "json"
	RawXLSX  RawFormat = "xlsx"
	RawSwift RawFormat = "swift"
	RawText  RawFormat = "text"
)

// RawDocument carries unparsed bytes plus their declared format.
type RawDocument struct {
	Format RawFormat
	Bytes  []byte
}

func (RawDocument) Kind() DocumentKind { return DocumentRaw }
func (RawDocument) isDocument()        {}

var (
	_ Document = TabularDocument{}
	_ Document = HierarchicalDocument{}
	_ Document = RawDocument{}
)

type documentEnvelope struct {
	Kind   DocumentKind    `json:"kind"`
	Table  *Table          `json:"table,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
	Format RawFormat       `json:"format,omitempty"`
	Bytes  []byte          `json:"bytes,omitempty"`
}

// MarshalDocument encodes a Document as a tagged JSON envelope. A nil document encodes as null.
func MarshalDocument(doc Document) ([]byte, error) {
	if doc == nil {
		return []byte("null"), nil
	}
	env := documentEnvelope{Kind: doc.Kind()}
	switch d := doc.(type) {
	case TabularDocument:
		env.Table = d.Table
	case HierarchicalDocument:
		raw, err := json.Marshal(d.Value)
		if err != nil {
			return nil, err
		}
		env.Value = raw
	case RawDocument:
		env.Format = d.Format
		env.Bytes = d.Bytes
	}
	return json.Marshal(env)
}

// UnmarshalDocument decodes a tagged JSON envelope. Unknown kinds fail with ErrUnknownDocumentKind.
func UnmarshalDocument(data []byte) (Document, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var env documentEnvelope
	if err := decodeJSON(data, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case DocumentTabular:
		t := env.Table
		if t == nil {
			t = NewTable()
		}
		for _, r := range t.Rows {
			for k, v := range r {
				r[k] = valueconv.Normalize(v)
			}
		}
		return TabularDocument{Table: t}, nil
	case DocumentHierarchical:
		v, err := DecodeJSONValue(env.Value)
		if err != nil {
			return nil, err
		}
		return HierarchicalDocument{Value: v}, nil
	case DocumentRaw:
		return RawDocument{Format: env.Format, Bytes: env.Bytes}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDocumentKind, env.Kind)
}

// Payload is the job input: a document plus bookkeeping attributes such as retry_count.
type Payload struct {
	Document   Document
	Attributes Metadata
}

// Attribute keys used by retries. AttrRetriedBy is set on a job once a retry of it exists.
const (
	AttrRetryCount = "retry_count"
	AttrAutoRetry  = "auto_retry"
	AttrRetriedBy  = "retried_by"
)

// RetryCount returns the retry counter, defaulting to 0.
func (p Payload) RetryCount() int {
	if n, ok := p.Attributes.GetInt(AttrRetryCount); ok {
		return n
	}
	return 0
}

type payloadJSON struct {
	Document   json.RawMessage `json:"document"`
	Attributes Metadata        `json:"attributes,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	doc, err := MarshalDocument(p.Document)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payloadJSON{Document: doc, Attributes: p.Attributes})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw payloadJSON
	if err := decodeJSON(data, &raw); err != nil {
		return err
	}
	doc, err := UnmarshalDocument(raw.Document)
	if err != nil {
		return err
	}
	NormalizeJSONValue(raw.Attributes)
	p.Document = doc
	p.Attributes = raw.Attributes
	return nil
}

// RetriedBy returns the id of the job that retried this one, if any.
func (p Payload) RetriedBy() (string, bool) {
	id, ok := p.Attributes.GetString(AttrRetriedBy)
	return id, ok && id != ""
}

// Value implements driver.Valuer.
func (p Payload) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (p *Payload) Scan(value interface{}) error {
	b, err := scanBytes(value, "Payload")
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*p = Payload{}
		return nil
	}
	return json.Unmarshal(b, p)
}

// Clone copies the attribute map; the document itself is shared.
func (p Payload) Clone() Payload {
	return Payload{Document: CloneDocument(p.Document), Attributes: p.Attributes.Clone()}
}

// CloneDocument deep-copies the table rows, JSON tree or bytes held by doc.
func CloneDocument(doc Document) Document {
	switch d := doc.(type) {
	case TabularDocument:
		return TabularDocument{Table: d.Table.Clone()}
	case HierarchicalDocument:
		return HierarchicalDocument{Value: cloneValue(d.Value)}
	case RawDocument:
		return RawDocument{Format: d.Format, Bytes: slices.Clone(d.Bytes)}
	}
	return doc
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, x := range t {
			out[k] = cloneValue(x)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	}
	return v
}
