// Package schema infers structural schemas from ingested documents.
package schema

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// Detection method tags.
const (
	MethodTabular = "tabular_profiling"
	MethodJSON    = "json_structure_analysis"
	MethodSwift   = "swift_message_parsing"
)

const (
	confidenceHigh  = 0.9
	confidenceSwift = 0.85
	confidenceLow   = 0.5
	// confidenceRaw is reported for bytes that were never decoded.
	confidenceRaw = 0.1

	sampleSize = 5
)

// ErrUnsupportedSourceKind is wrapped when Detect receives a kind it has no strategy for.
var ErrUnsupportedSourceKind = errors.New("unsupported source kind")

// Ref links a detection to the source and job it was run for. Both are optional.
type Ref struct {
	SourceID *string
	JobID    *string
}

// Detector profiles documents and persists every result.
type Detector struct {
	repo repository.SchemaRepository
}

// NewDetector creates a Detector.
func NewDetector(repo repository.SchemaRepository) *Detector {
	return &Detector{repo: repo}
}

// Detect dispatches on kind. Shapes that do not fit the kind degrade to a low confidence
// result; only an unknown kind fails.
func (d *Detector) Detect(ctx context.Context, doc model.Document, kind model.SourceKind, ref Ref) (*model.DetectedSchema, error) {
	var detected *model.DetectedSchema
	switch kind {
	case model.SourceKindTabular:
		detected = detectTabular(doc)
	case model.SourceKindJSON:
		detected = detectJSON(doc)
	case model.SourceKindSwift:
		detected = detectSwift(doc)
	default:
		return nil, exception.NewEtlErrorf("schema", exception.KindUnsupportedInput, "cannot detect schema", ErrUnsupportedSourceKind)
	}

	now := time.Now()
	detected.ID = model.NewID()
	detected.SourceKind = kind
	detected.SourceID = ref.SourceID
	detected.JobID = ref.JobID
	detected.CreatedAt = now
	detected.UpdatedAt = now

	if err := d.repo.SaveSchema(ctx, detected); err != nil {
		return nil, err
	}
	logger.Debugf("Schema '%s' detected (kind: %s, method: %s, confidence: %.2f).", detected.ID, kind, detected.Method, detected.Confidence)
	return detected, nil
}

// Approve sets the approval flag of a stored schema.
func (d *Detector) Approve(ctx context.Context, schemaID, approverID string) (*model.DetectedSchema, error) {
	s, err := d.repo.FindSchemaByID(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	s.Approved = true
	s.ApprovedBy = &approverID
	s.UpdatedAt = time.Now()
	if err := d.repo.UpdateSchema(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func rawFallback(doc model.Document, method string) *model.DetectedSchema {
	return &model.DetectedSchema{RootType: "raw", Fields: model.FieldList{}, Confidence: confidenceRaw, Method: method, Sample: []interface{}{}}
}

// asTable coerces hierarchical documents into a table: an array of objects (bare or under a
// "data" key) becomes rows and any other object becomes one row.
func asTable(doc model.Document) (*model.Table, bool) {
	switch d := doc.(type) {
	case model.TabularDocument:
		if d.Table == nil {
			return model.NewTable(), true
		}
		return d.Table, true
	case model.HierarchicalDocument:
		records, err := d.Records()
		if err != nil {
			return nil, false
		}
		return model.TableFromRecords(records), true
	}
	return nil, false
}

func detectTabular(doc model.Document) *model.DetectedSchema {
	t, ok := asTable(doc)
	if !ok {
		return rawFallback(doc, MethodTabular)
	}
	s := &model.DetectedSchema{RootType: "table", Fields: model.FieldList{}, RowCount: t.Len(), Method: MethodTabular, Sample: []interface{}{}}
	if t.Len() == 0 {
		s.Confidence = confidenceLow
		return s
	}
	s.Confidence = confidenceHigh
	for _, col := range t.Columns {
		s.Fields = append(s.Fields, ProfileColumn(col, t.Column(col)))
	}
	for _, rec := range t.Head(sampleSize) {
		s.Sample = append(s.Sample, rec)
	}
	return s
}

func detectJSON(doc model.Document) *model.DetectedSchema {
	var value interface{}
	switch d := doc.(type) {
	case model.HierarchicalDocument:
		value = d.Value
	case model.TabularDocument:
		records := []interface{}{}
		if d.Table != nil {
			for _, r := range d.Table.Records() {
				records = append(records, r)
			}
		}
		value = records
	default:
		return rawFallback(doc, MethodJSON)
	}

	root, confidence := analyzeValue("$", value)
	s := &model.DetectedSchema{
		RootType:   root.Type,
		Root:       &root,
		Fields:     model.FieldList(root.Properties),
		Confidence: confidence,
		Method:     MethodJSON,
	}
	if s.Fields == nil {
		s.Fields = model.FieldList{}
	}
	rows := value
	if obj, ok := value.(map[string]interface{}); ok {
		if inner, ok := obj[model.DataEnvelopeKey].([]interface{}); ok {
			rows = inner
		}
	}
	switch v := rows.(type) {
	case []interface{}:
		s.RowCount = len(v)
		n := len(v)
		if n > sampleSize {
			n = sampleSize
		}
		s.Sample = append([]interface{}{}, v[:n]...)
	default:
		s.RowCount = 1
		s.Sample = []interface{}{v}
	}
	return s
}

// analyzeValue walks a JSON value. Arrays are typed from their first element only.
func analyzeValue(name string, v interface{}) (model.FieldSchema, float64) {
	f := model.FieldSchema{Name: name, Type: JSONType(v), Nullable: v == nil}
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		f.Properties = make([]model.FieldSchema, 0, len(keys))
		for _, k := range keys {
			prop, _ := analyzeValue(k, t[k])
			if prop.Type != "object" && prop.Type != "array" {
				prop.SampleValue = t[k]
			}
			f.Properties = append(f.Properties, prop)
		}
		return f, confidenceHigh
	case []interface{}:
		n := len(t)
		f.Length = &n
		if n == 0 {
			f.ItemType = "unknown"
			return f, confidenceLow
		}
		item, _ := analyzeValue("items", t[0])
		f.ItemType = item.Type
		f.Items = &item
		return f, confidenceHigh
	}
	return f, confidenceHigh
}

func detectSwift(doc model.Document) *model.DetectedSchema {
	var msg model.SwiftMessage
	switch d := doc.(type) {
	case model.RawDocument:
		msg = model.ParseSwiftMessage(string(d.Bytes), "")
	case model.HierarchicalDocument:
		m, ok := model.SwiftMessageFromValue(d.Value)
		if !ok {
			return rawFallback(doc, MethodSwift)
		}
		msg = m
	default:
		return rawFallback(doc, MethodSwift)
	}

	s := &model.DetectedSchema{
		RootType:   "swift_message",
		Fields:     make(model.FieldList, 0, len(msg.Fields)),
		RowCount:   len(msg.Fields),
		Confidence: confidenceSwift,
		Method:     MethodSwift,
		Sample:     []interface{}{msg.ToValue()},
	}
	if len(msg.Fields) == 0 {
		s.Confidence = confidenceLow
	}
	for _, field := range msg.Fields {
		s.Fields = append(s.Fields, model.FieldSchema{
			Name:        field.Code,
			FieldCode:   field.Code,
			Type:        SwiftFieldType(field.Code),
			SampleValue: field.Value,
			Required:    true,
		})
	}
	return s
}

// SwiftFieldType maps a SWIFT field code to its semantic type.
func SwiftFieldType(code string) string {
	switch code {
	case "32A", "33B":
		return "currency_amount"
	case "30", "32", "30T", "30V":
		return "date"
	}
	switch {
	case strings.HasPrefix(code, "5"):
		return "party_identifier"
	case strings.HasPrefix(code, "7"):
		return "narrative"
	}
	return "text"
}
