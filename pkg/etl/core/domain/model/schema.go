package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FieldSchema describes one column, JSON property or SWIFT field. Only the members relevant
// to the detection method are populated.
type FieldSchema struct {
	Name           string        `json:"name"`
	Type           string        `json:"type"`
	Nullable       bool          `json:"nullable"`
	UniqueValues   int           `json:"unique_values,omitempty"`
	NullCount      int           `json:"null_count"`
	NullPercentage float64       `json:"null_percentage"`
	SampleValues   []interface{} `json:"sample_values,omitempty"`

	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Mean      *float64 `json:"mean,omitempty"`
	AvgLength *float64 `json:"avg_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`

	SampleValue interface{}   `json:"sample_value,omitempty"`
	Properties  []FieldSchema `json:"properties,omitempty"`
	ItemType    string        `json:"item_type,omitempty"`
	Items       *FieldSchema  `json:"items,omitempty"`
	Length      *int          `json:"length,omitempty"`

	FieldCode string `json:"field_code,omitempty"`
	Required  bool   `json:"required,omitempty"`
}

// Property returns the nested property with the given name.
func (f FieldSchema) Property(name string) (FieldSchema, bool) {
	for _, p := range f.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return FieldSchema{}, false
}

// FieldList is persisted as a JSON column.
type FieldList []FieldSchema

// Value implements driver.Valuer.
func (fl FieldList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (fl *FieldList) Scan(value interface{}) error {
	b, err := scanBytes(value, "FieldList")
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*fl = FieldList{}
		return nil
	}
	var out FieldList
	if err := decodeJSON(b, &out); err != nil {
		return fmt.Errorf("failed to unmarshal FieldList JSON: %w", err)
	}
	*fl = out
	return nil
}

// DetectedSchema is the profiling result of one detection call.
type DetectedSchema struct {
	ID         string        `json:"id"`
	SourceID   *string       `json:"source_id,omitempty"`
	JobID      *string       `json:"job_id,omitempty"`
	SourceKind SourceKind    `json:"source_kind"`
	// RootType is "table" for tabular data, "swift_message" for SWIFT and the JSON type otherwise.
	RootType   string        `json:"root_type"`
	Fields     FieldList     `json:"fields"`
	Root       *FieldSchema  `json:"root,omitempty"`
	RowCount   int           `json:"row_count"`
	Confidence float64       `json:"confidence"`
	Method     string        `json:"method"`
	Sample     []interface{} `json:"sample"`
	Approved   bool          `json:"approved"`
	ApprovedBy *string       `json:"approved_by,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Field returns the top-level field with the given name.
func (s *DetectedSchema) Field(name string) (FieldSchema, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// ColumnProfile is the compact per-column summary used for lineage snapshots and diffs.
type ColumnProfile struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	NullCount   int    `json:"null_count"`
	UniqueCount int    `json:"unique_count"`
}

// TableProfile is a compact schema snapshot of a table.
type TableProfile struct {
	Columns  []ColumnProfile `json:"columns"`
	RowCount int             `json:"row_count"`
}

// ColumnModification is a column whose type changed.
type ColumnModification struct {
	Column  string `json:"column"`
	OldType string `json:"old_type"`
	NewType string `json:"new_type"`
}

// SchemaDiff compares two table profiles.
type SchemaDiff struct {
	ColumnsAdded    []string             `json:"columns_added"`
	ColumnsRemoved  []string             `json:"columns_removed"`
	ColumnsModified []ColumnModification `json:"columns_modified"`
	RowCountChange  int                  `json:"row_count_change"`
}

// IsEmpty reports whether the diff records no change at all.
func (d SchemaDiff) IsEmpty() bool {
	return len(d.ColumnsAdded) == 0 && len(d.ColumnsRemoved) == 0 && len(d.ColumnsModified) == 0 && d.RowCountChange == 0
}

// CompareProfiles computes the diff from before to after. Added and removed columns follow
// the column order of the profile they come from.
func CompareProfiles(before, after *TableProfile) SchemaDiff {
	diff := SchemaDiff{ColumnsAdded: []string{}, ColumnsRemoved: []string{}, ColumnsModified: []ColumnModification{}}
	if before == nil {
		before = &TableProfile{}
	}
	if after == nil {
		after = &TableProfile{}
	}
	oldTypes := make(map[string]string, len(before.Columns))
	for _, c := range before.Columns {
		oldTypes[c.Name] = c.Type
	}
	newTypes := make(map[string]string, len(after.Columns))
	for _, c := range after.Columns {
		newTypes[c.Name] = c.Type
	}
	for _, c := range after.Columns {
		oldType, ok := oldTypes[c.Name]
		if !ok {
			diff.ColumnsAdded = append(diff.ColumnsAdded, c.Name)
			continue
		}
		if oldType != c.Type {
			diff.ColumnsModified = append(diff.ColumnsModified, ColumnModification{Column: c.Name, OldType: oldType, NewType: c.Type})
		}
	}
	for _, c := range before.Columns {
		if _, ok := newTypes[c.Name]; !ok {
			diff.ColumnsRemoved = append(diff.ColumnsRemoved, c.Name)
		}
	}
	diff.RowCountChange = after.RowCount - before.RowCount
	return diff
}

// ToMetadata renders the diff as a metadata document.
func (d SchemaDiff) ToMetadata() Metadata {
	data, _ := json.Marshal(d)
	var out Metadata
	_ = json.Unmarshal(data, &out)
	return out
}
