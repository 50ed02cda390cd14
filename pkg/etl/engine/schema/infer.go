package schema

import (
	"math"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/valueconv"
)

// Column types produced by InferColumnType.
const (
	TypeInteger  = "integer"
	TypeFloat    = "float"
	TypeBoolean  = "boolean"
	TypeDatetime = "datetime"
	TypeString   = "string"
)

// InferColumnType resolves the type of a column from its non-null values, trying
// numeric, boolean and datetime in that order. Anything ambiguous is a string.
func InferColumnType(values []interface{}) string {
	nonNull := make([]interface{}, 0, len(values))
	for _, v := range values {
		if !valueconv.IsNull(v) {
			nonNull = append(nonNull, v)
		}
	}
	if len(nonNull) == 0 {
		return TypeString
	}
	if all(nonNull, func(v interface{}) bool { _, ok := v.(bool); return !ok && isInt(v) }) {
		return TypeInteger
	}
	if all(nonNull, func(v interface{}) bool { _, ok := v.(bool); return !ok && isFloat(v) }) {
		return TypeFloat
	}
	if all(nonNull, func(v interface{}) bool { _, ok := valueconv.ParseBool(v); return ok }) {
		return TypeBoolean
	}
	if all(nonNull, func(v interface{}) bool { _, ok := valueconv.ParseTime(v); return ok }) {
		return TypeDatetime
	}
	return TypeString
}

func isInt(v interface{}) bool {
	_, ok := valueconv.ParseInt(v)
	return ok
}

func isFloat(v interface{}) bool {
	_, ok := valueconv.ParseFloat(v)
	return ok
}

func all(values []interface{}, pred func(interface{}) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

// ProfileColumn computes the full descriptor of one column.
func ProfileColumn(name string, values []interface{}) model.FieldSchema {
	f := model.FieldSchema{Name: name, Type: InferColumnType(values)}
	seen := map[string]bool{}
	var nonNull []interface{}
	for _, v := range values {
		if valueconv.IsNull(v) {
			f.NullCount++
			continue
		}
		nonNull = append(nonNull, v)
		seen[valueconv.Key(v)] = true
	}
	f.Nullable = f.NullCount > 0
	f.UniqueValues = len(seen)
	if len(values) > 0 {
		f.NullPercentage = float64(f.NullCount) / float64(len(values)) * 100
	}
	for i := 0; i < len(nonNull) && i < 5; i++ {
		f.SampleValues = append(f.SampleValues, nonNull[i])
	}

	switch f.Type {
	case TypeInteger, TypeFloat:
		if len(nonNull) == 0 {
			break
		}
		lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
		for _, v := range nonNull {
			x, _ := valueconv.ParseFloat(v)
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
			sum += x
		}
		mean := sum / float64(len(nonNull))
		f.Min, f.Max, f.Mean = &lo, &hi, &mean
	case TypeString:
		if len(nonNull) == 0 {
			break
		}
		total, longest := 0, 0
		for _, v := range nonNull {
			n := len([]rune(valueconv.Format(v)))
			total += n
			if n > longest {
				longest = n
			}
		}
		avg := float64(total) / float64(len(nonNull))
		f.AvgLength, f.MaxLength = &avg, &longest
	}
	return f
}

// ProfileTable builds the compact snapshot used for lineage and schema diffs.
func ProfileTable(t *model.Table) *model.TableProfile {
	p := &model.TableProfile{Columns: []model.ColumnProfile{}, RowCount: t.Len()}
	if t == nil {
		return p
	}
	for _, col := range t.Columns {
		values := t.Column(col)
		cp := model.ColumnProfile{Name: col, Type: InferColumnType(values)}
		seen := map[string]bool{}
		for _, v := range values {
			if valueconv.IsNull(v) {
				cp.NullCount++
				continue
			}
			seen[valueconv.Key(v)] = true
		}
		cp.UniqueCount = len(seen)
		p.Columns = append(p.Columns, cp)
	}
	return p
}

// JSONType names the JSON type of a decoded value.
func JSONType(v interface{}) string {
	switch valueconv.Normalize(v).(type) {
	case nil:
		return "null"
	case bool:
		return TypeBoolean
	case int64:
		return TypeInteger
	case float64:
		return TypeFloat
	case string:
		return TypeString
	case map[string]interface{}, model.Metadata:
		return "object"
	case []interface{}:
		return "array"
	default:
		return "unknown"
	}
}
