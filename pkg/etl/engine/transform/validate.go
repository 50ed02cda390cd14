package transform

import (
	"fmt"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/engine/schema"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/valueconv"
)

// CountDuplicateRows counts rows identical on every column to an earlier row.
func CountDuplicateRows(t *model.Table) int {
	seen := make(map[string]bool, t.Len())
	dups := 0
	for _, row := range t.Rows {
		k := rowKey(row, t.Columns)
		if seen[k] {
			dups++
			continue
		}
		seen[k] = true
	}
	return dups
}

// Validate runs the post-transformation quality checks. A column is flagged when its null
// count exceeds highNullThreshold of the row count.
func Validate(t *model.Table, highNullThreshold float64) model.ValidationResult {
	res := model.ValidationResult{
		TotalRows:    t.Len(),
		TotalColumns: len(t.Columns),
		NullCounts:   make(map[string]int, len(t.Columns)),
		DataTypes:    make(map[string]string, len(t.Columns)),
		Issues:       []string{},
	}
	var highNull []string
	for _, c := range t.Columns {
		values := t.Column(c)
		nulls := 0
		for _, v := range values {
			if valueconv.IsNull(v) {
				nulls++
			}
		}
		res.NullCounts[c] = nulls
		res.DataTypes[c] = schema.InferColumnType(values)
		if float64(nulls) > float64(t.Len())*highNullThreshold {
			highNull = append(highNull, c)
		}
	}
	res.DuplicateRows = CountDuplicateRows(t)

	if res.DuplicateRows > 0 {
		res.Issues = append(res.Issues, fmt.Sprintf("Found %d duplicate rows", res.DuplicateRows))
	}
	if len(highNull) > 0 {
		res.Issues = append(res.Issues, fmt.Sprintf("High null percentage in columns: %v", highNull))
	}
	res.Passed = len(res.Issues) == 0
	return res
}
