package transform

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/valueconv"
)

// ApplyRule runs one decoded rule against t and returns the resulting table. t is not modified.
// defaultPolicy is used by validate_data_types when the rule sets no on_failure.
func ApplyRule(t *model.Table, rule model.Rule, defaultPolicy model.CoercionPolicy) (*model.Table, error) {
	switch r := rule.(type) {
	case model.RemoveDuplicates:
		return removeDuplicates(t, r)
	case model.HandleNulls:
		return handleNulls(t, r)
	case model.NormalizeText:
		return normalizeText(t, r), nil
	case model.ValidateDataTypes:
		if r.OnFailure == "" {
			r.OnFailure = defaultPolicy
		}
		return validateDataTypes(t, r)
	case model.FilterRows:
		return filterRows(t, r)
	case model.AggregateData:
		return aggregateData(t, r)
	}
	return nil, exception.NewEtlErrorf("transform", exception.KindUnsupportedInput, "no implementation for rule %T", rule)
}

func requireColumns(t *model.Table, rule model.RuleType, columns []string) error {
	for _, c := range columns {
		if !t.HasColumn(c) {
			return exception.NewEtlErrorf("transform", exception.KindTransformationFault, "%s: column %q does not exist", rule, c)
		}
	}
	return nil
}

func rowKey(r model.Row, columns []string) string {
	var b strings.Builder
	for _, c := range columns {
		b.WriteString(valueconv.Key(r[c]))
		b.WriteByte(0x1f)
	}
	return b.String()
}

func removeDuplicates(t *model.Table, r model.RemoveDuplicates) (*model.Table, error) {
	subset := r.SubsetColumns
	if len(subset) == 0 {
		subset = t.Columns
	} else if err := requireColumns(t, r.Type(), subset); err != nil {
		return nil, err
	}

	keep := make([]bool, len(t.Rows))
	seen := make(map[string]bool, len(t.Rows))
	mark := func(i int) {
		k := rowKey(t.Rows[i], subset)
		if !seen[k] {
			seen[k] = true
			keep[i] = true
		}
	}
	if r.Keep == model.KeepLast {
		for i := len(t.Rows) - 1; i >= 0; i-- {
			mark(i)
		}
	} else {
		for i := range t.Rows {
			mark(i)
		}
	}

	out := t.Clone()
	kept := make([]model.Row, 0, len(seen))
	for i, row := range out.Rows {
		if keep[i] {
			kept = append(kept, row)
		}
	}
	out.Rows = kept
	return out, nil
}

func handleNulls(t *model.Table, r model.HandleNulls) (*model.Table, error) {
	columns := r.Columns
	if len(columns) == 0 {
		columns = t.Columns
	} else if err := requireColumns(t, r.Type(), columns); err != nil {
		return nil, err
	}

	out := t.Clone()
	switch r.Strategy {
	case model.NullDrop:
		kept := out.Rows[:0]
		for _, row := range out.Rows {
			hasNull := false
			for _, c := range columns {
				if valueconv.IsNull(row[c]) {
					hasNull = true
					break
				}
			}
			if !hasNull {
				kept = append(kept, row)
			}
		}
		out.Rows = kept
	case model.NullFill:
		fill := valueconv.Normalize(r.FillValue)
		if valueconv.IsNull(fill) {
			return out, nil
		}
		for _, row := range out.Rows {
			for _, c := range columns {
				if valueconv.IsNull(row[c]) {
					row[c] = fill
				}
			}
		}
	case model.NullForwardFill:
		for _, c := range columns {
			var last interface{}
			for _, row := range out.Rows {
				if valueconv.IsNull(row[c]) {
					row[c] = last
					continue
				}
				last = row[c]
			}
		}
	}
	return out, nil
}

var specialChars = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

func normalizeText(t *model.Table, r model.NormalizeText) *model.Table {
	requested := make(map[model.TextOp]bool, len(r.Operations))
	for _, op := range r.Operations {
		requested[op] = true
	}
	out := t.Clone()
	for _, c := range r.Columns {
		if !out.HasColumn(c) {
			continue
		}
		for _, row := range out.Rows {
			v := row[c]
			if valueconv.IsNull(v) {
				continue
			}
			s := valueconv.Format(v)
			for _, op := range model.TextOpOrder {
				if !requested[op] {
					continue
				}
				switch op {
				case model.TextLower:
					s = strings.ToLower(s)
				case model.TextUpper:
					s = strings.ToUpper(s)
				case model.TextStrip:
					s = strings.TrimSpace(s)
				case model.TextRemoveSpecialChars:
					s = specialChars.ReplaceAllString(s, "")
				}
			}
			row[c] = s
		}
	}
	return out
}

func coerce(v interface{}, target model.TargetType) (interface{}, error) {
	switch target {
	case model.TargetInt:
		return valueconv.ToInt(v)
	case model.TargetFloat:
		return valueconv.ToFloat(v)
	case model.TargetDatetime:
		return valueconv.ToTime(v)
	case model.TargetString:
		return valueconv.Format(v), nil
	}
	return nil, fmt.Errorf("unknown target type %q", target)
}

func validateDataTypes(t *model.Table, r model.ValidateDataTypes) (*model.Table, error) {
	columns := make([]string, 0, len(r.TypeMappings))
	for c := range r.TypeMappings {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	out := t.Clone()
	for _, c := range columns {
		if !out.HasColumn(c) {
			continue
		}
		target := r.TypeMappings[c]
		converted, err := coerceColumn(out, c, target, r.OnFailure)
		if err != nil {
			return nil, err
		}
		if converted == nil {
			// keepOriginal: the column stays as it was
			continue
		}
		for i, row := range out.Rows {
			row[c] = converted[i]
		}
	}
	return out, nil
}

// coerceColumn converts every non-null value of column c. It returns nil without error when a
// value fails under the keepOriginal policy.
func coerceColumn(t *model.Table, c string, target model.TargetType, policy model.CoercionPolicy) ([]interface{}, error) {
	converted := make([]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		v := row[c]
		if valueconv.IsNull(v) {
			continue
		}
		cv, err := coerce(v, target)
		if err == nil {
			converted[i] = cv
			continue
		}
		switch policy {
		case model.CoerceFail:
			return nil, exception.NewEtlErrorf("transform", exception.KindCoercionFailure, "column %q row %d: cannot coerce to %s", c, i, target, err)
		case model.CoerceNullify:
			converted[i] = nil
		default:
			return nil, nil
		}
	}
	return converted, nil
}

func matches(cell interface{}, cond model.Condition) bool {
	switch cond.Operator {
	case model.OpEquals:
		return valueconv.Equal(cell, cond.Value)
	case model.OpNotEquals:
		return !valueconv.Equal(cell, cond.Value)
	case model.OpGreaterThan:
		cmp, ok := valueconv.Compare(cell, cond.Value)
		return ok && cmp > 0
	case model.OpLessThan:
		cmp, ok := valueconv.Compare(cell, cond.Value)
		return ok && cmp < 0
	case model.OpContains:
		return !valueconv.IsNull(cell) && strings.Contains(valueconv.Format(cell), valueconv.Format(cond.Value))
	case model.OpNotNull:
		return !valueconv.IsNull(cell)
	case model.OpIsNull:
		return valueconv.IsNull(cell)
	}
	return false
}

// filterRows applies conditions in order. A condition on a missing column is ignored.
func filterRows(t *model.Table, r model.FilterRows) (*model.Table, error) {
	out := t.Clone()
	for _, cond := range r.Conditions {
		if !out.HasColumn(cond.Column) {
			continue
		}
		kept := out.Rows[:0]
		for _, row := range out.Rows {
			if matches(row[cond.Column], cond) {
				kept = append(kept, row)
			}
		}
		out.Rows = kept
	}
	return out, nil
}
