package transform

import (
	"sort"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/valueconv"
)

type group struct {
	keys []interface{}
	rows []model.Row
}

// aggregateData groups rows by GroupBy, sorted by group key, and reduces every aggregated
// column. Rows with a null group key are dropped. The output columns are the group columns
// followed by the aggregated columns in name order.
func aggregateData(t *model.Table, r model.AggregateData) (*model.Table, error) {
	if len(r.GroupBy) == 0 || len(r.Aggregations) == 0 {
		return t.Clone(), nil
	}
	aggColumns := make([]string, 0, len(r.Aggregations))
	for c := range r.Aggregations {
		aggColumns = append(aggColumns, c)
	}
	sort.Strings(aggColumns)
	if err := requireColumns(t, r.Type(), r.GroupBy); err != nil {
		return nil, err
	}
	if err := requireColumns(t, r.Type(), aggColumns); err != nil {
		return nil, err
	}

	index := map[string]*group{}
	var groups []*group
rows:
	for _, row := range t.Rows {
		keys := make([]interface{}, len(r.GroupBy))
		for i, c := range r.GroupBy {
			if valueconv.IsNull(row[c]) {
				continue rows
			}
			keys[i] = row[c]
		}
		k := rowKey(row, r.GroupBy)
		g, ok := index[k]
		if !ok {
			g = &group{keys: keys}
			index[k] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, row)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		for k := range groups[i].keys {
			cmp, _ := valueconv.Compare(groups[i].keys[k], groups[j].keys[k])
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})

	out := model.NewTable(append(append([]string{}, r.GroupBy...), aggColumns...)...)
	for _, g := range groups {
		row := make(model.Row, len(out.Columns))
		for i, c := range r.GroupBy {
			row[c] = g.keys[i]
		}
		for _, c := range aggColumns {
			v, err := reduce(g.rows, c, r.Aggregations[c])
			if err != nil {
				return nil, err
			}
			row[c] = v
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func reduce(rows []model.Row, column string, fn model.AggFunc) (interface{}, error) {
	values := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		if v := row[column]; !valueconv.IsNull(v) {
			values = append(values, v)
		}
	}

	switch fn {
	case model.AggCount:
		return int64(len(values)), nil
	case model.AggNUnique:
		seen := map[string]bool{}
		for _, v := range values {
			seen[valueconv.Key(v)] = true
		}
		return int64(len(seen)), nil
	case model.AggFirst:
		if len(values) == 0 {
			return nil, nil
		}
		return values[0], nil
	case model.AggLast:
		if len(values) == 0 {
			return nil, nil
		}
		return values[len(values)-1], nil
	case model.AggMin, model.AggMax:
		if len(values) == 0 {
			return nil, nil
		}
		best := values[0]
		for _, v := range values[1:] {
			cmp, _ := valueconv.Compare(v, best)
			if (fn == model.AggMin && cmp < 0) || (fn == model.AggMax && cmp > 0) {
				best = v
			}
		}
		return best, nil
	case model.AggSum, model.AggMean:
		allInts := true
		var isum int64
		var fsum float64
		for _, v := range values {
			f, ok := valueconv.ParseFloat(v)
			if !ok {
				return nil, exception.NewEtlErrorf("transform", exception.KindTransformationFault, "%s of column %q: %v is not numeric", fn, column, v)
			}
			fsum += f
			if i, ok := valueconv.Normalize(v).(int64); ok {
				isum += i
			} else {
				allInts = false
			}
		}
		if fn == model.AggMean {
			if len(values) == 0 {
				return nil, nil
			}
			return fsum / float64(len(values)), nil
		}
		if allInts {
			return isum, nil
		}
		return fsum, nil
	}
	return nil, exception.NewEtlErrorf("transform", exception.KindValidation, "unknown aggregation %q", fn)
}
