package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/configbinder"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

// RuleType names a transformation rule variant.
type RuleType string

const (
	RuleRemoveDuplicates  RuleType = "remove_duplicates"
	RuleHandleNulls       RuleType = "handle_nulls"
	RuleNormalizeText     RuleType = "normalize_text"
	RuleValidateDataTypes RuleType = "validate_data_types"
	RuleFilterRows        RuleType = "filter_rows"
	RuleAggregateData     RuleType = "aggregate_data"
)

// ErrUnknownRuleType is wrapped by DecodeRule when the type tag is not a known variant.
var ErrUnknownRuleType = errors.New("unknown rule type")

// Rule is a decoded transformation rule. The set of implementations is closed to this package.
type Rule interface {
	Type() RuleType
	isRule()
}

// KeepPolicy selects which duplicate survives.
type KeepPolicy string

const (
	KeepFirst KeepPolicy = "first"
	KeepLast  KeepPolicy = "last"
)

// RemoveDuplicates drops repeated rows, comparing SubsetColumns (all columns when empty).
type RemoveDuplicates struct {
	SubsetColumns []string   `yaml:"subset_columns"`
	Keep          KeepPolicy `yaml:"keep" validate:"omitempty,oneof=first last"`
}

// NullStrategy selects how HandleNulls treats missing values.
type NullStrategy string

const (
	NullDrop        NullStrategy = "drop"
	NullFill        NullStrategy = "fill"
	NullForwardFill NullStrategy = "forward_fill"
)

// HandleNulls drops, fills or forward-fills null values in Columns (all columns when empty).
type HandleNulls struct {
	Strategy  NullStrategy `yaml:"strategy" validate:"omitempty,oneof=drop fill forward_fill"`
	Columns   []string     `yaml:"columns"`
	FillValue interface{}  `yaml:"fill_value"`
}

// TextOp is one normalize_text operation.
type TextOp string

const (
	TextLower              TextOp = "lower"
	TextUpper              TextOp = "upper"
	TextStrip              TextOp = "strip"
	TextRemoveSpecialChars TextOp = "remove_special_chars"
)

// TextOpOrder is the fixed order in which requested operations are applied.
var TextOpOrder = []TextOp{TextLower, TextUpper, TextStrip, TextRemoveSpecialChars}

// NormalizeText rewrites string cells of Columns. Operations defaults to lower + strip.
type NormalizeText struct {
	Columns    []string `yaml:"columns"`
	Operations []TextOp `yaml:"operations" validate:"dive,oneof=lower upper strip remove_special_chars"`
}

// TargetType is a validate_data_types coercion target.
type TargetType string

const (
	TargetInt      TargetType = "int"
	TargetFloat    TargetType = "float"
	TargetDatetime TargetType = "datetime"
	TargetString   TargetType = "string"
)

// CoercionPolicy decides what happens to a value that cannot be coerced.
type CoercionPolicy string

const (
	// CoerceKeepOriginal leaves the whole column unchanged when any value fails.
	CoerceKeepOriginal CoercionPolicy = "keepOriginal"
	// CoerceNullify replaces values that fail with null.
	CoerceNullify CoercionPolicy = "nullify"
	// CoerceFail aborts the rule run with a CoercionFailure.
	CoerceFail CoercionPolicy = "fail"
)

// ValidateDataTypes coerces columns to target types.
type ValidateDataTypes struct {
	TypeMappings map[string]TargetType `yaml:"type_mappings" validate:"dive,oneof=int float datetime string"`
	OnFailure    CoercionPolicy        `yaml:"on_failure" validate:"omitempty,oneof=keepOriginal nullify fail"`
}

// FilterOperator is a filter_rows comparison.
type FilterOperator string

const (
	OpEquals      FilterOperator = "equals"
	OpNotEquals   FilterOperator = "not_equals"
	OpGreaterThan FilterOperator = "greater_than"
	OpLessThan    FilterOperator = "less_than"
	OpContains    FilterOperator = "contains"
	OpNotNull     FilterOperator = "not_null"
	OpIsNull      FilterOperator = "is_null"
)

// Condition is one filter_rows predicate.
type Condition struct {
	Column   string         `yaml:"column" validate:"required"`
	Operator FilterOperator `yaml:"operator" validate:"required,oneof=equals not_equals greater_than less_than contains not_null is_null"`
	Value    interface{}    `yaml:"value"`
}

// FilterRows keeps rows matching every condition, applied in order.
type FilterRows struct {
	Conditions []Condition `yaml:"conditions" validate:"dive"`
}

// AggFunc is a grouped reduction.
type AggFunc string

const (
	AggSum     AggFunc = "sum"
	AggMean    AggFunc = "mean"
	AggMin     AggFunc = "min"
	AggMax     AggFunc = "max"
	AggCount   AggFunc = "count"
	AggFirst   AggFunc = "first"
	AggLast    AggFunc = "last"
	AggNUnique AggFunc = "nunique"
)

// AggregateData groups by GroupBy and reduces each aggregated column.
type AggregateData struct {
	GroupBy      []string           `yaml:"group_by"`
	Aggregations map[string]AggFunc `yaml:"aggregations" validate:"dive,oneof=sum mean min max count first last nunique"`
}

func (RemoveDuplicates) Type() RuleType  { return RuleRemoveDuplicates }
func (HandleNulls) Type() RuleType       { return RuleHandleNulls }
func (NormalizeText) Type() RuleType     { return RuleNormalizeText }
func (ValidateDataTypes) Type() RuleType { return RuleValidateDataTypes }
func (FilterRows) Type() RuleType        { return RuleFilterRows }
func (AggregateData) Type() RuleType     { return RuleAggregateData }

func (RemoveDuplicates) isRule()  {}
func (HandleNulls) isRule()       {}
func (NormalizeText) isRule()     {}
func (ValidateDataTypes) isRule() {}
func (FilterRows) isRule()        {}
func (AggregateData) isRule()     {}

// RuleSpec is the persisted form of a rule: a type tag plus loosely typed parameters.
type RuleSpec struct {
	Type       RuleType               `json:"type"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

var ruleValidator = validator.New()

// DecodeRule turns a RuleSpec into its variant. Unknown tags fail with ErrUnknownRuleType
// (KindUnsupportedInput); bad parameters fail with KindValidation.
func DecodeRule(spec RuleSpec) (Rule, error) {
	var rule Rule
	switch spec.Type {
	case RuleRemoveDuplicates:
		r := RemoveDuplicates{Keep: KeepFirst}
		if err := bindRule(spec, &r); err != nil {
			return nil, err
		}
		rule = r
	case RuleHandleNulls:
		r := HandleNulls{Strategy: NullDrop}
		if err := bindRule(spec, &r); err != nil {
			return nil, err
		}
		rule = r
	case RuleNormalizeText:
		r := NormalizeText{}
		if err := bindRule(spec, &r); err != nil {
			return nil, err
		}
		if len(r.Operations) == 0 {
			r.Operations = []TextOp{TextLower, TextStrip}
		}
		rule = r
	case RuleValidateDataTypes:
		r := ValidateDataTypes{OnFailure: CoerceKeepOriginal}
		if err := bindRule(spec, &r); err != nil {
			return nil, err
		}
		rule = r
	case RuleFilterRows:
		r := FilterRows{}
		if err := bindRule(spec, &r); err != nil {
			return nil, err
		}
		rule = r
	case RuleAggregateData:
		r := AggregateData{}
		if err := bindRule(spec, &r); err != nil {
			return nil, err
		}
		rule = r
	default:
		return nil, exception.NewEtlErrorf("rule", exception.KindUnsupportedInput, "cannot decode rule %q", spec.Type, fmt.Errorf("%w: %s", ErrUnknownRuleType, spec.Type))
	}
	return rule, nil
}

func bindRule(spec RuleSpec, target interface{}) error {
	if err := configbinder.BindProperties(spec.Parameters, target); err != nil {
		return exception.NewEtlErrorf("rule", exception.KindValidation, "invalid parameters for %s", spec.Type, err)
	}
	if err := ruleValidator.Struct(target); err != nil {
		return exception.NewEtlErrorf("rule", exception.KindValidation, "invalid parameters for %s", spec.Type, err)
	}
	return nil
}

// RuleSet is an ordered list of rule specs persisted as a JSON column.
type RuleSet []RuleSpec

// Types lists the rule type of every entry in order.
func (rs RuleSet) Types() []RuleType {
	out := make([]RuleType, len(rs))
	for i, r := range rs {
		out[i] = r.Type
	}
	return out
}

// Value implements driver.Valuer.
func (rs RuleSet) Value() (driver.Value, error) {
	if rs == nil {
		return "[]", nil
	}
	data, err := json.Marshal(rs)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (rs *RuleSet) Scan(value interface{}) error {
	b, err := scanBytes(value, "RuleSet")
	if err != nil {
		return err
	}
	if len(b) == 0 {
		*rs = RuleSet{}
		return nil
	}
	var out RuleSet
	if err := decodeJSON(b, &out); err != nil {
		return fmt.Errorf("failed to unmarshal RuleSet JSON: %w", err)
	}
	for _, spec := range out {
		NormalizeJSONValue(spec.Parameters)
	}
	*rs = out
	return nil
}

// ruleSetSchema describes the accepted shape of a rule-set document.
const ruleSetSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["type"],
    "properties": {
      "type": {"type": "string", "minLength": 1},
      "parameters": {"type": "object"}
    }
  }
}`

// ParseRuleSet validates a JSON rule-set document against its schema and decodes it.
// Unknown rule types are accepted here; they are reported when the rule runs.
func ParseRuleSet(data []byte) (RuleSet, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(ruleSetSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, exception.NewEtlError("rule", exception.KindValidation, "rule set is not valid JSON", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, exception.NewEtlErrorf("rule", exception.KindValidation, "rule set does not match schema: %v", msgs)
	}
	var rs RuleSet
	if err := rs.Scan(data); err != nil {
		return nil, exception.NewEtlError("rule", exception.KindValidation, "failed to decode rule set", err)
	}
	return rs, nil
}
