package exceptions

import (
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

// Corrective actions named by suggestions.
const (
	ActionConvertDataTypes  = "convert_data_types"
	ActionFillMissingValues = "fill_missing_values"
	ActionRemoveDuplicates  = "remove_duplicates"
	ActionParseDates        = "parse_dates"
	ActionFixEncoding       = "fix_encoding"
)

var suggestionTable = map[string]model.Suggestion{
	model.ExceptionDataTypeMismatch: {
		Type: "data_type_conversion", Description: "Attempt automatic data type conversion", Confidence: 0.8, Action: ActionConvertDataTypes,
	},
	model.ExceptionMissingRequiredField: {
		Type: "default_value_assignment", Description: "Assign default values to missing fields", Confidence: 0.7, Action: ActionFillMissingValues,
	},
	model.ExceptionDuplicateRecords: {
		Type: "deduplication", Description: "Remove duplicate records", Confidence: 0.9, Action: ActionRemoveDuplicates,
	},
	model.ExceptionInvalidDateFormat: {
		Type: "date_parsing", Description: "Attempt to parse dates with multiple formats", Confidence: 0.8, Action: ActionParseDates,
	},
	model.ExceptionEncodingError: {
		Type: "encoding_detection", Description: "Detect and convert character encoding", Confidence: 0.7, Action: ActionFixEncoding,
	},
}

// Suggest returns the corrective suggestions for an exception type. Types outside the table,
// including the auto-correction outcome types, get none.
func Suggest(exceptionType string) []model.Suggestion {
	s, ok := suggestionTable[exceptionType]
	if !ok {
		return nil
	}
	return []model.Suggestion{s}
}

func suggestionsToMetadata(suggestions []model.Suggestion) []interface{} {
	out := make([]interface{}, len(suggestions))
	for i, s := range suggestions {
		out[i] = suggestionToMetadata(s)
	}
	return out
}

func suggestionToMetadata(s model.Suggestion) map[string]interface{} {
	return map[string]interface{}{
		"type":        s.Type,
		"description": s.Description,
		"confidence":  s.Confidence,
		"action":      s.Action,
	}
}

func stringList(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{t}
	}
	return nil
}

// CorrectionRule builds the single rule that carries out action, using hints from the
// exception metadata: "type_mappings" (column -> target type) and "columns". ok is false when
// the action has no executable rule.
func CorrectionRule(action string, metadata model.Metadata) (model.RuleSpec, bool) {
	columns := stringList(metadata["columns"])
	switch action {
	case ActionConvertDataTypes:
		mappings := map[string]interface{}{}
		if given, ok := metadata["type_mappings"].(map[string]interface{}); ok {
			for c, t := range given {
				mappings[c] = t
			}
		} else if given, ok := metadata["type_mappings"].(model.Metadata); ok {
			for c, t := range given {
				mappings[c] = t
			}
		} else {
			for _, c := range columns {
				mappings[c] = string(model.TargetString)
			}
		}
		return model.RuleSpec{Type: model.RuleValidateDataTypes, Parameters: map[string]interface{}{"type_mappings": mappings}}, true
	case ActionFillMissingValues:
		params := map[string]interface{}{"strategy": string(model.NullFill), "fill_value": "N/A"}
		if len(columns) > 0 {
			params["columns"] = toInterfaces(columns)
		}
		return model.RuleSpec{Type: model.RuleHandleNulls, Parameters: params}, true
	case ActionRemoveDuplicates:
		return model.RuleSpec{Type: model.RuleRemoveDuplicates, Parameters: map[string]interface{}{"keep": string(model.KeepFirst)}}, true
	case ActionParseDates:
		mappings := map[string]interface{}{}
		for _, c := range columns {
			mappings[c] = string(model.TargetDatetime)
		}
		return model.RuleSpec{Type: model.RuleValidateDataTypes, Parameters: map[string]interface{}{"type_mappings": mappings}}, true
	}
	return model.RuleSpec{}, false
}

func toInterfaces(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
