// Package configbinder binds loosely typed property maps (YAML sub-sections, rule
// parameters decoded from JSON) onto typed structs.
package configbinder

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// BindProperties binds properties to target using the "yaml" struct tag.
// Weakly typed input is accepted, so "3" binds to an int field and "true" to a bool.
func BindProperties(properties map[string]interface{}, target interface{}) error {
	return bind(properties, target, false)
}

// BindPropertiesStrict behaves like BindProperties but rejects keys that have no matching field.
func BindPropertiesStrict(properties map[string]interface{}, target interface{}) error {
	return bind(properties, target, true)
}

func bind(properties map[string]interface{}, target interface{}, strict bool) error {
	if len(properties) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      strict,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(properties); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return fmt.Errorf("failed to bind properties to struct %s: %w", targetType.Name(), err)
	}
	return nil
}
