// Package configbinder decodes loosely typed property maps (YAML step properties,
// adapter sections) into typed structs.
package configbinder

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// BindProperties binds a map of properties to a target struct using mapstructure.
// It uses the "yaml" tag for binding and allows weakly typed input (e.g. "50000" into an int).
// Keys not present in the target are rejected so that typos in job files surface early.
func BindProperties(properties map[string]interface{}, target interface{}) error {
	decoderConfig := &mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(properties); err != nil {
		return fmt.Errorf("failed to decode properties: %w", err)
	}
	return nil
}
