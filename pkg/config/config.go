// Package config loads the YAML files that drive the scheduler and seed the
// ledger store.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// readYAML decodes path twice: once into a generic document that is checked
// against schema, then into dest.
func readYAML(path string, schema string, dest any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var document any
	if err := yaml.Unmarshal(data, &document); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if document == nil {
		return fmt.Errorf("config file %s is empty", path)
	}

	if err := validateSchema(schema, document); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

func validateSchema(schema string, document any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(document),
	)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errors []string
		for _, e := range result.Errors() {
			errors = append(errors, e.String())
		}

		return fmt.Errorf("schema validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
