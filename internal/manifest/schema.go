package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("manifest.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("manifest schema resource: %v", err))
	}
	return compiler.MustCompile("manifest.schema.json")
}

// ValidateSchema checks a raw manifest document against the fixed manifest
// schema before any semantic validation runs.
func ValidateSchema(raw []byte) error {
	value, err := yamlToJSONValue(raw)
	if err != nil {
		return err
	}
	if err := compiledSchema.Validate(value); err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}
	return nil
}

// yamlToJSONValue decodes YAML and renormalizes it through encoding/json so
// the schema validator sees the value shapes it expects.
func yamlToJSONValue(raw []byte) (any, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize manifest: %w", err)
	}
	var value any
	if err := json.Unmarshal(encoded, &value); err != nil {
		return nil, fmt.Errorf("normalize manifest: %w", err)
	}
	return value, nil
}
