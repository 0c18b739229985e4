package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed v3.schema.json
var v3Schema []byte

const v3SchemaID = "inmemory://manifest/v3"

// CheckV3 validates a generation-3 manifest against the published manifest
// schema. The result is advisory: callers surface it as a warning, never as
// a reason to reject the manifest.
func CheckV3(raw []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(v3SchemaID, bytes.NewReader(v3Schema)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(v3SchemaID)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
