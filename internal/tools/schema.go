package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

var compileCache sync.Map

// compileSchema compiles a JSON-Schema map, caching by its marshaled form so
// repeated validation of the same tool definition doesn't recompile.
func compileSchema(toolName string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", toolName, err)
	}
	key := string(raw)
	if cached, ok := compileCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(toolName+".schema.json", bytesReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", toolName, err)
	}
	compiled, err := compiler.Compile(toolName + ".schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", toolName, err)
	}
	compileCache.Store(key, compiled)
	return compiled, nil
}

// validateInput checks input against a tool's declared schema. A nil or
// empty schema accepts anything.
func validateInput(toolName string, schema map[string]any, input json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	compiled, err := compileSchema(toolName, schema)
	if err != nil {
		return err
	}
	var decoded any
	if len(input) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(input, &decoded); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	if err := compiled.Validate(decoded); err != nil {
		return err
	}
	return nil
}
