package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// jsonSchema adapts a compiled github.com/santhosh-tekuri/jsonschema/v6
// schema to the Registry's opaque Schema interface. This is the concrete,
// in-pack implementation of the otherwise-abstract validator contract
// referenced by an agent manifest's `interface.input`/`interface.output`
// `$ref` (§6, "Manifest format").
type jsonSchema struct {
	compiled *jsonschema.Schema
}

// CompileJSONSchema compiles raw JSON Schema document bytes (identified by
// url for error messages) into a Schema usable with Registry.RegisterSchema.
func CompileJSONSchema(url string, raw []byte) (Schema, error) {
	c := jsonschema.NewCompiler()
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("registry: invalid json schema %q: %w", url, err)
	}
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("registry: adding json schema resource %q: %w", url, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("registry: compiling json schema %q: %w", url, err)
	}
	return &jsonSchema{compiled: compiled}, nil
}

// Validate round-trips data through JSON so the jsonschema validator sees
// plain map/slice/number/string/bool values regardless of the concrete Go
// type passed in, matching how manifest input/output is always handled as
// opaque JSON at the durable-step serialization boundary (§4.5).
func (s *jsonSchema) Validate(data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("registry: marshaling value for validation: %w", err)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("registry: decoding value for validation: %w", err)
	}
	if err := s.compiled.Validate(v); err != nil {
		return err
	}
	return nil
}
