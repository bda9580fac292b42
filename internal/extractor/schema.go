package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dshills/docproc-mcp/pkg/types"
)

// SchemaValidator compiles processor schemas once and validates extraction
// output against them.
type SchemaValidator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewSchemaValidator creates an empty validator cache
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{compiled: make(map[string]*jsonschema.Schema)}
}

// Validate checks v against schema, compiling and caching it under typeID on
// first use. Failures wrap types.ErrSchemaValidation.
func (sv *SchemaValidator) Validate(typeID string, schema map[string]any, v map[string]any) error {
	compiled, err := sv.compile(typeID, schema)
	if err != nil {
		return err
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSchemaValidation, err)
	}
	return nil
}

func (sv *SchemaValidator) compile(typeID string, schema map[string]any) (*jsonschema.Schema, error) {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if s, ok := sv.compiled[typeID]; ok {
		return s, nil
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal schema %s: %v", types.ErrSchemaValidation, typeID, err)
	}

	url := "mem://" + typeID + ".json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: load schema %s: %v", types.ErrSchemaValidation, typeID, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: compile schema %s: %v", types.ErrSchemaValidation, typeID, err)
	}
	sv.compiled[typeID] = s
	return s, nil
}

// Project drops object properties the schema does not declare, recursing
// into declared objects and array items. Values the schema says nothing
// about are returned unchanged.
func Project(schema map[string]any, v any) any {
	switch t := v.(type) {
	case map[string]any:
		props, ok := schema["properties"].(map[string]any)
		if !ok {
			return t
		}
		out := make(map[string]any, len(t))
		for k, inner := range t {
			sub, declared := props[k].(map[string]any)
			if !declared {
				continue
			}
			out[k] = Project(sub, inner)
		}
		return out
	case []any:
		items, ok := schema["items"].(map[string]any)
		if !ok {
			return t
		}
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = Project(items, inner)
		}
		return out
	default:
		return v
	}
}
