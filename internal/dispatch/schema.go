package dispatch

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError reports every field JSON Schema rejected, formatted so a
// caller can see all problems in one round trip rather than one-at-a-time,
// per spec.md §4.2 step 5 ("Reject with a -32602 error enumerating
// missing/invalid fields").
type ValidationError struct {
	Tool   string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dispatch: tool %q: invalid arguments: %v", e.Tool, e.Issues)
}

// coerceTypes walks args against a compiled schema's declared property
// types and converts numeric strings to numbers and "true"/"1"/"false"/"0"
// to booleans wherever the schema expects that type, per spec.md §4.2 step 4.
// Values the schema doesn't describe, or that don't look coercible, pass
// through untouched so validation below can report the real problem.
func coerceTypes(args map[string]any, propertyTypes map[string]string) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		want, ok := propertyTypes[k]
		if !ok {
			out[k] = v
			continue
		}
		s, isString := v.(string)
		if !isString {
			out[k] = v
			continue
		}
		switch want {
		case "number", "integer":
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				out[k] = n
				continue
			}
		case "boolean":
			switch s {
			case "true", "1":
				out[k] = true
				continue
			case "false", "0":
				out[k] = false
				continue
			}
		}
		out[k] = v
	}
	return out
}

// propertyTypes extracts the top-level {name: declared type} map from a
// compiled JSON Schema object, used to drive coerceTypes.
func propertyTypes(schemaDoc map[string]any) map[string]string {
	props, _ := schemaDoc["properties"].(map[string]any)
	out := make(map[string]string, len(props))
	for name, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := prop["type"].(string); ok {
			out[name] = t
		}
	}
	return out
}

// ToolSchema pairs a tool name with its compiled JSON Schema, mirroring the
// teacher's ToolSchema/payload-schema pairing in the registry service.
type ToolSchema struct {
	Name   string
	Schema json.RawMessage
}

// compileSchema parses and compiles a tool's raw JSON Schema, adapted from
// the teacher's validatePayloadJSONAgainstSchema compile step.
func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("tool %q: unmarshal schema: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	resource := "dispatch://" + name
	if err := c.AddResource(resource, doc); err != nil {
		return nil, nil, fmt.Errorf("tool %q: add schema resource: %w", name, err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, nil, fmt.Errorf("tool %q: compile schema: %w", name, err)
	}
	return schema, doc, nil
}

// validateArgs runs a compiled schema's Validate and reduces any failure
// into the flat Issues list ValidationError reports.
func validateArgs(toolName string, schema *jsonschema.Schema, args map[string]any) error {
	if err := schema.Validate(args); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			issues := flattenValidationCauses(ve)
			if len(issues) == 0 {
				issues = []string{ve.Error()}
			}
			return &ValidationError{Tool: toolName, Issues: issues}
		}
		return &ValidationError{Tool: toolName, Issues: []string{err.Error()}}
	}
	return nil
}

func flattenValidationCauses(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		return []string{ve.Error()}
	}
	var out []string
	for _, c := range ve.Causes {
		out = append(out, flattenValidationCauses(c)...)
	}
	return out
}
