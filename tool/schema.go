package tool

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Primitive type literals accepted in input schemas.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

var validTypes = map[string]struct{}{
	TypeString:  {},
	TypeInteger: {},
	TypeNumber:  {},
	TypeBoolean: {},
	TypeArray:   {},
	TypeObject:  {},
}

// Property declares one argument of a tool.
type Property struct {
	Type        string
	Description string
}

// Schema is the JSON-Schema-like description of a tool's arguments.
type Schema struct {
	Required   []string
	Properties map[string]Property
	// Order fixes the rendering order of Properties; names not listed are
	// appended alphabetically.
	Order []string
}

// Map renders the schema as the JSON object advertised in tools/list.
func (s Schema) Map() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for _, name := range s.propertyNames() {
		prop := s.Properties[name]
		entry := map[string]any{"type": prop.Type}
		if prop.Description != "" {
			entry["description"] = prop.Description
		}
		props[name] = entry
	}
	out := map[string]any{
		"type":       TypeObject,
		"properties": props,
	}
	if len(s.Required) > 0 {
		out["required"] = slices.Clone(s.Required)
	}
	return out
}

func (s Schema) check() error {
	for name, prop := range s.Properties {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty property name", ErrInvalidDescriptor)
		}
		if _, ok := validTypes[prop.Type]; !ok {
			return fmt.Errorf("%w: property %q has unsupported type %q", ErrInvalidDescriptor, name, prop.Type)
		}
	}
	for _, name := range s.Required {
		if _, ok := s.Properties[name]; !ok {
			return fmt.Errorf("%w: required field %q is not a declared property", ErrInvalidDescriptor, name)
		}
	}
	return nil
}

func (s Schema) propertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	seen := make(map[string]struct{}, len(s.Properties))
	for _, name := range s.Order {
		if _, ok := s.Properties[name]; ok {
			names = append(names, name)
			seen[name] = struct{}{}
		}
	}
	rest := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}

// ArgumentErrorKind classifies schema-conformance failures.
type ArgumentErrorKind string

const (
	ArgumentMissing ArgumentErrorKind = "missing"
	ArgumentInvalid ArgumentErrorKind = "invalid"
)

// ArgumentError reports a schema-conformance failure. For missing arguments
// Fields lists every absent required field in declaration order; for invalid
// arguments it names the first mistyped field.
type ArgumentError struct {
	Kind     ArgumentErrorKind
	Fields   []string
	Expected string
}

func (e *ArgumentError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case ArgumentMissing:
		if len(e.Fields) == 1 {
			return fmt.Sprintf("Missing required argument '%s'", e.Fields[0])
		}
		quoted := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			quoted = append(quoted, "'"+f+"'")
		}
		return "Missing required arguments " + strings.Join(quoted, ", ")
	default:
		field := ""
		if len(e.Fields) > 0 {
			field = e.Fields[0]
		}
		return fmt.Sprintf("Invalid argument '%s': expected %s", field, e.Expected)
	}
}

// Validate checks args against the schema: every required field must be
// present, and every present declared field must match its primitive type.
// Undeclared arguments are passed through untouched.
func Validate(schema Schema, args Arguments) error {
	var missing []string
	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ArgumentError{Kind: ArgumentMissing, Fields: missing}
	}

	for _, name := range schema.propertyNames() {
		value, ok := args[name]
		if !ok {
			continue
		}
		want := schema.Properties[name].Type
		if !matchesType(value, want) {
			return &ArgumentError{Kind: ArgumentInvalid, Fields: []string{name}, Expected: want}
		}
	}
	return nil
}

func matchesType(value any, want string) bool {
	switch want {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case TypeInteger:
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == math.Trunc(v) && !math.IsInf(v, 0)
		}
		return false
	case TypeArray:
		_, ok := value.([]any)
		return ok
	case TypeObject:
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
