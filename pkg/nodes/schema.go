package nodes

import (
	"fmt"

	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// FieldType is the declared type of a configuration field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// Field declares one configuration field: its type, default and constraints.
type Field struct {
	Type     FieldType
	Required bool
	// Default is applied when the field is absent. Ignored for required fields.
	Default any
	// Enum restricts string fields to a closed value set when non-empty
	Enum []string
	// Min and Max bound integer and number fields when non-nil
	Min *float64
	Max *float64
}

// Schema maps configuration field names to their declarations.
type Schema map[string]Field

// Apply validates config against the schema and fills in defaults, returning
// a new map. Unknown fields pass through untouched so adapters can carry
// model-specific extras.
func (s Schema) Apply(config map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(config))
	for k, v := range config {
		out[k] = v
	}
	for name, field := range s {
		value, present := out[name]
		if !present || value == nil {
			if field.Required {
				return nil, engerrors.Validation(fmt.Sprintf("config field %q is required", name))
			}
			if field.Default != nil {
				out[name] = field.Default
			}
			continue
		}
		if err := field.check(name, value); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (f Field) check(name string, value any) error {
	switch f.Type {
	case FieldString:
		s, ok := value.(string)
		if !ok {
			return engerrors.Validation(fmt.Sprintf("config field %q must be a string", name))
		}
		if len(f.Enum) > 0 {
			for _, allowed := range f.Enum {
				if s == allowed {
					return nil
				}
			}
			return engerrors.Validation(fmt.Sprintf("config field %q must be one of %v", name, f.Enum))
		}
	case FieldInteger, FieldNumber:
		n, ok := asNumber(value)
		if !ok {
			return engerrors.Validation(fmt.Sprintf("config field %q must be a number", name))
		}
		if f.Type == FieldInteger && n != float64(int64(n)) {
			return engerrors.Validation(fmt.Sprintf("config field %q must be an integer", name))
		}
		if f.Min != nil && n < *f.Min {
			return engerrors.Validation(fmt.Sprintf("config field %q must be >= %v", name, *f.Min))
		}
		if f.Max != nil && n > *f.Max {
			return engerrors.Validation(fmt.Sprintf("config field %q must be <= %v", name, *f.Max))
		}
	case FieldBoolean:
		if _, ok := value.(bool); !ok {
			return engerrors.Validation(fmt.Sprintf("config field %q must be a boolean", name))
		}
	}
	return nil
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

// IntField reads an integer from a resolved config, falling back when absent
// or malformed. Shared by capability implementations.
func IntField(config map[string]any, name string, fallback int) int {
	if v, ok := config[name]; ok {
		if n, ok := asNumber(v); ok {
			return int(n)
		}
	}
	return fallback
}

// StringField reads a string from a resolved config with a fallback.
func StringField(config map[string]any, name, fallback string) string {
	if v, ok := config[name].(string); ok && v != "" {
		return v
	}
	return fallback
}
