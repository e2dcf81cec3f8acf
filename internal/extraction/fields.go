package extraction

import (
	"fmt"
	"strings"
)

// FieldKind is the JSON shape a step field must have.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindArray  FieldKind = "array"
	KindNumber FieldKind = "number"
	KindObject FieldKind = "object"
)

// Field describes one output field of a step.
type Field struct {
	Name     string
	Kind     FieldKind
	Required bool
	MinItems int
}

// checkFields returns one message per required field that is missing or has
// the wrong shape. Numbers must lie in [0,1].
func checkFields(content map[string]any, fields []Field) []string {
	var errs []string
	for _, f := range fields {
		v, ok := content[f.Name]
		if !ok || v == nil {
			if f.Required {
				errs = append(errs, fmt.Sprintf("%s is missing", f.Name))
			}
			continue
		}
		switch f.Kind {
		case KindString:
			s, ok := v.(string)
			if !ok {
				errs = append(errs, fmt.Sprintf("%s is not a string", f.Name))
			} else if f.Required && strings.TrimSpace(s) == "" {
				errs = append(errs, fmt.Sprintf("%s is empty", f.Name))
			}
		case KindArray:
			items, ok := v.([]any)
			if !ok {
				errs = append(errs, fmt.Sprintf("%s is not a list", f.Name))
			} else if len(items) < f.MinItems {
				errs = append(errs, fmt.Sprintf("%s has %d items, need %d", f.Name, len(items), f.MinItems))
			}
		case KindNumber:
			n, ok := v.(float64)
			if !ok {
				errs = append(errs, fmt.Sprintf("%s is not a number", f.Name))
			} else if n < 0 || n > 1 {
				errs = append(errs, fmt.Sprintf("%s must be within [0,1]", f.Name))
			}
		case KindObject:
			if _, ok := v.(map[string]any); !ok {
				errs = append(errs, fmt.Sprintf("%s is not an object", f.Name))
			}
		}
	}
	return errs
}

// completeness is the share of required fields carrying a non-empty value.
func completeness(content map[string]any, fields []Field) float64 {
	required, filled := 0, 0
	for _, f := range fields {
		if !f.Required {
			continue
		}
		required++
		if filledValue(content[f.Name]) {
			filled++
		}
	}
	if required == 0 {
		return 1
	}
	return float64(filled) / float64(required)
}

func filledValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// schemaFor renders the fields as a JSON schema object.
func schemaFor(fields []Field) map[string]any {
	props := map[string]any{}
	var required []string
	for _, f := range fields {
		prop := map[string]any{"type": string(f.Kind)}
		switch f.Kind {
		case KindArray:
			if f.MinItems > 0 {
				prop["minItems"] = f.MinItems
			}
		case KindNumber:
			prop["minimum"] = 0
			prop["maximum"] = 1
		}
		props[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func listField(m map[string]any, key string) []any {
	if items, ok := m[key].([]any); ok {
		return items
	}
	return nil
}

func numberField(m map[string]any, key string) (float64, bool) {
	n, ok := m[key].(float64)
	return n, ok
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
