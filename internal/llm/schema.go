package llm

import "fmt"

// FieldKind is the expected JSON type of a schema field.
type FieldKind string

// Supported field kinds.
const (
	KindString     = FieldKind("string")
	KindStringList = FieldKind("string_list")
)

// Schema describes the required shape of a model's JSON output for one
// prompt. Extra fields are tolerated; missing or mistyped required fields
// fail validation, which callers treat as a model failure and fall back on.
type Schema struct {
	Name   string
	Fields map[string]FieldKind
}

// SchemaError reports which field of a payload failed validation.
type SchemaError struct {
	Schema  string
	Field   string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s: field %s: %s", e.Schema, e.Field, e.Message)
}

// Validate checks a decoded payload against the schema.
func (s Schema) Validate(payload map[string]any) error {
	for field, kind := range s.Fields {
		value, ok := payload[field]
		if !ok {
			return &SchemaError{Schema: s.Name, Field: field, Message: "missing"}
		}
		switch kind {
		case KindString:
			if _, ok := value.(string); !ok {
				return &SchemaError{Schema: s.Name, Field: field, Message: "expected a string"}
			}
		case KindStringList:
			items, ok := value.([]any)
			if !ok {
				return &SchemaError{Schema: s.Name, Field: field, Message: "expected a list"}
			}
			for _, item := range items {
				if _, ok := item.(string); !ok {
					return &SchemaError{Schema: s.Name, Field: field, Message: "expected a list of strings"}
				}
			}
		default:
			return &SchemaError{Schema: s.Name, Field: field, Message: "unknown field kind"}
		}
	}
	return nil
}

// DistillSchema is the contract for the inbox-processing prompt output.
var DistillSchema = Schema{
	Name: "distill-v1",
	Fields: map[string]FieldKind{
		"summary":    KindString,
		"details_md": KindString,
		"actions_md": KindString,
		"tags":       KindStringList,
	},
}
