package tools

import (
	"reflect"
	"strings"
)

// BuildSchema generates a JSON Schema object from a struct using its json
// tags and an optional jsonschema tag:
//
//	type Args struct {
//	    Path string `json:"path" jsonschema:"description=File path,required"`
//	}
//
// Supported jsonschema attributes: description=..., required, enum=a|b|c.
func BuildSchema(v any) map[string]any {
	t := reflect.TypeOf(v)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return objectSchema(t)
}

func objectSchema(t reflect.Type) map[string]any {
	properties := make(map[string]any)
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag := field.Tag.Get("json"); tag != "" {
			head, _, _ := strings.Cut(tag, ",")
			if head == "-" {
				continue
			}
			if head != "" {
				name = head
			}
		}

		prop := typeSchema(field.Type)
		for _, attr := range strings.Split(field.Tag.Get("jsonschema"), ",") {
			attr = strings.TrimSpace(attr)
			switch {
			case attr == "required":
				required = append(required, name)
			case strings.HasPrefix(attr, "description="):
				prop["description"] = strings.TrimPrefix(attr, "description=")
			case strings.HasPrefix(attr, "enum="):
				var vals []any
				for _, v := range strings.Split(strings.TrimPrefix(attr, "enum="), "|") {
					vals = append(vals, v)
				}
				prop["enum"] = vals
			}
		}
		properties[name] = prop
	}

	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func typeSchema(t reflect.Type) map[string]any {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": typeSchema(t.Elem())}
	case reflect.Struct:
		return objectSchema(t)
	default:
		return map[string]any{"type": "object"}
	}
}
