package builder

import (
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Nest rebuilds a nested body from keys whose segments are joined by a
// space. A segment whose property is an array wraps its value in a
// one-element array.
func Nest(flat map[string]any, schema *openapi3.Schema) map[string]any {
	out := make(map[string]any, len(flat))
	groups := make(map[string]map[string]any)

	for key, value := range flat {
		head, rest, nested := strings.Cut(key, " ")
		if !nested {
			out[head] = wrap(value, property(schema, head))
			continue
		}
		if groups[head] == nil {
			groups[head] = make(map[string]any)
		}
		groups[head][rest] = value
	}

	for head, sub := range groups {
		prop := property(schema, head)
		inner := prop
		if isArray(prop) && prop.Items != nil {
			inner = prop.Items.Value
		}
		out[head] = wrap(Nest(sub, inner), prop)
	}
	return out
}

func property(schema *openapi3.Schema, name string) *openapi3.Schema {
	if schema == nil {
		return nil
	}
	ref := schema.Properties[name]
	if ref == nil {
		return nil
	}
	return ref.Value
}

func isArray(schema *openapi3.Schema) bool {
	return schema != nil && schema.Type.Is(openapi3.TypeArray)
}

func wrap(value any, schema *openapi3.Schema) any {
	if !isArray(schema) {
		return value
	}
	if _, ok := value.([]any); ok {
		return value
	}
	return []any{value}
}
