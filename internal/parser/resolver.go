package parser

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/APIExplore/api-explore-backend/internal/types"
)

const componentsPrefix = "#/components/schemas/"

// formDataExtension marks request body properties converted from swagger 2 formData parameters
const formDataExtension = "x-formData-name"

var jsonContentTypes = []string{"application/json", "*/*"}

var formContentTypes = []string{"application/x-www-form-urlencoded", "multipart/form-data"}

// OperationErrors collects the operations of a schema that could not be resolved
type OperationErrors map[types.OperationKey]error

func (e OperationErrors) Error() string {
	keys := make([]types.OperationKey, 0, len(e))
	for key := range e {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	msgs := make([]string, 0, len(keys))
	for _, key := range keys {
		msgs = append(msgs, fmt.Sprintf("%s: %v", key, e[key]))
	}
	return strings.Join(msgs, "; ")
}

// Operations resolves every operation of the schema. Operations that fail to
// resolve are left out of the map and reported through an OperationErrors value.
func Operations(s *Schema) (types.OperationMap, error) {
	ops := make(types.OperationMap)
	failed := make(OperationErrors)
	if s.Doc.Paths == nil {
		return ops, nil
	}

	for path, pathItem := range s.Doc.Paths.Map() {
		for method, operation := range pathItem.Operations() {
			key := types.NewOperationKey(path, method)
			params, err := Resolve(operation, pathItem, s.Doc.Components)
			if err != nil {
				failed[key] = err
				continue
			}
			ops[key] = types.OperationDescriptor{
				OperationID: operation.OperationID,
				Path:        path,
				Method:      key.Method,
				Parameters:  params,
			}
		}
	}

	if len(failed) > 0 {
		return ops, failed
	}
	return ops, nil
}

// Operation resolves a single (path, method) pair
func Operation(s *Schema, path, method string) (types.OperationDescriptor, error) {
	key := types.NewOperationKey(path, method)
	if s.Doc.Paths == nil {
		return types.OperationDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownOperation, key)
	}
	pathItem := s.Doc.Paths.Value(path)
	if pathItem == nil {
		return types.OperationDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownOperation, key)
	}

	operation := findOperation(pathItem, method)
	if operation == nil {
		return types.OperationDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownOperation, key)
	}

	params, err := Resolve(operation, pathItem, s.Doc.Components)
	if err != nil {
		return types.OperationDescriptor{}, err
	}
	return types.OperationDescriptor{
		OperationID: operation.OperationID,
		Path:        path,
		Method:      key.Method,
		Parameters:  params,
	}, nil
}

// Resolve flattens the parameters of an operation into invokable descriptors.
// Object schemas referenced through $ref are expanded into one descriptor per
// leaf property, with nested names joined by a space.
func Resolve(op *openapi3.Operation, pathItem *openapi3.PathItem, components *openapi3.Components) ([]types.ParameterDescriptor, error) {
	r := &resolver{}
	if components != nil {
		r.schemas = components.Schemas
	}

	var declared openapi3.Parameters
	if pathItem != nil {
		declared = append(declared, pathItem.Parameters...)
	}
	declared = append(declared, op.Parameters...)

	var result []types.ParameterDescriptor
	for _, paramRef := range mergeParameters(declared) {
		if paramRef.Value == nil {
			return nil, &SchemaResolutionError{Ref: paramRef.Ref, Reason: "parameter has no definition"}
		}
		params, err := r.parameter(paramRef.Value)
		if err != nil {
			return nil, err
		}
		result = append(result, params...)
	}

	body, err := r.requestBody(op.RequestBody)
	if err != nil {
		return nil, err
	}
	return append(result, body...), nil
}

// mergeParameters lets operation parameters override path-item parameters
// sharing the same name and location
func mergeParameters(params openapi3.Parameters) openapi3.Parameters {
	type key struct{ name, in string }
	index := make(map[key]int)
	var merged openapi3.Parameters
	for _, p := range params {
		if p == nil {
			continue
		}
		if p.Value == nil {
			merged = append(merged, p)
			continue
		}
		k := key{p.Value.Name, p.Value.In}
		if i, ok := index[k]; ok {
			merged[i] = p
			continue
		}
		index[k] = len(merged)
		merged = append(merged, p)
	}
	return merged
}

type resolver struct {
	schemas openapi3.Schemas
}

func (r *resolver) parameter(p *openapi3.Parameter) ([]types.ParameterDescriptor, error) {
	schema := p.Schema
	if ref := refOf(p.Schema); ref != "" {
		def, err := r.lookup(ref)
		if err != nil {
			return nil, err
		}
		if len(def.Value.Properties) > 0 {
			return r.expandRef(ref, "", p.In, nil)
		}
		schema = def
	}
	return []types.ParameterDescriptor{{
		Name:     p.Name,
		In:       p.In,
		Type:     typeOf(schema),
		Required: p.Required,
		Enum:     enumOf(schema),
	}}, nil
}

func (r *resolver) lookup(ref string) (*openapi3.SchemaRef, error) {
	if !strings.HasPrefix(ref, componentsPrefix) {
		return nil, &SchemaResolutionError{Ref: ref, Reason: "only local component references are supported"}
	}
	def, ok := r.schemas[strings.TrimPrefix(ref, componentsPrefix)]
	if !ok || def == nil || def.Value == nil {
		return nil, &SchemaResolutionError{Ref: ref}
	}
	return def, nil
}

func (r *resolver) requestBody(body *openapi3.RequestBodyRef) ([]types.ParameterDescriptor, error) {
	if body == nil {
		return nil, nil
	}
	if body.Value == nil {
		return nil, &SchemaResolutionError{Ref: body.Ref, Reason: "request body has no definition"}
	}
	content := body.Value.Content
	if len(content) == 0 {
		return nil, nil
	}

	for _, contentType := range formContentTypes {
		if media := content[contentType]; media != nil && media.Schema != nil {
			return r.schema(media.Schema, types.InFormData)
		}
	}

	for _, contentType := range jsonContentTypes {
		media := content[contentType]
		if media == nil || media.Schema == nil {
			continue
		}
		in := types.InBody
		if isFormData(media.Schema) {
			in = types.InFormData
		}
		if params, err := r.schema(media.Schema, in); err != nil || len(params) > 0 {
			return params, err
		}
	}

	// first declared content type with a primitive schema
	contentTypes := make([]string, 0, len(content))
	for contentType := range content {
		contentTypes = append(contentTypes, contentType)
	}
	sort.Strings(contentTypes)
	for _, contentType := range contentTypes {
		media := content[contentType]
		if media == nil || media.Schema == nil || media.Schema.Value == nil || refOf(media.Schema) != "" {
			continue
		}
		if s := media.Schema.Value; len(s.Properties) == 0 {
			name := s.Format
			if name == "" {
				name = typeOf(media.Schema)
			}
			return []types.ParameterDescriptor{{
				Name:     name,
				In:       types.InBody,
				Type:     typeOf(media.Schema),
				Required: body.Value.Required,
				Enum:     s.Enum,
			}}, nil
		}
	}
	return nil, nil
}

// schema expands a request body schema, referenced or inline, into leaves
func (r *resolver) schema(ref *openapi3.SchemaRef, in string) ([]types.ParameterDescriptor, error) {
	if name := refOf(ref); name != "" {
		return r.expandRef(name, "", in, nil)
	}
	if ref.Value == nil || len(ref.Value.Properties) == 0 {
		return nil, nil
	}
	return r.properties(ref.Value, "", in, nil)
}

func (r *resolver) expandRef(ref, prefix, in string, chain []string) ([]types.ParameterDescriptor, error) {
	name := strings.TrimPrefix(ref, componentsPrefix)
	for _, seen := range chain {
		if seen == name {
			cycle := append(append([]string{}, chain...), name)
			return nil, &SchemaCycleError{Chain: cycle}
		}
	}

	def, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}
	if len(def.Value.Properties) == 0 && refOf(def) == "" && prefix != "" {
		// referenced primitive
		return []types.ParameterDescriptor{{
			Name: prefix,
			In:   in,
			Type: typeOf(def),
			Enum: enumOf(def),
		}}, nil
	}
	chain = append(append([]string{}, chain...), name)
	if inner := refOf(def); inner != "" && len(def.Value.Properties) == 0 {
		return r.expandRef(inner, prefix, in, chain)
	}
	return r.properties(def.Value, prefix, in, chain)
}

func (r *resolver) properties(s *openapi3.Schema, prefix, in string, chain []string) ([]types.ParameterDescriptor, error) {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}

	var result []types.ParameterDescriptor
	for _, name := range names {
		prop := s.Properties[name]
		if prop == nil {
			continue
		}
		fullName := joinName(prefix, name)

		if ref := refOf(prop); ref != "" {
			nested, err := r.expandRef(ref, fullName, in, chain)
			if err != nil {
				return nil, err
			}
			result = append(result, nested...)
			continue
		}
		if prop.Value != nil && len(prop.Value.Properties) > 0 {
			nested, err := r.properties(prop.Value, fullName, in, chain)
			if err != nil {
				return nil, err
			}
			result = append(result, nested...)
			continue
		}

		result = append(result, types.ParameterDescriptor{
			Name:     fullName,
			In:       in,
			Type:     typeOf(prop),
			Required: required[name],
			Enum:     enumOf(prop),
		})
	}
	return result, nil
}

// refOf returns the $ref of a schema, or of its items when the schema is an
// array of references
func refOf(ref *openapi3.SchemaRef) string {
	if ref == nil {
		return ""
	}
	if ref.Ref != "" {
		return ref.Ref
	}
	if ref.Value != nil && ref.Value.Type.Is(openapi3.TypeArray) && ref.Value.Items != nil {
		return ref.Value.Items.Ref
	}
	return ""
}

func typeOf(ref *openapi3.SchemaRef) string {
	if ref == nil || ref.Value == nil || ref.Value.Type == nil {
		return types.TypeNone
	}
	switch {
	case ref.Value.Type.Is(openapi3.TypeString):
		return types.TypeString
	case ref.Value.Type.Is(openapi3.TypeInteger):
		return types.TypeInteger
	case ref.Value.Type.Is(openapi3.TypeBoolean):
		return types.TypeBoolean
	}
	return types.TypeNone
}

func enumOf(ref *openapi3.SchemaRef) []any {
	if ref == nil || ref.Value == nil {
		return nil
	}
	return ref.Value.Enum
}

func isFormData(ref *openapi3.SchemaRef) bool {
	if ref.Value == nil {
		return false
	}
	for _, prop := range ref.Value.Properties {
		if prop == nil || prop.Value == nil {
			continue
		}
		if _, ok := prop.Value.Extensions[formDataExtension]; ok {
			return true
		}
	}
	return false
}

func joinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + " " + name
}

// IsResolutionFailure reports whether err came from resolving a schema
func IsResolutionFailure(err error) bool {
	var resolution *SchemaResolutionError
	var cycle *SchemaCycleError
	return errors.As(err, &resolution) || errors.As(err, &cycle)
}

// supportedMethods are the HTTP methods an operation map may contain
var supportedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
}

// SupportsMethod reports whether calls may be built for method
func SupportsMethod(method string) bool {
	for _, m := range supportedMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// BodySchema returns the JSON request body schema of an operation, with its
// top-level reference resolved, or nil when the operation has none
func BodySchema(s *Schema, path, method string) *openapi3.Schema {
	if s.Doc.Paths == nil {
		return nil
	}
	pathItem := s.Doc.Paths.Value(path)
	if pathItem == nil {
		return nil
	}
	operation := findOperation(pathItem, method)
	if operation == nil || operation.RequestBody == nil || operation.RequestBody.Value == nil {
		return nil
	}

	for _, contentType := range jsonContentTypes {
		media := operation.RequestBody.Value.Content[contentType]
		if media == nil || media.Schema == nil {
			continue
		}
		if media.Schema.Value != nil {
			return media.Schema.Value
		}
		if s.Doc.Components == nil {
			return nil
		}
		if def := s.Doc.Components.Schemas[strings.TrimPrefix(media.Schema.Ref, componentsPrefix)]; def != nil {
			return def.Value
		}
	}
	return nil
}

func findOperation(pathItem *openapi3.PathItem, method string) *openapi3.Operation {
	for m, op := range pathItem.Operations() {
		if strings.EqualFold(m, method) {
			return op
		}
	}
	return nil
}
