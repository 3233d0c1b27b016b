package builder

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/APIExplore/api-explore-backend/internal/parser"
	"github.com/APIExplore/api-explore-backend/internal/testdata"
	"github.com/APIExplore/api-explore-backend/internal/types"
)

const itemsSchema = `{
  "openapi": "3.0.3",
  "info": {"title": "items", "version": "1.0"},
  "servers": [{"url": "http://sut.local/api/"}],
  "paths": {
    "/items": {
      "post": {
        "operationId": "createItem",
        "requestBody": {"content": {"application/json": {"schema": {"$ref": "#/components/schemas/Item"}}}},
        "responses": {"201": {"description": "created"}}
      },
      "get": {
        "operationId": "listItems",
        "parameters": [
          {"name": "limit", "in": "query", "schema": {"type": "integer"}},
          {"name": "q", "in": "query", "schema": {"type": "string"}}
        ],
        "responses": {"200": {"description": "ok"}}
      }
    },
    "/items/{id}": {
      "get": {
        "operationId": "getItem",
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "integer"}}],
        "responses": {"200": {"description": "ok"}}
      }
    },
    "/broken": {
      "post": {
        "operationId": "broken",
        "requestBody": {"content": {"application/json": {"schema": {"$ref": "#/components/schemas/Loop"}}}},
        "responses": {"200": {"description": "ok"}}
      }
    }
  },
  "components": {
    "schemas": {
      "Item": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "owner": {"$ref": "#/components/schemas/Owner"},
          "tags": {"type": "array", "items": {"$ref": "#/components/schemas/Tag"}}
        }
      },
      "Owner": {"type": "object", "properties": {"email": {"type": "string"}}},
      "Tag": {"type": "object", "properties": {"label": {"type": "string"}}},
      "Loop": {"type": "object", "properties": {"next": {"$ref": "#/components/schemas/Loop"}}}
    }
  }
}`

func setup(t *testing.T) (*Builder, *parser.Schema, types.OperationMap) {
	t.Helper()
	schema, err := parser.Load([]byte(itemsSchema))
	require.NoError(t, err)

	ops, err := parser.Operations(schema)
	require.Error(t, err, "the looping definition must fail to resolve")
	require.Contains(t, err.Error(), "POST /broken")

	return NewBuilder(testdata.NewGenerator(rand.NewSource(3)), zap.NewNop()), schema, ops
}

func param(name string, value any) types.ParameterValue {
	return types.ParameterValue{ParameterDescriptor: types.ParameterDescriptor{Name: name}, Value: value}
}

func TestBuildCreateThenRead(t *testing.T) {
	b, schema, ops := setup(t)

	entries := []types.SequenceEntry{
		{Path: "/items", Method: "post", Parameters: []types.ParameterValue{param("name", "a")}},
		{Path: "/items/{id}", Method: "get", Parameters: []types.ParameterValue{param("id", 1)}},
	}

	calls, err := b.BuildSequence(entries, schema, ops, false)
	require.NoError(t, err)
	require.Len(t, calls, 2)

	assert.Equal(t, "http://sut.local/api/items", calls[0].URL)
	assert.Equal(t, "post", calls[0].Method)
	assert.Equal(t, "createItem", calls[0].OperationID)
	assert.Equal(t, map[string]any{"name": "a"}, calls[0].RequestBody.Body)
	assert.Empty(t, calls[0].RequestBody.FormData)

	assert.Equal(t, "http://sut.local/api/items/1", calls[1].URL)
	assert.Equal(t, "get", calls[1].Method)
	assert.Equal(t, "/items/{id}", calls[1].Endpoint)
	assert.Empty(t, calls[1].RequestBody.Body)
}

func TestBuildQueryString(t *testing.T) {
	b, schema, ops := setup(t)

	calls, err := b.Build([]types.SequenceEntry{{
		Path:       "/items",
		Method:     "GET",
		Parameters: []types.ParameterValue{param("q", "a b&c"), param("limit", 10)},
	}}, schema, ops, false)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "http://sut.local/api/items?limit=10&q=a+b%26c", calls[0].URL)
}

func TestBuildNestsBody(t *testing.T) {
	b, schema, ops := setup(t)

	calls, err := b.Build([]types.SequenceEntry{{
		Path:   "/items",
		Method: "post",
		Parameters: []types.ParameterValue{
			param("name", "a"),
			param("owner email", "x@y.z"),
			param("tags label", "red"),
		},
	}}, schema, ops, false)
	require.NoError(t, err)
	require.Len(t, calls, 1)

	assert.Equal(t, map[string]any{
		"name":  "a",
		"owner": map[string]any{"email": "x@y.z"},
		"tags":  []any{map[string]any{"label": "red"}},
	}, calls[0].RequestBody.Body)
}

func TestBuildRandomized(t *testing.T) {
	b, schema, ops := setup(t)

	calls, err := b.Build([]types.SequenceEntry{
		{Path: "/items/{id}", Method: "get"},
		{Path: "/items", Method: "get"},
	}, schema, ops, true)
	require.NoError(t, err)
	require.Len(t, calls, 2)

	assert.NotContains(t, calls[0].URL, "{id}")
	assert.True(t, strings.HasPrefix(calls[1].URL, "http://sut.local/api/items?limit="))
	for _, call := range calls {
		for _, p := range call.Parameters {
			assert.NotNil(t, p.Value, p.Name)
		}
	}
}

func TestBuildSkipsUnknownOperations(t *testing.T) {
	b, schema, ops := setup(t)

	entries := []types.SequenceEntry{
		{Path: "/items/{id}", Method: "get", Parameters: []types.ParameterValue{param("id", 1)}},
		{Path: "/missing", Method: "get"},
	}

	calls, err := b.Build(entries, schema, ops, false)
	require.NoError(t, err)
	assert.Len(t, calls, 1)

	_, err = b.BuildSequence(entries, schema, ops, false)
	assert.ErrorIs(t, err, ErrSequenceMismatch)
}

func TestBuildResolutionFailure(t *testing.T) {
	b, schema, ops := setup(t)

	calls, err := b.Build([]types.SequenceEntry{
		{Path: "/items/{id}", Method: "get", Parameters: []types.ParameterValue{param("id", 1)}},
		{Path: "/broken", Method: "post"},
	}, schema, ops, false)

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, 1, buildErr.Index)
	assert.True(t, parser.IsResolutionFailure(err))
	assert.Len(t, calls, 1, "calls built before the failure are kept")

	_, err = b.BuildSequence([]types.SequenceEntry{{Path: "/broken", Method: "post"}}, schema, ops, false)
	assert.ErrorAs(t, err, &buildErr)
}

func TestBuildMissingPathParameter(t *testing.T) {
	b, schema, ops := setup(t)

	tests := []struct {
		name   string
		params []types.ParameterValue
	}{
		{name: "not supplied", params: nil},
		{name: "other name", params: []types.ParameterValue{param("itemId", 1)}},
		{name: "nil value", params: []types.ParameterValue{param("id", nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, err := b.Build([]types.SequenceEntry{
				{Path: "/items", Method: "get"},
				{Path: "/items/{id}", Method: "get", Parameters: tt.params},
			}, schema, ops, false)

			var buildErr *BuildError
			require.ErrorAs(t, err, &buildErr)
			assert.Equal(t, 1, buildErr.Index)
			assert.ErrorIs(t, err, ErrMissingPathParameter)
			assert.Contains(t, err.Error(), "{id}")
			assert.Len(t, calls, 1)
		})
	}
}
