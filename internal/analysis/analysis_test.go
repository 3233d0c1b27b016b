package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/APIExplore/api-explore-backend/internal/types"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a    any
		b    any
		want bool
	}{
		{name: "nil", a: nil, b: nil, want: true},
		{name: "nil vs value", a: nil, b: "x", want: false},
		{name: "objects ignore key order", a: decode(t, `{"a":1,"b":2}`), b: decode(t, `{"b":2,"a":1}`), want: true},
		{name: "objects differ in keys", a: decode(t, `{"a":1}`), b: decode(t, `{"a":1,"b":null}`), want: false},
		{name: "arrays are ordered", a: decode(t, `[1,2]`), b: decode(t, `[2,1]`), want: false},
		{name: "nested arrays compared element-wise", a: decode(t, `{"x":[[1,2],[3]]}`), b: decode(t, `{"x":[[1,2],[3]]}`), want: true},
		{name: "nested arrays differ", a: decode(t, `{"x":[[1,2],[3]]}`), b: decode(t, `{"x":[[1,2],[4]]}`), want: false},
		{name: "numbers by value", a: 1, b: float64(1), want: true},
		{name: "string vs number", a: "1", b: 1, want: false},
		{name: "strings", a: "ok", b: "ok", want: true},
		{name: "array vs object", a: decode(t, `[]`), b: decode(t, `{}`), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a))
		})
	}
}

func call(opID, method string, status int, data any) types.CallResult {
	return types.CallResult{
		OperationID: opID,
		Method:      method,
		Response:    &types.Response{Status: status, Data: data},
	}
}

// anonymous builds a call to an operation the schema gives no operationId
func anonymous(method, endpoint string, status int, data any) types.CallResult {
	return types.CallResult{
		Method:   method,
		Endpoint: endpoint,
		Response: &types.Response{Status: status, Data: data},
	}
}

func TestCompareWithoutOperationIDs(t *testing.T) {
	previous := []types.CallResult{anonymous("get", "/users", 200, []any{"u"})}

	t.Run("same method and path", func(t *testing.T) {
		assert.Empty(t, Compare(previous, []types.CallResult{anonymous("get", "/users", 200, []any{"u"})}))
	})

	t.Run("different path", func(t *testing.T) {
		warnings := Compare(previous, []types.CallResult{anonymous("get", "/orders", 200, []any{"o"})})
		require.Len(t, warnings, 1)
		assert.Equal(t, "Call 1 changed operation from GET /users to GET /orders", warnings[0].Warning)
	})

	t.Run("data change names the path", func(t *testing.T) {
		warnings := Compare(previous, []types.CallResult{anonymous("get", "/users", 200, []any{"v"})})
		require.Len(t, warnings, 1)
		assert.Equal(t, "Call 1 (GET /users) returned different data than in the previous run", warnings[0].Warning)
	})
}

func TestCompare(t *testing.T) {
	run := []types.CallResult{
		call("createItem", "post", 201, map[string]any{"id": float64(1)}),
		call("getItem", "get", 200, []any{"a", "b"}),
	}

	t.Run("reflexive", func(t *testing.T) {
		assert.Empty(t, Compare(run, run))
	})

	t.Run("length mismatch only", func(t *testing.T) {
		shorter := []types.CallResult{call("other", "get", 500, nil)}
		warnings := Compare(run, shorter)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].Warning, "length changed from 2 to 1")
	})

	t.Run("operation mismatch skips status and data", func(t *testing.T) {
		current := []types.CallResult{
			call("deleteItem", "delete", 500, "boom"),
			run[1],
		}
		warnings := Compare(run, current)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].Warning, "changed operation")
	})

	t.Run("status and data each warn", func(t *testing.T) {
		current := []types.CallResult{
			run[0],
			call("getItem", "get", 404, []any{"b", "a"}),
		}
		warnings := Compare(run, current)
		require.Len(t, warnings, 2)
		assert.Contains(t, warnings[0].Warning, "status 404 instead of 200")
		assert.Contains(t, warnings[1].Warning, "different data")
	})

	t.Run("no previous run", func(t *testing.T) {
		assert.Len(t, Compare(nil, run), 1)
		assert.Empty(t, Compare(nil, nil))
	})
}

func TestAnalyzeEqualReads(t *testing.T) {
	calls := []types.CallResult{
		call("getItem", "get", 200, map[string]any{"name": "a"}),
		call("getItem", "get", 200, map[string]any{"name": "a"}),
	}

	Analyze(calls)
	assert.Equal(t, []types.Role{types.RoleStart}, calls[0].Relationships[types.ResponseEquality])
	assert.Equal(t, []types.Role{types.RoleEnd}, calls[1].Relationships[types.ResponseEquality])
	assert.NotContains(t, calls[0].Relationships, types.StateMutation)
	assert.Empty(t, MutationIntervals(calls))
}

func TestAnalyzeStateMutation(t *testing.T) {
	calls := []types.CallResult{
		call("getItem", "get", 200, map[string]any{"name": "a"}),
		call("renameItem", "put", 200, nil),
		call("getItem", "get", 200, map[string]any{"name": "b"}),
	}

	Analyze(calls)
	assert.Equal(t, []types.Role{types.RoleStart}, calls[0].Relationships[types.ResponseInequality])
	assert.Equal(t, []types.Role{types.RoleStart}, calls[0].Relationships[types.StateMutation])
	assert.Equal(t, []types.Role{types.RoleEnd}, calls[2].Relationships[types.ResponseInequality])
	assert.Equal(t, []types.Role{types.RoleEnd}, calls[2].Relationships[types.StateMutation])
	assert.Empty(t, calls[1].Relationships)
	assert.Equal(t, []Interval{{Start: 0, End: 2}}, MutationIntervals(calls))
}

func TestAnalyzePairsOperationsWithoutIDsByPath(t *testing.T) {
	calls := []types.CallResult{
		anonymous("get", "/users", 200, []any{"u"}),
		anonymous("get", "/orders", 200, []any{"o"}),
	}

	Analyze(calls)
	assert.Empty(t, calls[0].Relationships)
	assert.Empty(t, calls[1].Relationships)
	assert.Empty(t, MutationIntervals(calls))

	calls = append(calls, anonymous("get", "/users", 200, []any{"u", "v"}))
	Analyze(calls)
	assert.Equal(t, []types.Role{types.RoleStart}, calls[0].Relationships[types.StateMutation])
	assert.Equal(t, []types.Role{types.RoleEnd}, calls[2].Relationships[types.StateMutation])
	assert.Empty(t, calls[1].Relationships)
	assert.Equal(t, []Interval{{Start: 0, End: 2}}, MutationIntervals(calls))
}

func TestAnalyzeWriteInequalityIsNotMutation(t *testing.T) {
	calls := []types.CallResult{
		call("createItem", "post", 201, map[string]any{"id": float64(1)}),
		call("createItem", "post", 201, map[string]any{"id": float64(2)}),
	}

	Analyze(calls)
	assert.Contains(t, calls[0].Relationships, types.ResponseInequality)
	assert.NotContains(t, calls[0].Relationships, types.StateMutation)
	assert.Empty(t, MutationIntervals(calls))
}

func TestAnalyzeFuzz(t *testing.T) {
	calls := []types.CallResult{
		call("getItem", "get", 503, "unavailable"),
		call("getItem", "get", 503, "unavailable"),
		call("createItem", "post", 400, nil),
	}

	Analyze(calls)
	assert.Equal(t, []types.Role{types.RoleEnd}, calls[0].Relationships[types.Fuzz])
	assert.Equal(t, []types.Role{types.RoleEnd}, calls[1].Relationships[types.Fuzz])
	assert.Contains(t, calls[0].Relationships, types.ResponseEquality)
	assert.NotContains(t, calls[2].Relationships, types.Fuzz)
}

func TestAnalyzeStateIdentity(t *testing.T) {
	calls := []types.CallResult{
		call("getItem", "get", 200, "a"),
		call("getItem", "get", 200, "b"),
		call("getItem", "get", 200, "a"),
	}

	Analyze(calls)
	require.Equal(t, []Interval{{Start: 0, End: 1}, {Start: 1, End: 2}}, MutationIntervals(calls))
	assert.Equal(t, []types.Role{types.RoleStart}, calls[0].Relationships[types.StateIdentity])
	assert.Equal(t, []types.Role{types.RoleMid}, calls[1].Relationships[types.StateIdentity])
	assert.Equal(t, []types.Role{types.RoleEnd}, calls[2].Relationships[types.StateIdentity])

	// the middle call is both end and start of a mutation
	assert.Equal(t, []types.Role{types.RoleEnd, types.RoleStart}, calls[1].Relationships[types.StateMutation])
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	calls := []types.CallResult{
		call("getItem", "get", 200, "a"),
		call("getItem", "get", 200, "a"),
	}

	Analyze(calls)
	Analyze(calls)
	assert.Equal(t, []types.Role{types.RoleStart}, calls[0].Relationships[types.ResponseEquality])
}

func TestAnalyzeSkipsCallsWithoutResponse(t *testing.T) {
	calls := []types.CallResult{
		call("getItem", "get", 200, "a"),
		{OperationID: "getItem", Method: "get"},
	}

	Analyze(calls)
	assert.Empty(t, calls[0].Relationships)
	assert.Empty(t, calls[1].Relationships)
}
