package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/APIExplore/api-explore-backend/internal/types"
)

// echoHandler answers with a description of the request it received
func echoHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"method":        r.Method,
			"contentType":   r.Header.Get("Content-Type"),
			"authorization": r.Header.Get("Authorization"),
			"body":          string(body),
		})
	}
}

func TestDispatchEncodesRequest(t *testing.T) {
	srv := httptest.NewServer(echoHandler(t))
	defer srv.Close()

	client := NewClient(Config{AuthToken: "secret"}, zap.NewNop())

	tests := []struct {
		name            string
		call            types.CallDescriptor
		wantContentType string
		wantBody        string
	}{
		{
			name: "json body",
			call: types.CallDescriptor{
				URL:         srv.URL + "/items",
				Method:      "post",
				RequestBody: types.RequestBody{Body: map[string]any{"name": "pen"}},
			},
			wantContentType: "application/json",
			wantBody:        `{"name":"pen"}`,
		},
		{
			name: "form data",
			call: types.CallDescriptor{
				URL:         srv.URL + "/items",
				Method:      "put",
				RequestBody: types.RequestBody{FormData: map[string]any{"b": 2, "a": "x y", "skip": nil}},
			},
			wantContentType: "application/x-www-form-urlencoded",
			wantBody:        "a=x+y&b=2",
		},
		{
			name:     "no body",
			call:     types.CallDescriptor{URL: srv.URL + "/items", Method: "get"},
			wantBody: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := client.Dispatch(context.Background(), tt.call)
			require.NoError(t, out.Err)
			require.NotNil(t, out.Result.Response)

			assert.Equal(t, http.StatusOK, out.Result.Response.Status)
			assert.Equal(t, "application/json", out.Result.Response.ContentType)
			assert.False(t, out.Result.StartedAt.IsZero())

			echoed, ok := out.Result.Response.Data.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.wantContentType, echoed["contentType"])
			assert.Equal(t, tt.wantBody, echoed["body"])
			assert.Equal(t, "Bearer secret", echoed["authorization"])
		})
	}
}

func TestDispatchCapturesResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Length", "5")
		w.Write([]byte("hello"))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/fault", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(Config{}, zap.NewNop())

	tests := []struct {
		path            string
		wantStatus      int
		wantContentType string
		wantSize        int64
		wantData        any
	}{
		{"/text", http.StatusOK, "text/plain", 5, "hello"},
		{"/empty", http.StatusNoContent, "none specified", 0, nil},
		{"/fault", http.StatusInternalServerError, "application/json", 16, map[string]any{"error": "boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			out := client.Dispatch(context.Background(), types.CallDescriptor{URL: srv.URL + tt.path, Method: "get"})
			require.NoError(t, out.Err, "HTTP faults are normal results")
			assert.False(t, out.Unreachable())

			resp := out.Result.Response
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantContentType, resp.ContentType)
			assert.Equal(t, tt.wantSize, resp.Size)
			assert.Equal(t, tt.wantData, resp.Data)
		})
	}
}

func TestDispatchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := NewClient(Config{}, zap.NewNop()).Dispatch(context.Background(),
		types.CallDescriptor{URL: url + "/items", Method: "get", OperationID: "listItems"})

	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, ErrSutUnreachable)
	assert.True(t, out.Unreachable())
	assert.Nil(t, out.Result.Response)
	assert.Equal(t, "listItems", out.Result.OperationID)
	assert.NotEmpty(t, out.Result.Error)
}

func TestReplayKeepsRecordedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"n":2}`))
	}))
	defer srv.Close()

	prior := &types.CallResult{
		OperationID: "getItem",
		Method:      "get",
		URL:         srv.URL + "/items/1",
		DurationMs:  42,
		Response:    &types.Response{Status: 200, Data: map[string]any{"n": 1.0}},
	}

	out := NewClient(Config{}, zap.NewNop()).Replay(context.Background(), prior)
	require.NoError(t, out.Err)

	assert.Equal(t, int64(42), out.Result.DurationMs)
	assert.Equal(t, 200, out.Result.Response.Status)
	assert.Equal(t, []types.Warning{
		{Warning: "Status changed from 200 to 404"},
		{Warning: "Response data changed"},
	}, out.Result.Warnings)
	assert.Empty(t, prior.Warnings, "the recorded call is not modified")
}

func TestReplayUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"n":1}`))
	}))
	defer srv.Close()

	prior := &types.CallResult{
		Method:   "get",
		URL:      srv.URL,
		Response: &types.Response{Status: 200, Data: map[string]any{"n": 1.0}},
	}

	out := NewClient(Config{}, zap.NewNop()).Replay(context.Background(), prior)
	require.NoError(t, out.Err)
	assert.Empty(t, out.Result.Warnings)
}
