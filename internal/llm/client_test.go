package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/APIExplore/api-explore-backend/internal/reporter"
	"github.com/APIExplore/api-explore-backend/internal/types"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// fakeOpenAI answers chat completions with a fixed message and records the last prompt
func fakeOpenAI(t *testing.T, answer string, lastPrompt *string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.Len(t, req.Messages, 2) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		*lastPrompt = req.Messages[1].Content

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": answer},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
}

func TestSummarize(t *testing.T) {
	var prompt string
	srv := fakeOpenAI(t, "  The second read returned 404.\n", &prompt)
	defer srv.Close()

	config := NewDefaultConfig()
	config.APIKey = "sk-test"
	config.BaseURL = srv.URL + "/v1"
	client, err := NewClient(config, zap.NewNop())
	require.NoError(t, err)

	report := &reporter.Report{
		Schema:   "items",
		Sequence: "smoke",
		Metrics:  types.Metrics{NumCalls: 2, SuccessfulCalls: 1, UnsuccessfulCalls: 1},
		Warnings: []types.Warning{{Warning: "Call 2 (getItem) returned status 404 instead of 200"}},
		Calls: []types.CallResult{
			{OperationID: "createItem", Method: "post", Response: &types.Response{Status: 201}},
			{OperationID: "getItem", Method: "get", Response: &types.Response{Status: 404}},
		},
	}

	summary, err := NewSummarizer(client, zap.NewNop()).Summarize(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, "The second read returned 404.", summary)

	assert.Contains(t, prompt, `Call sequence "smoke" against API "items"`)
	assert.Contains(t, prompt, `"op":"getItem"`)
	assert.Contains(t, prompt, "- Call 2 (getItem) returned status 404 instead of 200")
}

func TestSummarizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	config := NewDefaultConfig()
	config.APIKey = "sk-test"
	config.BaseURL = srv.URL + "/v1"

	_, err := NewSummarizer(NewOpenAIClient(config, zap.NewNop()), zap.NewNop()).
		Summarize(context.Background(), &reporter.Report{Sequence: "smoke"})
	assert.Error(t, err)
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient(&Config{Provider: "other"}, zap.NewNop())
	assert.Error(t, err)
}
