package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/APIExplore/api-explore-backend/internal/types"
)

func subscribe(t *testing.T, h *Hub, srv *httptest.Server, sequence string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?sequence=" + sequence
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	require.Eventually(t, func() bool { return h.Subscribers(sequence) > 0 }, time.Second, 10*time.Millisecond)
	return ws
}

func TestPublishReachesSubscribersOfTheSequence(t *testing.T) {
	h := New(DefaultConfig(), zap.NewNop())
	srv := httptest.NewServer(h)
	defer srv.Close()

	ws := subscribe(t, h, srv, "smoke")

	h.Publish("other", types.CallResult{OperationID: "ignored"})
	h.Publish("smoke", types.CallResult{OperationID: "getItem", Response: &types.Response{Status: 200}})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, MessageTypeCall, msg.Type)
	assert.Equal(t, "smoke", msg.Sequence)
	assert.Equal(t, "getItem", msg.Call.OperationID)
	assert.Equal(t, 200, msg.Call.Response.Status)
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	h := New(Config{BufferSize: 1, WriteTimeout: time.Second, ReadTimeout: time.Second, PingInterval: time.Second}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Publish("smoke", types.CallResult{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
}

func TestUnsubscribeOnClose(t *testing.T) {
	h := New(DefaultConfig(), zap.NewNop())
	srv := httptest.NewServer(h)
	defer srv.Close()

	ws := subscribe(t, h, srv, "smoke")
	require.Equal(t, 1, h.Subscribers("smoke"))

	ws.Close()
	assert.Eventually(t, func() bool { return h.Subscribers("smoke") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeHTTPRequiresSequence(t *testing.T) {
	h := New(DefaultConfig(), zap.NewNop())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
