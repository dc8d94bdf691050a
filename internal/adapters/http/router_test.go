package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/adapters/loopback"
	"github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	o := orch.New(app.NewRegistry(), app.NewRoomManager(), app.SimplePolicy{Grace: time.Minute}, loopback.New(), orch.ChatOptions{})
	ctl := signal.NewSignalWSController(o, signal.Options{})
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	return SetupRouter(context.Background(), cfg, o, ctl), o
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)
	w, body := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["rooms"])

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, sessionName, cookies[0].Name)
}

func TestRoomLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	w, body := do(t, r, http.MethodPost, "/rooms", gin.H{"hostName": "Alice", "hostUserId": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "alice", body["hostUserId"])
	roomID, _ := body["roomId"].(string)
	require.NotEmpty(t, roomID)

	w, body = do(t, r, http.MethodGet, "/rooms", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["rooms"], 1)

	w, body = do(t, r, http.MethodGet, "/rooms/"+roomID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	room, _ := body["room"].(map[string]any)
	assert.Equal(t, roomID, room["id"])
	assert.EqualValues(t, 0, room["participantCount"])

	w, body = do(t, r, http.MethodGet, "/users/alice/rooms", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	rooms, _ := body["rooms"].([]any)
	require.Len(t, rooms, 1)
	assert.Equal(t, true, rooms[0].(map[string]any)["isHost"])

	w, body = do(t, r, http.MethodDelete, "/rooms/"+roomID, gin.H{"userId": "bob"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["message"])

	w, _ = do(t, r, http.MethodDelete, "/rooms/"+roomID, gin.H{"userId": "alice"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodGet, "/rooms/"+roomID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = do(t, r, http.MethodDelete, "/rooms/"+roomID, gin.H{"userId": "alice"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRoomValidation(t *testing.T) {
	r, o := newTestRouter(t)

	w, body := do(t, r, http.MethodPost, "/rooms", gin.H{"hostName": "Alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])

	w, _ = do(t, r, http.MethodPost, "/rooms", gin.H{"hostName": "   ", "hostUserId": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodDelete, "/rooms/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, o.Rooms.List())
}

func TestFailStatus(t *testing.T) {
	cases := map[error]int{
		core.ErrNotFound:    http.StatusNotFound,
		core.ErrForbidden:   http.StatusForbidden,
		core.ErrValidation:  http.StatusBadRequest,
		core.ErrRateLimited: http.StatusTooManyRequests,
		core.ErrGateway:     http.StatusInternalServerError,
	}
	for err, status := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		fail(c, err)
		assert.Equal(t, status, w.Code, err.Error())
	}
}
