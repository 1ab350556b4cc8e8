package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/presqr/server/internal/broadcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLiveServer(t *testing.T, registry *broadcast.Registry, origins []string) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/attendance/{courseId}", NewLiveHandler(registry, origins).HandleCourse)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialLive(t *testing.T, srv *httptest.Server, courseID string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/attendance/" + courseID
	return websocket.DefaultDialer.Dial(url, header)
}

func TestLive_receivesNewScan(t *testing.T) {
	registry := broadcast.NewRegistry(nil)
	srv := newLiveServer(t, registry, []string{"*"})
	courseID := uuid.NewString()

	ws, _, err := dialLive(t, srv, strings.ToUpper(courseID), nil)
	require.NoError(t, err)
	defer ws.Close()

	// Course IDs are normalised, so Notify with the canonical form reaches the socket
	require.Eventually(t, func() bool { return registry.Count(courseID) == 1 }, 2*time.Second, 10*time.Millisecond)

	registry.Notify(courseID)
	registry.Notify(uuid.NewString())

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev broadcast.Event
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, "new_scan", ev.Type)
}

func TestLive_unregistersOnClientClose(t *testing.T) {
	registry := broadcast.NewRegistry(nil)
	srv := newLiveServer(t, registry, []string{"*"})
	courseID := uuid.NewString()

	ws, _, err := dialLive(t, srv, courseID, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return registry.Count(courseID) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = ws.Close()

	assert.Eventually(t, func() bool { return registry.Count(courseID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestLive_registryCloseEndsConnection(t *testing.T) {
	registry := broadcast.NewRegistry(nil)
	srv := newLiveServer(t, registry, []string{"*"})
	courseID := uuid.NewString()

	ws, _, err := dialLive(t, srv, courseID, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return registry.Count(courseID) == 1 }, 2*time.Second, 10*time.Millisecond)

	registry.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestLive_rejectsInvalidCourseAndOrigin(t *testing.T) {
	registry := broadcast.NewRegistry(nil)
	srv := newLiveServer(t, registry, []string{"https://lecturer.example"})

	_, resp, err := dialLive(t, srv, "not-a-uuid", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = dialLive(t, srv, uuid.NewString(), http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	ws, _, err := dialLive(t, srv, uuid.NewString(), http.Header{"Origin": []string{"https://lecturer.example"}})
	require.NoError(t, err)
	_ = ws.Close()
}

func TestLiveConn_deliverDoesNotBlock(t *testing.T) {
	c := newLiveConn(nil)
	for i := 0; i < sendBuffer; i++ {
		require.True(t, c.Deliver(broadcast.NewScan))
	}
	assert.False(t, c.Deliver(broadcast.NewScan), "full buffer drops")

	c.Close()
	c.Close()
	assert.False(t, c.Deliver(broadcast.NewScan))
}
