package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediabridge/sfu/internal/app"
	"github.com/mediabridge/sfu/internal/config"
	"github.com/mediabridge/sfu/internal/domain"
	"github.com/mediabridge/sfu/internal/engine/enginetest"
	"github.com/mediabridge/sfu/internal/pool"
	"github.com/mediabridge/sfu/internal/registry"
)

var testCodecs = []domain.MediaCodec{
	{Kind: domain.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
	{Kind: domain.KindVideo, MimeType: "video/VP8", ClockRate: 90000},
}

func newTestServer(t *testing.T) (*gin.Engine, *app.Orchestrator, *enginetest.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng := enginetest.New()
	p, err := pool.New(context.Background(), eng, pool.Options{Size: 2})
	require.NoError(t, err)
	orch := app.NewOrchestrator(eng, p, pool.LeastLoaded{}, registry.New(), testCodecs, app.NewMetrics(prometheus.NewRegistry()))
	r := SetupRouter(&config.Config{Mode: "test"}, orch)
	return r, orch, eng
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	}
	return w, out
}

func TestHealthEndpoints(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := doJSON(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 2, body["workers"])
	assert.EqualValues(t, 0, body["rooms"])
	assert.NotEmpty(t, body["timestamp"])

	w, _ = doJSON(t, r, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r, _, _ := newTestServer(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateRoomEndpoint(t *testing.T) {
	r, _, _ := newTestServer(t)

	w, body := doJSON(t, r, http.MethodPost, "/api/rooms/room-a/create", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "room-a", body["roomId"])
	routerID := body["routerId"]
	require.NotEmpty(t, routerID)
	assert.Contains(t, body, "rtpCapabilities")

	// Repeat create returns the same router.
	w, body = doJSON(t, r, http.MethodPost, "/api/rooms/room-a/create", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, routerID, body["routerId"])
}

func TestTransportLifecycleEndpoints(t *testing.T) {
	r, _, _ := newTestServer(t)
	doJSON(t, r, http.MethodPost, "/api/rooms/room-a/create", nil)

	w, body := doJSON(t, r, http.MethodPost, "/api/rooms/room-a/transports/webrtc",
		map[string]any{"direction": "send", "userId": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	transportID, _ := body["transportId"].(string)
	require.NotEmpty(t, transportID)

	w, body = doJSON(t, r, http.MethodPost, "/api/transports/"+transportID+"/connect",
		map[string]any{"parameters": map[string]any{"sdp": "v=0 client-offer"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body, "parameters")

	w, _ = doJSON(t, r, http.MethodDelete, "/api/transports/"+transportID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Repeated close is still a 200.
	w, _ = doJSON(t, r, http.MethodDelete, "/api/transports/"+transportID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateTransportValidation(t *testing.T) {
	r, _, _ := newTestServer(t)
	doJSON(t, r, http.MethodPost, "/api/rooms/room-a/create", nil)

	w, _ := doJSON(t, r, http.MethodPost, "/api/rooms/room-a/transports/webrtc",
		map[string]any{"direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/rooms/no-such-room/transports/webrtc",
		map[string]any{"direction": "send"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProduceConsumeEndpoints(t *testing.T) {
	r, _, _ := newTestServer(t)
	doJSON(t, r, http.MethodPost, "/api/rooms/room-a/create", nil)

	_, body := doJSON(t, r, http.MethodPost, "/api/rooms/room-a/transports/webrtc",
		map[string]any{"direction": "send", "userId": "alice"})
	sendID := body["transportId"].(string)
	_, body = doJSON(t, r, http.MethodPost, "/api/rooms/room-a/transports/webrtc",
		map[string]any{"direction": "recv", "userId": "bob"})
	recvID := body["transportId"].(string)

	w, body := doJSON(t, r, http.MethodPost, "/api/transports/"+sendID+"/produce",
		map[string]any{"kind": "audio", "userId": "alice", "channelId": "general"})
	require.Equal(t, http.StatusOK, w.Code)
	producerID, _ := body["producerId"].(string)
	require.NotEmpty(t, producerID)
	assert.Equal(t, "audio", body["kind"])

	w, body = doJSON(t, r, http.MethodGet, "/api/rooms/room-a/producers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	producers, ok := body["producers"].([]any)
	require.True(t, ok)
	assert.Len(t, producers, 1)

	caps := map[string]any{"codecs": []map[string]any{
		{"kind": "audio", "mimeType": "audio/opus", "clockRate": 48000, "channels": 2},
	}}
	w, body = doJSON(t, r, http.MethodPost, "/api/transports/"+recvID+"/consume",
		map[string]any{"producerId": producerID, "rtpCapabilities": caps, "userId": "bob"})
	require.Equal(t, http.StatusOK, w.Code)
	consumerID, _ := body["consumerId"].(string)
	require.NotEmpty(t, consumerID)
	assert.Equal(t, producerID, body["producerId"])

	w, body = doJSON(t, r, http.MethodGet, "/api/rooms/room-a/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["transportCount"])
	assert.EqualValues(t, 1, body["producerCount"])
	assert.EqualValues(t, 1, body["consumerCount"])

	w, _ = doJSON(t, r, http.MethodDelete, "/api/consumers/"+consumerID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = doJSON(t, r, http.MethodDelete, "/api/producers/"+producerID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	// Deleting again stays a 200; the id was once live.
	w, _ = doJSON(t, r, http.MethodDelete, "/api/producers/"+producerID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProduceValidation(t *testing.T) {
	r, _, _ := newTestServer(t)
	doJSON(t, r, http.MethodPost, "/api/rooms/room-a/create", nil)
	_, body := doJSON(t, r, http.MethodPost, "/api/rooms/room-a/transports/webrtc",
		map[string]any{"direction": "send"})
	sendID := body["transportId"].(string)

	w, _ := doJSON(t, r, http.MethodPost, "/api/transports/"+sendID+"/produce",
		map[string]any{"kind": "screen"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/transports/no-such-transport/produce",
		map[string]any{"kind": "audio"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConsumeIncompatibleCapabilities(t *testing.T) {
	r, _, _ := newTestServer(t)
	doJSON(t, r, http.MethodPost, "/api/rooms/room-a/create", nil)
	_, body := doJSON(t, r, http.MethodPost, "/api/rooms/room-a/transports/webrtc",
		map[string]any{"direction": "send", "userId": "alice"})
	sendID := body["transportId"].(string)
	_, body = doJSON(t, r, http.MethodPost, "/api/rooms/room-a/transports/webrtc",
		map[string]any{"direction": "recv", "userId": "bob"})
	recvID := body["transportId"].(string)
	_, body = doJSON(t, r, http.MethodPost, "/api/transports/"+sendID+"/produce",
		map[string]any{"kind": "audio"})
	producerID := body["producerId"].(string)

	videoOnly := map[string]any{"codecs": []map[string]any{
		{"kind": "video", "mimeType": "video/VP8", "clockRate": 90000},
	}}
	w, _ := doJSON(t, r, http.MethodPost, "/api/transports/"+recvID+"/consume",
		map[string]any{"producerId": producerID, "rtpCapabilities": videoOnly})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/transports/"+recvID+"/consume",
		map[string]any{"rtpCapabilities": videoOnly})
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing producerId")
}

func TestCloseRoomEndpoint(t *testing.T) {
	r, orch, _ := newTestServer(t)
	doJSON(t, r, http.MethodPost, "/api/rooms/room-a/create", nil)

	w, _ := doJSON(t, r, http.MethodDelete, "/api/rooms/room-a", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, orch.Registry.RoomCount())

	w, _ = doJSON(t, r, http.MethodDelete, "/api/rooms/room-a", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	r, _, _ := newTestServer(t)
	w, body := doJSON(t, r, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "route not found", body["error"])
}
