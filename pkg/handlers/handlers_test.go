package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-playback-engine/pkg/attribution"
	"chat-playback-engine/pkg/clock"
	"chat-playback-engine/pkg/config"
	"chat-playback-engine/pkg/handlers"
	"chat-playback-engine/pkg/metrics"
	"chat-playback-engine/pkg/models"
	"chat-playback-engine/pkg/scenarios"
	"chat-playback-engine/pkg/server"
	"chat-playback-engine/pkg/service"
)

type testEnv struct {
	server  *httptest.Server
	service *service.Service
	clk     *clock.Manual
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests

	catalog, err := scenarios.New([]models.Scenario{{
		ID:          7,
		Name:        "Standup",
		PointOfView: "Sarah",
		Thread:      models.Thread{Title: "Daily sync", Channel: "product"},
		Turns: []models.Turn{
			{Sender: "Sarah", Role: models.RoleHuman, Content: "Hi team", LocalInput: true},
			{Sender: "Akarii", Role: models.RoleAI, Content: "Hello!", PauseOffsets: []int{2}},
		},
	}}, logger)
	require.NoError(t, err)

	cfg := &config.Config{
		InstanceID:        "test-instance",
		Port:              "0",
		Slots:             []string{"hero", "features"},
		EventBuffer:       64,
		TypingWPM:         180,
		PauseMS:           150,
		PreDelayMS:        100,
		TypingIndicatorMS: 600,
		InputStartDelayMS: 100,
		InputSettleMS:     200,
		JitterSeed:        1,
		ScrollThresholdPX: 100,
		ResizeThresholdPX: 2,
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	clk := clock.NewManual(time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC))
	svc := service.NewService(cfg, catalog, attribution.NewLogSink(logger), nil, clk, logger, m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, nil) }()

	srv := httptest.NewServer(server.NewRouter(svc, registry, logger))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})

	return &testEnv{server: srv, service: svc, clk: clk}
}

func (e *testEnv) post(t *testing.T, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp, decode(t, resp.Body)
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp, decode(t, resp.Body)
}

func decode(t *testing.T, r io.Reader) map[string]interface{} {
	t.Helper()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	var out map[string]interface{}
	if json.Unmarshal(data, &out) != nil {
		return nil
	}
	return out
}

func TestHandler_HealthAndStatus(t *testing.T) {
	env := setupTestServer(t)

	resp, body := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["redis"])

	resp, body = env.get(t, "/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["scenarios"])
	slots, ok := body["slots"].([]interface{})
	require.True(t, ok)
	assert.Len(t, slots, 2)
}

func TestHandler_Scenarios(t *testing.T) {
	env := setupTestServer(t)

	_, body := env.get(t, "/scenarios")
	list, ok := body["scenarios"].([]interface{})
	require.True(t, ok)
	require.Len(t, list, 1)
	first := list[0].(map[string]interface{})
	assert.Equal(t, "Standup", first["name"])
	assert.Equal(t, "Sarah", first["pov"])
	assert.Equal(t, float64(2), first["turns"])
}

func TestHandler_ActivateAndDeactivate(t *testing.T) {
	env := setupTestServer(t)

	resp, body := env.post(t, "/slots/hero/activate", `{"scenario_index": 0}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["no_scenario"])

	_, body = env.get(t, "/slots/hero/snapshot")
	assert.Equal(t, false, body["no_scenario"])
	snap := body["snapshot"].(map[string]interface{})
	assert.Equal(t, float64(7), snap["scenario_id"])
	assert.Equal(t, true, snap["is_live"])

	env.clk.RunUntilIdle(time.Minute)
	_, body = env.get(t, "/slots/hero/snapshot")
	snap = body["snapshot"].(map[string]interface{})
	assert.Equal(t, true, snap["is_complete"])

	resp, _ = env.post(t, "/slots/hero/deactivate", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, body = env.get(t, "/slots/hero/snapshot")
	assert.Equal(t, true, body["no_scenario"])

	assert.Eventually(t, func() bool {
		_, stats := env.get(t, "/stats")
		totals, ok := stats["totals"].(map[string]interface{})
		return ok && totals["shown"] == float64(1) && totals["completed"] == float64(1) && totals["local_input"] == float64(1)
	}, 2*time.Second, 10*time.Millisecond)

	_, body = env.get(t, "/events?limit=2")
	events := body["events"].([]interface{})
	assert.Len(t, events, 2)
}

func TestHandler_ActivateErrors(t *testing.T) {
	env := setupTestServer(t)

	resp, _ := env.post(t, "/slots/pricing/activate", `{"scenario_index": 0}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.post(t, "/slots/hero/activate", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := env.post(t, "/slots/hero/activate", `{"scenario_index": 4}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["no_scenario"])
	assert.Zero(t, env.clk.Pending())

	resp, _ = env.get(t, "/events?limit=zero")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_Metrics(t *testing.T) {
	env := setupTestServer(t)
	env.post(t, "/slots/hero/activate", `{"scenario_index": 0}`)

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `chat_playback_sessions_started_total{scenario="7"} 1`)
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(handlers.ServerMessage) bool) handlers.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg handlers.ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func TestHandler_Stream(t *testing.T) {
	env := setupTestServer(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/slots/hero/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readUntil(t, conn, func(handlers.ServerMessage) bool { return true })
	assert.Equal(t, handlers.MessageSnapshot, first.Type)
	assert.True(t, first.NoScenario)

	env.post(t, "/slots/hero/activate", `{"scenario_index": 0}`)
	live := readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Snapshot != nil })
	assert.Equal(t, 7, live.Snapshot.ScenarioID)

	env.clk.RunUntilIdle(time.Minute)
	readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Snapshot != nil && m.Snapshot.IsComplete })

	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: handlers.MessageScroll, ScrollTop: 0, ViewportHeight: 400, ContentHeight: 400}))
	require.NoError(t, conn.WriteJSON(handlers.ClientMessage{Type: handlers.MessageResize, TurnID: "7-1", Height: 500, ContentHeight: 900}))

	scroll := readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Type == handlers.MessageScroll })
	require.NotNil(t, scroll.Top)
	assert.Equal(t, 500.0, *scroll.Top)
}

func TestHandler_StreamUnknownSlot(t *testing.T) {
	env := setupTestServer(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/slots/pricing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_StreamReportsNoScenario(t *testing.T) {
	env := setupTestServer(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/slots/hero/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.NoScenario })

	env.post(t, "/slots/hero/activate", `{"scenario_index": 0}`)
	readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Snapshot != nil })

	env.post(t, "/slots/hero/deactivate", "")
	msg := readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Type == handlers.MessageSnapshot && m.Snapshot == nil })
	assert.Equal(t, handlers.MessageSnapshot, msg.Type)
	assert.True(t, msg.NoScenario)

	env.post(t, "/slots/hero/activate", `{"scenario_index": 0}`)
	readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Snapshot != nil })

	env.post(t, "/slots/hero/activate", `{"scenario_index": 9}`)
	msg = readUntil(t, conn, func(m handlers.ServerMessage) bool { return m.Type == handlers.MessageSnapshot && m.Snapshot == nil })
	assert.True(t, msg.NoScenario)
}
