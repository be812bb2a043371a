package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keepmind9/pandabot/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getJSON(t *testing.T, handler http.Handler, path string, v interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestStatus_Health(t *testing.T) {
	engine, _ := newTestEngine(t)

	var health HealthResponse
	getJSON(t, engine.StatusHandler(), "/healthz", &health)

	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, []string{"discord"}, health.Bots)
	assert.NotEmpty(t, health.Uptime)
}

func TestStatus_Usage(t *testing.T) {
	engine, _ := newTestEngine(t)

	var empty UsageResponse
	getJSON(t, engine.StatusHandler(), "/usage", &empty)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.Commands)

	engine.dispatch(discordMessage("user-1", ".about"))
	engine.dispatch(discordMessage("user-1", ".multiply 2, 3"))
	engine.dispatch(discordMessage("user-2", ".about"))

	var resp UsageResponse
	getJSON(t, engine.StatusHandler(), "/usage", &resp)
	assert.Equal(t, uint64(3), resp.Total)
	assert.Equal(t, []usage.Entry{{Name: "about", Count: 2}, {Name: "multiply", Count: 1}}, resp.Commands)
}

func TestStatus_Commands(t *testing.T) {
	engine, _ := newTestEngine(t)

	var infos []CommandInfo
	getJSON(t, engine.StatusHandler(), "/commands", &infos)

	byName := make(map[string]CommandInfo, len(infos))
	for _, info := range infos {
		byName[info.Name] = info
	}

	require.Contains(t, byName, "cat")
	assert.Equal(t, "emoji cat", byName["cat"].Invocation)
	assert.Equal(t, "Emoji", byName["cat"].Group)
	assert.Equal(t, "emoji", byName["cat"].Bucket)
	assert.ElementsMatch(t, []string{"kitty", "neko"}, byName["cat"].Aliases)

	require.Contains(t, byName, "multiply")
	assert.Equal(t, []string{"*"}, byName["multiply"].Aliases)
	assert.Equal(t, "complicated", byName["commands"].Bucket)
}

func TestStatus_MethodNotAllowed(t *testing.T) {
	engine, _ := newTestEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/usage", nil)
	w := httptest.NewRecorder()
	engine.StatusHandler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/missing", nil)
	w = httptest.NewRecorder()
	engine.StatusHandler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
