package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Drop/internal/app"
	"github.com/dkeye/Drop/internal/app/orch"
	"github.com/dkeye/Drop/internal/config"
	"github.com/dkeye/Drop/internal/core"
)

func testRouter(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Store:    core.NewSessionStore(),
		Groups:   app.NewGroupManager(),
		Policy:   app.SimplePolicy{},
	}
	cfg := &config.Config{Mode: "test", Port: 8080, PingPeriod: time.Second, Secret: "s", JoinLimit: 5, JoinInterval: time.Minute}
	return SetupRouter(context.Background(), cfg, o), o
}

func TestHealth(t *testing.T) {
	r, o := testRouter(t)
	_, err := o.Store.Create("a")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, HealthResponse{Status: "ok", Sessions: 1, Connections: 0}, resp)
}

func TestClientTokenCookie(t *testing.T) {
	r, _ := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "DropSessions", cookies[0].Name)

	w2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.AddCookie(cookies[0])
	r.ServeHTTP(w2, req)
	assert.Empty(t, w2.Result().Cookies())
}

func TestSignalRequiresUpgrade(t *testing.T) {
	r, _ := testRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ws/signal", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
