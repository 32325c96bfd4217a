package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streak_bot/internal/modules/health/service"
)

func TestReadyFollowsFeed(t *testing.T) {
	state := service.NewState()
	srv := httptest.NewServer(NewMux(state))
	defer srv.Close()

	get := func(path string) int {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("/livez"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))

	state.SetReady(true)
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))

	state.SetWSConnected(true)
	assert.Equal(t, http.StatusOK, get("/readyz"))

	state.SetWSConnected(false)
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))
}

func TestHealthz(t *testing.T) {
	state := service.NewState()
	state.SetReady(true)
	state.SetWSConnected(true)
	state.SetTasks(3)
	tick := time.Unix(1700000000, 0)
	state.TouchTick(tick)

	rec := httptest.NewRecorder()
	NewMux(state).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got healthResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Ready)
	assert.True(t, got.WSConnected)
	assert.Equal(t, 3, got.Tasks)
	assert.Equal(t, tick.Unix(), got.LastTickUnix)
}
