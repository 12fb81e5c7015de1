package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (p stubPinger) HealthCheck(context.Context) error { return p.err }

type stubNotifier bool

func (n stubNotifier) Enabled() bool { return bool(n) }

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		redis    Pinger
		notifier interface{ Enabled() bool }
		code     int
		status   string
		services map[string]string
	}{
		{
			name:   "no optional dependencies",
			code:   http.StatusOK,
			status: "healthy",
			services: map[string]string{
				"cache":     "memory",
				"coingecko": "circuit closed",
				"telegram":  "disabled",
			},
		},
		{
			name:     "redis up and telegram enabled",
			redis:    stubPinger{},
			notifier: stubNotifier(true),
			code:     http.StatusOK,
			status:   "healthy",
			services: map[string]string{
				"cache":     "memory",
				"redis":     "healthy",
				"coingecko": "circuit closed",
				"telegram":  "enabled",
			},
		},
		{
			name:   "redis down",
			redis:  stubPinger{err: errors.New("connection refused")},
			code:   http.StatusServiceUnavailable,
			status: "unhealthy",
			services: map[string]string{
				"cache":     "memory",
				"redis":     "unhealthy: connection refused",
				"coingecko": "circuit closed",
				"telegram":  "disabled",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.redis, env.market, tt.notifier, "1.2.3")
			router := gin.New()
			router.GET("/health", h.HealthCheck)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tt.code, w.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.services, resp.Services)
			assert.Equal(t, "1.2.3", resp.Version)
			assert.NotEmpty(t, resp.Uptime)
		})
	}
}

func TestLivenessCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/live", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp["status"])
	assert.NotEmpty(t, resp["timestamp"])
}
