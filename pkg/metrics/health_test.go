package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler http.HandlerFunc, path string) (*httptest.ResponseRecorder, Report) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	handler(w, req)

	var report Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	return w, report
}

func TestHealthAllPassing(t *testing.T) {
	h := NewHealth()
	h.RegisterCheck("metadata", true, func() error { return nil })
	h.RegisterCheck("drives", false, func() error { return nil })

	w, report := serve(t, h.HealthHandler(), "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", report.Status)
	assert.Equal(t, "ok", report.Checks["metadata"])
	assert.Equal(t, "ok", report.Checks["drives"])
}

func TestHealthNonCriticalFailureDegrades(t *testing.T) {
	h := NewHealth()
	h.RegisterCheck("metadata", true, func() error { return nil })
	h.RegisterCheck("drives", false, func() error { return errors.New("no snapshot yet") })

	w, report := serve(t, h.HealthHandler(), "/health")

	// Degraded still answers 200: a lost non-essential probe must not get
	// the agent restarted.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "no snapshot yet", report.Checks["drives"])
}

func TestHealthCriticalFailureIsUnhealthy(t *testing.T) {
	h := NewHealth()
	h.RegisterCheck("metadata", true, func() error { return errors.New("metadata file unreadable") })

	w, report := serve(t, h.HealthHandler(), "/health")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", report.Status)
}

func TestReadinessIgnoresNonCriticalChecks(t *testing.T) {
	h := NewHealth()
	h.RegisterCheck("metadata", true, func() error { return nil })
	h.RegisterCheck("drives", false, func() error { return errors.New("no snapshot yet") })

	w, report := serve(t, h.ReadyHandler(), "/ready")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", report.Status)
	assert.NotContains(t, report.Checks, "drives")
}

func TestReadinessFailsOnCriticalCheck(t *testing.T) {
	h := NewHealth()
	h.RegisterCheck("metadata", true, func() error { return errors.New("not loaded") })

	w, report := serve(t, h.ReadyHandler(), "/ready")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "not_ready", report.Status)
}

func TestChecksEvaluatedAtRequestTime(t *testing.T) {
	h := NewHealth()
	healthy := false
	h.RegisterCheck("metadata", true, func() error {
		if !healthy {
			return errors.New("not yet")
		}
		return nil
	})

	w, _ := serve(t, h.HealthHandler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	healthy = true
	w, report := serve(t, h.HealthHandler(), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", report.Status)
}

func TestLiveHandler(t *testing.T) {
	h := NewHealth()

	w, report := serve(t, h.LiveHandler(), "/live")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", report.Status)
	assert.NotEmpty(t, report.Uptime)
}
