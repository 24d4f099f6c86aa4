package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhannyz/liquidsoap-go/internal/clock"
	"github.com/dhannyz/liquidsoap-go/internal/config"
	"github.com/dhannyz/liquidsoap-go/internal/harbor"
)

func newTestServer(t *testing.T) (*Server, *harbor.Registry) {
	t.Helper()
	decoders := harbor.NewDecoderRegistry()
	decoders.Register("test", func(sink harbor.Sink) error { return nil })
	registry := harbor.NewRegistry(decoders, nil)

	srv := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, "test-version", registry, nil)
	return srv, registry
}

func TestHealthzReportsStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "test-version", body.Version)
	assert.GreaterOrEqual(t, body.UptimeSeconds, 0.0)
}

func TestListClocksIncludesRegisteredClock(t *testing.T) {
	srv, _ := newTestServer(t)
	c := clock.NewClock("list-clocks-test", false, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/clocks", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Clocks []ClockSummary `json:"clocks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	found := false
	for _, summary := range body.Clocks {
		if summary.ID == c.ID {
			found = true
		}
	}
	assert.True(t, found, "expected %q to appear in /api/clocks", c.ID)
}

func TestGetClockReturns404ForUnknownID(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/clocks/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetClockReturnsOutputs(t *testing.T) {
	srv, _ := newTestServer(t)
	c := clock.NewClock("get-clock-test", false, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/clocks/"+c.ID, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body ClockDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, c.ID, body.ID)
	assert.Empty(t, body.Outputs)
}

func TestHarborStatusReturns404ForUnknownMount(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/harbor/does-not-exist/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHarborStatusReflectsSourceState(t *testing.T) {
	srv, registry := newTestServer(t)
	registry.GetOrCreate(harbor.Config{
		Mount:            "m",
		SamplesPerSecond: 10,
		BytesPerSample:   1,
		Max:              time.Second,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/harbor/m/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "no source client connected", body.Status)
}

func TestHarborStopReturns404ForUnknownMount(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/harbor/does-not-exist/stop", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHarborKickReportsKicked(t *testing.T) {
	srv, registry := newTestServer(t)
	registry.GetOrCreate(harbor.Config{
		Mount:            "m",
		SamplesPerSecond: 10,
		BytesPerSample:   1,
		Max:              time.Second,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/harbor/m/kick", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Result string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "kicked", body.Result)
}
